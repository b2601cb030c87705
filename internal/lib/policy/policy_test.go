package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"resumehub/internal/domain/models"
)

func TestAllows(t *testing.T) {
	p := New("admin@resumehub.dev")

	owner := models.Identity{UserID: 7, Email: "owner@x.com"}
	stranger := models.Identity{UserID: 42, Email: "stranger@x.com"}
	admin := models.Identity{UserID: 99, Email: "admin@resumehub.dev"}

	tests := []struct {
		name          string
		id            models.Identity
		ownerID       int64
		adminOverride bool
		want          bool
	}{
		{"owner allowed", owner, 7, false, true},
		{"owner allowed with override enabled", owner, 7, true, true},
		{"stranger denied", stranger, 7, false, false},
		{"stranger denied even with override enabled", stranger, 7, true, false},
		{"admin denied without override", admin, 7, false, false},
		{"admin allowed with override", admin, 7, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Allows(tt.id, tt.ownerID, tt.adminOverride))
		})
	}
}

func TestAllowsNoAdminConfigured(t *testing.T) {
	p := New("")

	// An identity with an empty email must not match an empty admin config.
	id := models.Identity{UserID: 42, Email: ""}
	assert.False(t, p.Allows(id, 7, true))
}
