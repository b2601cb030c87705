package policy

import "resumehub/internal/domain/models"

// Policy decides whether an authenticated identity may act on a resource
// owned by someone. It is stateless and shared by every ownership-gated
// handler.
type Policy struct {
	adminEmail string
}

// New returns a Policy. adminEmail may be empty, in which case no identity
// ever gets the admin override.
func New(adminEmail string) *Policy {
	return &Policy{adminEmail: adminEmail}
}

// Allows grants access when the identity owns the resource, or when the
// identity is the configured admin and the operation supports override.
func (p *Policy) Allows(id models.Identity, ownerID int64, adminOverride bool) bool {
	if id.UserID == ownerID {
		return true
	}
	if adminOverride && p.adminEmail != "" && id.Email == p.adminEmail {
		return true
	}
	return false
}
