package httpapi

import (
	"context"

	"resumehub/internal/domain/models"
)

type ctxKey int

const identityKey ctxKey = iota

func withIdentity(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the identity the auth middleware attached.
// Handlers behind RequireAuth may rely on ok being true.
func IdentityFromContext(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(identityKey).(models.Identity)
	return id, ok
}
