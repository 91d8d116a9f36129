package shared

import "context"

// Identity describes the caller as resolved by the upstream identity layer.
// The gateway terminates authentication; this service only consumes the result.
type Identity struct {
	OperatorID string
	Role       string
	Stores     []string
}

// RoleAdmin operators may act on any store.
const RoleAdmin = "admin"

// CanAccess reports whether the operator may adjust stock for the store.
func (id Identity) CanAccess(storeID string) bool {
	if storeID == "" {
		return false
	}
	if id.Role == RoleAdmin {
		return true
	}
	for _, s := range id.Stores {
		if s == storeID {
			return true
		}
	}
	return false
}

type identityContextKey struct{}

// ContextWithIdentity stores the caller identity in context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the caller identity from context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok
}
