package auth

import (
	"context"

	"github.com/dukerupert/civicpoints/internal/model"
)

type contextKey struct{}

// AuthContext identifies the member behind a request.
type AuthContext struct {
	MemberID  int64
	Role      string
	SessionID int64
}

func (ac AuthContext) IsAdmin() bool {
	return ac.Role == model.RoleAdmin
}

// CanAccessMember reports whether the caller may read memberID's data:
// their own, or anyone's for admins.
func (ac AuthContext) CanAccessMember(memberID int64) bool {
	return ac.IsAdmin() || ac.MemberID == memberID
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func MemberID(ctx context.Context) int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return ac.MemberID
}

func IsAdmin(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return ac.IsAdmin()
}
