package auth

import (
	"context"
	"slices"
)

// CapabilityAdmin lets the caller manage catalogues, award prizes and act on
// any panelist's points.
const CapabilityAdmin = "points:admin"

type contextKey struct{}

// AuthContext is the verified caller of a request.
type AuthContext struct {
	UserRef      string
	PanelistID   int64
	Role         string
	Capabilities []string
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func UserRef(ctx context.Context) string {
	ac, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return ac.UserRef
}

func PanelistID(ctx context.Context) int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return ac.PanelistID
}

func HasCapability(ctx context.Context, capability string) bool {
	ac, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return slices.Contains(ac.Capabilities, capability)
}

func IsAdmin(ctx context.Context) bool {
	return HasCapability(ctx, CapabilityAdmin)
}

// CanActFor reports whether the caller may read or spend the points of the
// given panelist.
func CanActFor(ctx context.Context, panelistID int64) bool {
	return IsAdmin(ctx) || (panelistID != 0 && PanelistID(ctx) == panelistID)
}
