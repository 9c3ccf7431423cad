package domain

import "context"

// AuthContext describes the caller of one request. It is built once by the
// orchestrator and passed explicitly; core components never look it up.
type AuthContext struct {
	UserID       string
	SessionID    string
	SessionToken string
	Role         SystemRole
	Authority    Authority
	IPAddress    string
	UserAgent    string
}

// IsZero reports whether no user is attached.
func (a AuthContext) IsZero() bool { return a.UserID == "" }

type authCtxKey struct{}

// WithAuthContext stores the caller in ctx for HTTP handlers.
func WithAuthContext(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, authCtxKey{}, ac)
}

// AuthContextFrom returns the caller stored by WithAuthContext.
func AuthContextFrom(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(authCtxKey{}).(AuthContext)
	return ac, ok && !ac.IsZero()
}
