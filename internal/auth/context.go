package auth

import "context"

type contextKey struct{}

// WithSession attaches a validated session to ctx.
func WithSession(ctx context.Context, session Session) context.Context {
	return context.WithValue(ctx, contextKey{}, session)
}

// FromContext returns the session stored by WithSession, if any.
func FromContext(ctx context.Context) (Session, bool) {
	session, ok := ctx.Value(contextKey{}).(Session)
	return session, ok
}
