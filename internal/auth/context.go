package auth

import "context"

// User identifies the paired device behind an authenticated request.
type User struct {
	Sub        string
	DeviceName string
	Type       TokenType
}

type userKey struct{}

// WithUser returns a child context carrying the authenticated user.
func WithUser(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext extracts the user placed by the auth middleware.
func UserFromContext(ctx context.Context) (User, bool) {
	if ctx == nil {
		return User{}, false
	}
	user, ok := ctx.Value(userKey{}).(User)
	return user, ok
}
