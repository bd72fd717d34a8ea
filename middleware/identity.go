package middleware

import (
	"context"
	"strings"

	"github.com/techbridge/authcore/permission"
)

// Identity is the authenticated caller as established from the access
// token.
type Identity struct {
	Subject string
	Role    permission.Role
	SID     string
}

type identityContextKey struct{}

// FromContext returns the identity injected by the guard, if any.
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*Identity)
	return id, ok
}

func withIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}
	token := value[len(bearer):]
	if token == "" {
		return "", false
	}
	return token, true
}
