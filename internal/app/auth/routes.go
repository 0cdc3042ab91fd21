package auth

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/domain"
)

// Route is a method plus a path prefix matched on segment boundaries.
type Route struct {
	Method string
	Prefix string
}

// Matches reports whether method and path fall under r. "/api/mediciones"
// matches "/api/mediciones" and "/api/mediciones/x" but not
// "/api/medicionesx".
func (r Route) Matches(method, path string) bool {
	if method != r.Method || !strings.HasPrefix(path, r.Prefix) {
		return false
	}
	rest := path[len(r.Prefix):]
	return rest == "" || rest[0] == '/'
}

// sessionExempt lists the only API calls that skip the session check.
// Everything else under /api/ needs a bearer token. GET /api/mediciones is
// deliberately absent.
var sessionExempt = []Route{
	{Method: http.MethodPost, Prefix: "/api/auth/login"},
	{Method: http.MethodPost, Prefix: "/api/auth/register"},
	{Method: http.MethodPost, Prefix: "/api/mediciones"},
}

func SessionExemptRoutes() []Route {
	return slices.Clone(sessionExempt)
}

// Exempt reports whether the request skips the session check.
func Exempt(method, path string) bool {
	for _, r := range sessionExempt {
		if r.Matches(method, path) {
			return true
		}
	}
	return false
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity attached by the session middleware.
func IdentityFrom(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(domain.Identity)
	return id, ok
}
