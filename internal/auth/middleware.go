package auth

import (
	"context"
	"net/http"
)

// CookieName carries the login session token.
const CookieName = "dlgen_session"

type contextKey struct{}

// FromContext returns the identity attached by Require.
func FromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(contextKey{}).(Identity)
	return identity, ok
}

// WithIdentity attaches an identity to a context; used by tests and the
// login handler.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, identity)
}

// Require rejects requests without a valid login session and attaches the
// resolved identity to the request context.
func (s *Store) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(CookieName)
		if err != nil {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		identity, err := s.Lookup(r.Context(), cookie.Value)
		if err != nil {
			http.Error(w, "session invalid or expired", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

// RequireAdmin additionally rejects non-admin identities.
func (s *Store) RequireAdmin(next http.Handler) http.Handler {
	return s.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, _ := FromContext(r.Context())
		if !identity.Admin {
			http.Error(w, "administrator access required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	}))
}
