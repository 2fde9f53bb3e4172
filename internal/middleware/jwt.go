package middleware

import (
	"net/http"
	"strings"

	"go-messenger/internal/apperr"
	"go-messenger/internal/auth"
	"go-messenger/internal/web"
)

// TokenVerifier is what the middleware needs from the token service.
type TokenVerifier interface {
	Verify(tokenString string) (auth.Identity, error)
}

type AuthMiddleware struct {
	verifier TokenVerifier
}

func NewAuthMiddleware(v TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: v}
}

// RequireUser admits requests carrying a valid USER token.
func (am *AuthMiddleware) RequireUser(next http.Handler) http.Handler {
	return am.require(auth.RoleUser, next)
}

// RequireAdmin admits requests carrying a valid ADMIN token.
func (am *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return am.require(auth.RoleAdmin, next)
}

func (am *AuthMiddleware) require(role auth.Role, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := bearerToken(r)
		if tokenString == "" {
			web.Error(w, r, apperr.Unauthorized("missing authentication token"))
			return
		}

		id, err := am.verifier.Verify(tokenString)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		if id.Role != role {
			web.Error(w, r, apperr.Forbidden("token does not grant access to this resource"))
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

// bearerToken reads the Authorization header, falling back to the token
// query parameter because browsers cannot set headers on WebSocket dials.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return r.URL.Query().Get("token")
}

// OptionalIdentity attaches the caller's identity when a valid token is
// present and passes the request through untouched otherwise.
func (am *AuthMiddleware) OptionalIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tokenString := bearerToken(r); tokenString != "" {
			if id, err := am.verifier.Verify(tokenString); err == nil {
				r = r.WithContext(auth.WithIdentity(r.Context(), id))
			}
		}
		next.ServeHTTP(w, r)
	})
}
