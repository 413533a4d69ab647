package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const principalContextKey contextKey = "principal"

// Principal is the verified identity on a request: the tenant every entity is
// scoped to, and the participant acting. Token issuance lives outside this
// service; the middleware only verifies what the issuer signed.
type Principal struct {
	Tenant string
	User   string
}

// Claims is the token payload the external issuer signs.
type Claims struct {
	Tenant string `json:"tenant"`
	jwt.RegisteredClaims
}

// AuthMiddleware verifies session tokens on protected endpoints.
type AuthMiddleware struct {
	secret []byte
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	return &AuthMiddleware{secret: []byte(secret)}
}

// RequireAuth verifies the Bearer token and binds the tenant and user to the
// request context. The tenant in the token is the only tenant the request
// can ever observe.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			jsonError(w, http.StatusUnauthorized, "missing token")
			return
		}

		tokenStr := strings.TrimPrefix(header, "Bearer ")
		token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return m.secret, nil
		})
		if err != nil || !token.Valid {
			jsonError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		claims := token.Claims.(*Claims)
		if claims.Tenant == "" || claims.Subject == "" {
			jsonError(w, http.StatusUnauthorized, "token missing tenant or subject")
			return
		}

		principal := &Principal{Tenant: claims.Tenant, User: claims.Subject}
		ctx := context.WithValue(r.Context(), principalContextKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetPrincipal retrieves the verified principal from the request context.
func GetPrincipal(ctx context.Context) *Principal {
	principal, _ := ctx.Value(principalContextKey).(*Principal)
	return principal
}

// jsonError writes the uniform failure envelope.
func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"message": message,
	})
}
