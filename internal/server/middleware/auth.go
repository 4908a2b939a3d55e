package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rhunor/oliehauspma-sub006/pkg/config"
)

// AppClaims is the session token claim set issued by the application backend.
// The subject carries the user id; the role claim selects the capability set.
type AppClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// NewAuthMiddleware is the authentication gate. It runs once per connection
// attempt, before the upgrade or poll handshake, and either attaches a
// validated user id, role, and capability bitmap to the request metadata or
// refuses the connection. No event is ever processed for an unauthenticated
// connection.
func NewAuthMiddleware(logger *slog.Logger, jwtSecret string, roles config.RoleSet) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				// Metadata middleware must run first; refusing is safer than
				// admitting an untagged connection.
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			tokenString := bearerToken(r)
			if tokenString == "" {
				if cookie, err := r.Cookie("session-token"); err == nil {
					tokenString = cookie.Value
				}
			}
			if tokenString == "" {
				logger.Warn("connection attempt without a session token", slog.String("ip", reqMeta.IP))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			token, err := jwt.ParseWithClaims(tokenString, &AppClaims{}, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(jwtSecret), nil
			})
			if err != nil || !token.Valid {
				logger.Warn("invalid session token", slog.String("ip", reqMeta.IP), slog.Any("error", err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(*AppClaims)
			if !ok {
				logger.Error("failed to parse session token claims", slog.String("ip", reqMeta.IP))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if claims.Subject == "" {
				logger.Warn("valid token missing 'sub' claim", slog.String("ip", reqMeta.IP))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			caps, known := roles.Capabilities(claims.Role)
			if !known {
				logger.Warn("token carries unknown role",
					slog.String("ip", reqMeta.IP),
					slog.String("role", claims.Role),
				)
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			reqMeta.UserID = claims.Subject
			reqMeta.Role = claims.Role
			reqMeta.Capabilities = caps
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
