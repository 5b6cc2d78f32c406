package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/tuskguard/internal/api/auth"
	"github.com/good-yellow-bee/tuskguard/internal/logging"
	"github.com/good-yellow-bee/tuskguard/internal/metrics"
)

// Context keys for storing caller information.
type contextKey string

const (
	subjectKey contextKey = "subject"
	roleKey    contextKey = "role"
	claimsKey  contextKey = "claims"
)

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

// jsonUnauthorized writes an unauthorized error response.
func jsonUnauthorized(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
}

// jsonForbidden writes a forbidden error response.
func jsonForbidden(w http.ResponseWriter) {
	writeError(w, http.StatusForbidden, "FORBIDDEN", "access denied")
}

// JWTAuth returns middleware that validates bearer tokens. A nil service
// disables authentication.
func JWTAuth(jwtService *auth.JWTService, logger *zap.Logger) func(http.Handler) http.Handler {
	logger = logging.OrNop(logger)
	return func(next http.Handler) http.Handler {
		if jwtService == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				metrics.AuthAttemptsTotal.WithLabelValues("missing").Inc()
				jsonUnauthorized(w)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				metrics.AuthAttemptsTotal.WithLabelValues("malformed").Inc()
				jsonUnauthorized(w)
				return
			}

			claims, err := jwtService.ValidateToken(strings.TrimSpace(parts[1]))
			if err != nil {
				metrics.AuthAttemptsTotal.WithLabelValues("invalid").Inc()
				logger.Info("jwt auth failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
				jsonUnauthorized(w)
				return
			}
			metrics.AuthAttemptsTotal.WithLabelValues("success").Inc()

			ctx := r.Context()
			ctx = context.WithValue(ctx, subjectKey, claims.Subject)
			ctx = context.WithValue(ctx, roleKey, claims.Role)
			ctx = context.WithValue(ctx, claimsKey, claims)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireWrite rejects callers whose role cannot change state. Requests
// without claims pass, since they only reach here when auth is disabled.
func RequireWrite(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetClaims(r.Context()) != nil && !GetRole(r.Context()).CanWrite() {
			jsonForbidden(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetSubject returns the token subject from context.
func GetSubject(ctx context.Context) string {
	if v := ctx.Value(subjectKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetRole returns the caller role from context.
func GetRole(ctx context.Context) auth.Role {
	if v := ctx.Value(roleKey); v != nil {
		if r, ok := v.(auth.Role); ok {
			return r
		}
	}
	return ""
}

// GetClaims returns the JWT claims from context.
func GetClaims(ctx context.Context) *auth.Claims {
	if v := ctx.Value(claimsKey); v != nil {
		if c, ok := v.(*auth.Claims); ok {
			return c
		}
	}
	return nil
}
