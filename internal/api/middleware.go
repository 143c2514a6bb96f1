/**
 * @description
 * Request middleware: HS256 bearer-token authentication and per-owner rate limiting.
 */

package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/HampusCastle/BankApp-Backend-sub000/internal/app"
	"github.com/golang-jwt/jwt/v5"
)

// OwnerIDContextKey is a custom type for the context key to avoid collisions.
type OwnerIDContextKey string

const ownerIDKey OwnerIDContextKey = "ownerID"

// JWTAuthMiddleware validates HS256 bearer tokens and stores the subject as the owner id.
// With an empty secret every request is rejected.
func JWTAuthMiddleware(secret, issuer string) func(http.Handler) http.Handler {
	key := []byte(strings.TrimSpace(secret))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(key) == 0 {
				writeError(w, http.StatusUnauthorized, "Authentication is not configured")
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "Authorization header required")
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				writeError(w, http.StatusUnauthorized, "Invalid Authorization header format")
				return
			}

			opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
			if issuer != "" {
				opts = append(opts, jwt.WithIssuer(issuer))
			}
			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return key, nil
			}, opts...)
			if err != nil || !token.Valid {
				writeError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				writeError(w, http.StatusUnauthorized, "Invalid token claims")
				return
			}
			ownerID, err := claims.GetSubject()
			if err != nil || ownerID == "" {
				writeError(w, http.StatusUnauthorized, "Owner ID not found in token")
				return
			}

			ctx := context.WithValue(r.Context(), ownerIDKey, ownerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetOwnerID is a helper function to retrieve the authenticated owner id from the request context.
func GetOwnerID(ctx context.Context) (string, bool) {
	ownerID, ok := ctx.Value(ownerIDKey).(string)
	return ownerID, ok
}

// RateLimitMiddleware throttles requests per authenticated owner. A nil limiter or
// non-positive limit disables it; limiter errors let the request through.
func RateLimitMiddleware(limiter app.RateLimiter, logger *slog.Logger, scope string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil || limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ownerID, _ := GetOwnerID(r.Context())
			count, retryAfter, err := limiter.ConsumeRateLimit(r.Context(), scope, ownerID, limit, window)
			if err != nil {
				logger.Warn("rate limiter unavailable, allowing request", "scope", scope, "owner_id", ownerID, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if count > limit {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
