// Package security authenticates API callers with HS256 bearer tokens and
// maps their role onto the routes they may use.
package security

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken     = errors.New("security: missing authorization token")
	ErrInvalidToken     = errors.New("security: invalid token")
	ErrExpiredToken     = errors.New("security: token expired")
	ErrInsufficientRole = errors.New("security: insufficient role")
	ErrUnknownRole      = errors.New("security: unknown role")
)

// SecretEnv names the environment variable holding the HS256 secret.
const SecretEnv = "STAKECLAW_JWT_SECRET"

// Claims is the token payload: a role on top of the registered claims. The
// subject names the caller, e.g. "dashboard".
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

var parser = jwt.NewParser(
	jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	jwt.WithExpirationRequired(),
)

// SecretFromEnv returns the secret from SecretEnv. ok is false when it is
// unset, which the API treats as dev mode.
func SecretFromEnv() (secret []byte, ok bool) {
	s := os.Getenv(SecretEnv)
	if s == "" {
		return nil, false
	}
	return []byte(s), true
}

// GenerateToken signs a token for subject with role, valid for ttl.
func GenerateToken(subject, role string, secret []byte, ttl time.Duration) (string, error) {
	if !ValidRole(role) {
		return "", fmt.Errorf("%w %q", ErrUnknownRole, role)
	}
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ValidateToken checks signature, expiry and role.
func ValidateToken(tokenStr string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	_, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case err != nil, !ValidRole(claims.Role):
		return nil, ErrInvalidToken
	}
	return claims, nil
}

type claimsKey struct{}

// ClaimsFrom returns the caller authenticated by AuthMiddleware. ok is false
// in dev mode.
func ClaimsFrom(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok && c != nil
}

// AuthMiddleware requires a valid bearer token whose role permits the
// request. A nil secret is dev mode: requests pass unauthenticated.
func AuthMiddleware(secret []byte, logger *slog.Logger) func(http.Handler) http.Handler {
	if secret == nil {
		logger.Warn("JWT authentication disabled (dev mode)", "env", SecretEnv)
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				deny(w, http.StatusUnauthorized, err)
				return
			}
			claims, err := ValidateToken(token, secret)
			if err != nil {
				deny(w, http.StatusUnauthorized, err)
				return
			}
			if !CheckPermission(claims.Role, r.Method, r.URL.Path) {
				logger.Debug("request denied", "subject", claims.Subject, "role", claims.Role, "path", r.URL.Path)
				deny(w, http.StatusForbidden, ErrInsufficientRole)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
		})
	}
}

// bearerToken reads the Authorization header. Browsers cannot set headers
// on a WebSocket upgrade, so upgrades may carry the token as ?token=.
func bearerToken(r *http.Request) (string, error) {
	if auth := r.Header.Get("Authorization"); auth != "" {
		scheme, token, ok := strings.Cut(auth, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
			return "", ErrInvalidToken
		}
		return token, nil
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		if token := r.URL.Query().Get("token"); token != "" {
			return token, nil
		}
	}
	return "", ErrMissingToken
}

func deny(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
