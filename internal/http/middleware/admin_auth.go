package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type adminClaimsKey struct{}

// adminTokenLeeway absorbs clock skew between the dashboard and this API.
const adminTokenLeeway = 30 * time.Second

// AdminClaims are carried by the dashboard's HS256 tokens.
type AdminClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Actor names the admin for audit stamps: e-mail when present, else subject.
func (c AdminClaims) Actor() string {
	if c.Email != "" {
		return c.Email
	}
	return c.Subject
}

var adminParser = jwt.NewParser(
	jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	jwt.WithExpirationRequired(),
	jwt.WithLeeway(adminTokenLeeway),
)

// ParseAdminToken verifies raw against secret and returns its claims.
func ParseAdminToken(secret, raw string) (AdminClaims, error) {
	var claims AdminClaims
	_, err := adminParser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return AdminClaims{}, err
	}
	return claims, nil
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// AdminJWT guards the customer dashboard routes.
func AdminJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				writeAuthError(w, http.StatusUnauthorized, "admin auth disabled")
				return
			}
			raw, ok := bearerToken(r)
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}
			claims, err := ParseAdminToken(secret, raw)
			switch {
			case errors.Is(err, jwt.ErrTokenExpired):
				writeAuthError(w, http.StatusUnauthorized, "token expired")
				return
			case err != nil:
				writeAuthError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), adminClaimsKey{}, claims)))
		})
	}
}

// AdminClaimsFromContext returns the claims stored by AdminJWT.
func AdminClaimsFromContext(ctx context.Context) (AdminClaims, bool) {
	claims, ok := ctx.Value(adminClaimsKey{}).(AdminClaims)
	return claims, ok
}
