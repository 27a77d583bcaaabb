package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/webklar/booking-platform/internal/auth"
)

// SessionVerifier validates booking-flow access tokens.
type SessionVerifier interface {
	Verify(token string) (*auth.Session, error)
}

// RequireSession rejects requests without a valid session token (bearer
// header or session cookie) and stores the session in the request context.
func RequireSession(verifier SessionVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				writeAuthError(w, http.StatusUnauthorized, "session auth disabled")
				return
			}
			session, err := verifier.Verify(auth.TokenFromRequest(r))
			if err != nil {
				msg := "Please confirm your email address first."
				if !errors.Is(err, auth.ErrMissingToken) {
					msg = "Your confirmation has expired. Please confirm your email address again."
				}
				writeAuthError(w, http.StatusUnauthorized, msg)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), session)))
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
