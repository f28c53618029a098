package security

import (
	"crypto/subtle"
	"net/http"
	"strings"

	logger "github.com/sirupsen/logrus"
)

// RequireToken rejects requests without "Authorization: Bearer <token>".
// With an empty token every request passes.
func RequireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		want := []byte(token)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, bearer := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !bearer || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				logger.WithFields(logger.Fields{
					"path":   r.URL.Path,
					"remote": r.RemoteAddr,
				}).Warn("unauthorized request")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
