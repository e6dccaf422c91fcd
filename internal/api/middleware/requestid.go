package middleware

import (
	"net/http"

	"github.com/google/uuid"
)

// RequestIDMiddleware assigns each request an X-Request-ID, keeping the
// one the client sent when present.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r)
	})
}
