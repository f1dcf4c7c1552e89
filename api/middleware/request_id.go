package middleware

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"

	"github.com/hilife/servicereport-backend/pkg/logger"
)

const requestIDHeader = "X-Request-Id"

// Ids from the frontend or load balancer are trusted only when they are
// short tokens, so a client cannot smuggle text into the log stream.
var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{8,64}$`)

// RequestID tags the request context and the response with a request id,
// reusing an inbound one when it looks like an id.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDHeader)
			if !requestIDPattern.MatchString(id) {
				id = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, id)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithRequestID(ctx, id)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
