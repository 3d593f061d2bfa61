package middleware

import (
	"net/http"

	"github.com/domainsearch/engine/pkg/logger"
	"github.com/google/uuid"
)

// HeaderRequestID is the response header carrying the request ID back to
// the caller, so client-reported issues can be correlated with server
// logs.
const HeaderRequestID = "X-Request-ID"

// RequestID assigns a request ID (reusing an inbound X-Request-ID header
// if the caller supplied one) and stashes it in the request context via
// pkg/logger, so every log line emitted while handling this request
// carries it.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		ctx := logger.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
