package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"phones/pkg/requestcontext"
)

// RequestMeta stamps each request with a correlation id and a pinned
// timestamp. Services read both via pkg/requestcontext; pinning the time here
// is what makes a whole write batch share one instant.
func RequestMeta(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		ctx = requestcontext.WithTime(ctx, time.Now().UTC())
		w.Header().Set("X-Request-Id", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID re-exports the accessor so HTTP code has one import.
func RequestID(ctx context.Context) string {
	return requestcontext.RequestID(ctx)
}
