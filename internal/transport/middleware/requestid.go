package middleware

import (
	"net/http"

	"github.com/frahmantamala/isp-billing/pkg/logger"
	chiMiddleware "github.com/go-chi/chi/middleware"
	"github.com/google/uuid"
)

const TraceIDHeader = "X-Trace-ID"

// TraceID carries a caller supplied trace id, or a fresh one, through the
// request logger and back on the response.
func TraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(TraceIDHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}

		ctx := logger.With(r.Context(), "traceID", traceID)
		if reqID := chiMiddleware.GetReqID(r.Context()); reqID != "" {
			ctx = logger.With(ctx, "requestID", reqID)
		}

		w.Header().Set(TraceIDHeader, traceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
