package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Mohsen-rm/Clinical-Nutrition-Platform/pkg/logger"
)

// UserIDFunc resolves the signed-in user for a request, or "" when signed out.
type UserIDFunc func(ctx context.Context) string

// RequestLogger stores a request-scoped logger in context, enriched with
// correlation_id, trace_id, span_id and, when userID reports one, user_id.
// Mount it after RequestLogging and Tracing.
func RequestLogger(base *slog.Logger, userID UserIDFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if userID != nil {
				if id := userID(ctx); id != "" {
					ctx = logger.WithUserID(ctx, id)
				}
			}

			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
