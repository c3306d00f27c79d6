package v1

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// requestScope collects fields that inner handlers learn about the request,
// such as the authenticated user, so the access line can carry them.
type requestScope struct {
	userID uuid.UUID
}

const ctxKeyRequestScope ctxKey = "requestScope"

// scopeFrom returns the scope installed by requestLogger, or nil outside it.
func scopeFrom(ctx context.Context) *requestScope {
	sc, _ := ctx.Value(ctxKeyRequestScope).(*requestScope)
	return sc
}

// requestLogger writes one access line per request. Server errors log at ERROR,
// client errors at WARN and everything else at INFO.
func requestLogger(l *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			sc := &requestScope{}

			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), ctxKeyRequestScope, sc)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			attrs := []any{
				"req_id", chimw.GetReqID(r.Context()),
				"method", r.Method,
				"route", routePattern(r),
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start).String(),
			}
			if sc.userID != uuid.Nil {
				attrs = append(attrs, "user_id", sc.userID)
			}
			level := slog.LevelInfo
			switch {
			case status >= 500:
				level = slog.LevelError
			case status >= 400:
				level = slog.LevelWarn
			}
			l.Log(r.Context(), level, "request complete", attrs...)
		})
	}
}

// recoverer logs panics as ERROR and returns 500.
func recoverer(l *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					reqID := chimw.GetReqID(r.Context())
					l.Error("panic", "req_id", reqID, "err", rec, "stack", string(debug.Stack()))
					writeErr(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError), "internal")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
