package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/testforge/a11yforge/pkg/httputil"
)

// LoggingMiddleware writes one access line per ops API request
type LoggingMiddleware struct {
	logger *zap.Logger
}

// NewLoggingMiddleware creates a new logging middleware
func NewLoggingMiddleware(logger *zap.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{logger: logger.Named("http")}
}

// Handler returns the middleware handler. Probes and scrapes log at debug;
// client errors at warn and server errors at error.
func (m *LoggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := requestID(r)
		w.Header().Set("X-Request-ID", id)

		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		fields := []zap.Field{
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("route", route(r)),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
		}
		if runID := chi.URLParam(r, "id"); runID != "" {
			fields = append(fields, zap.String("run_id", runID))
		}

		switch {
		case status >= 500:
			m.logger.Error("ops request", fields...)
		case status >= 400:
			m.logger.Warn("ops request", fields...)
		default:
			m.logger.Debug("ops request", fields...)
		}
	})
}

// route returns the matched chi pattern, so run ids do not fan out the path
func route(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

// requestID prefers the id chi assigned, then the caller's header
func requestID(r *http.Request) string {
	if id := chimw.GetReqID(r.Context()); id != "" {
		return id
	}
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}

// RecoveryMiddleware turns a handler panic into a JSON 500
type RecoveryMiddleware struct {
	logger *zap.Logger
}

// NewRecoveryMiddleware creates a new recovery middleware
func NewRecoveryMiddleware(logger *zap.Logger) *RecoveryMiddleware {
	return &RecoveryMiddleware{logger: logger.Named("http")}
}

// Handler returns the middleware handler
func (m *RecoveryMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			m.logger.Error("handler panicked",
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()),
				zap.String("request_id", requestID(r)),
				zap.String("route", route(r)),
			)
			httputil.JSONError(w, http.StatusInternalServerError, httputil.CodeInternal, "Internal server error", nil)
		}()

		next.ServeHTTP(w, r)
	})
}
