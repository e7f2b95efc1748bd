package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"go.uber.org/zap"
)

// Logger defines the logging methods this package consumes
type Logger interface {
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
	Fatal(args ...interface{})
}

// middlewareLogger is used for request logging. Only Zap logger is supported now, or dummy.
func middlewareLogger(logger Logger) func(next http.Handler) http.Handler {
	l, ok := logger.(*zap.SugaredLogger)
	if !ok {
		// if not zap.SugaredLogger, return dummy middleware
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { next.ServeHTTP(w, r) })
		}
	}
	log := l.Desugar()
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			t := time.Now()
			defer func() {
				log.Info("Served",
					zap.String("method", r.Method),
					zap.String("RemoteAddr", r.RemoteAddr),
					zap.String("Proto", r.Proto),
					zap.String("Path", r.URL.Path),
					zap.String("UserAgent", r.UserAgent()),
					zap.String("reqID", middleware.GetReqID(r.Context())),
					zap.Duration("Duration", time.Since(t)),
					zap.Int("size", ww.BytesWritten()),
					zap.Int("status", ww.Status()),
				)
			}()

			next.ServeHTTP(ww, r)
		}
		return http.HandlerFunc(fn)
	}
}
