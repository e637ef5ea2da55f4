package middleware

import (
	"net/http"
	"time"

	"github.com/corpchat/internal/logger"
)

// RequestLog логирует каждый HTTP-запрос: method, path, статус и время
// выполнения (асинхронно, не блокирует).
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrap := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			logger.Infof("http %s %s %d %v", r.Method, r.URL.Path, wrap.status, time.Since(start).Round(time.Millisecond))
		}()
		next.ServeHTTP(wrap, r)
	})
}
