package app

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"
	"golang.org/x/crypto/bcrypt"

	"github.com/harborstay/harborstay/internal/observability"
	"github.com/harborstay/harborstay/internal/platform/httpx"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
}

// MiddlewareStack installs the base middleware chain applied to every route.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		SSLRedirect:        cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
	})

	timeout := 30 * time.Second
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					cfg.Logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
		httprate.Limit(120, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, cfg.Metrics.Middleware)
	}
	return middlewares
}

// APIKeyAuth guards staff endpoints with a bcrypt-hashed API key supplied in
// the X-API-Key header. A successful comparison is cached so the bcrypt cost
// is paid once per process, not per request.
func APIKeyAuth(hash string, logger *slog.Logger) func(http.Handler) http.Handler {
	var (
		mu       sync.RWMutex
		accepted string
	)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}

			mu.RLock()
			known := accepted
			mu.RUnlock()
			if known != "" && subtle.ConstantTimeCompare([]byte(known), []byte(key)) == 1 {
				next.ServeHTTP(w, r)
				return
			}

			if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err != nil {
				logger.Warn("api key rejected", slog.String("path", r.URL.Path))
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			mu.Lock()
			accepted = key
			mu.Unlock()
			next.ServeHTTP(w, r)
		})
	}
}
