package api

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/parabase-io/parabase/internal/apikey"
	"github.com/parabase-io/parabase/internal/apperr"
	"github.com/parabase-io/parabase/internal/auth"
	"github.com/parabase-io/parabase/internal/crypto"
	"github.com/parabase-io/parabase/internal/db"
	"github.com/parabase-io/parabase/internal/metrics"
	"github.com/parabase-io/parabase/internal/settings"
)

// contextKey is an unexported type for context keys defined in this package.
type contextKey int

const (
	contextKeyProject contextKey = iota
	contextKeyUser
)

// sessionCookie is the name of the admin session cookie.
const sessionCookie = "parabase_session"

// RequireAPIKey validates the x-api-key header and stores the resolved
// project context. Missing and unknown keys are indistinguishable to the
// client.
func RequireAPIKey(keys *apikey.Service, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			plaintext := r.Header.Get("x-api-key")
			if plaintext == "" {
				Fail(w, logger, apperr.Unauthorized("api key required"))
				return
			}

			pc, err := keys.Validate(r.Context(), plaintext)
			if err != nil {
				Fail(w, logger, err)
				return
			}
			if pc == nil {
				Fail(w, logger, apperr.Unauthorized("invalid api key"))
				return
			}

			ctx := context.WithValue(r.Context(), contextKeyProject, pc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSecretKey allows only secret-tier keys through. Must run after
// RequireAPIKey.
func RequireSecretKey(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pc := projectFromCtx(r.Context())
			if pc == nil {
				Fail(w, logger, apperr.Unauthorized("api key required"))
				return
			}
			if pc.KeyType != crypto.KeyTypeSecret {
				Fail(w, logger, apperr.Forbidden("this endpoint requires a secret key"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AuthenticateSession validates the admin session carried in the session
// cookie or an Authorization bearer token, and stores the user.
func AuthenticateSession(sessions *auth.Service, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := sessionToken(r)
			if token == "" {
				Fail(w, logger, apperr.Unauthorized("authentication required"))
				return
			}

			user, err := sessions.Authenticate(r.Context(), token)
			if err != nil {
				Fail(w, logger, err)
				return
			}

			ctx := context.WithValue(r.Context(), contextKeyUser, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin allows only users with the admin role through. Must run after
// AuthenticateSession.
func RequireAdmin(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := userFromCtx(r.Context())
			if user == nil {
				Fail(w, logger, apperr.Unauthorized("authentication required"))
				return
			}
			if user.Role != "admin" {
				Fail(w, logger, apperr.Forbidden("administrator role required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// sessionToken extracts the session token from the cookie or, failing that,
// a Bearer header (used by API clients of the admin surface).
func sessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := r.Header.Get("Authorization")
	if parts := strings.SplitN(header, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}

// RequestLogger logs each request and feeds the Prometheus instruments.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			elapsed := time.Since(start)

			route := chi.RouteContext(r.Context()).RoutePattern()
			metrics.ObserveRequest(route, r.Method, ww.Status(), elapsed)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", elapsed),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}

// rateLimiter is a fixed-window counter keyed per client. Limits come from
// the runtime settings snapshot so admin changes apply immediately.
type rateLimiter struct {
	settings *settings.Service

	mu      sync.Mutex
	windows map[string]*rateWindow
}

type rateWindow struct {
	start time.Time
	count int
}

// RateLimit enforces the runtime-configured request budget per API key (or
// client IP for unauthenticated traffic).
func RateLimit(svc *settings.Service, logger *zap.Logger) func(http.Handler) http.Handler {
	rl := &rateLimiter{settings: svc, windows: make(map[string]*rateWindow)}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("x-api-key")
			if key == "" {
				key = r.RemoteAddr
			}
			if !rl.allow(key) {
				Fail(w, logger, apperr.New(apperr.KindTooManyRequests, "rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *rateLimiter) allow(key string) bool {
	snap := rl.settings.Current()
	window := time.Duration(snap.RateLimitWindowMs) * time.Millisecond
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	wnd, ok := rl.windows[key]
	if !ok || now.Sub(wnd.start) >= window {
		// Piggyback stale-entry eviction on window rollover.
		if len(rl.windows) > 10000 {
			for k, v := range rl.windows {
				if now.Sub(v.start) >= window {
					delete(rl.windows, k)
				}
			}
		}
		rl.windows[key] = &rateWindow{start: now, count: 1}
		return true
	}
	if wnd.count >= snap.RateLimitMax {
		return false
	}
	wnd.count++
	return true
}

// projectFromCtx retrieves the project context stored by RequireAPIKey.
func projectFromCtx(ctx context.Context) *apikey.ProjectContext {
	pc, _ := ctx.Value(contextKeyProject).(*apikey.ProjectContext)
	return pc
}

// userFromCtx retrieves the admin user stored by AuthenticateSession.
func userFromCtx(ctx context.Context) *db.User {
	user, _ := ctx.Value(contextKeyUser).(*db.User)
	return user
}
