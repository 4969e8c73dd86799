package httpapi

import (
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/DoyleJ11/abluka/internal/hub"
	"github.com/DoyleJ11/abluka/internal/ws"
)

type Options struct {
	Logger *zap.Logger
	// CreateRate and CreateBurst bound session creation per client IP.
	CreateRate  rate.Limit
	CreateBurst int
}

func SetupRoutes(h *hub.Hub, opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.CreateRate == 0 {
		opts.CreateRate = 1
	}
	if opts.CreateBurst == 0 {
		opts.CreateBurst = 3
	}
	limits := newIPLimiter(opts.CreateRate, opts.CreateBurst)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(h, log))

	r.Route("/sessions", func(r chi.Router) {
		r.With(limits.middleware).Post("/", CreateSession(h, log))
		r.Get("/{code}", GetSession(h, log))
		r.Patch("/{code}", UpdateSession(h, log))
		r.Delete("/{code}", DeleteSession(h, log))
	})
	return r
}

type ipLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	burst    int
}

func newIPLimiter(r rate.Limit, burst int) *ipLimiter {
	return &ipLimiter{limiters: make(map[string]*rate.Limiter), r: r, burst: burst}
}

func (l *ipLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[ip]
	if !ok {
		limiter = rate.NewLimiter(l.r, l.burst)
		l.limiters[ip] = limiter
	}
	return limiter
}

func (l *ipLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr // RealIP leaves a bare address
		}
		if !l.get(ip).Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit")
			return
		}
		next.ServeHTTP(w, r)
	})
}
