package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pribylovaa/go-forum/internal/config"
	"github.com/pribylovaa/go-forum/internal/http/apierrors"
	"github.com/pribylovaa/go-forum/internal/metrics"
	logctx "github.com/pribylovaa/go-forum/internal/pkg/log"
	"golang.org/x/time/rate"
)

// idleLimiter — сколько лимитер живёт без обращений.
const idleLimiter = 10 * time.Minute

type limiterEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

// limiterPool — token bucket на ключ (субъект или адрес клиента).
type limiterPool struct {
	mu        sync.Mutex
	m         map[string]*limiterEntry
	rps       rate.Limit
	burst     int
	lastPrune time.Time
}

func newLimiterPool(cfg config.RateLimitConfig) *limiterPool {
	return &limiterPool{
		m:     make(map[string]*limiterEntry),
		rps:   rate.Limit(cfg.RPS),
		burst: cfg.Burst,
	}
}

func (p *limiterPool) allow(key string, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if now.Sub(p.lastPrune) > idleLimiter {
		for k, e := range p.m {
			if now.Sub(e.seen) > idleLimiter {
				delete(p.m, k)
			}
		}
		p.lastPrune = now
	}

	e, ok := p.m[key]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(p.rps, p.burst)}
		p.m[key] = e
	}
	e.seen = now

	return e.lim.AllowN(now, 1)
}

// RateLimit ограничивает частоту изменяющих запросов (всё, кроме GET/HEAD/OPTIONS)
// по субъекту, а для анонимных — по адресу клиента. RPS <= 0 отключает лимит.
func RateLimit(cfg config.RateLimitConfig, m *metrics.Metrics) Middleware {
	return func(next http.Handler) http.Handler {
		if cfg.RPS <= 0 {
			return next
		}

		pool := newLimiterPool(cfg)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			key := clientKey(r)
			if !pool.allow(key, time.Now()) {
				m.RateLimited()
				logctx.From(r.Context()).Warn("rate limited", "key", key)
				w.Header().Set("Retry-After", "1")
				apierrors.WriteError(w, r, apierrors.ErrRateLimited)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	if p, ok := PrincipalFrom(r.Context()); ok {
		return "user:" + p.ID
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}

	return "ip:" + host
}
