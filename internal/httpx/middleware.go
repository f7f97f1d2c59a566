package httpx

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"clocktick/internal/storage"
	clocktick "clocktick/pkg/clocktick"
	logx "clocktick/pkg/logx"
)

// RateLimit returns a per-client-IP token bucket middleware. ratePerSec <= 0
// disables limiting (nil middleware).
func RateLimit(ratePerSec float64, burst int, log logx.Logger) func(http.Handler) http.Handler {
	if ratePerSec <= 0 {
		return nil
	}
	if burst < 1 {
		burst = int(ratePerSec)
		if burst < 1 {
			burst = 1
		}
	}

	var mu sync.Mutex
	type client struct {
		lim  *rate.Limiter
		seen time.Time
	}
	clients := map[string]*client{}

	lookup := func(ip string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		c, ok := clients[ip]
		if !ok {
			c = &client{lim: rate.NewLimiter(rate.Limit(ratePerSec), burst)}
			clients[ip] = c
		}
		c.seen = time.Now()
		// Evict idle clients so the map stays bounded.
		if len(clients) > 1024 {
			cutoff := time.Now().Add(-10 * time.Minute)
			for k, v := range clients {
				if v.seen.Before(cutoff) {
					delete(clients, k)
				}
			}
		}
		return c.lim
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			if !lookup(ip).Allow() {
				log.Warn("webhook rate limited", logx.String("ip", ip))
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// dedupWindow is how long a delivered callback's signature stays suppressed.
// Comfortably beyond the signature freshness window, after which replays are
// rejected anyway.
const dedupWindow = 10 * time.Minute

// Dedup suppresses webhook replays: the service signs each delivery, so an
// identical signature within the window means an at-least-once redelivery of
// a callback we already answered. Those come back as 204 without
// re-dispatching. A nil store disables the middleware.
func Dedup(store storage.Store, log logx.Logger) func(http.Handler) http.Handler {
	if store == nil {
		return nil
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(clocktick.HeaderSignature)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if until, ok, err := store.GetDedup(r.Context(), key); err == nil && ok && time.Now().Before(until) {
				log.Debug("duplicate callback suppressed")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			// Only successfully dispatched callbacks are suppressed on
			// replay; failures may legitimately be retried.
			if rec.status() == http.StatusNoContent {
				if err := store.PutDedup(r.Context(), key, time.Now().Add(dedupWindow)); err != nil {
					log.Debug("dedup record failed", logx.Err(err))
				}
			}
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.code == 0 {
		r.code = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.code == 0 {
		r.code = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) status() int {
	if r.code == 0 {
		return http.StatusOK
	}
	return r.code
}
