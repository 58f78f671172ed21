package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/satymtripathi/microbiology/pkg/logger"
	"github.com/satymtripathi/microbiology/pkg/types"
)

// LoginThrottle limits PIN attempts per client address with a token bucket
// per address
type LoginThrottle struct {
	buckets    map[string]*bucket
	bucketsMux sync.RWMutex
	limit      int
	period     time.Duration
	now        func() time.Time
	logger     *logger.Logger
}

type bucket struct {
	tokens     int
	lastRefill time.Time
	mutex      sync.Mutex
}

// NewLoginThrottle allows limit attempts per period for each address
func NewLoginThrottle(limit int, period time.Duration, log *logger.Logger) *LoginThrottle {
	return &LoginThrottle{
		buckets: make(map[string]*bucket),
		limit:   limit,
		period:  period,
		now:     time.Now,
		logger:  log,
	}
}

// Allow takes one token from the address's bucket
func (lt *LoginThrottle) Allow(addr string) bool {
	b := lt.bucket(addr)

	b.mutex.Lock()
	defer b.mutex.Unlock()

	now := lt.now()
	elapsed := now.Sub(b.lastRefill)
	if elapsed >= lt.period {
		b.tokens = lt.limit
		b.lastRefill = now
	} else if refill := int(elapsed.Nanoseconds() * int64(lt.limit) / lt.period.Nanoseconds()); refill > 0 {
		b.tokens = min(b.tokens+refill, lt.limit)
		b.lastRefill = now
	}

	if b.tokens == 0 {
		return false
	}
	b.tokens--
	return true
}

// Middleware rejects login posts from an address that is out of tokens.
// Every other request passes through untouched.
func (lt *LoginThrottle) Middleware(loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Path != loginPath {
				next.ServeHTTP(w, r)
				return
			}

			addr := clientAddr(r)
			if !lt.Allow(addr) {
				lt.logger.Security("login_throttled", "", map[string]interface{}{"client_ip": addr})
				w.Header().Set("Retry-After", "60")
				writeError(w, types.NewRateLimitError("Too many login attempts. Please wait a minute and try again."))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// StartCleanup drops idle buckets every interval until ctx is done
func (lt *LoginThrottle) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				lt.cleanup()
			}
		}
	}()
}

func (lt *LoginThrottle) cleanup() {
	lt.bucketsMux.Lock()
	defer lt.bucketsMux.Unlock()

	cutoff := lt.now().Add(-lt.period)
	for addr, b := range lt.buckets {
		b.mutex.Lock()
		if b.lastRefill.Before(cutoff) {
			delete(lt.buckets, addr)
		}
		b.mutex.Unlock()
	}
}

func (lt *LoginThrottle) bucket(addr string) *bucket {
	lt.bucketsMux.RLock()
	b, ok := lt.buckets[addr]
	lt.bucketsMux.RUnlock()
	if ok {
		return b
	}

	lt.bucketsMux.Lock()
	defer lt.bucketsMux.Unlock()

	if b, ok := lt.buckets[addr]; ok {
		return b
	}
	b = &bucket{tokens: lt.limit, lastRefill: lt.now()}
	lt.buckets[addr] = b
	return b
}

func (lt *LoginThrottle) size() int {
	lt.bucketsMux.RLock()
	defer lt.bucketsMux.RUnlock()
	return len(lt.buckets)
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
