package security

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RateLimitConfig holds inbound rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	BurstSize         int           `yaml:"burst_size"`
	IdleTTL           time.Duration `yaml:"idle_ttl"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval"`
}

// Decision is the outcome of one rate limit check
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedLimiter applies one token bucket per caller key
type KeyedLimiter struct {
	config *RateLimitConfig
	logger *logrus.Logger
	now    func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor

	stopOnce sync.Once
	stop     chan struct{}
}

// NewKeyedLimiter creates a limiter and starts its idle-key sweeper
func NewKeyedLimiter(config *RateLimitConfig, logger *logrus.Logger) *KeyedLimiter {
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = 60
	}
	if config.BurstSize <= 0 {
		config.BurstSize = config.RequestsPerMinute
	}
	if config.IdleTTL == 0 {
		config.IdleTTL = 10 * time.Minute
	}
	if config.CleanupInterval == 0 {
		config.CleanupInterval = 5 * time.Minute
	}

	l := &KeyedLimiter{
		config:   config,
		logger:   logger,
		now:      time.Now,
		visitors: make(map[string]*visitor),
		stop:     make(chan struct{}),
	}
	go l.sweep()
	return l
}

// Allow consumes one token for key
func (l *KeyedLimiter) Allow(key string) Decision {
	if !l.config.Enabled {
		return Decision{Allowed: true, Limit: l.config.RequestsPerMinute, Remaining: l.config.BurstSize}
	}

	now := l.now()
	lim := l.limiterFor(key, now)

	d := Decision{Limit: l.config.RequestsPerMinute}
	res := lim.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		d.RetryAfter = delay
		l.logger.WithFields(logrus.Fields{
			"key":         key,
			"retry_after": delay,
		}).Warn("Inbound rate limit exceeded")
		return d
	}

	d.Allowed = true
	d.Remaining = int(math.Max(0, math.Floor(lim.TokensAt(now))))
	return d
}

func (l *KeyedLimiter) limiterFor(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[key]
	if !ok {
		every := rate.Every(time.Minute / time.Duration(l.config.RequestsPerMinute))
		v = &visitor{limiter: rate.NewLimiter(every, l.config.BurstSize)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter
}

// Len returns the number of tracked keys
func (l *KeyedLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

func (l *KeyedLimiter) sweep() {
	ticker := time.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.evictIdle()
		case <-l.stop:
			return
		}
	}
}

func (l *KeyedLimiter) evictIdle() {
	cutoff := l.now().Add(-l.config.IdleTTL)

	l.mu.Lock()
	removed := 0
	for key, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, key)
			removed++
		}
	}
	l.mu.Unlock()

	if removed > 0 {
		l.logger.WithField("removed_keys", removed).Debug("Rate limit cleanup completed")
	}
}

// Stop ends the sweeper goroutine
func (l *KeyedLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Middleware rejects requests over the per-caller limit with 429
func (l *KeyedLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := l.Allow(CallerKey(r))

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

			if !d.Allowed {
				secs := int(math.Ceil(d.RetryAfter.Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				writeError(w, http.StatusTooManyRequests, "rate_limit_error", "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CallerKey identifies the caller for rate limiting: the authenticated principal
// when present, else the client IP
func CallerKey(r *http.Request) string {
	if p, ok := PrincipalFrom(r.Context()); ok {
		return "principal:" + p.ID
	}
	return "ip:" + ClientIP(r)
}
