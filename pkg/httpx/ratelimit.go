package httpx

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/treeauth/pkg/slogx"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines the rate limiting parameters.
type RateLimitConfig struct {
	// RequestsPerWindow is the number of requests allowed in the time window
	RequestsPerWindow int
	// Window is the time window for rate limiting
	Window time.Duration
	// Burst allows for temporary bursts above the rate limit
	Burst int
}

// Enabled reports whether c describes a usable limit.
func (c RateLimitConfig) Enabled() bool {
	return c.RequestsPerWindow > 0 && c.Window > 0
}

// DefaultRateLimit keeps an interactive client well under typical AM
// throttling: 60 requests per minute with a burst of 10.
var DefaultRateLimit = RateLimitConfig{
	RequestsPerWindow: 60,
	Window:            time.Minute,
	Burst:             10,
}

// ParseRateLimitFromEnv reads rate limit configuration from environment variables.
// Environment variables follow the pattern: {prefix}_RATELIMIT_{field}
// For example: TREEAUTH_RATELIMIT_REQUESTS, TREEAUTH_RATELIMIT_WINDOW_SEC, TREEAUTH_RATELIMIT_BURST
func ParseRateLimitFromEnv(prefix string, defaultConfig RateLimitConfig) RateLimitConfig {
	return parseRateLimit(os.Getenv, prefix, defaultConfig)
}

func parseRateLimit(getenv func(string) string, prefix string, config RateLimitConfig) RateLimitConfig {
	if val := getenv(prefix + "_RATELIMIT_REQUESTS"); val != "" {
		if requests, err := strconv.Atoi(val); err == nil && requests > 0 {
			config.RequestsPerWindow = requests
		}
	}

	if val := getenv(prefix + "_RATELIMIT_WINDOW_SEC"); val != "" {
		if windowSec, err := strconv.Atoi(val); err == nil && windowSec > 0 {
			config.Window = time.Duration(windowSec) * time.Second
		}
	}

	if val := getenv(prefix + "_RATELIMIT_BURST"); val != "" {
		if burst, err := strconv.Atoi(val); err == nil && burst > 0 {
			config.Burst = burst
		}
	}

	return config
}

// KeyExtractor groups requests that share a limiter.
type KeyExtractor func(*http.Request) string

// HostKeyExtractor limits per target host.
func HostKeyExtractor(r *http.Request) string {
	return r.URL.Host
}

// ActionKeyExtractor limits per SDK action, falling back to the method.
func ActionKeyExtractor(r *http.Request) string {
	if a := ActionFrom(r.Context()); a != "" {
		return string(a)
	}
	return r.Method
}

// CompositeKeyExtractor combines multiple key extractors with a separator.
func CompositeKeyExtractor(sep string, extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) string {
		var parts []string
		for _, extractor := range extractors {
			if key := extractor(r); key != "" {
				parts = append(parts, key)
			}
		}
		return strings.Join(parts, sep)
	}
}

// rateLimiter manages rate limiters for different keys
type rateLimiter struct {
	limiters sync.Map // map[string]*rate.Limiter
	rate     rate.Limit
	burst    int

	mu          sync.Mutex
	lastCleanup time.Time
}

// getLimiter retrieves or creates a rate limiter for the given key
func (rl *rateLimiter) getLimiter(key string) *rate.Limiter {
	if limiter, ok := rl.limiters.Load(key); ok {
		return limiter.(*rate.Limiter)
	}

	limiter := rate.NewLimiter(rl.rate, rl.burst)
	actual, _ := rl.limiters.LoadOrStore(key, limiter)

	rl.maybeCleanup()

	return actual.(*rate.Limiter)
}

// maybeCleanup drops limiters whose bucket is full, i.e. idle keys.
func (rl *rateLimiter) maybeCleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if time.Since(rl.lastCleanup) < 5*time.Minute {
		return
	}
	rl.lastCleanup = time.Now()

	rl.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(rl.burst) {
			rl.limiters.Delete(key)
		}
		return true
	})
}

// RateLimit delays outbound requests so each key stays within config.
// Unlike a server-side limiter it never rejects: it waits for a token and
// only fails when the request context ends first.
func RateLimit(config RateLimitConfig, keyExtractor KeyExtractor) Middleware {
	if !config.Enabled() {
		return nil
	}
	if keyExtractor == nil {
		keyExtractor = HostKeyExtractor
	}

	burst := max(config.Burst, 1)
	rl := &rateLimiter{
		rate:        rate.Limit(float64(config.RequestsPerWindow) / config.Window.Seconds()),
		burst:       burst,
		lastCleanup: time.Now(),
	}

	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			key := keyExtractor(r)
			limiter := rl.getLimiter(key)

			if !limiter.Allow() {
				slogx.FromContext(r.Context()).Debug("rate limit: waiting for token", "key", key)
				if err := limiter.Wait(r.Context()); err != nil {
					return nil, err
				}
			}
			return next.RoundTrip(r)
		})
	}
}
