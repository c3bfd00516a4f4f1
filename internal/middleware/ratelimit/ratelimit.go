package ratelimit

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client key.
type RateLimiter struct {
	clients       map[string]*client
	mu            sync.Mutex
	limit         rate.Limit
	burst         int
	logger        *zap.Logger
	cleanupTicker *time.Ticker
	done          chan struct{}
}

type Config struct {
	MaxRequestsPerMinute int
	Logger               *zap.Logger
}

func New(cfg Config) *RateLimiter {
	if cfg.MaxRequestsPerMinute <= 0 {
		cfg.MaxRequestsPerMinute = 60
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	rl := &RateLimiter{
		clients:       make(map[string]*client),
		limit:         rate.Every(time.Minute / time.Duration(cfg.MaxRequestsPerMinute)),
		burst:         cfg.MaxRequestsPerMinute,
		logger:        cfg.Logger,
		cleanupTicker: time.NewTicker(5 * time.Minute),
		done:          make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

// ErrorMessage is the reply to a client over its limit.
const ErrorMessage = "Rate limit exceeded. Please try again later."

// ClientKey identifies the caller: the X-Client-ID header when present,
// otherwise the remote IP.
func ClientKey(c *fiber.Ctx) string {
	if clientID := c.Get("X-Client-ID"); clientID != "" {
		return clientID
	}
	return c.IP()
}

func (rl *RateLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := ClientKey(c)

		if !rl.Allow(key) {
			rl.logger.Warn("Rate limit exceeded",
				zap.String("key", key),
				zap.String("ip", c.IP()),
				zap.String("path", c.Path()),
			)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success":   false,
				"error":     ErrorMessage,
				"timestamp": time.Now().Format(time.RFC3339Nano),
			})
		}

		return c.Next()
	}
}

// Allow takes one token from the bucket for key.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	cl, ok := rl.clients[key]
	if !ok {
		cl = &client{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[key] = cl
	}
	cl.lastSeen = time.Now()
	rl.mu.Unlock()

	return cl.limiter.Allow()
}

func (rl *RateLimiter) cleanup() {
	for {
		select {
		case <-rl.done:
			return
		case now := <-rl.cleanupTicker.C:
			rl.mu.Lock()
			for key, cl := range rl.clients {
				if now.Sub(cl.lastSeen) > 10*time.Minute {
					delete(rl.clients, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

func (rl *RateLimiter) Stop() {
	rl.cleanupTicker.Stop()
	close(rl.done)
}
