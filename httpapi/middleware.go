package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/MrEthical07/sessionauth"
	"github.com/MrEthical07/sessionauth/middleware"
)

const (
	requestIDHeader = "X-Request-ID"
	loggerKey       = "sessionauth.logger"
)

// requestContext stamps a request id and the client IP onto the request
// context so engine logs carry them.
func requestContext(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Writer.Header().Set(requestIDHeader, reqID)

		ctx := sessionauth.WithRequestID(c.Request.Context(), reqID)
		ctx = sessionauth.WithClientIP(ctx, c.ClientIP())
		c.Request = c.Request.WithContext(ctx)
		c.Set(loggerKey, logger.With(zap.String("request_id", reqID)))

		c.Next()
	}
}

func loggerFrom(c *gin.Context) *zap.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if l, ok := v.(*zap.Logger); ok {
			return l
		}
	}
	return zap.NewNop()
}

// accessLog emits one line per request.
func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		fields := []zap.Field{
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if ua := c.Request.UserAgent(); ua != "" {
			fields = append(fields, zap.String("user_agent", ua))
		}

		log := loggerFrom(c)
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Error("request failed", append(fields, zap.String("errors", c.Errors.String()))...)
			return
		}
		log.Info("request completed", fields...)
	}
}

const principalKey = "sessionauth.principal"

// requireAuth authenticates the access token and stores the principal on
// both the gin and the request context.
func requireAuth(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := middleware.TokenFromRequest(c.Request)
		if !ok {
			RespondError(c, sessionauth.ErrUnauthorized)
			return
		}

		p, err := svc.Authenticate(c.Request.Context(), token)
		if err != nil {
			RespondError(c, err)
			return
		}

		c.Set(principalKey, p)
		c.Request = c.Request.WithContext(middleware.ContextWithPrincipal(c.Request.Context(), p))
		c.Next()
	}
}

func principal(c *gin.Context) *sessionauth.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(*sessionauth.Principal); ok {
			return p
		}
	}
	if p, ok := middleware.PrincipalFromContext(c.Request.Context()); ok {
		return p
	}
	return &sessionauth.Principal{}
}

// RateLimitOptions configures the per-IP token bucket. PerSecond <= 0
// disables it.
type RateLimitOptions struct {
	PerSecond float64
	Burst     int
	// IdleTTL is how long an idle client's bucket is kept.
	IdleTTL time.Duration
}

type ipLimiter struct {
	mu      sync.Mutex
	buckets map[string]*ipBucket
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	now     func() time.Time
	lastGC  time.Time
}

type ipBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func newIPLimiter(opts RateLimitOptions) *ipLimiter {
	if opts.PerSecond <= 0 {
		return nil
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 5 * time.Minute
	}
	return &ipLimiter{
		buckets: make(map[string]*ipBucket),
		limit:   rate.Limit(opts.PerSecond),
		burst:   opts.Burst,
		ttl:     opts.IdleTTL,
		now:     time.Now,
	}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastGC) > l.ttl {
		for k, b := range l.buckets {
			if now.Sub(b.seen) > l.ttl {
				delete(l.buckets, k)
			}
		}
		l.lastGC = now
	}

	b, ok := l.buckets[ip]
	if !ok {
		b = &ipBucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[ip] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

// handler rejects clients that exhausted their bucket with 429.
func (l *ipLimiter) handler() gin.HandlerFunc {
	if l == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		if !l.allow(ip) {
			RespondError(c, sessionauth.ErrTooManyRequests)
			return
		}
		c.Next()
	}
}
