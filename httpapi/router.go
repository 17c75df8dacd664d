package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MrEthical07/sessionauth"
)

// Options configures [NewRouter].
type Options struct {
	// BasePath prefixes every route, e.g. "/api/v1". The refresh cookie is
	// scoped to BasePath+"/auth/refresh".
	BasePath string
	// Production marks cookies Secure with SameSite=Strict. Otherwise they
	// are SameSite=Lax.
	Production bool

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	Logger *zap.Logger
	// Metrics records request collectors when set.
	Metrics *HTTPMetrics
	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler
	// RateLimit guards the unauthenticated auth and MFA routes per client IP.
	RateLimit RateLimitOptions
}

// NewRouter mounts the auth, MFA, session and user routes over svc.
func NewRouter(svc Service, opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.AccessTTL <= 0 || opts.RefreshTTL <= 0 {
		defaults := sessionauth.DefaultConfig()
		if opts.AccessTTL <= 0 {
			opts.AccessTTL = defaults.JWT.AccessTTL
		}
		if opts.RefreshTTL <= 0 {
			opts.RefreshTTL = defaults.JWT.RefreshTTL
		}
	}

	cookies := newCookieJar(opts.BasePath, opts.Production, opts.AccessTTL, opts.RefreshTTL)
	limit := newIPLimiter(opts.RateLimit).handler()
	authed := requireAuth(svc)

	r := gin.New()
	r.Use(gin.Recovery(), requestContext(opts.Logger), accessLog(), opts.Metrics.Handler())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if opts.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(opts.MetricsHandler))
	}
	r.NoRoute(func(c *gin.Context) {
		RespondError(c, sessionauth.ErrNotFound)
	})

	api := r.Group(opts.BasePath)

	auth := &authHandler{svc: svc, cookies: cookies}
	ag := api.Group("/auth")
	ag.GET("/refresh", auth.refresh)
	ag.POST("/register", limit, auth.register)
	ag.POST("/login", limit, auth.login)
	ag.POST("/verify/email", limit, auth.verifyEmail)
	ag.POST("/password/forgot", limit, auth.forgotPassword)
	ag.PUT("/password/reset", limit, auth.resetPassword)
	ag.DELETE("/logout", authed, auth.logout)

	mfa := &mfaHandler{svc: svc, cookies: cookies}
	mg := api.Group("/mfa")
	mg.GET("/setup", authed, mfa.setup)
	mg.POST("/verify", authed, mfa.verify)
	mg.POST("/verify-login", limit, mfa.verifyLogin)
	mg.PUT("/revoke", authed, mfa.revoke)

	sessions := &sessionHandler{svc: svc}
	sg := api.Group("/session", authed)
	sg.GET("/all", sessions.list)
	sg.GET("/", sessions.current)
	sg.DELETE("/:id", sessions.remove)

	api.GET("/user/current", authed, auth.currentUser)

	return r
}
