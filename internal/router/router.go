package router

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/telecare-api/internal/handler/appointment"
	"github.com/jwalitptl/telecare-api/internal/handler/audit"
	"github.com/jwalitptl/telecare-api/internal/handler/auth"
	"github.com/jwalitptl/telecare-api/internal/handler/clinicbooking"
	"github.com/jwalitptl/telecare-api/internal/handler/health"
	"github.com/jwalitptl/telecare-api/internal/handler/payment"
	"github.com/jwalitptl/telecare-api/internal/handler/prescription"
	"github.com/jwalitptl/telecare-api/internal/handler/prometheus"
	"github.com/jwalitptl/telecare-api/internal/handler/stats"
	"github.com/jwalitptl/telecare-api/internal/handler/user"
	"github.com/jwalitptl/telecare-api/internal/handler/video"
	"github.com/jwalitptl/telecare-api/internal/middleware"
	"github.com/jwalitptl/telecare-api/internal/model"
	"github.com/jwalitptl/telecare-api/pkg/metrics"
	"github.com/jwalitptl/telecare-api/pkg/ratelimit"
)

type Handlers struct {
	Auth          *auth.Handler
	User          *user.Handler
	Appointment   *appointment.Handler
	ClinicBooking *clinicbooking.Handler
	Prescription  *prescription.Handler
	Payment       *payment.Handler
	Video         *video.Handler
	Stats         *stats.Handler
	Audit         *audit.Handler
	Health        *health.Handler
	Prometheus    *prometheus.Handler
}

type RouterConfig struct {
	Mode           string
	RateLimit      rate.Limit
	RateBurst      int
	RateEnabled    bool
	CORSConfig     middleware.CORSConfig
	Security       middleware.SecurityConfig
	SizeLimit      middleware.SizeLimitConfig
	RequestTimeout time.Duration
	TrustedProxies []string

	// AuthLimiter guards the public auth endpoints per client address,
	// PaymentLimiter guards checkout creation per user.
	AuthLimiter    *ratelimit.SlidingWindow
	PaymentLimiter *ratelimit.SlidingWindow
}

type Router struct {
	engine  *gin.Engine
	auth    *middleware.AuthMiddleware
	h       Handlers
	metrics *metrics.Metrics
	config  RouterConfig
}

func NewRouter(auth *middleware.AuthMiddleware, h Handlers, m *metrics.Metrics, config RouterConfig) (*Router, error) {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}

	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	// nil trusts no proxy, so ClientIP is the peer address
	if err := engine.SetTrustedProxies(config.TrustedProxies); err != nil {
		return nil, fmt.Errorf("failed to set trusted proxies: %w", err)
	}

	r := &Router{
		engine:  engine,
		auth:    auth,
		h:       h,
		metrics: m,
		config:  config,
	}

	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		middleware.ErrorHandler(),
	)
	if h.Prometheus != nil {
		engine.Use(h.Prometheus.Middleware())
	}
	engine.Use(
		middleware.SecurityHeaders(config.Security),
		middleware.CORS(config.CORSConfig),
	)

	if config.RateEnabled {
		limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		}, m)
		engine.Use(limiter.RateLimit())
	}

	engine.Use(
		middleware.SizeLimit(config.SizeLimit),
		middleware.Timeout(config.RequestTimeout),
		middleware.AuditClient(),
	)

	return r, nil
}

func (r *Router) Setup() {
	api := r.engine.Group("/api/v1")

	r.setupHealthCheck(api)
	r.setupPublicRoutes(api)

	protected := api.Group("")
	protected.Use(r.auth.Authenticate())
	r.setupProtectedRoutes(protected)

	admin := protected.Group("/admin")
	admin.Use(r.auth.RequireRoles(model.RoleAdmin))
	r.setupAdminRoutes(admin)
}

func (r *Router) setupHealthCheck(rg *gin.RouterGroup) {
	r.h.Health.RegisterRoutes(rg)
	if r.h.Prometheus != nil {
		rg.GET("/health/metrics", r.h.Prometheus.Handler())
	}
}

func (r *Router) setupPublicRoutes(rg *gin.RouterGroup) {
	r.h.Auth.RegisterRoutes(rg, r.limit(r.config.AuthLimiter, "auth", middleware.KeyByIP))
	r.h.Payment.RegisterWebhooks(rg)
}

func (r *Router) setupProtectedRoutes(rg *gin.RouterGroup) {
	rg.POST("/auth/logout", r.h.Auth.Logout)

	r.h.User.RegisterRoutes(rg)
	r.h.Appointment.RegisterRoutes(rg, r.auth)
	r.h.ClinicBooking.RegisterRoutes(rg, r.auth)
	r.h.Prescription.RegisterRoutes(rg, r.auth)
	r.h.Payment.RegisterRoutes(rg, r.auth, r.limit(r.config.PaymentLimiter, "payment", middleware.KeyByUser))
	r.h.Video.RegisterRoutes(rg)
	r.h.Stats.RegisterRoutes(rg, r.auth)
}

func (r *Router) setupAdminRoutes(rg *gin.RouterGroup) {
	r.h.User.RegisterAdminRoutes(rg)
	r.h.Audit.RegisterRoutes(rg)
}

// limit returns a pass-through handler when the limiter is disabled.
func (r *Router) limit(l *ratelimit.SlidingWindow, name string, key middleware.KeyFunc) gin.HandlerFunc {
	if l == nil || !r.config.RateEnabled {
		return func(c *gin.Context) { c.Next() }
	}
	return middleware.SlidingWindowRateLimit(l, name, key, r.metrics)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
