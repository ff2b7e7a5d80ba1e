// Package api exposes the session and attendance services over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"attendo/internal/attendance"
	"attendo/internal/auth"
	"attendo/internal/config"
	"attendo/internal/geo"
	"attendo/internal/httpmiddleware"
	"attendo/internal/logging"
	"attendo/internal/store"
)

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	cfg      config.Auth
	kv       store.KV
	dir      *auth.Directory
	svc      *attendance.Service
	auditor  *attendance.Auditor
	limiter  *httpmiddleware.RateLimiter
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	origins  []string
	hsts     bool
}

// Deps groups what NewServer needs.
type Deps struct {
	Auth      config.Auth
	KV        store.KV
	Directory *auth.Directory
	Service   *attendance.Service
	Auditor   *attendance.Auditor
	Limiter   *httpmiddleware.RateLimiter
	Gatherer  prometheus.Gatherer
	Logger    *zap.Logger
	// CORSOrigins are the browser origins admitted by the CORS middleware.
	CORSOrigins []string
	// HSTS sends Strict-Transport-Security; set it when served over TLS.
	HSTS bool
}

// NewServer builds a Server. A nil Gatherer serves the default Prometheus registry.
func NewServer(d Deps) *Server {
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		cfg:      d.Auth,
		kv:       d.KV,
		dir:      d.Directory,
		svc:      d.Service,
		auditor:  d.Auditor,
		limiter:  d.Limiter,
		gatherer: d.Gatherer,
		logger:   logging.OrNop(d.Logger),
		origins:  d.CORSOrigins,
		hsts:     d.HSTS,
	}
}

// Router wires middleware and routes.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger("/healthz", "/metrics"))
	r.Use(httpmiddleware.CORS(s.origins))
	r.Use(httpmiddleware.SecurityHeaders(s.hsts))
	if s.limiter != nil {
		r.Use(s.limiter.GinMiddleware())
	}

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	r.GET("/healthz", s.health)

	v1 := r.Group("/v1")
	v1.POST("/auth/register", s.register)
	v1.POST("/auth/login", s.login)
	v1.POST("/auth/refresh", s.refresh)

	authed := v1.Group("", auth.BearerAuth(s.dir, s.cfg.JWTSigningKey, s.cfg.JWTIssuer))
	authed.GET("/me", s.me)
	authed.POST("/attendance", s.mark)
	authed.GET("/attendance", s.records)
	authed.GET("/attendance/today", s.today)
	authed.GET("/attendance/stats", s.stats)

	admin := authed.Group("/admin", auth.RequireRole(auth.RoleAdmin))
	admin.GET("/identities", s.identities)
	admin.GET("/audit", s.audit)
	admin.GET("/audit/days", s.auditDays)

	return r
}

func (s *Server) requestLogger(skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if _, ok := skipped[c.Request.URL.Path]; ok {
			return
		}
		s.logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	storeHealthy := s.kv.Ping(ctx) == nil
	status := http.StatusOK
	if !storeHealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"status": http.StatusText(status), "store": storeHealthy})
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidInput), errors.Is(err, attendance.ErrInvalidType):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrDuplicateIdentity):
		return http.StatusConflict
	case errors.Is(err, auth.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrInvalidCredential), errors.Is(err, attendance.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, attendance.ErrOutOfRange), errors.Is(err, errAdminSignup):
		return http.StatusForbidden
	case errors.Is(err, attendance.ErrLocationUnavailable):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		msg = "internal error"
	}
	c.JSON(status, gin.H{"error": msg})
}

// locatorFor turns client-reported coordinates into the locator for one request.
func locatorFor(lat, lon *float64, capturedAt *time.Time) geo.Locator {
	if lat == nil || lon == nil {
		return geo.Unavailable
	}
	var at time.Time
	if capturedAt != nil {
		at = *capturedAt
	}
	return geo.Reported(geo.Point{Latitude: *lat, Longitude: *lon}, at)
}
