package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"crypto-portfolio-monitor/internal/alert"
	"crypto-portfolio-monitor/internal/ratelimit"
	"crypto-portfolio-monitor/internal/status"
	"crypto-portfolio-monitor/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Store is the read side of persistence plus the loss settings.
type Store interface {
	PriceHistory(ctx context.Context, coinID string, since time.Time) ([]types.PriceHistoryEntry, error)
	HasPriceHistory(ctx context.Context) (bool, error)
	GetAlertSettings(ctx context.Context) (*types.AlertSettings, error)
	SaveAlertSettings(ctx context.Context, settings types.AlertSettings) error
	Ping(ctx context.Context) error
}

type PortfolioReader interface {
	Current(ctx context.Context) (*types.Portfolio, error)
}

type RateReporter interface {
	RemainingCalls() ratelimit.Remaining
}

// AdminCredentials guard the mutating routes. An empty username disables the guard.
type AdminCredentials struct {
	Username string
	Password string
}

type Config struct {
	Addr          string
	Admin         AdminCredentials
	HistoryWindow time.Duration
}

type Deps struct {
	Store     Store
	Portfolio PortfolioReader
	Alerts    *alert.Manager
	Limiter   RateReporter
	Status    *status.Tracker
	Gatherer  prometheus.Gatherer
}

// Server serves the dashboard JSON API.
type Server struct {
	cfg    Config
	deps   Deps
	now    func() time.Time
	logger *log.Entry
}

func New(cfg Config, deps Deps) *Server {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 30 * 24 * time.Hour
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{cfg: cfg, deps: deps, now: time.Now, logger: log.WithField("component", "dashboard")}
}

// Handler returns the routed gin engine.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.logRequests)

	router.GET("/", s.handleDashboard)
	router.GET("/status", s.handleStatus)
	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))
	router.GET("/chart/:coin", s.handleChart)

	api := router.Group("/api")
	api.GET("/portfolio/current", s.handleCurrentPortfolio)
	api.GET("/rate-limits", s.handleRateLimits)
	api.GET("/alerts", s.handleListAlerts)
	api.GET("/alerts/:id", s.handleGetAlert)

	admin := router.Group("/", s.adminGate()...)
	admin.GET("/admin", s.handleAdmin)
	admin.POST("/api/alerts", s.handleCreateAlert)
	admin.PUT("/api/alerts/:id", s.handleSetActive)
	admin.POST("/api/alerts/:id/toggle", s.handleToggleAlert)
	admin.DELETE("/api/alerts/:id", s.handleDeleteAlert)
	admin.PUT("/api/alert-settings", s.handleSaveSettings)

	return router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("Launching dashboard on %s", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) logRequests(c *gin.Context) {
	start := s.now()
	c.Next()
	s.logger.WithFields(log.Fields{
		"method":   c.Request.Method,
		"path":     c.Request.URL.Path,
		"status":   c.Writer.Status(),
		"duration": time.Since(start).Round(time.Millisecond),
	}).Debug("request")
}

// adminGate returns the basic auth middleware, or nothing when no admin user is set.
func (s *Server) adminGate() []gin.HandlerFunc {
	if s.cfg.Admin.Username == "" {
		return nil
	}
	accounts := gin.Accounts{s.cfg.Admin.Username: s.cfg.Admin.Password}
	return []gin.HandlerFunc{gin.BasicAuthForRealm(accounts, "admin")}
}

func writeError(c *gin.Context, code int, msg string) {
	c.AbortWithStatusJSON(code, gin.H{"error": msg})
}

func (s *Server) internalError(c *gin.Context, err error) {
	s.logger.WithError(err).Error("❌ Request failed")
	writeError(c, http.StatusInternalServerError, "internal error")
}

func pathID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid alert id %q", c.Param("id"))
	}
	return id, nil
}
