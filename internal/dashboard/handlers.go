package dashboard

import (
	"errors"
	"math"
	"net/http"
	"strings"

	"crypto-portfolio-monitor/internal/alert"
	"crypto-portfolio-monitor/internal/chart"
	"crypto-portfolio-monitor/internal/status"
	"crypto-portfolio-monitor/internal/types"
	"crypto-portfolio-monitor/lib/helpers"
	"crypto-portfolio-monitor/lib/translation"

	"github.com/gin-gonic/gin"
)

const (
	StateInitializing = "initializing"
	StateReady        = "ready"
)

type initializingResponse struct {
	State string `json:"state"`
	status.Status
}

type summary struct {
	Value         string `json:"value"`
	Invested      string `json:"invested"`
	ProfitLoss    string `json:"profit_loss"`
	ProfitLossPct string `json:"profit_loss_pct"`
	Updated       string `json:"updated"`
}

type dashboardResponse struct {
	State        string                    `json:"state"`
	Summary      summary                   `json:"summary"`
	Portfolio    *types.Portfolio          `json:"portfolio"`
	PriceHistory []types.PriceHistoryEntry `json:"price_history"`
	Status       status.Status             `json:"status"`
}

func (s *Server) initializing(c *gin.Context) {
	st := s.deps.Status.Snapshot()
	st.Message = translation.Translate(st.Message)
	c.JSON(http.StatusOK, initializingResponse{State: StateInitializing, Status: st})
}

func (s *Server) handleDashboard(c *gin.Context) {
	ctx := c.Request.Context()

	has, err := s.deps.Store.HasPriceHistory(ctx)
	if err != nil {
		s.internalError(c, err)
		return
	}
	if !has {
		s.initializing(c)
		return
	}
	p, err := s.deps.Portfolio.Current(ctx)
	if errors.Is(err, types.ErrNoPortfolio) {
		s.initializing(c)
		return
	}
	if err != nil {
		s.internalError(c, err)
		return
	}

	since := s.now().Add(-s.cfg.HistoryWindow)
	history := []types.PriceHistoryEntry{}
	for _, h := range p.Holdings {
		entries, err := s.deps.Store.PriceHistory(ctx, h.CoinID, since)
		if err != nil {
			s.internalError(c, err)
			return
		}
		history = append(history, entries...)
	}

	sign := ""
	if p.ProfitLoss > 0 {
		sign = "+"
	}
	c.JSON(http.StatusOK, dashboardResponse{
		State: StateReady,
		Summary: summary{
			Value:         helpers.FormatUSD(p.CurrentValue),
			Invested:      helpers.FormatUSD(p.InitialInvestment),
			ProfitLoss:    sign + helpers.FormatUSD(p.ProfitLoss),
			ProfitLossPct: helpers.FormatPercentage(p.ProfitLossPct),
			Updated:       helpers.FormatAge(p.UpdatedAt),
		},
		Portfolio:    p,
		PriceHistory: history,
		Status:       s.deps.Status.Snapshot(),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	st := s.deps.Status.Snapshot()
	st.Message = translation.Translate(st.Message)
	c.JSON(http.StatusOK, st)
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.deps.Store.Ping(c.Request.Context()); err != nil {
		writeError(c, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	c.String(http.StatusOK, "OK")
}

func (s *Server) handleCurrentPortfolio(c *gin.Context) {
	p, err := s.deps.Portfolio.Current(c.Request.Context())
	if errors.Is(err, types.ErrNoPortfolio) {
		writeError(c, http.StatusNotFound, "No portfolio found")
		return
	}
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type rateLimitsResponse struct {
	MinuteRemaining int    `json:"minute_remaining"`
	MonthRemaining  int    `json:"month_remaining"`
	MinuteUsed      int    `json:"minute_used"`
	MonthUsed       int    `json:"month_used"`
	Summary         string `json:"summary"`
}

func (s *Server) handleRateLimits(c *gin.Context) {
	rem := s.deps.Limiter.RemainingCalls()
	c.JSON(http.StatusOK, rateLimitsResponse{
		MinuteRemaining: rem.MinuteRemaining,
		MonthRemaining:  rem.MonthRemaining,
		MinuteUsed:      rem.MinuteUsed,
		MonthUsed:       rem.MonthUsed,
		Summary: helpers.FormatCount(rem.MinuteRemaining) + " this minute, " +
			helpers.FormatCount(rem.MonthRemaining) + " this month",
	})
}

func (s *Server) handleListAlerts(c *gin.Context) {
	alerts, err := s.deps.Alerts.List(c.Request.Context())
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, alerts)
}

func (s *Server) handleCreateAlert(c *gin.Context) {
	var req alert.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid JSON body")
		return
	}
	a, err := s.deps.Alerts.Create(c.Request.Context(), req)
	switch {
	case isValidationError(err):
		writeError(c, http.StatusBadRequest, err.Error())
	case err != nil:
		s.internalError(c, err)
	default:
		c.JSON(http.StatusCreated, a)
	}
}

func (s *Server) handleToggleAlert(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	a, err := s.deps.Alerts.Toggle(c.Request.Context(), id)
	switch {
	case errors.Is(err, types.ErrNotFound):
		writeError(c, http.StatusNotFound, "alert not found")
	case err != nil:
		s.internalError(c, err)
	default:
		c.JSON(http.StatusOK, a)
	}
}

func (s *Server) handleGetAlert(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	a, err := s.deps.Alerts.Get(c.Request.Context(), id)
	switch {
	case errors.Is(err, types.ErrNotFound):
		writeError(c, http.StatusNotFound, "alert not found")
	case err != nil:
		s.internalError(c, err)
	default:
		c.JSON(http.StatusOK, a)
	}
}

type activeRequest struct {
	IsActive *bool `json:"is_active"`
}

func (s *Server) handleSetActive(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	var req activeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.IsActive == nil {
		writeError(c, http.StatusBadRequest, "is_active is required")
		return
	}

	ctx := c.Request.Context()
	if err := s.deps.Alerts.SetActive(ctx, id, *req.IsActive); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			writeError(c, http.StatusNotFound, "alert not found")
			return
		}
		s.internalError(c, err)
		return
	}
	a, err := s.deps.Alerts.Get(ctx, id)
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) handleDeleteAlert(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	err = s.deps.Alerts.Delete(c.Request.Context(), id)
	switch {
	case errors.Is(err, types.ErrNotFound):
		writeError(c, http.StatusNotFound, "alert not found")
	case err != nil:
		s.internalError(c, err)
	default:
		c.Status(http.StatusNoContent)
	}
}

type adminResponse struct {
	Alerts         []types.Alert        `json:"alerts"`
	AvailableCoins []string             `json:"available_coins"`
	Settings       *types.AlertSettings `json:"settings,omitempty"`
}

func (s *Server) handleAdmin(c *gin.Context) {
	ctx := c.Request.Context()
	alerts, err := s.deps.Alerts.List(ctx)
	if err != nil {
		s.internalError(c, err)
		return
	}
	resp := adminResponse{Alerts: alerts, AvailableCoins: []string{}}

	p, err := s.deps.Portfolio.Current(ctx)
	if err != nil && !errors.Is(err, types.ErrNoPortfolio) {
		s.internalError(c, err)
		return
	}
	if p != nil {
		for _, h := range p.Holdings {
			resp.AvailableCoins = append(resp.AvailableCoins, h.CoinID)
		}
	}

	settings, err := s.deps.Store.GetAlertSettings(ctx)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		s.internalError(c, err)
		return
	}
	resp.Settings = settings
	c.JSON(http.StatusOK, resp)
}

type settingsRequest struct {
	Target        string  `json:"target"`
	LossThreshold float64 `json:"loss_threshold"`
}

func (s *Server) handleSaveSettings(c *gin.Context) {
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Target = strings.TrimSpace(req.Target)
	if req.Target == "" {
		writeError(c, http.StatusBadRequest, alert.ErrInvalidTarget.Error())
		return
	}
	if math.IsNaN(req.LossThreshold) || math.IsInf(req.LossThreshold, 0) {
		writeError(c, http.StatusBadRequest, "loss threshold must be a number")
		return
	}

	settings := types.AlertSettings{Target: req.Target, LossThreshold: req.LossThreshold, UpdatedAt: s.now().UTC()}
	if err := s.deps.Store.SaveAlertSettings(c.Request.Context(), settings); err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, map[string]string{"message": "Alert settings updated successfully"})
}

func (s *Server) handleChart(c *gin.Context) {
	coin := strings.ToLower(c.Param("coin"))
	entries, err := s.deps.Store.PriceHistory(c.Request.Context(), coin, s.now().Add(-s.cfg.HistoryWindow))
	if err != nil {
		s.internalError(c, err)
		return
	}
	points := make([]types.PricePoint, len(entries))
	for i, e := range entries {
		points[i] = types.PricePoint{Timestamp: e.Timestamp, Price: e.Price}
	}

	png, err := chart.Render(coin, points)
	if errors.Is(err, chart.ErrNotEnoughPoints) {
		writeError(c, http.StatusNotFound, "not enough price history for "+coin)
		return
	}
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.Header("Cache-Control", "max-age=300")
	c.Data(http.StatusOK, "image/png", png)
}

func isValidationError(err error) bool {
	return errors.Is(err, alert.ErrInvalidAlertType) ||
		errors.Is(err, alert.ErrInvalidThreshold) ||
		errors.Is(err, alert.ErrInvalidCoin) ||
		errors.Is(err, alert.ErrInvalidTarget)
}
