package alert

import (
	"context"
	"errors"
	"strings"
	"time"

	"crypto-portfolio-monitor/internal/types"
)

var (
	ErrInvalidAlertType = errors.New("alert type must be above or below")
	ErrInvalidThreshold = errors.New("price threshold must be a positive number")
	ErrInvalidCoin      = errors.New("coin id is required")
	ErrInvalidTarget    = errors.New("notification target is required")
)

// Repository is the persistence used by the management surface.
type Repository interface {
	InsertAlert(ctx context.Context, alert *types.Alert) error
	GetAlert(ctx context.Context, id int64) (*types.Alert, error)
	ListAlerts(ctx context.Context) ([]types.Alert, error)
	SetAlertActive(ctx context.Context, id int64, active bool) error
	DeleteAlert(ctx context.Context, id int64) error
}

// CreateRequest holds the user supplied fields of a new alert.
type CreateRequest struct {
	CoinID         string          `json:"coin_id"`
	AlertType      types.AlertType `json:"alert_type"`
	PriceThreshold float64         `json:"price_threshold"`
	Target         string          `json:"target"`
}

// Manager creates, toggles, lists and deletes alerts.
type Manager struct {
	repo Repository
	now  func() time.Time
}

func NewManager(repo Repository) *Manager {
	return &Manager{repo: repo, now: time.Now}
}

func (m *Manager) Create(ctx context.Context, req CreateRequest) (*types.Alert, error) {
	coin := strings.ToLower(strings.TrimSpace(req.CoinID))
	if coin == "" {
		return nil, ErrInvalidCoin
	}
	alertType := types.AlertType(strings.ToLower(strings.TrimSpace(string(req.AlertType))))
	if !alertType.Valid() {
		return nil, ErrInvalidAlertType
	}
	if !validThreshold(req.PriceThreshold) {
		return nil, ErrInvalidThreshold
	}
	target := strings.TrimSpace(req.Target)
	if target == "" {
		return nil, ErrInvalidTarget
	}

	a := &types.Alert{
		CoinID:         coin,
		AlertType:      alertType,
		PriceThreshold: req.PriceThreshold,
		Target:         target,
		IsActive:       true,
		CreatedAt:      m.now().UTC(),
	}
	if err := m.repo.InsertAlert(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Toggle flips is_active and returns the updated alert.
func (m *Manager) Toggle(ctx context.Context, id int64) (*types.Alert, error) {
	a, err := m.repo.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := m.repo.SetAlertActive(ctx, id, !a.IsActive); err != nil {
		return nil, err
	}
	a.IsActive = !a.IsActive
	return a, nil
}

func (m *Manager) SetActive(ctx context.Context, id int64, active bool) error {
	return m.repo.SetAlertActive(ctx, id, active)
}

func (m *Manager) Delete(ctx context.Context, id int64) error {
	return m.repo.DeleteAlert(ctx, id)
}

func (m *Manager) List(ctx context.Context) ([]types.Alert, error) {
	alerts, err := m.repo.ListAlerts(ctx)
	if err != nil {
		return nil, err
	}
	if alerts == nil {
		alerts = []types.Alert{}
	}
	return alerts, nil
}

func (m *Manager) Get(ctx context.Context, id int64) (*types.Alert, error) {
	return m.repo.GetAlert(ctx, id)
}
