package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"crypto-portfolio-monitor/internal/types"
)

const alertColumns = `id, coin_id, alert_type, price_threshold, target, is_active, last_triggered, created_at`

// InsertAlert saves a new alert and fills in its id.
func (s *Store) InsertAlert(ctx context.Context, alert *types.Alert) error {
	query := `
	INSERT INTO alerts (coin_id, alert_type, price_threshold, target, is_active, last_triggered, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?);`

	res, err := s.DB.ExecContext(ctx, query,
		alert.CoinID, string(alert.AlertType), alert.PriceThreshold, alert.Target,
		alert.IsActive, nullNanos(alert.LastTriggered), toNanos(alert.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read alert id: %w", err)
	}
	alert.ID = id
	return nil
}

// GetAlert fetches a single alert by id.
func (s *Store) GetAlert(ctx context.Context, id int64) (*types.Alert, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ?;`, id)
	alert, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert %d: %w", id, err)
	}
	return alert, nil
}

// ListAlerts fetches every alert, oldest first.
func (s *Store) ListAlerts(ctx context.Context) ([]types.Alert, error) {
	return s.queryAlerts(ctx, `SELECT `+alertColumns+` FROM alerts ORDER BY id;`)
}

// ListActiveAlerts fetches alerts with is_active set.
func (s *Store) ListActiveAlerts(ctx context.Context) ([]types.Alert, error) {
	return s.queryAlerts(ctx, `SELECT `+alertColumns+` FROM alerts WHERE is_active = 1 ORDER BY id;`)
}

// SetAlertActive flips an alert on or off without touching anything else.
func (s *Store) SetAlertActive(ctx context.Context, id int64, active bool) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE alerts SET is_active = ? WHERE id = ?;`, active, id)
	if err != nil {
		return fmt.Errorf("failed to update alert %d: %w", id, err)
	}
	return expectRow(res)
}

// UpdateAlertTriggered records when an alert last fired.
func (s *Store) UpdateAlertTriggered(ctx context.Context, id int64, at time.Time) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE alerts SET last_triggered = ? WHERE id = ?;`, toNanos(at), id)
	if err != nil {
		return fmt.Errorf("failed to update trigger time of alert %d: %w", id, err)
	}
	return expectRow(res)
}

// DeleteAlert removes an alert.
func (s *Store) DeleteAlert(ctx context.Context, id int64) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM alerts WHERE id = ?;`, id)
	if err != nil {
		return fmt.Errorf("failed to delete alert: %w", err)
	}
	return expectRow(res)
}

func (s *Store) queryAlerts(ctx context.Context, query string, args ...interface{}) ([]types.Alert, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []types.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		alerts = append(alerts, *alert)
	}
	return alerts, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row scanner) (*types.Alert, error) {
	var (
		alert         types.Alert
		alertType     string
		lastTriggered sql.NullInt64
		createdAt     int64
	)
	if err := row.Scan(&alert.ID, &alert.CoinID, &alertType, &alert.PriceThreshold, &alert.Target,
		&alert.IsActive, &lastTriggered, &createdAt); err != nil {
		return nil, err
	}
	alert.AlertType = types.AlertType(alertType)
	alert.LastTriggered = fromNullNanos(lastTriggered)
	alert.CreatedAt = fromNanos(createdAt)
	return &alert, nil
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return types.ErrNotFound
	}
	return nil
}
