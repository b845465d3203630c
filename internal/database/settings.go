package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"crypto-portfolio-monitor/internal/types"
)

// GetAlertSettings returns the portfolio loss settings, or types.ErrNotFound.
func (s *Store) GetAlertSettings(ctx context.Context) (*types.AlertSettings, error) {
	var (
		settings     types.AlertSettings
		lastNotified sql.NullInt64
		updatedAt    int64
	)
	err := s.DB.QueryRowContext(ctx,
		`SELECT target, loss_threshold, last_notified, updated_at FROM alert_settings WHERE id = 1;`).
		Scan(&settings.Target, &settings.LossThreshold, &lastNotified, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert settings: %w", err)
	}
	settings.LastNotified = fromNullNanos(lastNotified)
	settings.UpdatedAt = fromNanos(updatedAt)
	return &settings, nil
}

// SaveAlertSettings creates or replaces the loss settings. Changing them resets
// last_notified so the new threshold is checked right away.
func (s *Store) SaveAlertSettings(ctx context.Context, settings types.AlertSettings) error {
	_, err := s.DB.ExecContext(ctx, `
	INSERT INTO alert_settings (id, target, loss_threshold, last_notified, updated_at)
	VALUES (1, ?, ?, NULL, ?)
	ON CONFLICT (id) DO UPDATE SET
		target = excluded.target,
		loss_threshold = excluded.loss_threshold,
		last_notified = NULL,
		updated_at = excluded.updated_at;`,
		settings.Target, settings.LossThreshold, toNanos(settings.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save alert settings: %w", err)
	}
	return nil
}

// MarkLossNotified stamps the last time the loss notification was sent.
func (s *Store) MarkLossNotified(ctx context.Context, at time.Time) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE alert_settings SET last_notified = ? WHERE id = 1;`, toNanos(at))
	if err != nil {
		return fmt.Errorf("failed to update alert settings: %w", err)
	}
	return expectRow(res)
}
