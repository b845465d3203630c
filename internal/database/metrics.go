package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SaveMetric stores a metric value. Unlabeled metrics use empty label strings.
func (s *Store) SaveMetric(ctx context.Context, metricName, labelKey, labelValue string, value float64) error {
	query := `
	INSERT OR REPLACE INTO metrics (metric_name, label_key, label_value, metric_value)
	VALUES (?, ?, ?, ?);`
	_, err := s.DB.ExecContext(ctx, query, metricName, labelKey, labelValue, value)
	if err != nil {
		return fmt.Errorf("failed to save metric: %w", err)
	}
	return nil
}

// GetMetric returns an unlabeled metric, defaulting to 0 when it was never saved.
func (s *Store) GetMetric(ctx context.Context, metricName string) (float64, error) {
	var value float64
	query := `
	SELECT metric_value
	FROM metrics
	WHERE metric_name = ? AND label_key = '' AND label_value = '';`
	err := s.DB.QueryRowContext(ctx, query, metricName).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	} else if err != nil {
		return 0, fmt.Errorf("failed to get metric %s: %w", metricName, err)
	}
	return value, nil
}

// GetMetricsWithLabels fetches all labeled values of a metric keyed by label key then value.
func (s *Store) GetMetricsWithLabels(ctx context.Context, metricName string) (map[string]map[string]float64, error) {
	query := `
	SELECT label_key, label_value, metric_value
	FROM metrics
	WHERE metric_name = ? AND label_key != '';`

	rows, err := s.DB.QueryContext(ctx, query, metricName)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics with labels: %w", err)
	}
	defer rows.Close()

	metrics := make(map[string]map[string]float64)
	for rows.Next() {
		var labelKey, labelValue string
		var value float64
		if err := rows.Scan(&labelKey, &labelValue, &value); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		if _, exists := metrics[labelKey]; !exists {
			metrics[labelKey] = make(map[string]float64)
		}
		metrics[labelKey][labelValue] = value
	}
	return metrics, rows.Err()
}
