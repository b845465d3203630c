package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"crypto-portfolio-monitor/internal/types"
)

// AppendPriceHistory writes entries in one transaction. Either all rows land or none do.
func (s *Store) AppendPriceHistory(ctx context.Context, entries []types.PriceHistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertHistory(ctx, tx, entries)
	})
}

// ReplacePriceHistory clears the history and writes entries atomically. A failure
// leaves the previous history in place.
func (s *Store) ReplacePriceHistory(ctx context.Context, entries []types.PriceHistoryEntry) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM price_history;`); err != nil {
			return fmt.Errorf("failed to clear price history: %w", err)
		}
		return insertHistory(ctx, tx, entries)
	})
}

func insertHistory(ctx context.Context, tx *sql.Tx, entries []types.PriceHistoryEntry) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO price_history (coin_id, price, timestamp) VALUES (?, ?, ?);`)
	if err != nil {
		return fmt.Errorf("failed to prepare history insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.CoinID, e.Price, toNanos(e.Timestamp)); err != nil {
			return fmt.Errorf("failed to insert price history for %s: %w", e.CoinID, err)
		}
	}
	return nil
}

// LatestPrice returns the most recent history entry of a coin.
func (s *Store) LatestPrice(ctx context.Context, coinID string) (*types.PriceHistoryEntry, error) {
	row := s.DB.QueryRowContext(ctx, `
	SELECT id, coin_id, price, timestamp FROM price_history
	WHERE coin_id = ? ORDER BY timestamp DESC, id DESC LIMIT 1;`, coinID)

	var (
		e  types.PriceHistoryEntry
		ts int64
	)
	err := row.Scan(&e.ID, &e.CoinID, &e.Price, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest price for %s: %w", coinID, err)
	}
	e.Timestamp = fromNanos(ts)
	return &e, nil
}

// LatestPrices returns the latest price of each coin that has any history.
func (s *Store) LatestPrices(ctx context.Context, coinIDs []string) (map[string]types.PriceHistoryEntry, error) {
	prices := make(map[string]types.PriceHistoryEntry, len(coinIDs))
	for _, id := range coinIDs {
		e, err := s.LatestPrice(ctx, id)
		if errors.Is(err, types.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		prices[id] = *e
	}
	return prices, nil
}

// PriceHistory returns a coin's entries at or after since, oldest first.
func (s *Store) PriceHistory(ctx context.Context, coinID string, since time.Time) ([]types.PriceHistoryEntry, error) {
	rows, err := s.DB.QueryContext(ctx, `
	SELECT id, coin_id, price, timestamp FROM price_history
	WHERE coin_id = ? AND timestamp >= ? ORDER BY timestamp ASC, id ASC;`, coinID, toNanos(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query price history for %s: %w", coinID, err)
	}
	defer rows.Close()

	var entries []types.PriceHistoryEntry
	for rows.Next() {
		var (
			e  types.PriceHistoryEntry
			ts int64
		)
		if err := rows.Scan(&e.ID, &e.CoinID, &e.Price, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		e.Timestamp = fromNanos(ts)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// HasPriceHistory reports whether any price was ever stored.
func (s *Store) HasPriceHistory(ctx context.Context) (bool, error) {
	var exists int
	err := s.DB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM price_history LIMIT 1);`).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check price history: %w", err)
	}
	return exists == 1, nil
}
