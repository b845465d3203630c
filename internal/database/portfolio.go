package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"crypto-portfolio-monitor/internal/types"
)

// CreatePortfolio inserts a portfolio with its holdings and fills in the ids.
func (s *Store) CreatePortfolio(ctx context.Context, p *types.Portfolio) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO portfolios (initial_investment, current_value, updated_at) VALUES (?, ?, ?);`,
			p.InitialInvestment, p.CurrentValue, toNanos(p.UpdatedAt))
		if err != nil {
			return fmt.Errorf("failed to insert portfolio: %w", err)
		}
		if p.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to read portfolio id: %w", err)
		}

		for i := range p.Holdings {
			h := &p.Holdings[i]
			h.PortfolioID = p.ID
			res, err := tx.ExecContext(ctx, `
			INSERT INTO holdings (portfolio_id, coin_id, amount, coins, current_price, current_value)
			VALUES (?, ?, ?, ?, ?, ?);`,
				h.PortfolioID, h.CoinID, h.Amount, h.Coins, h.CurrentPrice, h.CurrentValue)
			if err != nil {
				return fmt.Errorf("failed to insert holding %s: %w", h.CoinID, err)
			}
			if h.ID, err = res.LastInsertId(); err != nil {
				return fmt.Errorf("failed to read holding id: %w", err)
			}
		}
		return nil
	})
}

// GetPortfolio returns the first portfolio with its holdings in insertion order.
func (s *Store) GetPortfolio(ctx context.Context) (*types.Portfolio, error) {
	var (
		p         types.Portfolio
		updatedAt int64
	)
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, initial_investment, current_value, updated_at FROM portfolios ORDER BY id LIMIT 1;`).
		Scan(&p.ID, &p.InitialInvestment, &p.CurrentValue, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNoPortfolio
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}
	p.UpdatedAt = fromNanos(updatedAt)

	rows, err := s.DB.QueryContext(ctx, `
	SELECT id, portfolio_id, coin_id, amount, coins, current_price, current_value
	FROM holdings WHERE portfolio_id = ? ORDER BY id;`, p.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var h types.Holding
		if err := rows.Scan(&h.ID, &h.PortfolioID, &h.CoinID, &h.Amount, &h.Coins, &h.CurrentPrice, &h.CurrentValue); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		p.Holdings = append(p.Holdings, h)
	}
	return &p, rows.Err()
}

// SavePortfolio writes the valuation of a portfolio and its holdings atomically.
func (s *Store) SavePortfolio(ctx context.Context, p *types.Portfolio) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE portfolios SET current_value = ?, updated_at = ? WHERE id = ?;`,
			p.CurrentValue, toNanos(p.UpdatedAt), p.ID)
		if err != nil {
			return fmt.Errorf("failed to update portfolio: %w", err)
		}
		if err := expectRow(res); err != nil {
			return err
		}
		for _, h := range p.Holdings {
			if _, err := tx.ExecContext(ctx, `
			UPDATE holdings SET coins = ?, current_price = ?, current_value = ? WHERE id = ?;`,
				h.Coins, h.CurrentPrice, h.CurrentValue, h.ID); err != nil {
				return fmt.Errorf("failed to update holding %s: %w", h.CoinID, err)
			}
		}
		return nil
	})
}
