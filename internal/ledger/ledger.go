// Package ledger books confirmed payouts and archives lifecycle transitions
// in Postgres for P&L reporting. The registry stays the operational record;
// ledger rows outlive its retention window.
package ledger

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"bountyhunter/internal/models"
)

var builder = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Ledger wraps pgxpool for Postgres persistence.
type Ledger struct {
	pool *pgxpool.Pool
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Ledger, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Ledger{pool: pool}, nil
}

// Close releases the pool.
func (l *Ledger) Close() {
	if l.pool != nil {
		l.pool.Close()
	}
}

// RecordRevenue books one confirmed payout.
func (l *Ledger) RecordRevenue(ctx context.Context, b models.Bounty) error {
	query, args, err := builder.
		Insert("revenue").
		Columns("id", "fingerprint", "source", "title", "amount_usd", "reward_token", "recorded_at").
		Values(uuid.New().String(), b.Fingerprint(), b.Source, b.Title, b.Reward(), b.RewardToken, time.Now().UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build revenue insert: %w", err)
	}
	if _, err := l.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert revenue for %s: %w", b.Fingerprint(), err)
	}
	return nil
}

// ArchiveTransition appends one lifecycle transition to the durable archive.
func (l *Ledger) ArchiveTransition(ctx context.Context, fingerprint string, rec models.TransitionRecord) error {
	query, args, err := builder.
		Insert("transitions").
		Columns("fingerprint", "from_status", "to_status", "reason", "at").
		Values(fingerprint, string(rec.From), string(rec.To), rec.Reason, rec.At).
		ToSql()
	if err != nil {
		return fmt.Errorf("build transition insert: %w", err)
	}
	if _, err := l.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("archive transition for %s: %w", fingerprint, err)
	}
	return nil
}

// RevenueBySource sums booked payouts per source since the given time.
func (l *Ledger) RevenueBySource(ctx context.Context, since time.Time) (map[string]float64, error) {
	query, args, err := builder.
		Select("source", "COALESCE(SUM(amount_usd), 0)").
		From("revenue").
		Where(sq.GtOrEq{"recorded_at": since}).
		GroupBy("source").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build revenue query: %w", err)
	}
	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query revenue: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var source string
		var total float64
		if err := rows.Scan(&source, &total); err != nil {
			return nil, fmt.Errorf("scan revenue row: %w", err)
		}
		out[source] = total
	}
	return out, rows.Err()
}
