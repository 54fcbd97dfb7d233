package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, bot_name, symbol, strategy, status, quantity,
	entry_price, current_price, unrealized_pnl, realized_pnl,
	opened_at, closed_at, tags`

func scanPosition(row pgx.Row) (domain.PositionSnapshot, error) {
	var (
		p      domain.PositionSnapshot
		status string
	)
	err := row.Scan(
		&p.ID, &p.BotName, &p.Symbol, &p.Strategy, &status, &p.Quantity,
		&p.EntryPrice, &p.CurrentPrice, &p.UnrealizedPnL, &p.RealizedPnL,
		&p.OpenedAt, &p.ClosedAt, &p.Tags,
	)
	if err != nil {
		return domain.PositionSnapshot{}, err
	}
	p.State = domain.PositionState(status)
	return p, nil
}

// positionQuery renders the SELECT for filter. newestFirst selects
// FindPosition ordering; listings are oldest first.
func positionQuery(f domain.PositionFilter, newestFirst bool) (string, []any) {
	var w where
	if f.ID != "" {
		w.add("id = $%d", f.ID)
	}
	if f.BotName != "" {
		w.add("bot_name = $%d", f.BotName)
	}
	if f.Symbol != "" {
		w.add("symbol = $%d", f.Symbol)
	}
	if f.Strategy != "" {
		w.add("strategy = $%d", f.Strategy)
	}
	if f.State != "" {
		w.add("status = $%d", string(f.State))
	}
	order := " ORDER BY opened_at ASC, id ASC"
	if newestFirst {
		order = " ORDER BY opened_at DESC, id DESC LIMIT 1"
	}
	return "SELECT " + positionSelectCols + " FROM positions" + w.String() + order, w.args
}

// FindPosition returns the most recently opened position matching f.
func (s *PositionStore) FindPosition(ctx context.Context, f domain.PositionFilter) (domain.PositionSnapshot, error) {
	query, args := positionQuery(f, true)
	p, err := scanPosition(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PositionSnapshot{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.PositionSnapshot{}, fmt.Errorf("postgres: find position: %w", err)
	}
	return p, nil
}

// ListPositions returns every position matching f, oldest first.
func (s *PositionStore) ListPositions(ctx context.Context, f domain.PositionFilter) ([]domain.PositionSnapshot, error) {
	query, args := positionQuery(f, false)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	var out []domain.PositionSnapshot
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list positions rows: %w", err)
	}
	return out, nil
}

// OpenPosition inserts an open position and returns its id.
func (s *PositionStore) OpenPosition(ctx context.Context, req domain.OpenPositionRequest) (string, error) {
	const query = `
		INSERT INTO positions (
			id, bot_name, automation, symbol, strategy, status,
			quantity, entry_price, current_price, tags
		) VALUES ($1, $2, $3, $4, $5, 'open', $6, $7, $7, $8)`

	id := uuid.NewString()
	tags := req.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err := s.pool.Exec(ctx, query,
		id, req.BotName, req.Automation, req.Symbol, req.Strategy,
		req.Quantity, req.Price, tags,
	)
	if err != nil {
		return "", fmt.Errorf("postgres: open position %s: %w", req.Symbol, err)
	}
	return id, nil
}

// ClosePosition marks an open position closed. A positive spec.Price realises
// the PnL against the entry price.
func (s *PositionStore) ClosePosition(ctx context.Context, id string, spec domain.CloseSpec) error {
	const query = `
		UPDATE positions SET
			status         = 'closed',
			exit_price     = CASE WHEN $2::double precision > 0 THEN $2 ELSE current_price END,
			realized_pnl   = CASE WHEN $2::double precision > 0 THEN ($2 - entry_price) * quantity ELSE unrealized_pnl END,
			unrealized_pnl = 0,
			close_reason   = $3,
			closed_at      = NOW(),
			updated_at     = NOW()
		WHERE id = $1 AND status = 'open'`

	tag, err := s.pool.Exec(ctx, query, id, spec.Price, spec.Reason)
	if err != nil {
		return fmt.Errorf("postgres: close position %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AddTags merges tags into the position's tag set.
func (s *PositionStore) AddTags(ctx context.Context, id string, tags []string) error {
	const query = `
		UPDATE positions SET
			tags       = ARRAY(SELECT DISTINCT unnest(tags || $2::text[]) ORDER BY 1),
			updated_at = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, tags)
	if err != nil {
		return fmt.Errorf("postgres: tag position %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkPrice values the open positions in symbol at price. Positions opened
// without an entry price take price as their entry.
func (s *PositionStore) MarkPrice(ctx context.Context, symbol string, price float64) (int, error) {
	if price <= 0 {
		return 0, nil
	}
	const query = `
		UPDATE positions SET
			entry_price    = CASE WHEN entry_price > 0 THEN entry_price ELSE $2 END,
			current_price  = $2,
			unrealized_pnl = ($2 - CASE WHEN entry_price > 0 THEN entry_price ELSE $2 END) * quantity,
			updated_at     = NOW()
		WHERE symbol = $1 AND status = 'open'`

	tag, err := s.pool.Exec(ctx, query, symbol, price)
	if err != nil {
		return 0, fmt.Errorf("postgres: mark positions %s: %w", symbol, err)
	}
	return int(tag.RowsAffected()), nil
}

var _ domain.PositionStore = (*PositionStore)(nil)
