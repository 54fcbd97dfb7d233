package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/decisionbot/internal/domain"
)

// AutomationStore implements domain.AutomationStore. Each definition is
// stored as JSONB keyed by name.
type AutomationStore struct {
	pool *pgxpool.Pool
}

// NewAutomationStore creates a new AutomationStore backed by the given connection pool.
func NewAutomationStore(pool *pgxpool.Pool) *AutomationStore {
	return &AutomationStore{pool: pool}
}

// Upsert inserts or replaces a definition.
func (s *AutomationStore) Upsert(ctx context.Context, def domain.AutomationDefinition) error {
	body, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("postgres: marshal automation %s: %w", def.Name, err)
	}

	const query = `
		INSERT INTO automations (name, bot_name, enabled, definition, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (name) DO UPDATE SET
			bot_name   = EXCLUDED.bot_name,
			enabled    = EXCLUDED.enabled,
			definition = EXCLUDED.definition,
			updated_at = NOW()`

	if _, err := s.pool.Exec(ctx, query, def.Name, def.BotName, !def.Disabled, body); err != nil {
		return fmt.Errorf("postgres: upsert automation %s: %w", def.Name, err)
	}
	return nil
}

// Get retrieves one definition by name.
func (s *AutomationStore) Get(ctx context.Context, name string) (domain.AutomationDefinition, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT definition FROM automations WHERE name = $1`, name).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AutomationDefinition{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.AutomationDefinition{}, fmt.Errorf("postgres: get automation %s: %w", name, err)
	}
	return decodeAutomation(name, body)
}

// List returns every definition ordered by name.
func (s *AutomationStore) List(ctx context.Context) ([]domain.AutomationDefinition, error) {
	rows, err := s.pool.Query(ctx, `SELECT name, definition FROM automations ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list automations: %w", err)
	}
	defer rows.Close()

	var defs []domain.AutomationDefinition
	for rows.Next() {
		var (
			name string
			body []byte
		)
		if err := rows.Scan(&name, &body); err != nil {
			return nil, fmt.Errorf("postgres: scan automation: %w", err)
		}
		def, err := decodeAutomation(name, body)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list automations rows: %w", err)
	}
	return defs, nil
}

// Delete removes a definition.
func (s *AutomationStore) Delete(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM automations WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("postgres: delete automation %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func decodeAutomation(name string, body []byte) (domain.AutomationDefinition, error) {
	var def domain.AutomationDefinition
	if err := json.Unmarshal(body, &def); err != nil {
		return domain.AutomationDefinition{}, fmt.Errorf("postgres: unmarshal automation %s: %w", name, err)
	}
	return def, nil
}

var _ domain.AutomationStore = (*AutomationStore)(nil)
