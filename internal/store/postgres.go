// Package store holds the persistence collaborators: a Postgres audit
// store that commits each cycle atomically, and a Redis cache that
// publishes the latest decision for downstream consumers.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/riskrun/internal/engine"
)

const schema = `
CREATE TABLE IF NOT EXISTS cycles (
    id BIGSERIAL PRIMARY KEY,
    ts TIMESTAMPTZ NOT NULL,
    risk_level INT NOT NULL,
    drawdown DOUBLE PRECISION NOT NULL,
    position_scale DOUBLE PRECISION NOT NULL,
    max_leverage DOUBLE PRECISION NOT NULL,
    assessment JSONB NOT NULL,
    risk_state JSONB NOT NULL,
    fusion JSONB
);

CREATE TABLE IF NOT EXISTS level_transitions (
    id BIGSERIAL PRIMARY KEY,
    cycle_id BIGINT NOT NULL REFERENCES cycles(id),
    from_level INT NOT NULL,
    to_level INT NOT NULL,
    reason TEXT NOT NULL,
    ts TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS lifecycle_decisions (
    id TEXT PRIMARY KEY,
    cycle_id BIGINT NOT NULL REFERENCES cycles(id),
    model_id TEXT NOT NULL,
    trigger TEXT NOT NULL,
    action TEXT NOT NULL,
    reason TEXT NOT NULL,
    evidence JSONB NOT NULL,
    ts TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cycles_ts ON cycles(ts);
CREATE INDEX IF NOT EXISTS idx_decisions_model ON lifecycle_decisions(model_id);
`

// PostgresStore persists completed cycles for audit and recovery.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore connects and ensures the schema exists.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	log.Info().Msg("Postgres cycle store ready")
	return &PostgresStore{db: db}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error { return s.db.Close() }

// SaveCycle writes the whole cycle in one transaction. Either everything
// lands or nothing does; a failed cycle leaves the prior state
// authoritative.
func (s *PostgresStore) SaveCycle(ctx context.Context, result *engine.CycleResult) error {
	assessmentJSON, err := json.Marshal(result.Assessment)
	if err != nil {
		return fmt.Errorf("marshal assessment: %w", err)
	}
	stateJSON, err := json.Marshal(result.RiskState)
	if err != nil {
		return fmt.Errorf("marshal risk state: %w", err)
	}
	var fusionJSON []byte
	if result.Fusion != nil {
		if fusionJSON, err = json.Marshal(result.Fusion); err != nil {
			return fmt.Errorf("marshal fusion: %w", err)
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var cycleID int64
	err = tx.QueryRowxContext(ctx, `
		INSERT INTO cycles (ts, risk_level, drawdown, position_scale, max_leverage, assessment, risk_state, fusion)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		result.Assessment.Timestamp, int(result.Assessment.Level), result.Assessment.Drawdown,
		result.PositionScale, result.MaxLeverage, assessmentJSON, stateJSON, fusionJSON,
	).Scan(&cycleID)
	if err != nil {
		return fmt.Errorf("insert cycle: %w", err)
	}

	for _, tr := range result.RiskState.History {
		if !tr.Timestamp.Equal(result.Assessment.Timestamp) {
			continue // only this cycle's transitions; older ones are already stored
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO level_transitions (cycle_id, from_level, to_level, reason, ts)
			VALUES ($1, $2, $3, $4, $5)`,
			cycleID, int(tr.From), int(tr.To), tr.Reason, tr.Timestamp,
		); err != nil {
			return fmt.Errorf("insert transition: %w", err)
		}
	}

	for _, d := range result.Decisions {
		evidence, err := json.Marshal(d.Evidence)
		if err != nil {
			return fmt.Errorf("marshal evidence: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO lifecycle_decisions (id, cycle_id, model_id, trigger, action, reason, evidence, ts)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			d.ID, cycleID, d.ModelID, string(d.Trigger), string(d.Action), d.Reason, evidence, d.Timestamp,
		); err != nil {
			return fmt.Errorf("insert decision: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cycle: %w", err)
	}
	return nil
}
