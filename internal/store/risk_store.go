package store

import (
	"context"
	"errors"
	"fmt"

	"trade_engine/internal/models"
	"trade_engine/pkg/db"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"
)

// RiskStore persists the single risk-state row. The circuit breaker must not
// silently reset across a restart, so the orchestrator loads this before
// scheduling anything.
type RiskStore struct {
	tm *db.PgTxManager
}

func NewRiskStore(tm *db.PgTxManager) *RiskStore {
	return &RiskStore{tm: tm}
}

func (s *RiskStore) Init(ctx context.Context) error {
	_, err := s.tm.Conn().Exec(ctx, `
		CREATE TABLE IF NOT EXISTS risk_state (
			id      SMALLINT PRIMARY KEY,
			payload JSONB NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("RiskStore.Init: %w", err)
	}
	return nil
}

func (s *RiskStore) Save(ctx context.Context, snap models.RiskSnapshot) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("RiskStore.Save: %w", err)
		}
	}()

	var data []byte
	data, err = sonic.Marshal(snap)
	if err != nil {
		return err
	}
	return s.tm.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, execErr := tx.Exec(ctxTx, `
			INSERT INTO risk_state (id, payload) VALUES (1, $1)
			ON CONFLICT (id) DO UPDATE SET payload = $1`, data)
		return execErr
	})
}

// Load returns the stored snapshot, or (zero, false) when none was saved yet.
func (s *RiskStore) Load(ctx context.Context) (snap models.RiskSnapshot, found bool, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("RiskStore.Load: %w", err)
		}
	}()

	var data []byte
	err = s.tm.Conn().QueryRow(ctx, `SELECT payload FROM risk_state WHERE id = 1`).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.RiskSnapshot{}, false, nil
	}
	if err != nil {
		return models.RiskSnapshot{}, false, err
	}
	if err = sonic.Unmarshal(data, &snap); err != nil {
		return models.RiskSnapshot{}, false, err
	}
	return snap, true, nil
}
