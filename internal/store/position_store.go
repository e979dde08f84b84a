package store

import (
	"context"
	"fmt"

	"trade_engine/internal/models"
	"trade_engine/pkg/db"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"
)

// PositionStore persists the open-position registry so that a restart never
// loses track of an open holding. Rows are keyed by symbol; this design
// carries at most one position per symbol.
type PositionStore struct {
	tm *db.PgTxManager
}

func NewPositionStore(tm *db.PgTxManager) *PositionStore {
	return &PositionStore{tm: tm}
}

func (s *PositionStore) Init(ctx context.Context) error {
	_, err := s.tm.Conn().Exec(ctx, `
		CREATE TABLE IF NOT EXISTS positions (
			symbol   TEXT PRIMARY KEY,
			payload  JSONB NOT NULL,
			updated  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("PositionStore.Init: %w", err)
	}
	return nil
}

func (s *PositionStore) Upsert(ctx context.Context, p *models.Position) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("PositionStore.Upsert: %w", err)
		}
	}()

	var data []byte
	data, err = sonic.Marshal(p)
	if err != nil {
		return err
	}
	return s.tm.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, execErr := tx.Exec(ctxTx, `
			INSERT INTO positions (symbol, payload, updated)
			VALUES ($1, $2, now())
			ON CONFLICT (symbol) DO UPDATE SET payload = $2, updated = now()`,
			p.Symbol, data)
		return execErr
	})
}

func (s *PositionStore) Delete(ctx context.Context, symbol string) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("PositionStore.Delete: %w", err)
		}
	}()
	return s.tm.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, execErr := tx.Exec(ctxTx, `DELETE FROM positions WHERE symbol = $1`, symbol)
		return execErr
	})
}

func (s *PositionStore) LoadAll(ctx context.Context) (positions []*models.Position, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("PositionStore.LoadAll: %w", err)
		}
	}()

	rows, err := s.tm.Conn().Query(ctx, `SELECT payload FROM positions ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var data []byte
		if err = rows.Scan(&data); err != nil {
			return nil, err
		}
		var p models.Position
		if err = sonic.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		positions = append(positions, &p)
	}
	return positions, rows.Err()
}
