package store

import (
	"context"
	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/lefinal/gacha-arena/errors"
	"go.uber.org/zap"
)

// Mall reads collections, teams and profiles and records match results in
// PostgreSQL.
type Mall struct {
	logger  *zap.Logger
	db      *pgxpool.Pool
	dialect goqu.DialectWrapper
}

// NewMall creates a Mall on the given pool.
func NewMall(logger *zap.Logger, db *pgxpool.Pool) *Mall {
	return &Mall{
		logger:  logger,
		db:      db,
		dialect: goqu.Dialect("postgres"),
	}
}

// rollbackTx rolls back tx unless it was already committed. Failures are
// logged along with the reason for rolling back.
func (m *Mall) rollbackTx(ctx context.Context, tx pgx.Tx, reason string) {
	if err := tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
		errors.Log(m.logger, errors.Error{
			Code:    errors.ErrInternal,
			Kind:    errors.KindDBRollback,
			Message: "rollback tx",
			Err:     err,
			Details: errors.Details{"reason": reason},
		})
	}
}
