package storage

import (
	"context"
	"fmt"

	"paykit/internal/domain/paymentsrepo"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Container struct {
	pool     *pgxpool.Pool // IMPORTANT: set the pool so WithTx works
	Payments *paymentsrepo.Repository
	PayLogs  *paymentsrepo.LogsRepository
}

func NewContainer(db *pgxpool.Pool) *Container {
	return &Container{
		pool:     db,
		Payments: paymentsrepo.NewRepository(db),
		PayLogs:  paymentsrepo.NewLogsRepository(db),
	}
}

// Tx is a temporary, tx-scoped set of repos for atomic units of work.
type Tx struct {
	tx       pgx.Tx
	Payments *paymentsrepo.Repository
	PayLogs  *paymentsrepo.LogsRepository
}

// WithTx runs fn atomically.
func (c *Container) WithTx(ctx context.Context, fn func(s *Tx) error) error {
	if c.pool == nil {
		return fmt.Errorf("storage container pool is nil (did you forget to set pool in NewContainer?)")
	}

	tx, err := c.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}

	defer func() {
		_ = tx.Rollback(ctx) // safe even if already committed
	}()

	s := &Tx{
		tx:       tx,
		Payments: paymentsrepo.NewRepository(tx),
		PayLogs:  paymentsrepo.NewLogsRepository(tx),
	}

	if err := fn(s); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Migrate creates the payments schema inside a transaction.
func (c *Container) Migrate(ctx context.Context) error {
	return c.WithTx(ctx, func(s *Tx) error {
		return paymentsrepo.Migrate(ctx, s.tx)
	})
}
