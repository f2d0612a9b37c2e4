package database

import (
	"context"

	"github.com/denismitr/tern-orientdb/internal/logger"
	"github.com/denismitr/tern-orientdb/migration"
	"go.uber.org/multierr"
)

// Composite runs migration scripts through one gateway while keeping the
// migration log in a different store
type Composite struct {
	gateway Gateway
	store   Store
}

var _ Gateway = (*Composite)(nil)

func NewComposite(gateway Gateway, store Store) *Composite {
	return &Composite{gateway: gateway, store: store}
}

func (c *Composite) Connect(ctx context.Context) error {
	if err := Connect(ctx, c.gateway); err != nil {
		return err
	}

	return Connect(ctx, c.store)
}

func (c *Composite) Exec(ctx context.Context, scripts []string) error {
	return c.gateway.Exec(ctx, scripts)
}

func (c *Composite) Lock(ctx context.Context) error {
	return c.gateway.Lock(ctx)
}

func (c *Composite) Unlock(ctx context.Context) error {
	return c.gateway.Unlock(ctx)
}

func (c *Composite) GetRan(ctx context.Context) (migration.Records, error) {
	return c.store.GetRan(ctx)
}

func (c *Composite) GetLast(ctx context.Context) (migration.Records, error) {
	return c.store.GetLast(ctx)
}

func (c *Composite) GetMigrations(ctx context.Context, steps int) (migration.Records, error) {
	return c.store.GetMigrations(ctx, steps)
}

func (c *Composite) Log(ctx context.Context, key string, batch migration.Batch) error {
	return c.store.Log(ctx, key, batch)
}

func (c *Composite) Delete(ctx context.Context, key string) error {
	return c.store.Delete(ctx, key)
}

func (c *Composite) GetNextBatchNumber(ctx context.Context) (migration.Batch, error) {
	return c.store.GetNextBatchNumber(ctx)
}

func (c *Composite) GetLastBatchNumber(ctx context.Context) (migration.Batch, error) {
	return c.store.GetLastBatchNumber(ctx)
}

func (c *Composite) CreateRepository(ctx context.Context) error {
	return c.store.CreateRepository(ctx)
}

func (c *Composite) RepositoryExists(ctx context.Context) (bool, error) {
	return c.store.RepositoryExists(ctx)
}

func (c *Composite) DeleteRepository(ctx context.Context) error {
	return c.store.DeleteRepository(ctx)
}

func (c *Composite) SetLogger(lg logger.Logger) {
	c.gateway.SetLogger(lg)
	c.store.SetLogger(lg)
}

func (c *Composite) Close() error {
	return multierr.Combine(c.gateway.Close(), c.store.Close())
}
