package database

import (
	"context"

	"github.com/denismitr/tern-orientdb/internal/logger"
	"github.com/denismitr/tern-orientdb/migration"
	"github.com/pkg/errors"
)

var (
	ErrRepositoryMissing        = errors.New("migration repository does not exist")
	ErrRepositoryAlreadyExists  = errors.New("migration repository already exists")
	ErrNothingToMigrate         = errors.New("nothing to migrate")
	ErrNothingToRollback        = errors.New("nothing to rollback")
	ErrMigrationExecutionFailed = errors.New("migration execution failed")
	ErrMigrationNotFound        = errors.New("migration not found")
	ErrLockTimeout              = errors.New("could not acquire migration lock")
)

const DefaultMigrationsTable = "migrations"

// Repository keeps the log of applied migrations
type Repository interface {
	// GetRan returns every applied record ordered by batch and then by key
	GetRan(ctx context.Context) (migration.Records, error)

	// GetLast returns the records of the most recent batch
	GetLast(ctx context.Context) (migration.Records, error)

	// GetMigrations returns the last steps records, newest first
	GetMigrations(ctx context.Context, steps int) (migration.Records, error)

	Log(ctx context.Context, key string, batch migration.Batch) error
	Delete(ctx context.Context, key string) error

	GetNextBatchNumber(ctx context.Context) (migration.Batch, error)
	GetLastBatchNumber(ctx context.Context) (migration.Batch, error)

	CreateRepository(ctx context.Context) error
	RepositoryExists(ctx context.Context) (bool, error)
	DeleteRepository(ctx context.Context) error
}

type Executor interface {
	Exec(ctx context.Context, scripts []string) error
}

type Locker interface {
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error
}

type Store interface {
	Repository
	SetLogger(logger.Logger)
	Close() error
}

type Gateway interface {
	Store
	Executor
	Locker
}

// Connector is implemented by gateways that need to reach a server
// before they can be used
type Connector interface {
	Connect(ctx context.Context) error
}

// Connect connects v when it is a Connector
func Connect(ctx context.Context, v interface{}) error {
	if c, ok := v.(Connector); ok {
		return c.Connect(ctx)
	}

	return nil
}

type NullLocker struct{}

func (NullLocker) Lock(context.Context) error {
	return nil
}

func (NullLocker) Unlock(context.Context) error {
	return nil
}
