package source

import (
	"context"

	"github.com/denismitr/tern-orientdb/migration"
	"github.com/pkg/errors"
)

var ErrNoMigrations = errors.New("no migrations")

// InMemorySource serves migrations built in code, for programs that ship
// their migrations compiled in
type InMemorySource struct {
	migrations migration.Migrations
}

var _ Selector = (*InMemorySource)(nil)

func NewInMemorySource(factories ...migration.Factory) (*InMemorySource, error) {
	if len(factories) == 0 {
		return nil, ErrNoMigrations
	}

	migrations, err := migration.NewMigrations(factories...)
	if err != nil {
		return nil, errors.Wrap(err, "could not build in-memory migrations")
	}

	// sorted, so duplicates are neighbours
	for i := 1; i < len(migrations); i++ {
		if migrations[i].Key == migrations[i-1].Key {
			return nil, errors.Wrapf(ErrDuplicateMigration, "%s", migrations[i].Key)
		}
	}

	return &InMemorySource{migrations: migrations}, nil
}

func (s *InMemorySource) Select(ctx context.Context, f Filter) (migration.Migrations, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return filterMigrations(s.migrations, f), nil
}
