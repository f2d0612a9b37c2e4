package source

import (
	"context"
	"strings"
	"unicode"

	"github.com/denismitr/tern-orientdb/migration"
	"github.com/pkg/errors"
)

var (
	ErrInvalidMigrationKey    = errors.New("invalid migration key in filename")
	ErrNotAMigrationFile      = errors.New("not a migration file")
	ErrMissingMigrateFile     = errors.New("rollback file has no matching migrate file")
	ErrDuplicateMigration     = errors.New("migration is defined more than once")
	ErrFolderInvalid          = errors.New("migrations folder does not exist or is not a directory")
	ErrMigrationAlreadyExists = errors.New("migration already exists")
)

type Filter struct {
	// Keys limits the selection, a key matches on the full migration
	// key or on its version alone
	Keys []string
}

type Selector interface {
	Select(ctx context.Context, f Filter) (migration.Migrations, error)
}

func (f Filter) allows(m *migration.Migration) bool {
	if len(f.Keys) == 0 {
		return true
	}

	for _, k := range f.Keys {
		if k == m.Key || k == m.Version.Value {
			return true
		}
	}

	return false
}

func filterMigrations(m migration.Migrations, f Filter) migration.Migrations {
	if len(f.Keys) == 0 {
		return m
	}

	result := make(migration.Migrations, 0, len(m))
	for i := range m {
		if f.allows(m[i]) {
			result = append(result, m[i])
		}
	}

	return result
}

func ucFirst(s string) string {
	r := []rune(s)

	if len(r) == 0 {
		return ""
	}

	f := string(unicode.ToUpper(r[0]))

	return f + string(r[1:])
}

func humanize(snakeName string) string {
	return ucFirst(strings.ReplaceAll(snakeName, "_", " "))
}
