package tern

import (
	"github.com/denismitr/tern-orientdb/internal/database/sqlrepo"
	"github.com/jmoiron/sqlx"
)

type SQLRepositoryConfigurator func(o *sqlrepo.Options)

// UseSQLRepository keeps the migration log in a MySQL or SQLite table
// while migrations still run through the main gateway
func UseSQLRepository(driver, dsn string, cfs ...SQLRepositoryConfigurator) OptionFunc {
	return func(m *Migrator) error {
		s, err := sqlrepo.Open(driver, dsn, sqlRepositoryOptions(cfs))
		if err != nil {
			return err
		}

		m.store = s
		return nil
	}
}

// UseSqliteRepository keeps the migration log in an already opened SQLite database
func UseSqliteRepository(db *sqlx.DB, cfs ...SQLRepositoryConfigurator) OptionFunc {
	return func(m *Migrator) error {
		s, err := sqlrepo.NewSqliteStore(db, sqlRepositoryOptions(cfs))
		if err != nil {
			return err
		}

		m.store = s
		return nil
	}
}

// UseMySQLRepository keeps the migration log in an already opened MySQL
// database, the connection must be opened with parseTime=true
func UseMySQLRepository(db *sqlx.DB, cfs ...SQLRepositoryConfigurator) OptionFunc {
	return func(m *Migrator) error {
		s, err := sqlrepo.NewMySQLStore(db, sqlRepositoryOptions(cfs))
		if err != nil {
			return err
		}

		m.store = s
		return nil
	}
}

func WithRepositoryTable(table string) SQLRepositoryConfigurator {
	return func(o *sqlrepo.Options) {
		o.Table = table
	}
}

func WithRepositoryCharset(charset string) SQLRepositoryConfigurator {
	return func(o *sqlrepo.Options) {
		o.Charset = charset
	}
}

func sqlRepositoryOptions(cfs []SQLRepositoryConfigurator) sqlrepo.Options {
	var o sqlrepo.Options
	for _, c := range cfs {
		c(&o)
	}
	return o
}
