// Package sqlrepo keeps the migration log in a SQL table, for setups where
// the history lives outside of the graph database.
package sqlrepo

import (
	"context"
	"regexp"
	"time"

	"github.com/denismitr/tern-orientdb/internal/database"
	"github.com/denismitr/tern-orientdb/internal/logger"
	"github.com/denismitr/tern-orientdb/migration"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

const (
	DriverMySQL  = "mysql"
	DriverSqlite = "sqlite3"

	DefaultCharset = "utf8mb4"
)

var ErrUnsupportedDriver = errors.New("unsupported migration repository driver")
var ErrInvalidTableName = errors.New("invalid migrations table name")

var tableNameRegexp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type Options struct {
	Table string

	// Charset is used by MySQL only
	Charset string
}

type Store struct {
	db     *sqlx.DB
	schema schema
	lg     logger.Logger
	table  string
	clock  migration.ClockFunc
}

var _ database.Store = (*Store)(nil)

type recordRow struct {
	Migration  string    `db:"migration"`
	Batch      uint      `db:"batch"`
	MigratedAt time.Time `db:"migrated_at"`
}

// Open connects to the database with the given driver. MySQL DSNs get
// parseTime enabled since the log is read back into time values.
func Open(driver, dsn string, options Options) (*Store, error) {
	switch driver {
	case DriverMySQL:
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, errors.Wrap(err, "invalid mysql dsn")
		}

		cfg.ParseTime = true
		db, err := sqlx.Open(DriverMySQL, cfg.FormatDSN())
		if err != nil {
			return nil, errors.Wrap(err, "could not open mysql connection")
		}

		return closeOnError(db)(NewMySQLStore(db, options))
	case DriverSqlite, "sqlite":
		db, err := sqlx.Open(DriverSqlite, dsn)
		if err != nil {
			return nil, errors.Wrap(err, "could not open sqlite connection")
		}

		// sqlite allows a single writer
		db.SetMaxOpenConns(1)

		return closeOnError(db)(NewSqliteStore(db, options))
	default:
		return nil, errors.Wrapf(ErrUnsupportedDriver, "%s", driver)
	}
}

func closeOnError(db *sqlx.DB) func(*Store, error) (*Store, error) {
	return func(s *Store, err error) (*Store, error) {
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return s, nil
	}
}

func NewMySQLStore(db *sqlx.DB, options Options) (*Store, error) {
	if options.Charset == "" {
		options.Charset = DefaultCharset
	}

	return newStore(db, options, func(table string) schema {
		return mysqlSchema{table: table, charset: options.Charset}
	})
}

func NewSqliteStore(db *sqlx.DB, options Options) (*Store, error) {
	return newStore(db, options, func(table string) schema {
		return sqliteSchema{table: table}
	})
}

func newStore(db *sqlx.DB, options Options, makeSchema func(string) schema) (*Store, error) {
	if options.Table == "" {
		options.Table = database.DefaultMigrationsTable
	}

	if !tableNameRegexp.MatchString(options.Table) {
		return nil, errors.Wrapf(ErrInvalidTableName, "%q", options.Table)
	}

	return &Store{
		db:     db,
		schema: makeSchema(options.Table),
		lg:     logger.NullLogger{},
		table:  options.Table,
		clock:  time.Now,
	}, nil
}

func (s *Store) SetLogger(lg logger.Logger) {
	s.lg = lg
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return errors.Wrap(err, "could not close migration repository connection")
	}

	return nil
}

func (s *Store) GetRan(ctx context.Context) (migration.Records, error) {
	return s.selectRecords(ctx, s.schema.readAllQuery())
}

func (s *Store) GetLast(ctx context.Context) (migration.Records, error) {
	last, err := s.GetLastBatchNumber(ctx)
	if err != nil {
		return nil, err
	}

	if last == 0 {
		return nil, nil
	}

	return s.selectRecords(ctx, s.schema.readBatchQuery(), uint(last))
}

func (s *Store) GetMigrations(ctx context.Context, steps int) (migration.Records, error) {
	if steps < 1 {
		return nil, nil
	}

	return s.selectRecords(ctx, s.schema.readLastQuery(), steps)
}

func (s *Store) Log(ctx context.Context, key string, batch migration.Batch) error {
	query := s.schema.insertQuery()
	args := []interface{}{key, uint(batch), s.clock().UTC()}
	s.lg.SQL(query, args...)

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return s.wrap(err, "could not log migration %s", key)
	}

	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	query := s.schema.removeQuery()
	s.lg.SQL(query, key)

	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return s.wrap(err, "could not delete migration %s from the log", key)
	}

	return nil
}

func (s *Store) GetNextBatchNumber(ctx context.Context) (migration.Batch, error) {
	last, err := s.GetLastBatchNumber(ctx)
	if err != nil {
		return 0, err
	}

	return last + 1, nil
}

func (s *Store) GetLastBatchNumber(ctx context.Context) (migration.Batch, error) {
	query := s.schema.lastBatchQuery()
	s.lg.SQL(query)

	var last int64
	if err := s.db.GetContext(ctx, &last, query); err != nil {
		return 0, s.wrap(err, "could not read the last batch number")
	}

	return migration.Batch(last), nil
}

func (s *Store) CreateRepository(ctx context.Context) error {
	exists, err := s.RepositoryExists(ctx)
	if err != nil {
		return err
	}

	if exists {
		return errors.Wrapf(database.ErrRepositoryAlreadyExists, "table %s", s.table)
	}

	query := s.schema.initQuery()
	s.lg.SQL(query)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return errors.Wrapf(err, "could not create table %s", s.table)
	}

	return nil
}

func (s *Store) RepositoryExists(ctx context.Context) (bool, error) {
	query := s.schema.existsQuery()
	s.lg.SQL(query, s.table)

	var count int
	if err := s.db.GetContext(ctx, &count, query, s.table); err != nil {
		return false, errors.Wrapf(err, "could not check if table %s exists", s.table)
	}

	return count > 0, nil
}

func (s *Store) DeleteRepository(ctx context.Context) error {
	query := s.schema.dropQuery()
	s.lg.SQL(query)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return errors.Wrapf(err, "could not drop table %s", s.table)
	}

	return nil
}

func (s *Store) selectRecords(ctx context.Context, query string, args ...interface{}) (migration.Records, error) {
	s.lg.SQL(query, args...)

	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, s.wrap(err, "could not read the migration log")
	}

	records := make(migration.Records, len(rows))
	for i := range rows {
		records[i] = migration.Record{
			Key:        rows[i].Migration,
			Batch:      migration.Batch(rows[i].Batch),
			MigratedAt: rows[i].MigratedAt,
		}
	}

	return records, nil
}

func (s *Store) wrap(err error, format string, args ...interface{}) error {
	if s.schema.isMissingTable(err) {
		return errors.Wrapf(database.ErrRepositoryMissing, "table %s", s.table)
	}

	return errors.Wrapf(err, format, args...)
}
