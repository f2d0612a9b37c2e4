package orientgateway

import (
	"context"
	"time"

	"github.com/denismitr/tern-orientdb/internal/database"
	"github.com/denismitr/tern-orientdb/internal/logger"
	"github.com/denismitr/tern-orientdb/migration"
	"github.com/pkg/errors"
)

// OrientDB renders DATETIME fields with its default database date time format
const orientDateTimeLayout = "2006-01-02 15:04:05"

type Options struct {
	// Class keeps the migration log
	Class string

	// Transactional wraps every migration script in a transaction.
	// OrientDB refuses schema changes inside a transaction, so it is off by default.
	Transactional bool

	Connect ConnectOptions
	Lock    *LockOptions
}

func NewDefaultOptions() Options {
	return Options{
		Class:   database.DefaultMigrationsTable,
		Connect: NewDefaultConnectOptions(),
	}
}

type Gateway struct {
	client    *Client
	connector *RetryingConnector
	locker    database.Locker
	lg        logger.Logger
	stmt      statements
	options   Options
}

var _ database.Gateway = (*Gateway)(nil)

type recordRow struct {
	Migration  string `json:"migration"`
	Batch      uint   `json:"batch"`
	MigratedAt string `json:"migrated_at"`
}

type recordsResponse struct {
	Result []recordRow `json:"result"`
}

type batchResponse struct {
	Result []struct {
		Batch *uint `json:"batch"`
	} `json:"result"`
}

type classesResponse struct {
	Result []struct {
		Name string `json:"name"`
	} `json:"result"`
}

func New(client *Client, options Options) (*Gateway, error) {
	if options.Class == "" {
		options.Class = database.DefaultMigrationsTable
	}

	if err := validateClassName(options.Class); err != nil {
		return nil, err
	}

	g := &Gateway{
		client:    client,
		connector: NewRetryingConnector(client, options.Connect),
		locker:    database.NullLocker{},
		lg:        logger.NullLogger{},
		stmt:      statements{class: options.Class},
		options:   options,
	}

	if options.Lock != nil {
		locker, err := NewLocker(client, *options.Lock)
		if err != nil {
			return nil, err
		}

		g.locker = locker
	}

	return g, nil
}

func (g *Gateway) SetLogger(lg logger.Logger) {
	g.lg = lg
	if l, ok := g.locker.(*Locker); ok {
		l.lg = lg
	}
}

func (g *Gateway) Connect(ctx context.Context) error {
	return g.connector.Connect(ctx)
}

// Close is a no-op, the REST client holds no session
func (g *Gateway) Close() error {
	return nil
}

func (g *Gateway) Exec(ctx context.Context, scripts []string) error {
	if len(scripts) == 0 {
		return nil
	}

	for i := range scripts {
		g.lg.SQL(scripts[i])
	}

	return g.client.Batch(ctx, scripts, g.options.Transactional)
}

func (g *Gateway) Lock(ctx context.Context) error {
	return g.locker.Lock(ctx)
}

func (g *Gateway) Unlock(ctx context.Context) error {
	return g.locker.Unlock(ctx)
}

func (g *Gateway) GetRan(ctx context.Context) (migration.Records, error) {
	return g.queryRecords(ctx, g.stmt.getRan(), nil)
}

func (g *Gateway) GetLast(ctx context.Context) (migration.Records, error) {
	last, err := g.GetLastBatchNumber(ctx)
	if err != nil {
		return nil, err
	}

	if last == 0 {
		return nil, nil
	}

	return g.queryRecords(ctx, g.stmt.getBatch(), map[string]interface{}{"batch": last})
}

func (g *Gateway) GetMigrations(ctx context.Context, steps int) (migration.Records, error) {
	if steps < 1 {
		return nil, nil
	}

	return g.queryRecords(ctx, g.stmt.getMigrations(steps), nil)
}

func (g *Gateway) Log(ctx context.Context, key string, batch migration.Batch) error {
	query := g.stmt.log()
	params := map[string]interface{}{"migration": key, "batch": batch}
	g.lg.SQL(query, params)

	if err := g.client.Command(ctx, query, params, nil); err != nil {
		return g.wrap(err, "could not log migration %s", key)
	}

	return nil
}

func (g *Gateway) Delete(ctx context.Context, key string) error {
	query := g.stmt.delete()
	params := map[string]interface{}{"migration": key}
	g.lg.SQL(query, params)

	if err := g.client.Command(ctx, query, params, nil); err != nil {
		return g.wrap(err, "could not delete migration %s from the log", key)
	}

	return nil
}

func (g *Gateway) GetNextBatchNumber(ctx context.Context) (migration.Batch, error) {
	last, err := g.GetLastBatchNumber(ctx)
	if err != nil {
		return 0, err
	}

	return last + 1, nil
}

func (g *Gateway) GetLastBatchNumber(ctx context.Context) (migration.Batch, error) {
	query := g.stmt.lastBatch()
	g.lg.SQL(query)

	var resp batchResponse
	if err := g.client.Command(ctx, query, nil, &resp); err != nil {
		return 0, g.wrap(err, "could not read the last batch number")
	}

	if len(resp.Result) == 0 || resp.Result[0].Batch == nil {
		return 0, nil
	}

	return migration.Batch(*resp.Result[0].Batch), nil
}

func (g *Gateway) CreateRepository(ctx context.Context) error {
	exists, err := g.RepositoryExists(ctx)
	if err != nil {
		return err
	}

	if exists {
		return errors.Wrapf(database.ErrRepositoryAlreadyExists, "class %s", g.options.Class)
	}

	if err := g.Exec(ctx, g.stmt.createRepository()); err != nil {
		return errors.Wrapf(err, "could not create class %s", g.options.Class)
	}

	return nil
}

func (g *Gateway) RepositoryExists(ctx context.Context) (bool, error) {
	return classExists(ctx, g.client, g.stmt.classExists(), g.options.Class)
}

func (g *Gateway) DeleteRepository(ctx context.Context) error {
	if err := g.Exec(ctx, g.stmt.deleteRepository()); err != nil {
		return errors.Wrapf(err, "could not drop class %s", g.options.Class)
	}

	return nil
}

func (g *Gateway) queryRecords(ctx context.Context, query string, params map[string]interface{}) (migration.Records, error) {
	g.lg.SQL(query, params)

	var resp recordsResponse
	if err := g.client.Command(ctx, query, params, &resp); err != nil {
		return nil, g.wrap(err, "could not read the migration log")
	}

	records := make(migration.Records, 0, len(resp.Result))
	for _, row := range resp.Result {
		r := migration.Record{Key: row.Migration, Batch: migration.Batch(row.Batch)}
		if t, err := time.Parse(orientDateTimeLayout, row.MigratedAt); err == nil {
			r.MigratedAt = t
		}

		records = append(records, r)
	}

	return records, nil
}

func (g *Gateway) wrap(err error, format string, args ...interface{}) error {
	if isClassNotFound(err) {
		return errors.Wrapf(database.ErrRepositoryMissing, "class %s", g.options.Class)
	}

	return errors.Wrapf(err, format, args...)
}

func classExists(ctx context.Context, client *Client, query, class string) (bool, error) {
	var resp classesResponse
	if err := client.Command(ctx, query, map[string]interface{}{"name": class}, &resp); err != nil {
		return false, errors.Wrapf(err, "could not check if class %s exists", class)
	}

	return len(resp.Result) > 0, nil
}
