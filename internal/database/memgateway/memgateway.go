// Package memgateway keeps the migration log and the executed scripts in
// memory, for tests and for programs embedding the migrator without a database.
package memgateway

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/denismitr/tern-orientdb/internal/database"
	"github.com/denismitr/tern-orientdb/internal/logger"
	"github.com/denismitr/tern-orientdb/migration"
	"github.com/pkg/errors"
)

type Gateway struct {
	mu        sync.Mutex
	lg        logger.Logger
	installed bool
	records   migration.Records
	executed  []string
	failOn    map[string]error
	locked    bool
	clock     migration.ClockFunc
}

var _ database.Gateway = (*Gateway)(nil)

func New() *Gateway {
	return &Gateway{
		lg:     logger.NullLogger{},
		failOn: make(map[string]error),
		clock:  time.Now,
	}
}

// Installed returns a gateway whose repository already exists
func Installed() *Gateway {
	g := New()
	g.installed = true
	return g
}

// FailOn makes any script containing fragment fail with err
func (g *Gateway) FailOn(fragment string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failOn[fragment] = err
}

// Executed returns every script run so far in execution order
func (g *Gateway) Executed() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	result := make([]string, len(g.executed))
	copy(result, g.executed)
	return result
}

func (g *Gateway) Locked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.locked
}

func (g *Gateway) Exec(ctx context.Context, scripts []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, s := range scripts {
		if err := ctx.Err(); err != nil {
			return err
		}

		for fragment, err := range g.failOn {
			if strings.Contains(s, fragment) {
				return err
			}
		}

		g.lg.SQL(s)
		g.executed = append(g.executed, s)
	}

	return nil
}

func (g *Gateway) Lock(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.locked {
		return database.ErrLockTimeout
	}

	g.locked = true
	return nil
}

func (g *Gateway) Unlock(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.locked = false
	return nil
}

func (g *Gateway) GetRan(ctx context.Context) (migration.Records, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.installed {
		return nil, database.ErrRepositoryMissing
	}

	result := make(migration.Records, len(g.records))
	copy(result, g.records)
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Batch != result[j].Batch {
			return result[i].Batch < result[j].Batch
		}
		return result[i].Key < result[j].Key
	})

	return result, nil
}

func (g *Gateway) GetLast(ctx context.Context) (migration.Records, error) {
	last, err := g.GetLastBatchNumber(ctx)
	if err != nil {
		return nil, err
	}

	ran, err := g.GetRan(ctx)
	if err != nil {
		return nil, err
	}

	var result migration.Records
	for i := len(ran) - 1; i >= 0; i-- {
		if ran[i].Batch == last {
			result = append(result, ran[i])
		}
	}

	return result, nil
}

func (g *Gateway) GetMigrations(ctx context.Context, steps int) (migration.Records, error) {
	ran, err := g.GetRan(ctx)
	if err != nil {
		return nil, err
	}

	var result migration.Records
	for i := len(ran) - 1; i >= 0 && len(result) < steps; i-- {
		result = append(result, ran[i])
	}

	return result, nil
}

func (g *Gateway) Log(ctx context.Context, key string, batch migration.Batch) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.installed {
		return database.ErrRepositoryMissing
	}

	if g.records.Contains(key) {
		return errors.Errorf("migration %s is already logged", key)
	}

	g.records = append(g.records, migration.Record{Key: key, Batch: batch, MigratedAt: g.clock()})
	return nil
}

func (g *Gateway) Delete(ctx context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.installed {
		return database.ErrRepositoryMissing
	}

	for i := range g.records {
		if g.records[i].Key == key {
			g.records = append(g.records[:i], g.records[i+1:]...)
			return nil
		}
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
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.installed {
		return 0, database.ErrRepositoryMissing
	}

	var last migration.Batch
	for i := range g.records {
		if g.records[i].Batch > last {
			last = g.records[i].Batch
		}
	}

	return last, nil
}

func (g *Gateway) CreateRepository(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.installed {
		return database.ErrRepositoryAlreadyExists
	}

	g.installed = true
	return nil
}

func (g *Gateway) RepositoryExists(ctx context.Context) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.installed, nil
}

func (g *Gateway) DeleteRepository(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.installed = false
	g.records = nil
	return nil
}

func (g *Gateway) SetLogger(lg logger.Logger) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lg = lg
}

func (g *Gateway) Close() error {
	return nil
}
