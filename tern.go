package tern

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/denismitr/tern-orientdb/internal/database"
	"github.com/denismitr/tern-orientdb/internal/logger"
	"github.com/denismitr/tern-orientdb/internal/source"
	"github.com/denismitr/tern-orientdb/migration"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

var ErrGatewayNotInitialized = errors.New("database gateway has not been initialized")

var (
	ErrRepositoryMissing        = database.ErrRepositoryMissing
	ErrRepositoryAlreadyExists  = database.ErrRepositoryAlreadyExists
	ErrNothingToMigrate         = database.ErrNothingToMigrate
	ErrNothingToRollback        = database.ErrNothingToRollback
	ErrMigrationExecutionFailed = database.ErrMigrationExecutionFailed
	ErrMigrationNotFound        = database.ErrMigrationNotFound
	ErrLockTimeout              = database.ErrLockTimeout
	ErrMigrationAlreadyExists   = source.ErrMigrationAlreadyExists
	ErrDuplicateMigration       = source.ErrDuplicateMigration
)

const unlockTimeout = 10 * time.Second

type CloserFunc func() error

// Migrator applies and reverts migrations and keeps their log through the
// gateway. A Migrator runs one operation at a time.
type Migrator struct {
	mu sync.Mutex

	lg       logger.Logger
	gateway  database.Gateway
	store    database.Store
	selector source.Selector
	observer migration.NoteObserver
	notes    []migration.Note
	closers  []CloserFunc

	sourceFactory func(lg logger.Logger) (source.Selector, error)
}

// MigrationStatus tells whether a migration ran and in which batch.
// Missing migrations are logged as applied but cannot be found in the source.
type MigrationStatus struct {
	Key        string
	Name       string
	Ran        bool
	Missing    bool
	Batch      migration.Batch
	MigratedAt time.Time
}

// NewMigrator creates a migrator using the option callbacks, a gateway
// option is required, the local ./migrations folder is the default source
func NewMigrator(opts ...OptionFunc) (*Migrator, CloserFunc, error) {
	m := new(Migrator)
	m.lg = logger.NullLogger{}

	for _, oFunc := range opts {
		if err := oFunc(m); err != nil {
			return nil, nil, multierr.Append(err, m.close())
		}
	}

	if m.gateway == nil {
		return nil, nil, multierr.Append(ErrGatewayNotInitialized, m.close())
	}

	if m.store != nil {
		m.gateway = database.NewComposite(m.gateway, m.store)
	}

	if m.selector == nil {
		factory := m.sourceFactory
		if factory == nil {
			factory = folderSourceConfig{
				folders:       []string{source.DefaultMigrationsFolder},
				versionFormat: migration.AnyFormat,
			}.selector
		}

		s, err := factory(m.lg)
		if err != nil {
			return nil, nil, multierr.Append(err, m.close())
		}

		m.selector = s
	}

	m.gateway.SetLogger(m.lg)

	return m, m.close, nil
}

// Migrate runs every pending migration in ascending key order as a new batch
func (m *Migrator) Migrate(ctx context.Context, cfs ...ActionConfigurator) (migration.Migrations, error) {
	act := newAction(cfs...)

	var migrated migration.Migrations
	err := m.exclusive(ctx, true, func(ctx context.Context) (err error) {
		migrated, err = m.migrate(ctx, act)
		return err
	})

	m.report(err, ErrNothingToMigrate)

	return migrated, err
}

// Rollback reverts the last batch, or the last n migrations when WithSteps is given
func (m *Migrator) Rollback(ctx context.Context, cfs ...ActionConfigurator) (migration.Migrations, error) {
	act := newAction(cfs...)

	var rolledBack migration.Migrations
	err := m.exclusive(ctx, true, func(ctx context.Context) (err error) {
		rolledBack, err = m.rollback(ctx, act)
		return err
	})

	m.report(err, ErrNothingToRollback)

	return rolledBack, err
}

// Reset reverts every applied migration, batch after batch
func (m *Migrator) Reset(ctx context.Context, cfs ...ActionConfigurator) (migration.Migrations, error) {
	act := newAction(cfs...)

	var rolledBack migration.Migrations
	err := m.exclusive(ctx, true, func(ctx context.Context) (err error) {
		rolledBack, err = m.reset(ctx, act)
		return err
	})

	m.report(err, ErrNothingToRollback)

	return rolledBack, err
}

// Refresh resets the database and migrates it again. With WithSteps only the
// last n migrations are rolled back before migrating.
func (m *Migrator) Refresh(ctx context.Context, cfs ...ActionConfigurator) (migration.Migrations, migration.Migrations, error) {
	act := newAction(cfs...)

	var rolledBack, migrated migration.Migrations
	err := m.exclusive(ctx, true, func(ctx context.Context) (err error) {
		if act.steps > 0 {
			rolledBack, err = m.rollback(ctx, act)
		} else {
			rolledBack, err = m.reset(ctx, act)
		}

		if err != nil && !errors.Is(err, ErrNothingToRollback) {
			return err
		}

		migrateAct := *act
		migrateAct.steps = 0
		migrated, err = m.migrate(ctx, &migrateAct)
		return err
	})

	m.report(err, ErrNothingToMigrate)

	return rolledBack, migrated, err
}

// Install creates the migration repository
func (m *Migrator) Install(ctx context.Context) error {
	err := m.exclusive(ctx, false, func(ctx context.Context) error {
		return m.gateway.CreateRepository(ctx)
	})

	m.report(err, ErrRepositoryAlreadyExists)

	return err
}

// Installed reports whether the migration repository exists
func (m *Migrator) Installed(ctx context.Context) (bool, error) {
	var exists bool
	err := m.exclusive(ctx, false, func(ctx context.Context) (err error) {
		exists, err = m.gateway.RepositoryExists(ctx)
		return err
	})

	return exists, err
}

// Status lists every known migration, including logged ones missing from the source
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	var result []MigrationStatus
	err := m.exclusive(ctx, false, func(ctx context.Context) error {
		if err := m.requireRepository(ctx); err != nil {
			return err
		}

		available, err := m.selector.Select(ctx, source.Filter{})
		if err != nil {
			return err
		}

		ran, err := m.gateway.GetRan(ctx)
		if err != nil {
			return err
		}

		result = buildStatus(available, ran)
		return nil
	})

	m.report(err)

	return result, err
}

// Notes returns what happened to each migration during the last operation
func (m *Migrator) Notes() []migration.Note {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]migration.Note, len(m.notes))
	copy(result, m.notes)
	return result
}

func (m *Migrator) migrate(ctx context.Context, act *Action) (migration.Migrations, error) {
	if err := m.requireRepository(ctx); err != nil {
		return nil, err
	}

	available, err := m.selector.Select(ctx, source.Filter{Keys: act.keys})
	if err != nil {
		return nil, errors.Wrap(err, "could not read migrations")
	}

	ran, err := m.gateway.GetRan(ctx)
	if err != nil {
		return nil, err
	}

	scheduled := database.ScheduleForMigration(available, ran, act.plan())
	if len(scheduled) == 0 {
		return nil, ErrNothingToMigrate
	}

	batch, err := m.gateway.GetNextBatchNumber(ctx)
	if err != nil {
		return nil, err
	}

	var migrated migration.Migrations
	for _, mg := range scheduled {
		if err := ctx.Err(); err != nil {
			return migrated, errors.Wrapf(err, "migrate interrupted before %s", mg.Key)
		}

		mg.Batch = batch
		if err := m.up(ctx, mg, act.pretend); err != nil {
			return migrated, err
		}

		migrated = append(migrated, mg)

		if act.stepBatches {
			batch++
		}
	}

	return migrated, nil
}

func (m *Migrator) rollback(ctx context.Context, act *Action) (migration.Migrations, error) {
	if err := m.requireRepository(ctx); err != nil {
		return nil, err
	}

	var records migration.Records
	var err error
	if act.steps > 0 {
		records, err = m.gateway.GetMigrations(ctx, act.steps)
	} else {
		records, err = m.gateway.GetLast(ctx)
	}

	if err != nil {
		return nil, err
	}

	return m.revert(ctx, records, act)
}

func (m *Migrator) reset(ctx context.Context, act *Action) (migration.Migrations, error) {
	if err := m.requireRepository(ctx); err != nil {
		return nil, err
	}

	ran, err := m.gateway.GetRan(ctx)
	if err != nil {
		return nil, err
	}

	if len(ran) == 0 {
		return nil, ErrNothingToRollback
	}

	var rolledBack migration.Migrations
	for _, batch := range database.GroupByBatch(ran) {
		reverted, err := m.revert(ctx, batch, &Action{pretend: act.pretend})
		rolledBack = append(rolledBack, reverted...)
		if err != nil {
			return rolledBack, err
		}
	}

	return rolledBack, nil
}

func (m *Migrator) revert(ctx context.Context, records migration.Records, act *Action) (migration.Migrations, error) {
	if len(records) == 0 {
		return nil, ErrNothingToRollback
	}

	available, err := m.selector.Select(ctx, source.Filter{})
	if err != nil {
		return nil, errors.Wrap(err, "could not read migrations")
	}

	scheduled, err := database.ScheduleForRollback(available, records, database.Plan{Keys: act.keys})
	if err != nil {
		return nil, err
	}

	if len(scheduled) == 0 {
		return nil, ErrNothingToRollback
	}

	var rolledBack migration.Migrations
	for _, mg := range scheduled {
		if err := ctx.Err(); err != nil {
			return rolledBack, errors.Wrapf(err, "rollback interrupted before %s", mg.Key)
		}

		if err := m.down(ctx, mg, act.pretend); err != nil {
			return rolledBack, err
		}

		rolledBack = append(rolledBack, mg)
	}

	return rolledBack, nil
}

func (m *Migrator) up(ctx context.Context, mg *migration.Migration, pretend bool) error {
	return m.run(ctx, mg, migration.DirectionUp, mg.Migrate, pretend, func(ctx context.Context) error {
		return m.gateway.Log(ctx, mg.Key, mg.Batch)
	})
}

func (m *Migrator) down(ctx context.Context, mg *migration.Migration, pretend bool) error {
	return m.run(ctx, mg, migration.DirectionDown, mg.Rollback, pretend, func(ctx context.Context) error {
		return m.gateway.Delete(ctx, mg.Key)
	})
}

// run executes the scripts of a single migration and then updates the log.
// Nothing is executed or logged when pretending.
func (m *Migrator) run(
	ctx context.Context,
	mg *migration.Migration,
	direction migration.Direction,
	scripts []string,
	pretend bool,
	updateLog func(ctx context.Context) error,
) error {
	start := time.Now()
	note := migration.Note{Key: mg.Key, Direction: direction, Batch: mg.Batch, Pretend: pretend}

	if pretend {
		script := mg.MigrateScripts()
		if direction == migration.DirectionDown {
			script = mg.RollbackScripts()
		}

		if script != "" {
			m.lg.Successf("%s: %s", mg.Key, script)
		}

		note.Duration = time.Since(start)
		m.record(note)
		return nil
	}

	if err := m.gateway.Exec(ctx, scripts); err != nil {
		note.Err = err
		note.Duration = time.Since(start)
		m.record(note)
		return &ExecutionError{Key: mg.Key, Direction: direction, Err: err}
	}

	if err := updateLog(ctx); err != nil {
		note.Err = err
		note.Duration = time.Since(start)
		m.record(note)
		return errors.Wrapf(err, "migration %s went %s but the log could not be updated", mg.Key, direction)
	}

	note.Duration = time.Since(start)
	m.record(note)

	return nil
}

func (m *Migrator) requireRepository(ctx context.Context) error {
	exists, err := m.gateway.RepositoryExists(ctx)
	if err != nil {
		return err
	}

	if !exists {
		return ErrRepositoryMissing
	}

	return nil
}

// exclusive serializes operations, connects the gateway and when lock is set
// holds the gateway lock for the duration of fn
func (m *Migrator) exclusive(ctx context.Context, lock bool, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.notes = nil

	if m.gateway == nil {
		return ErrGatewayNotInitialized
	}

	if err := database.Connect(ctx, m.gateway); err != nil {
		return err
	}

	if !lock {
		return fn(ctx)
	}

	if err := m.gateway.Lock(ctx); err != nil {
		return err
	}

	err := fn(ctx)

	unlockCtx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
	defer cancel()

	return multierr.Append(err, m.gateway.Unlock(unlockCtx))
}

// record must be called with m.mu held
func (m *Migrator) record(n migration.Note) {
	m.notes = append(m.notes, n)
	m.lg.Note(n)

	if m.observer != nil {
		m.observer(n)
	}
}

func (m *Migrator) report(err error, expected ...error) {
	if err == nil {
		return
	}

	for _, e := range expected {
		if errors.Is(err, e) {
			m.lg.Debugf("%s", err.Error())
			return
		}
	}

	m.lg.Error(err)
}

func (m *Migrator) close() error {
	var err error
	for i := len(m.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, m.closers[i]())
	}

	if m.gateway != nil {
		err = multierr.Append(err, m.gateway.Close())
	}

	if _, composed := m.gateway.(*database.Composite); m.store != nil && !composed {
		err = multierr.Append(err, m.store.Close())
	}

	return err
}

func buildStatus(available migration.Migrations, ran migration.Records) []MigrationStatus {
	applied := make(map[string]migration.Record, len(ran))
	for _, r := range ran {
		applied[r.Key] = r
	}

	result := make([]MigrationStatus, 0, len(available))
	for _, mg := range available {
		s := MigrationStatus{Key: mg.Key, Name: mg.Name}
		if r, ok := applied[mg.Key]; ok {
			s.Ran = true
			s.Batch = r.Batch
			s.MigratedAt = r.MigratedAt
			delete(applied, mg.Key)
		}
		result = append(result, s)
	}

	for _, r := range ran {
		if _, ok := applied[r.Key]; ok {
			result = append(result, MigrationStatus{
				Key:        r.Key,
				Ran:        true,
				Missing:    true,
				Batch:      r.Batch,
				MigratedAt: r.MigratedAt,
			})
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Key < result[j].Key
	})

	return result
}
