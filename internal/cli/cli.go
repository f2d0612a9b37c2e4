package cli

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	tern "github.com/denismitr/tern-orientdb"
	"github.com/denismitr/tern-orientdb/internal/logger"
	"github.com/denismitr/tern-orientdb/internal/source"
	"github.com/denismitr/tern-orientdb/migration"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

var ErrConfigAlreadyExists = errors.New("config file already exists")

type (
	CloserFunc func() error

	Settings struct {
		Connection string
		LogFormat  string
		Debug      bool
		PrintSQL   bool
		Paths      []string
		Out        io.Writer
	}

	ActionConfig struct {
		Steps       int
		Keys        []string
		Pretend     bool
		StepBatches bool
	}

	MakeConfig struct {
		Table        string
		Create       string
		Edge         bool
		Path         string
		WithRollback bool
	}

	App struct {
		cfg      *Config
		settings Settings
		clock    migration.ClockFunc

		factory  MigratorFactory
		migrator *tern.Migrator
		closer   tern.CloserFunc
	}
)

// NewFromYaml loads the configuration file and creates an app on top of it,
// the database is not touched until a command needs it
func NewFromYaml(path string, s Settings) (*App, CloserFunc, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, nil, err
	}

	return New(cfg, s)
}

func New(cfg *Config, s Settings) (*App, CloserFunc, error) {
	if s.Out == nil {
		s.Out = os.Stdout
	}

	return newApp(cfg, s, configMigratorFactory(cfg, s))
}

func newApp(cfg *Config, s Settings, factory MigratorFactory) (*App, CloserFunc, error) {
	app := &App{
		cfg:      cfg,
		settings: s,
		clock:    time.Now,
		factory:  factory,
	}

	return app, app.close, nil
}

// Migrate installs the migration repository when it is missing and runs
// every pending migration
func (app *App) Migrate(ctx context.Context, cfg ActionConfig) (migration.Migrations, error) {
	m, err := app.resolve()
	if err != nil {
		return nil, err
	}

	installed, err := m.Installed(ctx)
	if err != nil {
		return nil, err
	}

	if !installed && !cfg.Pretend {
		if err := m.Install(ctx); err != nil && !errors.Is(err, tern.ErrRepositoryAlreadyExists) {
			return nil, err
		}
	}

	return m.Migrate(ctx, cfg.configurators()...)
}

func (app *App) Rollback(ctx context.Context, cfg ActionConfig) (migration.Migrations, error) {
	m, err := app.resolve()
	if err != nil {
		return nil, err
	}

	return m.Rollback(ctx, cfg.configurators()...)
}

func (app *App) Reset(ctx context.Context, cfg ActionConfig) (migration.Migrations, error) {
	m, err := app.resolve()
	if err != nil {
		return nil, err
	}

	return m.Reset(ctx, cfg.configurators()...)
}

func (app *App) Refresh(ctx context.Context, cfg ActionConfig) (migration.Migrations, migration.Migrations, error) {
	m, err := app.resolve()
	if err != nil {
		return nil, nil, err
	}

	return m.Refresh(ctx, cfg.configurators()...)
}

func (app *App) Install(ctx context.Context) error {
	m, err := app.resolve()
	if err != nil {
		return err
	}

	return m.Install(ctx)
}

func (app *App) Status(ctx context.Context) ([]tern.MigrationStatus, error) {
	m, err := app.resolve()
	if err != nil {
		return nil, err
	}

	return m.Status(ctx)
}

// CreateMigration writes a new migration into the --path folder or the
// first configured one. --create and --table name the class like in Laravel.
func (app *App) CreateMigration(name string, cfg MakeConfig) (*source.Created, error) {
	folder := cfg.Path
	if folder == "" {
		folder = app.migrationsFolder()
	}

	opts := source.CreateOptions{
		Class:        cfg.Table,
		Edge:         cfg.Edge,
		WithRollback: cfg.WithRollback,
	}

	if cfg.Create != "" {
		opts.Class = cfg.Create
		opts.Create = true
	}

	if cfg.Edge && opts.Class == "" {
		opts.Create = true
	}

	c := source.NewCreator(app.versionFormat(), app.clock, logger.NullLogger{})

	return c.Create(name, folder, opts)
}

func (app *App) migrationsFolder() string {
	if len(app.settings.Paths) > 0 {
		return app.settings.Paths[0]
	}

	if app.cfg != nil && len(app.cfg.Migrations.Paths) > 0 {
		return app.cfg.Migrations.Paths[0]
	}

	return source.DefaultMigrationsFolder
}

func (app *App) versionFormat() migration.VersionFormat {
	if app.cfg == nil {
		return migration.DatedFormat
	}

	return app.cfg.VersionFormat()
}

func (app *App) resolve() (*tern.Migrator, error) {
	if app.migrator != nil {
		return app.migrator, nil
	}

	m, closer, err := app.factory()
	if err != nil {
		return nil, err
	}

	app.migrator = m
	app.closer = closer

	return m, nil
}

func (app *App) close() error {
	if app.closer == nil {
		return nil
	}

	err := app.closer()
	app.migrator = nil
	app.closer = nil

	return err
}

func (cfg ActionConfig) configurators() []tern.ActionConfigurator {
	configurators := tern.CreateConfigurators(cfg.Steps, cfg.Keys, cfg.Pretend)
	if cfg.StepBatches {
		configurators = append(configurators, tern.WithStepBatches())
	}
	return configurators
}

// InitCfg writes a configuration stub, an existing file is never overwritten
func InitCfg(path string) (err error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return errors.Wrapf(ErrConfigAlreadyExists, "%s", path)
		}

		return errors.Wrap(err, "could not create config file")
	}

	defer func() {
		err = multierr.Append(err, f.Close())
	}()

	if _, err := io.Copy(f, strings.NewReader(configFileStub)); err != nil {
		return errors.Wrap(err, "could not write config file")
	}

	return nil
}

func FileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

const configFileStub = `version: "1"

migrations:
  paths:
    - ./migrations
  version_format: dated
  default: main

connections:
  main:
    driver: orientdb
    url: http://localhost:2480
    database: "%%ORIENTDB_DATABASE%%"
    username: root
    password: "%%ORIENTDB_PASSWORD%%"
    repository: migrations
    lock: false
    max_attempts: 5
    timeout: 30s

# keep the migration log outside of the graph
# repository:
#   driver: sqlite
#   dsn: ./tern.db
#   table: migrations
`
