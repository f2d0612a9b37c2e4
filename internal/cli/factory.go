package cli

import (
	"io"
	"log"
	"time"

	tern "github.com/denismitr/tern-orientdb"
	"github.com/denismitr/tern-orientdb/internal/logger"
	"github.com/pkg/errors"
)

const (
	LogFormatColor = "color"
	LogFormatPlain = "plain"
	LogFormatJSON  = "json"

	defaultRetryStep = time.Second
)

var ErrUnknownLogFormat = errors.New("unknown log format")

// MigratorFactory builds the migrator on first use, so commands that never
// touch the database never connect to it
type MigratorFactory func() (*tern.Migrator, tern.CloserFunc, error)

func configMigratorFactory(cfg *Config, s Settings) MigratorFactory {
	return func() (*tern.Migrator, tern.CloserFunc, error) {
		_, conn, err := cfg.Connection(s.Connection)
		if err != nil {
			return nil, nil, err
		}

		lgOpt, err := loggerOption(s)
		if err != nil {
			return nil, nil, err
		}

		paths := cfg.Migrations.Paths
		if len(s.Paths) > 0 {
			paths = s.Paths
		}

		opts := []tern.OptionFunc{
			lgOpt,
			tern.UseOrientDB(conn.URL, conn.Database, orientOptions(conn)...),
			tern.UseLocalFolders(paths, tern.WithVersionFormat(cfg.VersionFormat())),
		}

		if r := cfg.Repository; r != nil {
			var cfs []tern.SQLRepositoryConfigurator
			if r.Table != "" {
				cfs = append(cfs, tern.WithRepositoryTable(r.Table))
			}

			opts = append(opts, tern.UseSQLRepository(r.Driver, r.DSN, cfs...))
		}

		return tern.NewMigrator(opts...)
	}
}

func orientOptions(conn ConnectionConfig) []tern.OrientOptionFunc {
	opts := []tern.OrientOptionFunc{
		tern.WithOrientCredentials(conn.Username, conn.Password),
	}

	if conn.Timeout > 0 {
		opts = append(opts, tern.WithOrientTimeout(conn.Timeout))
	}

	if conn.Repository != "" {
		opts = append(opts, tern.WithOrientRepositoryClass(conn.Repository))
	}

	if conn.MaxAttempts > 0 {
		step := conn.RetryStep
		if step == 0 {
			step = defaultRetryStep
		}
		opts = append(opts, tern.WithOrientConnectAttempts(conn.MaxAttempts, step))
	}

	if conn.Lock {
		opts = append(opts, tern.WithOrientLock(conn.LockKey))
	}

	if conn.Transactional {
		opts = append(opts, tern.WithOrientTransactionalScripts())
	}

	return opts
}

func loggerOption(s Settings) (tern.OptionFunc, error) {
	switch s.LogFormat {
	case "", LogFormatColor:
		return tern.UseColorLogger(printer(s.Out), s.PrintSQL, s.Debug), nil
	case LogFormatPlain:
		return tern.UseLogger(printer(s.Out), s.PrintSQL, s.Debug), nil
	case LogFormatJSON:
		z := logger.NewJSONZap(s.Out, s.Debug)

		return func(m *tern.Migrator) error {
			if err := tern.UseZapLogger(z, s.PrintSQL, s.Debug)(m); err != nil {
				return err
			}

			return tern.WithCloser(func() error {
				_ = z.Sync()
				return nil
			})(m)
		}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownLogFormat, "%q", s.LogFormat)
	}
}

func printer(out io.Writer) *log.Logger {
	return log.New(out, "", 0)
}
