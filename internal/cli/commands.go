package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	tern "github.com/denismitr/tern-orientdb"
	"github.com/denismitr/tern-orientdb/migration"
	"github.com/logrusorgru/aurora/v3"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

const (
	DefaultConfigFile = "tern.yml"
	DefaultTimeout    = 120 * time.Second

	migratedAtLayout = "2006-01-02 15:04:05"
)

var ErrConfigNotFound = errors.New("config file not found, run tern init first")

type appFactory func(configPath string, s Settings) (*App, CloserFunc, error)

type rootFlags struct {
	config    string
	database  string
	timeout   time.Duration
	logFormat string
	debug     bool
	printSQL  bool
}

func NewRootCommand(out io.Writer) *cobra.Command {
	return newRootCommand(out, func(configPath string, s Settings) (*App, CloserFunc, error) {
		if !FileExists(configPath) {
			return nil, nil, errors.Wrapf(ErrConfigNotFound, "%s", configPath)
		}

		return NewFromYaml(configPath, s)
	})
}

func newRootCommand(out io.Writer, factory appFactory) *cobra.Command {
	var flags rootFlags

	root := &cobra.Command{
		Use:           "tern",
		Short:         "OrientDB schema migrations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.config, "config", "c", DefaultConfigFile, "config file")
	pf.StringVar(&flags.database, "database", "", "connection name, the default connection when empty")
	pf.DurationVar(&flags.timeout, "timeout", DefaultTimeout, "timeout of the whole command")
	pf.StringVar(&flags.logFormat, "log-format", LogFormatColor, "color, plain or json")
	pf.BoolVar(&flags.debug, "debug", false, "print debug messages")
	pf.BoolVar(&flags.printSQL, "print-sql", false, "print repository statements")

	r := &runner{out: out, flags: &flags, factory: factory}

	root.AddCommand(
		r.migrateCmd(),
		r.rollbackCmd(),
		r.resetCmd(),
		r.refreshCmd(),
		r.installCmd(),
		r.statusCmd(),
		r.makeMigrationCmd(),
		r.initCmd(),
	)

	return root
}

type runner struct {
	out     io.Writer
	flags   *rootFlags
	factory appFactory
}

func (r *runner) settings(paths []string) Settings {
	return Settings{
		Connection: r.flags.database,
		LogFormat:  r.flags.logFormat,
		Debug:      r.flags.debug,
		PrintSQL:   r.flags.printSQL,
		Paths:      paths,
		Out:        r.out,
	}
}

// withApp runs fn with a fresh app and a context bounded by --timeout
func (r *runner) withApp(cmd *cobra.Command, paths []string, fn func(ctx context.Context, app *App) error) (err error) {
	app, closer, err := r.factory(r.flags.config, r.settings(paths))
	if err != nil {
		return err
	}

	defer func() {
		err = multierr.Append(err, closer())
	}()

	ctx, cancel := context.WithTimeout(cmd.Context(), r.flags.timeout)
	defer cancel()

	return fn(ctx, app)
}

func (r *runner) migrateCmd() *cobra.Command {
	var (
		paths   []string
		limit   int
		only    []string
		step    bool
		pretend bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run the pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withApp(cmd, paths, func(ctx context.Context, app *App) error {
				migrated, err := app.Migrate(ctx, ActionConfig{
					Steps:       limit,
					Keys:        only,
					Pretend:     pretend,
					StepBatches: step,
				})

				if errors.Is(err, tern.ErrNothingToMigrate) {
					r.success("nothing to migrate")
					return nil
				}

				if err != nil {
					return err
				}

				r.success("migrated %d migration(s)", len(migrated))
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringSliceVar(&paths, "path", nil, "migrations folder, overrides the configured paths")
	f.IntVar(&limit, "limit", 0, "run at most this many migrations")
	f.StringSliceVar(&only, "only", nil, "run only these migration keys or versions")
	f.BoolVar(&step, "step", false, "give every migration its own batch")
	f.BoolVar(&pretend, "pretend", false, "print the scripts instead of running them")

	return cmd
}

func (r *runner) rollbackCmd() *cobra.Command {
	var (
		steps   int
		pretend bool
	)

	cmd := &cobra.Command{
		Use:   "migrate:rollback",
		Short: "Roll back the last batch of migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withApp(cmd, nil, func(ctx context.Context, app *App) error {
				rolledBack, err := app.Rollback(ctx, ActionConfig{Steps: steps, Pretend: pretend})
				if errors.Is(err, tern.ErrNothingToRollback) {
					r.success("nothing to rollback")
					return nil
				}

				if err != nil {
					return err
				}

				r.success("rolled back %d migration(s)", len(rolledBack))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&steps, "step", 0, "roll back this many migrations instead of the last batch")
	cmd.Flags().BoolVar(&pretend, "pretend", false, "print the scripts instead of running them")

	return cmd
}

func (r *runner) resetCmd() *cobra.Command {
	var pretend bool

	cmd := &cobra.Command{
		Use:   "migrate:reset",
		Short: "Roll back all migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withApp(cmd, nil, func(ctx context.Context, app *App) error {
				rolledBack, err := app.Reset(ctx, ActionConfig{Pretend: pretend})
				if errors.Is(err, tern.ErrNothingToRollback) {
					r.success("nothing to rollback")
					return nil
				}

				if err != nil {
					return err
				}

				r.success("rolled back %d migration(s)", len(rolledBack))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&pretend, "pretend", false, "print the scripts instead of running them")

	return cmd
}

func (r *runner) refreshCmd() *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:   "migrate:refresh",
		Short: "Reset and re-run all migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withApp(cmd, nil, func(ctx context.Context, app *App) error {
				rolledBack, migrated, err := app.Refresh(ctx, ActionConfig{Steps: steps})
				if err != nil && !errors.Is(err, tern.ErrNothingToMigrate) {
					return err
				}

				r.success("rolled back %d and migrated %d migration(s)", len(rolledBack), len(migrated))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&steps, "step", 0, "roll back only this many migrations before migrating")

	return cmd
}

func (r *runner) installCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate:install",
		Short: "Create the migration repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withApp(cmd, nil, func(ctx context.Context, app *App) error {
				err := app.Install(ctx)
				if errors.Is(err, tern.ErrRepositoryAlreadyExists) {
					r.success("migration repository is already installed")
					return nil
				}

				if err != nil {
					return err
				}

				r.success("migration repository created")
				return nil
			})
		},
	}
}

func (r *runner) statusCmd() *cobra.Command {
	var paths []string

	cmd := &cobra.Command{
		Use:   "migrate:status",
		Short: "Show the status of each migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withApp(cmd, paths, func(ctx context.Context, app *App) error {
				statuses, err := app.Status(ctx)
				if err != nil {
					return err
				}

				if len(statuses) == 0 {
					r.success("no migrations found")
					return nil
				}

				return writeStatus(r.out, statuses)
			})
		},
	}

	cmd.Flags().StringSliceVar(&paths, "path", nil, "migrations folder, overrides the configured paths")

	return cmd
}

func (r *runner) makeMigrationCmd() *cobra.Command {
	var (
		mc         MakeConfig
		noRollback bool
	)

	cmd := &cobra.Command{
		Use:   "make:migration <name>",
		Short: "Create a new migration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var paths []string
			if mc.Path != "" {
				paths = []string{mc.Path}
			}

			create := func(_ context.Context, app *App) error {
				mc.WithRollback = !noRollback

				created, err := app.CreateMigration(args[0], mc)
				if err != nil {
					return err
				}

				for _, f := range created.Files {
					r.success("created %s", f)
				}

				return nil
			}

			// no connection is needed, an explicit folder works without a config
			if mc.Path != "" && !FileExists(r.flags.config) {
				app, _, _ := newApp(nil, r.settings(paths), nil)
				return create(cmd.Context(), app)
			}

			return r.withApp(cmd, paths, create)
		},
	}

	f := cmd.Flags()
	f.StringVar(&mc.Table, "table", "", "class the migration changes")
	f.StringVar(&mc.Create, "create", "", "class the migration creates")
	f.BoolVar(&mc.Edge, "edge", false, "the created class is an edge class")
	f.StringVar(&mc.Path, "path", "", "folder to create the migration in")
	f.BoolVar(&noRollback, "no-rollback", false, "do not create the rollback file")

	return cmd
}

func (r *runner) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file stub",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := InitCfg(r.flags.config); err != nil {
				return err
			}

			r.success("created %s", r.flags.config)
			return nil
		},
	}
}

func (r *runner) success(format string, args ...interface{}) {
	_, _ = fmt.Fprintln(r.out, aurora.Green("tern-cli: "), fmt.Sprintf(format, args...))
}

func writeStatus(out io.Writer, statuses []tern.MigrationStatus) error {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, "RAN?\tMIGRATION\tBATCH\tMIGRATED AT")

	for _, s := range statuses {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ranLabel(s), s.Key, batchLabel(s.Batch), migratedAtLabel(s))
	}

	return w.Flush()
}

func ranLabel(s tern.MigrationStatus) string {
	switch {
	case s.Missing:
		return "Missing"
	case s.Ran:
		return "Yes"
	default:
		return "No"
	}
}

func batchLabel(b migration.Batch) string {
	if b == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", b)
}

func migratedAtLabel(s tern.MigrationStatus) string {
	if s.MigratedAt.IsZero() {
		return "-"
	}
	return s.MigratedAt.Format(migratedAtLayout)
}

// PrintError writes err the way every tern-cli message is written
func PrintError(out io.Writer, err error) {
	_, _ = fmt.Fprintln(out, aurora.Red("tern-cli: "), err.Error())
}
