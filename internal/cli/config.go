package cli

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/denismitr/tern-orientdb/internal/source"
	"github.com/denismitr/tern-orientdb/migration"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

var (
	ErrInvalidConfig      = errors.New("tern configuration is invalid")
	ErrConnectionNotFound = errors.New("database connection is not configured")
)

var envPlaceholderRegexp = regexp.MustCompile(`%%([A-Za-z_][A-Za-z0-9_]*)%%`)

type (
	Migrations struct {
		Paths         []string `yaml:"paths"`
		VersionFormat string   `yaml:"version_format" validate:"omitempty,oneof=timestamp datetime dated any"`
		Default       string   `yaml:"default"`
	}

	ConnectionConfig struct {
		Driver        string        `yaml:"driver" validate:"required,oneof=orientdb"`
		URL           string        `yaml:"url" validate:"required,url"`
		Database      string        `yaml:"database" validate:"required"`
		Username      string        `yaml:"username"`
		Password      string        `yaml:"password"`
		Repository    string        `yaml:"repository"`
		Lock          bool          `yaml:"lock"`
		LockKey       string        `yaml:"lock_key"`
		Transactional bool          `yaml:"transactional"`
		MaxAttempts   int           `yaml:"max_attempts" validate:"gte=0"`
		RetryStep     time.Duration `yaml:"retry_step" validate:"gte=0"`
		Timeout       time.Duration `yaml:"timeout" validate:"gte=0"`
	}

	// RepositoryConfig moves the migration log out of the graph into a SQL table
	RepositoryConfig struct {
		Driver string `yaml:"driver" validate:"required,oneof=sqlite sqlite3 mysql"`
		DSN    string `yaml:"dsn" validate:"required"`
		Table  string `yaml:"table"`
	}

	Config struct {
		Version     string                      `yaml:"version"`
		Migrations  Migrations                  `yaml:"migrations"`
		Connections map[string]ConnectionConfig `yaml:"connections" validate:"required,min=1,dive"`
		Repository  *RepositoryConfig           `yaml:"repository"`
	}
)

// LoadConfig reads the yaml configuration at path. A .env file next to it is
// loaded first, then every %%NAME%% placeholder is replaced with the value
// of the NAME environment variable.
func LoadConfig(path string) (*Config, error) {
	envFile := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "could not load %s", envFile)
	}

	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "could not read tern configuration file")
	}

	return ParseConfig(b)
}

func ParseConfig(b []byte) (*Config, error) {
	b = expandEnv(b)

	cfg := new(Config)
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.SetStrict(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.Wrap(err, "could not parse tern configuration file")
	}

	if len(cfg.Migrations.Paths) == 0 {
		cfg.Migrations.Paths = []string{source.DefaultMigrationsFolder}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, errors.Wrapf(ErrInvalidConfig, "%s", err.Error())
	}

	if cfg.Migrations.Default != "" {
		if _, ok := cfg.Connections[cfg.Migrations.Default]; !ok {
			return nil, errors.Wrapf(ErrConnectionNotFound, "default connection %q", cfg.Migrations.Default)
		}
	}

	return cfg, nil
}

// Connection returns the named connection, an empty name picks the default
// one, or the only one when there is no default
func (c *Config) Connection(name string) (string, ConnectionConfig, error) {
	if name == "" {
		name = c.Migrations.Default
	}

	if name == "" && len(c.Connections) == 1 {
		for n := range c.Connections {
			name = n
		}
	}

	if name == "" {
		return "", ConnectionConfig{}, errors.Wrapf(
			ErrConnectionNotFound,
			"no default connection, pick one of %v with --database",
			c.connectionNames(),
		)
	}

	conn, ok := c.Connections[name]
	if !ok {
		return "", ConnectionConfig{}, errors.Wrapf(ErrConnectionNotFound, "%q", name)
	}

	return name, conn, nil
}

func (c *Config) VersionFormat() migration.VersionFormat {
	if c.Migrations.VersionFormat == "" {
		return migration.AnyFormat
	}

	return migration.VersionFormat(c.Migrations.VersionFormat)
}

func (c *Config) connectionNames() []string {
	names := make([]string, 0, len(c.Connections))
	for n := range c.Connections {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func expandEnv(b []byte) []byte {
	return envPlaceholderRegexp.ReplaceAllFunc(b, func(m []byte) []byte {
		name := envPlaceholderRegexp.FindSubmatch(m)[1]
		return []byte(os.Getenv(string(name)))
	})
}
