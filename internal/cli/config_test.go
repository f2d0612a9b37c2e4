package cli

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/denismitr/tern-orientdb/migration"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullConfig = `version: "1"
migrations:
  paths: [./graph, ./seeds]
  version_format: datetime
  default: main
connections:
  main:
    driver: orientdb
    url: http://localhost:2480
    database: demo
    username: root
    password: "%%TERN_TEST_ORIENT_PASSWORD%%"
    repository: schema_log
    lock: true
    lock_key: deploy
    max_attempts: 3
    retry_step: 250ms
    timeout: 30s
  replica:
    driver: orientdb
    url: http://replica:2480
    database: demo
repository:
  driver: sqlite
  dsn: ./tern.db
  table: log
`

func Test_ParseConfig(t *testing.T) {
	t.Setenv("TERN_TEST_ORIENT_PASSWORD", "s3cret")

	cfg, err := ParseConfig([]byte(fullConfig))
	require.NoError(t, err)

	assert.Equal(t, []string{"./graph", "./seeds"}, cfg.Migrations.Paths)
	assert.Equal(t, migration.DatetimeFormat, cfg.VersionFormat())

	name, conn, err := cfg.Connection("")
	require.NoError(t, err)
	assert.Equal(t, "main", name)
	assert.Equal(t, "s3cret", conn.Password)
	assert.Equal(t, "schema_log", conn.Repository)
	assert.True(t, conn.Lock)
	assert.Equal(t, "deploy", conn.LockKey)
	assert.Equal(t, 3, conn.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, conn.RetryStep)
	assert.Equal(t, 30*time.Second, conn.Timeout)

	name, conn, err = cfg.Connection("replica")
	require.NoError(t, err)
	assert.Equal(t, "replica", name)
	assert.Equal(t, "http://replica:2480", conn.URL)

	_, _, err = cfg.Connection("nope")
	assert.True(t, errors.Is(err, ErrConnectionNotFound))

	require.NotNil(t, cfg.Repository)
	assert.Equal(t, "sqlite", cfg.Repository.Driver)
	assert.Equal(t, "log", cfg.Repository.Table)
}

func Test_ParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
connections:
  only:
    driver: orientdb
    url: http://localhost:2480
    database: demo
`))
	require.NoError(t, err)

	assert.Equal(t, []string{"./migrations"}, cfg.Migrations.Paths)
	assert.Equal(t, migration.AnyFormat, cfg.VersionFormat())
	assert.Nil(t, cfg.Repository)

	name, _, err := cfg.Connection("")
	require.NoError(t, err)
	assert.Equal(t, "only", name, "a single connection is the default one")
}

func Test_ParseConfigRejectsInvalidConfig(t *testing.T) {
	tt := []struct {
		name string
		yaml string
		err  error
	}{
		{
			name: "no connections",
			yaml: "version: \"1\"\n",
			err:  ErrInvalidConfig,
		},
		{
			name: "unknown driver",
			yaml: "connections:\n  main:\n    driver: neo4j\n    url: http://localhost:7474\n    database: demo\n",
			err:  ErrInvalidConfig,
		},
		{
			name: "missing database",
			yaml: "connections:\n  main:\n    driver: orientdb\n    url: http://localhost:2480\n",
			err:  ErrInvalidConfig,
		},
		{
			name: "bad url",
			yaml: "connections:\n  main:\n    driver: orientdb\n    url: localhost\n    database: demo\n",
			err:  ErrInvalidConfig,
		},
		{
			name: "bad version format",
			yaml: "migrations:\n  version_format: roman\nconnections:\n  main:\n    driver: orientdb\n    url: http://localhost:2480\n    database: demo\n",
			err:  ErrInvalidConfig,
		},
		{
			name: "repository without dsn",
			yaml: "connections:\n  main:\n    driver: orientdb\n    url: http://localhost:2480\n    database: demo\nrepository:\n  driver: sqlite\n",
			err:  ErrInvalidConfig,
		},
		{
			name: "unknown default connection",
			yaml: "migrations:\n  default: other\nconnections:\n  main:\n    driver: orientdb\n    url: http://localhost:2480\n    database: demo\n",
			err:  ErrConnectionNotFound,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tc.yaml))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.err), err.Error())
		})
	}
}

func Test_ConnectionWithoutDefaultIsAmbiguous(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
connections:
  a:
    driver: orientdb
    url: http://a:2480
    database: demo
  b:
    driver: orientdb
    url: http://b:2480
    database: demo
`))
	require.NoError(t, err)

	_, _, err = cfg.Connection("")
	assert.True(t, errors.Is(err, ErrConnectionNotFound))
}

func Test_LoadConfigReadsDotEnvNextToIt(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TERN_TEST_ORIENT_DATABASE", "")
	require.NoError(t, os.Unsetenv("TERN_TEST_ORIENT_DATABASE"))

	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, ".env"), []byte("TERN_TEST_ORIENT_DATABASE=graph\n"), 0644))
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "tern.yml"), []byte(`
connections:
  main:
    driver: orientdb
    url: http://localhost:2480
    database: "%%TERN_TEST_ORIENT_DATABASE%%"
`), 0644))

	cfg, err := LoadConfig(filepath.Join(dir, "tern.yml"))
	require.NoError(t, err)

	_, conn, err := cfg.Connection("main")
	require.NoError(t, err)
	assert.Equal(t, "graph", conn.Database)
}

func Test_InitCfgWritesLoadableStub(t *testing.T) {
	t.Setenv("ORIENTDB_DATABASE", "demo")
	t.Setenv("ORIENTDB_PASSWORD", "root")

	path := filepath.Join(t.TempDir(), "tern.yml")
	require.NoError(t, InitCfg(path))
	assert.True(t, FileExists(path))

	err := InitCfg(path)
	assert.True(t, errors.Is(err, ErrConfigAlreadyExists))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	_, conn, err := cfg.Connection("")
	require.NoError(t, err)
	assert.Equal(t, "demo", conn.Database)
	assert.Equal(t, migration.DatedFormat, cfg.VersionFormat())
}
