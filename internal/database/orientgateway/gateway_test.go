package orientgateway

import (
	"context"
	"testing"
	"time"

	"github.com/denismitr/tern-orientdb/internal/database"
	"github.com/denismitr/tern-orientdb/internal/retry"
	"github.com/denismitr/tern-orientdb/migration"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T, fake *fakeOrientDB, options Options) *Gateway {
	t.Helper()

	srv := fake.start()
	t.Cleanup(srv.Close)

	client, err := NewClient(ClientConfig{
		URL:      srv.URL,
		Database: fakeDatabase,
		Username: fakeUser,
		Password: fakePassword,
		Timeout:  5 * time.Second,
	})
	require.NoError(t, err)

	g, err := New(client, options)
	require.NoError(t, err)

	return g
}

func TestClientConfigIsValidated(t *testing.T) {
	_, err := NewClient(ClientConfig{URL: "not a url", Database: "demo"})
	assert.Error(t, err)

	_, err = NewClient(ClientConfig{URL: "http://localhost:2480"})
	assert.Error(t, err)
}

func TestGateway_Repository(t *testing.T) {
	ctx := context.Background()
	fake := newFakeOrientDB()
	g := newTestGateway(t, fake, NewDefaultOptions())

	t.Run("missing repository is reported", func(t *testing.T) {
		exists, err := g.RepositoryExists(ctx)
		require.NoError(t, err)
		assert.False(t, exists)

		_, err = g.GetRan(ctx)
		require.Error(t, err)
		assert.True(t, errors.Is(err, database.ErrRepositoryMissing))
	})

	t.Run("it can create the repository only once", func(t *testing.T) {
		require.NoError(t, g.CreateRepository(ctx))

		exists, err := g.RepositoryExists(ctx)
		require.NoError(t, err)
		assert.True(t, exists)

		err = g.CreateRepository(ctx)
		require.Error(t, err)
		assert.True(t, errors.Is(err, database.ErrRepositoryAlreadyExists))

		scripts := fake.executedScripts()
		require.Len(t, scripts, 1)
		assert.Contains(t, scripts[0], "CREATE INDEX migrations.migration IF NOT EXISTS ON migrations (migration) UNIQUE;")
	})

	t.Run("empty log", func(t *testing.T) {
		ran, err := g.GetRan(ctx)
		require.NoError(t, err)
		assert.Empty(t, ran)

		last, err := g.GetLastBatchNumber(ctx)
		require.NoError(t, err)
		assert.Equal(t, migration.Batch(0), last)

		next, err := g.GetNextBatchNumber(ctx)
		require.NoError(t, err)
		assert.Equal(t, migration.Batch(1), next)

		records, err := g.GetLast(ctx)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("it logs and reads migrations", func(t *testing.T) {
		require.NoError(t, g.Log(ctx, "2024_01_01_create_users", 1))
		require.NoError(t, g.Log(ctx, "2024_01_02_create_posts", 1))
		require.NoError(t, g.Log(ctx, "2024_01_03_create_wrote", 2))

		ran, err := g.GetRan(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{
			"2024_01_01_create_users",
			"2024_01_02_create_posts",
			"2024_01_03_create_wrote",
		}, ran.Keys())
		assert.Equal(t, 2024, ran[0].MigratedAt.Year())

		next, err := g.GetNextBatchNumber(ctx)
		require.NoError(t, err)
		assert.Equal(t, migration.Batch(3), next)

		last, err := g.GetLast(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"2024_01_03_create_wrote"}, last.Keys())

		steps, err := g.GetMigrations(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"2024_01_03_create_wrote", "2024_01_02_create_posts"}, steps.Keys())
	})

	t.Run("duplicate keys are rejected by the unique index", func(t *testing.T) {
		err := g.Log(ctx, "2024_01_01_create_users", 3)
		require.Error(t, err)

		var serverErr *ServerError
		require.True(t, errors.As(err, &serverErr))
		assert.Equal(t, 409, serverErr.Status)
	})

	t.Run("it deletes records", func(t *testing.T) {
		require.NoError(t, g.Delete(ctx, "2024_01_03_create_wrote"))

		last, err := g.GetLast(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"2024_01_02_create_posts", "2024_01_01_create_users"}, last.Keys())
	})

	t.Run("it drops the repository", func(t *testing.T) {
		require.NoError(t, g.DeleteRepository(ctx))

		exists, err := g.RepositoryExists(ctx)
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestGateway_Exec(t *testing.T) {
	ctx := context.Background()
	fake := newFakeOrientDB()
	g := newTestGateway(t, fake, NewDefaultOptions())

	require.NoError(t, g.Exec(ctx, nil))
	assert.Empty(t, fake.executedScripts())

	require.NoError(t, g.Exec(ctx, []string{"CREATE CLASS User EXTENDS V;\nCREATE PROPERTY User.name STRING;"}))
	assert.Equal(t, [][]string{{"CREATE CLASS User EXTENDS V;\nCREATE PROPERTY User.name STRING;"}}, fake.executedScripts())

	fake.failWith = "BROKEN"
	err := g.Exec(ctx, []string{"CREATE BROKEN THING;"})
	require.Error(t, err)

	var serverErr *ServerError
	require.True(t, errors.As(err, &serverErr))
	assert.Equal(t, 500, serverErr.Status)
	assert.Contains(t, serverErr.Content, "OCommandSQLParsingException")
}

func TestGateway_Connect(t *testing.T) {
	ctx := context.Background()

	t.Run("it retries until the server is up", func(t *testing.T) {
		fake := newFakeOrientDB()
		fake.downFor = 2

		options := NewDefaultOptions()
		options.Connect = ConnectOptions{MaxAttempts: 5, RetryStep: time.Millisecond}
		g := newTestGateway(t, fake, options)

		require.NoError(t, g.Connect(ctx))
		assert.Equal(t, 3, fake.connected)

		require.NoError(t, g.Connect(ctx))
		assert.Equal(t, 3, fake.connected, "a connected gateway must not ping again")
	})

	t.Run("it gives up when attempts are exhausted", func(t *testing.T) {
		fake := newFakeOrientDB()
		fake.downFor = 10

		options := NewDefaultOptions()
		options.Connect = ConnectOptions{MaxAttempts: 3, RetryStep: time.Millisecond}
		g := newTestGateway(t, fake, options)

		err := g.Connect(ctx)
		require.Error(t, err)
		assert.True(t, errors.Is(err, retry.ErrTooManyAttempts))
		assert.Equal(t, 3, fake.connected)
	})

	t.Run("rejected credentials are not retried", func(t *testing.T) {
		fake := newFakeOrientDB()
		srv := fake.start()
		defer srv.Close()

		client, err := NewClient(ClientConfig{URL: srv.URL, Database: fakeDatabase, Username: "root", Password: "wrong"})
		require.NoError(t, err)

		g, err := New(client, Options{Connect: ConnectOptions{MaxAttempts: 5, RetryStep: time.Millisecond}})
		require.NoError(t, err)

		err = g.Connect(ctx)
		require.Error(t, err)
		assert.True(t, isUnauthorized(err))
		assert.Equal(t, 0, fake.connected)
	})
}

func TestGateway_RejectsInvalidClassNames(t *testing.T) {
	client, err := NewClient(ClientConfig{URL: "http://localhost:2480", Database: "demo"})
	require.NoError(t, err)

	_, err = New(client, Options{Class: "migrations; DROP CLASS V"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidClassName))
}

func TestLocker(t *testing.T) {
	ctx := context.Background()
	fake := newFakeOrientDB()

	lockOptions := NewDefaultLockOptions("migrations")
	lockOptions.MaxAttempts = 2
	lockOptions.RetryStep = time.Millisecond

	options := NewDefaultOptions()
	options.Lock = &lockOptions

	first := newTestGateway(t, fake, options)
	second := newTestGateway(t, fake, options)

	require.NoError(t, first.Lock(ctx))

	owner, held := fake.lockHolder(DefaultLockKey)
	require.True(t, held)
	assert.Equal(t, first.locker.(*Locker).Owner(), owner)

	err := second.Lock(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, database.ErrLockTimeout))

	require.NoError(t, second.Unlock(ctx))
	_, held = fake.lockHolder(DefaultLockKey)
	assert.True(t, held, "only the owner can release the lock")

	require.NoError(t, first.Unlock(ctx))
	_, held = fake.lockHolder(DefaultLockKey)
	assert.False(t, held)

	require.NoError(t, second.Lock(ctx))
	require.NoError(t, second.Unlock(ctx))
}
