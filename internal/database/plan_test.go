package database

import (
	"testing"

	"github.com/denismitr/tern-orientdb/migration"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedule(t *testing.T) {
	t.Parallel()

	migrations, err := migration.NewMigrations(
		migration.New("2024_01_01", "Create users", []string{"CREATE CLASS User EXTENDS V"}, []string{"DROP CLASS User"}),
		migration.New("2024_01_02", "Create posts", []string{"CREATE CLASS Post EXTENDS V"}, []string{"DROP CLASS Post"}),
		migration.New("2024_01_03", "Create wrote", []string{"CREATE CLASS Wrote EXTENDS E"}, []string{"DROP CLASS Wrote"}),
	)
	require.NoError(t, err)

	t.Run("it will schedule everything for migration if nothing was migrated", func(t *testing.T) {
		scheduled := ScheduleForMigration(migrations, nil, Plan{})
		assert.Equal(t, []string{
			"2024_01_01_create_users",
			"2024_01_02_create_posts",
			"2024_01_03_create_wrote",
		}, scheduled.Keys())
	})

	t.Run("it will skip migrations that already ran", func(t *testing.T) {
		ran := migration.Records{{Key: "2024_01_02_create_posts", Batch: 1}}
		scheduled := ScheduleForMigration(migrations, ran, Plan{})
		assert.Equal(t, []string{"2024_01_01_create_users", "2024_01_03_create_wrote"}, scheduled.Keys())
	})

	t.Run("it will schedule only 2 migrations if plan steps are limited to 2", func(t *testing.T) {
		scheduled := ScheduleForMigration(migrations, nil, Plan{Steps: 2})
		assert.Equal(t, []string{"2024_01_01_create_users", "2024_01_02_create_posts"}, scheduled.Keys())
	})

	t.Run("it will schedule only the keys in the plan", func(t *testing.T) {
		scheduled := ScheduleForMigration(migrations, nil, Plan{Keys: []string{"2024_01_03_create_wrote"}})
		assert.Equal(t, []string{"2024_01_03_create_wrote"}, scheduled.Keys())
	})

	t.Run("it will schedule a migration selected by its version alone", func(t *testing.T) {
		scheduled := ScheduleForMigration(migrations, nil, Plan{Keys: []string{"2024_01_03"}})
		assert.Equal(t, []string{"2024_01_03_create_wrote"}, scheduled.Keys())

		scheduled = ScheduleForMigration(migrations, nil, Plan{Keys: []string{"2024_01_01", "2024_01_02_create_posts"}})
		assert.Equal(t, []string{"2024_01_01_create_users", "2024_01_02_create_posts"}, scheduled.Keys())
	})

	t.Run("it will roll back a record selected by its version alone", func(t *testing.T) {
		records := migration.Records{
			{Key: "2024_01_01_create_users", Batch: 1},
			{Key: "2024_01_02_create_posts", Batch: 1},
		}

		scheduled, err := ScheduleForRollback(migrations, records, Plan{Keys: []string{"2024_01_01"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"2024_01_01_create_users"}, scheduled.Keys())
	})

	t.Run("it will schedule records for rollback in descending order", func(t *testing.T) {
		records := migration.Records{
			{Key: "2024_01_01_create_users", Batch: 1},
			{Key: "2024_01_03_create_wrote", Batch: 2},
			{Key: "2024_01_02_create_posts", Batch: 2},
		}

		scheduled, err := ScheduleForRollback(migrations, records, Plan{})
		require.NoError(t, err)
		assert.Equal(t, []string{
			"2024_01_03_create_wrote",
			"2024_01_02_create_posts",
			"2024_01_01_create_users",
		}, scheduled.Keys())
		assert.Equal(t, migration.Batch(2), scheduled[0].Batch)
		assert.Equal(t, migration.Batch(1), scheduled[2].Batch)
	})

	t.Run("it will schedule only 1 migration for rollback if steps are limited to one", func(t *testing.T) {
		records := migration.Records{
			{Key: "2024_01_01_create_users", Batch: 1},
			{Key: "2024_01_02_create_posts", Batch: 1},
		}

		scheduled, err := ScheduleForRollback(migrations, records, Plan{Steps: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"2024_01_02_create_posts"}, scheduled.Keys())
	})

	t.Run("it fails when a logged migration is not available", func(t *testing.T) {
		records := migration.Records{{Key: "2023_12_31_create_ghosts", Batch: 1}}

		_, err := ScheduleForRollback(migrations, records, Plan{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMigrationNotFound))
		assert.Contains(t, err.Error(), "2023_12_31_create_ghosts")
	})
}

func TestGroupByBatch(t *testing.T) {
	t.Parallel()

	groups := GroupByBatch(migration.Records{
		{Key: "a", Batch: 1},
		{Key: "b", Batch: 1},
		{Key: "c", Batch: 2},
		{Key: "d", Batch: 3},
		{Key: "e", Batch: 3},
	})

	require.Len(t, groups, 3)
	assert.Equal(t, []string{"e", "d"}, groups[0].Keys())
	assert.Equal(t, []string{"c"}, groups[1].Keys())
	assert.Equal(t, []string{"b", "a"}, groups[2].Keys())

	assert.Empty(t, GroupByBatch(nil))
}
