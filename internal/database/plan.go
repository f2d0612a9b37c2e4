package database

import (
	"sort"

	"github.com/denismitr/tern-orientdb/migration"
	"github.com/pkg/errors"
)

type Plan struct {
	Steps int
	// Keys matches on the full migration key or on its version alone
	Keys []string
}

func (p Plan) allows(key, version string) bool {
	if len(p.Keys) == 0 {
		return true
	}

	for i := range p.Keys {
		if p.Keys[i] == key || (version != "" && p.Keys[i] == version) {
			return true
		}
	}

	return false
}

// ScheduleForMigration picks the available migrations that have not been
// applied yet, in ascending key order
func ScheduleForMigration(
	migrations migration.Migrations,
	ran migration.Records,
	p Plan,
) migration.Migrations {
	var scheduled migration.Migrations

	for i := range migrations {
		if ran.Contains(migrations[i].Key) || !p.allows(migrations[i].Key, migrations[i].Version.Value) {
			continue
		}

		if p.Steps != 0 && len(scheduled) >= p.Steps {
			break
		}

		scheduled = append(scheduled, migrations[i])
	}

	return scheduled
}

// ScheduleForRollback resolves the given records against the available
// migrations and returns them in descending key order. A record whose
// migration cannot be found is an error, since there is nothing to run
// to revert it.
func ScheduleForRollback(
	migrations migration.Migrations,
	records migration.Records,
	p Plan,
) (migration.Migrations, error) {
	ordered := make(migration.Records, len(records))
	copy(ordered, records)
	sortDescending(ordered)

	var scheduled migration.Migrations
	for i := range ordered {
		m, ok := migrations.Find(ordered[i].Key)

		var version string
		if ok {
			version = m.Version.Value
		}

		if !p.allows(ordered[i].Key, version) {
			continue
		}

		if p.Steps != 0 && len(scheduled) >= p.Steps {
			break
		}

		if !ok {
			return nil, errors.Wrapf(ErrMigrationNotFound, "%s", ordered[i].Key)
		}

		m.Batch = ordered[i].Batch
		scheduled = append(scheduled, m)
	}

	return scheduled, nil
}

// GroupByBatch splits records into batches, the newest batch first and
// each batch in descending key order
func GroupByBatch(records migration.Records) []migration.Records {
	ordered := make(migration.Records, len(records))
	copy(ordered, records)
	sortDescending(ordered)

	var groups []migration.Records
	for i := range ordered {
		if len(groups) == 0 || groups[len(groups)-1][0].Batch != ordered[i].Batch {
			groups = append(groups, migration.Records{})
		}

		last := len(groups) - 1
		groups[last] = append(groups[last], ordered[i])
	}

	return groups
}

func sortDescending(r migration.Records) {
	sort.SliceStable(r, func(i, j int) bool {
		if r[i].Batch != r[j].Batch {
			return r[i].Batch > r[j].Batch
		}
		return r[i].Key > r[j].Key
	})
}
