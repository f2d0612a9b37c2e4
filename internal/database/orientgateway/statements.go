package orientgateway

import (
	"fmt"
	"regexp"

	"github.com/pkg/errors"
)

var ErrInvalidClassName = errors.New("invalid orientdb class name")

var classNameRegexp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validateClassName(name string) error {
	if !classNameRegexp.MatchString(name) {
		return errors.Wrapf(ErrInvalidClassName, "%q", name)
	}
	return nil
}

// statements builds the SQL for the migration log class.
// Class names cannot be bound as parameters, they are validated on construction.
type statements struct {
	class string
}

func (s statements) createRepository() []string {
	return []string{
		fmt.Sprintf("CREATE CLASS %s IF NOT EXISTS;", s.class),
		fmt.Sprintf("CREATE PROPERTY %s.migration IF NOT EXISTS STRING (MANDATORY TRUE, NOTNULL TRUE);", s.class),
		fmt.Sprintf("CREATE PROPERTY %s.batch IF NOT EXISTS INTEGER (MANDATORY TRUE, NOTNULL TRUE);", s.class),
		fmt.Sprintf("CREATE PROPERTY %s.migrated_at IF NOT EXISTS DATETIME;", s.class),
		fmt.Sprintf("CREATE INDEX %s.migration IF NOT EXISTS ON %s (migration) UNIQUE;", s.class, s.class),
	}
}

func (s statements) deleteRepository() []string {
	return []string{
		fmt.Sprintf("DROP INDEX %s.migration IF EXISTS;", s.class),
		fmt.Sprintf("DROP CLASS %s IF EXISTS UNSAFE;", s.class),
	}
}

func (s statements) classExists() string {
	return "SELECT name FROM (SELECT expand(classes) FROM metadata:schema) WHERE name = :name"
}

func (s statements) getRan() string {
	return fmt.Sprintf("SELECT migration, batch, migrated_at FROM %s ORDER BY batch ASC, migration ASC", s.class)
}

func (s statements) getBatch() string {
	return fmt.Sprintf("SELECT migration, batch, migrated_at FROM %s WHERE batch = :batch ORDER BY migration DESC", s.class)
}

func (s statements) getMigrations(steps int) string {
	return fmt.Sprintf(
		"SELECT migration, batch, migrated_at FROM %s ORDER BY batch DESC, migration DESC LIMIT %d",
		s.class, steps,
	)
}

func (s statements) lastBatch() string {
	return fmt.Sprintf("SELECT max(batch) AS batch FROM %s", s.class)
}

func (s statements) log() string {
	return fmt.Sprintf("INSERT INTO %s SET migration = :migration, batch = :batch, migrated_at = sysdate()", s.class)
}

func (s statements) delete() string {
	return fmt.Sprintf("DELETE FROM %s WHERE migration = :migration", s.class)
}
