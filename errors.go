package tern

import (
	"fmt"

	"github.com/denismitr/tern-orientdb/migration"
)

// ExecutionError is returned when the scripts of a migration fail. The run
// halts on it, migrations applied before it in the same batch stay logged.
type ExecutionError struct {
	Key       string
	Direction migration.Direction
	Err       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: migration %s failed going %s: %s", ErrMigrationExecutionFailed, e.Key, e.Direction, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return target == ErrMigrationExecutionFailed
}
