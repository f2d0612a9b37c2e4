package migration

import "time"

type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Note describes what happened to a single migration during a run.
// Err is set when the migration failed and the run halted on it.
type Note struct {
	Key       string
	Direction Direction
	Batch     Batch
	Duration  time.Duration
	Pretend   bool
	Err       error
}

func (n Note) Failed() bool {
	return n.Err != nil
}

type NoteObserver func(Note)
