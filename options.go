package tern

import (
	"github.com/denismitr/tern-orientdb/internal/database"
	"github.com/denismitr/tern-orientdb/migration"
)

type OptionFunc func(*Migrator) error

// UseGateway runs migrations through an already built gateway
func UseGateway(g database.Gateway) OptionFunc {
	return func(m *Migrator) error {
		m.gateway = g
		return nil
	}
}

// UseNoteObserver registers a callback receiving a note for every migration
// run, rolled back or failed
func UseNoteObserver(observer migration.NoteObserver) OptionFunc {
	return func(m *Migrator) error {
		m.observer = observer
		return nil
	}
}

// WithCloser registers a function called when the migrator is closed
func WithCloser(fn CloserFunc) OptionFunc {
	return func(m *Migrator) error {
		m.closers = append(m.closers, fn)
		return nil
	}
}
