package tern

import (
	"github.com/denismitr/tern-orientdb/internal/logger"
	"go.uber.org/zap"
)

func UseColorLogger(p logger.Printer, printSql, printDebug bool) OptionFunc {
	return func(m *Migrator) error {
		m.lg = logger.NewColorLogger(p, printSql, printDebug)
		return nil
	}
}

func UseLogger(p logger.Printer, printSql, printDebug bool) OptionFunc {
	return func(m *Migrator) error {
		m.lg = logger.NewBWLogger(p, printSql, printDebug)
		return nil
	}
}

// UseZapLogger writes structured logs, run notes become entries with
// key, direction, batch and duration fields
func UseZapLogger(z *zap.Logger, printSql, printDebug bool) OptionFunc {
	return func(m *Migrator) error {
		m.lg = logger.NewZapLogger(z, printSql, printDebug)
		return nil
	}
}
