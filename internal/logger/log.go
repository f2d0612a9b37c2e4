package logger

import (
	"fmt"
	"strings"

	"github.com/denismitr/tern-orientdb/migration"
	"github.com/logrusorgru/aurora/v3"
)

// Printer is satisfied by *log.Logger
type Printer interface {
	Output(calldepth int, s string) error
}

type Logger interface {
	Successf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Error(err error)
	SQL(query string, args ...interface{})
	Note(n migration.Note)
}

type level int

const (
	levelSuccess level = iota
	levelDebug
	levelError
	levelSQL
)

// PrinterLogger writes one line per event through a Printer. Debug and SQL
// lines are dropped unless enabled.
type PrinterLogger struct {
	printer Printer
	debug   bool
	sql     bool
	colored bool
}

type NullLogger struct{}

var _ Logger = (*PrinterLogger)(nil)
var _ Logger = NullLogger{}

func NewColorLogger(p Printer, sql, debug bool) *PrinterLogger {
	return &PrinterLogger{printer: p, sql: sql, debug: debug, colored: true}
}

func NewBWLogger(p Printer, sql, debug bool) *PrinterLogger {
	return &PrinterLogger{printer: p, sql: sql, debug: debug}
}

func (pl *PrinterLogger) Successf(format string, args ...interface{}) {
	pl.print(levelSuccess, "tern: "+fmt.Sprintf(format, args...))
}

func (pl *PrinterLogger) Debugf(format string, args ...interface{}) {
	if pl.debug {
		pl.print(levelDebug, "tern debug: "+fmt.Sprintf(format, args...))
	}
}

func (pl *PrinterLogger) Error(err error) {
	pl.print(levelError, "tern error: "+err.Error())
}

func (pl *PrinterLogger) SQL(query string, args ...interface{}) {
	if pl.sql {
		pl.print(levelSQL, formatSQL(query, args...))
	}
}

func (pl *PrinterLogger) Note(n migration.Note) {
	if n.Failed() {
		pl.print(levelError, formatNote(n))
		return
	}

	pl.print(levelSuccess, formatNote(n))
}

func (pl *PrinterLogger) print(l level, msg string) {
	if pl.colored {
		msg = paint(l, msg)
	}

	// skip print and the exported method
	_ = pl.printer.Output(3, msg)
}

func paint(l level, msg string) string {
	switch l {
	case levelDebug:
		return aurora.Yellow(msg).String()
	case levelError:
		return aurora.Red(msg).String()
	case levelSQL:
		return aurora.Gray(15, msg).String()
	default:
		return aurora.Green(msg).String()
	}
}

func (NullLogger) Successf(_ string, _ ...interface{}) {}

func (NullLogger) Debugf(_ string, _ ...interface{}) {}

func (NullLogger) SQL(_ string, _ ...interface{}) {}

func (NullLogger) Error(_ error) {}

func (NullLogger) Note(_ migration.Note) {}

func formatSQL(query string, args ...interface{}) string {
	if len(args) == 0 {
		return "tern running sql: " + query
	}

	params := make([]string, len(args))
	for i := range args {
		params[i] = fmt.Sprintf("{%#v}", args[i])
	}

	return "tern running sql: " + query + "\nquery parameters: " + strings.Join(params, ", ")
}

func formatNote(n migration.Note) string {
	var verb string
	switch {
	case n.Failed() && n.Direction == migration.DirectionDown:
		verb = "rollback failed"
	case n.Failed():
		verb = "migration failed"
	case n.Pretend:
		verb = "pretending"
	case n.Direction == migration.DirectionDown:
		verb = "rolled back"
	default:
		verb = "migrated"
	}

	msg := fmt.Sprintf("tern: %s: %s (batch %d, %s)", verb, n.Key, n.Batch, n.Duration)
	if n.Failed() {
		msg += ": " + n.Err.Error()
	}

	return msg
}
