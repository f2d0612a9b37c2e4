package logger

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/denismitr/tern-orientdb/migration"
	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type printerSpy struct {
	lines []string
}

func (p *printerSpy) Output(_ int, s string) error {
	p.lines = append(p.lines, s)
	return nil
}

func TestPrinterLogger_Plain(t *testing.T) {
	t.Run("debug and sql are muted unless enabled", func(t *testing.T) {
		p := &printerSpy{}
		lg := NewBWLogger(p, false, false)

		lg.Debugf("hidden %d", 1)
		lg.SQL("SELECT FROM migrations")
		lg.Successf("visible %s", "line")

		require.Len(t, p.lines, 1)
		assert.Equal(t, "tern: visible line", p.lines[0])
	})

	t.Run("sql lines carry parameters", func(t *testing.T) {
		p := &printerSpy{}
		lg := NewBWLogger(p, true, true)

		lg.SQL("DELETE FROM migrations WHERE migration = :migration", "2024_01_01_create_users")

		require.Len(t, p.lines, 1)
		assert.Contains(t, p.lines[0], "DELETE FROM migrations")
		assert.Contains(t, p.lines[0], `{"2024_01_01_create_users"}`)
	})

	t.Run("notes", func(t *testing.T) {
		p := &printerSpy{}
		lg := NewBWLogger(p, false, false)

		lg.Note(migration.Note{Key: "2024_01_01_create_users", Direction: migration.DirectionUp, Batch: 1, Duration: time.Millisecond})
		lg.Note(migration.Note{Key: "2024_01_01_create_users", Direction: migration.DirectionDown, Batch: 1})
		lg.Note(migration.Note{Key: "2024_01_02_create_posts", Direction: migration.DirectionUp, Batch: 2, Err: errors.New("boom")})

		require.Len(t, p.lines, 3)
		assert.True(t, strings.HasPrefix(p.lines[0], "tern: migrated: 2024_01_01_create_users (batch 1"))
		assert.True(t, strings.HasPrefix(p.lines[1], "tern: rolled back: 2024_01_01_create_users"))
		assert.Contains(t, p.lines[2], "migration failed: 2024_01_02_create_posts")
		assert.True(t, strings.HasSuffix(p.lines[2], ": boom"))
	})
}

func TestPrinterLogger_Colored(t *testing.T) {
	p := &printerSpy{}
	lg := NewColorLogger(p, true, true)

	lg.Successf("done")
	lg.Debugf("debug")
	lg.Error(errors.New("bad"))
	lg.SQL("SELECT 1")
	lg.Note(migration.Note{Key: "k", Direction: migration.DirectionUp, Pretend: true})

	require.Len(t, p.lines, 5)
	assert.Contains(t, p.lines[0], "tern: done")
	assert.Contains(t, p.lines[2], "tern error: bad")
	assert.Contains(t, p.lines[4], "pretending: k")

	for _, line := range p.lines {
		assert.True(t, strings.HasPrefix(line, "\x1b["), line)
	}
}

func TestZapLogger_Notes(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	lg := NewZapLogger(zap.New(core), true, true)

	lg.Note(migration.Note{Key: "2024_01_01_create_users", Direction: migration.DirectionUp, Batch: 3, Duration: 2 * time.Second})
	lg.Note(migration.Note{Key: "2024_01_02_create_posts", Direction: migration.DirectionDown, Batch: 3, Err: errors.New("boom")})
	lg.SQL("SELECT FROM migrations", 1)
	lg.Debugf("debug %s", "on")

	entries := logs.AllUntimed()
	require.Len(t, entries, 4)

	first := entries[0].ContextMap()
	assert.Equal(t, "migration note", entries[0].Message)
	assert.Equal(t, "2024_01_01_create_users", first["key"])
	assert.Equal(t, "up", first["direction"])
	assert.Equal(t, uint64(3), first["batch"])
	assert.Equal(t, 2*time.Second, first["duration"])

	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])

	assert.Equal(t, "running sql", entries[2].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[2].Level)
	assert.Equal(t, "debug on", entries[3].Message)
}

func TestJSONZap_PrintsSQLWithoutDebug(t *testing.T) {
	var buf bytes.Buffer
	lg := NewZapLogger(NewJSONZap(&buf, false), true, false)

	lg.SQL("SELECT FROM migrations WHERE key = ?", "2024_01_01_create_users")
	lg.Debugf("hidden")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "running sql", entry["msg"])
	assert.Equal(t, "SELECT FROM migrations WHERE key = ?", entry["query"])
	assert.NotEmpty(t, entry["ts"])

	buf.Reset()
	NewZapLogger(NewJSONZap(&buf, false), false, false).SQL("SELECT 1")
	assert.Empty(t, buf.String())
}
