package logger

import (
	"fmt"
	"io"

	"github.com/denismitr/tern-orientdb/migration"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger writes structured entries, run notes become
// one entry per migration with key, direction, batch and duration fields
type ZapLogger struct {
	log   *zap.Logger
	debug bool
	sql   bool
}

var _ Logger = (*ZapLogger)(nil)

func NewZapLogger(log *zap.Logger, sql, debug bool) *ZapLogger {
	return &ZapLogger{log: log.Named("tern"), sql: sql, debug: debug}
}

// NewJSONZap builds the zap logger used by the cli for --log-format=json.
// SQL entries are written at info level, so they do not need debug.
func NewJSONZap(w io.Writer, debug bool) *zap.Logger {
	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	encCfg.EncodeDuration = zapcore.MillisDurationEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.Lock(zapcore.AddSync(w)), level)

	return zap.New(core)
}

func (zl *ZapLogger) Successf(format string, args ...interface{}) {
	zl.log.Info(fmt.Sprintf(format, args...))
}

func (zl *ZapLogger) Debugf(format string, args ...interface{}) {
	if zl.debug {
		zl.log.Debug(fmt.Sprintf(format, args...))
	}
}

func (zl *ZapLogger) Error(err error) {
	zl.log.Error(err.Error())
}

func (zl *ZapLogger) SQL(query string, args ...interface{}) {
	if zl.sql {
		zl.log.Info("running sql", zap.String("query", query), zap.Any("params", args))
	}
}

func (zl *ZapLogger) Note(n migration.Note) {
	fields := []zap.Field{
		zap.String("key", n.Key),
		zap.String("direction", string(n.Direction)),
		zap.Uint("batch", uint(n.Batch)),
		zap.Duration("duration", n.Duration),
		zap.Bool("pretend", n.Pretend),
	}

	if n.Failed() {
		zl.log.Error("migration failed", append(fields, zap.Error(n.Err))...)
		return
	}

	zl.log.Info("migration note", fields...)
}
