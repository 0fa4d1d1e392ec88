// Package log provides the node's structured logger. It replaces the
// teacher's bracket-tagged stdlib `log.Printf("[component] ...")` calls
// with a zap logger carrying a "component" field, keeping the same
// per-subsystem tagging convention (consensus, network, rpc, events,
// indexer, sync, spindle, loom) in structured form.
package log

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var base = mustBuild()

func mustBuild() *zap.Logger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), zapcore.AddSync(os.Stderr), zap.InfoLevel)
	return zap.New(core)
}

// SetLevel swaps the process-wide minimum log level; "debug", "info",
// "warn", "error" are accepted, and any other value selects "info".
func SetLevel(level string) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zap.InfoLevel
	}
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), zapcore.AddSync(os.Stderr), lvl)
	base = zap.New(core)
}

// For returns a component-scoped logger, e.g. log.For("consensus").
func For(component string) *zap.SugaredLogger {
	return base.Sugar().With("component", component)
}

// Sync flushes any buffered log entries. Call before process exit.
func Sync() {
	_ = base.Sync()
}
