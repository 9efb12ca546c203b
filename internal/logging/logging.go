// Package logging builds the diagnostic zap logger. The human-facing status
// stream goes through the UI adapter; this logger carries full detail.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration.
type Config struct {
	Verbose bool   // include debug output
	File    string // optional diagnostic log file (JSON), "" to disable
}

// New constructs the logger: a console core on stderr, plus a JSON file core
// when a diagnostic file is configured.
func New(cfg Config) (*zap.SugaredLogger, error) {
	level := zapcore.InfoLevel
	if cfg.Verbose {
		level = zapcore.DebugLevel
	}

	consoleEnc := zap.NewDevelopmentEncoderConfig()
	cores := []zapcore.Core{
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleEnc),
			zapcore.Lock(os.Stderr),
			// Keep the terminal quiet unless asked; the status stream is
			// what the user normally watches.
			warnOrAbove(cfg.Verbose, level),
		),
	}

	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.Lock(f),
			zapcore.DebugLevel,
		))
	}

	logger := zap.New(zapcore.NewTee(cores...))
	return logger.Sugar(), nil
}

func warnOrAbove(verbose bool, verboseLevel zapcore.Level) zapcore.LevelEnabler {
	if verbose {
		return verboseLevel
	}
	return zapcore.WarnLevel
}
