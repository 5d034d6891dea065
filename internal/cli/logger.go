package cli

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/driftkit-go/workflow-engine/config"
)

// newLogger builds a zerolog.Logger from LogConfig: console writer by
// default, JSON when cfg.Format == "json", with an optional
// lumberjack-rotated file sink layered on top via MultiLevelWriter.
// verbose forces debug level regardless of cfg.Level.
func newLogger(cfg config.LogConfig, verbose bool) zerolog.Logger {
	level := parseLevel(cfg.Level)
	if verbose {
		level = zerolog.DebugLevel
	}

	var console io.Writer = os.Stderr
	if cfg.Format != "json" {
		console = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}

	writer := console
	if cfg.File != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, 100),
			MaxBackups: orDefault(cfg.MaxBackups, 3),
			MaxAge:     orDefault(cfg.MaxAgeDays, 28),
		}
		writer = zerolog.MultiLevelWriter(console, fileWriter)
	}

	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

func parseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
