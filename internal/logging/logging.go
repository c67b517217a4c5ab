// Package logging wires the global zerolog logger: human-readable console
// output on stderr plus a size-rotated file for later inspection.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup configures the global logger. logPath may be empty to log to the
// console only. debug lowers the level to Debug.
func Setup(logPath string, debug bool) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}

	var w io.Writer = console
	if logPath != "" {
		_ = os.MkdirAll(filepath.Dir(logPath), 0755)
		rotated := &lumberjack.Logger{
			Filename:   logPath,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     14, // days
		}
		w = zerolog.MultiLevelWriter(console, rotated)
	}

	log.Logger = zerolog.New(w).Level(level).With().Timestamp().Logger()
}
