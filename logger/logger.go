// Package logger configures the global zerolog logger shared by the indexer
// binaries.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Options selects level, format and an optional rotated log file.
type Options struct {
	Level  string
	Format string
	// File, when set, receives JSON logs in addition to the console output.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// FromEnv reads LOG_LEVEL, LOG_TYPE and LOG_FILE.
func FromEnv() Options {
	return Options{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: os.Getenv("LOG_TYPE"),
		File:   os.Getenv("LOG_FILE"),
	}
}

var stderr = struct{ io.Writer }{os.Stderr}

func init() { //nolint:gochecknoinits // init with zerolog is idiomatic
	Configure(FromEnv())
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Configure replaces the global logger.
func Configure(opts Options, consoleOptions ...func(w *zerolog.ConsoleWriter)) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(ParseLevel(opts.Level))

	var out io.Writer
	if strings.ToLower(opts.Format) == FormatJSON {
		out = os.Stdout
	} else {
		isTerminal := isatty.IsTerminal(os.Stderr.Fd())
		defaults := func(w *zerolog.ConsoleWriter) {
			w.Out = stderr
			w.NoColor = !isTerminal
			w.TimeFormat = "15:04:05.000 |"
		}
		out = zerolog.NewConsoleWriter(append([]func(w *zerolog.ConsoleWriter){defaults}, consoleOptions...)...)
	}

	if opts.File != "" {
		out = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 100),
			MaxBackups: orDefault(opts.MaxBackups, 5),
			MaxAge:     orDefault(opts.MaxAgeDays, 28),
			Compress:   true,
		})
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &log.Logger
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

type tTesting interface {
	Log(args ...interface{})
	Logf(format string, args ...interface{})
	Helper()
	Cleanup(f func())
}

// ConfigureTestLogging routes logs to the test's output for its lifetime.
func ConfigureTestLogging(t tTesting) {
	oldLogger := log.Logger
	oldContextLogger := zerolog.DefaultContextLogger
	oldLevel := zerolog.GlobalLevel()
	Configure(Options{Level: "debug"}, zerolog.ConsoleTestWriter(t))
	t.Cleanup(func() {
		log.Logger = oldLogger
		zerolog.DefaultContextLogger = oldContextLogger
		zerolog.SetGlobalLevel(oldLevel)
	})
}
