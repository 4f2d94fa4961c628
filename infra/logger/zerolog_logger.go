package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	setupMu sync.RWMutex
	base    *zerolog.Logger
	closer  io.Closer
)

// Setup installs the process wide output used by New. It returns a function
// that flushes and closes the log file, if any.
func Setup(cfg Config) (func() error, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, err
	}
	var out io.Writer = os.Stdout
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	var file *lumberjack.Logger
	if cfg.File != "" {
		file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		out = zerolog.MultiLevelWriter(out, file)
	}
	z := zerolog.New(out).Level(lvl).With().Timestamp().Logger()

	setupMu.Lock()
	base = &z
	if closer != nil {
		_ = closer.Close()
	}
	closer = nil
	if file != nil {
		closer = file
	}
	setupMu.Unlock()

	return func() error {
		setupMu.Lock()
		defer setupMu.Unlock()
		if closer == nil {
			return nil
		}
		err := closer.Close()
		closer = nil
		return err
	}, nil
}

// ZerologLogger implements Logger using rs/zerolog.
type ZerologLogger struct {
	log zerolog.Logger
}

// NewZerologLogger creates a ZerologLogger. Without Setup the APP_ENV
// environment variable picks the output format. All logs include the provided
// component field.
func NewZerologLogger(component string) Logger {
	setupMu.RLock()
	b := base
	setupMu.RUnlock()
	if b != nil {
		return &ZerologLogger{log: b.With().Str("component", component).Logger()}
	}
	env := strings.ToLower(os.Getenv("APP_ENV"))
	var z zerolog.Logger
	if env == "dev" {
		writer := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		z = zerolog.New(writer).With().Timestamp().Str("component", component).Logger()
	} else {
		z = zerolog.New(os.Stdout).With().Timestamp().Str("component", component).Logger()
	}
	return &ZerologLogger{log: z}
}

// FromZerolog wraps an existing zerolog logger.
func FromZerolog(z zerolog.Logger) Logger { return &ZerologLogger{log: z} }

func (l *ZerologLogger) Debugf(format string, args ...any) {
	l.log.Debug().Msgf(format, args...)
}

func (l *ZerologLogger) Debugw(msg string, fields map[string]any) {
	ev := l.log.Debug()
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (l *ZerologLogger) Infof(format string, args ...any) {
	l.log.Info().Msgf(format, args...)
}

func (l *ZerologLogger) Warnf(format string, args ...any) {
	l.log.Warn().Msgf(format, args...)
}

func (l *ZerologLogger) Errorf(format string, args ...any) {
	l.log.Error().Msgf(format, args...)
}
