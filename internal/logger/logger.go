package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog.Logger with the file handle and redactor it owns
type Logger struct {
	logger   zerolog.Logger
	file     *os.File
	redactor *Redactor
}

// Config holds logger configuration
type Config struct {
	Level     string    // debug, info, warn, error
	File      string    // optional log file path
	Console   bool      // write to Output (stderr when nil)
	Pretty    bool      // human readable console format
	Redaction bool      // mask API keys and bearer tokens
	Output    io.Writer // console destination override
}

// New creates a new logger and installs it as the global zerolog logger
func New(cfg Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var redactor *Redactor
	if cfg.Redaction {
		redactor = NewRedactor()
	}
	redact := func(w io.Writer) io.Writer {
		if redactor == nil {
			return w
		}
		return redactor.Wrap(w)
	}

	var writers []io.Writer

	// stdout carries the run result, so console logs go to stderr
	console := cfg.Output
	if console == nil {
		console = os.Stderr
	}
	if cfg.Console {
		if cfg.Pretty {
			// redact the formatted text, not the JSON the console writer decodes
			writers = append(writers, zerolog.ConsoleWriter{
				Out:        redact(console),
				TimeFormat: time.RFC3339,
			})
		} else {
			writers = append(writers, redact(console))
		}
	}

	var file *os.File
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		file, err = os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writers = append(writers, redact(file))
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = redact(console)
	case 1:
		writer = writers[0]
	default:
		writer = io.MultiWriter(writers...)
	}

	logger := zerolog.New(writer).
		Level(level).
		With().
		Timestamp().
		Logger()

	log.Logger = logger

	return &Logger{
		logger:   logger,
		file:     file,
		redactor: redactor,
	}, nil
}

// Close closes the log file, if any
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Debug logs a debug message
func (l *Logger) Debug() *zerolog.Event {
	return l.logger.Debug()
}

// Info logs an info message
func (l *Logger) Info() *zerolog.Event {
	return l.logger.Info()
}

// Warn logs a warning message
func (l *Logger) Warn() *zerolog.Event {
	return l.logger.Warn()
}

// Error logs an error message
func (l *Logger) Error() *zerolog.Event {
	return l.logger.Error()
}

// With creates a child logger with additional context
func (l *Logger) With() zerolog.Context {
	return l.logger.With()
}

// GetZerolog returns the underlying zerolog.Logger
func (l *Logger) GetZerolog() zerolog.Logger {
	return l.logger
}

// AddSecret masks secret in every later log line when redaction is enabled
func (l *Logger) AddSecret(secret string) {
	if l.redactor != nil {
		l.redactor.AddSecret(secret)
	}
}

// Section logs a titled block of text (retrieved context, raw replies) at debug level.
// Bodies longer than limit runes are cut; limit <= 0 keeps everything.
func Section(logger zerolog.Logger, title, body string, limit int) {
	ev := logger.Debug()
	if !ev.Enabled() {
		return
	}

	truncated := false
	if limit > 0 {
		runes := []rune(body)
		if len(runes) > limit {
			body = string(runes[:limit])
			truncated = true
		}
	}

	ev.Str("section", title).
		Bool("truncated", truncated).
		Str("body", body).
		Msg(title)
}

// DefaultConfig returns default logger configuration
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Console:   true,
		Pretty:    true,
		Redaction: true,
	}
}
