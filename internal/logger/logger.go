// Package logger wraps zerolog with the small surface converge needs.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options describes logger configuration supplied at creation time.
type Options struct {
	Level string
	// HumanReadable selects the console writer instead of JSON lines.
	HumanReadable bool
	NoColor       bool
	Writer        io.Writer
}

// Logger wraps zerolog. A nil *Logger discards everything.
type Logger struct {
	base zerolog.Logger
}

// New creates a configured Logger instance based on Options.
func New(opts Options) (*Logger, error) {
	writer := opts.Writer
	if writer == nil {
		writer = os.Stderr
	}

	level := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return nil, fmt.Errorf("log level %q: %w", opts.Level, err)
		}
		level = parsed
	}

	output := writer
	if opts.HumanReadable {
		output = zerolog.ConsoleWriter{
			Out:        writer,
			TimeFormat: time.RFC3339,
			NoColor:    opts.NoColor,
		}
	}

	base := zerolog.New(output).Level(level).With().Timestamp().Logger()
	return &Logger{base: base}, nil
}

// Nop returns a logger that writes nothing.
func Nop() *Logger {
	return &Logger{base: zerolog.Nop()}
}

// WithFields returns a derived logger that always writes the supplied fields.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	if l == nil {
		return nil
	}

	builder := l.base.With()
	for key, value := range fields {
		builder = builder.Interface(key, value)
	}
	return &Logger{base: builder.Logger()}
}

// With is WithFields for a single field.
func (l *Logger) With(key string, value any) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{base: l.base.With().Interface(key, value).Logger()}
}

func (l *Logger) Info(msg string) {
	if l == nil {
		return
	}
	l.base.Info().Msg(msg)
}

// Debug writes a debug-level log entry if enabled.
func (l *Logger) Debug(msg string) {
	if l == nil {
		return
	}
	l.base.Debug().Msg(msg)
}

func (l *Logger) Warn(msg string) {
	if l == nil {
		return
	}
	l.base.Warn().Msg(msg)
}

// Error writes an error entry with err under the "error" key.
func (l *Logger) Error(err error, msg string) {
	if l == nil {
		return
	}
	event := l.base.Error()
	if err != nil {
		event = event.Err(err)
	}
	event.Msg(msg)
}

// Printf logs at debug level. Together with Verbose it lets the logger
// stand in for libraries that expect a printf-style logger.
func (l *Logger) Printf(format string, v ...any) {
	if l == nil {
		return
	}
	l.base.Debug().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// Verbose reports whether debug output is enabled.
func (l *Logger) Verbose() bool {
	if l == nil {
		return false
	}
	return l.base.GetLevel() <= zerolog.DebugLevel
}
