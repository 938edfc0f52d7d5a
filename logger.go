package bootstage

import (
	"os"

	"github.com/rs/zerolog"
)

// Logger is the sink a Coordinator reports usage errors and diagnostics to.
type Logger interface {
	Warn(msg string)
	Error(msg string)
	Verbose(msg string)
}

// zerologSink adapts a zerolog.Logger to the Logger interface.
type zerologSink struct {
	log zerolog.Logger
}

// NewLogger returns a Logger that writes to the given zerolog.Logger. Verbose
// messages are written at debug level.
func NewLogger(l zerolog.Logger) Logger {
	return zerologSink{l.With().Str("component", "bootstage").Logger()}
}

func (z zerologSink) Warn(msg string)    { z.log.Warn().Msg(msg) }
func (z zerologSink) Error(msg string)   { z.log.Error().Msg(msg) }
func (z zerologSink) Verbose(msg string) { z.log.Debug().Msg(msg) }

// defaultLogger writes human readable output to stderr. A new one is created
// for every Coordinator that isn't given a logger.
func defaultLogger() Logger {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	return NewLogger(zerolog.New(out).Level(zerolog.InfoLevel).With().Timestamp().Logger())
}
