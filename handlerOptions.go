package fluentfwd

import (
	"log/slog"
	"time"
)

// HandlerOptions are used to customize the slog.Handler and the zap Core.
//
// NB: The struct pointer options approach is used to be consistent with the
// approach used in the standard library for `HandlerOptions`.
type HandlerOptions struct {

	// Level reports the minimum record level that will be logged. The handler
	// discards records with lower levels. If Level is nil, the handler assumes
	// LevelInfo. The handler calls Level.Level for each record processed; to
	// adjust the minimum level dynamically, use a LevelVar.
	Level slog.Leveler

	// LoggerName is written to the `logger_name` field of every record. It is
	// omitted when empty. The zap Core uses the entry's logger name instead.
	LoggerName string

	// TimeFormat controls how time values inside the record are serialized.
	// This does not change the envelope timestamp, which is defined by the
	// Fluent protocol. The default is time.RFC3339Nano.
	TimeFormat string

	// AddSource causes the handler to compute the source code position of the
	// log statement and add a `source` field to the record.
	AddSource bool

	// EmitStackTrace adds a `stacktrace` field, a sequence of frames, to
	// records that carry an error.
	EmitStackTrace bool

	// IncludeAllProperties merges ambient attributes into the record: those
	// added with WithAttrs (zap: With) and the slog.Attr stored in the context
	// under ContextKey. Attributes passed with the log call itself are always
	// included.
	IncludeAllProperties bool

	// Verbose controls whether debug logs are written to the internal logger.
	Verbose bool
}

const defaultTimeFormat = time.RFC3339Nano

// DefaultHandlerOptions returns *HandlerOptions with all default values.
func DefaultHandlerOptions() *HandlerOptions {
	return &HandlerOptions{
		Level:      slog.LevelInfo,
		TimeFormat: defaultTimeFormat,
	}
}

// resolve ensures that all options have valid values.
func (o *HandlerOptions) resolve() {

	// set default log level if not provided
	if o.Level == nil {
		o.Level = slog.LevelInfo
	}

	if len(o.TimeFormat) == 0 {
		o.TimeFormat = defaultTimeFormat
	}
}
