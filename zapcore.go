package fluentfwd

import (
	"context"
	"sort"

	"go.uber.org/zap/zapcore"
)

// Core is a zapcore.Core that renders each entry into a Fluent record and
// hands it to a Sink. It writes the same record shape as Handler.
//
//	sf := fluentfwd.NewSyncForwarder(fwd)
//	sf.Start(ctx)
//	logger := zap.New(fluentfwd.NewCore(zapcore.InfoLevel, sf, nil))
type Core struct {
	zapcore.LevelEnabler
	opts *HandlerOptions
	sink Sink

	// accumulated by With
	fields   Map
	hasError bool
}

// NewCore creates a Core writing entries enabled by enab to sink. The sink
// must be safe for concurrent use. opts.Level is not used; enab decides.
func NewCore(enab zapcore.LevelEnabler, sink Sink, opts *HandlerOptions) *Core {
	if opts == nil {
		opts = DefaultHandlerOptions()
	} else {
		opts.resolve()
	}
	return &Core{
		LevelEnabler: enab,
		opts:         opts,
		sink:         sink,
	}
}

// With returns a Core carrying fs in addition to the receiver's fields. They
// are written only when IncludeAllProperties is set.
func (c *Core) With(fs []zapcore.Field) zapcore.Core {
	if len(fs) == 0 {
		return c
	}
	c2 := *c
	c2.fields = append(c.fields[:len(c.fields):len(c.fields)], zapFields(fs)...)
	c2.hasError = c.hasError || hasErrorField(fs)
	return &c2
}

func (c *Core) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

// Write renders ent and emits it. Forwarding failures are reported to the
// Forwarder's ErrorSink, so Write always returns nil.
func (c *Core) Write(ent zapcore.Entry, fs []zapcore.Field) error {
	fields := make(Map, 0, 4+len(c.fields)+len(fs))
	fields = append(fields,
		F(LevelKey, String(ent.Level.String())),
		F(MessageKey, String(ent.Message)),
	)

	name := ent.LoggerName
	if len(name) == 0 {
		name = c.opts.LoggerName
	}
	if len(name) > 0 {
		fields = append(fields, F(LoggerNameKey, String(name)))
	}

	if c.opts.AddSource && ent.Caller.Defined {
		fields = append(fields, F(SourceKey, String(ent.Caller.String())))
	}

	hasError := hasErrorField(fs)
	if c.opts.IncludeAllProperties {
		fields = append(fields, c.fields...)
		hasError = hasError || c.hasError
	}
	fields = append(fields, zapFields(fs)...)

	if c.opts.EmitStackTrace && hasError {
		fields = append(fields, F(StackTraceKey, callerStack()))
	}

	c.sink.Emit(context.Background(), Record{Time: ent.Time, Fields: fields})
	return nil
}

// Sync is a no-op; every Write is already flushed to the collector.
func (c *Core) Sync() error { return nil }

// zapFields converts fs in order. Each field is rendered through a
// MapObjectEncoder, so every zap field type is supported.
func zapFields(fs []zapcore.Field) Map {
	m := make(Map, 0, len(fs))
	for _, f := range fs {
		if f.Type == zapcore.SkipType {
			continue
		}
		enc := zapcore.NewMapObjectEncoder()
		f.AddTo(enc)

		// inline fields and errors may add several keys
		keys := make([]string, 0, len(enc.Fields))
		for k := range enc.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			m = append(m, F(k, AnyValue(enc.Fields[k])))
		}
	}
	return m
}

func hasErrorField(fs []zapcore.Field) bool {
	for _, f := range fs {
		if f.Type == zapcore.ErrorType {
			return true
		}
	}
	return false
}
