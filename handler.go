package fluentfwd

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
)

// Record field names written by the logging adapters.
const (
	LevelKey      = "level"
	MessageKey    = "message"
	LoggerNameKey = "logger_name"
	SourceKey     = "source"
	StackTraceKey = "stacktrace"
)

type ccKey struct{}

// ContextKey is used to extract a log value from context.Context. The value
// must be a `slog.Attr`.
//
//		Example:
//	 	ctx := context.WithValue(ctx, fluentfwd.ContextKey,
//	 		slog.Group("req",
//	 			slog.String("method", r.Method),
//	 			slog.String("url", r.URL.String()),
//	 		)
//	 	)
//
// These attrs are added to the top scope of the record when
// IncludeAllProperties is set.
var ContextKey *ccKey = &ccKey{}

// Sink is the Forwarder API used by the logging adapters. *SyncForwarder
// implements it.
type Sink interface {
	Emit(context.Context, Record)
	Stop()
}

// scope is one level of WithGroup nesting, with the attrs added at that level.
type scope struct {
	key   string
	attrs []slog.Attr
}

// Handler is an slog.Handler that renders each slog.Record into a Fluent
// record and hands it to a Sink.
//
//	// Example of basic usage
//	h, err := fluentfwd.NewHandler(fluentHost, fluentTag, nil)
//	if err != nil {
//	   log.Fatalln(err)
//	}
//	defer h.Shutdown()
//
//	logger := slog.New(h)
//	slog.SetDefault(logger)
//
//	slog.Info("unrecognized user", "user_id", user_id)
type Handler struct {
	*HandlerOptions
	sink   Sink
	scopes []scope
}

// NewHandler creates a Forwarder for host with default options and the given
// tag, starts it, and wraps it in a Handler.
//
// For complete control over the Forwarder, use NewHandlerCustom.
func NewHandler(host, tag string, opts *HandlerOptions) (*Handler, error) {
	fo := DefaultForwarderOptions()
	fo.Host = host
	fo.Tag = tag

	f, err := NewForwarder(fo)
	if err != nil {
		return nil, fmt.Errorf("failed to create fluentfwd.Forwarder: %w", err)
	}

	sf := NewSyncForwarder(f)
	sf.Start(context.Background())

	return NewHandlerCustom(sf, opts), nil
}

// NewHandlerCustom creates a Handler that writes to sink. The sink must be
// safe for concurrent use.
func NewHandlerCustom(sink Sink, opts *HandlerOptions) *Handler {
	if opts == nil {
		opts = DefaultHandlerOptions()
	} else {
		opts.resolve()
	}

	return &Handler{
		HandlerOptions: opts,
		sink:           sink,
		scopes:         make([]scope, 1), // 1 for the root scope
	}
}

// Shutdown stops the Sink. You MUST NOT log through the Handler afterwards.
func (h *Handler) Shutdown() {
	h.debug("shutting down the logging stack")
	h.sink.Stop()
}

// Enabled reports whether the handler handles records at the given level.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.Level.Level()
}

// Handle renders r and emits it. It always returns nil: forwarding failures
// are reported to the Forwarder's ErrorSink and never reach the caller.
//
// Rules, per slog.Handler:
//   - If r.Time is the zero time, the Forwarder uses time.Now(); Fluent
//     requires an event time
//   - If r.PC is zero, the source is omitted
//   - Attr values are resolved
//   - Attrs with an empty key and a non-group value are ignored
//   - Groups with an empty key are inlined; empty groups are dropped
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	st := &renderState{timeFormat: h.TimeFormat}

	fields := make(Map, 0, 4+r.NumAttrs())
	fields = append(fields,
		F(LevelKey, String(r.Level.String())),
		F(MessageKey, String(r.Message)),
	)
	if len(h.LoggerName) > 0 {
		fields = append(fields, F(LoggerNameKey, String(h.LoggerName)))
	}

	// rule: ignore source if no program counter
	if h.AddSource && r.PC != 0 {
		fs := runtime.CallersFrames([]uintptr{r.PC})
		f, _ := fs.Next()
		fields = append(fields, F(SourceKey, String(fmt.Sprintf("%s:%d", f.File, f.Line))))
	}

	// slog.Attrs passed in via the ctx go to the top scope
	if h.IncludeAllProperties {
		if ctxAttr, ok := ctx.Value(ContextKey).(slog.Attr); ok {
			fields = st.appendAttr(fields, ctxAttr)
		}
	}

	recAttrs := make([]slog.Attr, 0, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		recAttrs = append(recAttrs, a)
		return true
	})
	fields = append(fields, h.scopeFields(0, recAttrs, st)...)

	if h.EmitStackTrace && st.sawError {
		fields = append(fields, F(StackTraceKey, callerStack()))
	}

	h.sink.Emit(ctx, Record{Time: r.Time, Fields: fields})
	return nil
}

// scopeFields renders scope i, and nested inside it every deeper scope. The
// record attrs belong to the deepest scope. Scopes left empty are dropped.
func (h *Handler) scopeFields(i int, recAttrs []slog.Attr, st *renderState) Map {
	var m Map
	if h.IncludeAllProperties {
		for _, a := range h.scopes[i].attrs {
			m = st.appendAttr(m, a)
		}
	}

	if i == len(h.scopes)-1 {
		for _, a := range recAttrs {
			m = st.appendAttr(m, a)
		}
		return m
	}

	if child := h.scopeFields(i+1, recAttrs, st); len(child) > 0 {
		m = append(m, F(h.scopes[i+1].key, MapOf(child...)))
	}
	return m
}

// WithAttrs returns a new Handler whose attributes consist of both the
// receiver's attributes and the arguments.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {

	// rule: skip if no attrs
	if len(attrs) == 0 {
		return h
	}

	h2 := h.deepCopy()
	last := &h2.scopes[len(h2.scopes)-1]
	last.attrs = append(last.attrs[:len(last.attrs):len(last.attrs)], attrs...)
	return h2
}

// WithGroup returns a new Handler with the given group appended to the
// receiver's existing groups, increasing the nesting level within the record.
// If the name is empty, WithGroup returns the receiver.
func (h *Handler) WithGroup(name string) slog.Handler {
	if len(name) == 0 {
		return h
	}

	h2 := h.deepCopy()
	h2.scopes = append(h2.scopes, scope{key: name})
	return h2
}

// deepCopy creates a copy of the Handler whose scopes can be extended without
// affecting the parent handler.
func (h *Handler) deepCopy() *Handler {
	h2 := *h
	h2.scopes = make([]scope, len(h.scopes))
	copy(h2.scopes, h.scopes)
	return &h2
}

func (h *Handler) debug(format string, args ...any) {
	if !h.Verbose {
		return
	}
	InternalLogger().Sugar().Debugf(format, args...)
}

// renderState carries per-record settings and findings while attrs are
// converted.
type renderState struct {
	timeFormat string
	sawError   bool
}

func (st *renderState) appendAttr(m Map, a slog.Attr) Map {

	// rule: must first resolve, and then ignore if empty
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return m
	}

	if a.Value.Kind() != slog.KindGroup {
		// rule: ignore non-group attrs with empty keys
		if len(a.Key) == 0 {
			return m
		}
		return append(m, F(a.Key, st.value(a.Value)))
	}

	g := a.Value.Group()

	// rule: inline attrs if key is empty
	if len(a.Key) == 0 {
		for _, ga := range g {
			m = st.appendAttr(m, ga)
		}
		return m
	}

	var sub Map
	for _, ga := range g {
		sub = st.appendAttr(sub, ga)
	}

	// rule: ignore empty groups entirely
	if len(sub) == 0 {
		return m
	}
	return append(m, F(a.Key, MapOf(sub...)))
}

func (st *renderState) value(v slog.Value) Value {
	switch v.Kind() {
	case slog.KindBool:
		return Bool(v.Bool())
	case slog.KindDuration:
		return Int(int64(v.Duration()))
	case slog.KindFloat64:
		return Float(v.Float64())
	case slog.KindInt64:
		return Int(v.Int64())
	case slog.KindString:
		return String(v.String())
	case slog.KindTime:
		return String(v.Time().Format(st.timeFormat))
	case slog.KindUint64:
		return Uint(v.Uint64())
	case slog.KindAny:
		a := v.Any()
		if _, ok := a.(error); ok {
			st.sawError = true
		}
		return AnyValue(a)
	}
	return String(v.String())
}

// maxStackFrames caps the stacktrace field.
const maxStackFrames = 64

// adapterFramePrefixes identify frames of the logging machinery, which are
// skipped at the top of a captured stack.
var adapterFramePrefixes = []string{
	"log/slog.",
	"go.uber.org/zap.",
	"go.uber.org/zap/",
	"github.com/bitdabbler/fluentfwd.(*Handler).",
	"github.com/bitdabbler/fluentfwd.(*Core).",
	"github.com/bitdabbler/fluentfwd.callerStack",
}

func isAdapterFrame(fn string) bool {
	for _, p := range adapterFramePrefixes {
		if strings.HasPrefix(fn, p) {
			return true
		}
	}
	return false
}

// callerStack captures the stack of the logging call site as a sequence of
// {filename, line, method} maps.
func callerStack() Value {
	pcs := make([]uintptr, maxStackFrames+16)
	n := runtime.Callers(1, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	seq := make([]Value, 0, 16)
	skipping := true
	for {
		f, more := frames.Next()
		if skipping && isAdapterFrame(f.Function) {
			if !more {
				break
			}
			continue
		}
		skipping = false

		seq = append(seq, MapOf(
			F("filename", String(f.File)),
			F("line", Int(int64(f.Line))),
			F("method", String(f.Function)),
		))
		if !more || len(seq) == maxStackFrames {
			break
		}
	}
	return SeqOf(seq...)
}
