package voxcache

// Fields carries structured context for one log line. Adapters sort or order them
// as their backend prefers; the error, if any, goes under "err".
type Fields map[string]any

// Logger is the leveled logging contract used across voxcache. Adapters live in
// log/zap, log/logrus and log/slog. A nil Logger in any Options disables logging.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

type NopLogger struct{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}

// With returns a Logger that adds base to every line. Per-call fields win on
// key collisions. A nil l yields NopLogger.
func With(l Logger, base Fields) Logger {
	if l == nil {
		return NopLogger{}
	}
	if _, nop := l.(NopLogger); nop || len(base) == 0 {
		return l
	}
	if w, ok := l.(withLogger); ok {
		return withLogger{next: w.next, base: merge(w.base, base)}
	}
	return withLogger{next: l, base: base}
}

type withLogger struct {
	next Logger
	base Fields
}

func (w withLogger) Debug(msg string, f Fields) { w.next.Debug(msg, merge(w.base, f)) }
func (w withLogger) Info(msg string, f Fields)  { w.next.Info(msg, merge(w.base, f)) }
func (w withLogger) Warn(msg string, f Fields)  { w.next.Warn(msg, merge(w.base, f)) }
func (w withLogger) Error(msg string, f Fields) { w.next.Error(msg, merge(w.base, f)) }

func merge(base, f Fields) Fields {
	out := make(Fields, len(base)+len(f))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range f {
		out[k] = v
	}
	return out
}
