package logger

import (
	"context"
	"log/slog"
	"runtime"

	"github.com/getsentry/sentry-go"
)

// WrapWithSentry layers Sentry reporting on top of an existing logger.
// Records below error level pass through untouched; error records are
// additionally captured with their attributes as extras.
func WrapWithSentry(base *slog.Logger) *slog.Logger {
	if base == nil {
		return base
	}
	return slog.New(&sentryHandler{next: base.Handler()})
}

type sentryHandler struct {
	next slog.Handler
}

func (h *sentryHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *sentryHandler) Handle(ctx context.Context, record slog.Record) error {
	err := h.next.Handle(ctx, record)
	if record.Level >= slog.LevelError {
		h.capture(record)
	}
	return err
}

func (h *sentryHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &sentryHandler{next: h.next.WithAttrs(attrs)}
}

func (h *sentryHandler) WithGroup(name string) slog.Handler {
	return &sentryHandler{next: h.next.WithGroup(name)}
}

// capture sends one error record to Sentry. The first error-typed attribute
// becomes the captured exception; everything else rides along as extras.
func (h *sentryHandler) capture(record slog.Record) {
	var firstErr error
	extras := map[string]any{}
	record.Attrs(func(attr slog.Attr) bool {
		if attr.Key != "" {
			extras[attr.Key] = flattenValue(attr.Value, &firstErr)
		}
		return true
	})

	if record.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{record.PC}).Next()
		if frame.PC != 0 {
			extras["source.file"] = frame.File
			extras["source.line"] = frame.Line
			extras["source.function"] = frame.Function
		}
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelError)
		scope.SetExtras(extras)
		scope.SetExtra("message", record.Message)
		if firstErr != nil {
			sentry.CaptureException(firstErr)
			return
		}
		sentry.CaptureMessage(record.Message)
	})
}

func flattenValue(value slog.Value, firstErr *error) any {
	switch value.Kind() {
	case slog.KindAny:
		v := value.Any()
		if err, ok := v.(error); ok {
			if *firstErr == nil {
				*firstErr = err
			}
			return err.Error()
		}
		return v
	case slog.KindGroup:
		group := map[string]any{}
		for _, attr := range value.Group() {
			if attr.Key == "" {
				continue
			}
			group[attr.Key] = flattenValue(attr.Value, firstErr)
		}
		return group
	case slog.KindBool:
		return value.Bool()
	case slog.KindDuration:
		return value.Duration()
	case slog.KindFloat64:
		return value.Float64()
	case slog.KindInt64:
		return value.Int64()
	case slog.KindTime:
		return value.Time()
	case slog.KindUint64:
		return value.Uint64()
	default:
		return value.String()
	}
}
