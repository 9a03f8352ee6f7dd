package logging

import (
	"context"
	"log/slog"
	"strings"
)

// minLevelHandler drops records below min before they reach next. It can
// only quiet a logger: next still applies its own level.
type minLevelHandler struct {
	next slog.Handler
	min  slog.Level
}

func (h minLevelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.min && h.next.Enabled(ctx, level)
}

func (h minLevelHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level < h.min {
		return nil
	}
	return h.next.Handle(ctx, record)
}

func (h minLevelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return minLevelHandler{next: h.next.WithAttrs(attrs), min: h.min}
}

func (h minLevelHandler) WithGroup(name string) slog.Handler {
	return minLevelHandler{next: h.next.WithGroup(name), min: h.min}
}

// ForStage returns the logger for one pipeline stage. overrides comes from
// [logging.stage_overrides] and is keyed by lower-case stage name.
func ForStage(logger *slog.Logger, stage string, overrides map[string]string) *slog.Logger {
	logger = NewComponentLogger(logger, stage).With(String(FieldStage, stage))
	level, ok := overrides[strings.ToLower(stage)]
	if !ok || strings.TrimSpace(level) == "" {
		return logger
	}
	h := logger.Handler()
	if prev, ok := h.(minLevelHandler); ok {
		h = prev.next
	}
	return slog.New(minLevelHandler{next: h, min: parseLevel(level)})
}
