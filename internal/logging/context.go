package logging

import (
	"context"
	"log/slog"

	"gfimx/internal/fault"
)

// Structured field keys shared by every gfimx component.
const (
	FieldComponent = "component"
	FieldStage     = "stage"
	FieldScanID    = "scan_id"
	FieldTarget    = "target"
	FieldPath      = "path"
	// FieldEventType is a stable snake_case tag for filtering warnings and errors.
	FieldEventType = "event_type"
	FieldErrorHint = "error_hint"
	FieldImpact    = "impact"
)

// ContextFields returns the scan id, stage and target carried by ctx.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var fields []slog.Attr
	if id, ok := fault.ScanIDFromContext(ctx); ok {
		fields = append(fields, ScanID(id))
	}
	if stage, ok := fault.StageFromContext(ctx); ok {
		fields = append(fields, String(FieldStage, stage))
	}
	if target, ok := fault.TargetFromContext(ctx); ok {
		fields = append(fields, Target(target))
	}
	return fields
}

// WithContext binds the fields from ContextFields to logger.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if fields := ContextFields(ctx); len(fields) > 0 {
		return logger.With(Args(fields...)...)
	}
	return logger
}
