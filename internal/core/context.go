package core

import "context"

type contextKey string

const ctxKeyTrigger contextKey = "ingest_trigger"

// Trigger names used by the bundled entry points.
const (
	TriggerHTTP  = "http"
	TriggerCLI   = "cli"
	TriggerWatch = "watch"
)

// ContextWithTrigger records which entry point started a job.
func ContextWithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, ctxKeyTrigger, trigger)
}

// TriggerFromContext returns the trigger recorded by ContextWithTrigger, or "".
func TriggerFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyTrigger).(string); ok {
		return v
	}
	return ""
}
