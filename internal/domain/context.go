package domain

import "context"

type ctxKey string

const (
	workflowIDCtxKey ctxKey = "workflow_id"
	stepCtxKey       ctxKey = "step"
)

// ContextWithWorkflowID returns a new context carrying the workflow run ID.
func ContextWithWorkflowID(ctx context.Context, workflowID string) context.Context {
	return context.WithValue(ctx, workflowIDCtxKey, workflowID)
}

// WorkflowIDFromContext extracts the workflow run ID from the context.
// Returns empty string if not set.
func WorkflowIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(workflowIDCtxKey).(string); ok {
		return v
	}
	return ""
}

// ContextWithStep returns a new context carrying the running step name.
func ContextWithStep(ctx context.Context, step string) context.Context {
	return context.WithValue(ctx, stepCtxKey, step)
}

// StepFromContext extracts the running step name from the context.
func StepFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(stepCtxKey).(string); ok {
		return v
	}
	return ""
}
