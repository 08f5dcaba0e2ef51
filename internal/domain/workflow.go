package domain

import (
	"context"
	"time"
)

// WorkflowStatus is the lifecycle state of a workflow run.
type WorkflowStatus string

const (
	WorkflowPending   WorkflowStatus = "pending"
	WorkflowRunning   WorkflowStatus = "running"
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowFailed    WorkflowStatus = "failed"
	WorkflowCancelled WorkflowStatus = "cancelled"
)

// Terminal reports whether no further steps can run in this state.
func (s WorkflowStatus) Terminal() bool {
	return s == WorkflowCompleted || s == WorkflowFailed || s == WorkflowCancelled
}

// Progress is a point-in-time view of a run.
type Progress struct {
	Status         WorkflowStatus `json:"status"`
	CurrentStep    int            `json:"current_step"`
	TotalSteps     int            `json:"total_steps"`
	CompletedSteps []string       `json:"completed_steps"`
	StepName       string         `json:"step_name,omitempty"`
}

// StepOutput is one completed step's result, kept in execution order.
type StepOutput struct {
	Name   string     `json:"name"`
	Result TaskResult `json:"result"`
}

// RunSnapshot is the retained record of a finished run.
type RunSnapshot struct {
	ID           string         `json:"id"`
	WorkflowType string         `json:"workflow_type"`
	Status       WorkflowStatus `json:"status"`
	Progress     Progress       `json:"progress"`
	Steps        []StepOutput   `json:"steps"`
	Error        string         `json:"error,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at"`
}

// RunStore persists terminal run snapshots.
type RunStore interface {
	SaveRun(ctx context.Context, snap RunSnapshot) error
	GetRun(ctx context.Context, id string) (*RunSnapshot, error)
	ListRuns(ctx context.Context, limit int) ([]RunSnapshot, error)
	DeleteRun(ctx context.Context, id string) error
}
