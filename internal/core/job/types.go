package job

import (
	"time"

	"orderbridge/internal/core/order"
)

// Job is the stored state of one asynchronous order run.
type Job struct {
	JobID     string                  `json:"job_id"`
	Type      Type                    `json:"type"`
	Status    Status                  `json:"status"`
	Backend   string                  `json:"backend,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
	UpdatedAt time.Time               `json:"updated_at"`
	Result    *order.AutomationResult `json:"result,omitempty"`
}

type Type string

const (
	TypeOrder Type = "order"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Done reports whether the job reached a terminal status.
func (s Status) Done() bool { return s == StatusCompleted || s == StatusFailed }
