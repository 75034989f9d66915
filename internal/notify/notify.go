// Package notify publishes product change events to downstream
// consumers such as price alerting and analytics pipelines.
package notify

import (
	"context"
	"time"
)

// ChangeEvent describes one appended history row.
type ChangeEvent struct {
	RunID      string    `json:"run_id"`
	ProductPK  int64     `json:"product_pk"`
	ProductID  int64     `json:"product_id"`
	HistoryID  int64     `json:"history_id"`
	Hash       string    `json:"hash"`
	URL        string    `json:"url"`
	ObservedAt time.Time `json:"observed_at"`
}

// Publisher delivers change events. Implementations must be safe for
// concurrent use by the coordinator's workers.
type Publisher interface {
	Publish(ctx context.Context, event ChangeEvent) (string, error)
}

// NoOp drops every event. Used when notifications are disabled.
type NoOp struct{}

func (NoOp) Publish(_ context.Context, _ ChangeEvent) (string, error) {
	return "", nil
}
