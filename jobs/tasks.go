// Package jobs wires background work (night audit, QR expiry sweep) onto
// Asynq queues and the cron scheduler.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskNightAudit runs the nightly room-charge audit.
	TaskNightAudit = "audit:nightly"
	// TaskQRExpireSweep expires overdue pending QR payment requests.
	TaskQRExpireSweep = "qr:expire"
)

// NightAuditPayload selects the hotel date to audit. An empty date means the
// date that ended at run time.
type NightAuditPayload struct {
	Date string `json:"date,omitempty"`
}

// NewNightAuditTask constructs the nightly audit task.
func NewNightAuditTask(payload NightAuditPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNightAudit, data), nil
}

// NewQRExpireSweepTask constructs the expiry sweep task.
func NewQRExpireSweepTask() *asynq.Task {
	return asynq.NewTask(TaskQRExpireSweep, nil)
}
