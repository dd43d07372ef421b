package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/harborstay/harborstay/internal/nightaudit"
	"github.com/harborstay/harborstay/internal/platform/httpx"
)

// NightAuditJob runs the nightly audit from the queue.
type NightAuditJob struct {
	service *nightaudit.Service
	logger  *slog.Logger
}

// NewNightAuditJob constructs the job.
func NewNightAuditJob(service *nightaudit.Service, logger *slog.Logger) *NightAuditJob {
	return &NightAuditJob{service: service, logger: logger}
}

// Handle processes TaskNightAudit tasks.
func (j *NightAuditJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload NightAuditPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	date := time.Now().UTC().AddDate(0, 0, -1)
	if payload.Date != "" {
		parsed, err := time.Parse("2006-01-02", payload.Date)
		if err != nil {
			j.logger.Error("night audit task: bad date", slog.String("date", payload.Date))
			return asynq.SkipRetry
		}
		date = parsed
	}

	report, err := j.service.Run(ctx, date)
	if err != nil {
		if errors.Is(err, httpx.ErrConflict) {
			// Another run holds the lease; the scheduled retry would only
			// collide again.
			j.logger.Warn("night audit skipped, lease held", slog.String("date", date.Format("2006-01-02")))
			return nil
		}
		return err
	}
	if report.Failed > 0 {
		j.logger.Warn("night audit completed with failures",
			slog.String("date", report.Date),
			slog.Int("failed", report.Failed))
	}
	return nil
}
