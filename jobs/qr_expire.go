package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/harborstay/harborstay/internal/qr"
)

// QRExpireSweepJob expires overdue pending payment requests.
type QRExpireSweepJob struct {
	service *qr.Service
	logger  *slog.Logger
}

// NewQRExpireSweepJob constructs the job.
func NewQRExpireSweepJob(service *qr.Service, logger *slog.Logger) *QRExpireSweepJob {
	return &QRExpireSweepJob{service: service, logger: logger}
}

// Handle processes TaskQRExpireSweep tasks.
func (j *QRExpireSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	expired, err := j.service.ExpireSweep(ctx)
	if err != nil {
		return err
	}
	if expired > 0 {
		j.logger.Info("qr requests expired", slog.Int64("count", expired))
	}
	return nil
}
