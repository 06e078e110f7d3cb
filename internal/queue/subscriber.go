package queue

import (
	"go.uber.org/zap"

	appErrors "github.com/kusinaph/reminder-backend/internal/errors"
	"github.com/kusinaph/reminder-backend/internal/service"
	"github.com/kusinaph/reminder-backend/pkg/logger"
)

// StartScheduleSubscriber consumes schedule events and materializes the
// reminder tasks. Materialization is idempotent, so at-least-once
// delivery is safe.
func StartScheduleSubscriber(q Queue, scheduler *service.ScheduleService) {
	err := q.Subscribe(TopicSchedules, func(payload any) error {
		var entityID int
		switch p := payload.(type) {
		case ScheduleJob:
			entityID = p.EntityID
		case int:
			entityID = p
		default:
			logger.Warn("invalid schedule payload", zap.Any("payload", payload))
			return nil // no retry
		}

		logger.Info("materializing schedule", zap.Int("entity_id", entityID))

		if _, err := scheduler.Materialize(entityID); err != nil {
			if appErrors.IsEntityNotFound(err) {
				logger.Warn("schedule event for missing entity", zap.Int("entity_id", entityID))
				return nil // retrying cannot help
			}
			return err // triggers retry in queue
		}
		return nil
	})
	if err != nil {
		logger.Error("failed to start schedule subscriber", zap.Error(err))
	}
}
