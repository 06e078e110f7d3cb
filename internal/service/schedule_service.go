// internal/service/schedule_service.go
package service

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kusinaph/reminder-backend/internal/config"
	"github.com/kusinaph/reminder-backend/internal/model"
	"github.com/kusinaph/reminder-backend/internal/repository"
	"github.com/kusinaph/reminder-backend/pkg/logger"
)

// ScheduleService is the scheduling policy: when an entity enters its
// pending-reminder state it turns the configured offsets into reminder
// tasks. Materialization is idempotent per lifecycle entry.
type ScheduleService struct {
	EntityRepo   repository.EntityRepositoryInterface
	ReminderRepo repository.ReminderRepositoryInterface
	Config       *config.Config

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

func (s *ScheduleService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// PurposeForKind maps an entity kind to its reminder purpose.
func PurposeForKind(kind string) (string, error) {
	switch kind {
	case model.KindCheckout:
		return model.PurposeCartRecovery, nil
	case model.KindReservation:
		return model.PurposeReservationReminder, nil
	}
	return "", fmt.Errorf("unknown entity kind %q", kind)
}

// Materialize creates the reminder tasks for an entity entering (or already
// in) pending-reminder state. Calling it twice for the same lifecycle entry
// returns the existing open schedule without creating duplicates.
func (s *ScheduleService) Materialize(entityID int) ([]*model.ReminderTask, error) {
	entity, err := s.EntityRepo.GetByID(entityID)
	if err != nil {
		return nil, err
	}

	purpose, err := PurposeForKind(entity.Kind)
	if err != nil {
		return nil, err
	}

	// Idempotency guard: an entity has at most one open schedule.
	open, err := s.ReminderRepo.OpenByEntity(entityID)
	if err != nil {
		return nil, err
	}
	if len(open) > 0 {
		logger.Info("schedule already materialized",
			zap.Int("entity_id", entityID), zap.Int("open_tasks", len(open)))
		return open, nil
	}

	switch entity.Status {
	case model.EntityActive:
		if err := s.EntityRepo.UpdateStatus(entityID, model.EntityPendingReminder); err != nil {
			return nil, err
		}
	case model.EntityPendingReminder:
		// re-entry after all tasks resolved; a fresh schedule is allowed
	default:
		return nil, fmt.Errorf("entity %d cannot be scheduled in status: %s", entityID, entity.Status)
	}

	now := s.now()
	tasks := []*model.ReminderTask{}
	for _, o := range s.Config.OffsetsFor(purpose) {
		// Offsets whose channel has no contact are skipped, not created
		// as doomed tasks.
		if entity.ContactFor(o.Channel) == "" {
			continue
		}

		var dueAt time.Time
		if purpose == model.PurposeReservationReminder {
			// backward from the future reservation time
			dueAt = entity.ReferenceAt.Add(-o.Duration)
			if !dueAt.After(now) {
				// reservation made closer in than this offset
				continue
			}
		} else {
			dueAt = entity.ReferenceAt.Add(o.Duration)
		}

		tasks = append(tasks, &model.ReminderTask{
			EntityID: entityID,
			Purpose:  purpose,
			Channel:  o.Channel,
			DueAt:    dueAt,
			Status:   model.TaskPending,
		})
	}

	if err := s.ReminderRepo.CreateBatch(tasks); err != nil {
		return nil, err
	}

	logger.Info("schedule materialized",
		zap.Int("entity_id", entityID),
		zap.String("purpose", purpose),
		zap.Int("tasks", len(tasks)))
	return tasks, nil
}
