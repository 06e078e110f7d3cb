// internal/service/sync_service.go
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kusinaph/reminder-backend/internal/repository"
	"github.com/kusinaph/reminder-backend/pkg/logger"
)

// StatusChecker re-queries the SMS provider for a message's delivery
// status. Satisfied by sender.SMSSender.
type StatusChecker interface {
	MessageStatus(ctx context.Context, providerMessageID string) (string, error)
}

// SyncService enriches the delivery log with downstream provider delivery
// confirmations. It never touches reminder task status; that was decided
// at send time.
type SyncService struct {
	LogRepo   repository.DeliveryLogRepositoryInterface
	SMS       StatusChecker
	Delay     time.Duration // provider read-quota: fixed delay between lookups
	BatchSize int

	Sleep func(time.Duration)
}

func (s *SyncService) sleep(d time.Duration) {
	if s.Sleep != nil {
		s.Sleep(d)
		return
	}
	time.Sleep(d)
}

// SyncAll looks up every sent SMS lacking a terminal provider status and
// records what the provider reports now. Returns the number of log rows
// updated.
func (s *SyncService) SyncAll(ctx context.Context) (int, error) {
	limit := s.BatchSize
	if limit <= 0 {
		limit = 100
	}

	logs, err := s.LogRepo.UnconfirmedSMS(limit)
	if err != nil {
		return 0, fmt.Errorf("fetch unconfirmed logs: %w", err)
	}

	updated := 0
	for i, l := range logs {
		if i > 0 {
			s.sleep(s.Delay)
		}

		status, err := s.SMS.MessageStatus(ctx, l.ProviderMessageID)
		if err != nil {
			// Per-lookup failures are skipped, not fatal; the next run
			// picks the row up again.
			logger.Warn("status lookup failed",
				zap.Int("log_id", l.ID),
				zap.String("provider_message_id", l.ProviderMessageID),
				zap.Error(err))
			continue
		}
		if status == "" || status == l.ProviderStatus {
			continue
		}

		if err := s.LogRepo.UpdateProviderStatus(l.ID, status); err != nil {
			logger.Error("failed to update provider status", zap.Int("log_id", l.ID), zap.Error(err))
			continue
		}
		updated++
	}

	logger.Info("status reconciliation complete",
		zap.Int("checked", len(logs)), zap.Int("updated", updated))
	return updated, nil
}
