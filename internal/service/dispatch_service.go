// internal/service/dispatch_service.go
package service

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kusinaph/reminder-backend/internal/config"
	appErrors "github.com/kusinaph/reminder-backend/internal/errors"
	"github.com/kusinaph/reminder-backend/internal/model"
	"github.com/kusinaph/reminder-backend/internal/render"
	"github.com/kusinaph/reminder-backend/internal/repository"
	"github.com/kusinaph/reminder-backend/internal/sender"
	"github.com/kusinaph/reminder-backend/pkg/logger"
)

// DispatchService is the per-invocation dispatch loop: pull due tasks,
// re-check parent relevance, render, send, record, then sweep expiry.
// Individual send failures are normal outcomes; only a store outage makes
// an invocation fail.
type DispatchService struct {
	EntityRepo   repository.EntityRepositoryInterface
	ReminderRepo repository.ReminderRepositoryInterface
	LogRepo      repository.DeliveryLogRepositoryInterface
	TemplateRepo repository.TemplateRepositoryInterface
	Senders      map[string]sender.Sender
	Window       *Window
	Config       *config.Config

	// Injectable for tests; default time.Now / time.Sleep.
	Now   func() time.Time
	Sleep func(time.Duration)
}

// DispatchResult counts one invocation's task outcomes.
type DispatchResult struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

type taskOutcome int

const (
	outcomeSent taskOutcome = iota
	outcomeFailed
	outcomeCancelled
)

func (d *DispatchService) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *DispatchService) sleep(dur time.Duration) {
	if d.Sleep != nil {
		d.Sleep(dur)
		return
	}
	time.Sleep(dur)
}

// Run executes one dispatch invocation.
func (d *DispatchService) Run(ctx context.Context) (*DispatchResult, error) {
	result := &DispatchResult{}

	now := d.now()
	if !d.Window.Allows(now) {
		logger.Info("dispatch skipped: outside operating window")
		return result, nil
	}

	tasks, err := d.ReminderRepo.DueTasks(now, d.Config.BatchSize)
	if err != nil {
		// Data-layer outage: the only error class that aborts the invocation.
		return nil, fmt.Errorf("fetch due tasks: %w", err)
	}

	touched := map[int]bool{}
	for i, task := range tasks {
		if i > 0 {
			// provider rate limit
			d.sleep(d.Config.SendDelay)
		}

		outcome := d.processTask(ctx, task)
		touched[task.EntityID] = true
		result.Processed++
		switch outcome {
		case outcomeSent:
			result.Sent++
		case outcomeFailed:
			result.Failed++
		case outcomeCancelled:
			result.Cancelled++
		}
	}

	// Expiry sweep: an entity with zero pending tasks that is still
	// waiting on reminders has run out its schedule.
	for entityID := range touched {
		expired, err := d.EntityRepo.MarkExpired(entityID)
		if err != nil {
			logger.Error("expiry check failed", zap.Int("entity_id", entityID), zap.Error(err))
			continue
		}
		if expired {
			logger.Info("entity expired", zap.Int("entity_id", entityID))
		}
	}

	logger.Info("dispatch invocation complete",
		zap.Int("processed", result.Processed),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
		zap.Int("cancelled", result.Cancelled))
	return result, nil
}

// processTask handles one due task. All errors are resolved into a task
// outcome here; nothing bubbles past the loop.
func (d *DispatchService) processTask(ctx context.Context, task *model.ReminderTask) taskOutcome {
	// Relevance guard: fresh read, not the row joined at batch fetch.
	// The checkout/reservation flow may have resolved the entity since.
	entity, err := d.EntityRepo.GetByID(task.EntityID)
	if err != nil {
		if appErrors.IsEntityNotFound(err) {
			return d.fail(task, "parent entity missing")
		}
		return d.fail(task, "entity read failed: "+err.Error())
	}

	if entity.Status != model.EntityPendingReminder {
		// Converted or cancelled since the task was created. No send, no
		// delivery log record; nothing was attempted.
		if err := d.ReminderRepo.MarkCancelled(task.ID); err != nil {
			logger.Error("failed to cancel task", zap.Int("task_id", task.ID), zap.Error(err))
		}
		return outcomeCancelled
	}

	recipient := entity.ContactFor(task.Channel)
	if recipient == "" {
		// Materialization guards against this; contact data was edited since.
		return d.fail(task, fmt.Sprintf("%s: no %s contact on entity", appErrors.InvalidRecipientTag, task.Channel))
	}

	subject, body, err := d.content(task.Purpose, task.Channel, entity)
	if err != nil {
		logger.Error("no content for task",
			zap.Int("task_id", task.ID),
			zap.String("purpose", task.Purpose),
			zap.String("channel", task.Channel),
			zap.Error(err))
		return d.fail(task, err.Error())
	}

	ch, ok := d.Senders[task.Channel]
	if !ok {
		return d.fail(task, "no sender for channel "+task.Channel)
	}

	res := ch.Send(ctx, sender.Message{Recipient: recipient, Subject: subject, Body: body})
	d.record(task, entity, recipient, subject, body, res)

	if res.State == sender.StateSent {
		return outcomeSent
	}
	return outcomeFailed
}

// record applies the send result to the task, the entity counters and the
// delivery log.
func (d *DispatchService) record(task *model.ReminderTask, entity *model.ScheduleEntity, recipient, subject, body string, res sender.Result) {
	taskID := task.ID

	if res.State == sender.StateSent {
		if err := d.ReminderRepo.MarkSent(taskID, d.now()); err != nil {
			logger.Error("failed to mark task sent", zap.Int("task_id", taskID), zap.Error(err))
		}
		if err := d.EntityRepo.IncrementAttempts(entity.ID, task.Channel); err != nil {
			logger.Error("failed to bump attempt counter", zap.Int("entity_id", entity.ID), zap.Error(err))
		}
	} else {
		errMsg := "send failed"
		if res.Err != nil {
			errMsg = res.Err.Error()
		}
		if res.State == sender.StateInvalid {
			errMsg = appErrors.InvalidRecipientTag + ": " + errMsg
		}
		if err := d.ReminderRepo.MarkFailed(taskID, errMsg); err != nil {
			logger.Error("failed to mark task failed", zap.Int("task_id", taskID), zap.Error(err))
		}
	}

	status := model.DeliverySent
	if res.State != sender.StateSent {
		status = model.DeliveryFailed
	}
	entry := &model.DeliveryLog{
		TaskID:            &taskID,
		Recipient:         recipient,
		Channel:           task.Channel,
		Subject:           subject,
		Message:           body,
		Status:            status,
		ProviderResponse:  res.Response,
		ProviderMessageID: res.ProviderMessageID,
	}
	if err := d.LogRepo.Append(entry); err != nil {
		logger.Error("failed to append delivery log", zap.Int("task_id", taskID), zap.Error(err))
	}
}

func (d *DispatchService) fail(task *model.ReminderTask, msg string) taskOutcome {
	if err := d.ReminderRepo.MarkFailed(task.ID, msg); err != nil {
		logger.Error("failed to mark task failed", zap.Int("task_id", task.ID), zap.Error(err))
	}
	return outcomeFailed
}

// SendNow is the operator-initiated single send: bypasses due-time, batch
// and window checks, keeps the relevance guard, and produces the same
// side effects as a scheduled send minus the task row.
func (d *DispatchService) SendNow(ctx context.Context, entityID int, channel string) error {
	entity, err := d.EntityRepo.GetByID(entityID)
	if err != nil {
		return err
	}

	recipient := entity.ContactFor(channel)
	if recipient == "" {
		return appErrors.NewEntityNotFound(entityID)
	}

	if entity.Status != model.EntityPendingReminder {
		return fmt.Errorf("entity %d is %s, nothing to remind", entityID, entity.Status)
	}

	purpose, err := PurposeForKind(entity.Kind)
	if err != nil {
		return err
	}

	subject, body, err := d.content(purpose, channel, entity)
	if err != nil {
		return err
	}

	ch, ok := d.Senders[channel]
	if !ok {
		return appErrors.ErrChannelUnavailable
	}

	res := ch.Send(ctx, sender.Message{Recipient: recipient, Subject: subject, Body: body})

	status := model.DeliverySent
	if res.State != sender.StateSent {
		status = model.DeliveryFailed
	}
	entry := &model.DeliveryLog{
		Recipient:         recipient,
		Channel:           channel,
		Subject:           subject,
		Message:           body,
		Status:            status,
		ProviderResponse:  res.Response,
		ProviderMessageID: res.ProviderMessageID,
	}
	if err := d.LogRepo.Append(entry); err != nil {
		logger.Error("failed to append delivery log", zap.Int("entity_id", entityID), zap.Error(err))
	}

	if res.State != sender.StateSent {
		if res.Err != nil {
			return fmt.Errorf("manual send failed: %w", res.Err)
		}
		return fmt.Errorf("manual send failed")
	}

	if err := d.EntityRepo.IncrementAttempts(entityID, channel); err != nil {
		logger.Error("failed to bump attempt counter", zap.Int("entity_id", entityID), zap.Error(err))
	}
	return nil
}

// content loads the active template for (purpose, channel), falling back
// to the hard-coded default, and renders both subject and body.
func (d *DispatchService) content(purpose, channel string, entity *model.ScheduleEntity) (string, string, error) {
	tpl, err := d.TemplateRepo.GetActive(purpose, channel)
	if err != nil {
		return "", "", fmt.Errorf("load template: %w", err)
	}

	var rawSubject, rawBody string
	if tpl != nil {
		rawSubject, rawBody = tpl.Subject, tpl.Body
	} else {
		def, ok := config.DefaultMessages[purpose+":"+channel]
		if !ok || def.Body == "" {
			return "", "", appErrors.ErrChannelUnavailable
		}
		rawSubject, rawBody = def.Subject, def.Body
	}

	vars := d.buildVars(channel, entity)
	return render.Render(rawSubject, vars), render.Render(rawBody, vars), nil
}

// buildVars assembles the variable map templates may reference.
func (d *DispatchService) buildVars(channel string, entity *model.ScheduleEntity) map[string]string {
	amount := strconv.Itoa(int(entity.Amount)) // party size
	if entity.Kind == model.KindCheckout {
		amount = "₱" + formatAmount(entity.Amount)
	}

	return map[string]string{
		"name":   entity.CustomerName,
		"amount": amount,
		"link":   d.buildLink(channel, entity),
		"phone":  entity.Phone,
		"email":  entity.Email,
	}
}

// buildLink produces the recovery/confirmation URL with attribution params.
func (d *DispatchService) buildLink(channel string, entity *model.ScheduleEntity) string {
	path := "/reservations/" + strconv.Itoa(entity.ID)
	if entity.Kind == model.KindCheckout {
		path = "/checkout/resume/" + strconv.Itoa(entity.ID)
	}

	q := url.Values{}
	q.Set("utm_source", "reminder")
	q.Set("utm_medium", channel)
	q.Set("ref", strconv.Itoa(entity.ID))

	return strings.TrimRight(d.Config.PublicBaseURL, "/") + path + "?" + q.Encode()
}

// formatAmount renders a monetary value with thousands grouping,
// e.g. 1234.5 -> "1,234.50".
func formatAmount(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	whole, frac, _ := strings.Cut(s, ".")

	if len(whole) <= 3 {
		return whole + "." + frac
	}

	var b strings.Builder
	lead := len(whole) % 3
	if lead > 0 {
		b.WriteString(whole[:lead])
	}
	for i := lead; i < len(whole); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(whole[i : i+3])
	}
	return b.String() + "." + frac
}
