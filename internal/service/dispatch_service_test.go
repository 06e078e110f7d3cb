package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/kusinaph/reminder-backend/internal/errors"
	"github.com/kusinaph/reminder-backend/internal/model"
	"github.com/kusinaph/reminder-backend/internal/sender"
	"github.com/kusinaph/reminder-backend/internal/service"
)

type dispatchFixture struct {
	er    *fakeEntityRepo
	rr    *fakeReminderRepo
	lr    *fakeLogRepo
	tr    *fakeTemplateRepo
	sms   *fakeSender
	email *fakeSender
	svc   *service.DispatchService
	now   time.Time
}

func newDispatchFixture(now time.Time) *dispatchFixture {
	er, rr := newFakeStores()
	fx := &dispatchFixture{
		er:    er,
		rr:    rr,
		lr:    &fakeLogRepo{},
		tr:    &fakeTemplateRepo{},
		sms:   newFakeSender(model.ChannelSMS),
		email: newFakeSender(model.ChannelEmail),
		now:   now,
	}
	fx.svc = &service.DispatchService{
		EntityRepo:   er,
		ReminderRepo: rr,
		LogRepo:      fx.lr,
		TemplateRepo: fx.tr,
		Senders: map[string]sender.Sender{
			model.ChannelSMS:   fx.sms,
			model.ChannelEmail: fx.email,
		},
		Window: openWindow(),
		Config: testConfig(),
		Now:    func() time.Time { return fx.now },
		Sleep:  func(time.Duration) {},
	}
	return fx
}

func (fx *dispatchFixture) addEntity(t *testing.T, kind, phone, email string, amount float64) *model.ScheduleEntity {
	t.Helper()
	e := &model.ScheduleEntity{
		Kind:         kind,
		Status:       model.EntityPendingReminder,
		CustomerName: "Ana",
		Phone:        phone,
		Email:        email,
		Amount:       amount,
		ReferenceAt:  fx.now,
	}
	require.NoError(t, fx.er.Create(e))
	return e
}

func (fx *dispatchFixture) addTask(t *testing.T, entityID int, purpose, channel string, dueAt time.Time) *model.ReminderTask {
	t.Helper()
	task := &model.ReminderTask{
		EntityID: entityID,
		Purpose:  purpose,
		Channel:  channel,
		DueAt:    dueAt,
		Status:   model.TaskPending,
	}
	require.NoError(t, fx.rr.CreateBatch([]*model.ReminderTask{task}))
	return task
}

func TestDispatchSendsDueTask(t *testing.T) {
	now := time.Date(2026, 3, 10, 4, 0, 0, 0, time.UTC)
	fx := newDispatchFixture(now)

	e := fx.addEntity(t, model.KindCheckout, "09171234567", "", 1234.50)
	task := fx.addTask(t, e.ID, model.PurposeCartRecovery, model.ChannelSMS, now.Add(-time.Minute))

	result, err := fx.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Sent)

	got := fx.rr.byEntity(e.ID)[0]
	assert.Equal(t, model.TaskSent, got.Status)
	require.NotNil(t, got.SentAt)

	entity, _ := fx.er.GetByID(e.ID)
	assert.Equal(t, 1, entity.SMSAttempts)

	require.Equal(t, 1, fx.sms.callCount())
	body := fx.sms.calls[0].Body
	assert.Contains(t, body, "Ana")
	assert.Contains(t, body, "₱1,234.50")
	assert.Contains(t, body, "utm_medium=sms")

	logs := fx.lr.all()
	require.Len(t, logs, 1)
	assert.Equal(t, model.DeliverySent, logs[0].Status)
	require.NotNil(t, logs[0].TaskID)
	assert.Equal(t, task.ID, *logs[0].TaskID)
	assert.Equal(t, "09171234567", logs[0].Recipient)
}

func TestNoSendToConvertedEntity(t *testing.T) {
	now := time.Date(2026, 3, 10, 4, 0, 0, 0, time.UTC)
	fx := newDispatchFixture(now)

	e := fx.addEntity(t, model.KindCheckout, "09171234567", "", 500)
	fx.addTask(t, e.ID, model.PurposeCartRecovery, model.ChannelSMS, now.Add(-time.Minute))

	// the customer completed checkout after the task was created
	require.NoError(t, fx.er.UpdateStatus(e.ID, model.EntityConverted))

	result, err := fx.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Cancelled)
	assert.Equal(t, 0, result.Sent)

	assert.Equal(t, model.TaskCancelled, fx.rr.byEntity(e.ID)[0].Status)
	assert.Equal(t, 0, fx.sms.callCount(), "no send attempt for a resolved entity")
	assert.Empty(t, fx.lr.all(), "no delivery log when nothing was attempted")
}

func TestFailedSendIsTerminal(t *testing.T) {
	now := time.Date(2026, 3, 10, 4, 0, 0, 0, time.UTC)
	fx := newDispatchFixture(now)
	fx.sms.result = sender.Result{State: sender.StateFailed, Err: errors.New("gateway timeout")}

	e := fx.addEntity(t, model.KindCheckout, "09171234567", "", 500)
	fx.addTask(t, e.ID, model.PurposeCartRecovery, model.ChannelSMS, now.Add(-time.Minute))

	result, err := fx.svc.Run(context.Background())
	require.NoError(t, err, "a send failure is a normal outcome, not an invocation failure")
	assert.Equal(t, 1, result.Failed)

	got := fx.rr.byEntity(e.ID)[0]
	assert.Equal(t, model.TaskFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "gateway timeout")

	logs := fx.lr.all()
	require.Len(t, logs, 1)
	assert.Equal(t, model.DeliveryFailed, logs[0].Status)

	// failed is terminal: the next run has nothing to do
	second, err := fx.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Processed)
	assert.Equal(t, 1, fx.sms.callCount())
}

func TestInvalidRecipientGetsDistinctTag(t *testing.T) {
	now := time.Date(2026, 3, 10, 4, 0, 0, 0, time.UTC)
	fx := newDispatchFixture(now)
	fx.sms.result = sender.Result{State: sender.StateInvalid, Err: errors.New("malformed phone number")}

	e := fx.addEntity(t, model.KindCheckout, "12345", "", 500)
	fx.addTask(t, e.ID, model.PurposeCartRecovery, model.ChannelSMS, now.Add(-time.Minute))

	_, err := fx.svc.Run(context.Background())
	require.NoError(t, err)

	got := fx.rr.byEntity(e.ID)[0]
	assert.Equal(t, model.TaskFailed, got.Status)
	assert.True(t, strings.HasPrefix(got.ErrorMessage, appErrors.InvalidRecipientTag))
}

func TestMissingContactFailsWithoutSend(t *testing.T) {
	now := time.Date(2026, 3, 10, 4, 0, 0, 0, time.UTC)
	fx := newDispatchFixture(now)

	// task was created while the entity still had an email; it was edited away
	e := fx.addEntity(t, model.KindCheckout, "09171234567", "", 500)
	fx.addTask(t, e.ID, model.PurposeCartRecovery, model.ChannelEmail, now.Add(-time.Minute))

	result, err := fx.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	got := fx.rr.byEntity(e.ID)[0]
	assert.Equal(t, model.TaskFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, appErrors.InvalidRecipientTag)
	assert.Equal(t, 0, fx.email.callCount())
	assert.Empty(t, fx.lr.all())
}

func TestWindowGatesDispatch(t *testing.T) {
	// 18:00 UTC is 02:00 in Manila: closed window
	closed := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)
	fx := newDispatchFixture(closed)

	w, err := service.NewWindow("Asia/Manila", 8, 21)
	require.NoError(t, err)
	fx.svc.Window = w

	e := fx.addEntity(t, model.KindCheckout, "09171234567", "", 500)
	fx.addTask(t, e.ID, model.PurposeCartRecovery, model.ChannelSMS, closed.Add(-time.Hour))

	result, err := fx.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)
	assert.Equal(t, model.TaskPending, fx.rr.byEntity(e.ID)[0].Status, "task waits for the next open window")

	// 02:00 UTC the next day is 10:00 in Manila: open
	fx.now = time.Date(2026, 3, 11, 2, 0, 0, 0, time.UTC)
	result, err = fx.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)
}

func TestExpiryRequiresZeroPendingTasks(t *testing.T) {
	now := time.Date(2026, 3, 10, 4, 0, 0, 0, time.UTC)
	fx := newDispatchFixture(now)

	e := fx.addEntity(t, model.KindCheckout, "09171234567", "ana@example.com", 500)
	fx.addTask(t, e.ID, model.PurposeCartRecovery, model.ChannelEmail, now.Add(-time.Minute))
	fx.addTask(t, e.ID, model.PurposeCartRecovery, model.ChannelSMS, now.Add(23*time.Hour))

	_, err := fx.svc.Run(context.Background())
	require.NoError(t, err)

	entity, _ := fx.er.GetByID(e.ID)
	assert.Equal(t, model.EntityPendingReminder, entity.Status,
		"one pending task remains; the entity must not expire")

	fx.now = now.Add(24 * time.Hour)
	_, err = fx.svc.Run(context.Background())
	require.NoError(t, err)

	entity, _ = fx.er.GetByID(e.ID)
	assert.Equal(t, model.EntityExpired, entity.Status)
}

func TestBatchLimitRespected(t *testing.T) {
	now := time.Date(2026, 3, 10, 4, 0, 0, 0, time.UTC)
	fx := newDispatchFixture(now)
	fx.svc.Config.BatchSize = 1

	e := fx.addEntity(t, model.KindCheckout, "09171234567", "ana@example.com", 500)
	fx.addTask(t, e.ID, model.PurposeCartRecovery, model.ChannelEmail, now.Add(-2*time.Minute))
	fx.addTask(t, e.ID, model.PurposeCartRecovery, model.ChannelSMS, now.Add(-time.Minute))

	result, err := fx.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	// oldest due first
	assert.Equal(t, 1, fx.email.callCount())
	assert.Equal(t, 0, fx.sms.callCount())
}

func TestActiveTemplateOverridesDefault(t *testing.T) {
	now := time.Date(2026, 3, 10, 4, 0, 0, 0, time.UTC)
	fx := newDispatchFixture(now)
	fx.tr.templates = map[string]*model.MessageTemplate{
		model.PurposeCartRecovery + ":" + model.ChannelSMS: {
			Type:     model.PurposeCartRecovery,
			Channel:  model.ChannelSMS,
			Body:     "Custom for {{name}}: {{link}}",
			IsActive: true,
		},
	}

	e := fx.addEntity(t, model.KindCheckout, "09171234567", "", 500)
	fx.addTask(t, e.ID, model.PurposeCartRecovery, model.ChannelSMS, now.Add(-time.Minute))

	_, err := fx.svc.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, fx.sms.callCount())
	assert.True(t, strings.HasPrefix(fx.sms.calls[0].Body, "Custom for Ana:"))
}

func TestStoreOutageAbortsInvocation(t *testing.T) {
	now := time.Date(2026, 3, 10, 4, 0, 0, 0, time.UTC)
	fx := newDispatchFixture(now)
	fx.svc.ReminderRepo = outageReminderRepo{fx.rr}

	_, err := fx.svc.Run(context.Background())
	assert.Error(t, err)
}

type outageReminderRepo struct {
	*fakeReminderRepo
}

func (outageReminderRepo) DueTasks(time.Time, int) ([]*model.ReminderTask, error) {
	return nil, errors.New("connection refused")
}

func TestManualSend(t *testing.T) {
	now := time.Date(2026, 3, 10, 4, 0, 0, 0, time.UTC)
	fx := newDispatchFixture(now)

	e := fx.addEntity(t, model.KindCheckout, "09171234567", "", 800)

	require.NoError(t, fx.svc.SendNow(context.Background(), e.ID, model.ChannelSMS))

	assert.Equal(t, 1, fx.sms.callCount())
	logs := fx.lr.all()
	require.Len(t, logs, 1)
	assert.Nil(t, logs[0].TaskID, "manual sends have no task row")
	assert.Equal(t, model.DeliverySent, logs[0].Status)

	entity, _ := fx.er.GetByID(e.ID)
	assert.Equal(t, 1, entity.SMSAttempts)
}

func TestManualSendMissingEntity(t *testing.T) {
	fx := newDispatchFixture(time.Now())
	err := fx.svc.SendNow(context.Background(), 404, model.ChannelSMS)
	assert.True(t, appErrors.IsEntityNotFound(err))
}

func TestManualSendMissingContact(t *testing.T) {
	fx := newDispatchFixture(time.Now())
	e := fx.addEntity(t, model.KindCheckout, "09171234567", "", 800)

	err := fx.svc.SendNow(context.Background(), e.ID, model.ChannelEmail)
	assert.True(t, appErrors.IsEntityNotFound(err))
	assert.Equal(t, 0, fx.email.callCount())
}

func TestManualSendResolvedEntity(t *testing.T) {
	fx := newDispatchFixture(time.Now())
	e := fx.addEntity(t, model.KindCheckout, "09171234567", "", 800)
	require.NoError(t, fx.er.UpdateStatus(e.ID, model.EntityCancelled))

	err := fx.svc.SendNow(context.Background(), e.ID, model.ChannelSMS)
	assert.Error(t, err)
	assert.Equal(t, 0, fx.sms.callCount())
}

// End-to-end: entity enters pending-reminder at T with offsets
// [+1h email, +24h sms]; at T+25h both tasks are sent, the entity is
// expired and two delivery log records exist.
func TestEndToEndCartRecovery(t *testing.T) {
	start := time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC)
	fx := newDispatchFixture(start)

	entity := &model.ScheduleEntity{
		Kind:         model.KindCheckout,
		Status:       model.EntityActive,
		CustomerName: "Ana",
		Phone:        "09171234567",
		Email:        "ana@example.com",
		Amount:       1500,
		ReferenceAt:  start,
	}
	require.NoError(t, fx.er.Create(entity))

	scheduler := newScheduleService(fx.er, fx.rr, start)
	tasks, err := scheduler.Materialize(entity.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	fx.now = start.Add(25 * time.Hour)
	result, err := fx.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Sent)

	for _, task := range fx.rr.byEntity(entity.ID) {
		assert.Equal(t, model.TaskSent, task.Status)
	}

	got, _ := fx.er.GetByID(entity.ID)
	assert.Equal(t, model.EntityExpired, got.Status)
	assert.Len(t, fx.lr.all(), 2)
	assert.Equal(t, 1, fx.sms.callCount())
	assert.Equal(t, 1, fx.email.callCount())
}
