package service_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kusinaph/reminder-backend/internal/config"
	appErrors "github.com/kusinaph/reminder-backend/internal/errors"
	"github.com/kusinaph/reminder-backend/internal/model"
	"github.com/kusinaph/reminder-backend/internal/sender"
	"github.com/kusinaph/reminder-backend/internal/service"
)

// In-memory stores mirroring the repository contracts, shared by the
// schedule and dispatch tests.

type fakeReminderRepo struct {
	mu     sync.Mutex
	nextID int
	tasks  map[int]*model.ReminderTask
}

func (f *fakeReminderRepo) CreateBatch(tasks []*model.ReminderTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range tasks {
		f.nextID++
		t.ID = f.nextID
		t.CreatedAt = time.Now()
		t.UpdatedAt = t.CreatedAt
		cp := *t
		f.tasks[t.ID] = &cp
	}
	return nil
}

func (f *fakeReminderRepo) DueTasks(now time.Time, limit int) ([]*model.ReminderTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*model.ReminderTask{}
	for _, t := range f.tasks {
		if t.Status == model.TaskPending && !t.DueAt.After(now) {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeReminderRepo) OpenByEntity(entityID int) ([]*model.ReminderTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*model.ReminderTask{}
	for _, t := range f.tasks {
		if t.EntityID == entityID && t.Status == model.TaskPending {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out, nil
}

func (f *fakeReminderRepo) CountPending(entityID int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, t := range f.tasks {
		if t.EntityID == entityID && t.Status == model.TaskPending {
			count++
		}
	}
	return count, nil
}

func (f *fakeReminderRepo) MarkSent(id int, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.tasks[id]
	t.Status = model.TaskSent
	t.SentAt = &at
	t.ErrorMessage = ""
	return nil
}

func (f *fakeReminderRepo) MarkFailed(id int, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.tasks[id]
	t.Status = model.TaskFailed
	t.ErrorMessage = errMsg
	return nil
}

func (f *fakeReminderRepo) MarkCancelled(id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[id].Status = model.TaskCancelled
	return nil
}

func (f *fakeReminderRepo) StatsByEntity(entityID int) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := map[string]int{
		model.TaskPending:   0,
		model.TaskSent:      0,
		model.TaskFailed:    0,
		model.TaskCancelled: 0,
	}
	for _, t := range f.tasks {
		if t.EntityID == entityID {
			stats[t.Status]++
		}
	}
	return stats, nil
}

func (f *fakeReminderRepo) byEntity(entityID int) []*model.ReminderTask {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*model.ReminderTask{}
	for _, t := range f.tasks {
		if t.EntityID == entityID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type fakeEntityRepo struct {
	mu        sync.Mutex
	nextID    int
	entities  map[int]*model.ScheduleEntity
	reminders *fakeReminderRepo
}

func newFakeStores() (*fakeEntityRepo, *fakeReminderRepo) {
	rr := &fakeReminderRepo{tasks: map[int]*model.ReminderTask{}}
	er := &fakeEntityRepo{entities: map[int]*model.ScheduleEntity{}, reminders: rr}
	return er, rr
}

func (f *fakeEntityRepo) Create(e *model.ScheduleEntity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	e.ID = f.nextID
	e.CreatedAt = time.Now()
	cp := *e
	f.entities[e.ID] = &cp
	return nil
}

func (f *fakeEntityRepo) GetByID(id int) (*model.ScheduleEntity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entities[id]
	if !ok {
		return nil, appErrors.NewEntityNotFound(id)
	}
	cp := *e // fresh read, not a shared pointer
	return &cp, nil
}

func (f *fakeEntityRepo) UpdateStatus(id int, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entities[id].Status = status
	return nil
}

func (f *fakeEntityRepo) MarkExpired(id int) (bool, error) {
	pending, _ := f.reminders.CountPending(id)
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entities[id]
	if !ok || e.Status != model.EntityPendingReminder || pending > 0 {
		return false, nil
	}
	e.Status = model.EntityExpired
	return true, nil
}

func (f *fakeEntityRepo) IncrementAttempts(id int, channel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if channel == model.ChannelEmail {
		f.entities[id].EmailAttempts++
	} else {
		f.entities[id].SMSAttempts++
	}
	return nil
}

type fakeTemplateRepo struct {
	templates map[string]*model.MessageTemplate // type + ":" + channel
}

func (f *fakeTemplateRepo) GetActive(templateType, channel string) (*model.MessageTemplate, error) {
	if f.templates == nil {
		return nil, nil
	}
	return f.templates[templateType+":"+channel], nil
}

type fakeLogRepo struct {
	mu     sync.Mutex
	nextID int
	logs   []*model.DeliveryLog
}

func (f *fakeLogRepo) Append(l *model.DeliveryLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	l.ID = f.nextID
	l.CreatedAt = time.Now()
	cp := *l
	f.logs = append(f.logs, &cp)
	return nil
}

func (f *fakeLogRepo) UnconfirmedSMS(limit int) ([]*model.DeliveryLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*model.DeliveryLog{}
	for _, l := range f.logs {
		if l.Channel != model.ChannelSMS || l.Status != model.DeliverySent || l.ProviderMessageID == "" {
			continue
		}
		switch l.ProviderStatus {
		case "Sent", "Failed", "Refunded":
			continue
		}
		cp := *l
		out = append(out, &cp)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeLogRepo) UpdateProviderStatus(id int, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.logs {
		if l.ID == id {
			l.ProviderStatus = status
		}
	}
	return nil
}

func (f *fakeLogRepo) all() []*model.DeliveryLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*model.DeliveryLog, 0, len(f.logs))
	for _, l := range f.logs {
		cp := *l
		out = append(out, &cp)
	}
	return out
}

type fakeSender struct {
	mu      sync.Mutex
	channel string
	result  sender.Result
	calls   []sender.Message
}

func newFakeSender(channel string) *fakeSender {
	return &fakeSender{
		channel: channel,
		result:  sender.Result{State: sender.StateSent, ProviderMessageID: "1000", Response: "ok"},
	}
}

func (f *fakeSender) Channel() string { return f.channel }

func (f *fakeSender) Send(_ context.Context, msg sender.Message) sender.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, msg)
	return f.result
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testConfig() *config.Config {
	return &config.Config{
		Timezone:        "Asia/Manila",
		WindowStartHour: 8,
		WindowEndHour:   21,
		BatchSize:       50,
		SendDelay:       0,
		StatusSyncDelay: 0,
		CartRecoveryOffsets: []config.Offset{
			{Channel: model.ChannelEmail, Duration: time.Hour},
			{Channel: model.ChannelSMS, Duration: 24 * time.Hour},
		},
		ReservationOffsets: []config.Offset{
			{Channel: model.ChannelEmail, Duration: 12 * time.Hour},
			{Channel: model.ChannelSMS, Duration: 6 * time.Hour},
			{Channel: model.ChannelSMS, Duration: 3 * time.Hour},
			{Channel: model.ChannelSMS, Duration: time.Hour},
			{Channel: model.ChannelSMS, Duration: 30 * time.Minute},
			{Channel: model.ChannelSMS, Duration: 15 * time.Minute},
		},
		PublicBaseURL: "https://kusina.ph",
	}
}

func openWindow() *service.Window {
	return &service.Window{Location: time.UTC, StartHour: 0, EndHour: 24}
}
