// internal/model/reminder_task.go
package model

import "time"

// Channels
const (
	ChannelSMS   = "sms"
	ChannelEmail = "email"
)

// Reminder purposes (template types)
const (
	PurposeCartRecovery        = "cart_recovery"
	PurposeReservationReminder = "reservation_reminder"
)

// Task statuses
const (
	TaskPending   = "pending"
	TaskSent      = "sent"
	TaskFailed    = "failed"
	TaskCancelled = "cancelled"
)

// ReminderTask is one scheduled, single-channel notification tied to a
// ScheduleEntity. The contact value is read from the entity at dispatch
// time, never cached here.
type ReminderTask struct {
	ID           int        `db:"id" json:"id"`
	EntityID     int        `db:"entity_id" json:"entity_id"`
	Purpose      string     `db:"purpose" json:"purpose"`
	Channel      string     `db:"channel" json:"channel"`
	DueAt        time.Time  `db:"due_at" json:"due_at"`
	Status       string     `db:"status" json:"status"`
	SentAt       *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	ErrorMessage string     `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}
