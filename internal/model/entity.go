// internal/model/entity.go
package model

import "time"

// Entity kinds
const (
	KindCheckout    = "checkout"
	KindReservation = "reservation"
)

// Entity lifecycle statuses
const (
	EntityActive          = "active"
	EntityPendingReminder = "pending_reminder"
	EntityConverted       = "converted"
	EntityExpired         = "expired"
	EntityCancelled       = "cancelled"
)

// ScheduleEntity is the parent record whose lifecycle drives reminders:
// an abandoned checkout or an upcoming reservation.
type ScheduleEntity struct {
	ID            int        `db:"id" json:"id"`
	Kind          string     `db:"kind" json:"kind"`
	Status        string     `db:"status" json:"status"`
	CustomerName  string     `db:"customer_name" json:"customer_name"`
	Phone         string     `db:"phone" json:"phone"`
	Email         string     `db:"email" json:"email"`
	Amount        float64    `db:"amount" json:"amount"` // cart total or party size
	ReferenceAt   time.Time  `db:"reference_at" json:"reference_at"`
	SMSAttempts   int        `db:"sms_attempts" json:"sms_attempts"`
	EmailAttempts int        `db:"email_attempts" json:"email_attempts"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// ContactFor returns the contact value for a channel, empty if absent.
func (e *ScheduleEntity) ContactFor(channel string) string {
	switch channel {
	case ChannelSMS:
		return e.Phone
	case ChannelEmail:
		return e.Email
	}
	return ""
}
