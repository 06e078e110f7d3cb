// internal/model/template.go
package model

import "time"

// MessageTemplate is authored in the admin UI; the scheduler only reads
// the active one per (type, channel) and falls back to defaults.
type MessageTemplate struct {
	ID        int       `db:"id" json:"id"`
	Type      string    `db:"type" json:"type"` // cart_recovery, reservation_reminder
	Channel   string    `db:"channel" json:"channel"`
	Subject   string    `db:"subject" json:"subject,omitempty"` // email only
	Body      string    `db:"body" json:"body"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
