// internal/model/delivery_log.go
package model

import "time"

// Delivery log statuses as recorded at send time. ProviderStatus is
// enriched later by reconciliation and uses the provider's vocabulary
// (e.g. Pending, Sent, Failed, Refunded).
const (
	DeliverySent   = "sent"
	DeliveryFailed = "failed"
)

// DeliveryLog is an append-only record of one dispatch attempt. Rows are
// never updated except for the provider_status enrichment.
type DeliveryLog struct {
	ID                int       `db:"id" json:"id"`
	TaskID            *int      `db:"task_id" json:"task_id,omitempty"`
	Recipient         string    `db:"recipient" json:"recipient"`
	Channel           string    `db:"channel" json:"channel"`
	Subject           string    `db:"subject" json:"subject,omitempty"`
	Message           string    `db:"message" json:"message"`
	Status            string    `db:"status" json:"status"`
	ProviderResponse  string    `db:"provider_response" json:"provider_response,omitempty"`
	ProviderMessageID string    `db:"provider_message_id" json:"provider_message_id,omitempty"`
	ProviderStatus    string    `db:"provider_status" json:"provider_status,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}
