package repository

import (
	"database/sql"
	"time"

	"github.com/kusinaph/reminder-backend/internal/model"
)

type DeliveryLogRepositoryInterface interface {
	Append(l *model.DeliveryLog) error
	UnconfirmedSMS(limit int) ([]*model.DeliveryLog, error)
	UpdateProviderStatus(id int, status string) error
}

type DeliveryLogRepository struct {
	DB *sql.DB
}

// Append writes one dispatch-attempt record. The log is append-only; only
// provider_status is ever touched afterwards, by reconciliation.
func (r *DeliveryLogRepository) Append(l *model.DeliveryLog) error {
	l.CreatedAt = time.Now()
	query := `
        INSERT INTO delivery_logs (task_id, recipient, channel, subject, message, status, provider_response, provider_message_id, provider_status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING id
    `
	return r.DB.QueryRow(
		query,
		l.TaskID, l.Recipient, l.Channel, l.Subject, l.Message,
		l.Status, l.ProviderResponse, l.ProviderMessageID, l.ProviderStatus,
		l.CreatedAt,
	).Scan(&l.ID)
}

// UnconfirmedSMS returns sent SMS log rows that have a provider message id
// but no terminal provider status yet, oldest first.
func (r *DeliveryLogRepository) UnconfirmedSMS(limit int) ([]*model.DeliveryLog, error) {
	query := `
        SELECT id, task_id, recipient, channel, subject, message, status, provider_response, provider_message_id, provider_status, created_at
        FROM delivery_logs
        WHERE channel=$1 AND status=$2 AND provider_message_id<>''
          AND provider_status NOT IN ('Sent', 'Failed', 'Refunded')
        ORDER BY created_at ASC
        LIMIT $3
    `
	rows, err := r.DB.Query(query, model.ChannelSMS, model.DeliverySent, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []*model.DeliveryLog{}
	for rows.Next() {
		l := &model.DeliveryLog{}
		if err := rows.Scan(
			&l.ID, &l.TaskID, &l.Recipient, &l.Channel, &l.Subject, &l.Message,
			&l.Status, &l.ProviderResponse, &l.ProviderMessageID, &l.ProviderStatus,
			&l.CreatedAt,
		); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (r *DeliveryLogRepository) UpdateProviderStatus(id int, status string) error {
	query := `UPDATE delivery_logs SET provider_status=$1 WHERE id=$2`
	_, err := r.DB.Exec(query, status, id)
	return err
}

var _ DeliveryLogRepositoryInterface = (*DeliveryLogRepository)(nil)
