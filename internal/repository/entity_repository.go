package repository

import (
	"database/sql"
	"time"

	appErrors "github.com/kusinaph/reminder-backend/internal/errors"
	"github.com/kusinaph/reminder-backend/internal/model"
)

type EntityRepositoryInterface interface {
	Create(e *model.ScheduleEntity) error
	GetByID(id int) (*model.ScheduleEntity, error)
	UpdateStatus(id int, status string) error
	MarkExpired(id int) (bool, error)
	IncrementAttempts(id int, channel string) error
}

type EntityRepository struct {
	DB *sql.DB
}

const entityColumns = `id, kind, status, customer_name, phone, email, amount, reference_at, sms_attempts, email_attempts, created_at, updated_at`

func (r *EntityRepository) Create(e *model.ScheduleEntity) error {
	e.CreatedAt = time.Now()
	if e.Status == "" {
		e.Status = model.EntityActive
	}
	query := `
        INSERT INTO schedule_entities (kind, status, customer_name, phone, email, amount, reference_at, sms_attempts, email_attempts, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, 0, 0, $8)
        RETURNING id
    `
	return r.DB.QueryRow(query, e.Kind, e.Status, e.CustomerName, e.Phone, e.Email, e.Amount, e.ReferenceAt, e.CreatedAt).Scan(&e.ID)
}

func (r *EntityRepository) GetByID(id int) (*model.ScheduleEntity, error) {
	query := `SELECT ` + entityColumns + ` FROM schedule_entities WHERE id=$1`
	var e model.ScheduleEntity
	err := r.DB.QueryRow(query, id).Scan(
		&e.ID, &e.Kind, &e.Status, &e.CustomerName, &e.Phone, &e.Email,
		&e.Amount, &e.ReferenceAt, &e.SMSAttempts, &e.EmailAttempts,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewEntityNotFound(id)
		}
		return nil, err
	}
	return &e, nil
}

func (r *EntityRepository) UpdateStatus(id int, status string) error {
	query := `UPDATE schedule_entities SET status=$1, updated_at=NOW() WHERE id=$2`
	_, err := r.DB.Exec(query, status, id)
	return err
}

// MarkExpired transitions an entity to expired only while it is still
// pending_reminder and has zero pending tasks. Expiry is a derived fact;
// the guard is recomputed inside the statement so a concurrent conversion
// wins. Returns whether the transition happened.
func (r *EntityRepository) MarkExpired(id int) (bool, error) {
	query := `
        UPDATE schedule_entities SET status=$1, updated_at=NOW()
        WHERE id=$2 AND status=$3
          AND NOT EXISTS (
            SELECT 1 FROM reminder_tasks WHERE entity_id=$2 AND status=$4
          )
    `
	res, err := r.DB.Exec(query, model.EntityExpired, id, model.EntityPendingReminder, model.TaskPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *EntityRepository) IncrementAttempts(id int, channel string) error {
	column := "sms_attempts"
	if channel == model.ChannelEmail {
		column = "email_attempts"
	}
	query := `UPDATE schedule_entities SET ` + column + `=` + column + `+1, updated_at=NOW() WHERE id=$1`
	_, err := r.DB.Exec(query, id)
	return err
}

var _ EntityRepositoryInterface = (*EntityRepository)(nil)
