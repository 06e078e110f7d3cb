package repository

import (
	"database/sql"
	"time"

	"github.com/kusinaph/reminder-backend/internal/model"
)

type ReminderRepositoryInterface interface {
	CreateBatch(tasks []*model.ReminderTask) error
	DueTasks(now time.Time, limit int) ([]*model.ReminderTask, error)
	OpenByEntity(entityID int) ([]*model.ReminderTask, error)
	CountPending(entityID int) (int, error)
	MarkSent(id int, at time.Time) error
	MarkFailed(id int, errMsg string) error
	MarkCancelled(id int) error
	StatsByEntity(entityID int) (map[string]int, error)
}

type ReminderRepository struct {
	DB *sql.DB
}

const taskColumns = `id, entity_id, purpose, channel, due_at, status, sent_at, error_message, created_at, updated_at`

// CreateBatch inserts one schedule's tasks in a single transaction, so a
// half-materialized schedule never survives a crash.
func (r *ReminderRepository) CreateBatch(tasks []*model.ReminderTask) error {
	if len(tasks) == 0 {
		return nil
	}
	tx, err := r.DB.Begin()
	if err != nil {
		return err
	}
	query := `
        INSERT INTO reminder_tasks (entity_id, purpose, channel, due_at, status, error_message, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, '', NOW(), NOW())
        RETURNING id, created_at, updated_at
    `
	for _, t := range tasks {
		if t.Status == "" {
			t.Status = model.TaskPending
		}
		if err := tx.QueryRow(query, t.EntityID, t.Purpose, t.Channel, t.DueAt, t.Status).
			Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// DueTasks returns pending tasks whose due_at has passed, oldest first.
func (r *ReminderRepository) DueTasks(now time.Time, limit int) ([]*model.ReminderTask, error) {
	query := `
        SELECT ` + taskColumns + `
        FROM reminder_tasks
        WHERE status=$1 AND due_at<=$2
        ORDER BY due_at ASC
        LIMIT $3
    `
	rows, err := r.DB.Query(query, model.TaskPending, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

// OpenByEntity returns the entity's non-terminal (pending) tasks.
func (r *ReminderRepository) OpenByEntity(entityID int) ([]*model.ReminderTask, error) {
	query := `
        SELECT ` + taskColumns + `
        FROM reminder_tasks
        WHERE entity_id=$1 AND status=$2
        ORDER BY due_at ASC
    `
	rows, err := r.DB.Query(query, entityID, model.TaskPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (r *ReminderRepository) CountPending(entityID int) (int, error) {
	var count int
	err := r.DB.QueryRow(
		`SELECT COUNT(*) FROM reminder_tasks WHERE entity_id=$1 AND status=$2`,
		entityID, model.TaskPending,
	).Scan(&count)
	return count, err
}

func (r *ReminderRepository) MarkSent(id int, at time.Time) error {
	query := `UPDATE reminder_tasks SET status=$1, sent_at=$2, error_message='', updated_at=NOW() WHERE id=$3`
	_, err := r.DB.Exec(query, model.TaskSent, at, id)
	return err
}

func (r *ReminderRepository) MarkFailed(id int, errMsg string) error {
	query := `UPDATE reminder_tasks SET status=$1, error_message=$2, updated_at=NOW() WHERE id=$3`
	_, err := r.DB.Exec(query, model.TaskFailed, errMsg, id)
	return err
}

func (r *ReminderRepository) MarkCancelled(id int) error {
	query := `UPDATE reminder_tasks SET status=$1, updated_at=NOW() WHERE id=$2`
	_, err := r.DB.Exec(query, model.TaskCancelled, id)
	return err
}

func (r *ReminderRepository) StatsByEntity(entityID int) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM reminder_tasks WHERE entity_id=$1 GROUP BY status`
	rows, err := r.DB.Query(query, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{
		model.TaskPending:   0,
		model.TaskSent:      0,
		model.TaskFailed:    0,
		model.TaskCancelled: 0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

func scanTasks(rows *sql.Rows) ([]*model.ReminderTask, error) {
	tasks := []*model.ReminderTask{}
	for rows.Next() {
		t := &model.ReminderTask{}
		if err := rows.Scan(
			&t.ID, &t.EntityID, &t.Purpose, &t.Channel, &t.DueAt,
			&t.Status, &t.SentAt, &t.ErrorMessage, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

var _ ReminderRepositoryInterface = (*ReminderRepository)(nil)
