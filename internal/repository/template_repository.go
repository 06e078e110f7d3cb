package repository

import (
	"database/sql"

	"github.com/kusinaph/reminder-backend/internal/model"
)

type TemplateRepositoryInterface interface {
	GetActive(templateType, channel string) (*model.MessageTemplate, error)
}

type TemplateRepository struct {
	DB *sql.DB
}

// GetActive fetches the active template for a (type, channel) pair.
// Returns nil, nil when none is active; callers fall back to defaults.
func (r *TemplateRepository) GetActive(templateType, channel string) (*model.MessageTemplate, error) {
	query := `
        SELECT id, type, channel, subject, body, is_active, created_at
        FROM message_templates
        WHERE type=$1 AND channel=$2 AND is_active=true
        ORDER BY id DESC
        LIMIT 1
    `
	var t model.MessageTemplate
	err := r.DB.QueryRow(query, templateType, channel).Scan(
		&t.ID, &t.Type, &t.Channel, &t.Subject, &t.Body, &t.IsActive, &t.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

var _ TemplateRepositoryInterface = (*TemplateRepository)(nil)
