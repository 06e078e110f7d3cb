// internal/controller/reminder_controller.go
package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/kusinaph/reminder-backend/internal/errors"
	"github.com/kusinaph/reminder-backend/internal/model"
	"github.com/kusinaph/reminder-backend/internal/queue"
	"github.com/kusinaph/reminder-backend/internal/repository"
	"github.com/kusinaph/reminder-backend/internal/service"
)

type ReminderController struct {
	EntityRepo      repository.EntityRepositoryInterface
	ReminderRepo    repository.ReminderRepositoryInterface
	ScheduleService *service.ScheduleService
	DispatchService *service.DispatchService
	SyncService     *service.SyncService
	Queue           queue.Queue
}

// CreateEntity registers a schedule entity (the storefront calls this when
// a checkout or reservation is created).
func (c *ReminderController) CreateEntity(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Kind         string    `json:"kind"`
		CustomerName string    `json:"customer_name"`
		Phone        string    `json:"phone"`
		Email        string    `json:"email"`
		Amount       float64   `json:"amount"`
		ReferenceAt  time.Time `json:"reference_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if body.Kind != model.KindCheckout && body.Kind != model.KindReservation {
		http.Error(w, "kind must be checkout or reservation", http.StatusBadRequest)
		return
	}
	if body.Phone == "" && body.Email == "" {
		http.Error(w, "at least one contact field is required", http.StatusBadRequest)
		return
	}

	entity := &model.ScheduleEntity{
		Kind:         body.Kind,
		Status:       model.EntityActive,
		CustomerName: body.CustomerName,
		Phone:        body.Phone,
		Email:        body.Email,
		Amount:       body.Amount,
		ReferenceAt:  body.ReferenceAt,
	}
	if err := c.EntityRepo.Create(entity); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(entity)
}

// Schedule publishes a materialization event for the entity. The
// subscriber (same process or the worker over AMQP) creates the tasks.
func (c *ReminderController) Schedule(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	if err := c.Queue.Publish(queue.TopicSchedules, queue.ScheduleJob{EntityID: id}); err != nil {
		http.Error(w, "failed to enqueue schedule event", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"entity_id": id,
		"queued":    true,
	})
}

// UpdateEntityStatus is the storefront write path for converted/cancelled.
// Open tasks are not touched here; the dispatch loop cancels them via the
// relevance guard.
func (c *ReminderController) UpdateEntityStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if body.Status != model.EntityConverted && body.Status != model.EntityCancelled {
		http.Error(w, "status must be converted or cancelled", http.StatusBadRequest)
		return
	}

	if _, err := c.EntityRepo.GetByID(id); err != nil {
		if appErrors.IsEntityNotFound(err) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := c.EntityRepo.UpdateStatus(id, body.Status); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"entity_id": id,
		"status":    body.Status,
	})
}

// GetEntity returns the entity with its reminder task stats.
func (c *ReminderController) GetEntity(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	entity, err := c.EntityRepo.GetByID(id)
	if err != nil {
		if appErrors.IsEntityNotFound(err) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	stats, err := c.ReminderRepo.StatsByEntity(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"entity": entity,
		"tasks":  stats,
	})
}

// Dispatch runs one dispatch invocation on demand and returns its counts.
func (c *ReminderController) Dispatch(w http.ResponseWriter, r *http.Request) {
	result, err := c.DispatchService.Run(r.Context())
	if err != nil {
		// data-layer outage
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(result)
}

// ManualSend is the operator-initiated single send for one entity+channel.
func (c *ReminderController) ManualSend(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var body struct {
		Channel string `json:"channel"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if body.Channel != model.ChannelSMS && body.Channel != model.ChannelEmail {
		http.Error(w, "channel must be sms or email", http.StatusBadRequest)
		return
	}

	if err := c.DispatchService.SendNow(r.Context(), id, body.Channel); err != nil {
		switch {
		case appErrors.IsEntityNotFound(err):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, appErrors.ErrChannelUnavailable):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			http.Error(w, err.Error(), http.StatusBadGateway)
		}
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"channel": body.Channel,
	})
}

// Reconcile re-queries the SMS provider for delivery confirmations.
func (c *ReminderController) Reconcile(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SyncAll bool `json:"sync_all"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if !body.SyncAll {
		http.Error(w, "sync_all must be true", http.StatusBadRequest)
		return
	}

	updated, err := c.SyncService.SyncAll(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"updated": updated,
	})
}
