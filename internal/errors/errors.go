// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ErrEntityNotFound is returned when a schedule entity (or its contact
// field for the requested channel) does not exist.
type ErrEntityNotFound struct {
	EntityID int
}

func (e *ErrEntityNotFound) Error() string {
	return fmt.Sprintf("entity with ID %d not found", e.EntityID)
}

// Helper constructor
func NewEntityNotFound(id int) error {
	return &ErrEntityNotFound{EntityID: id}
}

func IsEntityNotFound(err error) bool {
	var e *ErrEntityNotFound
	return errors.As(err, &e)
}

// ErrChannelUnavailable is returned by manual send when neither an active
// template nor a default message exists for the (purpose, channel) pair.
var ErrChannelUnavailable = errors.New("channel unavailable: no template or default message")

// InvalidRecipientTag prefixes task error messages for permanently
// undeliverable contacts, so the admin UI can tell bad contact info from
// transient provider failures.
const InvalidRecipientTag = "invalid_recipient"
