// internal/service/window.go
package service

import (
	"fmt"
	"time"
)

// Window is the operating-hours gate: sending is permitted only inside
// [StartHour, EndHour) wall-clock hours in the business timezone. It is a
// global gate checked before a batch is pulled; tasks due during a closed
// window simply wait for the next open one.
type Window struct {
	Location  *time.Location
	StartHour int
	EndHour   int
}

func NewWindow(timezone string, startHour, endHour int) (*Window, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load business timezone %q: %w", timezone, err)
	}
	return &Window{Location: loc, StartHour: startHour, EndHour: endHour}, nil
}

// Allows reports whether sending is permitted at the given instant.
func (w *Window) Allows(now time.Time) bool {
	h := now.In(w.Location).Hour()
	return h >= w.StartHour && h < w.EndHour
}
