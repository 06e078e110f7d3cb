// Package sender holds one implementation per delivery channel. Each
// variant wraps its provider's synchronous API and normalizes the outcome
// to a tagged Result, so the dispatch loop never sees provider details.
package sender

import "context"

// State is the normalized outcome of one provider call.
type State int

const (
	StateSent    State = iota // provider accepted the message
	StateFailed               // transient failure: timeout, 5xx, rate limit
	StateInvalid              // recipient permanently undeliverable, no point retrying
)

// Message is the rendered content handed to a channel. Subject is only
// meaningful for email.
type Message struct {
	Recipient string
	Subject   string
	Body      string
}

// Result carries the normalized state plus the raw provider response for
// the delivery log.
type Result struct {
	State             State
	ProviderMessageID string
	Response          string
	Err               error
}

type Sender interface {
	Channel() string
	Send(ctx context.Context, msg Message) Result
}
