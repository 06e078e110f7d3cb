package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kusinaph/reminder-backend/internal/model"
)

// SMSSender sends through an HTTP SMS gateway (Semaphore-style form API).
type SMSSender struct {
	BaseURL    string
	APIKey     string
	SenderName string
	Client     *http.Client
}

func NewSMSSender(baseURL, apiKey, senderName string) *SMSSender {
	return &SMSSender{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		SenderName: senderName,
		// A hung gateway call would stall the whole batch.
		Client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *SMSSender) Channel() string {
	return model.ChannelSMS
}

// NormalizePhone maps a Philippine mobile number to the canonical
// 63XXXXXXXXXX form: separators stripped, 0- and +63- prefixes folded
// into the country code. Returns false when the result is not a valid
// mobile number.
func NormalizePhone(raw string) (string, bool) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case strings.HasPrefix(digits, "0"):
		digits = "63" + digits[1:]
	case len(digits) == 10 && strings.HasPrefix(digits, "9"):
		digits = "63" + digits
	}

	if len(digits) != 12 || !strings.HasPrefix(digits, "639") {
		return "", false
	}
	return digits, true
}

func (s *SMSSender) Send(ctx context.Context, msg Message) Result {
	number, ok := NormalizePhone(msg.Recipient)
	if !ok {
		return Result{
			State: StateInvalid,
			Err:   fmt.Errorf("malformed phone number %q", msg.Recipient),
		}
	}

	form := url.Values{}
	form.Set("apikey", s.APIKey)
	form.Set("number", number)
	form.Set("message", msg.Body)
	form.Set("sendername", s.SenderName)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Result{State: StateFailed, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.Client.Do(req)
	if err != nil {
		return Result{State: StateFailed, Err: fmt.Errorf("sms gateway: %w", err)}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	raw := string(body)

	if resp.StatusCode >= 400 {
		state := StateFailed
		if resp.StatusCode < 500 && strings.Contains(strings.ToLower(raw), "number") {
			state = StateInvalid
		}
		return Result{
			State:    state,
			Response: raw,
			Err:      fmt.Errorf("sms gateway returned %d", resp.StatusCode),
		}
	}

	// The gateway answers with one element per recipient.
	var out []struct {
		MessageID int64  `json:"message_id"`
		Status    string `json:"status"`
	}
	if err := json.Unmarshal(body, &out); err != nil || len(out) == 0 {
		// Accepted but unparseable; keep the raw response for the log.
		return Result{State: StateSent, Response: raw}
	}

	first := out[0]
	if strings.EqualFold(first.Status, "Failed") || strings.EqualFold(first.Status, "Refunded") {
		return Result{
			State:    StateFailed,
			Response: raw,
			Err:      fmt.Errorf("sms gateway rejected message: %s", first.Status),
		}
	}

	return Result{
		State:             StateSent,
		ProviderMessageID: fmt.Sprintf("%d", first.MessageID),
		Response:          raw,
	}
}

// MessageStatus re-queries the gateway for the delivery status of a
// previously sent message. Used by reconciliation only.
func (s *SMSSender) MessageStatus(ctx context.Context, providerMessageID string) (string, error) {
	u := s.BaseURL + "/" + url.PathEscape(providerMessageID) + "?apikey=" + url.QueryEscape(s.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sms gateway: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("sms gateway returned %d", resp.StatusCode)
	}

	var out struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("unparseable status response: %w", err)
	}
	return out.Status, nil
}
