// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kusinaph/reminder-backend/internal/model"
)

// Offset is one step of a reminder schedule: send on this channel at this
// distance from the entity's reference instant. Cart-recovery offsets count
// forward from abandonment; reservation offsets count backward from the
// reservation time.
type Offset struct {
	Channel  string
	Duration time.Duration
}

// DefaultMessage is the hard-coded fallback content for a (purpose, channel)
// pair, used when no active template exists.
type DefaultMessage struct {
	Subject string
	Body    string
}

type Config struct {
	DatabaseURL string

	Timezone        string
	WindowStartHour int
	WindowEndHour   int

	BatchSize       int
	SendDelay       time.Duration
	StatusSyncDelay time.Duration

	CartRecoveryOffsets []Offset
	ReservationOffsets  []Offset

	SMSGatewayURL string
	SMSAPIKey     string
	SMSSenderName string

	SMTPHost  string
	SMTPPort  string
	SMTPUser  string
	SMTPPass  string
	EmailFrom string

	AMQPURL          string
	DispatchInterval time.Duration
	PublicBaseURL    string
	LogPath          string
}

// DefaultMessages keys are purpose + ":" + channel.
var DefaultMessages = map[string]DefaultMessage{
	model.PurposeCartRecovery + ":" + model.ChannelSMS: {
		Body: "Hi {{name}}! You left items worth {{amount}} in your cart at Kusina. Finish your order here: {{link}}",
	},
	model.PurposeCartRecovery + ":" + model.ChannelEmail: {
		Subject: "You left something behind at Kusina",
		Body:    "<p>Hi {{name}},</p><p>Your cart ({{amount}}) is still waiting. <a href=\"{{link}}\">Complete your order</a> before it expires.</p>",
	},
	model.PurposeReservationReminder + ":" + model.ChannelSMS: {
		Body: "Hi {{name}}! Reminder: your table for {{amount}} at Kusina. Confirm or manage your booking: {{link}}",
	},
	model.PurposeReservationReminder + ":" + model.ChannelEmail: {
		Subject: "Your reservation at Kusina",
		Body:    "<p>Hi {{name}},</p><p>This is a reminder for your upcoming reservation (party of {{amount}}). <a href=\"{{link}}\">View your booking</a>.</p>",
	},
}

// Load reads configuration from the environment with sensible defaults.
// Call godotenv.Load() first in main.
func Load() (*Config, error) {
	cartOffsets, err := parseOffsets(getEnv("CART_RECOVERY_OFFSETS", "email:1h,sms:24h"))
	if err != nil {
		return nil, fmt.Errorf("CART_RECOVERY_OFFSETS: %w", err)
	}
	resOffsets, err := parseOffsets(getEnv("RESERVATION_OFFSETS", "email:12h,sms:6h,sms:3h,sms:1h,sms:30m,sms:15m"))
	if err != nil {
		return nil, fmt.Errorf("RESERVATION_OFFSETS: %w", err)
	}

	c := &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),

		Timezone:        getEnv("BUSINESS_TIMEZONE", "Asia/Manila"),
		WindowStartHour: getEnvInt("SEND_WINDOW_START_HOUR", 8),
		WindowEndHour:   getEnvInt("SEND_WINDOW_END_HOUR", 21),

		BatchSize:       getEnvInt("DISPATCH_BATCH_SIZE", 50),
		SendDelay:       time.Duration(getEnvInt("SEND_DELAY_MS", 500)) * time.Millisecond,
		StatusSyncDelay: time.Duration(getEnvInt("STATUS_SYNC_DELAY_MS", 1000)) * time.Millisecond,

		CartRecoveryOffsets: cartOffsets,
		ReservationOffsets:  resOffsets,

		SMSGatewayURL: getEnv("SMS_GATEWAY_URL", "https://api.semaphore.co/api/v4/messages"),
		SMSAPIKey:     getEnv("SMS_API_KEY", ""),
		SMSSenderName: getEnv("SMS_SENDER_NAME", "KUSINA"),

		SMTPHost:  getEnv("SMTP_HOST", ""),
		SMTPPort:  getEnv("SMTP_PORT", "465"),
		SMTPUser:  getEnv("SMTP_USER", ""),
		SMTPPass:  getEnv("SMTP_PASS", ""),
		EmailFrom: getEnv("EMAIL_FROM", "no-reply@kusina.ph"),

		AMQPURL:          getEnv("AMQP_URL", ""),
		DispatchInterval: time.Duration(getEnvInt("DISPATCH_INTERVAL_MINUTES", 5)) * time.Minute,
		PublicBaseURL:    getEnv("PUBLIC_BASE_URL", "https://kusina.ph"),
		LogPath:          getEnv("LOG_PATH", ""),
	}

	if c.WindowStartHour < 0 || c.WindowStartHour > 23 || c.WindowEndHour < 1 || c.WindowEndHour > 24 || c.WindowStartHour >= c.WindowEndHour {
		return nil, fmt.Errorf("invalid send window [%d, %d)", c.WindowStartHour, c.WindowEndHour)
	}

	return c, nil
}

// OffsetsFor returns the configured schedule for a reminder purpose.
func (c *Config) OffsetsFor(purpose string) []Offset {
	switch purpose {
	case model.PurposeCartRecovery:
		return c.CartRecoveryOffsets
	case model.PurposeReservationReminder:
		return c.ReservationOffsets
	}
	return nil
}

// parseOffsets parses "email:1h,sms:24h" into Offsets.
func parseOffsets(s string) ([]Offset, error) {
	var offsets []Offset
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		channel, dur, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("bad offset %q, want channel:duration", part)
		}
		if channel != model.ChannelSMS && channel != model.ChannelEmail {
			return nil, fmt.Errorf("unknown channel %q", channel)
		}
		d, err := time.ParseDuration(dur)
		if err != nil {
			return nil, fmt.Errorf("bad duration in %q: %w", part, err)
		}
		offsets = append(offsets, Offset{Channel: channel, Duration: d})
	}
	if len(offsets) == 0 {
		return nil, fmt.Errorf("no offsets configured")
	}
	return offsets, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
