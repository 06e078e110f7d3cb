package sender

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"time"

	"github.com/kusinaph/reminder-backend/internal/model"
)

// EmailSender delivers HTML mail over SMTP with implicit TLS (port 465).
type EmailSender struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

func NewEmailSender(host, port, user, pass, from string) *EmailSender {
	return &EmailSender{
		Host:     host,
		Port:     port,
		Username: user,
		Password: pass,
		From:     from,
		Timeout:  20 * time.Second,
	}
}

func (e *EmailSender) Channel() string {
	return model.ChannelEmail
}

func (e *EmailSender) Send(ctx context.Context, msg Message) Result {
	if _, err := mail.ParseAddress(msg.Recipient); err != nil {
		return Result{
			State: StateInvalid,
			Err:   fmt.Errorf("malformed email address %q", msg.Recipient),
		}
	}

	payload := []byte(
		fmt.Sprintf("From: %s\r\n", e.From) +
			fmt.Sprintf("To: %s\r\n", msg.Recipient) +
			fmt.Sprintf("Subject: %s\r\n", msg.Subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=\"utf-8\"\r\n" +
			"\r\n" +
			msg.Body,
	)

	if err := e.deliver(ctx, msg.Recipient, payload); err != nil {
		return Result{State: StateFailed, Err: err}
	}
	return Result{
		State:    StateSent,
		Response: "accepted by " + e.Host,
	}
}

func (e *EmailSender) deliver(ctx context.Context, to string, payload []byte) error {
	timeout := e.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", e.Host+":"+e.Port, &tls.Config{ServerName: e.Host})
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	defer conn.Close()

	// One deadline covers the whole SMTP conversation; a hung server must
	// not stall the batch.
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}

	client, err := smtp.NewClient(conn, e.Host)
	if err != nil {
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Quit()

	auth := smtp.PlainAuth("", e.Username, e.Password, e.Host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}

	if err := client.Mail(e.From); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	return w.Close()
}
