package mail

import (
	"context"
	"errors"
	"fmt"

	gomail "gopkg.in/gomail.v2"
)

// ErrDelivery indicates the message could not be handed to the
// outbound mail server.
var ErrDelivery = errors.New("mail: delivery failed")

// Message is one outbound notification with alternative bodies. The
// client renders the last attached part it supports, so HTML wins when
// available.
type Message struct {
	Recipient string
	Subject   string
	Text      string
	HTML      string
}

// Mailer delivers notifications.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig carries the outbound server settings.
type SMTPConfig struct {
	Sender   string
	Server   string
	Port     int
	Username string
	Password string
}

// SMTPMailer sends multipart text+html messages over SMTP with TLS.
type SMTPMailer struct {
	cfg SMTPConfig
}

func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Sender == "" || cfg.Server == "" {
		return nil, errors.New("mail: sender and server are required")
	}
	return &SMTPMailer{cfg: cfg}, nil
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	message := gomail.NewMessage()
	message.SetHeader("From", m.cfg.Sender)
	message.SetHeader("To", msg.Recipient)
	message.SetHeader("Subject", msg.Subject)
	message.SetBody("text/plain", msg.Text)
	if msg.HTML != "" {
		message.AddAlternative("text/html", msg.HTML)
	}

	dialer := gomail.NewDialer(m.cfg.Server, m.cfg.Port, m.cfg.Username, m.cfg.Password)
	dialer.SSL = m.cfg.Port == 465
	if err := dialer.DialAndSend(message); err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	return nil
}
