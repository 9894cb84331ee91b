// Package mail renders notification emails from Markdown templates and
// delivers them over SMTP or to the log.
package mail

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wudi/docketkit/observability"
)

// Config selects and configures the delivery driver.
type Config struct {
	// Driver is log, smtp or memory.
	Driver   string     `yaml:"driver"`
	From     string     `yaml:"from"`
	FromName string     `yaml:"from_name"`
	ReplyTo  string     `yaml:"reply_to"`
	Product  string     `yaml:"product"`
	BaseURL  string     `yaml:"base_url"`
	SMTP     SMTPConfig `yaml:"smtp"`
}

// SMTPConfig is used by the smtp driver.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// DefaultConfig logs messages instead of sending them.
func DefaultConfig() Config {
	return Config{
		Driver:   "log",
		From:     "noreply@hospitality-compliance.com",
		FromName: "Hospitality Compliance",
		Product:  "Hospitality Compliance",
		BaseURL:  "http://localhost:8080",
		SMTP:     SMTPConfig{Port: 587},
	}
}

// Message is a rendered email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// ErrUnknownDriver is returned by NewSender.
var ErrUnknownDriver = errors.New("mail: unknown driver")

// NewSender builds the sender named by cfg.Driver.
func NewSender(cfg Config, log observability.Logger) (Sender, error) {
	switch cfg.Driver {
	case "", "log":
		return NewLogSender(log), nil
	case "memory":
		return &Outbox{}, nil
	case "smtp":
		return NewSMTPSender(cfg)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownDriver, cfg.Driver)
	}
}

// LogSender writes messages to the logger.
type LogSender struct {
	log observability.Logger
}

func NewLogSender(log observability.Logger) *LogSender {
	return &LogSender{log: observability.OrNop(log)}
}

func (s *LogSender) Send(_ context.Context, m Message) error {
	s.log.Info("email not sent, log driver",
		observability.String("to", m.To),
		observability.String("subject", m.Subject),
		observability.String("text", m.Text))
	return nil
}

// Outbox keeps messages in memory.
type Outbox struct {
	mu       sync.Mutex
	messages []Message
}

func (o *Outbox) Send(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.mu.Lock()
	o.messages = append(o.messages, m)
	o.mu.Unlock()
	return nil
}

// Messages returns a copy of everything sent so far.
func (o *Outbox) Messages() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Message(nil), o.messages...)
}
