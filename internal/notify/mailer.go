// Package notify delivers outbound mail.
package notify

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/helpline-labs/support-desk/internal/config"
)

var ErrInvalidMessage = errors.New("notify: invalid message")

const sendTimeout = 15 * time.Second

// Message is a plain-text email.
type Message struct {
	To      []string
	Subject string
	Body    string
	Headers map[string]string
}

// Mailer sends messages.
type Mailer interface {
	Send(ctx context.Context, m Message) error
}

// NewMailer returns an SMTP mailer, or a logging no-op when SMTP is not
// configured.
func NewMailer(cfg config.NotificationConfig, logger *zap.Logger) Mailer {
	if strings.TrimSpace(cfg.SMTPHost) == "" {
		return &LogMailer{logger: logger}
	}
	return &SMTPMailer{
		from:   cfg.EmailFrom,
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword),
	}
}

// SMTPMailer sends through gomail.
type SMTPMailer struct {
	from   string
	dialer *gomail.Dialer
}

func (s *SMTPMailer) Send(ctx context.Context, m Message) error {
	msg, err := buildMessage(s.from, m)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- s.dialer.DialAndSend(msg)
	}()

	wait := sendTimeout
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 && d < wait {
			wait = d
		}
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return context.DeadlineExceeded
	}
}

// LogMailer records messages instead of sending them.
type LogMailer struct {
	logger *zap.Logger
}

func (l *LogMailer) Send(_ context.Context, m Message) error {
	if l.logger != nil {
		l.logger.Debug("mail delivery disabled",
			zap.Strings("to", m.To),
			zap.String("subject", m.Subject))
	}
	return nil
}

func buildMessage(from string, m Message) (*gomail.Message, error) {
	from = strings.TrimSpace(from)
	if from == "" {
		return nil, errors.Join(ErrInvalidMessage, errors.New("from is required"))
	}
	to := cleanAddrs(m.To)
	if len(to) == 0 {
		return nil, errors.Join(ErrInvalidMessage, errors.New("recipient is required"))
	}
	subject := strings.TrimSpace(m.Subject)
	if subject == "" {
		return nil, errors.Join(ErrInvalidMessage, errors.New("subject is required"))
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", to...)
	msg.SetHeader("Subject", subject)
	for k, v := range m.Headers {
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		msg.SetHeader(k, v)
	}
	msg.SetBody("text/plain", m.Body)
	return msg, nil
}

func cleanAddrs(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
