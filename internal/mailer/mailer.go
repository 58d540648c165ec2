// Package mailer delivers one-time codes over SMTP.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/authgate/otp"
	"github.com/wneessen/go-mail"
)

// Config holds the SMTP settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	// Secure selects implicit TLS (usually port 465). Otherwise STARTTLS
	// is used when the server offers it.
	Secure bool
	From   string
	// Validity is the code lifetime quoted in the message.
	Validity time.Duration
	Timeout  time.Duration
}

// sender is the part of *mail.Client used here.
type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Mailer implements authgate.NotificationSender.
type Mailer struct {
	client   sender
	from     string
	validity time.Duration
	logger   *slog.Logger
}

// New builds an SMTP client from cfg. No connection is made until the
// first send.
func New(cfg Config, logger *slog.Logger) (*Mailer, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, errors.New("mailer: host and from are required")
	}
	if cfg.Port <= 0 {
		return nil, errors.New("mailer: invalid port")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(cfg.Timeout),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	if cfg.Secure {
		opts = append(opts, mail.WithSSLPort(false))
	} else {
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSOpportunistic))
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("mailer: %w", err)
	}
	return newMailer(client, cfg, logger), nil
}

func newMailer(client sender, cfg Config, logger *slog.Logger) *Mailer {
	if cfg.Validity <= 0 {
		cfg.Validity = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Mailer{client: client, from: cfg.From, validity: cfg.Validity, logger: logger}
}

// SendOTP renders and sends one code.
func (m *Mailer) SendOTP(ctx context.Context, address, code string, purpose otp.Purpose) error {
	msg, err := m.message(address, code, purpose)
	if err != nil {
		return err
	}
	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		m.logger.Error("send verification otp failed",
			slog.String("purpose", string(purpose)),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("mailer: send: %w", err)
	}
	m.logger.Info("send verification otp success", slog.String("purpose", string(purpose)))
	return nil
}

func (m *Mailer) message(address, code string, purpose otp.Purpose) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return nil, fmt.Errorf("mailer: from: %w", err)
	}
	if err := msg.To(address); err != nil {
		return nil, fmt.Errorf("mailer: to: %w", err)
	}
	msg.Subject(subject(code, m.validity))
	msg.SetBodyString(mail.TypeTextPlain, plainBody(code, m.validity))
	if err := msg.AddAlternativeHTMLTemplate(htmlTemplate, newTemplateData(code, purpose, m.validity)); err != nil {
		return nil, fmt.Errorf("mailer: render: %w", err)
	}
	return msg, nil
}
