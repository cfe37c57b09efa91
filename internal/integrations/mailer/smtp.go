package mailer

import (
	"context"
	"fmt"
	"time"

	"ipcam-analysis/config"
	"ipcam-analysis/internal/core/notify"

	log "github.com/sirupsen/logrus"
	"github.com/wneessen/go-mail"
)

// SMTP versendet Nachrichten über einen SMTP-Server
type SMTP struct {
	client *mail.Client
	host   string
}

// NewSMTP erstellt einen neuen SMTP-Transport
func NewSMTP(cfg config.SMTPConfig) (*SMTP, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(30 * time.Second),
	}

	switch cfg.TLS {
	case "mandatory":
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	case "none":
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	case "ssl":
		opts = append(opts, mail.WithSSL())
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}

	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}

	return &SMTP{client: client, host: cfg.Host}, nil
}

// Send implementiert notify.Mailer
func (s *SMTP) Send(ctx context.Context, msg *notify.Message) error {
	m, err := BuildMessage(msg)
	if err != nil {
		return err
	}

	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp send via %s failed: %w", s.host, err)
	}

	log.Debugf("SMTP server %s accepted message", s.host)
	return nil
}
