package mailer

import (
	"bytes"
	"fmt"
	"mime"

	"ipcam-analysis/config"
	"ipcam-analysis/internal/core/notify"
	"ipcam-analysis/internal/integrations/awsapi"

	"github.com/wneessen/go-mail"
)

// BuildMessage wandelt eine Benachrichtigung in eine MIME-Nachricht um.
// Das Bild wird inline mit der Content-ID aus der Benachrichtigung eingebettet.
func BuildMessage(n *notify.Message) (*mail.Msg, error) {
	m := mail.NewMsg()

	if err := m.FromFormat(n.From.Name, n.From.Email); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", n.From.Email, err)
	}
	if err := m.To(n.To...); err != nil {
		return nil, fmt.Errorf("invalid recipients: %w", err)
	}
	m.Subject(n.Subject)
	m.SetDate()
	m.SetMessageID()
	m.SetBodyString(mail.TypeTextHTML, n.HTML)

	if a := n.Attachment; a != nil {
		opts := []mail.FileOption{
			mail.WithFileContentType(mail.ContentType(imageContentType)),
			withExactFilename(a.Filename),
		}
		if a.ContentID != "" {
			opts = append(opts, mail.WithFileContentID("<"+a.ContentID+">"))
		}
		if err := m.EmbedReader(a.Filename, bytes.NewReader(a.Data), opts...); err != nil {
			return nil, fmt.Errorf("failed to embed image: %w", err)
		}
	}

	return m, nil
}

const imageContentType = "image/jpeg"

// withExactFilename setzt Content-Type und Content-Disposition selbst. go-mail ersetzt
// sonst ":" im Dateinamen durch "_", der Zeitstempel im Namen bliebe nicht erhalten.
func withExactFilename(name string) mail.FileOption {
	return func(f *mail.File) {
		contentType := mime.FormatMediaType(imageContentType, map[string]string{"name": name})
		disposition := mime.FormatMediaType("inline", map[string]string{"filename": name})
		if contentType == "" || disposition == "" {
			return
		}
		f.Header.Set("Content-Type", contentType)
		f.Header.Set("Content-Disposition", disposition)
	}
}

// RawMessage liefert die vollständige MIME-Nachricht als Bytes
func RawMessage(n *notify.Message) ([]byte, error) {
	m, err := BuildMessage(n)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to render message: %w", err)
	}
	return buf.Bytes(), nil
}

// New erstellt den konfigurierten Transport
func New(cfg config.EmailConfig, api *awsapi.Client) (notify.Mailer, error) {
	switch cfg.Transport {
	case "ses":
		if api == nil {
			return nil, fmt.Errorf("ses transport requires an aws client")
		}
		return NewSES(api), nil
	case "smtp":
		return NewSMTP(cfg.SMTP)
	default:
		return nil, fmt.Errorf("unknown email transport %q", cfg.Transport)
	}
}
