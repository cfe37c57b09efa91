package notify

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"ipcam-analysis/internal/core/models"
	"ipcam-analysis/internal/util/timezone"

	log "github.com/sirupsen/logrus"
)

// ImageContentID verbindet den <img>-Tag im Body mit dem eingebetteten Bild
const ImageContentID = "image01"

// Address ist ein Absender mit Anzeigename
type Address struct {
	Name  string
	Email string
}

// Attachment ist ein einzelner Bildanhang
type Attachment struct {
	Data      []byte
	Filename  string
	ContentID string
}

// Message ist eine fertig aufbereitete Benachrichtigung
type Message struct {
	From       Address
	To         []string
	Subject    string
	HTML       string
	Attachment *Attachment
}

// Mailer liefert Nachrichten aus (SES, SMTP, ...)
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
}

// Config enthält Absender, Empfänger und die Vorlagen
type Config struct {
	SenderName  string
	SenderEmail string
	Recipients  []string
	Subject     string // Vorlage, z.B. "Camera $camera"
	MessageHTML string // HTML-Fragment, z.B. "<p>$list</p>$image"
}

// ErrorTexts liefert Betreff und Body der Fehlermail für einen Host
type ErrorTexts func(hostname string) (subject, body string)

// Composer erstellt Benachrichtigungen aus Vorlagen und stellt sie zu
type Composer struct {
	cfg        Config
	mailer     Mailer
	errorTexts ErrorTexts
}

// NewComposer erstellt einen neuen Composer
func NewComposer(cfg Config, mailer Mailer, errorTexts ErrorTexts) *Composer {
	if errorTexts == nil {
		errorTexts = DefaultErrorTexts
	}
	return &Composer{cfg: cfg, mailer: mailer, errorTexts: errorTexts}
}

// DefaultErrorTexts sind die englischen Texte der Fehlermail
func DefaultErrorTexts(hostname string) (string, string) {
	return "Image processing error",
		fmt.Sprintf("<p>Failed to process image. Check logs for details.</p><p>Server: %s</p>", hostname)
}

// LabelListHTML erzeugt die Aufzählung der erkannten Labels
func LabelListHTML(labels *models.LabelSet) string {
	var b strings.Builder
	b.WriteString("<ul>")
	for _, label := range labels.Labels() {
		fmt.Fprintf(&b, "<li><b>%s</b>: %.0f%%</li>", label.DisplayName, label.Confidence)
	}
	b.WriteString("</ul>")
	return b.String()
}

// ImageTagHTML erzeugt den <img>-Tag für das eingebettete Bild
func ImageTagHTML(width, height int) string {
	return fmt.Sprintf(`<img src="cid:%s" width="%d" height="%d"/>`, ImageContentID, width, height)
}

// AttachmentName bildet "{camera}_{ISO-8601}{ext}" mit der Endung der hochgeladenen Datei
func AttachmentName(camera, imagePath string, ts time.Time) string {
	return camera + "_" + timezone.ISO8601(ts) + filepath.Ext(imagePath)
}

// Compose erstellt die Benachrichtigung für einen Lauf mit zugelassenen Labels
func (c *Composer) Compose(run *models.PipelineRun) *Message {
	tokens := map[string]string{
		"camera": run.Camera,
		"list":   LabelListHTML(run.Labels),
	}

	var attachment *Attachment
	if len(run.Annotated) > 0 {
		tokens["image"] = ImageTagHTML(run.AnnotatedWidth, run.AnnotatedHeight)
		attachment = &Attachment{
			Data:      run.Annotated,
			Filename:  AttachmentName(run.Camera, run.ImagePath, run.Timestamp),
			ContentID: ImageContentID,
		}
	}

	body := "<html><body>" + c.cfg.MessageHTML + "</body></html>"

	return &Message{
		From:       Address{Name: c.cfg.SenderName, Email: c.cfg.SenderEmail},
		To:         c.cfg.Recipients,
		Subject:    SafeSubstitute(c.cfg.Subject, tokens),
		HTML:       SafeSubstitute(body, tokens),
		Attachment: attachment,
	}
}

// ComposeError erstellt die feste Fehlermail
func (c *Composer) ComposeError(hostname string) *Message {
	subject, body := c.errorTexts(hostname)
	return &Message{
		From:    Address{Name: c.cfg.SenderName, Email: c.cfg.SenderEmail},
		To:      c.cfg.Recipients,
		Subject: subject,
		HTML:    body,
	}
}

// Deliver stellt die Nachricht zu. Fehler werden nur protokolliert, es gibt keinen
// erneuten Versuch. Der Rückgabewert zeigt an, ob die Zustellung geklappt hat.
func (c *Composer) Deliver(ctx context.Context, msg *Message) bool {
	if msg.Attachment != nil {
		log.Debugf("Email attachment size %d", len(msg.Attachment.Data))
	}

	if err := c.mailer.Send(ctx, msg); err != nil {
		log.WithError(err).Error("Sending email failed")
		return false
	}

	log.Infof("Email sent to: %v", msg.To)
	return true
}
