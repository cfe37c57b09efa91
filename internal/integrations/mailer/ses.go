package mailer

import (
	"context"
	"fmt"

	"ipcam-analysis/internal/core/notify"
	"ipcam-analysis/internal/integrations/awsapi"

	log "github.com/sirupsen/logrus"
)

const (
	sesSigningName = "ses"
	sesHost        = "email"
	sesPath        = "/v2/email/outbound-emails"
)

// SES versendet Nachrichten über Amazon SES (API v2, SendEmail mit Raw-Inhalt)
type SES struct {
	api *awsapi.Client
}

type sesDestination struct {
	ToAddresses []string `json:"ToAddresses"`
}

type sesRaw struct {
	Data []byte `json:"Data"`
}

type sesContent struct {
	Raw sesRaw `json:"Raw"`
}

type sesSendEmailRequest struct {
	FromEmailAddress string         `json:"FromEmailAddress"`
	Destination      sesDestination `json:"Destination"`
	Content          sesContent     `json:"Content"`
}

type sesSendEmailResponse struct {
	MessageID string `json:"MessageId"`
}

// NewSES erstellt einen neuen SES-Transport
func NewSES(api *awsapi.Client) *SES {
	return &SES{api: api}
}

// Send implementiert notify.Mailer
func (s *SES) Send(ctx context.Context, msg *notify.Message) error {
	raw, err := RawMessage(msg)
	if err != nil {
		return err
	}

	req := sesSendEmailRequest{
		FromEmailAddress: msg.From.Email,
		Destination:      sesDestination{ToAddresses: msg.To},
		Content:          sesContent{Raw: sesRaw{Data: raw}},
	}
	headers := map[string]string{"Content-Type": "application/json"}

	var resp sesSendEmailResponse
	if err := s.api.Call(ctx, sesSigningName, sesHost, sesPath, headers, req, &resp); err != nil {
		return fmt.Errorf("ses send email failed: %w", err)
	}

	log.Debugf("SES accepted message %s", resp.MessageID)
	return nil
}
