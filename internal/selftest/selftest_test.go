package selftest

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"ipcam-analysis/internal/core/models"
	"ipcam-analysis/internal/core/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDetector struct {
	detections []models.Detection
	err        error
	got        []byte
}

func (d *fakeDetector) Detect(_ context.Context, data []byte) ([]models.Detection, error) {
	d.got = data
	return d.detections, d.err
}

type fakeMailer struct {
	sent []*notify.Message
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg *notify.Message) error {
	m.sent = append(m.sent, msg)
	return m.err
}

func env(vals map[string]string) func(string) string {
	return func(k string) string { return vals[k] }
}

func TestEnvLines(t *testing.T) {
	lines := EnvLines(env(map[string]string{"AWS_PROFILE": "camera"}))
	require.Len(t, lines, len(AWSEnvVars))
	assert.Equal(t, "AWS_ACCESS_KEY_ID=<not set>", lines[0])
	assert.Contains(t, lines, "AWS_PROFILE=camera")
}

func TestTestImageIsJPEG(t *testing.T) {
	data, err := TestImage()
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}))
}

func TestRunSuccess(t *testing.T) {
	det := &fakeDetector{detections: []models.Detection{{Name: "White", Confidence: 90}}}
	mailer := &fakeMailer{}
	var out bytes.Buffer

	err := Run(context.Background(), Options{
		Region:    "eu-west-1",
		Detector:  det,
		Mailer:    mailer,
		Sender:    notify.Address{Email: "cam@example.com"},
		To:        []string{"me@example.com"},
		TestTexts: func() (string, string) { return "Email-Test", "Einstellungen ok" },
		Out:       &out,
		Getenv:    env(nil),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, det.got)
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "Email-Test", mailer.sent[0].Subject)
	assert.Contains(t, mailer.sent[0].HTML, "Einstellungen ok")
	assert.Equal(t, []string{"me@example.com"}, mailer.sent[0].To)

	text := out.String()
	assert.Contains(t, text, "AWS Region: eu-west-1")
	assert.Contains(t, text, "Objects detected")
	assert.Contains(t, text, "Email successfully sent.")
	assert.Contains(t, text, "Test OK")
}

func TestRunWarnsWhenNothingDetected(t *testing.T) {
	var out bytes.Buffer
	err := Run(context.Background(), Options{
		Detector: &fakeDetector{},
		Mailer:   &fakeMailer{},
		Out:      &out,
		Getenv:   env(nil),
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "WARNING: No object detected")
}

func TestRunDetectionFailure(t *testing.T) {
	mailer := &fakeMailer{}
	var out bytes.Buffer
	err := Run(context.Background(), Options{
		Detector: &fakeDetector{err: errors.New("AccessDeniedException")},
		Mailer:   mailer,
		Out:      &out,
		Getenv:   env(nil),
	})
	assert.Error(t, err)
	assert.Contains(t, out.String(), "REKOGNITION ERROR")
	assert.Empty(t, mailer.sent)
}

func TestRunMailFailureIsReportedOnly(t *testing.T) {
	var out bytes.Buffer
	err := Run(context.Background(), Options{
		Detector: &fakeDetector{},
		Mailer:   &fakeMailer{err: errors.New("MessageRejected")},
		Out:      &out,
		Getenv:   env(nil),
	})
	assert.NoError(t, err)
	assert.Contains(t, out.String(), "MessageRejected")
	assert.NotContains(t, out.String(), "Email successfully sent.")
}
