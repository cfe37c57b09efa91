package selftest

import (
	"context"
	"fmt"
	"image/color"
	"io"
	"os"
	"strings"

	"ipcam-analysis/internal/core/annotate"
	"ipcam-analysis/internal/core/models"
	"ipcam-analysis/internal/core/notify"

	"github.com/disintegration/imaging"
	log "github.com/sirupsen/logrus"
)

// AWSEnvVars sind die Umgebungsvariablen, die die AWS-Anmeldung beeinflussen
var AWSEnvVars = []string{
	"AWS_ACCESS_KEY_ID",
	"AWS_SECRET_ACCESS_KEY",
	"AWS_SESSION_TOKEN",
	"AWS_PROFILE",
	"AWS_CONFIG_FILE",
	"AWS_SHARED_CREDENTIALS_FILE",
	"AWS_MAX_ATTEMPTS",
	"AWS_RETRY_MODE",
}

// Detector führt eine Labelerkennung aus
type Detector interface {
	Detect(ctx context.Context, imageData []byte) ([]models.Detection, error)
}

// Options beschreibt, womit der Selbsttest arbeitet
type Options struct {
	Region    string
	Detector  Detector
	Mailer    notify.Mailer
	Sender    notify.Address
	To        []string
	TestTexts func() (subject, body string)
	Out       io.Writer
	Getenv    func(string) string
}

// EnvLines gibt die AWS-Umgebungsvariablen als NAME=WERT-Zeilen zurück
func EnvLines(getenv func(string) string) []string {
	if getenv == nil {
		getenv = os.Getenv
	}
	lines := make([]string, 0, len(AWSEnvVars))
	for _, name := range AWSEnvVars {
		val := getenv(name)
		if val == "" {
			val = "<not set>"
		}
		lines = append(lines, name+"="+val)
	}
	return lines
}

// LogEnv protokolliert die AWS-Umgebungsvariablen auf Debug-Ebene
func LogEnv() {
	for _, line := range EnvLines(nil) {
		log.Debug(line)
	}
}

// TestImage erzeugt ein weißes 80x80-JPEG
func TestImage() ([]byte, error) {
	img := imaging.New(80, 80, color.White)
	return annotate.EncodeJPEG(img)
}

// Run prüft Rekognition und den Mailversand. Ein Fehler bei der Erkennung
// wird zurückgegeben, ein Fehler beim Mailversand nur ausgegeben.
func Run(ctx context.Context, opts Options) error {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	fmt.Fprintln(out, "Testing Amazon AWS")
	fmt.Fprintln(out, "AWS environment variables")
	for _, line := range EnvLines(opts.Getenv) {
		fmt.Fprintf(out, "  %s\n", line)
	}

	fmt.Fprintln(out, "Checking AWS Rekognition permissions")
	fmt.Fprintf(out, "  AWS Region: %s\n", opts.Region)

	data, err := TestImage()
	if err != nil {
		return fmt.Errorf("failed to create test image: %w", err)
	}

	detections, err := opts.Detector.Detect(ctx, data)
	if err != nil {
		fmt.Fprintln(out, "REKOGNITION ERROR")
		fmt.Fprintln(out, err)
		return fmt.Errorf("rekognition test failed: %w", err)
	}
	fmt.Fprintln(out, "  Response OK")
	if len(detections) > 0 {
		fmt.Fprintln(out, "  Objects detected")
	} else {
		fmt.Fprintln(out, "WARNING: No object detected")
	}

	fmt.Fprintln(out, "Testing email settings")
	fmt.Fprintf(out, "  Email sender: %s\n", opts.Sender.Email)
	fmt.Fprintf(out, "  Email recipients: %s\n", strings.Join(opts.To, ", "))

	subject, body := "Email test", "Amazon SES settings are ok"
	if opts.TestTexts != nil {
		subject, body = opts.TestTexts()
	}
	msg := &notify.Message{
		From:    opts.Sender,
		To:      opts.To,
		Subject: subject,
		HTML:    "<html><body><p>" + body + "</p></body></html>",
	}
	if err := opts.Mailer.Send(ctx, msg); err != nil {
		fmt.Fprintln(out, err)
	} else {
		fmt.Fprintln(out, "  Email successfully sent.")
	}

	fmt.Fprintln(out, "Test OK")
	return nil
}
