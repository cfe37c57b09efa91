package processor

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"ipcam-analysis/internal/core/annotate"
	"ipcam-analysis/internal/core/labels"
	"ipcam-analysis/internal/core/models"
	"ipcam-analysis/internal/core/notify"
	"ipcam-analysis/internal/integrations/awsapi"
	"ipcam-analysis/internal/integrations/rekognition"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

const errorSubject = "Image processing error"

type fakeDetector struct {
	mu      sync.Mutex
	results [][]models.Detection
	errs    []error
	calls   int
}

// Detect liefert nacheinander die vorbereiteten Ergebnisse
func (d *fakeDetector) Detect(_ context.Context, _ []byte) ([]models.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	i := d.calls
	d.calls++
	var err error
	if i < len(d.errs) {
		err = d.errs[i]
	}
	var result []models.Detection
	if i < len(d.results) {
		result = d.results[i]
	}
	return result, err
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []*notify.Message
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg *notify.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return m.err
}

func (m *fakeMailer) count(subject string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, msg := range m.sent {
		if msg.Subject == subject {
			n++
		}
	}
	return n
}

type fakePublisher struct {
	runs []*models.PipelineRun
	err  error
}

func (p *fakePublisher) PublishLabels(_ context.Context, run *models.PipelineRun) error {
	p.runs = append(p.runs, run)
	return p.err
}

func person() []models.Detection {
	return []models.Detection{{
		Name:       "Person",
		Confidence: 97.5,
		Instances: []models.Instance{{
			BoundingBox: models.BoundingBox{Left: 0.1, Top: 0.1, Width: 0.5, Height: 0.5},
			Confidence:  97.5,
		}},
	}}
}

func writeJPEG(t *testing.T, dir string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.Gray{Y: 128})
		}
	}
	path := filepath.Join(dir, "snap.jpg")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, jpeg.Encode(f, img, nil))
	return path
}

func newTestPipeline(t *testing.T, detector Detector, mailer notify.Mailer) *Pipeline {
	t.Helper()
	annotator, err := annotate.New(100)
	require.NoError(t, err)

	composer := notify.NewComposer(notify.Config{
		SenderName:  "Camera",
		SenderEmail: "cam@example.com",
		Recipients:  []string{"me@example.com"},
		Subject:     "Camera $camera",
		MessageHTML: "<p>$list</p>$image",
	}, mailer, nil)

	return NewPipeline(detector, labels.NewPolicy(true, nil), annotator, composer, "testhost")
}

func TestProcessNotifiesAdmittedLabels(t *testing.T) {
	path := writeJPEG(t, t.TempDir())
	mailer := &fakeMailer{}
	publisher := &fakePublisher{}
	p := newTestPipeline(t, &fakeDetector{results: [][]models.Detection{person()}}, mailer)
	p.AddPublisher(publisher)

	res := p.Process(context.Background(), path, "garage")

	assert.Equal(t, OutcomeNotified, res.Outcome)
	assert.NoError(t, res.Err)
	require.Len(t, mailer.sent, 1)

	msg := mailer.sent[0]
	assert.Equal(t, "Camera garage", msg.Subject)
	assert.Contains(t, msg.HTML, "<li><b>Person</b>: 98%</li>")
	assert.Contains(t, msg.HTML, `<img src="cid:image01" width="64" height="48"/>`)
	require.NotNil(t, msg.Attachment)
	assert.Regexp(t, `^garage_\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{6}\.jpg$`, msg.Attachment.Filename)

	require.Len(t, publisher.runs, 1)
	assert.Equal(t, "garage", publisher.runs[0].Camera)
}

func TestPublishFailureDoesNotStopOtherPublishers(t *testing.T) {
	path := writeJPEG(t, t.TempDir())
	broken := &fakePublisher{err: errors.New("broker down")}
	healthy := &fakePublisher{}
	p := newTestPipeline(t, &fakeDetector{results: [][]models.Detection{person()}}, &fakeMailer{})
	p.AddPublisher(broken)
	p.AddPublisher(healthy)

	res := p.Process(context.Background(), path, "garage")

	assert.Equal(t, OutcomeNotified, res.Outcome)
	assert.Len(t, broken.runs, 1)
	assert.Len(t, healthy.runs, 1)
}

func TestProcessSkipsWithoutAdmittedLabels(t *testing.T) {
	path := writeJPEG(t, t.TempDir())
	mailer := &fakeMailer{}
	publisher := &fakePublisher{}
	detector := &fakeDetector{results: [][]models.Detection{{{Name: "Tree", Confidence: 90, Parents: []models.Parent{{Name: "Plant"}}}}}}

	annotator, err := annotate.New(100)
	require.NoError(t, err)
	composer := notify.NewComposer(notify.Config{Subject: "Camera $camera"}, mailer, nil)
	p := NewPipeline(detector, labels.NewPolicy(true, []string{"Plant"}), annotator, composer, "testhost")
	p.AddPublisher(publisher)

	res := p.Process(context.Background(), path, "garage")

	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Empty(t, mailer.sent)
	assert.Empty(t, publisher.runs)
}

func TestErrorNotificationThrottle(t *testing.T) {
	path := writeJPEG(t, t.TempDir())
	outage := errors.New("service unavailable")
	detector := &fakeDetector{
		errs:    []error{outage, outage, nil, outage},
		results: [][]models.Detection{nil, nil, person(), nil},
	}
	mailer := &fakeMailer{}
	p := newTestPipeline(t, detector, mailer)
	ctx := context.Background()

	assert.Equal(t, OutcomeFailed, p.Process(ctx, path, "garage").Outcome)
	assert.True(t, p.ErrorEmailSent())
	assert.Equal(t, OutcomeFailed, p.Process(ctx, path, "garage").Outcome)
	assert.Equal(t, 1, mailer.count(errorSubject), "second failure in a row must not send another error mail")

	assert.Equal(t, OutcomeNotified, p.Process(ctx, path, "garage").Outcome)
	assert.False(t, p.ErrorEmailSent())

	assert.Equal(t, OutcomeFailed, p.Process(ctx, path, "garage").Outcome)
	assert.Equal(t, 2, mailer.count(errorSubject))
	assert.Equal(t, 1, mailer.count("Camera garage"))
}

func TestErrorNotificationContent(t *testing.T) {
	mailer := &fakeMailer{}
	p := newTestPipeline(t, &fakeDetector{}, mailer)

	p.Process(context.Background(), "", "garage")

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, errorSubject, mailer.sent[0].Subject)
	assert.Contains(t, mailer.sent[0].HTML, "Server: testhost")
	assert.Nil(t, mailer.sent[0].Attachment)
}

func TestInvalidInput(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.jpg")
	require.NoError(t, os.WriteFile(empty, nil, 0644))

	cases := map[string]string{
		"empty path":   "",
		"missing file": filepath.Join(dir, "missing.jpg"),
		"empty file":   empty,
		"directory":    dir,
	}

	for name, path := range cases {
		t.Run(name, func(t *testing.T) {
			detector := &fakeDetector{}
			p := newTestPipeline(t, detector, &fakeMailer{})

			res := p.Process(context.Background(), path, "garage")

			assert.Equal(t, OutcomeFailed, res.Outcome)
			assert.ErrorIs(t, res.Err, ErrInvalidInput)
			assert.Zero(t, detector.calls)
		})
	}
}

func TestBMPIsUnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.bmp")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, bmp.Encode(f, image.NewRGBA(image.Rect(0, 0, 8, 8))))
	require.NoError(t, f.Close())

	detector := &fakeDetector{}
	p := newTestPipeline(t, detector, &fakeMailer{})

	res := p.Process(context.Background(), path, "garage")

	assert.ErrorIs(t, res.Err, ErrUnsupportedFormat)
	assert.NotErrorIs(t, res.Err, ErrDetectionFailure)
	assert.Zero(t, detector.calls)
}

func TestCorruptJPEGIsUnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.jpg")
	require.NoError(t, os.WriteFile(path, []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}, 0644))

	res := newTestPipeline(t, &fakeDetector{}, &fakeMailer{}).Process(context.Background(), path, "garage")
	assert.ErrorIs(t, res.Err, ErrUnsupportedFormat)
}

func TestDetectionFailure(t *testing.T) {
	path := writeJPEG(t, t.TempDir())
	cause := errors.New("throttling exception")
	p := newTestPipeline(t, &fakeDetector{errs: []error{cause}}, &fakeMailer{})

	res := p.Process(context.Background(), path, "garage")

	assert.ErrorIs(t, res.Err, ErrDetectionFailure)
	assert.ErrorIs(t, res.Err, cause)

	var stageErr *StageError
	require.ErrorAs(t, res.Err, &stageErr)
	assert.Equal(t, ErrDetectionFailure, stageErr.Kind)
}

func TestDeliveryFailureDoesNotFailRun(t *testing.T) {
	path := writeJPEG(t, t.TempDir())
	mailer := &fakeMailer{err: errors.New("mailbox unavailable")}
	p := newTestPipeline(t, &fakeDetector{results: [][]models.Detection{person()}}, mailer)

	res := p.Process(context.Background(), path, "garage")

	assert.Equal(t, OutcomeNotified, res.Outcome)
	assert.False(t, p.ErrorEmailSent())
	assert.Equal(t, 0, mailer.count(errorSubject))
}

func TestResponseWithoutLabelsTakesErrorPath(t *testing.T) {
	path := writeJPEG(t, t.TempDir())
	bodies := []string{`{}`, `{"Labels":null}`}
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1) - 1
		_, _ = io.WriteString(w, bodies[int(n)%len(bodies)])
	}))
	defer server.Close()

	creds := aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{AccessKeyID: "AKIDTEST", SecretAccessKey: "secret"}, nil
	})
	api := awsapi.NewWithCredentials(awsapi.Options{Region: "eu-west-1", Endpoint: server.URL}, creds)
	mailer := &fakeMailer{}
	p := newTestPipeline(t, rekognition.NewClient(api, 75), mailer)

	res := p.Process(context.Background(), path, "garage")
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrDetectionFailure)
	assert.ErrorIs(t, res.Err, rekognition.ErrMissingLabels)
	assert.True(t, p.ErrorEmailSent())
	assert.Equal(t, 1, mailer.count(errorSubject))

	// weiterer fehlerhafter Lauf: Drossel bleibt aktiv, keine zweite Fehlermail
	res = p.Process(context.Background(), path, "garage")
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.True(t, p.ErrorEmailSent())
	assert.Equal(t, 1, mailer.count(errorSubject))
	assert.Equal(t, int32(2), calls.Load())
}
