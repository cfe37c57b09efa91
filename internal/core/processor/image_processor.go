package processor

import (
	"bytes"
	"context"
	"os"
	"sync"

	"ipcam-analysis/internal/core/annotate"
	"ipcam-analysis/internal/core/labels"
	"ipcam-analysis/internal/core/models"
	"ipcam-analysis/internal/core/notify"
	"ipcam-analysis/internal/util/timezone"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	log "github.com/sirupsen/logrus"
)

// Detector ist der entfernte Erkennungsdienst
type Detector interface {
	Detect(ctx context.Context, imageData []byte) ([]models.Detection, error)
}

// EventPublisher veröffentlicht erkannte Labels (z.B. per MQTT)
type EventPublisher interface {
	PublishLabels(ctx context.Context, run *models.PipelineRun) error
}

// Outcome ist der Endzustand eines Laufs
type Outcome int

const (
	OutcomeNotified Outcome = iota
	OutcomeSkipped
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNotified:
		return "notified"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

// Result beschreibt den Ausgang eines Laufs. Err ist nur bei OutcomeFailed gesetzt
// und dient ausschließlich der Auswertung, der Fehler wurde bereits behandelt.
type Result struct {
	Outcome Outcome
	Err     error
}

var supportedFormats = map[string]string{
	"image/jpeg": "jpeg",
	"image/png":  "png",
}

// Pipeline verarbeitet ein hochgeladenes Bild von der Erkennung bis zur Benachrichtigung
type Pipeline struct {
	detector   Detector
	policy     *labels.Policy
	annotator  *annotate.Annotator
	composer   *notify.Composer
	publishers []EventPublisher
	hostname   string

	// errorEmailSent unterdrückt weitere Fehlermails bis zum nächsten erfolgreichen Lauf
	errorMu        sync.Mutex
	errorEmailSent bool
}

// NewPipeline erstellt eine neue Pipeline
func NewPipeline(detector Detector, policy *labels.Policy, annotator *annotate.Annotator,
	composer *notify.Composer, hostname string) *Pipeline {
	return &Pipeline{
		detector:  detector,
		policy:    policy,
		annotator: annotator,
		composer:  composer,
		hostname:  hostname,
	}
}

// AddPublisher registriert einen Empfänger für Erkennungsereignisse.
// Muss vor dem ersten Process-Aufruf erfolgen.
func (p *Pipeline) AddPublisher(publisher EventPublisher) {
	p.publishers = append(p.publishers, publisher)
}

// ErrorEmailSent gibt an, ob für die aktuelle Fehlerserie bereits eine Fehlermail verschickt wurde
func (p *Pipeline) ErrorEmailSent() bool {
	p.errorMu.Lock()
	defer p.errorMu.Unlock()
	return p.errorEmailSent
}

// Process verarbeitet ein Bild. Fehler werden hier protokolliert und in eine
// gedrosselte Fehlermail umgewandelt, sie werden nie an den Aufrufer weitergereicht.
func (p *Pipeline) Process(ctx context.Context, imagePath, camera string) Result {
	logger := log.WithFields(log.Fields{"camera": camera, "path": imagePath})
	logger.Infof("Processing image: %s from %s", imagePath, camera)

	run := &models.PipelineRun{
		ImagePath: imagePath,
		Camera:    camera,
		Timestamp: timezone.Now(),
	}

	outcome, err := p.run(ctx, run, logger)
	if err != nil {
		p.handleFailure(ctx, err, logger)
		return Result{Outcome: OutcomeFailed, Err: err}
	}

	p.errorMu.Lock()
	p.errorEmailSent = false
	p.errorMu.Unlock()

	logger.WithField("state", outcome.String()).Debug("Image processing finished")
	return Result{Outcome: outcome}
}

func (p *Pipeline) run(ctx context.Context, run *models.PipelineRun, logger *log.Entry) (Outcome, error) {
	logger.WithField("state", "validating").Debug("Pipeline state")
	if err := p.validate(run); err != nil {
		return OutcomeFailed, err
	}

	logger.WithField("state", "detecting").Debug("Pipeline state")
	detections, err := p.detector.Detect(ctx, run.ImageData)
	if err != nil {
		return OutcomeFailed, &StageError{Kind: ErrDetectionFailure, Err: err}
	}
	run.Detections = detections

	logger.WithField("state", "filtering").Debug("Pipeline state")
	log.Infof("Filtering in %s mode", p.policy.Mode())
	run.Labels = p.policy.Filter(detections)

	if run.Labels.Len() == 0 {
		logger.Info("Nothing detected. No any interesting labels.")
		return OutcomeSkipped, nil
	}

	log.Info("DETECTED LABELS:")
	for _, label := range run.Labels.Labels() {
		log.Infof("    %s %.1f%%", label.DisplayName, label.Confidence)
	}

	logger.WithField("state", "annotating").Debug("Pipeline state")
	if err := p.annotate(run); err != nil {
		return OutcomeFailed, err
	}

	logger.WithField("state", "notifying").Debug("Pipeline state")
	if !p.composer.Deliver(ctx, p.composer.Compose(run)) {
		logger.WithError(&StageError{Kind: ErrDeliveryFailure}).Warn("Notification was not delivered")
	}

	for _, publisher := range p.publishers {
		if err := publisher.PublishLabels(ctx, run); err != nil {
			logger.WithError(err).Warn("Failed to publish detection event")
		}
	}

	return OutcomeNotified, nil
}

// validate liest das Bild ein und prüft Existenz, Größe und Format
func (p *Pipeline) validate(run *models.PipelineRun) error {
	if run.ImagePath == "" {
		return stageError(ErrInvalidInput, "image file name cannot be empty")
	}

	info, err := os.Stat(run.ImagePath)
	if err != nil {
		return stageError(ErrInvalidInput, "image file %s does not exist: %w", run.ImagePath, err)
	}
	if info.IsDir() {
		return stageError(ErrInvalidInput, "image file %s is a directory", run.ImagePath)
	}

	data, err := os.ReadFile(run.ImagePath)
	if err != nil {
		return stageError(ErrInvalidInput, "failed to read image file %s: %w", run.ImagePath, err)
	}
	log.Debugf("Image size: %d bytes", len(data))
	if len(data) == 0 {
		return stageError(ErrInvalidInput, "image file is empty")
	}

	mt := mimetype.Detect(data)
	format, ok := supportedFormats[mt.String()]
	if !ok {
		return stageError(ErrUnsupportedFormat, "image format %s is not supported", mt.String())
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return stageError(ErrUnsupportedFormat, "failed to decode %s image: %w", format, err)
	}

	run.ImageData = data
	run.Format = format
	run.Image = img
	return nil
}

// annotate zeichnet die Boxen und kodiert das Ergebnis als JPEG
func (p *Pipeline) annotate(run *models.PipelineRun) error {
	annotated := p.annotator.Annotate(run.Image, annotate.BoxesFor(run.Labels))

	data, err := annotate.EncodeJPEG(annotated)
	if err != nil {
		return &StageError{Kind: ErrAnnotationFailure, Err: err}
	}

	bounds := annotated.Bounds()
	run.Annotated = data
	run.AnnotatedWidth = bounds.Dx()
	run.AnnotatedHeight = bounds.Dy()
	return nil
}

// handleFailure sendet höchstens eine Fehlermail pro Fehlerserie.
// Prüfen und Setzen des Flags geschehen unter demselben Lock.
func (p *Pipeline) handleFailure(ctx context.Context, err error, logger *log.Entry) {
	logger.WithError(err).Error("Image processing failed")

	p.errorMu.Lock()
	defer p.errorMu.Unlock()

	if p.errorEmailSent {
		logger.Info("Error email not sent.")
		return
	}

	p.composer.Deliver(ctx, p.composer.ComposeError(p.hostname))
	logger.Info("Error email sent")
	p.errorEmailSent = true
}
