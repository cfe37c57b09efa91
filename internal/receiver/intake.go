package receiver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ipcam-analysis/internal/core/processor"
	"ipcam-analysis/internal/core/timewindow"
	"ipcam-analysis/internal/util/timezone"

	log "github.com/sirupsen/logrus"
)

// Submitter nimmt fertig übertragene Bilder entgegen
type Submitter interface {
	Submit(ctx context.Context, job processor.Job) error
}

// Intake ist der gemeinsame Eingang beider Empfänger: Zeitfenster prüfen,
// Bild einreihen und es nach der Verarbeitung optional löschen.
type Intake struct {
	submitter   Submitter
	window      *timewindow.Window
	removeFiles bool
	now         func() time.Time
}

// NewIntake erstellt einen neuen Eingang. window darf nil sein (immer aktiv).
func NewIntake(submitter Submitter, window *timewindow.Window, removeFiles bool) *Intake {
	return &Intake{
		submitter:   submitter,
		window:      window,
		removeFiles: removeFiles,
		now:         timezone.Now,
	}
}

// Accept übergibt ein fertig übertragenes Bild. Gibt false zurück, wenn das Bild
// wegen des Zeitfensters ignoriert wurde.
func (in *Intake) Accept(ctx context.Context, path, camera string) (bool, error) {
	if !in.window.Active(in.now()) {
		log.WithField("camera", camera).Infof("Image ignored. Not in time window %s.", in.window)
		in.remove(path)
		return false, nil
	}

	job := processor.Job{
		ImagePath: path,
		Camera:    camera,
		Done: func(processor.Result) {
			in.remove(path)
		},
	}
	if err := in.submitter.Submit(ctx, job); err != nil {
		return false, fmt.Errorf("failed to submit %s: %w", path, err)
	}
	return true, nil
}

func (in *Intake) remove(path string) {
	if !in.removeFiles {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warnf("Failed to remove file %s: %v", path, err)
		return
	}
	log.Infof("File removed: %s", path)
}

// IsPartial erkennt unvollständige Übertragungen anhand der Dateiendung
func IsPartial(name string, suffixes []string) bool {
	base := strings.ToLower(filepath.Base(name))
	for _, suffix := range suffixes {
		if suffix != "" && strings.HasSuffix(base, strings.ToLower(suffix)) {
			return true
		}
	}
	return false
}

// isHidden erkennt temporäre Dateien von FTP-Servern wie ".pureftpd-upload.*"
func isHidden(name string) bool {
	return strings.HasPrefix(filepath.Base(name), ".")
}
