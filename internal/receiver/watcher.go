package receiver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"ipcam-analysis/config"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watcher überwacht die Home-Verzeichnisse der Kameras. Eine Datei gilt als
// vollständig übertragen, wenn für settleDelay keine Schreibereignisse mehr kamen.
type Watcher struct {
	intake   *Intake
	root     string
	settle   time.Duration
	partial  []string
	watcher  *fsnotify.Watcher
	cameras  []string
	timersMu sync.Mutex
	timers   map[string]*time.Timer
}

// NewWatcher erstellt einen Watcher für alle konfigurierten Kameras und alle
// bereits vorhandenen Unterverzeichnisse von root_dir.
func NewWatcher(cfg config.UploadConfig, intake *Intake) (*Watcher, error) {
	if err := os.MkdirAll(cfg.RootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload root: %w", err)
	}

	cameras := make(map[string]bool)
	for _, u := range cfg.Users {
		cameras[u.Name] = true
	}
	entries, err := os.ReadDir(cfg.RootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload root: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() && !isHidden(e.Name()) {
			cameras[e.Name()] = true
		}
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watcher{
		intake:  intake,
		root:    cfg.RootDir,
		settle:  cfg.SettleDelay,
		partial: cfg.PartialSuffixes,
		watcher: fw,
		timers:  make(map[string]*time.Timer),
	}

	for camera := range cameras {
		dir := filepath.Join(cfg.RootDir, camera)
		if err := os.MkdirAll(dir, 0755); err != nil {
			fw.Close()
			return nil, fmt.Errorf("failed to create camera directory %s: %w", dir, err)
		}
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		w.cameras = append(w.cameras, camera)
		log.Infof("Watching uploads of camera %s in %s", camera, dir)
	}

	return w, nil
}

// Cameras gibt die überwachten Kameras zurück
func (w *Watcher) Cameras() []string {
	return w.cameras
}

// Run verarbeitet Dateisystemereignisse, bis ctx beendet wird
func (w *Watcher) Run(ctx context.Context) error {
	defer w.stopTimers()
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Warnf("File watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	name := event.Name
	switch {
	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		w.cancel(name)
	case event.Op.Has(fsnotify.Create), event.Op.Has(fsnotify.Write):
		if isHidden(name) {
			return
		}
		if IsPartial(name, w.partial) {
			log.Debugf("Partial transfer in progress: %s", name)
			return
		}
		w.schedule(ctx, name)
	}
}

// schedule startet den Settle-Timer für path neu. Ein bereits abgelaufener Timer,
// dessen Callback noch auf das Lock wartet, wird ersetzt und verfällt in claim.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.timersMu.Lock()
	defer w.timersMu.Unlock()

	if old, ok := w.timers[path]; ok {
		old.Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(w.settle, func() {
		if w.claim(path, t) {
			w.completed(ctx, path)
		}
	})
	w.timers[path] = t
}

// claim entfernt den Timer von path, wenn t noch der aktuelle ist
func (w *Watcher) claim(path string, t *time.Timer) bool {
	w.timersMu.Lock()
	defer w.timersMu.Unlock()

	if w.timers[path] != t {
		return false
	}
	delete(w.timers, path)
	return true
}

func (w *Watcher) cancel(path string) {
	w.timersMu.Lock()
	defer w.timersMu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Stop()
		delete(w.timers, path)
	}
}

func (w *Watcher) stopTimers() {
	w.timersMu.Lock()
	defer w.timersMu.Unlock()

	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}

// completed wird aufgerufen, wenn eine Datei zur Ruhe gekommen ist
func (w *Watcher) completed(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	camera := filepath.Base(filepath.Dir(path))
	log.WithField("camera", camera).Infof("Upload completed: %s (%d bytes)", path, info.Size())

	if _, err := w.intake.Accept(ctx, path, camera); err != nil {
		log.WithError(err).Error("Failed to hand over upload")
	}
}
