package processor

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrQueueClosed wird von Submit nach Shutdown zurückgegeben
var ErrQueueClosed = errors.New("dispatch queue closed")

// Runner verarbeitet ein einzelnes Bild
type Runner interface {
	Process(ctx context.Context, imagePath, camera string) Result
}

// Job ist ein fertig übertragenes Bild
type Job struct {
	ImagePath string
	Camera    string
	// Done wird nach der Verarbeitung aufgerufen, unabhängig vom Ergebnis
	Done func(Result)
}

// QueueStats enthält die Zähler der Warteschlange
type QueueStats struct {
	Capacity  int   `json:"capacity"`
	Pending   int   `json:"pending"`
	Active    bool  `json:"active"`
	Submitted int64 `json:"submitted"`
	Notified  int64 `json:"notified"`
	Skipped   int64 `json:"skipped"`
	Failed    int64 `json:"failed"`
}

// Dispatcher übergibt Bilder nacheinander an einen einzigen Worker.
// Die Pipeline läuft dadurch nie parallel.
type Dispatcher struct {
	runner Runner
	jobs   chan Job

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	closeMu sync.RWMutex
	closed  bool

	statsMu sync.Mutex
	stats   QueueStats
}

// NewDispatcher erstellt die Warteschlange und startet den Worker
func NewDispatcher(runner Runner, capacity int) *Dispatcher {
	if capacity < 1 {
		capacity = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		runner: runner,
		jobs:   make(chan Job, capacity),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		stats:  QueueStats{Capacity: capacity},
	}

	log.Infof("Initializing image dispatch queue with capacity %d", capacity)
	go d.worker()

	return d
}

func (d *Dispatcher) worker() {
	defer close(d.done)
	log.Debug("Dispatch worker started")

	for job := range d.jobs {
		d.statsMu.Lock()
		d.stats.Active = true
		d.statsMu.Unlock()

		start := time.Now()
		result := d.runner.Process(d.ctx, job.ImagePath, job.Camera)

		d.statsMu.Lock()
		d.stats.Active = false
		switch result.Outcome {
		case OutcomeNotified:
			d.stats.Notified++
		case OutcomeSkipped:
			d.stats.Skipped++
		default:
			d.stats.Failed++
		}
		d.statsMu.Unlock()

		log.Debugf("Dispatch worker completed %s in %v (%s)", job.ImagePath, time.Since(start), result.Outcome)

		if job.Done != nil {
			job.Done(result)
		}
	}

	log.Debug("Dispatch worker shutting down (job channel closed)")
}

// Submit reiht ein Bild ein. Ist die Warteschlange voll, blockiert Submit,
// bis Platz frei wird oder ctx abläuft.
func (d *Dispatcher) Submit(ctx context.Context, job Job) error {
	d.closeMu.RLock()
	defer d.closeMu.RUnlock()

	if d.closed {
		return ErrQueueClosed
	}

	select {
	case d.jobs <- job:
		d.statsMu.Lock()
		d.stats.Submitted++
		d.statsMu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats gibt eine Momentaufnahme der Zähler zurück
func (d *Dispatcher) Stats() QueueStats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()

	stats := d.stats
	stats.Pending = len(d.jobs)
	return stats
}

// Shutdown nimmt keine neuen Bilder mehr an und wartet, bis die Warteschlange
// abgearbeitet ist. Läuft ctx vorher ab, wird der laufende Job abgebrochen.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.closeMu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.closeMu.Unlock()

	select {
	case <-d.done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-d.done
		return ctx.Err()
	}
}
