package cleanup

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"ipcam-analysis/config"
	"ipcam-analysis/internal/receiver"

	log "github.com/sirupsen/logrus"
)

// CleanupService entfernt liegengebliebene Teilübertragungen aus den Upload-Verzeichnissen
type CleanupService struct {
	rootDir       string
	suffixes      []string
	maxAge        time.Duration
	checkInterval time.Duration
	now           func() time.Time
}

// NewCleanupService erstellt einen neuen Cleanup-Service
func NewCleanupService(upload config.UploadConfig, cfg config.CleanupConfig) *CleanupService {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &CleanupService{
		rootDir:       upload.RootDir,
		suffixes:      upload.PartialSuffixes,
		maxAge:        upload.PartialMaxAge,
		checkInterval: interval,
		now:           time.Now,
	}
}

// Start startet den Bereinigungsdienst und blockiert bis ctx beendet wird
func (s *CleanupService) Start(ctx context.Context) {
	log.Info("Cleanup service started")

	if _, err := s.RunCleanup(ctx); err != nil {
		log.Errorf("Initial cleanup failed: %v", err)
	}

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			log.Debug("Running scheduled cleanup")
			if _, err := s.RunCleanup(ctx); err != nil {
				log.Errorf("Scheduled cleanup failed: %v", err)
			}
		case <-ctx.Done():
			log.Info("Cleanup service stopped")
			return
		}
	}
}

// RunCleanup löscht Teilübertragungen, die älter als maxAge sind, und gibt deren Anzahl zurück
func (s *CleanupService) RunCleanup(ctx context.Context) (int, error) {
	if s.maxAge <= 0 || len(s.suffixes) == 0 {
		log.Debug("Partial cleanup disabled")
		return 0, nil
	}

	cutoff := s.now().Add(-s.maxAge)
	removed := 0

	err := filepath.WalkDir(s.rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !receiver.IsPartial(path, s.suffixes) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().After(cutoff) {
			return nil
		}

		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warnf("Failed to remove partial upload %s: %v", path, err)
			return nil
		}
		log.Infof("Removed partial upload %s (last modified %s)", path, info.ModTime().Format(time.RFC3339))
		removed++
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("failed to scan %s: %w", s.rootDir, err)
	}

	if removed > 0 {
		log.Infof("Cleanup removed %d partial uploads", removed)
	}
	return removed, nil
}
