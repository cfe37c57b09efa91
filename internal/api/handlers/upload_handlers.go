package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"ipcam-analysis/config"
	"ipcam-analysis/internal/core/processor"
	"ipcam-analysis/internal/receiver"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// HTTPUploadDir ist das Unterverzeichnis im Kamera-Home für HTTP-Uploads.
// Der Verzeichnis-Empfänger überwacht nur die oberste Ebene und sieht diese Dateien nicht.
const HTTPUploadDir = "http"

const partialSuffix = ".part"

// UploadHandler nimmt Bilder per HTTP entgegen
type UploadHandler struct {
	intake  *receiver.Intake
	rootDir string
}

// NewUploadHandler erstellt einen neuen Upload-Handler
func NewUploadHandler(cfg config.UploadConfig, intake *receiver.Intake) *UploadHandler {
	return &UploadHandler{
		intake:  intake,
		rootDir: cfg.RootDir,
	}
}

// Upload speichert das Bild im Home-Verzeichnis der Kamera und reiht es ein.
// Der Benutzername aus der Basic-Auth ist der Kameraname.
func (h *UploadHandler) Upload(c *gin.Context) {
	camera := c.GetString(gin.AuthUserKey)
	if camera == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		log.WithField("camera", camera).Warnf("Upload without image: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field 'file' is required"})
		return
	}

	name := filepath.Base(fileHeader.Filename)
	if name == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file name"})
		return
	}

	dir := filepath.Join(h.rootDir, camera, HTTPUploadDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Errorf("Failed to create upload directory %s: %v", dir, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store upload"})
		return
	}

	target := filepath.Join(dir, name)
	if err := storeUpload(fileHeader.Filename, target, func(tmp string) error {
		return c.SaveUploadedFile(fileHeader, tmp)
	}); err != nil {
		log.WithField("camera", camera).Errorf("Failed to store upload: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store upload"})
		return
	}

	log.WithField("camera", camera).Infof("Upload completed: %s (%d bytes)", target, fileHeader.Size)

	accepted, err := h.intake.Accept(c.Request.Context(), target, camera)
	switch {
	case errors.Is(err, processor.ErrQueueClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
	case err != nil:
		log.WithError(err).Error("Failed to hand over upload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue upload"})
	case !accepted:
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "outside time window"})
	default:
		c.JSON(http.StatusAccepted, gin.H{"status": "queued", "camera": camera, "file": name})
	}
}

// storeUpload schreibt zuerst nach "<target>.part" und benennt erst nach
// vollständigem Schreiben um. Teilweise geschriebene Dateien werden gelöscht.
func storeUpload(original, target string, save func(tmp string) error) error {
	tmp := target + partialSuffix
	if err := save(tmp); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to save %s: %w", original, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize %s: %w", original, err)
	}
	return nil
}
