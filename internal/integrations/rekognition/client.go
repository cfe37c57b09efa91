package rekognition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ipcam-analysis/internal/core/models"
	"ipcam-analysis/internal/integrations/awsapi"

	log "github.com/sirupsen/logrus"
)

const (
	serviceName  = "rekognition"
	targetPrefix = "RekognitionService."
	contentType  = "application/x-amz-json-1.1"
)

// Client für Amazon Rekognition DetectLabels
type Client struct {
	api           *awsapi.Client
	minConfidence float64
}

type detectLabelsImage struct {
	Bytes []byte `json:"Bytes"` // encoding/json kodiert als Base64
}

type detectLabelsRequest struct {
	Image         detectLabelsImage `json:"Image"`
	MinConfidence float64           `json:"MinConfidence"`
}

// ErrMissingLabels wird gemeldet, wenn die Antwort kein Labels-Feld enthält
var ErrMissingLabels = errors.New("detect labels response without Labels")

// DetectLabelsResponse ist die Antwort von DetectLabels.
// Labels ist nil, wenn das Feld fehlt oder null ist; eine leere Liste bleibt leer.
type DetectLabelsResponse struct {
	Labels            *[]models.Detection `json:"Labels"`
	LabelModelVersion string              `json:"LabelModelVersion"`
}

// NewClient erstellt einen neuen Rekognition-Client.
// minConfidence wird bei jeder Anfrage als Schwellenwert (0-100) übergeben.
func NewClient(api *awsapi.Client, minConfidence float64) *Client {
	return &Client{api: api, minConfidence: minConfidence}
}

// Detect sendet die Bildbytes an DetectLabels und gibt die erkannten Labels zurück
func (c *Client) Detect(ctx context.Context, imageData []byte) ([]models.Detection, error) {
	if len(imageData) == 0 {
		return nil, fmt.Errorf("empty image")
	}

	req := detectLabelsRequest{
		Image:         detectLabelsImage{Bytes: imageData},
		MinConfidence: c.minConfidence,
	}
	headers := map[string]string{
		"Content-Type": contentType,
		"X-Amz-Target": targetPrefix + "DetectLabels",
	}

	start := time.Now()
	var resp DetectLabelsResponse
	if err := c.api.Call(ctx, serviceName, serviceName, "/", headers, req, &resp); err != nil {
		return nil, fmt.Errorf("detect labels failed: %w", err)
	}
	log.Infof("PROCESSING TIME %.1fs", time.Since(start).Seconds())
	if resp.Labels == nil {
		return nil, ErrMissingLabels
	}
	labels := *resp.Labels
	log.Debugf("Rekognition returned %d labels (model %s)", len(labels), resp.LabelModelVersion)

	return labels, nil
}
