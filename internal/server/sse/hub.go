package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"ipcam-analysis/internal/core/models"
	"ipcam-analysis/internal/util/timezone"

	log "github.com/sirupsen/logrus"
)

// Client ist ein einzelner verbundener SSE-Client
type Client chan []byte

// Hub verwaltet die aktiven Clients und verteilt Erkennungsereignisse an sie
type Hub struct {
	clients    map[Client]bool
	broadcast  chan []byte
	register   chan Client
	unregister chan Client

	mu sync.Mutex
}

// DetectionData ist die Nutzlast eines Ereignisses im Stream
type DetectionData struct {
	Camera    string      `json:"camera"`
	Timestamp string      `json:"timestamp"`
	Filename  string      `json:"filename"`
	Labels    []LabelData `json:"labels"`
	Width     int         `json:"width,omitempty"`
	Height    int         `json:"height,omitempty"`
}

// LabelData ist ein einzelnes Label mit Konfidenz in Prozent
type LabelData struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// NewHub erstellt einen neuen Hub
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 100),
		register:   make(chan Client),
		unregister: make(chan Client),
		clients:    make(map[Client]bool),
	}
}

// Run verteilt Nachrichten, bis ctx beendet wird. Danach werden alle Clients geschlossen.
func (h *Hub) Run(ctx context.Context) {
	log.Info("SSE Hub started and running")

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			log.Infof("SSE client registered. Total clients: %d", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client)
				log.Infof("SSE client unregistered. Total clients: %d", len(h.clients))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			log.Debugf("Broadcasting message to %d SSE clients", len(h.clients))
			for client := range h.clients {
				select {
				case client <- message:
				default:
					log.Warn("SSE client channel full, removing client")
					delete(h.clients, client)
					close(client)
				}
			}
			h.mu.Unlock()

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client)
			}
			h.mu.Unlock()
			log.Info("SSE Hub stopped")
			return
		}
	}
}

// Register meldet einen Client an. Gibt false zurück, wenn ctx vorher endet.
func (h *Hub) Register(ctx context.Context, client Client) bool {
	select {
	case h.register <- client:
		return true
	case <-ctx.Done():
		return false
	}
}

// Unregister meldet einen Client ab
func (h *Hub) Unregister(ctx context.Context, client Client) {
	select {
	case h.unregister <- client:
	case <-ctx.Done():
	}
}

// ClientCount gibt die Anzahl verbundener Clients zurück
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast stellt eine Nachricht zur Verteilung ein, ohne zu blockieren
func (h *Hub) Broadcast(message []byte) bool {
	select {
	case h.broadcast <- message:
		return true
	default:
		log.Warn("SSE broadcast channel full, message dropped")
		return false
	}
}

// PublishLabels sendet die Labels eines Laufs an alle Stream-Clients
func (h *Hub) PublishLabels(_ context.Context, run *models.PipelineRun) error {
	data, err := json.Marshal(NewDetectionData(run))
	if err != nil {
		return fmt.Errorf("failed to marshal detection event for SSE: %w", err)
	}
	if !h.Broadcast(data) {
		return fmt.Errorf("SSE broadcast channel full")
	}
	return nil
}

// NewDetectionData bereitet einen Verarbeitungslauf für den Stream auf
func NewDetectionData(run *models.PipelineRun) DetectionData {
	data := DetectionData{
		Camera:    run.Camera,
		Timestamp: timezone.ISO8601(run.Timestamp),
		Filename:  filepath.Base(run.ImagePath),
		Labels:    make([]LabelData, 0, run.Labels.Len()),
		Width:     run.AnnotatedWidth,
		Height:    run.AnnotatedHeight,
	}
	for _, label := range run.Labels.Labels() {
		data.Labels = append(data.Labels, LabelData{Name: label.DisplayName, Confidence: label.Confidence})
	}
	return data
}
