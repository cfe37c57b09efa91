package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"ipcam-analysis/config"
	"ipcam-analysis/internal/core/models"
	"ipcam-analysis/internal/util/timezone"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// Client veröffentlicht Erkennungsereignisse an einen MQTT-Broker
type Client struct {
	config    config.MQTTConfig
	client    mqtt.Client
	onConnect []func()
}

// Verfügbarkeitswerte auf dem Status-Topic
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// LabelEvent ist die Nutzlast eines Erkennungsereignisses
type LabelEvent struct {
	Camera    string       `json:"camera"`
	Timestamp string       `json:"timestamp"`
	Filename  string       `json:"filename"`
	Labels    []LabelEntry `json:"labels"`
}

// LabelEntry ist ein einzelnes Label im Ereignis
type LabelEntry struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// NewClient erstellt einen neuen MQTT-Client
func NewClient(cfg config.MQTTConfig) *Client {
	return &Client{config: cfg}
}

// Start verbindet den Client mit dem Broker
func (c *Client) Start() error {
	if !c.config.Enabled {
		log.Info("MQTT client is disabled in configuration")
		return nil
	}

	opts := mqtt.NewClientOptions()
	brokerURL := fmt.Sprintf("tcp://%s:%d", c.config.Broker, c.config.Port)
	opts.AddBroker(brokerURL)
	opts.SetClientID(c.config.ClientID)

	if c.config.Username != "" {
		opts.SetUsername(c.config.Username)
		opts.SetPassword(c.config.Password)
	}

	// Broker meldet "offline", wenn die Verbindung abreißt
	opts.SetWill(StatusTopic(c.config.TopicPrefix), StatusOffline, 1, true)
	opts.SetOnConnectHandler(c.onConnectHandler)
	opts.SetConnectionLostHandler(c.connectionLostHandler)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	c.client = mqtt.NewClient(opts)

	log.Infof("Connecting to MQTT broker at %s", brokerURL)
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker %s: %w", brokerURL, token.Error())
	}

	log.Info("MQTT client connected successfully")
	return nil
}

// Stop trennt die Verbindung zum Broker
func (c *Client) Stop() {
	if c.client != nil && c.client.IsConnected() {
		log.Info("Disconnecting MQTT client...")
		token := c.client.Publish(StatusTopic(c.config.TopicPrefix), 1, true, StatusOffline)
		token.WaitTimeout(time.Second)
		c.client.Disconnect(250)
		log.Info("MQTT client disconnected")
	}
}

// IsConnected prüft, ob der Client verbunden ist
func (c *Client) IsConnected() bool {
	return c.client != nil && c.client.IsConnected()
}

// OnConnect registriert eine Funktion, die nach jedem (Wieder-)Verbinden läuft.
// Muss vor Start aufgerufen werden.
func (c *Client) OnConnect(fn func()) {
	c.onConnect = append(c.onConnect, fn)
}

func (c *Client) onConnectHandler(client mqtt.Client) {
	log.Infof("Connected to MQTT broker at %s:%d", c.config.Broker, c.config.Port)

	client.Publish(StatusTopic(c.config.TopicPrefix), 1, true, StatusOnline)

	// Handler läuft im paho-Netzwerk-Goroutine, dort nicht auf Tokens warten
	for _, fn := range c.onConnect {
		go fn()
	}
}

func (c *Client) connectionLostHandler(_ mqtt.Client, err error) {
	log.Errorf("MQTT connection lost: %v", err)
}

// PublishLabels veröffentlicht die gefilterten Labels eines Laufs und
// aktualisiert den zuletzt gesehenen Zeitpunkt der Kamera (retained)
func (c *Client) PublishLabels(ctx context.Context, run *models.PipelineRun) error {
	if !c.IsConnected() {
		return fmt.Errorf("MQTT client is not connected")
	}

	event := BuildLabelEvent(run)
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal label event: %w", err)
	}

	if err := c.publish(ctx, LabelsTopic(c.config.TopicPrefix, run.Camera), payload, false); err != nil {
		return err
	}
	return c.publish(ctx, LastSeenTopic(c.config.TopicPrefix, run.Camera), []byte(event.Timestamp), true)
}

// PublishRetained veröffentlicht eine Nachricht mit Retain-Flag
func (c *Client) PublishRetained(ctx context.Context, topic string, payload []byte) error {
	if !c.IsConnected() {
		return fmt.Errorf("MQTT client is not connected")
	}
	return c.publish(ctx, topic, payload, true)
}

func (c *Client) publish(ctx context.Context, topic string, payload []byte, retain bool) error {
	token := c.client.Publish(topic, 1, retain, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publish to %s aborted: %w", topic, ctx.Err())
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to publish message to topic %s: %w", topic, token.Error())
	}
	log.Debugf("Published message to topic: %s", topic)
	return nil
}

// BuildLabelEvent erstellt die Ereignis-Nutzlast aus einem Verarbeitungslauf
func BuildLabelEvent(run *models.PipelineRun) LabelEvent {
	event := LabelEvent{
		Camera:    run.Camera,
		Timestamp: timezone.ISO8601(run.Timestamp),
		Filename:  filepath.Base(run.ImagePath),
		Labels:    make([]LabelEntry, 0, run.Labels.Len()),
	}
	for _, label := range run.Labels.Labels() {
		event.Labels = append(event.Labels, LabelEntry{Name: label.DisplayName, Confidence: label.Confidence})
	}
	return event
}

// TopicPrefix gibt das konfigurierte Topic-Präfix zurück
func (c *Client) TopicPrefix() string {
	return c.config.TopicPrefix
}

// StatusTopic ist das Topic für die Verfügbarkeit des Dienstes
func StatusTopic(prefix string) string {
	return joinTopic(prefix, "status")
}

// LabelsTopic gibt das Topic für Erkennungsereignisse einer Kamera zurück
func LabelsTopic(prefix, camera string) string {
	return joinTopic(prefix, camera, "labels")
}

// LastSeenTopic gibt das Topic für den letzten Erkennungszeitpunkt zurück
func LastSeenTopic(prefix, camera string) string {
	return joinTopic(prefix, camera, "last_seen")
}

func joinTopic(parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return strings.Join(cleaned, "/")
}
