package homeassistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ipcam-analysis/internal/integrations/mqtt"

	log "github.com/sirupsen/logrus"
)

const (
	// ComponentSensor ist der Komponententyp für Sensoren
	ComponentSensor = "sensor"

	// NodeID gruppiert alle Sensoren dieses Dienstes
	NodeID = "ipcam_analysis"
)

// SensorConfig ist die MQTT-Discovery-Konfiguration eines Sensors
type SensorConfig struct {
	Name                string  `json:"name"`
	UniqueID            string  `json:"unique_id"`
	StateTopic          string  `json:"state_topic"`
	Icon                string  `json:"icon,omitempty"`
	JSONAttributesTopic string  `json:"json_attributes_topic,omitempty"`
	ValueTemplate       string  `json:"value_template,omitempty"`
	AvailabilityTopic   string  `json:"availability_topic,omitempty"`
	PayloadAvailable    string  `json:"payload_available,omitempty"`
	PayloadNotAvailable string  `json:"payload_not_available,omitempty"`
	DeviceClass         string  `json:"device_class,omitempty"`
	Device              *Device `json:"device,omitempty"`
}

// Device beschreibt den Dienst als Gerät in Home Assistant
type Device struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
}

// Publisher veröffentlicht retained Nachrichten
type Publisher interface {
	PublishRetained(ctx context.Context, topic string, payload []byte) error
}

// DiscoveryManager meldet für jede Kamera Sensoren bei Home Assistant an
type DiscoveryManager struct {
	publisher       Publisher
	discoveryPrefix string
	topicPrefix     string
}

// NewDiscoveryManager erstellt einen neuen Manager für Home Assistant Discovery
func NewDiscoveryManager(publisher Publisher, discoveryPrefix, topicPrefix string) *DiscoveryManager {
	if discoveryPrefix == "" {
		discoveryPrefix = "homeassistant"
	}
	return &DiscoveryManager{
		publisher:       publisher,
		discoveryPrefix: discoveryPrefix,
		topicPrefix:     topicPrefix,
	}
}

var device = &Device{
	Identifiers:  []string{NodeID},
	Name:         "IP Camera Analysis",
	Manufacturer: "ipcam-analysis",
	Model:        "Rekognition label notifier",
}

// RegisterCameras veröffentlicht je Kamera einen Labels- und einen Zeitstempel-Sensor.
// Fehler einzelner Sensoren werden gesammelt, die übrigen trotzdem angemeldet.
func (dm *DiscoveryManager) RegisterCameras(ctx context.Context, cameras []string) error {
	var failed []string
	for _, camera := range cameras {
		for _, sensor := range dm.SensorsFor(camera) {
			if err := dm.publish(ctx, sensor); err != nil {
				log.Errorf("Failed to register Home Assistant sensor %s: %v", sensor.UniqueID, err)
				failed = append(failed, sensor.UniqueID)
			}
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("failed to register sensors: %s", strings.Join(failed, ", "))
	}
	log.Infof("Registered Home Assistant sensors for %d cameras", len(cameras))
	return nil
}

// SensorsFor erstellt die Sensor-Konfigurationen einer Kamera
func (dm *DiscoveryManager) SensorsFor(camera string) []SensorConfig {
	id := normalize(camera)
	status := mqtt.StatusTopic(dm.topicPrefix)
	labelsTopic := mqtt.LabelsTopic(dm.topicPrefix, camera)

	return []SensorConfig{
		{
			Name:                fmt.Sprintf("%s labels", camera),
			UniqueID:            fmt.Sprintf("%s_%s_labels", NodeID, id),
			StateTopic:          labelsTopic,
			JSONAttributesTopic: labelsTopic,
			ValueTemplate:       "{{ value_json.labels | map(attribute='name') | join(', ') }}",
			Icon:                "mdi:cctv",
			AvailabilityTopic:   status,
			PayloadAvailable:    mqtt.StatusOnline,
			PayloadNotAvailable: mqtt.StatusOffline,
			Device:              device,
		},
		{
			Name:                fmt.Sprintf("%s last detection", camera),
			UniqueID:            fmt.Sprintf("%s_%s_last_seen", NodeID, id),
			StateTopic:          mqtt.LastSeenTopic(dm.topicPrefix, camera),
			Icon:                "mdi:clock-outline",
			AvailabilityTopic:   status,
			PayloadAvailable:    mqtt.StatusOnline,
			PayloadNotAvailable: mqtt.StatusOffline,
			Device:              device,
		},
	}
}

// ConfigTopic gibt das Discovery-Topic eines Sensors zurück
func (dm *DiscoveryManager) ConfigTopic(uniqueID string) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", dm.discoveryPrefix, ComponentSensor, NodeID, uniqueID)
}

func (dm *DiscoveryManager) publish(ctx context.Context, sensor SensorConfig) error {
	payload, err := json.Marshal(sensor)
	if err != nil {
		return fmt.Errorf("failed to marshal discovery configuration: %w", err)
	}
	if err := dm.publisher.PublishRetained(ctx, dm.ConfigTopic(sensor.UniqueID), payload); err != nil {
		return fmt.Errorf("failed to publish discovery configuration: %w", err)
	}
	return nil
}

// normalize macht einen Kameranamen für IDs verwendbar (Kleinbuchstaben, Unterstriche)
func normalize(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
