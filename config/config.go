package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ipcam-analysis/internal/core/timewindow"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

// Config repräsentiert die Hauptkonfiguration der Anwendung
type Config struct {
	Log           LogConfig         `mapstructure:"log"`
	Timezone      string            `mapstructure:"timezone"`
	AWS           AWSConfig         `mapstructure:"aws"`
	Rekognition   RekognitionConfig `mapstructure:"rekognition"`
	NewLabelsOnly bool              `mapstructure:"new_labels_only"`
	Labels        []string          `mapstructure:"labels"`
	TimeWindow    TimeWindowConfig  `mapstructure:"time_window"`
	Email         EmailConfig       `mapstructure:"email"`
	Upload        UploadConfig      `mapstructure:"upload"`
	MQTT          MQTTConfig        `mapstructure:"mqtt"`
	Cleanup       CleanupConfig     `mapstructure:"cleanup"`

	// Window ist das aus TimeWindow geparste Zeitfenster, nil = immer aktiv
	Window *timewindow.Window `mapstructure:"-"`
}

// LogConfig enthält Log-Einstellungen
type LogConfig struct {
	Level   string `mapstructure:"level"`
	File    string `mapstructure:"file"`
	Console bool   `mapstructure:"console"`
}

// AWSConfig enthält die Region und einen optionalen Endpunkt (z.B. für Tests)
type AWSConfig struct {
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
}

// RekognitionConfig enthält die Einstellungen für die Label-Erkennung
type RekognitionConfig struct {
	MinConfidencePercent float64 `mapstructure:"min_confidence_percent"`
	ImageResizePercent   float64 `mapstructure:"image_resize_percent"`
}

// TimeWindowConfig enthält das tägliche Zeitfenster im Format HH:MM
type TimeWindowConfig struct {
	Start string `mapstructure:"start"`
	End   string `mapstructure:"end"`
}

// EmailConfig enthält Absender, Empfänger, Vorlagen und Transport
type EmailConfig struct {
	SenderName  string     `mapstructure:"sender_name"`
	SenderEmail string     `mapstructure:"sender_email"`
	Recipients  []string   `mapstructure:"recipients"`
	Subject     string     `mapstructure:"subject"`
	MessageHTML string     `mapstructure:"message_html"`
	Language    string     `mapstructure:"language"`
	Transport   string     `mapstructure:"transport"` // "ses" oder "smtp"
	SMTP        SMTPConfig `mapstructure:"smtp"`
}

// SMTPConfig enthält die Zugangsdaten für den SMTP-Transport
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	TLS      string `mapstructure:"tls"` // "opportunistic", "mandatory", "none", "ssl"
}

// UploadUser ist ein Kamera-Benutzer. Der Name ist zugleich der Kameraname.
type UploadUser struct {
	Name     string `mapstructure:"name"`
	Password string `mapstructure:"password"`
}

// UploadConfig enthält die Einstellungen der Upload-Empfänger
type UploadConfig struct {
	RootDir         string            `mapstructure:"root_dir"`
	Users           []UploadUser      `mapstructure:"users"`
	RemoveFiles     bool              `mapstructure:"remove_files"`
	SettleDelay     time.Duration     `mapstructure:"settle_delay"`
	PartialSuffixes []string          `mapstructure:"partial_suffixes"`
	PartialMaxAge   time.Duration     `mapstructure:"partial_max_age"`
	HTTP            UploadHTTPConfig  `mapstructure:"http"`
	Watch           UploadWatchConfig `mapstructure:"watch"`
}

// UploadHTTPConfig enthält die Einstellungen des HTTP-Empfängers
type UploadHTTPConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Listen      string   `mapstructure:"listen"`
	CORSOrigins []string `mapstructure:"cors_origins"` // erlaubte Origins für /api/health und /api/events
}

// UploadWatchConfig enthält die Einstellungen des Verzeichnis-Empfängers
type UploadWatchConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// MQTTConfig enthält die Konfiguration für den MQTT-Client
type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	Port        int    `mapstructure:"port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	ClientID    string `mapstructure:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix"`

	HomeAssistant HomeAssistantConfig `mapstructure:"home_assistant"`
}

// HomeAssistantConfig steuert die MQTT-Discovery für Home Assistant
type HomeAssistantConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	DiscoveryPrefix string `mapstructure:"discovery_prefix"`
}

// CleanupConfig enthält Bereinigungseinstellungen
type CleanupConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// Load lädt die Konfiguration aus Datei, Umgebungsvariablen und Standardwerten
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			log.Warnf("Config file %s does not exist, using defaults", configPath)
		} else {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			log.Infof("Config loaded from %s", configPath)
		}
	}

	// Umgebungsvariablen überlagern die Konfiguration, z.B. IPCAM_AWS_REGION
	v.AutomaticEnv()
	v.SetEnvPrefix("IPCAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := ensureDirectories(&cfg); err != nil {
		return nil, fmt.Errorf("failed to create required directories: %w", err)
	}

	return &cfg, nil
}

// setDefaults legt Standardwerte für die Konfiguration fest
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "logs/ipcam_analysis.log")
	v.SetDefault("log.console", false)

	v.SetDefault("timezone", "Local")

	v.SetDefault("aws.region", "eu-west-1")
	v.SetDefault("aws.endpoint", "")

	v.SetDefault("rekognition.min_confidence_percent", 75.0)
	v.SetDefault("rekognition.image_resize_percent", 100.0)

	v.SetDefault("new_labels_only", true)
	v.SetDefault("labels", []string{})

	v.SetDefault("time_window.start", "")
	v.SetDefault("time_window.end", "")

	v.SetDefault("email.sender_name", "")
	v.SetDefault("email.sender_email", "")
	v.SetDefault("email.recipients", []string{})
	v.SetDefault("email.subject", "Camera $camera")
	v.SetDefault("email.message_html", "<p>$list</p>$image")
	v.SetDefault("email.language", "en")
	v.SetDefault("email.transport", "ses")
	v.SetDefault("email.smtp.host", "localhost")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.username", "")
	v.SetDefault("email.smtp.password", "")
	v.SetDefault("email.smtp.tls", "opportunistic")

	v.SetDefault("upload.root_dir", "ftp")
	v.SetDefault("upload.remove_files", false)
	v.SetDefault("upload.settle_delay", "2s")
	v.SetDefault("upload.partial_suffixes", []string{".part", ".tmp", ".filepart"})
	v.SetDefault("upload.partial_max_age", "1h")
	v.SetDefault("upload.http.enabled", false)
	v.SetDefault("upload.http.listen", "0.0.0.0:8021")
	v.SetDefault("upload.http.cors_origins", []string{})
	v.SetDefault("upload.watch.enabled", true)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.client_id", "ipcam-analysis")
	v.SetDefault("mqtt.topic_prefix", "ipcam")
	v.SetDefault("mqtt.home_assistant.enabled", false)
	v.SetDefault("mqtt.home_assistant.discovery_prefix", "homeassistant")

	v.SetDefault("cleanup.interval", "10m")
}

// Validate prüft die Konfiguration und sammelt alle Fehler.
// Bei Erfolg ist Window gesetzt (oder nil, wenn kein Zeitfenster konfiguriert ist).
func (c *Config) Validate() error {
	var errs error

	if c.Email.SenderEmail == "" {
		errs = multierr.Append(errs, fmt.Errorf("email.sender_email is required"))
	}
	if len(c.Email.Recipients) == 0 {
		errs = multierr.Append(errs, fmt.Errorf("email.recipients must not be empty"))
	}
	switch c.Email.Transport {
	case "ses", "smtp":
	default:
		errs = multierr.Append(errs, fmt.Errorf("email.transport must be ses or smtp, got %q", c.Email.Transport))
	}
	if c.Email.Transport == "smtp" {
		switch c.Email.SMTP.TLS {
		case "opportunistic", "mandatory", "none", "ssl":
		default:
			errs = multierr.Append(errs, fmt.Errorf("email.smtp.tls must be opportunistic, mandatory, none or ssl, got %q", c.Email.SMTP.TLS))
		}
	}

	if c.AWS.Region == "" {
		errs = multierr.Append(errs, fmt.Errorf("aws.region is required"))
	}
	if c.Rekognition.MinConfidencePercent < 0 || c.Rekognition.MinConfidencePercent > 100 {
		errs = multierr.Append(errs, fmt.Errorf("rekognition.min_confidence_percent must be between 0 and 100"))
	}
	if c.Rekognition.ImageResizePercent <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("rekognition.image_resize_percent must be positive"))
	}

	if (c.TimeWindow.Start == "") != (c.TimeWindow.End == "") {
		log.Warnf("Incomplete time window [%s, %s], processing images at any time", c.TimeWindow.Start, c.TimeWindow.End)
	}
	window, err := timewindow.New(c.TimeWindow.Start, c.TimeWindow.End)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("time_window: %w", err))
	}
	c.Window = window

	seen := make(map[string]bool)
	for i, u := range c.Upload.Users {
		if u.Name == "" || strings.ContainsAny(u.Name, `/\`) || u.Name == "." || u.Name == ".." {
			errs = multierr.Append(errs, fmt.Errorf("upload.users[%d]: invalid camera name %q", i, u.Name))
			continue
		}
		if seen[u.Name] {
			errs = multierr.Append(errs, fmt.Errorf("upload.users[%d]: duplicate camera name %q", i, u.Name))
		}
		seen[u.Name] = true
	}
	if c.Upload.HTTP.Enabled && len(c.Upload.Users) == 0 {
		errs = multierr.Append(errs, fmt.Errorf("upload.users must not be empty when upload.http is enabled"))
	}
	if c.Upload.SettleDelay < 0 {
		errs = multierr.Append(errs, fmt.Errorf("upload.settle_delay must not be negative"))
	}

	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = multierr.Append(errs, fmt.Errorf("mqtt.broker is required when mqtt is enabled"))
	}

	return errs
}

// CameraDir gibt das Home-Verzeichnis einer Kamera zurück
func (c *Config) CameraDir(camera string) string {
	return filepath.Join(c.Upload.RootDir, camera)
}

// ensureDirectories stellt sicher, dass alle erforderlichen Verzeichnisse existieren
func ensureDirectories(cfg *Config) error {
	if cfg.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	// Ein Home-Verzeichnis pro Kamera-Benutzer
	for _, u := range cfg.Upload.Users {
		if err := os.MkdirAll(cfg.CameraDir(u.Name), 0755); err != nil {
			return fmt.Errorf("failed to create camera directory: %w", err)
		}
	}

	return nil
}
