package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ipcam-analysis/config"
	"ipcam-analysis/internal/api/handlers"
	"ipcam-analysis/internal/core/annotate"
	"ipcam-analysis/internal/core/labels"
	"ipcam-analysis/internal/core/notify"
	"ipcam-analysis/internal/core/processor"
	"ipcam-analysis/internal/i18n"
	"ipcam-analysis/internal/integrations/awsapi"
	"ipcam-analysis/internal/integrations/homeassistant"
	"ipcam-analysis/internal/integrations/mailer"
	"ipcam-analysis/internal/integrations/mqtt"
	"ipcam-analysis/internal/integrations/rekognition"
	"ipcam-analysis/internal/logger"
	"ipcam-analysis/internal/receiver"
	"ipcam-analysis/internal/selftest"
	"ipcam-analysis/internal/server/sse"
	"ipcam-analysis/internal/services/cleanup"
	"ipcam-analysis/internal/util/timezone"
	"ipcam-analysis/internal/utils"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	queueCapacity   = 64
	shutdownTimeout = 30 * time.Second
)

// exitSelfTestFailed ist der Exit-Code, wenn der AWS-Selbsttest fehlschlägt
const exitSelfTestFailed = -2

var logLevels = []string{"DEBUG", "INFO", "WARNING", "ERROR", "CRITICAL"}

type options struct {
	configPath string
	console    bool
	testAWS    bool
	logLevel   string
	levelSet   bool
}

func main() {
	opts := &options{}
	exitCode := 0

	cmd := &cobra.Command{
		Use:           "ipcam-analysis",
		Short:         "IP Camera Analysis Server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.levelSet = cmd.Flags().Changed("log-level")
			code, err := run(cmd.Context(), opts)
			exitCode = code
			return err
		},
	}
	cmd.SetUsageTemplate(cmd.UsageTemplate() +
		"\nLicense: GNU GPLv3, source code: https://github.com/aquaticus/ipcamera_analysis\n")

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "config.yaml", "sets configuration file")
	flags.BoolVarP(&opts.console, "enable-console-log", "n", false, "enables log to console")
	flags.BoolVarP(&opts.testAWS, "test-aws", "t", false, "tests Amazon AWS credentials")
	flags.StringVarP(&opts.logLevel, "log-level", "l", "INFO",
		"sets log level ("+strings.Join(logLevels, "|")+")")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if exitCode == 0 {
			exitCode = 1
		}
	}
	os.Exit(exitCode)
}

func validLogLevel(level string) bool {
	for _, l := range logLevels {
		if strings.EqualFold(l, level) {
			return true
		}
	}
	return false
}

func run(ctx context.Context, opts *options) (int, error) {
	if !validLogLevel(opts.logLevel) {
		return 1, fmt.Errorf("invalid log level %q, choose from %s", opts.logLevel, strings.Join(logLevels, ", "))
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return 1, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Kommandozeile hat Vorrang vor der Konfigurationsdatei
	if opts.levelSet || cfg.Log.Level == "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.console {
		cfg.Log.Console = true
	}
	closer, err := logger.Init(cfg.Log)
	if err != nil {
		log.Errorf("Failed to initialize logger completely: %v", err)
	}
	if closer != nil {
		defer closer.Close()
	}

	timezone.Initialize(cfg.Timezone)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	api, err := awsapi.New(ctx, awsapi.Options{Region: cfg.AWS.Region, Endpoint: cfg.AWS.Endpoint})
	if err != nil {
		return 1, err
	}
	detector := rekognition.NewClient(api, cfg.Rekognition.MinConfidencePercent)

	translator, err := i18n.NewTranslator(cfg.Email.Language)
	if err != nil {
		return 1, err
	}

	transport, err := mailer.New(cfg.Email, api)
	if err != nil {
		return 1, err
	}

	if opts.testAWS {
		err := selftest.Run(ctx, selftest.Options{
			Region:    api.Region(),
			Detector:  detector,
			Mailer:    transport,
			Sender:    notify.Address{Name: cfg.Email.SenderName, Email: cfg.Email.SenderEmail},
			To:        cfg.Email.Recipients,
			TestTexts: translator.TestNotification,
			Out:       os.Stdout,
		})
		if err != nil {
			return exitSelfTestFailed, err
		}
		return 0, nil
	}

	fmt.Println("IP Camera Analysis started")
	log.Info("Starting server...")
	log.Infof("Log level %s", strings.ToUpper(log.GetLevel().String()))
	log.Debug("Debug output enabled")
	selftest.LogEnv()

	if err := serve(ctx, cfg, detector, transport, translator); err != nil {
		return 1, err
	}
	return 0, nil
}

func serve(ctx context.Context, cfg *config.Config, detector processor.Detector, transport notify.Mailer, translator *i18n.Translator) error {
	annotator, err := annotate.New(cfg.Rekognition.ImageResizePercent)
	if err != nil {
		return err
	}

	ctx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	composer := notify.NewComposer(notify.Config{
		SenderName:  cfg.Email.SenderName,
		SenderEmail: cfg.Email.SenderEmail,
		Recipients:  cfg.Email.Recipients,
		Subject:     cfg.Email.Subject,
		MessageHTML: cfg.Email.MessageHTML,
	}, transport, translator.ErrorNotification)

	policy := labels.NewPolicy(cfg.NewLabelsOnly, cfg.Labels)
	pipeline := processor.NewPipeline(detector, policy, annotator, composer, utils.Hostname(ctx))

	if cfg.MQTT.Enabled {
		mqttClient := mqtt.NewClient(cfg.MQTT)
		if cfg.MQTT.HomeAssistant.Enabled {
			discovery := homeassistant.NewDiscoveryManager(mqttClient,
				cfg.MQTT.HomeAssistant.DiscoveryPrefix, cfg.MQTT.TopicPrefix)
			cameras := cameraNames(cfg.Upload)
			mqttClient.OnConnect(func() {
				if err := discovery.RegisterCameras(ctx, cameras); err != nil {
					log.Warnf("Home Assistant discovery incomplete: %v", err)
				}
			})
		}
		if err := mqttClient.Start(); err != nil {
			log.Warnf("Failed to start MQTT client: %v. Continuing without MQTT.", err)
		}
		pipeline.AddPublisher(mqttClient)
		defer mqttClient.Stop()
	} else {
		log.Info("MQTT is disabled in config.")
	}

	var hub *sse.Hub
	if cfg.Upload.HTTP.Enabled {
		hub = sse.NewHub()
		go hub.Run(ctx)
		pipeline.AddPublisher(hub)
	}

	dispatcher := processor.NewDispatcher(pipeline, queueCapacity)
	intake := receiver.NewIntake(dispatcher, cfg.Window, cfg.Upload.RemoveFiles)

	errCh := make(chan error, 2)

	if cfg.Upload.Watch.Enabled {
		watcher, err := receiver.NewWatcher(cfg.Upload, intake)
		if err != nil {
			return err
		}
		log.Infof("Watching upload directories for cameras: %s", strings.Join(watcher.Cameras(), ", "))
		go func() {
			if err := watcher.Run(ctx); err != nil {
				errCh <- fmt.Errorf("upload watcher stopped: %w", err)
			}
		}()
	}

	var server *http.Server
	if cfg.Upload.HTTP.Enabled {
		router := handlers.NewRouter(cfg.Upload,
			handlers.NewUploadHandler(cfg.Upload, intake),
			handlers.NewSystemHandler(dispatcher),
			handlers.NewEventHandler(hub))
		server = &http.Server{
			Addr:              cfg.Upload.HTTP.Listen,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Infof("Starting HTTP upload server on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("HTTP server failed: %w", err)
			}
		}()
	}

	cleanupService := cleanup.NewCleanupService(cfg.Upload, cfg.Cleanup)
	go cleanupService.Start(ctx)

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case runErr = <-errCh:
		log.Errorf("%v", runErr)
	}

	// beendet Watcher, Cleanup und offene Event-Streams
	cancelRun()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Errorf("HTTP server shutdown failed: %v", err)
		}
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		log.Warnf("Processing queue did not drain: %v", err)
	}

	log.Info("Server stopped.")
	return runErr
}

func cameraNames(upload config.UploadConfig) []string {
	names := make([]string, 0, len(upload.Users))
	for _, u := range upload.Users {
		names = append(names, u.Name)
	}
	return names
}
