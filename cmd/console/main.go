package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/benmeehan/kiln-console/internal/metrics_collectors"
	"github.com/benmeehan/kiln-console/internal/service_registry"
	"github.com/benmeehan/kiln-console/internal/state_managers"
	"github.com/benmeehan/kiln-console/internal/utils"
	"github.com/benmeehan/kiln-console/pkg/device"
	"github.com/benmeehan/kiln-console/pkg/file"
	"github.com/benmeehan/kiln-console/pkg/mqtt"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	flag.Parse()

	// Set up structured logging with JSON output
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Load configuration from file
	fileClient := file.NewFileService()
	config, err := utils.LoadConfig(*configPath, fileClient)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	level, err := zerolog.ParseLevel(config.Logging.Level)
	if err != nil {
		log.Fatal().Err(err).Str("level", config.Logging.Level).Msg("Invalid log level")
	}
	log = log.Level(level)

	// Every console instance gets its own session, used for the MQTT client ID and mirror topic
	sessionID := uuid.New().String()
	log = log.With().Str("session", sessionID).Logger()

	deviceClient, err := device.NewHTTPClient(
		config.Device.BaseURL,
		config.Device.EndpointSuffix,
		config.Device.RequestTimeout,
		log.With().Str("component", "device").Logger(),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create device client")
	}

	// Initialize the MQTT connection only when mirroring is enabled
	var mqttService *mqtt.MqttService
	var mqttClient mqtt.MQTTClient
	if config.Mirror.Enabled {
		config.Mirror.ClientID = config.Mirror.ClientID + "-" + sessionID
		log.Info().Str("client_id", config.Mirror.ClientID).Msg("Using MQTT client ID")

		mqttService = mqtt.NewMqttService(fileClient)
		err = mqttService.Initialize(mqtt.Options{
			Broker:        config.Mirror.Broker,
			ClientID:      config.Mirror.ClientID,
			Username:      config.Mirror.Username,
			Password:      config.Mirror.Password,
			CACertificate: config.Mirror.CACertificate,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize MQTT connection")
		}
		mqttClient = mqttService
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if config.View.HostMetrics {
		promRegistry.MustRegister(metrics_collectors.NewHostMetricsRegistry(
			config.View.DiskPath,
			log.With().Str("component", "host_metrics").Logger(),
		))
	}

	stateManager := state_managers.NewDisplayStateManager(
		service_registry.InitialViewport(config),
		log.With().Str("component", "state").Logger(),
	)
	workerPool := utils.NewWorkerPool(config.Console.FetchWorkers)

	// Create a new service registry to manage services
	serviceRegistry := service_registry.NewServiceRegistry(deviceClient, mqttClient, stateManager, workerPool, promRegistry, log)

	// Register all services based on the configuration
	if err := serviceRegistry.RegisterServices(config, sessionID); err != nil {
		log.Fatal().Err(err).Msg("Failed to register services")
	}

	// Start all registered services in the registry
	if err := serviceRegistry.StartServices(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start services")
	}
	log.Info().Str("controller", config.Device.BaseURL).Msg("All services started successfully")

	// Handle graceful shutdown
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	log.Info().Msg("Shutting down gracefully...")
	if err := serviceRegistry.StopServices(); err != nil {
		log.Error().Err(err).Msg("Some services failed to stop")
	}
	if mqttService != nil {
		mqttService.Disconnect(250)
	}
}
