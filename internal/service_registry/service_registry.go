package service_registry

import (
	"errors"
	"fmt"

	"github.com/benmeehan/kiln-console/internal/models"
	"github.com/benmeehan/kiln-console/internal/observability"
	"github.com/benmeehan/kiln-console/internal/services"
	"github.com/benmeehan/kiln-console/internal/state_managers"
	"github.com/benmeehan/kiln-console/internal/utils"
	"github.com/benmeehan/kiln-console/pkg/device"
	"github.com/benmeehan/kiln-console/pkg/mqtt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// ServiceRegistry manages the lifecycle of various services in the system.
type ServiceRegistry struct {
	services     map[string]Service // Stores registered services
	serviceKeys  []string           // Maintains order of service registration
	deviceClient device.Client
	mqttClient   mqtt.MQTTClient // nil when mirroring is disabled
	stateManager *state_managers.DisplayStateManager
	executor     services.Executor
	promRegistry *prometheus.Registry
	Logger       zerolog.Logger
}

// NewServiceRegistry initializes a new service registry with dependencies.
func NewServiceRegistry(deviceClient device.Client, mqttClient mqtt.MQTTClient, stateManager *state_managers.DisplayStateManager,
	executor services.Executor, promRegistry *prometheus.Registry, logger zerolog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		services:     make(map[string]Service),
		deviceClient: deviceClient,
		mqttClient:   mqttClient,
		stateManager: stateManager,
		executor:     executor,
		promRegistry: promRegistry,
		Logger:       logger,
	}
}

// RegisterService adds a new service to the registry.
func (sr *ServiceRegistry) RegisterService(name string, svc Service) {
	if _, exists := sr.services[name]; exists {
		sr.Logger.Warn().Msgf("Service %s is already registered", name)
		return
	}
	sr.services[name] = svc
	sr.serviceKeys = append(sr.serviceKeys, name)
	sr.Logger.Info().Msgf("Registered service: %s", name)
}

// ServiceNames returns the registered service names in start order.
func (sr *ServiceRegistry) ServiceNames() []string {
	return append([]string(nil), sr.serviceKeys...)
}

// StartServices initiates all registered services in order.
// If a service fails to start, it stops already started services.
func (sr *ServiceRegistry) StartServices() error {
	startedServices := []string{}

	for _, name := range sr.serviceKeys {
		svc := sr.services[name]
		sr.Logger.Info().Msgf("Starting service: %s", name)
		if err := svc.Start(); err != nil {
			sr.Logger.Error().Err(err).Msgf("Failed to start service: %s", name)

			// Stop already started services before returning
			sr.Logger.Warn().Msg("Stopping already started services due to startup failure...")
			for i := len(startedServices) - 1; i >= 0; i-- {
				_ = sr.services[startedServices[i]].Stop()
			}
			return fmt.Errorf("start %s: %w", name, err)
		}
		startedServices = append(startedServices, name)
	}

	return nil
}

// StopServices stops all services in reverse order.
func (sr *ServiceRegistry) StopServices() error {
	var stopErrors []error
	for i := len(sr.serviceKeys) - 1; i >= 0; i-- {
		name := sr.serviceKeys[i]
		if err := sr.services[name].Stop(); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("failed to stop %s: %w", name, err))
		}
	}
	if len(stopErrors) > 0 {
		for _, e := range stopErrors {
			sr.Logger.Error().Err(e).Msg("Service stop failure")
		}
		return errors.Join(stopErrors...)
	}
	return nil
}

// RegisterServices initializes and registers enabled services based on configuration.
// The mirror is registered ahead of the console so it is consuming before the
// first status arrives, and stopped after it.
func (sr *ServiceRegistry) RegisterServices(config *utils.Config, sessionID string) error {
	metrics := observability.NewMetrics(sr.promRegistry)

	console := services.NewConsoleService(
		sr.deviceClient,
		sr.stateManager,
		sr.stateManager,
		sr.executor,
		metrics,
		config.Console.PollInterval,
		sr.Logger.With().Str("service", "console").Logger(),
	)
	commands := services.NewCommandService(
		sr.deviceClient,
		sr.stateManager,
		console,
		metrics,
		sr.Logger.With().Str("service", "command").Logger(),
	)

	// Ordered service definitions with inline constructors
	servicesInOrder := []struct {
		name        string
		enabled     bool
		constructor func() (Service, error)
	}{
		{
			name:    "mirror",
			enabled: config.Mirror.Enabled,
			constructor: func() (Service, error) {
				if sr.mqttClient == nil {
					return nil, errors.New("mirror enabled without an MQTT client")
				}
				mirror := services.NewMirrorService(
					config.Mirror.Topic,
					sessionID,
					config.Mirror.QOS,
					config.Mirror.Buffer,
					sr.mqttClient,
					sr.Logger.With().Str("service", "mirror").Logger(),
				)
				console.AddObserver(mirror.Observe)
				return mirror, nil
			},
		},
		{
			name:    "console",
			enabled: true,
			constructor: func() (Service, error) {
				return console, nil
			},
		},
		{
			name:    "view",
			enabled: config.View.Enabled,
			constructor: func() (Service, error) {
				return services.NewViewService(
					config.View.Listen,
					sr.stateManager,
					commands,
					console,
					sr.deviceClient,
					sr.promRegistry,
					sr.Logger.With().Str("service", "view").Logger(),
				), nil
			},
		},
	}

	// Register services in the predefined order
	registeredServices := []string{}
	for _, svc := range servicesInOrder {
		if svc.enabled {
			serviceInstance, err := svc.constructor()
			if err != nil {
				sr.Logger.Error().Err(err).Msgf("Failed to create %s service", svc.name)
				return err
			}
			sr.RegisterService(svc.name, serviceInstance)
			registeredServices = append(registeredServices, svc.name)
		}
	}

	sr.Logger.Info().Msgf("Registered services in order: %v", registeredServices)
	return nil
}

// InitialViewport returns the configured starting viewport.
func InitialViewport(config *utils.Config) models.Viewport {
	return models.Viewport{Width: config.Console.Viewport.Width, Height: config.Console.Viewport.Height}
}
