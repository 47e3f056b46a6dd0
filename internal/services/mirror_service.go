package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/benmeehan/kiln-console/internal/models"
	"github.com/benmeehan/kiln-console/pkg/mqtt"
	"github.com/rs/zerolog"
)

// publishWait bounds how long one mirror publish may wait for the broker.
const publishWait = 5 * time.Second

// MirrorService republishes every applied display state to an MQTT topic so
// other consoles can follow the kiln.
type MirrorService struct {
	Topic      string
	QOS        int
	MqttClient mqtt.MQTTClient
	Logger     zerolog.Logger

	queue chan models.DisplayState

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMirrorService initializes a new MirrorService publishing to topic/sessionID.
// At most buffer snapshots wait for the broker; older ones are dropped first.
func NewMirrorService(topic, sessionID string, qos, buffer int, mqttClient mqtt.MQTTClient, logger zerolog.Logger) *MirrorService {
	if buffer < 1 {
		buffer = 1
	}
	return &MirrorService{
		Topic:      topic + "/" + sessionID,
		QOS:        qos,
		MqttClient: mqttClient,
		Logger:     logger,
		queue:      make(chan models.DisplayState, buffer),
	}
}

// Start launches the publish loop in a separate goroutine.
func (m *MirrorService) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx != nil {
		m.Logger.Warn().Msg("MirrorService is already running")
		return errors.New("mirror service is already running")
	}

	m.ctx, m.cancel = context.WithCancel(context.Background())

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.runPublishLoop(m.ctx)
	}()

	m.Logger.Info().Str("topic", m.Topic).Msg("MirrorService started successfully")
	return nil
}

// Stop gracefully stops the mirror service. Snapshots still queued are discarded.
func (m *MirrorService) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx == nil {
		m.Logger.Warn().Msg("MirrorService is not running")
		return errors.New("mirror service is not running")
	}

	m.cancel()
	m.wg.Wait()

	m.ctx = nil
	m.cancel = nil

	m.Logger.Info().Msg("MirrorService stopped successfully")
	return nil
}

// Observe queues a snapshot for publishing without blocking the caller.
func (m *MirrorService) Observe(_ models.DeviceStatus, display models.DisplayState) {
	for attempt := 0; attempt < 2; attempt++ {
		select {
		case m.queue <- display:
			return
		default:
		}

		select {
		case <-m.queue:
			m.Logger.Debug().Msg("Mirror queue full, dropped oldest snapshot")
		default:
		}
	}
	m.Logger.Warn().Msg("Mirror queue contended, snapshot dropped")
}

func (m *MirrorService) runPublishLoop(ctx context.Context) {
	for {
		select {
		case display := <-m.queue:
			m.publish(display)
		case <-ctx.Done():
			m.Logger.Info().Msg("MirrorService stopping gracefully")
			return
		}
	}
}

func (m *MirrorService) publish(display models.DisplayState) {
	payload, err := json.Marshal(display)
	if err != nil {
		m.Logger.Error().Err(err).Msg("Failed to serialize display state")
		return
	}

	token := m.MqttClient.Publish(m.Topic, byte(m.QOS), false, payload)
	if !token.WaitTimeout(publishWait) {
		m.Logger.Error().Str("topic", m.Topic).Msg("Timed out publishing display state")
		return
	}
	if err := token.Error(); err != nil {
		m.Logger.Error().Err(err).Str("topic", m.Topic).Msg("Failed to publish display state")
		return
	}
	m.Logger.Debug().Int64("last_sample_time", display.LastSampleTime).Msg("Display state mirrored")
}
