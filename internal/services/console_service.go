package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benmeehan/kiln-console/internal/graph"
	"github.com/benmeehan/kiln-console/internal/models"
	"github.com/benmeehan/kiln-console/internal/observability"
	"github.com/benmeehan/kiln-console/internal/state_managers"
	"github.com/benmeehan/kiln-console/pkg/device"
	"github.com/rs/zerolog"
)

// eventBuffer is the number of completions that can wait for the loop.
const eventBuffer = 64

// Executor runs controller requests off the console loop.
type Executor interface {
	TrySubmit(name string, task func()) bool
	Shutdown()
}

// ViewportSource reports the size the graph is currently displayed at.
type ViewportSource interface {
	Viewport() models.Viewport
}

// StatusObserver is called on the console loop for every applied status. It must not block.
type StatusObserver func(status models.DeviceStatus, display models.DisplayState)

// refreshKey identifies one graph frame: the viewport and the newest sample time.
type refreshKey struct {
	Viewport models.Viewport
	Latest   int64
}

// renderState tracks the single in-flight history fetch and the one pending behind it.
type renderState struct {
	seq      uint64
	inFlight bool
	current  refreshKey
	pending  *refreshKey
	drawn    refreshKey
	hasDrawn bool
}

// ConsoleService polls the controller and keeps the graph frame current.
//
// All engine state is owned by one goroutine. Ticks and request completions are
// handled there one at a time; requests themselves run on the Executor and post
// their results back as events.
type ConsoleService struct {
	client    device.Client
	state     *state_managers.DisplayStateManager
	viewports ViewportSource
	executor  Executor
	metrics   *observability.Metrics
	logger    zerolog.Logger
	interval  time.Duration
	now       func() time.Time
	observers []StatusObserver

	events chan func()

	// Owned by the loop goroutine.
	syncState      models.SyncState
	viewport       models.Viewport
	hasViewport    bool
	statusSeq      uint64
	statusInFlight bool
	status         models.DeviceStatus
	hasStatus      bool
	render         renderState

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewConsoleService initializes the console loop. The viewport is read from
// viewports on every tick.
func NewConsoleService(
	client device.Client,
	state *state_managers.DisplayStateManager,
	viewports ViewportSource,
	executor Executor,
	metrics *observability.Metrics,
	interval time.Duration,
	logger zerolog.Logger,
) *ConsoleService {
	ctx, cancel := context.WithCancel(context.Background())

	return &ConsoleService{
		client:    client,
		state:     state,
		viewports: viewports,
		executor:  executor,
		metrics:   metrics,
		logger:    logger,
		interval:  interval,
		now:       time.Now,
		events:    make(chan func(), eventBuffer),
		syncState: models.NewSyncState(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// AddObserver registers a status observer. It must be called before Start.
func (s *ConsoleService) AddObserver(observer StatusObserver) {
	s.observers = append(s.observers, observer)
}

// Start launches the console loop.
func (s *ConsoleService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.logger.Warn().Msg("ConsoleService is already running")
		return errors.New("console service is already running")
	}
	if s.ctx.Err() != nil {
		return errors.New("console service has been stopped")
	}
	s.running = true

	s.wg.Add(1)
	go s.run()

	s.logger.Info().Dur("interval", s.interval).Msg("ConsoleService started successfully")
	return nil
}

// Stop ends the loop, abandons outstanding requests and waits for the fetch workers.
func (s *ConsoleService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		s.logger.Warn().Msg("ConsoleService is not running")
		return errors.New("console service is not running")
	}

	s.cancel()
	s.wg.Wait()
	s.executor.Shutdown()
	s.running = false

	s.logger.Info().Msg("ConsoleService stopped successfully")
	return nil
}

// RequestPrograms asks the loop to reload the program list. Safe from any goroutine.
func (s *ConsoleService) RequestPrograms() {
	select {
	case s.events <- s.fetchPrograms:
	case <-s.ctx.Done():
	default:
		s.logger.Warn().Msg("Console loop busy, program reload dropped")
	}
}

func (s *ConsoleService) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.fetchPrograms()
	s.tick()

	for {
		select {
		case <-ticker.C:
			s.tick()
		case event := <-s.events:
			event()
		case <-s.ctx.Done():
			s.logger.Info().Msg("Console loop stopping gracefully")
			return
		}
	}
}

// post hands a completion back to the loop.
func (s *ConsoleService) post(event func()) {
	select {
	case s.events <- event:
	case <-s.ctx.Done():
	}
}

// tick observes the viewport and issues one status fetch, unless the previous
// one is still outstanding.
func (s *ConsoleService) tick() {
	viewport := s.viewports.Viewport()
	if !s.hasViewport || viewport != s.viewport {
		if s.hasViewport {
			s.logger.Debug().
				Int("width", viewport.Width).
				Int("height", viewport.Height).
				Msg("Viewport changed, forcing redraw")
		}
		s.viewport = viewport
		s.hasViewport = true
		s.syncState = s.syncState.Reset()
	}

	if s.statusInFlight {
		s.metrics.StatusFetches.WithLabelValues(observability.ResultBusy).Inc()
		s.logger.Debug().Uint64("seq", s.statusSeq).Msg("Status fetch still outstanding, poll skipped")
		return
	}

	seq := s.statusSeq + 1
	ctx := s.ctx
	submitted := s.executor.TrySubmit("status", func() {
		status, err := s.client.FetchStatus(ctx)
		s.post(func() { s.applyStatus(seq, status, err) })
	})
	if !submitted {
		s.metrics.StatusFetches.WithLabelValues(observability.ResultBusy).Inc()
		s.logger.Debug().Msg("Fetch workers busy, status poll skipped")
		return
	}
	s.statusSeq = seq
	s.statusInFlight = true
}

// applyStatus applies the response of status request seq if it is the latest one.
func (s *ConsoleService) applyStatus(seq uint64, status models.DeviceStatus, err error) {
	if seq != s.statusSeq {
		s.metrics.StatusFetches.WithLabelValues(observability.ResultStale).Inc()
		s.logger.Debug().Uint64("seq", seq).Uint64("latest", s.statusSeq).Msg("Dropping stale status response")
		return
	}
	s.statusInFlight = false

	if err != nil {
		s.metrics.StatusFetches.WithLabelValues(observability.ResultLabel(err)).Inc()
		s.logger.Debug().Err(err).Msg("Status poll failed")
		return
	}

	display := s.project(status)

	s.status = status
	s.hasStatus = true
	s.state.Publish(status, display)
	s.metrics.StatusFetches.WithLabelValues(observability.ResultOK).Inc()
	s.metrics.LastSampleTime.Set(float64(status.LastTime))

	for _, observer := range s.observers {
		observer(status, display)
	}

	s.maybeRefresh(status.LastTime)
}

func (s *ConsoleService) project(status models.DeviceStatus) models.DisplayState {
	name := ""
	if status.HasActiveProgram() {
		name, _ = s.state.ProgramName(status.ActiveFiringID())
	}
	return models.ProjectDisplay(status, name, s.now())
}

// maybeRefresh requests a new frame when the sync rules allow one.
func (s *ConsoleService) maybeRefresh(lastTime int64) {
	scale := graph.NewScale(s.viewport)
	if scale.Degenerate() {
		return
	}
	if !s.syncState.ShouldRedraw(lastTime, scale.PixelsPerHour) {
		return
	}
	s.syncState = s.syncState.Triggered(lastTime)
	s.refresh(refreshKey{Viewport: s.viewport, Latest: lastTime})
}

// refresh fetches and draws the history window for key. Only one history fetch
// is outstanding at a time; calls made meanwhile collapse into a single pending
// request carrying the newest key.
func (s *ConsoleService) refresh(key refreshKey) {
	scale := graph.NewScale(key.Viewport)
	if scale.Degenerate() {
		return
	}

	r := &s.render
	if r.inFlight {
		if key == r.current {
			r.pending = nil
			return
		}
		r.pending = &key
		return
	}
	if r.hasDrawn && key == r.drawn {
		return
	}

	seq := r.seq + 1
	ctx := s.ctx
	submitted := s.executor.TrySubmit("history", func() {
		history, err := s.client.FetchHistory(ctx, scale.WindowSeconds)
		s.post(func() { s.applyHistory(seq, key, scale, history, err) })
	})
	if !submitted {
		s.metrics.HistoryFetches.WithLabelValues(observability.ResultBusy).Inc()
		s.logger.Debug().Msg("Fetch workers busy, graph refresh deferred")
		s.syncState = s.syncState.Failed()
		return
	}

	r.seq = seq
	r.inFlight = true
	r.current = key
	s.logger.Debug().
		Int64("window_seconds", scale.WindowSeconds).
		Int64("latest", key.Latest).
		Msg("History fetch issued")
}

// applyHistory draws a fetched window. On any failure the previous frame stays
// published and the sync state is left to retry on the next eligible tick.
func (s *ConsoleService) applyHistory(seq uint64, key refreshKey, scale graph.Scale, history models.History, err error) {
	r := &s.render
	if seq != r.seq || !r.inFlight {
		return
	}
	r.inFlight = false

	if err != nil {
		s.metrics.HistoryFetches.WithLabelValues(observability.ResultLabel(err)).Inc()
		s.logger.Debug().Err(err).Msg("History fetch failed, keeping previous frame")
		s.syncState = s.syncState.Failed()
	} else if frame, drawErr := s.draw(scale, key.Latest, history); drawErr != nil {
		s.metrics.HistoryFetches.WithLabelValues(observability.ResultError).Inc()
		s.logger.Warn().Err(drawErr).Msg("Graph draw failed, keeping previous frame")
		s.syncState = s.syncState.Failed()
	} else {
		s.state.PublishFrame(frame)
		r.drawn = key
		r.hasDrawn = true
		s.syncState = s.syncState.Committed(key.Latest)
		s.metrics.HistoryFetches.WithLabelValues(observability.ResultOK).Inc()
		s.metrics.Redraws.Inc()
	}

	if pending := r.pending; pending != nil {
		r.pending = nil
		s.refresh(*pending)
	}
}

func (s *ConsoleService) draw(scale graph.Scale, latest int64, history models.History) ([]byte, error) {
	frame := graph.BuildFrame(scale, latest, history)
	img, err := graph.Rasterize(frame)
	if err != nil {
		return nil, err
	}
	s.logger.Debug().
		Int("samples", len(history.Temps)).
		Int("segments", frame.TraceSegments()).
		Int("markers", len(frame.Markers)).
		Msg("Graph frame rendered")
	return graph.EncodePNG(img)
}

// fetchPrograms reloads the program cache used to name the active firing.
func (s *ConsoleService) fetchPrograms() {
	ctx := s.ctx
	submitted := s.executor.TrySubmit("programs", func() {
		programs, err := s.client.FetchPrograms(ctx)
		s.post(func() { s.applyPrograms(programs, err) })
	})
	if !submitted {
		s.logger.Debug().Msg("Fetch workers busy, program reload skipped")
	}
}

func (s *ConsoleService) applyPrograms(programs []models.Program, err error) {
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to load programs")
		return
	}
	s.state.SetPrograms(programs)
	s.logger.Debug().Int("count", len(programs)).Msg("Programs loaded")

	if s.hasStatus {
		s.state.Publish(s.status, s.project(s.status))
	}
}
