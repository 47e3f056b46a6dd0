package state_managers

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/benmeehan/kiln-console/internal/models"
	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"
)

// Dialog names accepted by SetDialog.
const (
	DialogPrograms = "programs"
	DialogSetpoint = "setpoint"
)

// DisplayStateManager holds the latest published console state for readers
// outside the console loop: the HTTP view, the MQTT mirror and command dispatch.
// The loop is the only writer of status, display and frame.
type DisplayStateManager struct {
	mu        sync.RWMutex
	status    models.DeviceStatus
	display   models.DisplayState
	hasStatus bool
	frame     []byte
	viewport  models.Viewport
	dialogs   models.Dialogs

	programs    cmap.ConcurrentMap[string, models.Program]
	subscribers cmap.ConcurrentMap[string, chan models.DisplayState]
	logger      zerolog.Logger
}

// NewDisplayStateManager initializes a manager with the initial viewport.
func NewDisplayStateManager(viewport models.Viewport, logger zerolog.Logger) *DisplayStateManager {
	return &DisplayStateManager{
		viewport:    viewport,
		dialogs:     models.Dialogs{Programs: models.DialogHidden, Setpoint: models.DialogHidden},
		programs:    cmap.New[models.Program](),
		subscribers: cmap.New[chan models.DisplayState](),
		logger:      logger,
	}
}

// Publish replaces the status and display snapshot in one step and notifies subscribers.
func (sm *DisplayStateManager) Publish(status models.DeviceStatus, display models.DisplayState) {
	sm.mu.Lock()
	sm.status = status
	sm.display = display
	sm.hasStatus = true
	sm.mu.Unlock()

	for item := range sm.subscribers.IterBuffered() {
		ch := item.Val
		// Keep only the newest snapshot for slow subscribers.
		select {
		case ch <- display:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- display:
			default:
			}
		}
	}
}

// Status returns the last applied device status.
func (sm *DisplayStateManager) Status() (models.DeviceStatus, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.status, sm.hasStatus
}

// Display returns the last published display state.
func (sm *DisplayStateManager) Display() (models.DisplayState, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.display, sm.hasStatus
}

// PublishFrame replaces the current graph frame.
func (sm *DisplayStateManager) PublishFrame(png []byte) {
	sm.mu.Lock()
	sm.frame = png
	sm.mu.Unlock()
}

// Frame returns the current encoded graph frame.
func (sm *DisplayStateManager) Frame() ([]byte, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.frame, sm.frame != nil
}

// SetViewport records the size the graph is displayed at.
func (sm *DisplayStateManager) SetViewport(viewport models.Viewport) error {
	if !viewport.Valid() {
		return fmt.Errorf("invalid viewport %dx%d", viewport.Width, viewport.Height)
	}
	sm.mu.Lock()
	sm.viewport = viewport
	sm.mu.Unlock()
	return nil
}

// Viewport returns the current graph size.
func (sm *DisplayStateManager) Viewport() models.Viewport {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.viewport
}

// SetDialog shows or hides a dialog.
func (sm *DisplayStateManager) SetDialog(name string, state models.DialogState) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	switch name {
	case DialogPrograms:
		sm.dialogs.Programs = state
	case DialogSetpoint:
		sm.dialogs.Setpoint = state
	default:
		return fmt.Errorf("unknown dialog %q", name)
	}
	return nil
}

// Dialogs returns the visibility of every dialog.
func (sm *DisplayStateManager) Dialogs() models.Dialogs {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.dialogs
}

// SetPrograms replaces the cached program list.
func (sm *DisplayStateManager) SetPrograms(programs []models.Program) {
	fresh := make(map[string]models.Program, len(programs))
	for _, program := range programs {
		fresh[programKey(program.ID)] = program
	}
	for _, key := range sm.programs.Keys() {
		if _, keep := fresh[key]; !keep {
			sm.programs.Remove(key)
		}
	}
	sm.programs.MSet(fresh)
}

// Programs returns the cached programs ordered by ID.
func (sm *DisplayStateManager) Programs() []models.Program {
	programs := make([]models.Program, 0, sm.programs.Count())
	for _, program := range sm.programs.Items() {
		programs = append(programs, program)
	}
	sort.Slice(programs, func(i, j int) bool { return programs[i].ID < programs[j].ID })
	return programs
}

// ProgramName resolves a program ID from the cache.
func (sm *DisplayStateManager) ProgramName(id int64) (string, bool) {
	program, ok := sm.programs.Get(programKey(id))
	return program.Name, ok
}

// Subscribe registers for display updates. The returned channel always holds
// the newest snapshot; call Unsubscribe with the returned ID when done.
func (sm *DisplayStateManager) Subscribe() (string, <-chan models.DisplayState) {
	id := uuid.New().String()
	ch := make(chan models.DisplayState, 1)
	sm.subscribers.Set(id, ch)
	sm.logger.Debug().Str("subscriber", id).Msg("Display subscriber added")
	return id, ch
}

// Unsubscribe removes a subscriber.
func (sm *DisplayStateManager) Unsubscribe(id string) {
	sm.subscribers.Remove(id)
	sm.logger.Debug().Str("subscriber", id).Msg("Display subscriber removed")
}

func programKey(id int64) string {
	return strconv.FormatInt(id, 10)
}
