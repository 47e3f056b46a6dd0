package services

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/benmeehan/kiln-console/internal/constants"
	"github.com/benmeehan/kiln-console/internal/models"
	"github.com/benmeehan/kiln-console/internal/state_managers"
	"github.com/benmeehan/kiln-console/pkg/device"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	wsWriteWait     = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type stateResponse struct {
	Display  *models.DisplayState `json:"display"`
	Dialogs  models.Dialogs       `json:"dialogs"`
	Viewport models.Viewport      `json:"viewport"`
}

type commandResponse struct {
	Command string                   `json:"command"`
	Outcome constants.CommandOutcome `json:"outcome"`
}

// ViewService serves the console over HTTP: state as JSON, the graph as PNG,
// operator commands, a websocket feed of display updates and metrics.
type ViewService struct {
	listen   string
	state    *state_managers.DisplayStateManager
	commands *CommandService
	programs ProgramRefresher
	client   device.Client
	gatherer prometheus.Gatherer
	logger   zerolog.Logger

	mux *http.ServeMux

	mu       sync.Mutex
	server   *http.Server
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewViewService builds the HTTP handlers. Nothing listens until Start. Showing
// the programs dialog asks programs, when set, to reload the list.
func NewViewService(
	listen string,
	state *state_managers.DisplayStateManager,
	commands *CommandService,
	programs ProgramRefresher,
	client device.Client,
	gatherer prometheus.Gatherer,
	logger zerolog.Logger,
) *ViewService {
	v := &ViewService{
		listen:   listen,
		state:    state,
		commands: commands,
		programs: programs,
		client:   client,
		gatherer: gatherer,
		logger:   logger,
		done:     make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/state", v.handleState)
	mux.HandleFunc("GET /graph.png", v.handleGraph)
	mux.HandleFunc("POST /api/viewport", v.handleViewport)
	mux.HandleFunc("GET /api/programs", v.handlePrograms)
	mux.HandleFunc("GET /api/programs/{id}", v.handleProgram)
	mux.HandleFunc("POST /api/dialogs/{name}/{action}", v.handleDialog)
	mux.HandleFunc("POST /api/commands/{command}", v.handleCommand)
	mux.HandleFunc("GET /ws", v.handleWebsocket)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	v.mux = mux

	return v
}

// Handler returns the console's HTTP handler.
func (v *ViewService) Handler() http.Handler {
	return v.mux
}

// Start listens on the configured address and serves in the background.
func (v *ViewService) Start() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.server != nil {
		v.logger.Warn().Msg("ViewService is already running")
		return errors.New("view service is already running")
	}

	ln, err := net.Listen("tcp", v.listen)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: v.mux, ReadHeaderTimeout: 5 * time.Second}
	v.server = srv

	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			v.logger.Error().Err(err).Msg("View server stopped")
		}
	}()

	v.logger.Info().Str("listen", ln.Addr().String()).Msg("ViewService started successfully")
	return nil
}

// Stop shuts the server down and closes websocket streams.
func (v *ViewService) Stop() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.server == nil {
		v.logger.Warn().Msg("ViewService is not running")
		return errors.New("view service is not running")
	}

	v.stopOnce.Do(func() { close(v.done) })

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := v.server.Shutdown(ctx)
	v.wg.Wait()
	v.server = nil
	if err != nil {
		return err
	}

	v.logger.Info().Msg("ViewService stopped successfully")
	return nil
}

func (v *ViewService) handleState(w http.ResponseWriter, r *http.Request) {
	resp := stateResponse{
		Dialogs:  v.state.Dialogs(),
		Viewport: v.state.Viewport(),
	}
	if display, ok := v.state.Display(); ok {
		resp.Display = &display
	}
	v.writeJSON(w, http.StatusOK, resp)
}

func (v *ViewService) handleGraph(w http.ResponseWriter, r *http.Request) {
	frame, ok := v.state.Frame()
	if !ok {
		http.Error(w, "no frame rendered yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(frame); err != nil {
		v.logger.Debug().Err(err).Msg("Write graph frame")
	}
}

func (v *ViewService) handleViewport(w http.ResponseWriter, r *http.Request) {
	var viewport models.Viewport
	if err := json.NewDecoder(r.Body).Decode(&viewport); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if err := v.state.SetViewport(viewport); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	v.writeJSON(w, http.StatusOK, viewport)
}

func (v *ViewService) handlePrograms(w http.ResponseWriter, r *http.Request) {
	v.writeJSON(w, http.StatusOK, models.ProgramList{Programs: v.state.Programs()})
}

func (v *ViewService) handleProgram(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid program id", http.StatusBadRequest)
		return
	}

	detail, err := v.client.FetchProgram(r.Context(), id)
	if err != nil {
		v.logger.Warn().Err(err).Int64("program_id", id).Msg("Failed to fetch program")
		http.Error(w, "controller unavailable", http.StatusBadGateway)
		return
	}
	v.writeJSON(w, http.StatusOK, detail)
}

func (v *ViewService) handleDialog(w http.ResponseWriter, r *http.Request) {
	var state models.DialogState
	switch r.PathValue("action") {
	case "show":
		state = models.DialogVisible
	case "hide":
		state = models.DialogHidden
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
		return
	}

	name := r.PathValue("name")
	if err := v.state.SetDialog(name, state); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if name == state_managers.DialogPrograms && state == models.DialogVisible && v.programs != nil {
		v.programs.RequestPrograms()
	}
	v.writeJSON(w, http.StatusOK, v.state.Dialogs())
}

func (v *ViewService) handleCommand(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	confirm := ConfirmFunc(func(context.Context, string) (bool, error) {
		return query.Get("confirm") == "yes", nil
	})

	command := r.PathValue("command")
	var outcome constants.CommandOutcome
	switch command {
	case "stop":
		outcome = v.commands.Stop(r.Context(), confirm)
	case "pause":
		outcome = v.commands.PauseOrResume(r.Context())
	case "setpoint":
		value, err := strconv.ParseFloat(query.Get("value"), 64)
		if err != nil {
			http.Error(w, "invalid setpoint value", http.StatusBadRequest)
			return
		}
		outcome = v.commands.SetSetpoint(r.Context(), value)
		if outcome == constants.OutcomeDispatched {
			v.hideDialog(state_managers.DialogSetpoint)
		}
	case "run", "delete":
		id, err := strconv.ParseInt(query.Get("id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid program id", http.StatusBadRequest)
			return
		}
		if command == "run" {
			outcome = v.commands.RunProgram(r.Context(), id, confirm)
			if outcome == constants.OutcomeDispatched {
				v.hideDialog(state_managers.DialogPrograms)
			}
		} else {
			outcome = v.commands.DeleteProgram(r.Context(), id, confirm)
		}
	default:
		http.Error(w, "unknown command", http.StatusNotFound)
		return
	}

	code := http.StatusOK
	if outcome == constants.OutcomeFailed {
		code = http.StatusBadGateway
	}
	v.writeJSON(w, code, commandResponse{Command: command, Outcome: outcome})
}

func (v *ViewService) hideDialog(name string) {
	if err := v.state.SetDialog(name, models.DialogHidden); err != nil {
		v.logger.Warn().Err(err).Str("dialog", name).Msg("Failed to hide dialog")
	}
}

// handleWebsocket streams every published display state until the client goes away.
func (v *ViewService) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		v.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	id, updates := v.state.Subscribe()
	defer v.state.Unsubscribe(id)

	// Reads only detect the peer closing.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if display, ok := v.state.Display(); ok {
		if err := v.writeDisplay(conn, display); err != nil {
			return
		}
	}

	for {
		select {
		case display := <-updates:
			if err := v.writeDisplay(conn, display); err != nil {
				v.logger.Debug().Err(err).Str("subscriber", id).Msg("Websocket write failed")
				return
			}
		case <-closed:
			return
		case <-v.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(wsWriteWait))
			return
		}
	}
}

func (v *ViewService) writeDisplay(conn *websocket.Conn, display models.DisplayState) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(display)
}

func (v *ViewService) writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		v.logger.Error().Err(err).Msg("Encode response")
	}
}
