package services_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benmeehan/kiln-console/internal/constants"
	"github.com/benmeehan/kiln-console/internal/mocks"
	"github.com/benmeehan/kiln-console/internal/models"
	"github.com/benmeehan/kiln-console/internal/observability"
	"github.com/benmeehan/kiln-console/internal/services"
	"github.com/benmeehan/kiln-console/internal/state_managers"
	"github.com/benmeehan/kiln-console/pkg/device"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type viewFixture struct {
	server    *httptest.Server
	client    *mocks.MockDeviceClient
	state     *state_managers.DisplayStateManager
	refresher *refresherStub
}

func newViewFixture(t *testing.T) *viewFixture {
	t.Helper()
	client := new(mocks.MockDeviceClient)
	state := state_managers.NewDisplayStateManager(models.Viewport{Width: 640, Height: 320}, zerolog.Nop())
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	commands := services.NewCommandService(client, state, nil, metrics, zerolog.Nop())

	refresher := &refresherStub{}

	view := services.NewViewService("127.0.0.1:0", state, commands, refresher, client, reg, zerolog.Nop())
	server := httptest.NewServer(view.Handler())
	t.Cleanup(server.Close)

	return &viewFixture{server: server, client: client, state: state, refresher: refresher}
}

func (f *viewFixture) do(t *testing.T, method, path string, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// TestViewService_State tests the state endpoint before and after the first status.
func TestViewService_State(t *testing.T) {
	f := newViewFixture(t)

	resp := f.do(t, http.MethodGet, "/api/state", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Nil(t, body["display"])

	f.state.Publish(models.DeviceStatus{PV: 950}, models.DisplayState{PV: 950, Elapsed: "1:00:00"})

	resp = f.do(t, http.MethodGet, "/api/state", "")
	state := decode[struct {
		Display  models.DisplayState `json:"display"`
		Dialogs  models.Dialogs      `json:"dialogs"`
		Viewport models.Viewport     `json:"viewport"`
	}](t, resp)
	assert.Equal(t, 950.0, state.Display.PV)
	assert.Equal(t, models.DialogHidden, state.Dialogs.Programs)
	assert.Equal(t, 640, state.Viewport.Width)
}

// TestViewService_Graph tests that the frame is served once rendered.
func TestViewService_Graph(t *testing.T) {
	f := newViewFixture(t)

	resp := f.do(t, http.MethodGet, "/graph.png", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	f.state.PublishFrame([]byte("\x89PNG"))
	resp = f.do(t, http.MethodGet, "/graph.png", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), data)
}

// TestViewService_Viewport tests viewport updates and validation.
func TestViewService_Viewport(t *testing.T) {
	f := newViewFixture(t)

	resp := f.do(t, http.MethodPost, "/api/viewport", `{"width":800,"height":400}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.Viewport{Width: 800, Height: 400}, f.state.Viewport())

	resp = f.do(t, http.MethodPost, "/api/viewport", `{"width":0,"height":400}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = f.do(t, http.MethodPost, "/api/viewport", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, models.Viewport{Width: 800, Height: 400}, f.state.Viewport())
}

// TestViewService_Programs tests the cached list and the detail passthrough.
func TestViewService_Programs(t *testing.T) {
	f := newViewFixture(t)
	f.state.SetPrograms([]models.Program{{ID: 2, Name: "Bisque"}, {ID: 1, Name: "Glaze"}})
	f.client.On("FetchProgram", mock.Anything, int64(2)).
		Return(models.ProgramDetail{Name: "Bisque", Steps: []models.ProgramStep{{Instruction: "Ramp", Temperature: 600, Param: 3600}}}, nil)
	f.client.On("FetchProgram", mock.Anything, int64(3)).Return(models.ProgramDetail{}, device.ErrNetwork)

	list := decode[models.ProgramList](t, f.do(t, http.MethodGet, "/api/programs", ""))
	require.Len(t, list.Programs, 2)
	assert.Equal(t, int64(1), list.Programs[0].ID)

	detail := decode[models.ProgramDetail](t, f.do(t, http.MethodGet, "/api/programs/2", ""))
	assert.Equal(t, "Bisque", detail.Name)
	require.Len(t, detail.Steps, 1)

	assert.Equal(t, http.StatusBadGateway, f.do(t, http.MethodGet, "/api/programs/3", "").StatusCode)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/programs/abc", "").StatusCode)
}

// TestViewService_Dialogs tests dialog visibility toggles.
func TestViewService_Dialogs(t *testing.T) {
	f := newViewFixture(t)

	resp := f.do(t, http.MethodPost, "/api/dialogs/setpoint/show", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.DialogVisible, f.state.Dialogs().Setpoint)

	f.do(t, http.MethodPost, "/api/dialogs/setpoint/hide", "")
	assert.Equal(t, models.DialogHidden, f.state.Dialogs().Setpoint)
	assert.Equal(t, int32(0), f.refresher.calls.Load())

	f.do(t, http.MethodPost, "/api/dialogs/programs/show", "")
	assert.Equal(t, models.DialogVisible, f.state.Dialogs().Programs)
	assert.Equal(t, int32(1), f.refresher.calls.Load())

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/dialogs/bogus/show", "").StatusCode)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/dialogs/programs/toggle", "").StatusCode)
}

// TestViewService_Commands tests command routing and the confirm parameter.
func TestViewService_Commands(t *testing.T) {
	f := newViewFixture(t)
	active := int64(4)
	f.state.Publish(models.DeviceStatus{FiringID: &active, SegmentType: constants.SegmentPause}, models.DisplayState{})
	require.NoError(t, f.state.SetDialog(state_managers.DialogPrograms, models.DialogVisible))

	f.client.On("SendCommand", mock.Anything, models.Command{Code: constants.CommandResume}).Return(nil)
	f.client.On("SendCommand", mock.Anything, models.Command{Code: constants.CommandStop}).Return(nil)
	f.client.On("SendCommand", mock.Anything, models.Command{Code: constants.CommandSetpoint, P1: 700}).Return(device.ErrNetwork)
	f.client.On("SendCommand", mock.Anything, models.Command{Code: constants.CommandRunProgram, P1: 9, P2: 1}).Return(nil)

	tests := []struct {
		path    string
		code    int
		outcome constants.CommandOutcome
	}{
		{path: "/api/commands/pause", code: http.StatusOK, outcome: constants.OutcomeDispatched},
		{path: "/api/commands/stop", code: http.StatusOK, outcome: constants.OutcomeDeclined},
		{path: "/api/commands/stop?confirm=yes", code: http.StatusOK, outcome: constants.OutcomeDispatched},
		{path: "/api/commands/setpoint?value=700", code: http.StatusBadGateway, outcome: constants.OutcomeFailed},
		{path: "/api/commands/run?id=9", code: http.StatusOK, outcome: constants.OutcomeDeclined},
		{path: "/api/commands/run?id=9&confirm=yes", code: http.StatusOK, outcome: constants.OutcomeDispatched},
		{path: "/api/commands/delete?id=9", code: http.StatusOK, outcome: constants.OutcomeDeclined},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp := f.do(t, http.MethodPost, tt.path, "")
			assert.Equal(t, tt.code, resp.StatusCode)
			body := decode[map[string]string](t, resp)
			assert.Equal(t, string(tt.outcome), body["outcome"])
		})
	}

	assert.Equal(t, models.DialogHidden, f.state.Dialogs().Programs)
	f.client.AssertExpectations(t)
	f.client.AssertNotCalled(t, "DeleteProgram", mock.Anything, mock.Anything)
}

// TestViewService_CommandValidation tests rejected command requests.
func TestViewService_CommandValidation(t *testing.T) {
	f := newViewFixture(t)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/commands/setpoint?value=hot", "").StatusCode)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/commands/run", "").StatusCode)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/commands/explode", "").StatusCode)
	assert.Equal(t, http.StatusMethodNotAllowed, f.do(t, http.MethodGet, "/api/commands/stop", "").StatusCode)
	f.client.AssertNotCalled(t, "SendCommand", mock.Anything, mock.Anything)
}

// TestViewService_Websocket tests that the stream starts with the current state and follows publishes.
func TestViewService_Websocket(t *testing.T) {
	f := newViewFixture(t)
	f.state.Publish(models.DeviceStatus{}, models.DisplayState{PV: 100})

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var got models.DisplayState
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, 100.0, got.PV)

	f.state.Publish(models.DeviceStatus{}, models.DisplayState{PV: 200})
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, 200.0, got.PV)
}

// TestViewService_Metrics tests that the engine registry is exposed.
func TestViewService_Metrics(t *testing.T) {
	f := newViewFixture(t)
	f.do(t, http.MethodPost, "/api/commands/pause", "")

	resp := f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `kiln_commands_total{command="pause",outcome="skipped"} 1`)
}

// TestViewService_StartStop tests the listener lifecycle.
func TestViewService_StartStop(t *testing.T) {
	state := state_managers.NewDisplayStateManager(models.Viewport{Width: 640, Height: 320}, zerolog.Nop())
	view := services.NewViewService("127.0.0.1:0", state, nil, nil, new(mocks.MockDeviceClient), prometheus.NewRegistry(), zerolog.Nop())

	assert.Error(t, view.Stop())
	require.NoError(t, view.Start())
	assert.Error(t, view.Start())
	require.NoError(t, view.Stop())
}
