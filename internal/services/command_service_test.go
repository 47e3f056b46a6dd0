package services_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/benmeehan/kiln-console/internal/constants"
	"github.com/benmeehan/kiln-console/internal/mocks"
	"github.com/benmeehan/kiln-console/internal/models"
	"github.com/benmeehan/kiln-console/internal/observability"
	"github.com/benmeehan/kiln-console/internal/services"
	"github.com/benmeehan/kiln-console/internal/state_managers"
	"github.com/benmeehan/kiln-console/pkg/device"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type refresherStub struct {
	calls atomic.Int32
}

func (r *refresherStub) RequestPrograms() { r.calls.Add(1) }

type commandFixture struct {
	service   *services.CommandService
	client    *mocks.MockDeviceClient
	confirmer *mocks.MockConfirmer
	state     *state_managers.DisplayStateManager
	refresher *refresherStub
	metrics   *observability.Metrics
}

func newCommandFixture() *commandFixture {
	client := new(mocks.MockDeviceClient)
	state := state_managers.NewDisplayStateManager(models.Viewport{Width: 640, Height: 320}, zerolog.Nop())
	refresher := &refresherStub{}
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	return &commandFixture{
		service:   services.NewCommandService(client, state, refresher, metrics, zerolog.Nop()),
		client:    client,
		confirmer: new(mocks.MockConfirmer),
		state:     state,
		refresher: refresher,
		metrics:   metrics,
	}
}

func (f *commandFixture) publish(status models.DeviceStatus) {
	f.state.Publish(status, models.DisplayState{})
}

func activeFiring(id int64) *int64 { return &id }

// TestCommandService_ResumeWhenPaused tests that a paused controller is resumed with cmd=6.
func TestCommandService_ResumeWhenPaused(t *testing.T) {
	// Setup
	f := newCommandFixture()
	f.publish(models.DeviceStatus{SegmentType: constants.SegmentPause, FiringID: activeFiring(7)})
	f.client.On("SendCommand", mock.Anything, models.Command{Code: constants.CommandResume, P1: 0, P2: 0}).Return(nil)

	// Execute
	outcome := f.service.PauseOrResume(context.Background())

	// Assert
	assert.Equal(t, constants.OutcomeDispatched, outcome)
	f.client.AssertExpectations(t)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Commands.WithLabelValues("resume", "dispatched")))
}

// TestCommandService_PauseWhenRunning tests that a non-pause segment is paused with cmd=5.
func TestCommandService_PauseWhenRunning(t *testing.T) {
	f := newCommandFixture()
	f.publish(models.DeviceStatus{SegmentType: 1, FiringID: activeFiring(7)})
	f.client.On("SendCommand", mock.Anything, models.Command{Code: constants.CommandPause}).Return(nil)

	assert.Equal(t, constants.OutcomeDispatched, f.service.PauseOrResume(context.Background()))
	f.client.AssertExpectations(t)
}

// TestCommandService_PauseWithoutStatus tests that nothing is sent before the first status.
func TestCommandService_PauseWithoutStatus(t *testing.T) {
	f := newCommandFixture()

	assert.Equal(t, constants.OutcomeSkipped, f.service.PauseOrResume(context.Background()))
	f.client.AssertNotCalled(t, "SendCommand", mock.Anything, mock.Anything)
}

// TestCommandService_StopIdleSkipsWithoutConfirmation tests that stopping an idle controller does nothing.
func TestCommandService_StopIdleSkipsWithoutConfirmation(t *testing.T) {
	for _, firingID := range []*int64{nil, activeFiring(0)} {
		f := newCommandFixture()
		f.publish(models.DeviceStatus{SegmentType: 0, FiringID: firingID})

		outcome := f.service.Stop(context.Background(), f.confirmer)

		assert.Equal(t, constants.OutcomeSkipped, outcome)
		f.confirmer.AssertNotCalled(t, "Confirm", mock.Anything, mock.Anything)
		f.client.AssertNotCalled(t, "SendCommand", mock.Anything, mock.Anything)
	}
}

// TestCommandService_StopConfirmed tests that an active firing is stopped after confirmation.
func TestCommandService_StopConfirmed(t *testing.T) {
	f := newCommandFixture()
	f.publish(models.DeviceStatus{FiringID: activeFiring(3)})
	f.confirmer.On("Confirm", mock.Anything, mock.AnythingOfType("string")).Return(true, nil)
	f.client.On("SendCommand", mock.Anything, models.Command{Code: constants.CommandStop}).Return(nil)

	assert.Equal(t, constants.OutcomeDispatched, f.service.Stop(context.Background(), f.confirmer))
	f.confirmer.AssertExpectations(t)
	f.client.AssertExpectations(t)
}

// TestCommandService_StopDeclined tests that declining or failing confirmation aborts with no request.
func TestCommandService_StopDeclined(t *testing.T) {
	tests := []struct {
		name string
		yes  bool
		err  error
	}{
		{name: "declined", yes: false},
		{name: "confirmer error", yes: true, err: errors.New("prompt closed")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCommandFixture()
			f.publish(models.DeviceStatus{FiringID: activeFiring(3)})
			f.confirmer.On("Confirm", mock.Anything, mock.Anything).Return(tt.yes, tt.err)

			assert.Equal(t, constants.OutcomeDeclined, f.service.Stop(context.Background(), f.confirmer))
			f.client.AssertNotCalled(t, "SendCommand", mock.Anything, mock.Anything)
		})
	}
}

// TestCommandService_StopNilConfirmer tests that a missing confirmer counts as declined.
func TestCommandService_StopNilConfirmer(t *testing.T) {
	f := newCommandFixture()
	f.publish(models.DeviceStatus{FiringID: activeFiring(3)})

	assert.Equal(t, constants.OutcomeDeclined, f.service.Stop(context.Background(), nil))
}

// TestCommandService_SetSetpoint tests that the value is rounded to whole degrees.
func TestCommandService_SetSetpoint(t *testing.T) {
	f := newCommandFixture()
	f.client.On("SendCommand", mock.Anything, models.Command{Code: constants.CommandSetpoint, P1: 1223}).Return(nil)

	assert.Equal(t, constants.OutcomeDispatched, f.service.SetSetpoint(context.Background(), 1222.5))
	f.client.AssertExpectations(t)
}

// TestCommandService_SetSetpointRoundsHalfUp tests that halves round toward positive infinity.
func TestCommandService_SetSetpointRoundsHalfUp(t *testing.T) {
	tests := []struct {
		value float64
		want  int64
	}{
		{value: 1222.4, want: 1222},
		{value: 0.5, want: 1},
		{value: -1.5, want: -1},
		{value: -2.6, want: -3},
	}

	for _, tt := range tests {
		f := newCommandFixture()
		f.client.On("SendCommand", mock.Anything, models.Command{Code: constants.CommandSetpoint, P1: tt.want}).Return(nil)

		assert.Equal(t, constants.OutcomeDispatched, f.service.SetSetpoint(context.Background(), tt.value))
		f.client.AssertExpectations(t)
	}
}

// TestCommandService_SetSetpointRejectsNaN tests that non-finite values are never sent.
func TestCommandService_SetSetpointRejectsNaN(t *testing.T) {
	f := newCommandFixture()
	var zero float64

	assert.Equal(t, constants.OutcomeFailed, f.service.SetSetpoint(context.Background(), zero/zero))
	f.client.AssertNotCalled(t, "SendCommand", mock.Anything, mock.Anything)
}

// TestCommandService_RunProgram tests confirmation rules for starting a program.
func TestCommandService_RunProgram(t *testing.T) {
	tests := []struct {
		name        string
		status      *models.DeviceStatus
		wantConfirm bool
	}{
		{name: "idle", status: &models.DeviceStatus{}, wantConfirm: false},
		{name: "same program running", status: &models.DeviceStatus{FiringID: activeFiring(12)}, wantConfirm: false},
		{name: "different program running", status: &models.DeviceStatus{FiringID: activeFiring(4)}, wantConfirm: true},
		{name: "state unknown", status: nil, wantConfirm: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCommandFixture()
			if tt.status != nil {
				f.publish(*tt.status)
			}
			f.confirmer.On("Confirm", mock.Anything, mock.Anything).Return(true, nil)
			f.client.On("SendCommand", mock.Anything, models.Command{Code: constants.CommandRunProgram, P1: 12, P2: 1}).Return(nil)

			assert.Equal(t, constants.OutcomeDispatched, f.service.RunProgram(context.Background(), 12, f.confirmer))
			if tt.wantConfirm {
				f.confirmer.AssertNumberOfCalls(t, "Confirm", 1)
			} else {
				f.confirmer.AssertNotCalled(t, "Confirm", mock.Anything, mock.Anything)
			}
		})
	}
}

// TestCommandService_RunProgramDeclined tests that declining leaves the running program alone.
func TestCommandService_RunProgramDeclined(t *testing.T) {
	f := newCommandFixture()
	f.publish(models.DeviceStatus{FiringID: activeFiring(4)})
	f.confirmer.On("Confirm", mock.Anything, mock.Anything).Return(false, nil)

	assert.Equal(t, constants.OutcomeDeclined, f.service.RunProgram(context.Background(), 12, f.confirmer))
	f.client.AssertNotCalled(t, "SendCommand", mock.Anything, mock.Anything)
}

// TestCommandService_DispatchFailureAbsorbed tests that network failures are reported as an outcome.
func TestCommandService_DispatchFailureAbsorbed(t *testing.T) {
	f := newCommandFixture()
	f.client.On("SendCommand", mock.Anything, mock.Anything).Return(device.ErrNetwork)

	assert.Equal(t, constants.OutcomeFailed, f.service.SetSetpoint(context.Background(), 500))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Commands.WithLabelValues("setpoint", "failed")))
}

// TestCommandService_DeleteProgram tests that a confirmed delete reloads the program list.
func TestCommandService_DeleteProgram(t *testing.T) {
	f := newCommandFixture()
	f.confirmer.On("Confirm", mock.Anything, "Delete program 9?").Return(true, nil)
	f.client.On("DeleteProgram", mock.Anything, int64(9)).Return(nil)

	assert.Equal(t, constants.OutcomeDispatched, f.service.DeleteProgram(context.Background(), 9, f.confirmer))
	assert.Equal(t, int32(1), f.refresher.calls.Load())
	f.client.AssertExpectations(t)
}

// TestCommandService_DeleteProgramDeclinedOrFailed tests the delete paths that leave the list alone.
func TestCommandService_DeleteProgramDeclinedOrFailed(t *testing.T) {
	f := newCommandFixture()
	f.confirmer.On("Confirm", mock.Anything, mock.Anything).Return(false, nil).Once()
	assert.Equal(t, constants.OutcomeDeclined, f.service.DeleteProgram(context.Background(), 9, f.confirmer))

	f.confirmer.On("Confirm", mock.Anything, mock.Anything).Return(true, nil)
	f.client.On("DeleteProgram", mock.Anything, int64(9)).Return(device.ErrNetwork)
	assert.Equal(t, constants.OutcomeFailed, f.service.DeleteProgram(context.Background(), 9, f.confirmer))

	assert.Equal(t, int32(0), f.refresher.calls.Load())
}

// TestConfirmFunc tests the function adapter.
func TestConfirmFunc(t *testing.T) {
	var got string
	confirm := services.ConfirmFunc(func(ctx context.Context, prompt string) (bool, error) {
		got = prompt
		return true, nil
	})

	yes, err := confirm.Confirm(context.Background(), "sure?")
	assert.NoError(t, err)
	assert.True(t, yes)
	assert.Equal(t, "sure?", got)
}
