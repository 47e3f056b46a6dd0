package mocks

import (
	"context"

	"github.com/benmeehan/kiln-console/internal/models"
	"github.com/stretchr/testify/mock"
)

// MockDeviceClient is a mock implementation of the device.Client interface
type MockDeviceClient struct {
	mock.Mock
}

func (m *MockDeviceClient) FetchStatus(ctx context.Context) (models.DeviceStatus, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.DeviceStatus), args.Error(1)
}

func (m *MockDeviceClient) FetchHistory(ctx context.Context, windowSeconds int64) (models.History, error) {
	args := m.Called(ctx, windowSeconds)
	return args.Get(0).(models.History), args.Error(1)
}

func (m *MockDeviceClient) FetchPrograms(ctx context.Context) ([]models.Program, error) {
	args := m.Called(ctx)
	programs, _ := args.Get(0).([]models.Program)
	return programs, args.Error(1)
}

func (m *MockDeviceClient) FetchProgram(ctx context.Context, id int64) (models.ProgramDetail, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.ProgramDetail), args.Error(1)
}

func (m *MockDeviceClient) SendCommand(ctx context.Context, cmd models.Command) error {
	args := m.Called(ctx, cmd)
	return args.Error(0)
}

func (m *MockDeviceClient) DeleteProgram(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
