package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockConfirmer is a mock implementation of the services.Confirmer interface
type MockConfirmer struct {
	mock.Mock
}

func (m *MockConfirmer) Confirm(ctx context.Context, prompt string) (bool, error) {
	args := m.Called(ctx, prompt)
	return args.Bool(0), args.Error(1)
}
