package mocks

import (
	"time"

	"github.com/stretchr/testify/mock"
)

// MockToken stands in for the paho token returned by a mirror publish.
type MockToken struct {
	mock.Mock
}

// NewSettledToken returns a token whose publish has already completed with err.
// The mirror only waits with a timeout and then reads the error.
func NewSettledToken(err error) *MockToken {
	token := new(MockToken)
	token.On("WaitTimeout", mock.Anything).Return(true)
	token.On("Error").Return(err)
	return token
}

func (m *MockToken) Error() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockToken) Wait() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockToken) Done() <-chan struct{} {
	args := m.Called()
	return args.Get(0).(<-chan struct{})
}

// WaitTimeout records the publish wait so tests can assert the bound used.
func (m *MockToken) WaitTimeout(timeout time.Duration) bool {
	args := m.Called(timeout)
	return args.Bool(0)
}
