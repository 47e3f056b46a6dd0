package utils

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkerPool_RunsSubmittedJobs(t *testing.T) {
	pool := NewWorkerPool(2)
	var count atomic.Int32

	for i := 0; i < 2; i++ {
		assert.True(t, pool.TrySubmit("count", func() { count.Add(1) }))
	}
	pool.Shutdown()

	assert.Equal(t, int32(2), count.Load())
}

func TestWorkerPool_TrySubmitWhenFull(t *testing.T) {
	pool := NewWorkerPool(1)
	release := make(chan struct{})
	started := make(chan struct{})

	assert.True(t, pool.TrySubmit("block", func() {
		close(started)
		<-release
	}))
	<-started
	assert.True(t, pool.TrySubmit("queued", func() {}))
	assert.False(t, pool.TrySubmit("overflow", func() {}))

	close(release)
	pool.Shutdown()
}

func TestWorkerPool_TrySubmitAfterShutdown(t *testing.T) {
	pool := NewWorkerPool(1)
	pool.Shutdown()
	pool.Shutdown()

	assert.False(t, pool.TrySubmit("late", func() {}))
}
