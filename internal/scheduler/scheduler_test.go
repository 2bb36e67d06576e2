package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type blockingLoop struct {
	name    string
	stopped atomic.Bool
}

func (l *blockingLoop) Name() string { return l.name }

func (l *blockingLoop) Run(ctx context.Context) error {
	<-ctx.Done()
	l.stopped.Store(true)
	return nil
}

type failingLoop struct{ err error }

func (l failingLoop) Name() string { return "failing" }

func (l failingLoop) Run(context.Context) error { return l.err }

func TestRun_CancelStopsAllLoops(t *testing.T) {
	a, b := &blockingLoop{name: "a"}, &blockingLoop{name: "b"}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- Run(ctx, a, b) }()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not return")
	}
	assert.True(t, a.stopped.Load())
	assert.True(t, b.stopped.Load())
}

func TestRun_FatalErrorCancelsSiblings(t *testing.T) {
	fatal := errors.New("hardware lost")
	sibling := &blockingLoop{name: "sibling"}

	err := Run(context.Background(), sibling, failingLoop{err: fatal})

	assert.ErrorIs(t, err, fatal)
	assert.Contains(t, err.Error(), "failing loop")
	assert.True(t, sibling.stopped.Load())
}
