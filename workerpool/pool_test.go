package workerpool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSubmitRunsTask(t *testing.T) {
	p := New(2)
	defer p.Stop()

	done := make(chan struct{})
	err := p.Submit(func() { close(done) })
	assert.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not run")
	}
}

func TestNewClampsToOne(t *testing.T) {
	p := New(0)
	defer p.Stop()

	var n int32
	err := p.Submit(func() { atomic.AddInt32(&n, 1) })
	assert.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&n))
}

func TestPoolRunsTasksConcurrently(t *testing.T) {
	p := New(4)
	defer p.Stop()

	var wg sync.WaitGroup
	var count int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		err := p.Submit(func() {
			defer wg.Done()
			atomic.AddInt32(&count, 1)
		})
		assert.NoError(t, err)
	}
	wg.Wait()
	assert.EqualValues(t, 10, atomic.LoadInt32(&count))
}

func TestInvokeRecoversPanic(t *testing.T) {
	p := New(1)
	defer p.Stop()

	done := make(chan struct{})
	err := p.Submit(func() {
		defer close(done)
		panic("boom")
	})
	assert.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("panicking task should not crash the worker")
	}

	// pool must still accept work after a panic.
	done2 := make(chan struct{})
	err = p.Submit(func() { close(done2) })
	assert.NoError(t, err)
	select {
	case <-done2:
	case <-time.After(time.Second):
		t.Fatal("pool stopped accepting work after a panic")
	}
}

func TestSubmitAfterStopErrors(t *testing.T) {
	p := New(1)
	p.Stop()
	time.Sleep(10 * time.Millisecond)

	// Submit selects between the task channel and the done channel, so
	// a buffered slot can still win the race once; Stop is reliably
	// observed within a handful of attempts.
	var sawErr bool
	for i := 0; i < 300 && !sawErr; i++ {
		if err := p.Submit(func() {}); err != nil {
			sawErr = true
		}
	}
	assert.True(t, sawErr, "submit after stop should eventually error")
}
