package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPutThenGetReturnsItem(t *testing.T) {
	q := New()
	q.Put("a")
	item, ok := q.Get(100 * time.Millisecond)
	assert.True(t, ok)
	assert.Equal(t, "a", item)
}

func TestGetTimesOutWhenEmpty(t *testing.T) {
	q := New()
	start := time.Now()
	_, ok := q.Get(30 * time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestGetIsFIFO(t *testing.T) {
	q := New()
	q.Put(1)
	q.Put(2)
	q.Put(3)

	for _, want := range []int{1, 2, 3} {
		item, ok := q.Get(100 * time.Millisecond)
		assert.True(t, ok)
		assert.Equal(t, want, item)
	}
}

func TestGetWakesOnLatePut(t *testing.T) {
	q := New()
	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Put("late")
	}()

	item, ok := q.Get(500 * time.Millisecond)
	assert.True(t, ok)
	assert.Equal(t, "late", item)
}

func TestLenTracksSize(t *testing.T) {
	q := New()
	assert.Equal(t, 0, q.Len())
	q.Put("a")
	q.Put("b")
	assert.Equal(t, 2, q.Len())
	q.Get(time.Millisecond)
	assert.Equal(t, 1, q.Len())
}

func TestAdmitPenalizedResetsBelowOne(t *testing.T) {
	q := New()
	q.InitAdmission(2)

	reset := q.AdmitPenalized(5)
	assert.False(t, reset)
	assert.Equal(t, 1, q.Admission())

	reset = q.AdmitPenalized(5)
	assert.True(t, reset, "counter fell below 1 and must reset")
	assert.Equal(t, 5, q.Admission())

	reset = q.AdmitPenalized(5)
	assert.False(t, reset)
	assert.Equal(t, 4, q.Admission())
}

func TestConcurrentPutIsSafe(t *testing.T) {
	q := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			q.Put(n)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, q.Len())
}
