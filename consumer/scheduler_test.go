package consumer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeSlicesSumsToWindow(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5, 8} {
		slices := computeSlices(n, weightWindowSeconds, weightBase)
		require.Len(t, slices, n)
		var sum float64
		for _, s := range slices {
			sum += s
		}
		assert.InDelta(t, weightWindowSeconds, sum, 1e-6, "n=%d", n)
	}
}

func TestComputeSlicesConsecutiveRatio(t *testing.T) {
	slices := computeSlices(4, weightWindowSeconds, weightBase)
	for i := 0; i < len(slices)-1; i++ {
		ratio := slices[i] / slices[i+1]
		assert.True(t, math.Abs(ratio-weightBase) < 1e-9, "ratio at %d = %f", i, ratio)
	}
}

func TestComputeSlicesMonotonicDecreasing(t *testing.T) {
	slices := computeSlices(5, weightWindowSeconds, weightBase)
	for i := 0; i < len(slices)-1; i++ {
		assert.Greater(t, slices[i], slices[i+1])
	}
}

func TestComputeSlicesSingleTopicGetsWholeWindow(t *testing.T) {
	slices := computeSlices(1, weightWindowSeconds, weightBase)
	require.Len(t, slices, 1)
	assert.InDelta(t, weightWindowSeconds, slices[0], 1e-9)
}

func TestSchedulerAddRemoveInputTopic(t *testing.T) {
	s := &Scheduler{lastCounts: make(map[string]int)}
	s.AddInputTopic("a")
	s.AddInputTopic("b")
	s.AddInputTopic("a") // duplicate, no-op
	assert.Equal(t, []string{"a", "b"}, s.topics)
	assert.True(t, s.isChanged())

	_ = s.snapshotTopics()
	assert.False(t, s.isChanged())

	s.RemoveInputTopic("a")
	assert.Equal(t, []string{"b"}, s.topics)
	assert.True(t, s.isChanged())
}
