package parallel

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForEachSequentialMatchesParallel(t *testing.T) {
	n := 100

	sequential := make([]int, n)
	err := ForEach(n, func(i int) error {
		sequential[i] = i * i
		return nil
	}, Config{Enabled: false})
	require.NoError(t, err)

	parallel := make([]int, n)
	err = ForEach(n, func(i int) error {
		parallel[i] = i * i
		return nil
	}, Config{Enabled: true, NumWorkers: 4, MinItems: 2})
	require.NoError(t, err)

	assert.Equal(t, sequential, parallel)
}

func TestForEachPropagatesError(t *testing.T) {
	sentinel := errors.New("boom")

	err := ForEach(10, func(i int) error {
		if i == 7 {
			return sentinel
		}
		return nil
	}, Config{Enabled: true, NumWorkers: 4, MinItems: 2})
	assert.ErrorIs(t, err, sentinel)
}

func TestForEachSequentialStopsAtError(t *testing.T) {
	sentinel := errors.New("boom")

	var calls int
	err := ForEach(10, func(i int) error {
		calls++
		if i == 3 {
			return sentinel
		}
		return nil
	}, Config{Enabled: false})
	require.ErrorIs(t, err, sentinel)
	assert.Equal(t, 4, calls)
}

func TestForEachSmallInputStaysSequential(t *testing.T) {
	var maxSeen atomic.Int64

	// A single item never pays for a goroutine.
	err := ForEach(1, func(i int) error {
		maxSeen.Store(int64(i))
		return nil
	}, Config{Enabled: true, NumWorkers: 8, MinItems: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(0), maxSeen.Load())
}

func TestForEachZeroItems(t *testing.T) {
	err := ForEach(0, func(i int) error {
		t.Fatal("callback must not run")
		return nil
	}, DefaultConfig())
	assert.NoError(t, err)
}

func TestForEachRunsEveryItemOnce(t *testing.T) {
	n := 64
	counts := make([]atomic.Int32, n)

	err := ForEach(n, func(i int) error {
		counts[i].Add(1)
		return nil
	}, Config{Enabled: true, NumWorkers: 8, MinItems: 2})
	require.NoError(t, err)

	for i := range counts {
		assert.Equal(t, int32(1), counts[i].Load(), "item %d", i)
	}
}
