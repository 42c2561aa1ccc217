package worker

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunProcessesEveryItem(t *testing.T) {
	var processed int64
	items := make([]int, 50)
	for i := range items {
		items[i] = i
	}

	Run(items, 4, func(int) {
		atomic.AddInt64(&processed, 1)
	})

	assert.Equal(t, int64(50), processed)
}

func TestRunDefaultsConcurrencyWhenNonPositive(t *testing.T) {
	var processed int64
	Run([]int{1, 2, 3}, 0, func(int) {
		atomic.AddInt64(&processed, 1)
	})
	assert.Equal(t, int64(3), processed)
}

func TestRunNoopOnEmptyInput(t *testing.T) {
	called := false
	Run([]int{}, 3, func(int) { called = true })
	assert.False(t, called)
}
