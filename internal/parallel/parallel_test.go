package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFor(t *testing.T) {
	configs := map[string]Config{
		"default":    DefaultConfig(),
		"sequential": {},
		"forced":     {Enabled: true, NumWorkers: 3, MinChunkSize: 1},
	}
	for name, cfg := range configs {
		t.Run(name, func(t *testing.T) {
			const n = 1000
			var counter int64
			seen := make([]int32, n)
			For(n, func(i int) {
				atomic.AddInt64(&counter, 1)
				atomic.AddInt32(&seen[i], 1)
			}, cfg)

			assert.EqualValues(t, n, counter)
			for i, v := range seen {
				assert.EqualValues(t, 1, v, "index %d", i)
			}
		})
	}
}

func TestForEmpty(t *testing.T) {
	For(0, func(int) { t.Fatal("called on empty range") }, DefaultConfig())
}

func TestForBatch(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 1}

	batch, channels := 4, 8
	results := make([][]bool, batch)
	for b := range results {
		results[b] = make([]bool, channels)
	}

	ForBatch(batch, channels, func(b, c int) {
		results[b][c] = true
	}, cfg)

	for b := range batch {
		for c := range channels {
			assert.True(t, results[b][c], "batch %d channel %d", b, c)
		}
	}
}
