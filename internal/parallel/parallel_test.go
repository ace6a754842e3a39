package parallel

import (
	"sync/atomic"
	"testing"
)

func TestForCoversEveryIndex(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 8}

	const n = 1000
	var hits [n]int32
	For(n, func(i int) {
		atomic.AddInt32(&hits[i], 1)
	}, cfg)

	for i, h := range hits {
		if h != 1 {
			t.Fatalf("index %d executed %d times, want 1", i, h)
		}
	}
}

func TestForSequentialFallback(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 64}

	// Below MinChunkSize the loop must run inline, in order.
	var order []int
	For(10, func(i int) {
		order = append(order, i)
	}, cfg)

	if len(order) != 10 {
		t.Fatalf("expected 10 iterations, got %d", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("small loops should run sequentially, got order %v", order)
		}
	}
}

func TestForDisabled(t *testing.T) {
	cfg := Config{Enabled: false}

	count := 0
	For(200, func(int) { count++ }, cfg)
	if count != 200 {
		t.Fatalf("expected 200 iterations, got %d", count)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.NumWorkers < 1 {
		t.Fatalf("NumWorkers = %d, want >= 1", cfg.NumWorkers)
	}
	if cfg.MinChunkSize < 1 {
		t.Fatalf("MinChunkSize = %d, want >= 1", cfg.MinChunkSize)
	}
}
