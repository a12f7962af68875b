package sweeper

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/waitline/queuecoord/internal/clock"
)

func TestRunner_RunsImmediatelyThenOnInterval(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	var runs int32

	r := NewRunner("test", time.Minute, fc, func(ctx context.Context) {
		atomic.AddInt32(&runs, 1)
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.Start(ctx)
	}()

	waitForCount(t, &runs, 1)
	fc.Advance(time.Minute)
	waitForCount(t, &runs, 2)
	fc.Advance(2 * time.Minute)
	waitForCount(t, &runs, 3)

	cancel()
	wg.Wait()
}

func waitForCount(t *testing.T, counter *int32, want int32) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(counter) >= want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	assert.GreaterOrEqual(t, atomic.LoadInt32(counter), want)
}
