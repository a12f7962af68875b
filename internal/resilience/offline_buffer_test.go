package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOfflineBuffer_FlushReturnsInOrder(t *testing.T) {
	b := NewOfflineBuffer(func() time.Time { return time.Unix(0, 0) })
	b.Enqueue("u1", "frame-1")
	b.Enqueue("u1", "frame-2")
	b.Enqueue("u2", "other")

	flushed := b.Flush("u1")
	assert.Len(t, flushed, 2)
	assert.Equal(t, "frame-1", flushed[0].Frame)
	assert.Equal(t, "frame-2", flushed[1].Frame)
	assert.Equal(t, 1, b.Len())
}

func TestOfflineBuffer_DropsOldestBeyondCap(t *testing.T) {
	now := time.Unix(0, 0)
	b := NewOfflineBuffer(func() time.Time { return now })
	for i := 0; i < offlineBufferCap+5; i++ {
		b.Enqueue("u1", i)
	}
	assert.Equal(t, offlineBufferCap, b.Len())
}

func TestOfflineBuffer_EvictsByAge(t *testing.T) {
	now := time.Unix(0, 0)
	b := NewOfflineBuffer(func() time.Time { return now })
	b.Enqueue("u1", "old")
	now = now.Add(2 * time.Hour)
	b.Enqueue("u1", "new")

	flushed := b.Flush("u1")
	assert.Len(t, flushed, 1)
	assert.Equal(t, "new", flushed[0].Frame)
}
