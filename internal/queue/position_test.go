package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecomputePositions_ContiguousAndSkipsInProgress(t *testing.T) {
	base := time.Now()
	entries := []*Entry{
		{ID: "a", CreatedAt: base, Status: StatusInProgress},
		{ID: "b", CreatedAt: base.Add(time.Minute), Status: StatusWaiting},
		{ID: "c", CreatedAt: base.Add(2 * time.Minute), Status: StatusNotified},
	}

	RecomputePositions(entries)

	assert.Equal(t, 0, entries[0].Position)
	assert.Equal(t, 1, entries[1].Position)
	assert.Equal(t, 0, entries[1].EstimatedWaitMinutes)
	assert.Equal(t, 2, entries[2].Position)
	assert.Equal(t, 30, entries[2].EstimatedWaitMinutes)
}

func TestRecomputePositions_ReturnsOnlyChanged(t *testing.T) {
	base := time.Now()
	entries := []*Entry{
		{ID: "a", CreatedAt: base, Status: StatusWaiting, Position: 1, EstimatedWaitMinutes: 0},
		{ID: "b", CreatedAt: base.Add(time.Minute), Status: StatusWaiting, Position: 99, EstimatedWaitMinutes: 99},
	}

	changed := RecomputePositions(entries)

	assert.Len(t, changed, 1)
	assert.Equal(t, "b", changed[0].ID)
}
