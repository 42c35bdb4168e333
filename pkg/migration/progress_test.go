package migration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgress_Lifecycle(t *testing.T) {
	p := NewProgress(StageNotes)
	assert.Equal(t, StatusPending, p.Snapshot().Status)

	var updates []ProgressSnapshot
	p.SetOnUpdate(func(s ProgressSnapshot) { updates = append(updates, s) })

	p.Start(4)
	p.RecordMigrated()
	p.RecordSkipped()
	p.RecordMigrated()
	p.RecordPersisted(2)

	snap := p.Snapshot()
	assert.Equal(t, StageNotes, snap.Stage)
	assert.Equal(t, StatusRunning, snap.Status)
	assert.Equal(t, 4, snap.Total)
	assert.Equal(t, 3, snap.Processed)
	assert.Equal(t, 2, snap.Migrated)
	assert.Equal(t, 1, snap.Skipped)
	assert.Equal(t, 2, snap.Persisted)
	assert.InDelta(t, 75.0, snap.PercentComplete(), 1e-9)
	assert.False(t, snap.IsComplete())
	require.NotNil(t, snap.EstimatedRemainingSeconds)

	p.RecordSkipped()
	p.Complete(true)
	snap = p.Snapshot()
	assert.True(t, snap.IsComplete())
	assert.Equal(t, StatusCompleted, snap.Status)

	require.Len(t, updates, 7)
	assert.Equal(t, StatusCompleted, updates[6].Status)
}

func TestProgress_FailAndCancel(t *testing.T) {
	p := NewProgress(StageWeights)
	p.Complete(false)
	assert.Equal(t, StatusFailed, p.Snapshot().Status)
	p.Cancel()
	assert.Equal(t, StatusCancelled, p.Snapshot().Status)
}

func TestProgressSnapshot_EmptyTotal(t *testing.T) {
	var s ProgressSnapshot
	assert.Equal(t, 0.0, s.PercentComplete())
	assert.True(t, s.IsComplete())
	assert.Nil(t, s.EstimatedRemainingSeconds)
}
