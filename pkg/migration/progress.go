package migration

import (
	"sync"
	"time"
)

// Progress status values.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Progress tracks how far a stage run has got. It is safe for concurrent
// readers while the migrator updates it.
type Progress struct {
	mu sync.RWMutex

	stage     string
	total     int
	processed int
	migrated  int
	skipped   int
	persisted int
	status    string
	startedAt time.Time
	updatedAt time.Time

	onUpdate func(ProgressSnapshot)
}

// NewProgress creates a tracker for stage.
func NewProgress(stage string) *Progress {
	now := time.Now()
	return &Progress{
		stage:     stage,
		status:    StatusPending,
		startedAt: now,
		updatedAt: now,
	}
}

// SetOnUpdate sets a callback invoked with a snapshot after every change.
// The callback runs on the migrator's goroutine and must return quickly.
func (p *Progress) SetOnUpdate(fn func(ProgressSnapshot)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onUpdate = fn
}

// Start marks the run as started over total items.
func (p *Progress) Start(total int) {
	p.update(func() {
		p.total = total
		p.status = StatusRunning
		p.startedAt = time.Now()
	})
}

// RecordMigrated counts an item that produced destination rows.
func (p *Progress) RecordMigrated() {
	p.update(func() {
		p.migrated++
		p.processed++
	})
}

// RecordSkipped counts an item that was left alone.
func (p *Progress) RecordSkipped() {
	p.update(func() {
		p.skipped++
		p.processed++
	})
}

// RecordPersisted counts items whose chunk has been committed.
func (p *Progress) RecordPersisted(items int) {
	p.update(func() {
		p.persisted += items
	})
}

// Complete marks the run finished.
func (p *Progress) Complete(success bool) {
	p.update(func() {
		if success {
			p.status = StatusCompleted
		} else {
			p.status = StatusFailed
		}
	})
}

// Cancel marks the run cancelled.
func (p *Progress) Cancel() {
	p.update(func() {
		p.status = StatusCancelled
	})
}

func (p *Progress) update(fn func()) {
	if p == nil {
		return
	}
	p.mu.Lock()
	fn()
	p.updatedAt = time.Now()
	cb := p.onUpdate
	snap := p.snapshotLocked()
	p.mu.Unlock()

	if cb != nil {
		cb(snap)
	}
}

// Snapshot returns a read-only copy of the current progress.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshotLocked()
}

func (p *Progress) snapshotLocked() ProgressSnapshot {
	elapsed := p.updatedAt.Sub(p.startedAt).Seconds()
	var remaining *float64
	if p.processed > 0 && p.total > 0 {
		est := elapsed / float64(p.processed) * float64(p.total-p.processed)
		remaining = &est
	}
	return ProgressSnapshot{
		Stage:                     p.stage,
		Total:                     p.total,
		Processed:                 p.processed,
		Migrated:                  p.migrated,
		Skipped:                   p.skipped,
		Persisted:                 p.persisted,
		Status:                    p.status,
		StartedAt:                 p.startedAt,
		ElapsedSeconds:            elapsed,
		EstimatedRemainingSeconds: remaining,
	}
}

// ProgressSnapshot is an immutable view of a Progress.
type ProgressSnapshot struct {
	Stage                     string
	Total                     int
	Processed                 int
	Migrated                  int
	Skipped                   int
	Persisted                 int
	Status                    string
	StartedAt                 time.Time
	ElapsedSeconds            float64
	EstimatedRemainingSeconds *float64
}

// PercentComplete returns the share of items processed.
func (s ProgressSnapshot) PercentComplete() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Processed) / float64(s.Total) * 100
}

// IsComplete reports whether every item has been processed.
func (s ProgressSnapshot) IsComplete() bool {
	return s.Processed >= s.Total
}
