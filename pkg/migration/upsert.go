package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	migerrors "github.com/vicentefritzen/petsys-migracao/pkg/errors"
	"github.com/vicentefritzen/petsys-migracao/pkg/ledger"
	"github.com/vicentefritzen/petsys-migracao/pkg/logging"
	"github.com/vicentefritzen/petsys-migracao/pkg/observability"
	"github.com/vicentefritzen/petsys-migracao/pkg/store"
)

// RegistryOptions configures the clients, pets, vaccines and vaccinations
// stages.
type RegistryOptions struct {
	TenantID string
	// ChunkSize is the number of rows written per transaction.
	ChunkSize int
	DryRun    bool
}

// Validate checks the options.
func (o RegistryOptions) Validate() error {
	if o.TenantID == "" {
		return fmt.Errorf("tenant id is required: %w", migerrors.ErrValidation)
	}
	if o.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d: %w", o.ChunkSize, migerrors.ErrValidation)
	}
	return nil
}

// RunDeps are the collaborators every stage shares.
type RunDeps struct {
	Observer Observer
	Tracer   *observability.Tracer
	Progress *Progress
	Logger   logging.Logger
}

// stageRun carries a stage's shared collaborators and the chunked upsert
// writer built on them.
type stageRun struct {
	stage    string
	opts     RegistryOptions
	observer Observer
	tracer   *observability.Tracer
	progress *Progress
	logger   logging.Logger

	now   func() time.Time
	newID func() uuid.UUID
}

func newStageRun(stage string, opts RegistryOptions, deps RunDeps) stageRun {
	if deps.Observer == nil {
		deps.Observer = nopObserver{}
	}
	if deps.Tracer == nil {
		deps.Tracer = observability.NewTracer()
	}
	if deps.Progress == nil {
		deps.Progress = NewProgress(stage)
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNopLogger()
	}
	return stageRun{
		stage:    stage,
		opts:     opts,
		observer: deps.Observer,
		tracer:   deps.Tracer,
		progress: deps.Progress,
		logger: deps.Logger.With(
			logging.F("stage", stage),
			logging.F("tenant_id", opts.TenantID),
		),
		now:   time.Now,
		newID: uuid.New,
	}
}

// begin opens the run span. The returned func closes it with the final
// counters and settles progress; call it deferred with the run's error.
func (r *stageRun) begin(ctx context.Context) (context.Context, func(counts map[string]int, err error)) {
	ctx, span := r.tracer.StartRun(ctx, r.stage, r.opts.TenantID, r.opts.DryRun)
	helper := observability.NewSpanHelper(span)

	return ctx, func(counts map[string]int, err error) {
		defer span.End()
		helper.SetCounts(counts)
		if err != nil {
			helper.SetError(err)
			if ctx.Err() != nil {
				r.progress.Cancel()
			} else {
				r.progress.Complete(false)
			}
			return
		}
		helper.SetSuccess()
		r.progress.Complete(true)
	}
}

// destinations loads one ledger mapping as reference data.
func (r *stageRun) destinations(ctx context.Context, l ledger.Reader, m ledger.Mapping, what string) (map[string]string, error) {
	out, err := l.Destinations(ctx, r.opts.TenantID, m)
	if err != nil {
		return nil, migerrors.New(migerrors.ErrReferenceDataFailed, r.stage,
			fmt.Errorf("loading %s: %w", what, err))
	}
	return out, nil
}

// recordID parses a ledger destination as a record id. A value that is not
// one is logged and the row is inserted anew.
func (r *stageRun) recordID(sourceID int64, dest string) (uuid.UUID, bool) {
	id, err := uuid.Parse(dest)
	if err != nil {
		r.logger.Warn("Ledger destination is not a record id, inserting anew",
			logging.F("source_id", sourceID),
			logging.F("destination", dest))
		return uuid.Nil, false
	}
	return id, true
}

// requireUpstream fails the run when rows depend on a mapping the tenant has
// none of: the stage that writes it has not run yet.
func requireUpstream(stage, upstream string, mapping map[string]string, rows int) error {
	if rows == 0 || len(mapping) > 0 {
		return nil
	}
	return migerrors.New(migerrors.ErrStageOutOfOrder, stage,
		fmt.Errorf("no %s in the ledger, run the %s stage first: %w", upstream, upstream, migerrors.ErrMissingDependency))
}

// upsertItem is one destination row ready to be written. Updates reuse an
// existing id; entry is nil when the ledger already has the row.
type upsertItem[T any] struct {
	record T
	update bool
	entry  *ledger.Entry
}

// persistUpserts writes items in chunks of opts.ChunkSize, each in its own
// transaction. It returns how many chunks and rows were committed.
func persistUpserts[T any](ctx context.Context, r *stageRun, items []upsertItem[T],
	write func(context.Context, store.Batch[T]) error) (chunks, rows int, err error) {
	ctx, span := r.tracer.StartPhase(ctx, r.stage, "persist")
	defer span.End()

	size := r.opts.ChunkSize
	for index, start := 0, 0; start < len(items); index, start = index+1, start+size {
		if err := ctx.Err(); err != nil {
			return chunks, rows, migerrors.ClassifyError(err, r.stage)
		}
		end := min(start+size, len(items))

		var batch store.Batch[T]
		for _, it := range items[start:end] {
			if it.update {
				batch.Updates = append(batch.Updates, it.record)
			} else {
				batch.Inserts = append(batch.Inserts, it.record)
			}
			if it.entry != nil {
				batch.Ledger = append(batch.Ledger, *it.entry)
			}
		}

		if err := writeUpsertChunk(ctx, r, index, batch, write); err != nil {
			r.logger.Error("Chunk write failed",
				logging.F("chunk", index),
				logging.F("rows", batch.Len()),
				logging.Err(err))
			return chunks, rows, migerrors.New(migerrors.ErrPersistenceFailed, r.stage,
				fmt.Errorf("chunk %d (%d rows): %w", index, batch.Len(), err))
		}
		chunks++
		rows += batch.Len()
		r.progress.RecordPersisted(batch.Len())
	}
	return chunks, rows, nil
}

func writeUpsertChunk[T any](ctx context.Context, r *stageRun, index int, batch store.Batch[T],
	write func(context.Context, store.Batch[T]) error) error {
	ctx, span := r.tracer.StartChunk(ctx, r.stage, index, batch.Len())
	defer span.End()

	began := time.Now()
	if err := write(ctx, batch); err != nil {
		observability.NewSpanHelper(span).SetError(err)
		return err
	}
	r.observer.ChunkPersisted(batch.Len(), time.Since(began))
	return nil
}
