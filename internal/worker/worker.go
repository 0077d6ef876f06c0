// Package worker runs a single ingest job from delivery to terminal status.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/geo-ingest/internal/ingest"
	"github.com/JakeFAU/geo-ingest/internal/metrics"
	"github.com/JakeFAU/geo-ingest/internal/progress"
)

const defaultStatusTimeout = 10 * time.Second

var tracer = otel.Tracer("github.com/JakeFAU/geo-ingest/internal/worker")

// Dispatcher routes a resource to the inspector for its data type.
type Dispatcher interface {
	Dispatch(ctx context.Context, res *ingest.DataResource, mode ingest.PersistMode) (*ingest.DataResource, error)
}

// Config controls Worker behavior.
type Config struct {
	// StatusTimeout bounds terminal status publishes, which run detached
	// from the caller's cancellation.
	StatusTimeout time.Duration
}

// State is the position of a job in the worker lifecycle.
type State int

// Worker lifecycle states.
const (
	StateReceived State = iota
	StateDecoded
	StateIdentified
	StateRunning
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateDecoded:
		return "decoded"
	case StateIdentified:
		return "identified"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Outcome summarizes a processed delivery.
type Outcome struct {
	JobID  string
	DataID string
	State  State
	Err    error
	// Skipped is set when the job was already terminal and was not rerun.
	Skipped bool
}

// Worker executes ingest jobs.
type Worker struct {
	dispatcher Dispatcher
	status     ingest.Publisher
	ids        ingest.IDGenerator
	clock      ingest.Clock
	progress   progress.Emitter
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Worker.
func New(
	dispatcher Dispatcher,
	status ingest.Publisher,
	ids ingest.IDGenerator,
	clock ingest.Clock,
	emitter progress.Emitter,
	cfg Config,
	logger *zap.Logger,
) (*Worker, error) {
	if dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if status == nil {
		return nil, errors.New("status publisher is required")
	}
	if ids == nil {
		return nil, errors.New("id generator is required")
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	if emitter == nil {
		emitter = progress.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.StatusTimeout <= 0 {
		cfg.StatusTimeout = defaultStatusTimeout
	}
	return &Worker{
		dispatcher: dispatcher,
		status:     status,
		ids:        ids,
		clock:      clock,
		progress:   emitter,
		cfg:        cfg,
		logger:     logger,
	}, nil
}

// run carries the mutable state of one delivery.
type run struct {
	key      string
	attempt  int
	job      ingest.Job
	state    State
	terminal bool
	started  time.Time
	dataType string
	err      error
	skipped  bool
}

func (r *run) outcome() Outcome {
	out := Outcome{JobID: r.key, State: r.state, Err: r.err, Skipped: r.skipped}
	if r.job.Data != nil {
		out.DataID = r.job.Data.DataID
	}
	return out
}

// Process handles one delivery. cb.OnComplete is invoked exactly once on
// every exit path, panics included.
func (w *Worker) Process(ctx context.Context, delivery ingest.Delivery, cb ingest.Callback) (out Outcome) {
	metrics.IncActiveWorkers()
	ctx, span := tracer.Start(ctx, "ingest.job", trace.WithAttributes(
		attribute.String("ingest.delivery_key", delivery.Key),
		attribute.Int("ingest.attempt", delivery.Attempt),
	))
	r := &run{
		key:     delivery.Key,
		attempt: delivery.Attempt,
		state:   StateReceived,
		started: w.clock.Now(),
	}
	defer func() {
		if p := recover(); p != nil {
			w.logger.Error("worker panic",
				zap.String("job_id", r.key),
				zap.Any("panic", p),
				zap.Stack("stack"),
			)
			w.failSafely(ctx, r, ingest.Unclassified("process job", fmt.Errorf("panic: %v", p)))
		}
		metrics.DecActiveWorkers()
		out = r.outcome()
		endSpan(span, out, r.dataType)
		if cb != nil {
			cb.OnComplete(r.key)
		}
	}()

	if err := w.decode(r, delivery.Body); err != nil {
		w.fail(ctx, r, err)
		return
	}
	if err := w.identify(r); err != nil {
		w.fail(ctx, r, err)
		return
	}
	if !w.start(ctx, r) {
		return
	}

	res, err := w.dispatcher.Dispatch(ctx, r.job.Data, r.job.PersistMode())
	if err != nil {
		w.fail(ctx, r, err)
		return
	}
	if res == nil {
		w.fail(ctx, r, ingest.Unclassified("dispatch", errors.New("inspector returned no resource")))
		return
	}
	r.job.Data = res
	w.progress.Emit(progress.Event{
		JobID:    r.key,
		DataID:   res.DataID,
		Stage:    progress.StageInspectDone,
		DataType: r.dataType,
		Attempt:  r.attempt,
		Dur:      w.clock.Now().Sub(r.started),
	})
	w.succeed(ctx, r, res.DataID)
	return
}

func endSpan(span trace.Span, out Outcome, dataType string) {
	span.SetAttributes(
		attribute.String("ingest.job_id", out.JobID),
		attribute.String("ingest.data_id", out.DataID),
		attribute.String("ingest.data_type", dataType),
		attribute.String("ingest.state", out.State.String()),
		attribute.Bool("ingest.skipped", out.Skipped),
	)
	if out.Err != nil {
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, string(ingest.KindOf(out.Err)))
	}
	span.End()
}

func (w *Worker) decode(r *run, body []byte) error {
	job, err := ingest.DecodeJob(body)
	if err != nil {
		if r.key == "" {
			r.key = ingest.RecoverJobID(body)
		}
		return err
	}
	switch {
	case job.JobID != "":
		if r.key != "" && r.key != job.JobID {
			w.logger.Warn("delivery key differs from job id",
				zap.String("delivery_key", r.key),
				zap.String("job_id", job.JobID),
			)
		}
		r.key = job.JobID
	case r.key != "":
		job.JobID = r.key
	default:
		return ingest.Malformed("decode job", errors.New("jobId is required"))
	}
	r.job = job
	r.dataType = job.Data.DataType.Type()
	r.state = StateDecoded
	return nil
}

// identify assigns a data id once; a resource that already has one keeps it.
func (w *Worker) identify(r *run) error {
	if r.job.Data.DataID == "" {
		id, err := w.ids.NewID()
		if err != nil {
			return ingest.Unclassified("assign data id", err)
		}
		r.job.Data.DataID = id
	}
	r.state = StateIdentified
	return nil
}

// start publishes RUNNING. It returns false when the job must not run.
func (w *Worker) start(ctx context.Context, r *run) bool {
	r.state = StateRunning
	w.progress.Emit(progress.Event{
		JobID:    r.key,
		DataID:   r.job.Data.DataID,
		Stage:    progress.StageJobStart,
		DataType: r.dataType,
		Attempt:  r.attempt,
	})
	_, err := w.status.Publish(ctx, r.key, ingest.RunningUpdate(r.key))
	switch {
	case err == nil:
		return true
	case errors.Is(err, ingest.ErrIllegalTransition):
		w.logger.Info("job already terminal, skipping redelivery",
			zap.String("job_id", r.key),
			zap.Int("attempt", r.attempt),
		)
		r.terminal = true
		r.skipped = true
		return false
	default:
		w.logger.Warn("running status publish failed",
			zap.String("job_id", r.key),
			zap.Error(err),
		)
		return true
	}
}

func (w *Worker) succeed(ctx context.Context, r *run, dataID string) {
	if r.terminal {
		return
	}
	r.terminal = true
	r.state = StateSucceeded
	w.publishTerminal(ctx, r, ingest.SuccessUpdate(r.key, dataID))
	runtime := w.clock.Now().Sub(r.started)
	metrics.ObserveJob(string(ingest.StatusSuccess), "none")
	w.progress.Emit(progress.Event{
		JobID:    r.key,
		DataID:   dataID,
		Stage:    progress.StageJobDone,
		DataType: r.dataType,
		Attempt:  r.attempt,
		Dur:      runtime,
	})
	w.logger.Info("job succeeded",
		zap.String("job_id", r.key),
		zap.String("data_id", dataID),
		zap.String("data_type", r.dataType),
		zap.Duration("runtime", runtime),
	)
}

func (w *Worker) fail(ctx context.Context, r *run, err error) {
	if r.terminal {
		return
	}
	r.terminal = true
	r.state = StateFailed
	r.err = err
	kind := ingest.KindOf(err)
	metrics.ObserveJob(string(ingest.StatusError), string(kind))
	evt := progress.Event{
		JobID:     r.key,
		Stage:     progress.StageJobError,
		DataType:  r.dataType,
		ErrorKind: string(kind),
		Attempt:   r.attempt,
		Dur:       w.clock.Now().Sub(r.started),
		Note:      err.Error(),
	}
	if r.job.Data != nil {
		evt.DataID = r.job.Data.DataID
	}
	w.progress.Emit(evt)
	if r.key == "" {
		w.logger.Error("dropping job without id",
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return
	}
	w.logger.Warn("job failed",
		zap.String("job_id", r.key),
		zap.String("kind", string(kind)),
		zap.Error(err),
	)
	w.publishTerminal(ctx, r, ingest.ErrorUpdate(r.key, err))
}

// failSafely reports a panic without letting a second panic escape.
func (w *Worker) failSafely(ctx context.Context, r *run, err error) {
	defer func() {
		if p := recover(); p != nil {
			w.logger.Error("failure reporting panicked",
				zap.String("job_id", r.key),
				zap.Any("panic", p),
			)
		}
	}()
	w.fail(ctx, r, err)
}

func (w *Worker) publishTerminal(ctx context.Context, r *run, update ingest.StatusUpdate) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.StatusTimeout)
	defer cancel()
	if _, err := w.status.Publish(pubCtx, r.key, update); err != nil {
		w.logger.Error("terminal status publish failed",
			zap.String("job_id", r.key),
			zap.String("status", string(update.Status)),
			zap.Error(err),
		)
	}
}
