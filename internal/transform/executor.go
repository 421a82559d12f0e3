package transform

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/foldb/folddb/internal/atom"
	"github.com/foldb/folddb/internal/bus"
	"github.com/foldb/folddb/internal/expression"
	"github.com/foldb/folddb/internal/kv"
	"github.com/foldb/folddb/pkg/config"
	ferrors "github.com/foldb/folddb/pkg/errors"
	"github.com/foldb/folddb/pkg/logger"
	"github.com/foldb/folddb/pkg/metrics"
	"github.com/foldb/folddb/pkg/tracing"
)

const (
	treeQueue    = "transform_mappings"
	queueItemKey = "queue"
)

// Executor runs queued transform executions against a durable FIFO queue
// with per-id serialization and bounded exponential backoff (spec
// §4.6.3/§4.6.4). The queue and per-id in-flight tracking are its shared
// mutable state; it reads inputs and writes outputs through the atom store
// directly and publishes outcomes on the bus.
type Executor struct {
	cfg     config.TransformConfig
	kv      kv.Store
	atoms   *atom.Store
	b       *bus.Bus
	engine  *expression.Engine
	metrics metrics.Provider
	tracer  tracing.Service
	log     logger.Logger

	orchestrator *Orchestrator

	qmu      sync.Mutex
	queue    []QueuedItem
	inFlight map[string]bool
	cond     *sync.Cond

	stopCh  chan struct{}
	stopped bool
}

// NewExecutor constructs an Executor. Call Replay before Start to restore
// a queue persisted before a crash, and Subscribe (via the owning
// Orchestrator) before any FieldValueSet events are expected to enqueue
// work. metricsProvider/tracer default to no-op implementations when nil.
func NewExecutor(store kv.Store, atoms *atom.Store, b *bus.Bus, engine *expression.Engine, cfg config.TransformConfig, metricsProvider metrics.Provider, tracer tracing.Service, log logger.Logger) *Executor {
	if metricsProvider == nil {
		metricsProvider = metrics.NewNoOp()
	}
	if tracer == nil {
		tracer = tracing.NewNoOpService()
	}
	e := &Executor{
		cfg:      cfg,
		kv:       store,
		atoms:    atoms,
		b:        b,
		engine:   engine,
		metrics:  metricsProvider,
		tracer:   tracer,
		log:      log,
		inFlight: make(map[string]bool),
		stopCh:   make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.qmu)
	return e
}

func (e *Executor) bind(o *Orchestrator) { e.orchestrator = o }

// Replay restores the persisted queue (spec §7 "the transform orchestrator
// replays ... the persisted queue, resuming execution in queue order").
func (e *Executor) Replay(ctx context.Context) error {
	var items []QueuedItem
	ok, err := kv.GetTyped(ctx, e.kv, treeQueue, queueItemKey, &items)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	e.qmu.Lock()
	e.queue = items
	e.qmu.Unlock()
	return nil
}

// Enqueue appends a transform execution request unless one is already
// queued for the same id (spec §4.6.2 step 3 de-duplication). depth is the
// cascade hop this request belongs to (spec §4.6.4); see QueuedItem.Depth.
func (e *Executor) Enqueue(ctx context.Context, transformID, correlationID string, depth int) error {
	e.qmu.Lock()
	for _, item := range e.queue {
		if item.TransformID == transformID {
			e.qmu.Unlock()
			return nil
		}
	}
	e.queue = append(e.queue, QueuedItem{
		TransformID:   transformID,
		CorrelationID: correlationID,
		Attempt:       0,
		EnqueuedAt:    time.Now(),
		Depth:         depth,
	})
	err := e.persistLocked(ctx)
	e.metrics.SetGauge(metrics.TransformQueueDepth, float64(len(e.queue)), nil)
	e.cond.Signal()
	e.qmu.Unlock()
	return err
}

func (e *Executor) persistLocked(ctx context.Context) error {
	return kv.PutTyped(ctx, e.kv, treeQueue, queueItemKey, e.queue)
}

// Start launches cfg.WorkerCount worker loops that dequeue and execute
// transforms until ctx is canceled or Stop is called.
func (e *Executor) Start(ctx context.Context) {
	workers := e.cfg.WorkerCount
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		go e.workerLoop(ctx)
	}
	go func() {
		<-ctx.Done()
		e.Stop()
	}()
}

// Stop wakes every blocked worker so Start's goroutines return.
func (e *Executor) Stop() {
	e.qmu.Lock()
	e.stopped = true
	e.qmu.Unlock()
	e.cond.Broadcast()
}

func (e *Executor) workerLoop(ctx context.Context) {
	for {
		item, ok := e.popNext()
		if !ok {
			return
		}
		if item == nil {
			continue
		}
		e.execute(ctx, *item)
	}
}

// popNext blocks until an eligible item (queued, not in flight) is
// available, the executor is stopped, or it must hand back control to
// check the cond again. Returns ok=false once stopped with nothing left
// to finish.
func (e *Executor) popNext() (*QueuedItem, bool) {
	e.qmu.Lock()
	defer e.qmu.Unlock()
	for {
		for i, item := range e.queue {
			if e.inFlight[item.TransformID] {
				continue
			}
			e.queue = append(e.queue[:i:i], e.queue[i+1:]...)
			e.inFlight[item.TransformID] = true
			_ = e.persistLocked(context.Background())
			e.metrics.SetGauge(metrics.TransformQueueDepth, float64(len(e.queue)), nil)
			picked := item
			return &picked, true
		}
		if e.stopped {
			return nil, false
		}
		e.cond.Wait()
	}
}

func (e *Executor) release(transformID string) {
	e.qmu.Lock()
	delete(e.inFlight, transformID)
	e.cond.Signal()
	e.qmu.Unlock()
}

func (e *Executor) requeue(ctx context.Context, item QueuedItem) {
	e.qmu.Lock()
	e.queue = append(e.queue, item)
	_ = e.persistLocked(ctx)
	e.qmu.Unlock()
}

// execute runs one queued transform through the steps in spec §4.6.3,
// recording metrics.TransformExecutionDuration/TransformExecutionsTotal and
// wrapping the run in a "transform.execute" span, per SPEC_FULL.md's
// Metrics/Tracing sections.
func (e *Executor) execute(ctx context.Context, item QueuedItem) {
	defer e.release(item.TransformID)

	start := time.Now()
	ctx, span := e.tracer.StartSpan(ctx, "transform.execute",
		tracing.WithAttributes(tracing.TransformAttributes(item.TransformID, item.Depth)...))
	var execErr error
	defer func() {
		e.metrics.ObserveHistogram(metrics.TransformExecutionDuration, time.Since(start).Seconds(),
			metrics.Fields{"transform_id": item.TransformID})
		if execErr != nil {
			e.tracer.RecordError(ctx, execErr, tracing.WithErrorStatus())
		}
		span.End()
	}()

	reg, ok := e.orchestrator.Get(item.TransformID)
	if !ok {
		e.log.Warn("dropping queued item for unknown transform", logger.Fields{"transform_id": item.TransformID})
		return
	}

	inputs, err := e.gatherInputs(ctx, reg)
	if err != nil {
		execErr = err
		e.handleOutcome(ctx, reg, item, err, retriable(err))
		return
	}

	timeout := e.cfg.EvalTimeout
	if timeout <= 0 {
		timeout = expression.DefaultTimeout
	}
	evalCtx, cancel := context.WithTimeout(ctx, timeout)
	value, err := e.engine.Evaluate(evalCtx, reg.ID, reg.Logic, inputs)
	cancel()
	if err != nil {
		execErr = err
		e.handleOutcome(ctx, reg, item, err, false)
		return
	}

	newAtomUUID, err := e.writeOutput(ctx, reg, value, inputs)
	if err != nil {
		execErr = err
		e.handleOutcome(ctx, reg, item, err, retriable(err))
		return
	}

	e.metrics.IncrementCounter(metrics.TransformExecutionsTotal,
		metrics.Fields{"transform_id": reg.ID, "outcome": metrics.OutcomeSuccess})
	e.b.Publish(ctx, bus.Event{
		Kind:          bus.KindTransformExecuted,
		CorrelationID: item.CorrelationID,
		Payload:       bus.TransformExecuted{TransformID: reg.ID, Outcome: bus.OutcomeOk},
	})
	e.b.Publish(ctx, bus.Event{
		Kind:          bus.KindFieldValueSet,
		CorrelationID: item.CorrelationID,
		Payload: bus.FieldValueSet{
			Schema: reg.Schema, Field: reg.Field, Writer: "transform:" + reg.ID, NewAtomUUID: newAtomUUID, Depth: item.Depth + 1,
		},
	})
}

func (e *Executor) handleOutcome(ctx context.Context, reg *Registration, item QueuedItem, cause error, canRetry bool) {
	e.b.Publish(ctx, bus.Event{
		Kind:          bus.KindTransformExecuted,
		CorrelationID: item.CorrelationID,
		Payload:       bus.TransformExecuted{TransformID: reg.ID, Outcome: bus.OutcomeErr, Err: cause},
	})

	maxAttempts := e.cfg.RetryMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if !canRetry || item.Attempt+1 >= maxAttempts {
		e.metrics.IncrementCounter(metrics.TransformExecutionsTotal,
			metrics.Fields{"transform_id": reg.ID, "outcome": metrics.OutcomeDead})
		e.b.Publish(ctx, bus.Event{
			Kind:          bus.KindTransformDead,
			CorrelationID: item.CorrelationID,
			Payload:       bus.TransformDead{TransformID: reg.ID, Attempts: item.Attempt + 1, Cause: cause},
		})
		return
	}

	e.metrics.IncrementCounter(metrics.TransformExecutionsTotal,
		metrics.Fields{"transform_id": reg.ID, "outcome": metrics.OutcomeFailure})
	next := item
	next.Attempt++
	delay := e.backoff(next.Attempt)
	time.AfterFunc(delay, func() { e.requeue(context.Background(), next) })
}

// backoff returns base * 2^attempt, capped at RetryMaxDelay, with ±10%
// jitter to avoid synchronized retry storms.
func (e *Executor) backoff(attempt int) time.Duration {
	base := e.cfg.RetryBaseDelay
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	maxDelay := e.cfg.RetryMaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	scaled := float64(base) * math.Pow(2, float64(attempt))
	if scaled > float64(maxDelay) {
		scaled = float64(maxDelay)
	}
	jitter := 1 + (rand.Float64()*0.2 - 0.1)
	return time.Duration(scaled * jitter)
}

// retriable classifies which error kinds are worth another attempt:
// missing inputs can resolve themselves once a racing write lands, store
// errors may be transient I/O; evaluation failures are deterministic and
// are not retried (spec §7).
func retriable(err error) bool {
	return errors.Is(err, ferrors.ErrMissingInput) || errors.Is(err, ferrors.ErrStore) || errors.Is(err, ferrors.ErrNotFound)
}

func (e *Executor) gatherInputs(ctx context.Context, reg *Registration) (map[string]any, error) {
	inputs := make(map[string]any, len(reg.Inputs))
	for _, binding := range reg.Inputs {
		value, err := e.gatherOne(ctx, reg.ID, binding)
		if err != nil {
			return nil, err
		}
		inputs[binding.VarName] = value
	}
	return inputs, nil
}

func (e *Executor) gatherOne(ctx context.Context, transformID string, binding InputBinding) (any, error) {
	ref, err := e.atoms.GetRef(ctx, binding.RefUUID)
	if err != nil {
		if binding.HasDefault {
			return binding.Default, nil
		}
		return nil, err
	}

	switch ref.Kind {
	case atom.RefSingle:
		if ref.Current == "" {
			if binding.HasDefault {
				return binding.Default, nil
			}
			return nil, ferrors.MissingInputErr(transformID, binding.Path)
		}
		a, err := e.atoms.GetAtom(ctx, ref.Current)
		if err != nil {
			return nil, err
		}
		return a.Value, nil

	case atom.RefCollection:
		values := make([]any, 0, len(ref.Items))
		for _, uuid := range ref.Items {
			a, err := e.atoms.GetAtom(ctx, uuid)
			if err != nil {
				return nil, err
			}
			values = append(values, a.Value)
		}
		return values, nil

	case atom.RefRange:
		values := make(map[string]any, len(ref.Entries))
		for key, uuid := range ref.Entries {
			a, err := e.atoms.GetAtom(ctx, uuid)
			if err != nil {
				return nil, err
			}
			values[key] = a.Value
		}
		return values, nil

	default:
		return nil, ferrors.MissingInputErr(transformID, binding.Path)
	}
}

// writeOutput persists the evaluated value to reg's output ref, dispatching
// on its variant the way the mutation pipeline dispatches on a field's
// variant (spec §4.6.3 step 3).
func (e *Executor) writeOutput(ctx context.Context, reg *Registration, value any, inputs map[string]any) (string, error) {
	writer := "transform:" + reg.ID
	newAtomUUID, err := e.atoms.CreateAtom(ctx, reg.Schema, writer, value, atom.StatusActive)
	if err != nil {
		return "", err
	}

	switch reg.OutputVariant {
	case atom.RefSingle:
		if _, err := e.atoms.UpdateAtomRef(ctx, reg.OutputRefUUID, newAtomUUID, writer); err != nil {
			return "", err
		}
	case atom.RefCollection:
		if _, err := e.atoms.UpdateAtomRefCollection(ctx, reg.OutputRefUUID,
			atom.CollectionOp{Kind: atom.CollectionAdd, AtomUUID: newAtomUUID}, writer); err != nil {
			return "", err
		}
	case atom.RefRange:
		key, ok := partitionKeyValue(reg, inputs)
		if !ok {
			return "", ferrors.EvaluationErr(reg.ID, fmt.Sprintf("range output requires an input bound to partition key %q", reg.PartitionKey))
		}
		if _, err := e.atoms.UpdateAtomRefRange(ctx, reg.OutputRefUUID, key, newAtomUUID, writer); err != nil {
			return "", err
		}
	default:
		return "", ferrors.EvaluationErr(reg.ID, "unknown output variant")
	}
	return newAtomUUID, nil
}

func partitionKeyValue(reg *Registration, inputs map[string]any) (string, bool) {
	for _, binding := range reg.Inputs {
		if binding.VarName == reg.PartitionKey {
			if v, ok := inputs[binding.VarName]; ok {
				return fmt.Sprint(v), true
			}
		}
	}
	return "", false
}
