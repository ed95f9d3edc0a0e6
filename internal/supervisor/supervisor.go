package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/taskgate/internal/classify"
	"github.com/mattjoyce/taskgate/internal/guard"
	"github.com/mattjoyce/taskgate/internal/handler"
	"github.com/mattjoyce/taskgate/internal/lock"
	"github.com/mattjoyce/taskgate/internal/log"
	"github.com/mattjoyce/taskgate/internal/task"
)

// DefaultDeadline leaves headroom inside a 20s request budget.
const DefaultDeadline = 19 * time.Second

// Event types published for every supervised execution.
const (
	EventTaskStarted   = "task.started"
	EventTaskCompleted = "task.completed"
)

// Resolver maps a kind to its handler.
type Resolver interface {
	Resolve(kind task.Kind) (handler.Handler, bool)
}

// Guard validates paths and operation verbs.
type Guard interface {
	ValidatePath(p string) guard.Verdict
	ValidateOperation(op string) guard.Verdict
}

// Publisher receives lifecycle events. events.Hub satisfies it.
type Publisher interface {
	Publish(eventType string, data any)
}

// Options tune a Supervisor. Zero values fall back to defaults.
type Options struct {
	Deadline time.Duration
	Events   Publisher
	Logger   *slog.Logger
}

// TaskEvent is the payload of task.started and task.completed.
type TaskEvent struct {
	TaskID     string `json:"task_id"`
	Kind       string `json:"kind,omitempty"`
	Outcome    string `json:"outcome,omitempty"`
	Code       string `json:"code,omitempty"`
	Detail     string `json:"detail,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

type Supervisor struct {
	classifier classify.Classifier
	registry   Resolver
	guard      Guard
	locks      *lock.PathLocker
	events     Publisher
	deadline   time.Duration
	logger     *slog.Logger
}

func New(c classify.Classifier, r Resolver, g Guard, opts Options) *Supervisor {
	s := &Supervisor{
		classifier: c,
		registry:   r,
		guard:      g,
		locks:      lock.NewPathLocker(),
		events:     opts.Events,
		deadline:   opts.Deadline,
		logger:     opts.Logger,
	}
	if s.deadline <= 0 {
		s.deadline = DefaultDeadline
	}
	if s.logger == nil {
		s.logger = log.WithComponent("supervisor")
	}
	return s
}

// Deadline is the per-execution budget.
func (s *Supervisor) Deadline() time.Duration { return s.deadline }

// Execute classifies text and dispatches the result under the deadline.
func (s *Supervisor) Execute(ctx context.Context, text string) task.Outcome {
	return s.supervise(ctx, "", func(ctx context.Context, logger *slog.Logger) task.Outcome {
		d, err := s.classifier.Classify(ctx, text)
		if err != nil {
			logger.Warn("classification failed", "error", err)
			return s.classifyFailure(err)
		}
		return s.dispatch(ctx, d, logger)
	})
}

// ExecuteDescriptor dispatches an already structured descriptor under the
// deadline, skipping classification.
func (s *Supervisor) ExecuteDescriptor(ctx context.Context, d task.Descriptor) task.Outcome {
	return s.supervise(ctx, string(d.Kind), func(ctx context.Context, logger *slog.Logger) task.Outcome {
		return s.dispatch(ctx, d, logger)
	})
}

// Dispatch runs resolve → guard → lock → handle on the calling goroutine,
// bounded only by ctx.
func (s *Supervisor) Dispatch(ctx context.Context, d task.Descriptor) task.Outcome {
	return s.dispatch(ctx, d, s.logger.With("task_id", uuid.NewString()))
}

func (s *Supervisor) supervise(ctx context.Context, kind string, fn func(context.Context, *slog.Logger) task.Outcome) task.Outcome {
	id := uuid.NewString()
	logger := s.logger.With("task_id", id)
	start := time.Now()
	s.publish(EventTaskStarted, TaskEvent{TaskID: id, Kind: kind})

	wctx, cancel := context.WithTimeout(ctx, s.deadline)
	defer cancel()

	done := make(chan task.Outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("task panicked", "panic", r)
				done <- task.HandlerFailure(fmt.Errorf("task panicked: %v", r))
			}
		}()
		done <- fn(wctx, logger)
	}()

	var out task.Outcome
	select {
	case out = <-done:
	case <-wctx.Done():
		select {
		case out = <-done:
		default:
			out = task.HandlerFailure(fmt.Errorf("task abandoned: %w", context.Cause(wctx)))
			go func() {
				late := <-done
				logger.Warn("discarding result that arrived after the task was abandoned", "outcome", late.Kind.String())
			}()
		}
	}
	// Only this supervisor's own deadline produces Timeout. Timeouts raised
	// inside a collaborator, or cancellation by the caller, stay failures.
	if out.Kind == task.OutcomeHandlerFailure && ownDeadlinePassed(ctx, wctx) {
		out = task.Timeout(s.deadline)
	}

	elapsed := time.Since(start)
	s.publish(EventTaskCompleted, TaskEvent{
		TaskID:     id,
		Kind:       kind,
		Outcome:    out.Kind.String(),
		Code:       out.Code,
		Detail:     out.Detail(),
		DurationMS: elapsed.Milliseconds(),
	})
	logger.Info("task finished", "outcome", out.Kind.String(), "duration_ms", elapsed.Milliseconds())
	return out
}

func (s *Supervisor) dispatch(ctx context.Context, d task.Descriptor, logger *slog.Logger) task.Outcome {
	logger = logger.With("kind", string(d.Kind))

	h, ok := s.registry.Resolve(d.Kind)
	if !ok {
		logger.Warn("unknown task kind")
		return task.UnknownKind(d.Kind)
	}

	guarded, denied := s.guardDescriptor(d)
	if denied != nil {
		logger.Warn("descriptor rejected", "code", denied.Code, "reason", denied.Reason)
		return *denied
	}

	if target, ok := writeTarget(guarded); ok {
		unlock, err := s.locks.Lock(ctx, target)
		if err != nil {
			return task.HandlerFailure(fmt.Errorf("wait for %s: %w", target, err))
		}
		defer unlock()
	}

	logger.Debug("invoking handler")
	msg, err := h.Handle(ctx, guarded)
	if err != nil {
		logger.Warn("handler failed", "error", err)
		return task.HandlerFailure(err)
	}
	if msg == "" {
		msg = handler.SuccessMessage
	}
	return task.Success(msg)
}

// guardDescriptor checks every path and operation parameter and returns a
// copy with canonical paths. Nothing is written before it returns.
func (s *Supervisor) guardDescriptor(d task.Descriptor) (task.Descriptor, *task.Outcome) {
	for _, key := range task.PathParams {
		if !d.Has(key) {
			continue
		}
		p, err := d.String(key)
		if err != nil {
			out := task.ValidationFailure(task.CodeInvalidParameter, err.Error())
			return d, &out
		}
		v := s.guard.ValidatePath(p)
		if !v.OK() {
			out := task.ValidationFailure(task.CodeAccessDenied, v.Reason)
			return d, &out
		}
		d = d.With(key, v.Canonical)
	}

	if d.Has(task.ParamOperation) {
		op, err := d.String(task.ParamOperation)
		if err != nil {
			out := task.ValidationFailure(task.CodeInvalidParameter, err.Error())
			return d, &out
		}
		if v := s.guard.ValidateOperation(op); !v.OK() {
			out := task.ValidationFailure(task.CodeOperationDenied, v.Reason)
			return d, &out
		}
	}
	return d, nil
}

// writeTarget is the canonical path a task modifies: its input for kinds
// that rewrite the input in place, otherwise its output.
func writeTarget(d task.Descriptor) (string, bool) {
	key := task.ParamOutput
	if d.Kind.InPlace() {
		key = task.ParamInput
	}
	p, ok := d.Params[key].(string)
	return p, ok
}

// classifyFailure keeps the two descriptor problems the caller can fix apart
// from collaborator failures.
func (s *Supervisor) classifyFailure(err error) task.Outcome {
	switch {
	case errors.Is(err, classify.ErrEmptyTask):
		return task.ValidationFailure(task.CodeInvalidParameter, err.Error())
	case errors.Is(err, task.ErrMissingKind):
		return task.ValidationFailure(task.CodeInvalidDescriptor, err.Error())
	default:
		return task.HandlerFailure(err)
	}
}

func ownDeadlinePassed(parent, wctx context.Context) bool {
	return errors.Is(wctx.Err(), context.DeadlineExceeded) && parent.Err() == nil
}

func (s *Supervisor) publish(eventType string, ev TaskEvent) {
	if s.events != nil {
		s.events.Publish(eventType, ev)
	}
}
