// Package cascade propagates a task's completion through its dependents and
// subtasks and keeps parent progress in step with its subtasks.
//
// Every mutation is applied to the shared TaskSet first and persisted after.
// Persistence failures are logged and counted, never rolled back.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sandeepkv93/remindd/internal/assist"
	"github.com/sandeepkv93/remindd/internal/metrics"
	"github.com/sandeepkv93/remindd/internal/model"
)

var ErrUnknownTask = errors.New("cascade: unknown task")

// subtaskWriters bounds concurrent subtask writes.
const subtaskWriters = 4

const narrativeTimeout = 30 * time.Second

type Store interface {
	UpdateTask(ctx context.Context, id string, patch model.TaskPatch) error
	CreateCompletionRecord(ctx context.Context, in model.CompletionRecord) error
	DeleteMostRecentCompletionRecord(ctx context.Context, taskID string) error
	AttachNarrative(ctx context.Context, recordID, narrative string) error
	RecordBehavior(ctx context.Context, in model.Behavior) error
}

type Options struct {
	Clock      clockwork.Clock
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	Summarizer assist.Summarizer
	// OnNarrative receives the markdown narrative of a completion once the
	// summarizer answers.
	OnNarrative func(taskID, narrative string)
}

type Cascade struct {
	tasks       *model.TaskSet
	store       Store
	clock       clockwork.Clock
	logger      *zap.Logger
	metrics     *metrics.Metrics
	summarizer  assist.Summarizer
	onNarrative func(taskID, narrative string)
	pending     sync.WaitGroup
}

// Result describes what one completion toggle changed.
type Result struct {
	Task      model.Task
	Unblocked []string
	Subtasks  []string
	// ParentProgress is set when the task is a subtask and its parent was
	// recomputed.
	ParentProgress *int
	RecordID       string
	Changed        bool
}

func New(tasks *model.TaskSet, store Store, opts Options) *Cascade {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	return &Cascade{
		tasks:       tasks,
		store:       store,
		clock:       opts.Clock,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		summarizer:  opts.Summarizer,
		onNarrative: opts.OnNarrative,
	}
}

// SetCompleted toggles the completion of a task. Toggling to the state the
// task is already in changes nothing.
func (c *Cascade) SetCompleted(ctx context.Context, id string, completed bool) (Result, error) {
	task, ok := c.tasks.Get(id)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	if (task.Status == model.StatusCompleted) == completed {
		return Result{Task: task}, nil
	}
	if completed {
		return c.complete(ctx, task), nil
	}
	return c.uncomplete(ctx, task), nil
}

func (c *Cascade) complete(ctx context.Context, task model.Task) Result {
	now := c.clock.Now()
	updated := c.apply(ctx, "status", task.ID, model.TaskPatch{
		Status:      model.Ptr(model.StatusCompleted),
		CompletedAt: &now,
	})
	res := Result{Task: updated, Changed: true}

	res.Unblocked = c.unblockDependents(ctx, task.ID)
	res.Subtasks = c.completeSubtasks(ctx, task.ID, now)
	if len(res.Subtasks) > 0 {
		if p, ok := c.RecomputeProgress(ctx, task.ID); ok {
			res.Task.Progress = p
		}
	}
	if task.IsSubtask() {
		if p, ok := c.RecomputeProgress(ctx, task.ParentTaskID); ok {
			res.ParentProgress = &p
		}
	}

	rec := model.CompletionRecord{ID: uuid.NewString(), TaskID: task.ID, CompletedAt: now}
	if err := c.store.CreateCompletionRecord(ctx, rec); err != nil {
		c.persistFailed("completion_record", task.ID, err)
	} else {
		res.RecordID = rec.ID
	}
	c.recordBehavior(ctx, task.ID, model.BehaviorCompleted, now)

	if res.RecordID != "" && c.summarizer != nil {
		c.narrate(ctx, res.Task, rec.ID)
	}
	c.logger.Info("task completed",
		zap.String("task_id", task.ID),
		zap.Int("unblocked", len(res.Unblocked)),
		zap.Int("subtasks", len(res.Subtasks)),
	)
	return res
}

func (c *Cascade) uncomplete(ctx context.Context, task model.Task) Result {
	now := c.clock.Now()
	updated := c.apply(ctx, "status", task.ID, model.TaskPatch{
		Status:           model.Ptr(model.StatusPending),
		ClearCompletedAt: true,
	})
	res := Result{Task: updated, Changed: true}

	if err := c.store.DeleteMostRecentCompletionRecord(ctx, task.ID); err != nil {
		c.persistFailed("completion_record", task.ID, err)
	}
	if task.IsSubtask() {
		if p, ok := c.RecomputeProgress(ctx, task.ParentTaskID); ok {
			res.ParentProgress = &p
		}
	}
	c.recordBehavior(ctx, task.ID, model.BehaviorUncompleted, now)
	c.logger.Info("task reopened", zap.String("task_id", task.ID))
	return res
}

// unblockDependents moves blocked dependents of id to pending once every one
// of their dependencies is completed. Dependencies missing from the task set
// do not hold a task back.
func (c *Cascade) unblockDependents(ctx context.Context, id string) []string {
	out := make([]string, 0)
	for _, dep := range c.tasks.Dependents(id) {
		if dep.Status != model.StatusBlocked || c.hasUnmet(dep.Dependencies, id) {
			continue
		}
		c.apply(ctx, "status", dep.ID, model.TaskPatch{Status: model.Ptr(model.StatusPending)})
		out = append(out, dep.ID)
	}
	return out
}

// completeSubtasks marks every incomplete subtask of parentID completed. The
// writes are independent: one failing does not undo the others.
func (c *Cascade) completeSubtasks(ctx context.Context, parentID string, now time.Time) []string {
	patch := model.TaskPatch{Status: model.Ptr(model.StatusCompleted), CompletedAt: &now}
	ids := make([]string, 0)
	for _, st := range c.tasks.Subtasks(parentID) {
		if st.Status == model.StatusCompleted {
			continue
		}
		c.tasks.Apply(st.ID, patch)
		ids = append(ids, st.ID)
	}

	var g errgroup.Group
	g.SetLimit(subtaskWriters)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := c.store.UpdateTask(ctx, id, patch); err != nil {
				c.persistFailed("status", id, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return ids
}

// RecomputeProgress sets the progress of parentID to the rounded percentage
// of its completed subtasks. It reports false when the task has no subtasks.
func (c *Cascade) RecomputeProgress(ctx context.Context, parentID string) (int, bool) {
	subs := c.tasks.Subtasks(parentID)
	if len(subs) == 0 {
		return 0, false
	}
	done := 0
	for _, st := range subs {
		if st.Status == model.StatusCompleted {
			done++
		}
	}
	progress := Progress(done, len(subs))
	parent, ok := c.tasks.Get(parentID)
	if ok && parent.Progress != progress {
		c.apply(ctx, "progress", parentID, model.TaskPatch{Progress: &progress})
	}
	return progress, true
}

// Progress is round(100 * done / total).
func Progress(done, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(done) / float64(total)))
}

// SetDependencies replaces the dependency set of id and moves the task
// between blocked and pending accordingly. Completed tasks keep their
// status.
func (c *Cascade) SetDependencies(ctx context.Context, id string, deps []string) (model.Task, error) {
	task, ok := c.tasks.Get(id)
	if !ok {
		return model.Task{}, fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	clean := make([]string, 0, len(deps))
	for _, d := range deps {
		if d == "" || slices.Contains(clean, d) {
			continue
		}
		if d == id {
			return model.Task{}, errors.New("cascade: task cannot depend on itself")
		}
		clean = append(clean, d)
	}

	patch := model.TaskPatch{Dependencies: &clean}
	if task.Status != model.StatusCompleted {
		switch {
		case c.hasUnmet(clean, ""):
			patch.Status = model.Ptr(model.StatusBlocked)
		case task.Status == model.StatusBlocked:
			patch.Status = model.Ptr(model.StatusPending)
		}
	}
	return c.apply(ctx, "dependencies", id, patch), nil
}

// hasUnmet reports whether any dependency other than skip is known and not
// completed.
func (c *Cascade) hasUnmet(deps []string, skip string) bool {
	for _, d := range deps {
		if d == skip {
			continue
		}
		other, ok := c.tasks.Get(d)
		if ok && other.Status != model.StatusCompleted {
			return true
		}
	}
	return false
}

func (c *Cascade) apply(ctx context.Context, op, id string, patch model.TaskPatch) model.Task {
	updated, _ := c.tasks.Apply(id, patch)
	if err := c.store.UpdateTask(ctx, id, patch); err != nil {
		c.persistFailed(op, id, err)
	}
	return updated
}

func (c *Cascade) recordBehavior(ctx context.Context, taskID string, action model.BehaviorAction, at time.Time) {
	err := c.store.RecordBehavior(ctx, model.Behavior{
		ID:         uuid.NewString(),
		TaskID:     taskID,
		Action:     action,
		OccurredAt: at,
	})
	if err != nil {
		c.persistFailed("behavior", taskID, err)
	}
}

func (c *Cascade) persistFailed(op, taskID string, err error) {
	c.metrics.PersistFailures.WithLabelValues(op).Inc()
	c.logger.Warn("persist failed", zap.String("op", op), zap.String("task_id", taskID), zap.Error(err))
}

// narrate runs the summarizer in the background. Failures are discarded.
func (c *Cascade) narrate(ctx context.Context, task model.Task, recordID string) {
	in := assist.InputFor(task, c.tasks.Subtasks(task.ID))
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), narrativeTimeout)
		defer cancel()

		narrative, err := c.summarizer.Summarize(nctx, in)
		if err != nil || narrative == "" {
			c.logger.Debug("narrative skipped", zap.String("task_id", task.ID), zap.Error(err))
			return
		}
		if err := c.store.AttachNarrative(nctx, recordID, narrative); err != nil {
			c.persistFailed("narrative", task.ID, err)
		}
		if c.onNarrative != nil {
			c.onNarrative(task.ID, narrative)
		}
	}()
}

// Wait blocks until background narratives have finished.
func (c *Cascade) Wait() {
	c.pending.Wait()
}
