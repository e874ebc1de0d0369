// Package scheduler polls the task store and decides, per task and per tick,
// which reminders to fire.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/sandeepkv93/remindd/internal/cascade"
	"github.com/sandeepkv93/remindd/internal/ledger"
	"github.com/sandeepkv93/remindd/internal/metrics"
	"github.com/sandeepkv93/remindd/internal/model"
	"github.com/sandeepkv93/remindd/internal/notify"
	"github.com/sandeepkv93/remindd/internal/quiet"
	"github.com/sandeepkv93/remindd/internal/rules"
	"github.com/sandeepkv93/remindd/internal/storage"
	"github.com/sandeepkv93/remindd/internal/window"
)

var (
	ErrUnknownTask = errors.New("scheduler: unknown task")
	ErrTaskClosed  = errors.New("scheduler: task is closed")
)

const (
	DefaultPollInterval   = 30 * time.Second
	DefaultBehaviorSample = 10

	// A pending high priority task is nagged once it is this far past due.
	NeglectAfter = 24 * time.Hour

	dynamicFromMinutes = 115
	dynamicToMinutes   = 125
)

// Store is the part of the task store the engine reads and writes.
type Store interface {
	ListTasks(ctx context.Context, filter storage.TaskListFilter) ([]model.Task, error)
	ListRules(ctx context.Context) ([]model.NotificationRule, error)
	ListRecentBehavior(ctx context.Context, limit int) ([]model.Behavior, error)
	GetCurrentUser(ctx context.Context) (model.UserSettings, error)
	UpdateTask(ctx context.Context, id string, patch model.TaskPatch) error
	RecordBehavior(ctx context.Context, in model.Behavior) error
}

type Options struct {
	Clock          clockwork.Clock
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
	Ledger         *ledger.Ledger
	PollInterval   time.Duration
	BehaviorSample int
	// DefaultDND applies when the user settings cannot be read.
	DefaultDND model.DNDConfig
}

// TickReport lists the notifications one evaluation pass delivered.
type TickReport struct {
	At        time.Time
	Evaluated int
	Fired     []notify.Notification
}

type snapshot struct {
	rules     []model.NotificationRule
	behaviors []model.Behavior
	dnd       model.DNDConfig
}

type outcome int

const (
	outcomeDuplicate outcome = iota
	outcomeDeferred
	outcomeMuted
	outcomeDenied
	outcomeFired
)

// consumed reports whether the checkpoint is used up.
func (o outcome) consumed() bool {
	return o == outcomeMuted || o == outcomeDenied || o == outcomeFired
}

type Engine struct {
	store   Store
	tasks   *model.TaskSet
	emitter *notify.Emitter
	cascade *cascade.Cascade
	ledger  *ledger.Ledger
	nagger  *Nagger
	clock   clockwork.Clock
	logger  *zap.Logger
	metrics *metrics.Metrics

	pollInterval   time.Duration
	behaviorSample int
	defaultDND     model.DNDConfig

	tickMu sync.Mutex

	snapMu sync.RWMutex
	snap   snapshot

	persisting sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewEngine(store Store, tasks *model.TaskSet, emitter *notify.Emitter, cc *cascade.Cascade, opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Ledger == nil {
		opts.Ledger = ledger.New(nil, opts.Logger)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.BehaviorSample <= 0 {
		opts.BehaviorSample = DefaultBehaviorSample
	}
	if tasks == nil {
		tasks = model.NewTaskSet(nil)
	}
	e := &Engine{
		store:          store,
		tasks:          tasks,
		emitter:        emitter,
		cascade:        cc,
		ledger:         opts.Ledger,
		clock:          opts.Clock,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
		pollInterval:   opts.PollInterval,
		behaviorSample: opts.BehaviorSample,
		defaultDND:     opts.DefaultDND,
		snap:           snapshot{dnd: opts.DefaultDND},
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
	e.nagger = NewNagger(opts.Clock, e.nag)
	return e
}

func (e *Engine) Tasks() *model.TaskSet { return e.tasks }

func (e *Engine) Nagger() *Nagger { return e.nagger }

func (e *Engine) PermissionBanner() string { return e.emitter.PermissionBanner() }

// Start runs one tick right away and then one per poll interval until ctx is
// done or Stop is called.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started || e.stopped {
		return
	}
	e.started = true
	e.nagger.Start()
	go e.loop(ctx)
}

// Stop halts polling, clears every persistent timer and waits for in-flight
// writes.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	started := e.started
	close(e.stopCh)
	e.mu.Unlock()

	if started {
		<-e.doneCh
	}
	e.nagger.Stop()
	e.Flush()
}

// Flush waits until every write issued so far has completed.
func (e *Engine) Flush() {
	e.persisting.Wait()
}

func (e *Engine) loop(ctx context.Context) {
	defer close(e.doneCh)
	e.Tick(ctx)

	ticker := e.clock.NewTicker(e.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.Chan():
			e.Tick(ctx)
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		}
	}
}

// Tick evaluates every task once. Ticks never overlap.
func (e *Engine) Tick(ctx context.Context) TickReport {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	start := e.clock.Now()
	defer func() { e.metrics.ObserveTick(e.clock.Since(start)) }()

	tasks, snap := e.fetch(ctx)
	report := TickReport{At: start}
	active := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		active[t.ID] = true
		e.evaluate(ctx, t, start, snap, &report)
		report.Evaluated++
	}
	if n := e.ledger.Prune(active); n > 0 {
		e.logger.Debug("pruned ledger entries", zap.Int("removed", n))
	}
	e.nagger.Retain(active)
	return report
}

// fetch refreshes the local cache from the store. A failed read falls back to
// what the previous tick saw.
func (e *Engine) fetch(ctx context.Context) ([]model.Task, snapshot) {
	e.snapMu.RLock()
	snap := e.snap
	e.snapMu.RUnlock()

	if tasks, err := e.store.ListTasks(ctx, storage.TaskListFilter{}); err != nil {
		e.logger.Warn("list tasks failed, using cached tasks", zap.Error(err))
	} else {
		e.tasks.Replace(tasks)
	}
	if rs, err := e.store.ListRules(ctx); err != nil {
		e.logger.Warn("list rules failed", zap.Error(err))
	} else {
		snap.rules = rs
	}
	if bs, err := e.store.ListRecentBehavior(ctx, e.behaviorSample); err != nil {
		e.logger.Warn("list behavior failed", zap.Error(err))
		snap.behaviors = nil
	} else {
		snap.behaviors = bs
	}
	if user, err := e.store.GetCurrentUser(ctx); err != nil {
		e.logger.Warn("get user failed, using default quiet hours", zap.Error(err))
		snap.dnd = e.defaultDND
	} else if user.DND == (model.DNDConfig{}) {
		snap.dnd = e.defaultDND
	} else {
		snap.dnd = user.DND
	}

	e.snapMu.Lock()
	e.snap = snap
	e.snapMu.Unlock()
	return e.tasks.All(), snap
}

func (e *Engine) evaluate(ctx context.Context, t model.Task, now time.Time, snap snapshot, report *TickReport) {
	if t.Status.IsClosed() {
		e.nagger.Untrack(t.ID)
		return
	}
	if t.ReminderTime == nil {
		return
	}

	w := window.Compute(t, now)
	rule := rules.Match(t, snap.rules)
	snoozed := t.SnoozeUntil != nil
	snoozeActive := snoozed && now.Before(*t.SnoozeUntil)

	switch {
	case snoozeActive:
	case snoozed:
		e.evaluateSnooze(ctx, t, w, rule, now, snap, report)
	default:
		e.evaluatePrimary(ctx, t, w, rule, now, snap, report)
	}

	if !snoozeActive && w.HasDue {
		e.evaluateCheckpoints(ctx, t, w, rule, now, snap, report)
	}
	e.evaluateNeglect(ctx, t, w, rule, now, snoozeActive, snap, report)
	e.evaluateDynamic(ctx, t, w, now)

	if t.PersistentReminder && w.HasDue && !snoozeActive && !now.Before(w.Due) {
		if e.nagger.Track(t.ID, t.Interval()) {
			e.logger.Debug("persistent reminder armed", zap.String("task_id", t.ID), zap.Duration("interval", t.Interval()))
		}
	}
}

// evaluateSnooze fires a passed snooze once, then returns the task to
// pending. The ledger key carries the snooze instant so a new snooze re-arms.
func (e *Engine) evaluateSnooze(ctx context.Context, t model.Task, w window.Window, rule *model.NotificationRule, now time.Time, snap snapshot, report *TickReport) {
	key := ledger.Key{TaskID: t.ID, Kind: ledger.KindSnooze, Date: t.SnoozeUntil.UTC().Format(time.RFC3339)}
	out := e.fire(ctx, t, key, snoozeNotification(t), rule, now, snap, report)
	if !out.consumed() {
		return
	}

	patch := model.TaskPatch{ClearSnooze: true}
	if t.Status == model.StatusSnoozed {
		patch.Status = model.Ptr(model.StatusPending)
	}
	if w.PerDay() {
		e.ledger.Claim(ctx, ledger.Key{TaskID: t.ID, Kind: ledger.KindDaily, Date: w.Date})
	} else {
		patch.ReminderSent = model.Ptr(true)
	}
	e.persist(ctx, "snooze", t.ID, patch)
}

func (e *Engine) evaluatePrimary(ctx context.Context, t model.Task, w window.Window, rule *model.NotificationRule, now time.Time, snap snapshot, report *TickReport) {
	if !w.HasDue || now.Before(w.Due) {
		return
	}
	if w.PerDay() {
		key := ledger.Key{TaskID: t.ID, Kind: ledger.KindDaily, Date: w.Date}
		e.fire(ctx, t, key, plainNotification(t, w.Due), rule, now, snap, report)
		return
	}
	if t.ReminderSent {
		return
	}
	key := ledger.Key{TaskID: t.ID, Kind: ledger.KindPrimary}
	if e.fire(ctx, t, key, plainNotification(t, w.Due), rule, now, snap, report).consumed() {
		e.persist(ctx, "reminder_sent", t.ID, model.TaskPatch{ReminderSent: model.Ptr(true)})
	}
}

// evaluateCheckpoints fires advance and strategy checkpoints inside their
// grace band.
func (e *Engine) evaluateCheckpoints(ctx context.Context, t model.Task, w window.Window, rule *model.NotificationRule, now time.Time, snap snapshot, report *TickReport) {
	for _, offset := range rules.AdvanceOffsets(t, rule) {
		if !window.CheckpointEligible(w.Due, now, offset) {
			continue
		}
		key := ledger.Key{TaskID: t.ID, Kind: ledger.KindAdvance, Offset: offset, Date: w.Date}
		e.fire(ctx, t, key, advanceNotification(t, offset), rule, now, snap, report)
	}
	if t.Strategy == nil {
		return
	}
	for _, step := range t.Strategy.Steps {
		if step.OffsetMinutes <= 0 || !window.CheckpointEligible(w.Due, now, step.OffsetMinutes) {
			continue
		}
		key := ledger.Key{TaskID: t.ID, Kind: ledger.KindStrategy, Offset: step.OffsetMinutes, Date: w.Date}
		e.fire(ctx, t, key, strategyNotification(t, step), rule, now, snap, report)
	}
}

func (e *Engine) evaluateNeglect(ctx context.Context, t model.Task, w window.Window, rule *model.NotificationRule, now time.Time, snoozeActive bool, snap snapshot, report *TickReport) {
	if t.Status != model.StatusPending || !t.Priority.IsElevated() || snoozeActive || !w.HasDue {
		return
	}
	overdue := now.Sub(w.Due)
	if overdue <= NeglectAfter || len(snap.behaviors) == 0 {
		return
	}
	key := ledger.Key{TaskID: t.ID, Kind: ledger.KindNeglect}
	e.fire(ctx, t, key, neglectNotification(t, overdue), rule, now, snap, report)
}

// evaluateDynamic is a reserved hook: it records its checkpoint once and
// emits nothing.
func (e *Engine) evaluateDynamic(ctx context.Context, t model.Task, w window.Window, now time.Time) {
	if t.Strategy == nil || !t.Strategy.DynamicAdjustment || !w.HasDue {
		return
	}
	m := window.MinutesUntil(w.Due, now)
	if m < dynamicFromMinutes || m > dynamicToMinutes {
		return
	}
	if e.ledger.Claim(ctx, ledger.Key{TaskID: t.ID, Kind: ledger.KindDynamic}) {
		e.logger.Debug("dynamic adjustment checkpoint visited", zap.String("task_id", t.ID))
	}
}

// fire runs one checkpoint through quiet hours, the ledger, the matched rule
// and the emitter, in that order. Quiet hours are checked before the ledger
// key is claimed so a suppressed checkpoint stays eligible.
func (e *Engine) fire(ctx context.Context, t model.Task, key ledger.Key, n notify.Notification, rule *model.NotificationRule, now time.Time, snap snapshot, report *TickReport) outcome {
	kind := string(key.Kind)
	if e.ledger.Seen(ctx, key) {
		e.metrics.DedupSkips.WithLabelValues(kind).Inc()
		return outcomeDuplicate
	}
	if quiet.Suppressed(now, snap.dnd) {
		e.metrics.NotificationsSuppressed.WithLabelValues("quiet_hours").Inc()
		e.logger.Debug("reminder deferred by quiet hours", zap.String("task_id", t.ID), zap.String("kind", kind))
		return outcomeDeferred
	}
	if !e.ledger.Claim(ctx, key) {
		e.metrics.DedupSkips.WithLabelValues(kind).Inc()
		return outcomeDuplicate
	}
	if rule != nil && rule.ActionMute {
		e.metrics.NotificationsSuppressed.WithLabelValues("muted").Inc()
		e.logger.Debug("reminder muted by rule", zap.String("task_id", t.ID), zap.String("rule_id", rule.ID))
		return outcomeMuted
	}

	n = e.decorate(t, kind, n, rule, now)
	if !e.emit(ctx, n) {
		return outcomeDenied
	}
	report.Fired = append(report.Fired, n)
	return outcomeFired
}

func (e *Engine) decorate(t model.Task, kind string, n notify.Notification, rule *model.NotificationRule, now time.Time) notify.Notification {
	n.TaskID = t.ID
	n.Tag = t.ID
	n.Kind = kind
	n.FiredAt = now
	n.RequireInteraction = n.RequireInteraction || t.PersistentReminder
	if rule != nil && rule.ActionSound != "" {
		n.Sound = rule.ActionSound
	}
	return n
}

// emit hands the notification to the emitter and reports whether permission
// allowed it.
func (e *Engine) emit(ctx context.Context, n notify.Notification) bool {
	err := e.emitter.Emit(ctx, n)
	if errors.Is(err, notify.ErrPermissionDenied) {
		e.metrics.NotificationsSuppressed.WithLabelValues("permission").Inc()
		e.logger.Debug("reminder not shown, permission denied", zap.String("task_id", n.TaskID))
		return false
	}
	if err != nil {
		e.logger.Warn("reminder partially delivered", zap.String("task_id", n.TaskID), zap.Error(err))
	}
	e.metrics.NotificationsFired.WithLabelValues(n.Kind).Inc()
	e.logger.Info("reminder fired", zap.String("task_id", n.TaskID), zap.String("kind", n.Kind), zap.String("title", n.Title))
	return true
}

// nag is the persistent reminder callback. It never touches the ledger.
func (e *Engine) nag(taskID string) {
	t, ok := e.tasks.Get(taskID)
	if !ok || t.Status.IsClosed() || !t.PersistentReminder {
		e.nagger.Untrack(taskID)
		return
	}
	now := e.clock.Now()
	if t.SnoozeUntil != nil && now.Before(*t.SnoozeUntil) {
		return
	}
	e.snapMu.RLock()
	snap := e.snap
	e.snapMu.RUnlock()

	if quiet.Suppressed(now, snap.dnd) {
		e.metrics.NotificationsSuppressed.WithLabelValues("quiet_hours").Inc()
		return
	}
	rule := rules.Match(t, snap.rules)
	if rule != nil && rule.ActionMute {
		e.metrics.NotificationsSuppressed.WithLabelValues("muted").Inc()
		return
	}
	e.emit(context.Background(), e.decorate(t, "persistent", persistentNotification(t), rule, now))
}

// Snooze pushes the task's next reminder minutes into the future.
func (e *Engine) Snooze(ctx context.Context, taskID string, minutes int) (model.Task, error) {
	if minutes <= 0 {
		minutes = notify.SnoozeMinutes
	}
	t, ok := e.tasks.Get(taskID)
	if !ok {
		return model.Task{}, fmt.Errorf("%w: %s", ErrUnknownTask, taskID)
	}
	if t.Status.IsClosed() {
		return model.Task{}, fmt.Errorf("%w: %s", ErrTaskClosed, taskID)
	}
	now := e.clock.Now()
	until := now.Add(time.Duration(minutes) * time.Minute)
	updated := e.persist(ctx, "snooze", taskID, model.TaskPatch{
		Status:      model.Ptr(model.StatusSnoozed),
		SnoozeUntil: &until,
		SnoozeCount: model.Ptr(t.SnoozeCount + 1),
	})
	e.ledger.Forget(taskID, ledger.KindSnooze)
	e.recordBehavior(ctx, taskID, model.BehaviorSnoozed, now)
	e.logger.Info("reminder snoozed", zap.String("task_id", taskID), zap.Time("until", until))
	return updated, nil
}

// Complete runs the completion cascade for the task and stops its nagging.
func (e *Engine) Complete(ctx context.Context, taskID string) (cascade.Result, error) {
	e.nagger.Untrack(taskID)
	return e.cascade.SetCompleted(ctx, taskID, true)
}

func (e *Engine) Uncomplete(ctx context.Context, taskID string) (cascade.Result, error) {
	return e.cascade.SetCompleted(ctx, taskID, false)
}

func (e *Engine) SetDependencies(ctx context.Context, taskID string, deps []string) (model.Task, error) {
	return e.cascade.SetDependencies(ctx, taskID, deps)
}

// Interacted records that the user opened the notification of a task.
func (e *Engine) Interacted(ctx context.Context, taskID string) {
	e.recordBehavior(ctx, taskID, model.BehaviorClicked, e.clock.Now())
}

// Load fills the local cache without evaluating anything.
func (e *Engine) Load(ctx context.Context) error {
	tasks, err := e.store.ListTasks(ctx, storage.TaskListFilter{})
	if err != nil {
		return err
	}
	e.tasks.Replace(tasks)
	return nil
}

// persist applies patch to the cache now and writes it to the store in the
// background.
func (e *Engine) persist(ctx context.Context, op, taskID string, patch model.TaskPatch) model.Task {
	updated, _ := e.tasks.Apply(taskID, patch)
	wctx := context.WithoutCancel(ctx)
	e.persisting.Add(1)
	go func() {
		defer e.persisting.Done()
		if err := e.store.UpdateTask(wctx, taskID, patch); err != nil {
			e.metrics.PersistFailures.WithLabelValues(op).Inc()
			e.logger.Warn("persist failed", zap.String("op", op), zap.String("task_id", taskID), zap.Error(err))
		}
	}()
	return updated
}

func (e *Engine) recordBehavior(ctx context.Context, taskID string, action model.BehaviorAction, at time.Time) {
	b := model.Behavior{ID: uuid.NewString(), TaskID: taskID, Action: action, OccurredAt: at}
	wctx := context.WithoutCancel(ctx)
	e.persisting.Add(1)
	go func() {
		defer e.persisting.Done()
		if err := e.store.RecordBehavior(wctx, b); err != nil {
			e.metrics.PersistFailures.WithLabelValues("behavior").Inc()
			e.logger.Warn("record behavior failed", zap.String("task_id", taskID), zap.Error(err))
		}
	}()
}
