package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandeepkv93/remindd/internal/cascade"
	"github.com/sandeepkv93/remindd/internal/ledger"
	"github.com/sandeepkv93/remindd/internal/metrics"
	"github.com/sandeepkv93/remindd/internal/model"
	"github.com/sandeepkv93/remindd/internal/notify"
	"github.com/sandeepkv93/remindd/internal/storage"
)

type memStore struct {
	mu        sync.Mutex
	tasks     map[string]model.Task
	order     []string
	rules     []model.NotificationRule
	behaviors []model.Behavior
	user      model.UserSettings
	records   []model.CompletionRecord
	listErr   error
}

func newMemStore(tasks ...model.Task) *memStore {
	s := &memStore{tasks: make(map[string]model.Task)}
	for _, t := range tasks {
		s.put(t)
	}
	return s
}

func (s *memStore) put(t model.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.ID]; !ok {
		s.order = append(s.order, t.ID)
	}
	s.tasks[t.ID] = t.Clone()
}

func (s *memStore) get(id string) model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks[id].Clone()
}

func (s *memStore) ListTasks(context.Context, storage.TaskListFilter) ([]model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]model.Task, 0, len(s.order))
	for _, id := range s.order {
		if t, ok := s.tasks[id]; ok {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

func (s *memStore) ListRules(context.Context) ([]model.NotificationRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.NotificationRule(nil), s.rules...), nil
}

func (s *memStore) ListRecentBehavior(_ context.Context, limit int) ([]model.Behavior, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Behavior, 0, limit)
	for i := len(s.behaviors) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.behaviors[i])
	}
	return out, nil
}

func (s *memStore) GetCurrentUser(context.Context) (model.UserSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user, nil
}

func (s *memStore) UpdateTask(_ context.Context, id string, patch model.TaskPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return storage.ErrNotFound
	}
	patch.Apply(&t)
	s.tasks[id] = t
	return nil
}

func (s *memStore) RecordBehavior(_ context.Context, in model.Behavior) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.behaviors = append(s.behaviors, in)
	return nil
}

func (s *memStore) CreateCompletionRecord(_ context.Context, in model.CompletionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, in)
	return nil
}

func (s *memStore) DeleteMostRecentCompletionRecord(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].TaskID == taskID {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return nil
		}
	}
	return storage.ErrNotFound
}

func (s *memStore) AttachNarrative(context.Context, string, string) error { return nil }

type countingSink struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (c *countingSink) Name() string { return "test" }

func (c *countingSink) Send(_ context.Context, n notify.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
	return nil
}

func (c *countingSink) count(kind string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, s := range c.sent {
		if kind == "" || s.Kind == kind {
			n++
		}
	}
	return n
}

func (c *countingSink) last() notify.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent[len(c.sent)-1]
}

type harness struct {
	clock   fakeClock
	store   *memStore
	sink    *countingSink
	markers *ledger.MemoryMarkers
	metrics *metrics.Metrics
	engine  *Engine
}

func newHarness(t *testing.T, start time.Time, tasks ...model.Task) *harness {
	t.Helper()
	h := &harness{
		clock:   clockwork.NewFakeClockAt(start),
		store:   newMemStore(tasks...),
		sink:    &countingSink{},
		markers: ledger.NewMemoryMarkers(),
	}
	h.engine = h.newEngine(notify.PermissionGranted)
	t.Cleanup(h.engine.Stop)
	return h
}

// newEngine builds an engine over the harness store and markers, as a
// reload of the same session would.
func (h *harness) newEngine(perm notify.Permission) *Engine {
	h.metrics = metrics.New()
	set := model.NewTaskSet(nil)
	emitter := notify.NewEmitter(notify.Options{Permission: perm, Sinks: []notify.Sink{h.sink}, AlertBuffer: 256})
	cc := cascade.New(set, h.store, cascade.Options{Clock: h.clock, Metrics: h.metrics})
	return NewEngine(h.store, set, emitter, cc, Options{
		Clock:   h.clock,
		Metrics: h.metrics,
		Ledger:  ledger.New(h.markers, nil),
	})
}

func (h *harness) tick() TickReport {
	r := h.engine.Tick(context.Background())
	h.engine.Flush()
	return r
}

func (h *harness) advanceTo(ts time.Time) {
	h.clock.Advance(ts.Sub(h.clock.Now()))
}

func at(day, hh, mm int) time.Time {
	return time.Date(2026, 2, day, hh, mm, 0, 0, time.UTC)
}

func pendingTask(id string, reminder time.Time) model.Task {
	return model.Task{
		ID:           id,
		Title:        "Task " + id,
		Status:       model.StatusPending,
		Priority:     model.PriorityMedium,
		ReminderTime: model.Ptr(reminder),
		CreatedAt:    reminder.Add(-48 * time.Hour),
	}
}

func TestPlainReminderFiresExactlyOnceAcrossTicks(t *testing.T) {
	h := newHarness(t, at(10, 9, 1), pendingTask("t1", at(10, 9, 0)))

	for i := 0; i < 20; i++ {
		h.tick()
		h.clock.Advance(30 * time.Second)
	}
	assert.Equal(t, 1, h.sink.count(""))
	assert.True(t, h.store.get("t1").ReminderSent)

	// A reload sees reminder_sent and stays quiet.
	h.engine = h.newEngine(notify.PermissionGranted)
	h.tick()
	assert.Equal(t, 1, h.sink.count(""))
}

func TestFutureReminderWaitsForDueInstant(t *testing.T) {
	h := newHarness(t, at(10, 8, 0), pendingTask("t1", at(10, 9, 0)))
	h.tick()
	assert.Zero(t, h.sink.count(""))

	h.advanceTo(at(10, 9, 0))
	h.tick()
	assert.Equal(t, 1, h.sink.count(string(ledger.KindPrimary)))
}

func TestUndatedAndClosedTasksNeverFire(t *testing.T) {
	undated := pendingTask("undated", at(10, 9, 0))
	undated.ReminderTime = nil
	done := pendingTask("done", at(10, 9, 0))
	done.Status = model.StatusCompleted
	done.CompletedAt = model.Ptr(at(10, 8, 0))
	cancelled := pendingTask("cancelled", at(10, 9, 0))
	cancelled.Status = model.StatusCancelled

	h := newHarness(t, at(10, 10, 0), undated, done, cancelled)
	r := h.tick()
	assert.Equal(t, 3, r.Evaluated)
	assert.Zero(t, h.sink.count(""))
}

func TestMultiDayFiresOncePerCalendarDay(t *testing.T) {
	trip := pendingTask("trip", at(10, 9, 0))
	trip.EndTime = model.Ptr(at(12, 18, 0))
	h := newHarness(t, at(10, 8, 0), trip)

	for i := 0; i < 100; i++ {
		h.tick()
		h.clock.Advance(9 * time.Minute)
	}
	require.Equal(t, 1, h.sink.count(string(ledger.KindDaily)))
	assert.False(t, h.store.get("trip").ReminderSent)

	// Reload on the same day: the durable marker holds.
	h.engine = h.newEngine(notify.PermissionGranted)
	h.tick()
	assert.Equal(t, 1, h.sink.count(""))

	h.advanceTo(at(11, 9, 0))
	h.tick()
	assert.Equal(t, 2, h.sink.count(string(ledger.KindDaily)))

	h.advanceTo(at(13, 9, 0))
	h.tick()
	assert.Equal(t, 2, h.sink.count(""), "range ended on the 12th")
}

func TestRecurringDailyFiresEachDay(t *testing.T) {
	standup := pendingTask("standup", at(9, 9, 30))
	standup.RepeatRule = model.RepeatDaily
	h := newHarness(t, at(10, 9, 0), standup)

	h.tick()
	assert.Zero(t, h.sink.count(""))
	h.advanceTo(at(10, 9, 30))
	h.tick()
	h.tick()
	assert.Equal(t, 1, h.sink.count(""))

	h.advanceTo(at(11, 9, 31))
	h.tick()
	assert.Equal(t, 2, h.sink.count(""))
	has, err := h.markers.Has(context.Background(), "standup"+ledger.MarkerSeparator+"2026-02-11")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestQuietHoursDeferOvernightFire(t *testing.T) {
	h := newHarness(t, at(10, 23, 30),
		pendingTask("late", at(10, 23, 30)),
		pendingTask("morning", at(11, 9, 0)),
	)
	h.store.user = model.UserSettings{DND: model.DNDConfig{Enabled: true, Start: "22:00", End: "08:00"}}

	h.tick()
	assert.Zero(t, h.sink.count(""), "23:30 falls in quiet hours")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.NotificationsSuppressed.WithLabelValues("quiet_hours")))
	assert.False(t, h.store.get("late").ReminderSent)

	h.advanceTo(at(11, 7, 59))
	h.tick()
	assert.Zero(t, h.sink.count(""))

	h.advanceTo(at(11, 8, 0))
	h.tick()
	require.Equal(t, 1, h.sink.count(""))
	assert.Equal(t, "late", h.sink.last().TaskID)

	h.advanceTo(at(11, 9, 0))
	h.tick()
	assert.Equal(t, 2, h.sink.count(""))
	assert.Equal(t, "morning", h.sink.last().TaskID)
}

func TestAdvanceCheckpointGraceBand(t *testing.T) {
	due := at(10, 12, 0)
	meeting := pendingTask("meeting", due)
	meeting.AdvanceReminders = []int{30}
	h := newHarness(t, due.Add(-40*time.Minute), meeting)

	h.tick()
	assert.Zero(t, h.sink.count(""), "T-40 is outside the band")

	h.advanceTo(due.Add(-28 * time.Minute))
	h.tick()
	require.Equal(t, 1, h.sink.count(string(ledger.KindAdvance)))
	assert.Equal(t, "30 minutes until due", h.sink.last().Body)

	h.advanceTo(due.Add(-27 * time.Minute))
	h.tick()
	h.advanceTo(due.Add(-24 * time.Minute))
	h.tick()
	assert.Equal(t, 1, h.sink.count(string(ledger.KindAdvance)))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.DedupSkips.WithLabelValues("advance")))
	assert.False(t, h.store.get("meeting").ReminderSent, "advance fires never mark reminder_sent")
}

func TestAdvanceCheckpointMissedBandDoesNotFireLate(t *testing.T) {
	due := at(10, 12, 0)
	meeting := pendingTask("meeting", due)
	meeting.AdvanceReminders = []int{30}
	h := newHarness(t, due.Add(-20*time.Minute), meeting)

	h.tick()
	assert.Zero(t, h.sink.count(""))
}

func TestRuleContributesCheckpointsAndSound(t *testing.T) {
	due := at(10, 12, 0)
	h := newHarness(t, due.Add(-9*time.Minute), pendingTask("t1", due))
	h.store.rules = []model.NotificationRule{
		{ID: "r1", IsEnabled: true, ConditionCategory: model.MatchAll, ConditionPriority: model.MatchAll, ActionSound: "chime", ActionAdvanceMinutes: []int{10}},
	}

	h.tick()
	require.Equal(t, 1, h.sink.count(string(ledger.KindAdvance)))
	assert.Equal(t, "chime", h.sink.last().Sound)
}

func TestMutedRuleConsumesCheckpoint(t *testing.T) {
	task := pendingTask("t1", at(10, 9, 0))
	task.Category = "spam"
	h := newHarness(t, at(10, 9, 5), task)
	h.store.rules = []model.NotificationRule{
		{ID: "mute", IsEnabled: true, ConditionCategory: "spam", ConditionPriority: model.MatchAll, ActionMute: true},
	}

	h.tick()
	h.tick()
	assert.Zero(t, h.sink.count(""))
	assert.True(t, h.store.get("t1").ReminderSent)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.NotificationsSuppressed.WithLabelValues("muted")))
}

func TestStrategyStepCarriesMessage(t *testing.T) {
	due := at(10, 15, 0)
	task := pendingTask("flight", due)
	task.Strategy = &model.ReminderStrategy{Steps: []model.StrategyStep{
		{OffsetMinutes: 60, MessageType: model.MessageUrgent, CustomMessage: "Leave for the airport"},
		{OffsetMinutes: 30, MessageType: model.MessageEncouraging},
	}}
	h := newHarness(t, due.Add(-58*time.Minute), task)

	h.tick()
	require.Equal(t, 1, h.sink.count(string(ledger.KindStrategy)))
	first := h.sink.last()
	assert.Equal(t, "Leave for the airport", first.Body)
	assert.Equal(t, model.MessageUrgent, first.MessageType)
	assert.True(t, first.RequireInteraction)

	h.advanceTo(due.Add(-29 * time.Minute))
	h.tick()
	require.Equal(t, 2, h.sink.count(string(ledger.KindStrategy)))
	assert.Equal(t, model.MessageEncouraging, h.sink.last().MessageType)
}

func TestNeglectCheckFiresOnceWithRecentActivity(t *testing.T) {
	stale := pendingTask("stale", at(8, 9, 0))
	stale.Priority = model.PriorityUrgent
	stale.ReminderSent = true
	h := newHarness(t, at(10, 10, 0), stale)

	h.tick()
	assert.Zero(t, h.sink.count(""), "no recent activity")

	h.store.behaviors = []model.Behavior{{ID: "b1", TaskID: "other", Action: model.BehaviorCompleted, OccurredAt: at(10, 9, 0)}}
	h.tick()
	require.Equal(t, 1, h.sink.count(string(ledger.KindNeglect)))
	assert.Equal(t, model.MessageUrgent, h.sink.last().MessageType)

	h.clock.Advance(time.Hour)
	h.tick()
	assert.Equal(t, 1, h.sink.count(string(ledger.KindNeglect)))
}

func TestNeglectCheckIgnoresLowPriority(t *testing.T) {
	stale := pendingTask("stale", at(8, 9, 0))
	stale.ReminderSent = true
	h := newHarness(t, at(10, 10, 0), stale)
	h.store.behaviors = []model.Behavior{{ID: "b1", Action: model.BehaviorClicked, OccurredAt: at(10, 9, 0)}}

	h.tick()
	assert.Zero(t, h.sink.count(""))
}

func TestDynamicAdjustmentIsVisitedOnceAndSilent(t *testing.T) {
	due := at(10, 14, 0)
	task := pendingTask("t1", due)
	task.Strategy = &model.ReminderStrategy{DynamicAdjustment: true}
	h := newHarness(t, due.Add(-120*time.Minute), task)

	h.tick()
	h.clock.Advance(time.Minute)
	h.tick()
	assert.Zero(t, h.sink.count(""))
	assert.True(t, h.engine.ledger.Seen(context.Background(), ledger.Key{TaskID: "t1", Kind: ledger.KindDynamic}))
}

func TestSnoozeHoldsUntilNewInstant(t *testing.T) {
	h := newHarness(t, at(10, 9, 0), pendingTask("t1", at(10, 9, 0)))
	ctx := context.Background()

	h.tick()
	require.Equal(t, 1, h.sink.count(""))

	h.advanceTo(at(10, 9, 1))
	snoozed, err := h.engine.Snooze(ctx, "t1", 15)
	require.NoError(t, err)
	h.engine.Flush()
	assert.Equal(t, model.StatusSnoozed, snoozed.Status)
	assert.Equal(t, 1, snoozed.SnoozeCount)
	require.NotNil(t, snoozed.SnoozeUntil)
	assert.True(t, snoozed.SnoozeUntil.Equal(at(10, 9, 16)))

	for _, ts := range []time.Time{at(10, 9, 5), at(10, 9, 10), at(10, 9, 15)} {
		h.advanceTo(ts)
		h.tick()
		assert.Equal(t, 1, h.sink.count(""), "fired before snooze ended at %s", ts.Format("15:04"))
	}

	h.advanceTo(at(10, 9, 16))
	h.tick()
	require.Equal(t, 1, h.sink.count(string(ledger.KindSnooze)))

	stored := h.store.get("t1")
	assert.Equal(t, model.StatusPending, stored.Status)
	assert.Nil(t, stored.SnoozeUntil)
	assert.True(t, stored.ReminderSent)

	h.advanceTo(at(10, 9, 30))
	h.tick()
	assert.Equal(t, 2, h.sink.count(""))

	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	require.Len(t, h.store.behaviors, 1)
	assert.Equal(t, model.BehaviorSnoozed, h.store.behaviors[0].Action)
}

func TestSnoozeSuppressesAdvanceCheckpoints(t *testing.T) {
	due := at(10, 12, 0)
	task := pendingTask("t1", due)
	task.AdvanceReminders = []int{10}
	task.SnoozeUntil = model.Ptr(at(10, 12, 30))
	task.Status = model.StatusSnoozed
	h := newHarness(t, due.Add(-8*time.Minute), task)

	h.tick()
	assert.Zero(t, h.sink.count(""))
}

func TestSnoozeUnknownOrClosedTask(t *testing.T) {
	done := pendingTask("done", at(10, 9, 0))
	done.Status = model.StatusCancelled
	h := newHarness(t, at(10, 9, 0), done)
	h.tick()

	_, err := h.engine.Snooze(context.Background(), "ghost", 15)
	assert.ErrorIs(t, err, ErrUnknownTask)
	_, err = h.engine.Snooze(context.Background(), "done", 15)
	assert.ErrorIs(t, err, ErrTaskClosed)
}

func TestPermissionDeniedConsumesWithoutRetry(t *testing.T) {
	h := newHarness(t, at(10, 9, 0), pendingTask("t1", at(10, 9, 0)))
	h.engine = h.newEngine(notify.PermissionDenied)

	h.tick()
	h.tick()
	assert.Zero(t, h.sink.count(""))
	assert.True(t, h.store.get("t1").ReminderSent)
	assert.NotEmpty(t, h.engine.PermissionBanner())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.NotificationsSuppressed.WithLabelValues("permission")))
}

func TestPersistentReminderNagsUntilCompleted(t *testing.T) {
	task := pendingTask("nag", at(10, 9, 0))
	task.PersistentReminder = true
	task.NotificationInterval = 15
	h := newHarness(t, at(10, 9, 0), task)
	h.engine.Nagger().Start()

	h.tick()
	require.Equal(t, 1, h.sink.count(string(ledger.KindPrimary)))
	assert.True(t, h.sink.last().RequireInteraction)
	require.True(t, h.engine.Nagger().Tracked("nag"))

	h.tick()
	assert.Equal(t, 1, h.engine.Nagger().Len(), "re-evaluation must not add a second timer")

	for i := 1; i <= 2; i++ {
		h.clock.BlockUntil(1)
		h.clock.Advance(15 * time.Minute)
		require.Eventually(t, func() bool { return h.sink.count("persistent") == i }, time.Second, 5*time.Millisecond)
	}

	res, err := h.engine.Complete(context.Background(), "nag")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, res.Task.Status)
	assert.False(t, h.engine.Nagger().Tracked("nag"))
	h.engine.Flush()
	assert.Equal(t, model.StatusCompleted, h.store.get("nag").Status)
}

func TestClosedTaskTearsDownNag(t *testing.T) {
	task := pendingTask("nag", at(10, 9, 0))
	task.PersistentReminder = true
	h := newHarness(t, at(10, 9, 0), task)

	h.tick()
	require.True(t, h.engine.Nagger().Tracked("nag"))

	require.NoError(t, h.store.UpdateTask(context.Background(), "nag", model.TaskPatch{Status: model.Ptr(model.StatusCancelled)}))
	h.tick()
	assert.False(t, h.engine.Nagger().Tracked("nag"))
}

func TestDeletedTaskIsPruned(t *testing.T) {
	task := pendingTask("gone", at(10, 9, 0))
	task.PersistentReminder = true
	h := newHarness(t, at(10, 9, 0), task)

	h.tick()
	require.True(t, h.engine.Nagger().Tracked("gone"))
	require.Positive(t, h.engine.ledger.Len())

	h.store.mu.Lock()
	delete(h.store.tasks, "gone")
	h.store.mu.Unlock()
	h.tick()
	assert.False(t, h.engine.Nagger().Tracked("gone"))
	assert.Zero(t, h.engine.ledger.Len())
}

func TestTickFallsBackToCachedTasks(t *testing.T) {
	h := newHarness(t, at(10, 8, 0), pendingTask("t1", at(10, 9, 0)))
	h.tick()

	h.store.mu.Lock()
	h.store.listErr = errors.New("store offline")
	h.store.mu.Unlock()

	h.advanceTo(at(10, 9, 0))
	r := h.tick()
	assert.Equal(t, 1, r.Evaluated)
	assert.Equal(t, 1, h.sink.count(""))
	require.Len(t, r.Fired, 1)
	assert.Equal(t, "t1", r.Fired[0].TaskID)
}

func TestInteractedRecordsBehavior(t *testing.T) {
	h := newHarness(t, at(10, 9, 0), pendingTask("t1", at(10, 9, 0)))
	h.engine.Interacted(context.Background(), "t1")
	h.engine.Flush()

	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	require.Len(t, h.store.behaviors, 1)
	assert.Equal(t, model.BehaviorClicked, h.store.behaviors[0].Action)
}

func TestStartStopClearsTimers(t *testing.T) {
	task := pendingTask("nag", at(10, 9, 0))
	task.PersistentReminder = true
	h := newHarness(t, at(10, 9, 0), task)

	h.engine.Start(context.Background())
	require.Eventually(t, func() bool { return h.engine.Nagger().Tracked("nag") }, time.Second, 5*time.Millisecond)

	h.engine.Stop()
	assert.Zero(t, h.engine.Nagger().Len())
	assert.False(t, h.engine.Nagger().Track("other", time.Minute))
	h.engine.Stop()
}
