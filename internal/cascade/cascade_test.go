package cascade

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

	"github.com/sandeepkv93/remindd/internal/assist"
	"github.com/sandeepkv93/remindd/internal/metrics"
	"github.com/sandeepkv93/remindd/internal/model"
)

type fakeStore struct {
	mu         sync.Mutex
	updates    map[string][]model.TaskPatch
	records    []model.CompletionRecord
	behaviors  []model.Behavior
	narratives map[string]string
	failIDs    map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		updates:    make(map[string][]model.TaskPatch),
		narratives: make(map[string]string),
		failIDs:    make(map[string]bool),
	}
}

func (s *fakeStore) UpdateTask(_ context.Context, id string, patch model.TaskPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failIDs[id] {
		return errors.New("store unavailable")
	}
	s.updates[id] = append(s.updates[id], patch)
	return nil
}

func (s *fakeStore) CreateCompletionRecord(_ context.Context, in model.CompletionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, in)
	return nil
}

func (s *fakeStore) DeleteMostRecentCompletionRecord(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].TaskID == taskID {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return nil
		}
	}
	return errors.New("not found")
}

func (s *fakeStore) AttachNarrative(_ context.Context, recordID, narrative string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.narratives[recordID] = narrative
	return nil
}

func (s *fakeStore) RecordBehavior(_ context.Context, in model.Behavior) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.behaviors = append(s.behaviors, in)
	return nil
}

func (s *fakeStore) statusWrites(id string) []model.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Status, 0)
	for _, p := range s.updates[id] {
		if p.Status != nil {
			out = append(out, *p.Status)
		}
	}
	return out
}

func (s *fakeStore) recordsFor(id string) []model.CompletionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.CompletionRecord, 0)
	for _, r := range s.records {
		if r.TaskID == id {
			out = append(out, r)
		}
	}
	return out
}

var epoch = time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)

func task(id string, status model.Status) model.Task {
	t := model.Task{ID: id, Title: id, Status: status, Priority: model.PriorityMedium, CreatedAt: epoch}
	if status == model.StatusCompleted {
		t.CompletedAt = model.Ptr(epoch)
	}
	return t
}

func subtask(id, parent string, status model.Status) model.Task {
	t := task(id, status)
	t.ParentTaskID = parent
	return t
}

func setup(t *testing.T, tasks ...model.Task) (*Cascade, *model.TaskSet, *fakeStore) {
	t.Helper()
	set := model.NewTaskSet(tasks)
	store := newFakeStore()
	c := New(set, store, Options{Clock: clockwork.NewFakeClockAt(epoch)})
	return c, set, store
}

func status(t *testing.T, set *model.TaskSet, id string) model.Status {
	t.Helper()
	got, ok := set.Get(id)
	require.True(t, ok, "task %s missing", id)
	return got.Status
}

func TestCompleteCascadesToIncompleteSubtasks(t *testing.T) {
	c, set, store := setup(t,
		task("p", model.StatusPending),
		subtask("s1", "p", model.StatusPending),
		subtask("s2", "p", model.StatusInProgress),
		subtask("s3", "p", model.StatusBlocked),
		subtask("s4", "p", model.StatusCompleted),
	)

	res, err := c.SetCompleted(context.Background(), "p", true)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s1", "s2", "s3"}, res.Subtasks)
	for _, id := range []string{"p", "s1", "s2", "s3", "s4"} {
		assert.Equal(t, model.StatusCompleted, status(t, set, id), id)
	}
	assert.Empty(t, store.statusWrites("s4"), "already completed subtask must be left alone")
	assert.Equal(t, 100, res.Task.Progress)
	assert.Len(t, store.recordsFor("p"), 1)
}

func TestSubtaskWriteFailureDoesNotRollBackOthers(t *testing.T) {
	c, set, store := setup(t,
		task("p", model.StatusPending),
		subtask("s1", "p", model.StatusPending),
		subtask("s2", "p", model.StatusPending),
	)
	m := metrics.New()
	c.metrics = m
	store.failIDs["s1"] = true

	_, err := c.SetCompleted(context.Background(), "p", true)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, status(t, set, "s1"))
	assert.Equal(t, []model.Status{model.StatusCompleted}, store.statusWrites("s2"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PersistFailures.WithLabelValues("status")))
}

func TestDependentUnblocksOnlyWhenAllDependenciesComplete(t *testing.T) {
	dependent := task("c", model.StatusBlocked)
	dependent.Dependencies = []string{"a", "b"}
	c, set, store := setup(t,
		task("a", model.StatusCompleted),
		task("b", model.StatusPending),
		task("x", model.StatusPending),
		dependent,
	)

	_, err := c.SetCompleted(context.Background(), "x", true)
	require.NoError(t, err)
	assert.Equal(t, model.StatusBlocked, status(t, set, "c"))

	res, err := c.SetCompleted(context.Background(), "b", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, res.Unblocked)
	assert.Equal(t, model.StatusPending, status(t, set, "c"))

	res, err = c.SetCompleted(context.Background(), "b", true)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Empty(t, res.Unblocked)
	assert.Equal(t, []model.Status{model.StatusPending}, store.statusWrites("c"))
}

func TestDependentStaysBlockedWhileOtherDependencyPending(t *testing.T) {
	dependent := task("c", model.StatusBlocked)
	dependent.Dependencies = []string{"a", "b"}
	c, set, _ := setup(t, task("a", model.StatusPending), task("b", model.StatusPending), dependent)

	res, err := c.SetCompleted(context.Background(), "a", true)
	require.NoError(t, err)
	assert.Empty(t, res.Unblocked)
	assert.Equal(t, model.StatusBlocked, status(t, set, "c"))
}

func TestMissingDependencyDoesNotBlock(t *testing.T) {
	dependent := task("c", model.StatusBlocked)
	dependent.Dependencies = []string{"a", "deleted"}
	c, set, _ := setup(t, task("a", model.StatusPending), dependent)

	_, err := c.SetCompleted(context.Background(), "a", true)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, status(t, set, "c"))
}

func TestUncompleteRemovesOnlyMostRecentRecord(t *testing.T) {
	c, set, store := setup(t, task("t", model.StatusPending))
	store.records = []model.CompletionRecord{
		{ID: "older-1", TaskID: "t", CompletedAt: epoch.AddDate(0, 0, -2)},
		{ID: "older-2", TaskID: "t", CompletedAt: epoch.AddDate(0, 0, -1)},
	}
	ctx := context.Background()

	res, err := c.SetCompleted(ctx, "t", true)
	require.NoError(t, err)
	require.Len(t, store.recordsFor("t"), 3)

	_, err = c.SetCompleted(ctx, "t", true)
	require.NoError(t, err)
	require.Len(t, store.recordsFor("t"), 3, "toggling to the current state must not add a record")

	_, err = c.SetCompleted(ctx, "t", false)
	require.NoError(t, err)
	remaining := store.recordsFor("t")
	require.Len(t, remaining, 2)
	assert.Equal(t, "older-1", remaining[0].ID)
	assert.Equal(t, "older-2", remaining[1].ID)
	assert.NotEqual(t, res.RecordID, remaining[1].ID)

	got, _ := set.Get("t")
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Nil(t, got.CompletedAt)
}

func TestSubtaskToggleRecomputesParentProgress(t *testing.T) {
	c, set, store := setup(t,
		task("p", model.StatusPending),
		subtask("s1", "p", model.StatusPending),
		subtask("s2", "p", model.StatusPending),
		subtask("s3", "p", model.StatusPending),
	)
	ctx := context.Background()

	res, err := c.SetCompleted(ctx, "s1", true)
	require.NoError(t, err)
	require.NotNil(t, res.ParentProgress)
	assert.Equal(t, 33, *res.ParentProgress)

	res, err = c.SetCompleted(ctx, "s2", true)
	require.NoError(t, err)
	assert.Equal(t, 67, *res.ParentProgress)

	res, err = c.SetCompleted(ctx, "s2", false)
	require.NoError(t, err)
	assert.Equal(t, 33, *res.ParentProgress)

	parent, _ := set.Get("p")
	assert.Equal(t, 33, parent.Progress)
	assert.Len(t, store.updates["p"], 3)
}

func TestProgressRounding(t *testing.T) {
	assert.Equal(t, 0, Progress(0, 0))
	assert.Equal(t, 33, Progress(1, 3))
	assert.Equal(t, 67, Progress(2, 3))
	assert.Equal(t, 50, Progress(1, 2))
	assert.Equal(t, 14, Progress(1, 7))
	assert.Equal(t, 100, Progress(7, 7))
}

func TestSetDependencies(t *testing.T) {
	done := task("done", model.StatusCompleted)
	c, set, _ := setup(t,
		task("a", model.StatusPending),
		task("b", model.StatusCompleted),
		task("t", model.StatusPending),
		done,
	)
	ctx := context.Background()

	got, err := c.SetDependencies(ctx, "t", []string{"a", "b", "a"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusBlocked, got.Status)
	assert.Equal(t, []string{"a", "b"}, got.Dependencies)

	got, err = c.SetDependencies(ctx, "t", []string{"b"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)

	got, err = c.SetDependencies(ctx, "done", []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)

	_, err = c.SetDependencies(ctx, "t", []string{"t"})
	assert.Error(t, err)

	_, err = c.SetDependencies(ctx, "nope", nil)
	assert.ErrorIs(t, err, ErrUnknownTask)
	assert.Equal(t, model.StatusPending, status(t, set, "t"))
}

type stubSummarizer struct {
	out string
	err error
}

func (s stubSummarizer) Summarize(context.Context, assist.CompletionInput) (string, error) {
	return s.out, s.err
}

func TestNarrativeAttachedInBackground(t *testing.T) {
	set := model.NewTaskSet([]model.Task{task("t", model.StatusPending)})
	store := newFakeStore()
	got := make(chan string, 1)
	c := New(set, store, Options{
		Clock:       clockwork.NewFakeClockAt(epoch),
		Summarizer:  stubSummarizer{out: "**Nice work**"},
		OnNarrative: func(_, narrative string) { got <- narrative },
	})

	res, err := c.SetCompleted(context.Background(), "t", true)
	require.NoError(t, err)
	c.Wait()
	assert.Equal(t, "**Nice work**", <-got)
	store.mu.Lock()
	assert.Equal(t, "**Nice work**", store.narratives[res.RecordID])
	store.mu.Unlock()
}

func TestNarrativeFailureIsSwallowed(t *testing.T) {
	set := model.NewTaskSet([]model.Task{task("t", model.StatusPending)})
	store := newFakeStore()
	c := New(set, store, Options{
		Clock:      clockwork.NewFakeClockAt(epoch),
		Summarizer: stubSummarizer{err: errors.New("model overloaded")},
	})

	res, err := c.SetCompleted(context.Background(), "t", true)
	require.NoError(t, err)
	c.Wait()
	assert.Equal(t, model.StatusCompleted, res.Task.Status)
	assert.Empty(t, store.narratives)
}

func TestUnknownTask(t *testing.T) {
	c, _, _ := setup(t)
	_, err := c.SetCompleted(context.Background(), "ghost", true)
	assert.ErrorIs(t, err, ErrUnknownTask)
}
