package model

import "sync"

// TaskSet is the locally cached task collection shared by the scheduler and
// the completion cascade. Reads return clones; writes are last-writer-wins.
type TaskSet struct {
	mu    sync.RWMutex
	byID  map[string]Task
	order []string
}

func NewTaskSet(tasks []Task) *TaskSet {
	s := &TaskSet{}
	s.Replace(tasks)
	return s
}

// Replace swaps the whole collection for a fresh snapshot.
func (s *TaskSet) Replace(tasks []Task) {
	byID := make(map[string]Task, len(tasks))
	order := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if _, dup := byID[t.ID]; !dup {
			order = append(order, t.ID)
		}
		byID[t.ID] = t.Clone()
	}
	s.mu.Lock()
	s.byID = byID
	s.order = order
	s.mu.Unlock()
}

func (s *TaskSet) Get(id string) (Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[id]
	if !ok {
		return Task{}, false
	}
	return t.Clone(), true
}

func (s *TaskSet) Put(t Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byID == nil {
		s.byID = make(map[string]Task)
	}
	if _, ok := s.byID[t.ID]; !ok {
		s.order = append(s.order, t.ID)
	}
	s.byID[t.ID] = t.Clone()
}

// Apply patches the cached task and returns the updated copy.
func (s *TaskSet) Apply(id string, patch TaskPatch) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return Task{}, false
	}
	patch.Apply(&t)
	s.byID[id] = t
	return t.Clone(), true
}

// All returns every task in insertion order.
func (s *TaskSet) All() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Task, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id].Clone())
	}
	return out
}

func (s *TaskSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Subtasks returns the tasks whose parent is parentID.
func (s *TaskSet) Subtasks(parentID string) []Task {
	return s.filter(func(t Task) bool { return t.ParentTaskID == parentID })
}

// Dependents returns the tasks that list id among their dependencies.
func (s *TaskSet) Dependents(id string) []Task {
	return s.filter(func(t Task) bool {
		for _, dep := range t.Dependencies {
			if dep == id {
				return true
			}
		}
		return false
	})
}

func (s *TaskSet) filter(keep func(Task) bool) []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Task, 0)
	for _, id := range s.order {
		if t := s.byID[id]; keep(t) {
			out = append(out, t.Clone())
		}
	}
	return out
}
