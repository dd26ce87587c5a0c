package controllers

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/amaumene/bangumarr/internal/models"
)

// Task is one queued sync request and its lifecycle state
type Task struct {
	ID        string               `json:"id"`
	State     models.TaskState     `json:"state"`
	Item      models.SyncItem      `json:"item"`
	Response  *models.SyncResponse `json:"response,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
	DoneAt    time.Time            `json:"done_at,omitempty"`
}

// taskRegistry tracks queued and finished tasks in memory so callers can poll
// results of the asynchronous sync pipeline
type taskRegistry struct {
	mu     sync.Mutex
	tasks  map[string]*Task
	lastID uint64
}

func newTaskRegistry() *taskRegistry {
	return &taskRegistry{tasks: make(map[string]*Task)}
}

// add registers a new pending task and returns it
func (r *taskRegistry) add(item models.SyncItem) *Task {
	id := atomic.AddUint64(&r.lastID, 1)
	task := &Task{
		ID:        fmt.Sprintf("sync-%d-%d", time.Now().Unix(), id),
		State:     models.TaskPending,
		Item:      item,
		CreatedAt: time.Now(),
	}

	r.mu.Lock()
	r.tasks[task.ID] = task
	r.mu.Unlock()
	return task
}

// setRunning transitions a task to the running state
func (r *taskRegistry) setRunning(id string) {
	r.mu.Lock()
	if task, ok := r.tasks[id]; ok {
		task.State = models.TaskRunning
	}
	r.mu.Unlock()
}

// finish records the final response of a task. Tasks whose pipeline errored
// end up failed; everything else, including ignored items, is completed.
func (r *taskRegistry) finish(id string, response *models.SyncResponse) {
	r.mu.Lock()
	if task, ok := r.tasks[id]; ok {
		task.Response = response
		task.DoneAt = time.Now()
		if response != nil && response.Status == models.StatusError {
			task.State = models.TaskFailed
		} else {
			task.State = models.TaskCompleted
		}
	}
	r.mu.Unlock()
}

// get returns a copy of the task with the given id
func (r *taskRegistry) get(id string) (Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

// recent returns copies of the most recently created tasks, newest first
func (r *taskRegistry) recent(limit int) []Task {
	r.mu.Lock()
	tasks := make([]Task, 0, len(r.tasks))
	for _, task := range r.tasks {
		tasks = append(tasks, *task)
	}
	r.mu.Unlock()

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
	if limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return tasks
}

// counts returns the number of tasks per state
func (r *taskRegistry) counts() map[models.TaskState]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[models.TaskState]int)
	for _, task := range r.tasks {
		counts[task.State]++
	}
	return counts
}

// cleanup drops finished tasks older than maxAge and returns how many were
// removed. Pending and running tasks are never dropped.
func (r *taskRegistry) cleanup(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, task := range r.tasks {
		if task.State != models.TaskCompleted && task.State != models.TaskFailed {
			continue
		}
		if task.DoneAt.Before(cutoff) {
			delete(r.tasks, id)
			removed++
		}
	}
	return removed
}
