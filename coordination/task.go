package coordination

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/casualjim/agora/agent"
)

// Status is where a task stands in an allocation.
type Status uint8

const (
	Pending Status = iota
	Assigned
	Unassigned
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Assigned:
		return "assigned"
	case Unassigned:
		return "unassigned"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

type Task struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Effort      int    `json:"effort"`
	// Priority orders allocation, highest first.
	Priority int `json:"priority"`
	// Skill is required of the assignee when set.
	Skill    string `json:"skill,omitempty"`
	Assignee string `json:"assignee,omitempty"`
	Status   Status `json:"status"`
}

func (t Task) String() string {
	s := fmt.Sprintf("%s %q (effort %d, priority %d)", t.ID, t.Description, t.Effort, t.Priority)
	if t.Skill != "" {
		s += " needs " + t.Skill
	}
	return s
}

// byPriority returns the tasks sorted by descending priority, keeping the
// given order among equals.
func byPriority(tasks []Task) []Task {
	sorted := slices.Clone(tasks)
	slices.SortStableFunc(sorted, func(a, b Task) int { return cmp.Compare(b.Priority, a.Priority) })
	return sorted
}

// Worker is an agent with a bounded capacity for work.
type Worker struct {
	*agent.Agent
	Capacity int
	Skills   []string

	mu    sync.Mutex
	load  int
	tasks []string
}

func NewWorker(a *agent.Agent, capacity int, skills ...string) *Worker {
	w := &Worker{Agent: a, Capacity: capacity, Skills: skills}
	w.publish()
	return w
}

func (w *Worker) Load() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.load
}

// Tasks returns the ids of the tasks taken so far.
func (w *Worker) Tasks() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.tasks)
}

func (w *Worker) HasSkill(skill string) bool {
	return skill == "" || slices.Contains(w.Skills, skill)
}

// Fits reports whether the worker has the skill and the spare capacity for t.
func (w *Worker) Fits(t Task) bool {
	return w.HasSkill(t.Skill) && w.Load()+t.Effort <= w.Capacity
}

// Summary describes the worker on one line.
func (w *Worker) Summary() string {
	s := fmt.Sprintf("%s: load %d/%d", w.Name(), w.Load(), w.Capacity)
	if len(w.Skills) > 0 {
		s += ", skills " + strings.Join(w.Skills, ", ")
	}
	return s
}

func (w *Worker) take(t Task) error {
	w.mu.Lock()
	if !w.HasSkill(t.Skill) || w.load+t.Effort > w.Capacity {
		w.mu.Unlock()
		return fmt.Errorf("%w: %s cannot take %s", ErrNoCapacity, w.Name(), t.ID)
	}
	w.load += t.Effort
	w.tasks = append(w.tasks, t.ID)
	w.mu.Unlock()
	w.publish()
	return nil
}

// publish mirrors the load into the agent's state so it shows up in prompts.
func (w *Worker) publish() {
	w.mu.Lock()
	load, tasks := w.load, len(w.tasks)
	w.mu.Unlock()
	w.Set("load", load)
	w.Set("capacity", w.Capacity)
	w.Set("tasks", tasks)
}

// LoadSummary describes every worker, one per line.
func LoadSummary(workers []*Worker) string {
	lines := make([]string, 0, len(workers))
	for _, w := range workers {
		lines = append(lines, "- "+w.Summary())
	}
	return strings.Join(lines, "\n")
}

// leastLoaded returns the fitting worker with the lowest load, ties broken by
// registration order.
func leastLoaded(workers []*Worker, t Task) *Worker {
	var best *Worker
	for _, w := range workers {
		if !w.Fits(t) {
			continue
		}
		if best == nil || w.Load() < best.Load() {
			best = w
		}
	}
	return best
}
