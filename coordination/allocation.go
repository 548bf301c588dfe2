package coordination

import (
	"errors"
	"slices"
)

var (
	ErrNoCapacity = errors.New("no capacity")
	ErrNoWorkers  = errors.New("at least one worker is required")
)

// Assignment explains where one task went.
type Assignment struct {
	Task   Task
	Worker string
	Reason string
	// Fallback is set when the model's answer was not used.
	Fallback bool
}

// WorkerLoad is a worker's load at the end of an allocation.
type WorkerLoad struct {
	Worker   string
	Load     int
	Capacity int
	Tasks    []string
}

// Allocation is the outcome of distributing a batch of tasks.
type Allocation struct {
	Strategy    string
	Assignments []Assignment
	Unassigned  []Task
	Loads       []WorkerLoad
}

// Spread is the difference between the most and least loaded workers.
func (a Allocation) Spread() int {
	if len(a.Loads) == 0 {
		return 0
	}
	loads := make([]int, 0, len(a.Loads))
	for _, l := range a.Loads {
		loads = append(loads, l.Load)
	}
	return slices.Max(loads) - slices.Min(loads)
}

// Fallbacks counts the assignments decided without the model.
func (a Allocation) Fallbacks() int {
	n := 0
	for _, as := range a.Assignments {
		if as.Fallback {
			n++
		}
	}
	return n
}

func snapshot(workers []*Worker) []WorkerLoad {
	loads := make([]WorkerLoad, 0, len(workers))
	for _, w := range workers {
		loads = append(loads, WorkerLoad{Worker: w.Name(), Load: w.Load(), Capacity: w.Capacity, Tasks: w.Tasks()})
	}
	return loads
}
