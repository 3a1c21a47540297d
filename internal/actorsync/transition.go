// Package actorsync applies the actor aggregate side effects of task
// transitions. Effects are written to a durable outbox first and applied
// by a worker with retry, so a failing actor store never blocks or fails
// the transition that caused them.
package actorsync

import (
	"fmt"

	"github.com/tiation/riggerhire/internal/actor"
)

// Transition is a logical task transition with counter side effects.
type Transition string

const (
	TaskPosted    Transition = "task_posted"
	TaskAssigned  Transition = "task_assigned"
	TaskCompleted Transition = "task_completed"
	TaskCancelled Transition = "task_cancelled"
)

type party int

const (
	poster party = iota
	worker
)

type rule struct {
	party   party
	counter string
	delta   int64
}

// table is the only place counter deltas are defined.
var table = map[Transition][]rule{
	TaskPosted: {
		{poster, actor.CounterActiveTasks, 1},
		{poster, actor.CounterTotalTasksPosted, 1},
	},
	TaskAssigned: {
		{worker, actor.CounterActiveAssignments, 1},
	},
	TaskCompleted: {
		{worker, actor.CounterCompletedTasks, 1},
		{worker, actor.CounterActiveAssignments, -1},
		{poster, actor.CounterActiveTasks, -1},
	},
	TaskCancelled: {
		{poster, actor.CounterActiveTasks, -1},
		{worker, actor.CounterActiveAssignments, -1},
	},
}

// Parties are the actors involved in a transition. WorkerID is empty when
// the task had no assignee, and the worker's effects are skipped.
type Parties struct {
	PosterID string
	WorkerID string
}

type Effect struct {
	ActorID string `yaml:"actor_id"`
	Counter string `yaml:"counter"`
	Delta   int64  `yaml:"delta"`
	Done    bool   `yaml:"done"`
}

// Effects expands t into the counter increments it implies.
func Effects(t Transition, p Parties) ([]Effect, error) {
	rules, ok := table[t]
	if !ok {
		return nil, fmt.Errorf("unknown transition %q", t)
	}
	var out []Effect
	for _, r := range rules {
		id := p.PosterID
		if r.party == worker {
			id = p.WorkerID
		}
		if id == "" {
			continue
		}
		out = append(out, Effect{ActorID: id, Counter: r.counter, Delta: r.delta})
	}
	return out, nil
}
