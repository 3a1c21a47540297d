package store

import (
	"fmt"

	"github.com/tiation/riggerhire/internal/application"
	"github.com/tiation/riggerhire/pkg/cerr"
)

// Apply runs mutate against a copy of current and returns the snapshot to
// commit, with the version advanced. current is never modified.
func Apply(current *Snapshot, mutate MutateFunc) (*Snapshot, error) {
	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	if next.Task.ID != current.Task.ID {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("mutation changed task id %s to %s", current.Task.ID, next.Task.ID))
	}
	if err := next.Validate(); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("task %s invariant violated: %w", current.Task.ID, err))
	}
	next.Task.Version = current.Task.Version + 1
	return next, nil
}

// Added returns the applications present in next but not in prev.
func Added(prev, next *Snapshot) []*application.Application {
	var out []*application.Application
	for _, a := range next.Applications {
		if prev.Application(a.ID) == nil {
			out = append(out, a)
		}
	}
	return out
}
