package store

import (
	"errors"
	"fmt"
	"slices"

	"github.com/tiation/riggerhire/internal/application"
	"github.com/tiation/riggerhire/internal/task"
)

// Snapshot is a task and all of its applications as of one version. It is
// the unit of serialization: every transition reads and writes a snapshot.
type Snapshot struct {
	Task         *task.Task                 `yaml:"task" json:"task"`
	Applications []*application.Application `yaml:"applications" json:"applications"`
}

func (s *Snapshot) Application(id string) *application.Application {
	for _, a := range s.Applications {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func (s *Snapshot) ApplicationBy(applicantID string) *application.Application {
	for _, a := range s.Applications {
		if a.ApplicantID == applicantID {
			return a
		}
	}
	return nil
}

func (s *Snapshot) Accepted() *application.Application {
	for _, a := range s.Applications {
		if a.Status == application.StatusAccepted {
			return a
		}
	}
	return nil
}

// ActiveCount is the number of applications counted against capacity.
func (s *Snapshot) ActiveCount() int {
	n := 0
	for _, a := range s.Applications {
		if a.Active() {
			n++
		}
	}
	return n
}

func (s *Snapshot) AddApplication(a *application.Application) {
	s.Applications = append(s.Applications, a)
}

func (s *Snapshot) Clone() *Snapshot {
	c := &Snapshot{Task: s.Task.Clone()}
	c.Applications = make([]*application.Application, len(s.Applications))
	for i, a := range s.Applications {
		c.Applications[i] = a.Clone()
	}
	return c
}

// Validate checks the invariants that span the task and its applications.
func (s *Snapshot) Validate() error {
	if s.Task == nil {
		return errors.New("snapshot without task")
	}
	errs := []error{s.Task.Validate()}

	seen := make(map[string]bool, len(s.Applications))
	accepted := 0
	for _, a := range s.Applications {
		if a.TaskID != s.Task.ID {
			errs = append(errs, fmt.Errorf("application %s belongs to task %s", a.ID, a.TaskID))
		}
		if seen[a.ApplicantID] {
			errs = append(errs, fmt.Errorf("applicant %s applied twice", a.ApplicantID))
		}
		seen[a.ApplicantID] = true
		if a.Status == application.StatusAccepted {
			accepted++
			if a.ApplicantID != s.Task.AssigneeID {
				errs = append(errs, fmt.Errorf("accepted application %s is not the assignee's", a.ID))
			}
		}
	}
	assigned := slices.Contains([]task.Status{task.StatusAssigned, task.StatusInProgress, task.StatusCompleted}, s.Task.Status)
	if accepted > 1 || (accepted == 1) != assigned {
		errs = append(errs, fmt.Errorf("%d accepted applications on a %s task", accepted, s.Task.Status))
	}
	if n := s.ActiveCount(); n != s.Task.CurrentApplicantCount {
		errs = append(errs, fmt.Errorf("applicant count %d, active applications %d", s.Task.CurrentApplicantCount, n))
	}
	return errors.Join(errs...)
}

func (f TaskFilter) Match(t *task.Task) bool {
	if f.PosterID != "" && t.PosterID != f.PosterID {
		return false
	}
	if f.AssigneeID != "" && t.AssigneeID != f.AssigneeID {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, t.Status) {
		return false
	}
	if f.PaymentStatus != "" && t.PaymentStatus != f.PaymentStatus {
		return false
	}
	return true
}

func (f ApplicationFilter) Match(a *application.Application) bool {
	if f.TaskID != "" && a.TaskID != f.TaskID {
		return false
	}
	if f.ApplicantID != "" && a.ApplicantID != f.ApplicantID {
		return false
	}
	if f.PosterID != "" && a.PosterID != f.PosterID {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, a.Status) {
		return false
	}
	if f.RatedOnly && a.Rating == nil {
		return false
	}
	return true
}

// Page applies offset and limit to an already filtered, ordered slice.
func Page[T any](all []T, limit, offset int) []T {
	if offset >= len(all) {
		return nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}
