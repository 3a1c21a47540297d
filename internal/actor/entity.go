package actor

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleRequester Role = "requester"
	RoleWorker    Role = "worker"
)

func (r Role) Valid() bool {
	return r == RoleRequester || r == RoleWorker
}

// Counter names maintained on the actor aggregate.
const (
	CounterActiveTasks       = "activeTasks"
	CounterTotalTasksPosted  = "totalTasksPosted"
	CounterCompletedTasks    = "completedTasks"
	CounterActiveAssignments = "activeAssignments"
)

type Actor struct {
	ID            string           `yaml:"id" json:"id"`
	Role          Role             `yaml:"role,omitempty" json:"role,omitempty"`
	Counters      map[string]int64 `yaml:"counters" json:"counters"`
	AverageRating decimal.Decimal  `yaml:"average_rating" json:"averageRating"`
	RatingCount   int              `yaml:"rating_count" json:"ratingCount"`
	UpdatedAt     time.Time        `yaml:"updated_at" json:"updatedAt"`
}

func (a *Actor) Counter(name string) int64 {
	return a.Counters[name]
}
