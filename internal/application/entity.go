package application

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusWithdrawn Status = "withdrawn"
)

const (
	RejectionPositionFilled = "Position filled by another candidate"
	RejectionTaskCancelled  = "Task cancelled"
	RejectionDefault        = "Rejected by poster"
)

const (
	MinRating       = 1
	MaxRating       = 5
	MaxReviewLength = 500
)

type Application struct {
	ID          string `yaml:"id" json:"id"`
	TaskID      string `yaml:"task_id" json:"taskId"`
	ApplicantID string `yaml:"applicant_id" json:"applicantId"`
	PosterID    string `yaml:"poster_id" json:"posterId"`
	Status      Status `yaml:"status" json:"status"`

	Message            string           `yaml:"message,omitempty" json:"message,omitempty"`
	RelevantExperience string           `yaml:"relevant_experience,omitempty" json:"relevantExperience,omitempty"`
	AvailabilityInfo   string           `yaml:"availability_info,omitempty" json:"availabilityInfo,omitempty"`
	ProposedRate       *decimal.Decimal `yaml:"proposed_rate,omitempty" json:"proposedRate,omitempty"`

	AppliedAt       time.Time  `yaml:"applied_at" json:"appliedAt"`
	UpdatedAt       time.Time  `yaml:"updated_at" json:"updatedAt"`
	ReviewedAt      *time.Time `yaml:"reviewed_at,omitempty" json:"reviewedAt,omitempty"`
	ReviewMessage   string     `yaml:"review_message,omitempty" json:"reviewMessage,omitempty"`
	RejectionReason string     `yaml:"rejection_reason,omitempty" json:"rejectionReason,omitempty"`
	WithdrawnAt     *time.Time `yaml:"withdrawn_at,omitempty" json:"withdrawnAt,omitempty"`

	Rating  *int       `yaml:"rating,omitempty" json:"rating,omitempty"`
	Review  string     `yaml:"review,omitempty" json:"review,omitempty"`
	RatedAt *time.Time `yaml:"rated_at,omitempty" json:"ratedAt,omitempty"`
}

// Details are the applicant editable fields.
type Details struct {
	Message            string           `json:"message,omitempty"`
	RelevantExperience string           `json:"relevantExperience,omitempty"`
	AvailabilityInfo   string           `json:"availabilityInfo,omitempty"`
	ProposedRate       *decimal.Decimal `json:"proposedRate,omitempty"`
}

// Active applications count against the task's capacity.
func (a *Application) Active() bool {
	return a.Status == StatusPending || a.Status == StatusAccepted
}

func (a *Application) Apply(d Details) {
	a.Message = d.Message
	a.RelevantExperience = d.RelevantExperience
	a.AvailabilityInfo = d.AvailabilityInfo
	a.ProposedRate = d.ProposedRate
}

func (a *Application) Reject(at time.Time, reason string) {
	a.Status = StatusRejected
	a.ReviewedAt = &at
	a.RejectionReason = reason
	a.UpdatedAt = at
}

func (a *Application) Clone() *Application {
	if a == nil {
		return nil
	}
	c := *a
	if a.ProposedRate != nil {
		v := *a.ProposedRate
		c.ProposedRate = &v
	}
	c.ReviewedAt = cloneTime(a.ReviewedAt)
	c.WithdrawnAt = cloneTime(a.WithdrawnAt)
	c.RatedAt = cloneTime(a.RatedAt)
	if a.Rating != nil {
		v := *a.Rating
		c.Rating = &v
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
