package task

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusOpen       Status = "open"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

type PaymentStatus string

const (
	PaymentUnbilled PaymentStatus = "unbilled"
	PaymentPending  PaymentStatus = "pending"
	PaymentEscrowed PaymentStatus = "escrowed"
	PaymentPaid     PaymentStatus = "paid"
)

type PaymentMethod string

const (
	MethodCreditCard   PaymentMethod = "credit_card"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodEscrow       PaymentMethod = "escrow"
)

const DefaultCurrency = "USD"

var Currencies = []string{"USD", "AUD", "CAD", "GBP", "EUR"}

var Methods = []PaymentMethod{MethodCreditCard, MethodBankTransfer, MethodEscrow}

// PaymentAttempt is an in-flight gateway call. It exists only while
// PaymentStatus is pending and pins the idempotency key and amounts so a
// retry charges exactly the same thing.
type PaymentAttempt struct {
	IdempotencyKey string          `yaml:"idempotency_key" json:"idempotencyKey"`
	Amount         decimal.Decimal `yaml:"amount" json:"amount"`
	Tip            decimal.Decimal `yaml:"tip" json:"tip"`
	Currency       string          `yaml:"currency" json:"currency"`
	Method         PaymentMethod   `yaml:"method" json:"method"`
	StartedAt      time.Time       `yaml:"started_at" json:"startedAt"`
}

func (a *PaymentAttempt) Total() decimal.Decimal {
	return a.Amount.Add(a.Tip)
}

type PaymentRecord struct {
	Amount         decimal.Decimal  `yaml:"amount" json:"amount"`
	Tip            decimal.Decimal  `yaml:"tip" json:"tip"`
	TotalAmount    decimal.Decimal  `yaml:"total_amount" json:"totalAmount"`
	Currency       string           `yaml:"currency" json:"currency"`
	Method         PaymentMethod    `yaml:"method" json:"method"`
	TransactionID  string           `yaml:"transaction_id" json:"transactionId"`
	ProcessedAt    time.Time        `yaml:"processed_at" json:"processedAt"`
	ExpectedAmount *decimal.Decimal `yaml:"expected_amount,omitempty" json:"expectedAmount,omitempty"`
	ActualHours    *float64         `yaml:"actual_hours,omitempty" json:"actualHours,omitempty"`
	ReleaseID      string           `yaml:"release_id,omitempty" json:"releaseId,omitempty"`
	ReleasedAt     *time.Time       `yaml:"released_at,omitempty" json:"releasedAt,omitempty"`
}

type Completion struct {
	Notes       string   `yaml:"notes,omitempty" json:"notes,omitempty"`
	ActualHours *float64 `yaml:"actual_hours,omitempty" json:"actualHours,omitempty"`
}

type Cancellation struct {
	Reason      string    `yaml:"reason" json:"reason"`
	CancelledBy string    `yaml:"cancelled_by" json:"cancelledBy"`
	CancelledAt time.Time `yaml:"cancelled_at" json:"cancelledAt"`
}

type Task struct {
	ID             string           `yaml:"id" json:"id"`
	PosterID       string           `yaml:"poster_id" json:"posterId"`
	Title          string           `yaml:"title" json:"title"`
	Description    string           `yaml:"description" json:"description"`
	HourlyRate     *decimal.Decimal `yaml:"hourly_rate,omitempty" json:"hourlyRate,omitempty"`
	EstimatedHours *float64         `yaml:"estimated_hours,omitempty" json:"estimatedHours,omitempty"`
	Currency       string           `yaml:"currency" json:"currency"`
	Status         Status           `yaml:"status" json:"status"`

	MaxApplicants         *int `yaml:"max_applicants,omitempty" json:"maxApplicants,omitempty"`
	CurrentApplicantCount int  `yaml:"current_applicant_count" json:"currentApplicantCount"`

	AssigneeID string `yaml:"assignee_id,omitempty" json:"assigneeId,omitempty"`

	PaymentStatus  PaymentStatus   `yaml:"payment_status" json:"paymentStatus"`
	PaymentAttempt *PaymentAttempt `yaml:"payment_attempt,omitempty" json:"paymentAttempt,omitempty"`
	PaymentRecord  *PaymentRecord  `yaml:"payment_record,omitempty" json:"paymentRecord,omitempty"`

	Completion   *Completion   `yaml:"completion,omitempty" json:"completion,omitempty"`
	Cancellation *Cancellation `yaml:"cancellation,omitempty" json:"cancellation,omitempty"`

	CreatedAt       time.Time  `yaml:"created_at" json:"createdAt"`
	UpdatedAt       time.Time  `yaml:"updated_at" json:"updatedAt"`
	ActualStartDate *time.Time `yaml:"actual_start_date,omitempty" json:"actualStartDate,omitempty"`
	ActualEndDate   *time.Time `yaml:"actual_end_date,omitempty" json:"actualEndDate,omitempty"`

	Version int64 `yaml:"version" json:"version"`
}

// HasCapacity reports whether one more active application fits.
func (t *Task) HasCapacity() bool {
	return t.MaxApplicants == nil || t.CurrentApplicantCount < *t.MaxApplicants
}

// ExpectedAmount is actualHours x hourlyRate when both are known.
func (t *Task) ExpectedAmount() *decimal.Decimal {
	if t.HourlyRate == nil || t.Completion == nil || t.Completion.ActualHours == nil {
		return nil
	}
	v := t.HourlyRate.Mul(decimal.NewFromFloat(*t.Completion.ActualHours)).Round(2)
	return &v
}

func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.HourlyRate = clonePtr(t.HourlyRate)
	c.EstimatedHours = clonePtr(t.EstimatedHours)
	c.MaxApplicants = clonePtr(t.MaxApplicants)
	c.ActualStartDate = clonePtr(t.ActualStartDate)
	c.ActualEndDate = clonePtr(t.ActualEndDate)
	if t.PaymentAttempt != nil {
		a := *t.PaymentAttempt
		c.PaymentAttempt = &a
	}
	if t.PaymentRecord != nil {
		r := *t.PaymentRecord
		r.ExpectedAmount = clonePtr(t.PaymentRecord.ExpectedAmount)
		r.ActualHours = clonePtr(t.PaymentRecord.ActualHours)
		r.ReleasedAt = clonePtr(t.PaymentRecord.ReleasedAt)
		c.PaymentRecord = &r
	}
	if t.Completion != nil {
		cp := *t.Completion
		cp.ActualHours = clonePtr(t.Completion.ActualHours)
		c.Completion = &cp
	}
	if t.Cancellation != nil {
		cc := *t.Cancellation
		c.Cancellation = &cc
	}
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
