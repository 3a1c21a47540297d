package event

import "time"

// Type names a lifecycle transition observed on the event stream.
type Type string

const (
	TaskPosted    Type = "task.posted"
	TaskUpdated   Type = "task.updated"
	TaskAssigned  Type = "task.assigned"
	TaskStarted   Type = "task.started"
	TaskCompleted Type = "task.completed"
	TaskCancelled Type = "task.cancelled"

	ApplicationSubmitted Type = "application.submitted"
	ApplicationUpdated   Type = "application.updated"
	ApplicationWithdrawn Type = "application.withdrawn"
	ApplicationAccepted  Type = "application.accepted"
	ApplicationRejected  Type = "application.rejected"
	ApplicationRated     Type = "application.rated"

	PaymentPending  Type = "payment.pending"
	PaymentFailed   Type = "payment.failed"
	PaymentSettled  Type = "payment.settled"
	EscrowReleased  Type = "payment.escrow_released"
	PaymentReverted Type = "payment.reverted"
)

// Event is a committed transition. Metadata carries string ids such as
// application_id or actor_id.
type Event struct {
	ID        string            `json:"id"`
	Type      Type              `json:"type"`
	TaskID    string            `json:"taskId"`
	Version   int64             `json:"version"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}
