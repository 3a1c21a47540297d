package actor

import (
	"context"

	"github.com/shopspring/decimal"
)

// Repository is the actor aggregate collaborator. Callers retry failed
// writes; SetRating is idempotent, IncrementCounter is not.
type Repository interface {
	Get(ctx context.Context, id string) (*Actor, error)
	// Register records the actor's role, creating the actor if needed.
	Register(ctx context.Context, id string, role Role) error
	IncrementCounter(ctx context.Context, id, counter string, delta int64) error
	SetRating(ctx context.Context, id string, average decimal.Decimal, count int) error
}
