// Package payment holds the payment gateway contract and a simulated
// gateway. Every call is keyed by an idempotency key so a retry under the
// same key never charges twice.
package payment

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tiation/riggerhire/internal/task"
)

// ErrDeclined is returned when the gateway refuses a charge or release.
// Declines are not remembered, so a later retry under the same key may
// succeed.
var ErrDeclined = errors.New("payment declined")

type ChargeRequest struct {
	Key      string
	Amount   decimal.Decimal
	Currency string
	Method   task.PaymentMethod
}

type Charge struct {
	Key           string
	TransactionID string
	Amount        decimal.Decimal
	Currency      string
	Method        task.PaymentMethod
	ChargedAt     time.Time
}

type Release struct {
	Key        string
	ReleaseID  string
	ReleasedAt time.Time
}

type Gateway interface {
	// Charge returns the original charge when key already succeeded.
	Charge(ctx context.Context, req ChargeRequest) (*Charge, error)
	// ReleaseEscrow returns the original release when key was released.
	ReleaseEscrow(ctx context.Context, key string) (*Release, error)
	// Lookup returns the confirmed charge for key, or nil if there is none.
	Lookup(ctx context.Context, key string) (*Charge, error)
}
