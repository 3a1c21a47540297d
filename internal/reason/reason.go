// Package reason is the closed set of business rule violations the engine
// reports, each bound to the transport code it surfaces as.
package reason

import (
	"fmt"

	"github.com/tiation/riggerhire/pkg/cerr"
)

const (
	TaskNotOpen                cerr.Reason = "TaskNotOpen"
	TaskNotCompleted           cerr.Reason = "TaskNotCompleted"
	WrongState                 cerr.Reason = "WrongState"
	ApplicationAlreadyReviewed cerr.Reason = "ApplicationAlreadyReviewed"
	CapacityExceeded           cerr.Reason = "CapacityExceeded"
	DuplicateApplication       cerr.Reason = "DuplicateApplication"
	CannotCancelCompleted      cerr.Reason = "CannotCancelCompleted"
	AlreadyPaid                cerr.Reason = "AlreadyPaid"
	AlreadyRated               cerr.Reason = "AlreadyRated"
	InvalidDecision            cerr.Reason = "InvalidDecision"
	InvalidArgument            cerr.Reason = "InvalidArgument"
	NotFound                   cerr.Reason = cerr.ReasonNotFound

	// Authorization failures. Unauthorized is the umbrella; the others
	// name which identity check failed.
	Unauthorized cerr.Reason = "Unauthorized"
	NotOwner     cerr.Reason = "NotOwner"
	NotApplicant cerr.Reason = "NotApplicant"
	NotAssignee  cerr.Reason = "NotAssignee"
	WrongRole    cerr.Reason = "WrongRole"

	PaymentFailed          cerr.Reason = "PaymentFailed"
	ConcurrentModification cerr.Reason = cerr.ReasonConcurrentModification
	UnknownHandler         cerr.Reason = "UnknownHandler"
)

var codes = map[cerr.Reason]cerr.Code{
	TaskNotOpen:                cerr.FailedPrecondition,
	TaskNotCompleted:           cerr.FailedPrecondition,
	WrongState:                 cerr.FailedPrecondition,
	ApplicationAlreadyReviewed: cerr.FailedPrecondition,
	CapacityExceeded:           cerr.FailedPrecondition,
	DuplicateApplication:       cerr.AlreadyExists,
	CannotCancelCompleted:      cerr.FailedPrecondition,
	AlreadyPaid:                cerr.FailedPrecondition,
	AlreadyRated:               cerr.FailedPrecondition,
	InvalidDecision:            cerr.InvalidArgument,
	InvalidArgument:            cerr.InvalidArgument,
	NotFound:                   cerr.NotFound,
	Unauthorized:               cerr.PermissionDenied,
	NotOwner:                   cerr.PermissionDenied,
	NotApplicant:               cerr.PermissionDenied,
	NotAssignee:                cerr.PermissionDenied,
	WrongRole:                  cerr.PermissionDenied,
	PaymentFailed:              cerr.Aborted,
	ConcurrentModification:     cerr.Aborted,
	UnknownHandler:             cerr.Unimplemented,
}

// Code returns the transport code for r.
func Code(r cerr.Reason) cerr.Code {
	if c, ok := codes[r]; ok {
		return c
	}
	return cerr.Unknown
}

// New builds the error for r. Authorization reasons are filed under the
// Unauthorized category.
func New(r cerr.Reason, format string, args ...any) *cerr.Error {
	err := cerr.NewReasonError(Code(r), r, fmt.Sprintf(format, args...))
	if IsAuthorization(r) {
		err.WithCategory(Unauthorized)
	}
	return err
}

// IsAuthorization reports whether r is one of the authorization reasons.
func IsAuthorization(r cerr.Reason) bool {
	return Code(r) == cerr.PermissionDenied
}

// Invalid builds an InvalidArgument error with a single field violation.
func Invalid(field, rule, format string, args ...any) *cerr.Error {
	msg := fmt.Sprintf(format, args...)
	return New(InvalidArgument, "%s", msg).AddViolation(field, rule, msg)
}
