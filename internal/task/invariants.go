package task

import (
	"errors"
	"fmt"
)

// Validate checks the structural invariants of a single task record. Checks
// spanning the task's applications live with the snapshot.
func (t *Task) Validate() error {
	var errs []error
	hasAssignee := t.AssigneeID != ""
	switch t.Status {
	case StatusAssigned, StatusInProgress, StatusCompleted:
		if !hasAssignee {
			errs = append(errs, fmt.Errorf("status %s requires an assignee", t.Status))
		}
	case StatusOpen, StatusCancelled:
		if hasAssignee {
			errs = append(errs, fmt.Errorf("status %s must not have an assignee", t.Status))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown status %q", t.Status))
	}

	billed := t.PaymentStatus == PaymentEscrowed || t.PaymentStatus == PaymentPaid
	if billed != (t.PaymentRecord != nil) {
		errs = append(errs, fmt.Errorf("payment status %s inconsistent with payment record", t.PaymentStatus))
	}
	if t.PaymentStatus == PaymentPaid && t.PaymentRecord != nil && t.PaymentRecord.TransactionID == "" {
		errs = append(errs, errors.New("paid task without transaction id"))
	}
	if (t.PaymentStatus == PaymentPending) != (t.PaymentAttempt != nil) {
		errs = append(errs, fmt.Errorf("payment status %s inconsistent with payment attempt", t.PaymentStatus))
	}
	if t.PaymentStatus != PaymentUnbilled && t.Status != StatusCompleted {
		errs = append(errs, fmt.Errorf("payment status %s on a %s task", t.PaymentStatus, t.Status))
	}
	if t.MaxApplicants != nil && t.CurrentApplicantCount > *t.MaxApplicants {
		errs = append(errs, fmt.Errorf("applicant count %d exceeds capacity %d", t.CurrentApplicantCount, *t.MaxApplicants))
	}
	if t.CurrentApplicantCount < 0 {
		errs = append(errs, fmt.Errorf("negative applicant count %d", t.CurrentApplicantCount))
	}
	return errors.Join(errs...)
}
