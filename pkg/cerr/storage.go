package cerr

import (
	"errors"
	"fmt"

	"github.com/tiation/riggerhire/pkg/storage"
)

func WrapStorageReadError(target string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return NewReasonError(NotFound, ReasonNotFound, fmt.Sprintf("%s not found", target))
	}
	return NewError(Unavailable, "storage unavailable", fmt.Errorf("failed to read %s: %w", target, err))
}

// WrapStorageWriteError maps a lost conditional write to Aborted so the
// caller re-fetches; every other write failure is an infrastructure fault.
func WrapStorageWriteError(target string, err error) error {
	if errors.Is(err, storage.ErrPreconditionFailed) {
		e := NewReasonError(Aborted, ReasonConcurrentModification, fmt.Sprintf("%s was modified concurrently", target))
		e.Err = err
		return e
	}
	return NewError(Unavailable, "storage unavailable", fmt.Errorf("failed to write %s: %w", target, err))
}

func WrapStorageDeleteError(target string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return NewReasonError(NotFound, ReasonNotFound, fmt.Sprintf("%s not found", target))
	}
	return NewError(Unavailable, "storage unavailable", fmt.Errorf("failed to delete %s: %w", target, err))
}
