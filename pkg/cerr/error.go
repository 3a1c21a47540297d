package cerr

import (
	"errors"
	"fmt"
	"runtime"

	"buf.build/gen/go/bufbuild/protovalidate/protocolbuffers/go/buf/validate"
	"google.golang.org/protobuf/proto"

	"github.com/tiation/riggerhire/pkg/clog"
)

// Reason is a stable, machine-readable name for a business rule violation.
// Infrastructure faults carry no reason.
type Reason string

// Reasons produced by this package. Domain packages define their own.
const (
	ReasonNotFound               Reason = "NotFound"
	ReasonConcurrentModification Reason = "ConcurrentModification"
)

type Error struct {
	Code     Code
	Reason   Reason          // business rule that rejected the request
	Category Reason          // umbrella Reason belongs to, if any
	Msg      string          // returned to the caller together with Code
	Err      error           // kept for logs only
	Stack    string          // captured for error-level codes
	Details  []proto.Message // returned to the caller
}

func NewError(code Code, msg string, underlying error) *Error {
	err := &Error{
		Code: code,
		Msg:  msg,
		Err:  underlying,
	}
	if clog.ConnectCodeToLevel(code.ConnectCode()) == clog.LevelError {
		stackTrace := make([]byte, 2048)
		n := runtime.Stack(stackTrace, false)
		err.Stack = string(stackTrace[0:n])
	}
	return err
}

func NewReasonError(code Code, reason Reason, msg string) *Error {
	err := NewError(code, msg, nil)
	err.Reason = reason
	return err
}

func (e *Error) Error() string {
	prefix := e.Code.String()
	if e.Category != "" && e.Category != e.Reason {
		prefix += "/" + string(e.Category)
	}
	if e.Reason != "" {
		prefix += "/" + string(e.Reason)
	}
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", prefix, e.Msg)
	}
	return fmt.Sprintf("[%s] %s: %s", prefix, e.Msg, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithCategory files the error under an umbrella reason that callers can
// match instead of the specific one.
func (e *Error) WithCategory(c Reason) *Error {
	e.Category = c
	return e
}

// AddViolation attaches a field level violation, e.g. for a rejected input.
func (e *Error) AddViolation(field, ruleID, msg string) *Error {
	v := &validate.Violation{
		Message: &msg,
		RuleId:  &ruleID,
	}
	if field != "" {
		v.Field = &validate.FieldPath{
			Elements: []*validate.FieldPathElement{{FieldName: &field}},
		}
	}
	e.Details = append(e.Details, v)
	return e
}

func (e *Error) Violations() []*validate.Violation {
	var out []*validate.Violation
	for _, d := range e.Details {
		if v, ok := d.(*validate.Violation); ok {
			out = append(out, v)
		}
	}
	return out
}

func IsCode(err error, code Code) bool {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Code == code
	}
	return false
}

// ReasonOf returns the business reason carried by err, or "" when err is an
// infrastructure fault or not a *Error.
func ReasonOf(err error) Reason {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Reason
	}
	return ""
}

// HasReason reports whether err carries reason, either as its own reason or
// as its category.
func HasReason(err error, reason Reason) bool {
	if reason == "" {
		return false
	}
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Reason == reason || cerr.Category == reason
	}
	return false
}
