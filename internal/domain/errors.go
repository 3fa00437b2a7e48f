package domain

import (
	"errors"
	"fmt"
)

// Op names a DomainModel operation.
type Op string

const (
	OpRun   Op = "run"
	OpApply Op = "apply"
	OpLoad  Op = "load"
	OpSave  Op = "save"
)

// OperationError reports a failure inside a scheduled operation. The model
// is unchanged when a mutating operation fails.
type OperationError struct {
	Op  Op
	Err error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// IsOperationError reports whether err is an OperationError for op.
func IsOperationError(err error, op Op) bool {
	var oe *OperationError
	return errors.As(err, &oe) && oe.Op == op
}
