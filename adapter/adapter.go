package adapter

import (
	"context"
	"errors"
	"fmt"

	"reachloop/models"
)

// Request carries everything an adapter needs to perform one send. The
// subject and body arrive with personalization already resolved.
type Request struct {
	Step       *models.ScheduledStep
	Contact    *models.Contact
	Account    *models.SenderAccount
	Subject    string
	Body       string
	TrackOpens bool
}

// Result reports a successful execution. Completed marks channels that
// finish instantly instead of waiting on downstream delivery.
type Result struct {
	MessageID string
	Completed bool
}

// ExecutionAdapter performs the actual channel send. Implementations
// classify their failures into the error taxonomy by returning *Error;
// anything else is recorded as unknown.
type ExecutionAdapter interface {
	Execute(ctx context.Context, req Request) (Result, error)
}

// Error is an execution failure with its taxonomy code attached.
type Error struct {
	Code    models.ErrorCode
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func NewError(code models.ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Classify extracts the taxonomy code from an execution error.
func Classify(err error) models.ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return models.ErrCodeUnknown
}
