package repository

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/healthkeeper/internal/client/client"
	"github.com/dmitrijs2005/healthkeeper/internal/common"
)

// Error is a backend or network failure of a repository call.
type Error struct {
	Operation string
	Table     string
	Status    int
	Message   string
	Err       error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: %d: %s", e.Operation, e.Table, e.Status, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.Operation, e.Table, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// ConflictError is a uniqueness violation on create or update. It is never
// retried.
type ConflictError struct {
	Table   string
	Message string
	Err     error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: conflict: %s", e.Table, e.Message)
}

func (e *ConflictError) Is(target error) bool { return target == common.ErrConflict }

func (e *ConflictError) Unwrap() error { return e.Err }

func (r *Repository[T, W]) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var ve *common.ValidationError
	switch {
	case errors.As(err, &ve):
		return err
	case errors.Is(err, common.ErrConflict):
		return &ConflictError{Table: r.desc.Table, Message: client.MessageOf(err), Err: err}
	}
	return &Error{
		Operation: op,
		Table:     r.desc.Table,
		Status:    client.StatusOf(err),
		Message:   client.MessageOf(err),
		Err:       err,
	}
}
