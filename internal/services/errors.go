package services

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyRoomName    = errors.New("room name is empty")
	ErrEmptyMessage     = errors.New("message text is empty")
	ErrWrongSecret      = errors.New("room secret does not match")
	ErrSecretRequired   = errors.New("room requires a secret")
	ErrRoomNotFound     = errors.New("room not found")
	ErrMessageNotFound  = errors.New("message not found")
	ErrEditWindowClosed = errors.New("edit window has closed")
	ErrNotAuthor        = errors.New("only the author can change this message")
	ErrNotCreator       = errors.New("only the creator can delete this room")
	ErrNoActiveRoom     = errors.New("no room is open")
)

// ValidationError возникает до любого обращения к хранилищу
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// AuthorizationError: ничего не записано, можно повторить с другими данными
type AuthorizationError struct {
	Err error
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("not authorized: %v", e.Err)
}

func (e *AuthorizationError) Unwrap() error { return e.Err }

// BackendError оборачивает ошибку внешнего сервиса. Повторов нет
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

func backendError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &BackendError{Op: op, Err: err}
}
