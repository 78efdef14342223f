package datasource

import (
	"errors"
	"fmt"
)

// requestError is implemented by every error caused by the caller's request.
type requestError interface {
	error
	requestError()
}

// IsRequestError reports whether err, or any error it wraps, was caused by the
// request rather than by the server or an upstream system.
func IsRequestError(err error) bool {
	var re requestError
	return errors.As(err, &re)
}

// MissingFieldError is returned when a required field is absent.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing field: %s", e.Field)
}

func (*MissingFieldError) requestError() {}

// InvalidFieldError is returned when a field is present but malformed.
type InvalidFieldError struct {
	Field string
	Value any
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("invalid value for %s: %q", e.Field, fmt.Sprint(e.Value))
}

func (*InvalidFieldError) requestError() {}

// ScopeNotFoundError is returned when no callback is registered under a scope.
type ScopeNotFoundError struct {
	Scope string
}

func (e *ScopeNotFoundError) Error() string {
	return fmt.Sprintf("%q is not a valid scope", e.Scope)
}

func (*ScopeNotFoundError) requestError() {}

// CallbackNotFoundError is returned when the scope exists but has nothing
// registered under the requested name.
type CallbackNotFoundError struct {
	Scope string
	Name  string
}

func (e *CallbackNotFoundError) Error() string {
	return fmt.Sprintf("callback does not exist for %q in scope %q", e.Name, e.Scope)
}

func (*CallbackNotFoundError) requestError() {}

// InvalidPayloadError is raised by callbacks whose payload is missing a value
// they need or carries one they cannot use.
type InvalidPayloadError struct {
	Target string
	Reason string
}

func (e *InvalidPayloadError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("payload is missing or malformed for target %s", e.Target)
	}
	return fmt.Sprintf("payload is missing or malformed for target %s: %s", e.Target, e.Reason)
}

func (*InvalidPayloadError) requestError() {}

// ResourceNotFoundError is raised by callbacks when the object the payload
// refers to (a project, a source) does not exist.
type ResourceNotFoundError struct {
	Kind string
	ID   any
}

func (e *ResourceNotFoundError) Error() string {
	return fmt.Sprintf("cannot find %s with id %v", e.Kind, e.ID)
}

func (*ResourceNotFoundError) requestError() {}

// UnsupportedResultShapeError is returned when a metric callback produced a
// value the engine cannot render. It indicates a bug in the callback.
type UnsupportedResultShapeError struct {
	Shape string
}

func (e *UnsupportedResultShapeError) Error() string {
	return fmt.Sprintf("%s is not a valid response data type", e.Shape)
}
