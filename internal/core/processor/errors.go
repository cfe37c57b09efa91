package processor

import (
	"errors"
	"fmt"
)

// Fehlerarten der Pipeline-Stufen
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrDetectionFailure  = errors.New("detection failure")
	ErrAnnotationFailure = errors.New("annotation failure")
	ErrDeliveryFailure   = errors.New("delivery failure")
)

// StageError ist der Fehler einer Pipeline-Stufe mit seiner Fehlerart.
// errors.Is(err, ErrDetectionFailure) usw. funktioniert über Unwrap.
type StageError struct {
	Kind error
	Err  error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func stageError(kind error, format string, args ...interface{}) *StageError {
	return &StageError{Kind: kind, Err: fmt.Errorf(format, args...)}
}
