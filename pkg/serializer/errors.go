package serializer

import (
	"fmt"
	"reflect"
)

// UnsupportedTypeError is returned when no handler is registered for a
// value's runtime type.
type UnsupportedTypeError struct {
	Type reflect.Type
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("serializer: no handler registered for type %s", e.Type)
}

// DeserializationError is returned when a stored value cannot be
// restored, either because the stored form is malformed or because the
// handler it was written with is no longer registered.
type DeserializationError struct {
	DType string
	Err   error
}

func (e *DeserializationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("serializer: cannot deserialize value of dtype %q", e.DType)
	}
	return fmt.Sprintf("serializer: cannot deserialize value of dtype %q: %v", e.DType, e.Err)
}

func (e *DeserializationError) Unwrap() error {
	return e.Err
}
