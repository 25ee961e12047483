package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidState    = errors.New("invalid state")
	ErrContextMismatch = errors.New("device context mismatch")
	ErrDeviceFailure   = errors.New("device failure")

	ErrNullArgument      = fmt.Errorf("%w: null argument", ErrInvalidArgument)
	ErrEmptyBuffer       = fmt.Errorf("%w: empty buffer", ErrInvalidArgument)
	ErrSectionOutOfRange = fmt.Errorf("%w: section index out of range", ErrInvalidArgument)
	ErrIndexOutOfRange   = fmt.Errorf("%w: item index out of range", ErrInvalidArgument)
	ErrStaleHandle       = fmt.Errorf("%w: stale handle", ErrInvalidArgument)
	ErrRefCountUnderflow = fmt.Errorf("%w: reference count underflow", ErrInvalidState)
	ErrAlreadyParented   = fmt.Errorf("%w: node already has a parent", ErrInvalidState)
	ErrNotCreated        = fmt.Errorf("%w: object not created", ErrInvalidState)
	ErrMapped            = fmt.Errorf("%w: buffer is mapped", ErrInvalidState)
	ErrNotMapped         = fmt.Errorf("%w: buffer is not mapped", ErrInvalidState)
)

// DeviceError reports a failed device call together with the object it
// was issued for.
type DeviceError struct {
	Op     string
	Object uint32
	Size   uint64
	Err    error
}

func (e *DeviceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("device failure: %s (object=%d, size=%d)", e.Op, e.Object, e.Size)
	}
	return fmt.Sprintf("device failure: %s (object=%d, size=%d): %s", e.Op, e.Object, e.Size, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

func (e *DeviceError) Is(target error) bool {
	return target == ErrDeviceFailure
}

// NewDeviceError wraps err as a device failure and logs it.
func NewDeviceError(op string, object uint32, size uint64, err error) error {
	derr := &DeviceError{Op: op, Object: object, Size: size, Err: err}
	LogError(derr.Error())
	return derr
}
