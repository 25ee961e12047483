package buffer

import (
	"fmt"

	"github.com/spaghettifunk/anima/engine/config"
	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer/device"
)

// Index is the set of element types an index buffer can hold.
type Index interface {
	~uint8 | ~uint16 | ~uint32
}

// NewElementBuffer builds an array buffer of indices.
func NewElementBuffer[T Index](reg *device.Registry, policy config.ClientPolicy) (*ArrayBuffer[T], error) {
	layout, err := FlatLayout(ItemType{Scalar: indexScalar[T](), Components: 1})
	if err != nil {
		return nil, err
	}
	return NewArrayBuffer[T](reg, layout, policy)
}

func indexScalar[T Index]() device.ScalarType {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return device.ScalarUint8
	case uint16:
		return device.ScalarUint16
	case uint32:
		return device.ScalarUint32
	}
	switch size := sizeOf[T](); size {
	case 1:
		return device.ScalarUint8
	case 2:
		return device.ScalarUint16
	default:
		return device.ScalarUint32
	}
}

// IndexType validates that arr holds indices and returns their scalar type.
func IndexType(arr Array) (device.ScalarType, error) {
	if arr == nil {
		return device.ScalarUnknown, fmt.Errorf("index buffer: %w", core.ErrNullArgument)
	}
	layout := arr.Layout()
	s, err := layout.Section(0)
	if err != nil {
		return device.ScalarUnknown, err
	}
	if layout.Kind() != LayoutFlat || s.Type.Components != 1 {
		return device.ScalarUnknown, fmt.Errorf("index buffer with %s layout of %s: %w",
			layout.Kind(), s.Type, core.ErrInvalidArgument)
	}
	switch s.Type.Scalar {
	case device.ScalarUint8, device.ScalarUint16, device.ScalarUint32:
		return s.Type.Scalar, nil
	default:
		return device.ScalarUnknown, fmt.Errorf("index buffer of %s: %w", s.Type.Scalar, core.ErrInvalidArgument)
	}
}
