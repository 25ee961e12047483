package buffer

import (
	"fmt"

	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/renderer/device"
	"golang.org/x/exp/constraints"
)

/** @brief A base scalar type times a fixed component count, e.g. 3 x float32. */
type ItemType struct {
	Scalar     device.ScalarType
	Components uint32
}

func (t ItemType) Size() uint32 {
	return t.Scalar.Size() * t.Components
}

func (t ItemType) String() string {
	if t.Components == 1 {
		return t.Scalar.String()
	}
	return fmt.Sprintf("%dx%s", t.Components, t.Scalar)
}

func (t ItemType) valid() bool {
	return t.Scalar.Size() > 0 && t.Components > 0 && t.Components <= 4
}

// ScalarOf maps a Go numeric type to its device scalar type.
func ScalarOf[T constraints.Integer | constraints.Float]() device.ScalarType {
	var zero T
	switch any(zero).(type) {
	case int8:
		return device.ScalarInt8
	case uint8:
		return device.ScalarUint8
	case int16:
		return device.ScalarInt16
	case uint16:
		return device.ScalarUint16
	case int32:
		return device.ScalarInt32
	case uint32:
		return device.ScalarUint32
	case float32:
		return device.ScalarFloat32
	case float64:
		return device.ScalarFloat64
	default:
		return device.ScalarUnknown
	}
}

type LayoutKind uint8

const (
	// LayoutFlat is an array of one attribute.
	LayoutFlat LayoutKind = iota
	// LayoutInterleaved is an array of records; every attribute advances by the record size.
	LayoutInterleaved
	// LayoutPacked is an array of records whose attributes carry their own stride.
	LayoutPacked
)

func (k LayoutKind) String() string {
	switch k {
	case LayoutFlat:
		return "flat"
	case LayoutInterleaved:
		return "interleaved"
	case LayoutPacked:
		return "packed"
	default:
		return fmt.Sprintf("LayoutKind(%d)", uint8(k))
	}
}

/**
 * @brief One attribute extracted from the items of an array buffer.
 */
type Section struct {
	Type ItemType
	/** @brief Byte offset of the attribute inside the first item. */
	Offset uint32
	/** @brief Byte distance between two consecutive values of the attribute. */
	Stride uint32
}

// Layout describes how the bytes of an array buffer split into attributes.
// It is fixed when the buffer is constructed.
type Layout struct {
	kind     LayoutKind
	itemSize uint32
	sections []Section
}

// FlatLayout is the layout of an array of t.
func FlatLayout(t ItemType) (Layout, error) {
	if !t.valid() {
		return Layout{}, fmt.Errorf("flat layout of %s: %w", t, core.ErrInvalidArgument)
	}
	return Layout{
		kind:     LayoutFlat,
		itemSize: t.Size(),
		sections: []Section{{Type: t, Offset: 0, Stride: t.Size()}},
	}, nil
}

// InterleavedLayout describes records of itemSize bytes. The Stride of the
// given sections is ignored and set to itemSize.
func InterleavedLayout(itemSize uint32, sections ...Section) (Layout, error) {
	if itemSize == 0 || len(sections) == 0 {
		return Layout{}, fmt.Errorf("interleaved layout: %w", core.ErrInvalidArgument)
	}
	out := make([]Section, len(sections))
	for i, s := range sections {
		if !s.Type.valid() || s.Offset+s.Type.Size() > itemSize {
			return Layout{}, fmt.Errorf("interleaved layout section %d (%s at %d) does not fit %d bytes: %w",
				i, s.Type, s.Offset, itemSize, core.ErrInvalidArgument)
		}
		s.Stride = itemSize
		out[i] = s
	}
	return Layout{kind: LayoutInterleaved, itemSize: itemSize, sections: out}, nil
}

// PackedLayout describes records of itemSize bytes whose attributes are read
// at their own offset and stride.
func PackedLayout(itemSize uint32, sections ...Section) (Layout, error) {
	if itemSize == 0 || len(sections) == 0 {
		return Layout{}, fmt.Errorf("packed layout: %w", core.ErrInvalidArgument)
	}
	out := make([]Section, len(sections))
	for i, s := range sections {
		if !s.Type.valid() || s.Stride < s.Type.Size() || s.Offset >= itemSize {
			return Layout{}, fmt.Errorf("packed layout section %d (%s at %d stride %d): %w",
				i, s.Type, s.Offset, s.Stride, core.ErrInvalidArgument)
		}
		out[i] = s
	}
	return Layout{kind: LayoutPacked, itemSize: itemSize, sections: out}, nil
}

// Vertex3DLayout is the interleaved layout of math.Vertex3D.
func Vertex3DLayout() Layout {
	f32 := device.ScalarFloat32
	l, _ := InterleavedLayout(48,
		Section{Type: ItemType{f32, 3}, Offset: 0},
		Section{Type: ItemType{f32, 3}, Offset: 12},
		Section{Type: ItemType{f32, 2}, Offset: 24},
		Section{Type: ItemType{f32, 4}, Offset: 32},
	)
	return l
}

func (l Layout) Kind() LayoutKind {
	return l.kind
}

func (l Layout) ItemSize() uint32 {
	return l.itemSize
}

func (l Layout) SectionCount() int {
	return len(l.sections)
}

// Section returns the attribute at index.
func (l Layout) Section(index int) (Section, error) {
	if index < 0 || index >= len(l.sections) {
		return Section{}, fmt.Errorf("section %d of %d: %w", index, len(l.sections), core.ErrSectionOutOfRange)
	}
	return l.sections[index], nil
}
