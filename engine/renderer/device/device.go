// Package device describes the graphics device the geometry core drives
// and the bookkeeping every device-resident object shares: its name, the
// namespace of the context that created it, and its deferred deletion.
package device

import "fmt"

/** @brief The scalar component types a vertex attribute or index can use. */
type ScalarType uint8

const (
	ScalarUnknown ScalarType = iota
	ScalarInt8
	ScalarUint8
	ScalarInt16
	ScalarUint16
	ScalarInt32
	ScalarUint32
	ScalarFloat32
	ScalarFloat64
)

// Size is the size in bytes of one component.
func (s ScalarType) Size() uint32 {
	switch s {
	case ScalarInt8, ScalarUint8:
		return 1
	case ScalarInt16, ScalarUint16:
		return 2
	case ScalarInt32, ScalarUint32, ScalarFloat32:
		return 4
	case ScalarFloat64:
		return 8
	default:
		return 0
	}
}

func (s ScalarType) String() string {
	switch s {
	case ScalarInt8:
		return "int8"
	case ScalarUint8:
		return "uint8"
	case ScalarInt16:
		return "int16"
	case ScalarUint16:
		return "uint16"
	case ScalarInt32:
		return "int32"
	case ScalarUint32:
		return "uint32"
	case ScalarFloat32:
		return "float32"
	case ScalarFloat64:
		return "float64"
	default:
		return fmt.Sprintf("ScalarType(%d)", uint8(s))
	}
}

/** @brief How a mapped buffer is going to be accessed. */
type AccessMode uint8

const (
	AccessRead AccessMode = iota + 1
	AccessWrite
	AccessReadWrite
)

func (m AccessMode) CanRead() bool {
	return m == AccessRead || m == AccessReadWrite
}

func (m AccessMode) CanWrite() bool {
	return m == AccessWrite || m == AccessReadWrite
}

/** @brief Primitive topology of a draw. */
type Topology uint8

const (
	TopologyPoints Topology = iota
	TopologyLines
	TopologyLineStrip
	TopologyLineLoop
	TopologyTriangles
	TopologyTriangleStrip
	TopologyTriangleFan
)

func (t Topology) String() string {
	switch t {
	case TopologyPoints:
		return "points"
	case TopologyLines:
		return "lines"
	case TopologyLineStrip:
		return "line-strip"
	case TopologyLineLoop:
		return "line-loop"
	case TopologyTriangles:
		return "triangles"
	case TopologyTriangleStrip:
		return "triangle-strip"
	case TopologyTriangleFan:
		return "triangle-fan"
	default:
		return fmt.Sprintf("Topology(%d)", uint8(t))
	}
}

/**
 * @brief One vertex attribute fed from a device buffer.
 */
type VertexBinding struct {
	/** @brief The attribute location in the program. */
	Location uint32
	/** @brief The device buffer name. */
	Buffer uint32
	/** @brief Byte offset of the first element. */
	Offset uint64
	/** @brief Byte distance between two consecutive elements. */
	Stride uint32
	/** @brief Component type and count. */
	Type       ScalarType
	Components uint32
	/** @brief 0 advances per vertex, N advances every N instances. */
	Divisor uint32
}

/**
 * @brief The index buffer of an indexed draw.
 */
type IndexBinding struct {
	Buffer uint32
	Type   ScalarType
}

/**
 * @brief Everything a device needs to issue one draw.
 */
type DrawCall struct {
	Topology Topology
	Bindings []VertexBinding
	/** @brief nil for non-indexed draws. */
	Index *IndexBinding
	/** @brief First vertex, or first index when indexed. */
	First uint32
	/** @brief Number of vertices, or indices when indexed. */
	Count uint32
	/** @brief 0 issues a non-instanced draw. */
	InstanceCount uint32
}

// Device is the low-level graphics layer. Buffer names are non-zero; zero
// always means "no buffer". Implementations report failures as errors and
// never retry.
type Device interface {
	AllocateBuffer(size uint64) (uint32, error)
	// ResizeBuffer replaces the storage of name with size bytes of undefined
	// contents. The name stays valid.
	ResizeBuffer(name uint32, size uint64) error
	FreeBuffer(name uint32) error
	UploadBuffer(name uint32, offset uint64, data []byte) error
	// MapBuffer returns a view over the whole buffer, valid until UnmapBuffer.
	MapBuffer(name uint32, access AccessMode) ([]byte, error)
	UnmapBuffer(name uint32) error
	IssueDraw(call DrawCall) error
}
