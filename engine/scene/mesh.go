package scene

import (
	"fmt"

	"github.com/spaghettifunk/anima/engine/core"
	"github.com/spaghettifunk/anima/engine/math"
	"github.com/spaghettifunk/anima/engine/renderer/device"
	"github.com/spaghettifunk/anima/engine/renderer/vertexarray"
)

// UniformSetter is implemented by programs that accept matrix uniforms.
type UniformSetter interface {
	SetUniformMat4(name string, value math.Mat4) error
}

const (
	ModelUniform      = "model"
	ProjectionUniform = "projection"
)

// Mesh is the node payload drawing one vertex array. It holds a reference
// on the vertex array for as long as it lives.
type Mesh struct {
	vertexArray *vertexarray.VertexArray
	program     vertexarray.Program
	instances   uint32
	disposed    bool
}

// NewMesh builds a mesh over va. program may be nil, the program of the node
// state is used then.
func NewMesh(va *vertexarray.VertexArray, program vertexarray.Program) (*Mesh, error) {
	if va == nil {
		return nil, fmt.Errorf("mesh: %w", core.ErrNullArgument)
	}
	if err := va.IncRef(); err != nil {
		return nil, err
	}
	return &Mesh{vertexArray: va, program: program}, nil
}

func (m *Mesh) VertexArray() *vertexarray.VertexArray {
	return m.vertexArray
}

// SetInstances makes the mesh draw n instances, 0 for a plain draw.
func (m *Mesh) SetInstances(n uint32) {
	m.instances = n
}

func (m *Mesh) Create(ctx device.Context) error {
	if m.disposed {
		return fmt.Errorf("create disposed mesh: %w", core.ErrInvalidState)
	}
	return m.vertexArray.Create(ctx)
}

// CreateRevertible creates the mesh and returns how to undo exactly what
// the call created. Buffers shared with meshes created earlier survive.
func (m *Mesh) CreateRevertible(ctx device.Context) (func(device.Context) error, error) {
	if m.disposed {
		return nil, fmt.Errorf("create disposed mesh: %w", core.ErrInvalidState)
	}
	creation, err := m.vertexArray.CreateRecorded(ctx)
	if err != nil {
		return nil, err
	}
	return creation.Undo, nil
}

func (m *Mesh) Exists(ctx device.Context) bool {
	return !m.disposed && m.vertexArray.Exists(ctx)
}

func (m *Mesh) Delete(ctx device.Context) error {
	if m.disposed {
		return nil
	}
	return m.vertexArray.Delete(ctx)
}

// Draw draws the vertex array with the merged state.
func (m *Mesh) Draw(ctx device.Context, state State) error {
	if m.disposed {
		return fmt.Errorf("draw disposed mesh: %w", core.ErrInvalidState)
	}
	program := m.program
	if program == nil {
		program = state.Program
	}
	if setter, ok := program.(UniformSetter); ok {
		if err := setter.SetUniformMat4(ModelUniform, state.ModelMatrix()); err != nil {
			return err
		}
		if err := setter.SetUniformMat4(ProjectionUniform, state.ProjectionMatrix()); err != nil {
			return err
		}
	}
	if m.instances > 0 {
		return m.vertexArray.DrawInstanced(ctx, program, m.instances)
	}
	return m.vertexArray.Draw(ctx, program)
}

// Dispose drops the reference on the vertex array.
func (m *Mesh) Dispose() error {
	if m.disposed {
		return nil
	}
	m.disposed = true
	return m.vertexArray.DecRef()
}
