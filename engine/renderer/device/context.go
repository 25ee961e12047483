package device

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spaghettifunk/anima/engine/core"
)

// Namespace identifies the context (or group of sharing contexts) that owns
// a device object. The zero Namespace means "not created".
type Namespace struct {
	id uuid.UUID
}

func NewNamespace() Namespace {
	return Namespace{id: uuid.New()}
}

func (n Namespace) IsZero() bool {
	return n.id == uuid.Nil
}

func (n Namespace) String() string {
	if n.IsZero() {
		return "<none>"
	}
	return n.id.String()
}

// Context is a device context as seen by the geometry core. Every device
// operation requires its context to be current on the calling thread.
type Context interface {
	IsCurrent() bool
	MakeCurrent(current bool) error
	Namespace() Namespace
	Device() Device
}

// IsNull reports whether ctx is missing. A typed nil context reports the
// zero Namespace, so it counts as missing too.
func IsNull(ctx Context) bool {
	return ctx == nil || ctx.Namespace().IsZero()
}

// CheckCurrent validates ctx before a device operation.
func CheckCurrent(ctx Context) error {
	if IsNull(ctx) {
		return fmt.Errorf("context: %w", core.ErrNullArgument)
	}
	if !ctx.IsCurrent() {
		return fmt.Errorf("context %s is not current: %w", ctx.Namespace(), core.ErrContextMismatch)
	}
	return nil
}

// Resource is the lifecycle every device resource kind exposes.
type Resource interface {
	Exists(ctx Context) bool
	Create(ctx Context) error
	Delete(ctx Context) error
	Dispose() error
}
