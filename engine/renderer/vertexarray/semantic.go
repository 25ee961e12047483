package vertexarray

import "fmt"

/** @brief A well known attribute role, bound without naming the attribute. */
type Semantic uint8

const (
	SemanticNone Semantic = iota
	SemanticPosition
	SemanticNormal
	SemanticColor
	SemanticTexCoord
	SemanticTangent
)

func (s Semantic) String() string {
	switch s {
	case SemanticNone:
		return "none"
	case SemanticPosition:
		return "position"
	case SemanticNormal:
		return "normal"
	case SemanticColor:
		return "color"
	case SemanticTexCoord:
		return "texcoord"
	case SemanticTangent:
		return "tangent"
	default:
		return fmt.Sprintf("Semantic(%d)", uint8(s))
	}
}

func (s Semantic) Valid() bool {
	return s >= SemanticPosition && s <= SemanticTangent
}

// SemanticLocation is the attribute location every program reserves for s.
func SemanticLocation(s Semantic) (uint32, bool) {
	if !s.Valid() {
		return 0, false
	}
	return uint32(s - SemanticPosition), true
}

// Key identifies a binding, either by attribute and block name or by semantic.
type Key struct {
	Attribute string
	Block     string
	Semantic  Semantic
}

func (k Key) String() string {
	if k.Semantic != SemanticNone {
		return k.Semantic.String()
	}
	if k.Block != "" {
		return k.Block + "." + k.Attribute
	}
	return k.Attribute
}
