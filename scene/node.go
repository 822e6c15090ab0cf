// Package scene defines the retained tree of drawable nodes consumed by
// both renderer backends.
//
// The node set is closed: every concrete kind is declared in this
// package and carries the unexported marker method, so the adapter and
// the software renderer can switch over it exhaustively. A new node
// kind cannot silently fall through to "unsupported" without showing up
// here first.
//
// Node trees are plain data. They are rebuilt (or mutated) by the
// caller between frames; the renderers never mutate them.
package scene

import (
	"github.com/gogpu/stage"
)

// LayoutPolicy controls whether a node contributes to layout bounds.
type LayoutPolicy uint8

const (
	// LayoutInherit includes the node unless an ancestor excludes it.
	LayoutInherit LayoutPolicy = iota

	// LayoutInclude forces the node (and implicitly its subtree) into
	// layout bounds.
	LayoutInclude

	// LayoutExclude prunes the node and its whole subtree from layout
	// bounds.
	LayoutExclude
)

// Node is a drawable unit in the scene tree.
//
// Concrete kinds: *Group, *RectNode, *LineNode, *ArcNode, *PathNode,
// *TextNode, *ImageNode, *ParticlesNode.
type Node interface {
	// Common returns the shared transform/opacity/children state.
	Common() *Base

	// LocalBounds returns the node's own bounding rectangle in local
	// space, excluding children.
	LocalBounds() stage.Rect

	// node seals the interface to this package.
	node()
}

// Base holds the state shared by every node kind: position, rotation,
// scale, skew, opacity, visibility, children, and the layout policy.
//
// The local transform is composed in the fixed order
// translate → rotate → scale → skew (see stage.Compose).
type Base struct {
	X, Y     float64
	Rotation float64
	ScaleX   float64
	ScaleY   float64
	SkewX    float64
	SkewY    float64

	// Opacity in [0, 1]. Multiplies with ancestor opacity.
	Opacity float64

	// Visible false prunes the node and its subtree from rendering.
	Visible bool

	// Layout controls layout-bounds participation.
	Layout LayoutPolicy

	// Children are owned by this node and drawn after it, in order.
	Children []Node
}

// NewBase returns a Base with neutral defaults (unit scale, opaque,
// visible).
func NewBase() Base {
	return Base{ScaleX: 1, ScaleY: 1, Opacity: 1, Visible: true}
}

// Common implements Node.
func (b *Base) Common() *Base { return b }

// Matrix returns the node's local transform.
func (b *Base) Matrix() stage.Matrix {
	return stage.Compose(b.X, b.Y, b.Rotation, b.ScaleX, b.ScaleY, b.SkewX, b.SkewY)
}

// Add appends children and returns the receiver's Base for chaining.
func (b *Base) Add(children ...Node) *Base {
	b.Children = append(b.Children, children...)
	return b
}

// Group is an empty container node: it draws nothing itself and exists
// to transform and group its children.
type Group struct {
	Base
}

// NewGroup creates an empty group container.
func NewGroup() *Group {
	return &Group{Base: NewBase()}
}

func (*Group) node() {}

// LocalBounds returns an empty rect; a group has no geometry of its own.
func (*Group) LocalBounds() stage.Rect { return stage.EmptyRect() }
