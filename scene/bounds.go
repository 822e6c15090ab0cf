package scene

import "github.com/gogpu/stage"

// VisualBounds returns the axis-aligned box covering the node and all
// of its descendants in world space, regardless of layout policy.
//
// Each node's local bounding rectangle is transformed by the composed
// matrix (fixed order translate → rotate → scale → skew at every level)
// and unioned.
func VisualBounds(n Node) stage.Rect {
	return visualBounds(n, stage.Identity())
}

func visualBounds(n Node, parent stage.Matrix) stage.Rect {
	b := n.Common()
	world := parent.Multiply(b.Matrix())

	r := world.TransformRect(n.LocalBounds())
	for _, child := range b.Children {
		r = r.Union(visualBounds(child, world))
	}
	return r
}

// LayoutBounds returns the world-space union of the node and all
// layout-eligible descendants. ok is false only when the node and
// every descendant are policy-excluded; an eligible tree whose nodes
// carry no geometry (e.g. only groups) reports ok with a zero rect.
//
// A LayoutExclude node prunes its whole subtree. A node's own policy,
// absent an ancestor exclusion, decides whether it (and implicitly its
// subtree, for LayoutInclude) contributes.
func LayoutBounds(n Node) (stage.Rect, bool) {
	r, eligible := layoutBounds(n, stage.Identity(), false)
	if !eligible {
		return stage.Rect{}, false
	}
	if r.IsEmpty() {
		return stage.Rect{}, true
	}
	return r, true
}

func layoutBounds(n Node, parent stage.Matrix, forced bool) (stage.Rect, bool) {
	b := n.Common()
	if b.Layout == LayoutExclude {
		return stage.EmptyRect(), false
	}
	world := parent.Multiply(b.Matrix())
	include := forced || b.Layout == LayoutInclude || b.Layout == LayoutInherit
	forceChildren := forced || b.Layout == LayoutInclude

	r := stage.EmptyRect()
	eligible := include
	if include {
		r = world.TransformRect(n.LocalBounds())
	}
	for _, child := range b.Children {
		cr, ce := layoutBounds(child, world, forceChildren)
		r = r.Union(cr)
		eligible = eligible || ce
	}
	return r, eligible
}
