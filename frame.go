package envire

import (
	"fmt"

	"github.com/go-envire/envire/geom"
)

// Frame is a coordinate frame item: it carries a rigid transform to its
// parent frame (optionally with uncertainty) and the environment tracks its
// place in the single frame tree.
type Frame struct {
	ItemBase
	transform geom.TransformWithUncertainty
}

func (*Frame) isFrame() {}

// NewFrame constructs a detached frame with the given caller id, at the
// identity transform to whatever parent it is later given.
func NewFrame(id string) *Frame {
	f := &Frame{}
	f.Init(f, id, ClassFrame)
	f.transform = geom.TransformOnly(geom.Identity)
	return f
}

// frameMarker is satisfied by Frame and by any type that embeds it,
// including caller-defined frame subtypes. No code in this package
// currently type-asserts against it; Environment switches on *Frame.
type frameMarker interface {
	isFrame()
}

// Transform returns this frame's rigid transform (with uncertainty) to its
// parent.
func (f *Frame) Transform() geom.TransformWithUncertainty { return f.transform }

// SetTransform replaces this frame's transform to its parent, marks every
// cartesian map transitively bound under this frame dirty, and emits
// FrameNodeChanged.
func (f *Frame) SetTransform(t geom.TransformWithUncertainty) error {
	if f.env == nil {
		return opError("set-transform", ErrUnattached, f.id)
	}
	f.transform = t
	f.env.onFrameTransformChanged(f)
	return nil
}

// Parent returns this frame's parent, or nil for the root frame.
func (f *Frame) Parent() *Frame {
	if f.env == nil {
		return nil
	}
	return f.env.frameParent[f]
}

// Children returns this frame's immediate children, order unspecified.
func (f *Frame) Children() []*Frame {
	if f.env == nil {
		return nil
	}
	return append([]*Frame(nil), f.env.frameChildren[f]...)
}

// Maps returns the cartesian maps currently bound to this frame.
func (f *Frame) Maps() []*CartesianMap {
	if f.env == nil {
		return nil
	}
	var out []*CartesianMap
	for m, bound := range f.env.cartesianFrame {
		if bound == f {
			out = append(out, m)
		}
	}
	return out
}

// SetParent reparents f under parent, replacing any existing parent link.
// parent == nil detaches f from the tree structurally without detaching the
// item; this is only valid for the environment's root frame bookkeeping and
// is normally reached through Environment.Attach/Detach rather than called
// directly.
func (f *Frame) SetParent(parent *Frame) error {
	if f.env == nil {
		return opError("set-parent", ErrUnattached, f.id)
	}
	if parent != nil && parent.env != f.env {
		return opError("set-parent", ErrCrossEnvironment, parent.id)
	}
	return f.env.reparentFrame(f, parent)
}

// RelativeTransform resolves the rigid transform from f to to, via their
// lowest common ancestor in the frame tree.
func (f *Frame) RelativeTransform(to *Frame) (geom.Transform, error) {
	tu, err := f.RelativeTransformWithUncertainty(to)
	if err != nil {
		return geom.Transform{}, err
	}
	return tu.Transform, nil
}

// RelativeTransformWithUncertainty is RelativeTransform's uncertainty-aware
// counterpart; see Environment.relativeTransform for the algorithm.
func (f *Frame) RelativeTransformWithUncertainty(to *Frame) (geom.TransformWithUncertainty, error) {
	if f.env == nil {
		return geom.TransformWithUncertainty{}, opError("relative-transform", ErrUnattached, f.id)
	}
	if to.env != f.env {
		return geom.TransformWithUncertainty{}, opError("relative-transform", ErrCrossEnvironment, to.id)
	}
	return f.env.relativeTransform(f, to)
}

func (f *Frame) String() string {
	return fmt.Sprintf("Frame(%s)", f.id)
}
