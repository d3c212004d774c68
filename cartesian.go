package envire

import "github.com/go-envire/envire/geom"

// CartesianMap is a Layer additionally bound to exactly one Frame while
// attached.
type CartesianMap struct {
	Layer
}

func (*CartesianMap) isCartesian() {}

// NewCartesianMap constructs a detached cartesian map with no frame bound
// yet; the binding is installed on attach (Environment.AttachCartesian).
func NewCartesianMap(id string) *CartesianMap {
	m := &CartesianMap{}
	m.Init(m, id, ClassCartesianMap)
	return m
}

type cartesianMarker interface {
	isCartesian()
}

// Frame returns the frame this map is currently bound to, or nil if
// detached.
func (m *CartesianMap) Frame() *Frame {
	if m.env == nil {
		return nil
	}
	return m.env.cartesianFrame[m]
}

// SetFrame rebinds m to frame, replacing any existing binding atomically
// and emitting CartesianMapFrameChanged.
func (m *CartesianMap) SetFrame(frame *Frame) error {
	if m.env == nil {
		return opError("set-frame", ErrUnattached, m.id)
	}
	if frame.env != m.env {
		return opError("set-frame", ErrCrossEnvironment, frame.id)
	}
	return m.env.bindCartesian(m, frame)
}

// ToMap converts a point given in from's coordinates into this map's
// coordinates, i.e. it composes from -> this map's frame.
func (m *CartesianMap) ToMap(p geom.Vector3, from *Frame) (geom.Vector3, error) {
	mapFrame := m.Frame()
	if mapFrame == nil {
		return geom.Vector3{}, opError("to-map", ErrUnattached, m.id)
	}
	t, err := from.RelativeTransform(mapFrame)
	if err != nil {
		return geom.Vector3{}, err
	}
	return t.Apply(p), nil
}

// FromMap converts a point given in this map's coordinates into from's
// coordinates: the inverse direction of ToMap.
func (m *CartesianMap) FromMap(p geom.Vector3, from *Frame) (geom.Vector3, error) {
	mapFrame := m.Frame()
	if mapFrame == nil {
		return geom.Vector3{}, opError("from-map", ErrUnattached, m.id)
	}
	t, err := mapFrame.RelativeTransform(from)
	if err != nil {
		return geom.Vector3{}, err
	}
	return t.Apply(p), nil
}

// CloneInto copies m and the frame chain it depends on (its bound frame and
// each ancestor below the source root; the source root corresponds to dst's
// root) into dst, returning the new map. It does not remove m from
// its current environment.
//
// The clone keeps m's id verbatim: m.id is already fully composed by its
// source environment, so, like ensureFrameChain's frames, it is installed
// with attachExact rather than run back through dst's own id composition.
func (m *CartesianMap) CloneInto(dst *Environment) (*CartesianMap, error) {
	if m.env == nil {
		return nil, opError("clone-to", ErrUnattached, m.id)
	}
	srcFrame := m.Frame()
	dstFrame, err := dst.ensureFrameChain(srcFrame)
	if err != nil {
		return nil, err
	}

	clone := NewCartesianMap(m.id)
	clone.immutable = m.immutable
	clone.dirty = m.dirty
	for k, v := range m.metadata {
		clone.SetMetadata(k, v.typeTag, v.value)
	}
	dst.attachExact(clone, m.id, m.label)
	if err := dst.bindCartesian(clone, dstFrame); err != nil {
		return nil, err
	}
	return clone, nil
}
