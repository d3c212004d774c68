// Package envire is a runtime model of a robotic environment representation:
// a typed, directed graph of spatial maps, coordinate frames, and
// computational operators that relate them.
//
// An Environment owns every Item attached to it and tracks four overlapping
// relation graphs: the frame tree, the layer DAG, the operator graph, and
// the cartesian-map-to-frame bindings. It enforces identity and attachment
// invariants, propagates dirtiness along operator chains, resolves rigid
// transforms across the frame tree (with or without uncertainty), fans out
// change events to subscribers, and round-trips the whole graph through a
// stable on-disk form.
//
// Concrete map payloads (point clouds, occupancy grids, ...) and concrete
// operators (ICP, slope extraction, ...) are not part of this package; it
// treats them as opaque Items that carry a class tag and, for maps,
// optionally a frame.
package envire
