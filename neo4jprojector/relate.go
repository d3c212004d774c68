package neo4jprojector

import (
	"context"
	"fmt"
)

// Node kinds mirrored into Neo4j labels.
const (
	kindFrame    = "Frame"
	kindLayer    = "Layer"
	kindOperator = "Operator"
	kindMap      = "CartesianMap"
)

// Relationship types mirrored into Neo4j edge labels.
const (
	relFrameParent = "FRAME_PARENT"
	relLayerParent = "LAYER_PARENT"
	relOperatorIn  = "OPERATOR_INPUT"
	relOperatorOut = "OPERATOR_OUTPUT"
	relMapFrame    = "BOUND_TO"
)

// manyToOne asserts a relType edge from (fromKind, fromID) to (toKind, toID),
// first retracting any other relType edge already outgoing from the source.
// Many sources may point at the same target; each source points at at most
// one. Panics if the graph already held more than one prior outgoing edge,
// since that means the mirror has drifted from the invariant it is meant to
// reflect.
func manyToOne(ctx context.Context, w writer, relType, fromKind, fromID, toKind, toID string) error {
	retracted, err := w.retractEdges(ctx, relType, fromKind, fromID, toKind)
	if err != nil {
		return fmt.Errorf("retract prior edges from source: %w", err)
	}
	if retracted > 1 {
		panic(mirrorDriftError(relType, "from source", retracted))
	}
	return w.assertEdge(ctx, relType, fromKind, fromID, toKind, toID)
}

// oneToMany asserts a relType edge from (fromKind, fromID) to (toKind, toID),
// first retracting any other relType edge already incoming to the target.
// One source may point at many targets; each target is pointed at by at
// most one source — the shape of the single-writer operator-output
// invariant.
func oneToMany(ctx context.Context, w writer, relType, fromKind, fromID, toKind, toID string) error {
	retracted, err := w.retractEdgesTo(ctx, relType, toKind, toID, fromKind)
	if err != nil {
		return fmt.Errorf("retract prior edges to target: %w", err)
	}
	if retracted > 1 {
		panic(mirrorDriftError(relType, "to target", retracted))
	}
	return w.assertEdge(ctx, relType, fromKind, fromID, toKind, toID)
}

// manyToMany asserts or retracts a single relType edge without touching any
// other edge of the same type: both the layer-tree DAG edges and the
// operator-input edges allow arbitrary fan-in and fan-out, so a link change
// at one endpoint must not disturb the others. added distinguishes a link
// from an unlink; retracting on removal is what lets these edges drain
// instead of accumulating stale links forever.
func manyToMany(ctx context.Context, w writer, relType, fromKind, fromID, toKind, toID string, added bool) error {
	if !added {
		return w.retractEdge(ctx, relType, fromKind, fromID, toKind, toID)
	}
	return w.assertEdge(ctx, relType, fromKind, fromID, toKind, toID)
}

func mirrorDriftError(relType, direction string, edges int) error {
	return fmt.Errorf("neo4jprojector: mirror integrity: %s retracted %d edges %s, expected at most 1",
		relType, edges, direction)
}
