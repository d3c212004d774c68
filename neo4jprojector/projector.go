package neo4jprojector

import (
	"context"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/go-envire/envire"
)

// Projector mirrors an envire.Environment into Neo4j. It implements
// envire.EventHandler; pass it to Environment.AddEventHandler to start the
// mirror, which immediately receives the replay of the environment's
// current state.
type Projector struct {
	driver   neo4j.DriverWithContext
	database string
	log      *slog.Logger
}

// NewProjector constructs a Projector writing to database over driver.
func NewProjector(driver neo4j.DriverWithContext, database string) *Projector {
	return &Projector{driver: driver, database: database, log: slog.Default()}
}

// SetLogger replaces the logger used to report write failures, which
// HandleEvent otherwise swallows to honor envire's handler-exception
// contract.
func (p *Projector) SetLogger(l *slog.Logger) { p.log = l }

// HandleEvent implements envire.EventHandler. Every event is applied in its
// own write transaction; a failure is logged, matching the swallow-and-log
// delivery contract the environment itself expects from handlers.
func (p *Projector) HandleEvent(ev envire.Event) {
	ctx := context.Background()
	if err := p.apply(ctx, ev); err != nil {
		p.log.Error("neo4jprojector: failed to mirror event", "kind", ev.Kind().String(), "error", err)
	}
}

func (p *Projector) apply(ctx context.Context, ev envire.Event) error {
	session := p.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: p.database,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, p.applyInTx(ctx, writer{tx: tx}, ev)
	})
	return err
}

func (p *Projector) applyInTx(ctx context.Context, w writer, ev envire.Event) error {
	switch ev.Kind() {
	case envire.ItemAttached:
		return assertItemNode(ctx, w, ev.Item())
	case envire.ItemDetached:
		kind, id := kindAndID(ev.Item())
		return w.retractNode(ctx, kind, id)
	case envire.ItemModified:
		kind, id := kindAndID(ev.Item())
		return w.assertNode(ctx, kind, id, map[string]any{"label": ev.Item().Label()})
	}

	switch v := ev.(type) {
	case envire.FrameTreeEvent:
		if v.Parent == nil {
			_, err := w.retractEdges(ctx, relFrameParent, kindFrame, v.Child.ID(), kindFrame)
			return err
		}
		return manyToOne(ctx, w, relFrameParent, kindFrame, v.Child.ID(), kindFrame, v.Parent.ID())
	case envire.LayerTreeEvent:
		if v.Parent == nil {
			return nil
		}
		return manyToMany(ctx, w, relLayerParent, kindLayer, v.Child.ID(), kindLayer, v.Parent.ID(), true)
	case envire.OperatorInputEvent:
		return manyToMany(ctx, w, relOperatorIn, kindOperator, v.Operator.ID(), kindLayer, v.Layer.ID(), v.Added)
	case envire.OperatorOutputEvent:
		if !v.Added {
			return w.retractEdge(ctx, relOperatorOut, kindOperator, v.Operator.ID(), kindLayer, v.Layer.ID())
		}
		return oneToMany(ctx, w, relOperatorOut, kindOperator, v.Operator.ID(), kindLayer, v.Layer.ID())
	case envire.CartesianBindingEvent:
		if v.Frame == nil {
			_, err := w.retractEdges(ctx, relMapFrame, kindMap, v.Map.ID(), kindFrame)
			return err
		}
		return manyToOne(ctx, w, relMapFrame, kindMap, v.Map.ID(), kindFrame, v.Frame.ID())
	}
	return nil
}

func assertItemNode(ctx context.Context, w writer, item envire.Item) error {
	kind, id := kindAndID(item)
	props := map[string]any{
		"label":    item.Label(),
		"classTag": item.ClassTag(),
	}
	return w.assertNode(ctx, kind, id, props)
}

func kindAndID(item envire.Item) (kind, id string) {
	switch item.(type) {
	case *envire.Frame:
		return kindFrame, item.ID()
	case *envire.CartesianMap:
		return kindMap, item.ID()
	case *envire.Layer:
		return kindLayer, item.ID()
	case *envire.Operator:
		return kindOperator, item.ID()
	default:
		return "Item", item.ID()
	}
}
