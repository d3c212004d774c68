package neo4jprojector

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// writer performs the actual Cypher writes for one Neo4j transaction. Nodes
// are identified by (kind, id): kind becomes the Neo4j label, id is stored
// as the node's unique "envireId" property.
type writer struct {
	tx neo4j.ManagedTransaction
}

func (w writer) assertNode(ctx context.Context, kind, id string, props map[string]any) error {
	query := `
		MERGE (n:` + kind + ` {envireId: $id})
		SET n += $props
		RETURN count(n) AS nodes
	`
	params := map[string]any{"id": id, "props": props}
	nodes, err := w.runCount(ctx, query, params, "nodes")
	if err != nil {
		return fmt.Errorf("assert node: %w", err)
	}
	if nodes != 1 {
		return fmt.Errorf("assert node: modified %d nodes instead of 1", nodes)
	}
	return nil
}

func (w writer) retractNode(ctx context.Context, kind, id string) error {
	query := `
		MATCH (n:` + kind + ` {envireId: $id})
		DETACH DELETE n
		RETURN count(n) AS nodes
	`
	_, err := w.runCount(ctx, query, map[string]any{"id": id}, "nodes")
	if err != nil {
		return fmt.Errorf("retract node: %w", err)
	}
	return nil
}

// assertEdge merges a directed relType edge from (fromKind, fromID) to
// (toKind, toID), creating either endpoint node if it does not yet exist.
func (w writer) assertEdge(ctx context.Context, relType, fromKind, fromID, toKind, toID string) error {
	query := `
		MERGE (a:` + fromKind + ` {envireId: $fromID})
		MERGE (b:` + toKind + ` {envireId: $toID})
		MERGE (a)-[:` + relType + `]->(b)
	`
	_, err := w.tx.Run(ctx, query, map[string]any{"fromID": fromID, "toID": toID})
	if err != nil {
		return fmt.Errorf("assert edge: %w", err)
	}
	return nil
}

// retractEdge deletes the single relType edge between (fromKind, fromID) and
// (toKind, toID), if present.
func (w writer) retractEdge(ctx context.Context, relType, fromKind, fromID, toKind, toID string) error {
	query := `
		MATCH (a:` + fromKind + ` {envireId: $fromID})-[e:` + relType + `]->(b:` + toKind + ` {envireId: $toID})
		DELETE e
	`
	_, err := w.tx.Run(ctx, query, map[string]any{"fromID": fromID, "toID": toID})
	if err != nil {
		return fmt.Errorf("retract edge: %w", err)
	}
	return nil
}

// retractEdges deletes every relType edge outgoing from (fromKind, fromID)
// to a node labeled toKind, returning how many were removed.
func (w writer) retractEdges(ctx context.Context, relType, fromKind, fromID, toKind string) (int, error) {
	query := `
		MATCH (a:` + fromKind + ` {envireId: $fromID})-[e:` + relType + `]->(:` + toKind + `)
		DELETE e
		RETURN count(e) AS edges
	`
	n, err := w.runCount(ctx, query, map[string]any{"fromID": fromID}, "edges")
	if err != nil {
		return 0, fmt.Errorf("retract edges from: %w", err)
	}
	return n, nil
}

// retractEdgesTo deletes every relType edge incoming to (toKind, toID) from
// a node labeled fromKind, returning how many were removed.
func (w writer) retractEdgesTo(ctx context.Context, relType, toKind, toID, fromKind string) (int, error) {
	query := `
		MATCH (:` + fromKind + `)-[e:` + relType + `]->(b:` + toKind + ` {envireId: $toID})
		DELETE e
		RETURN count(e) AS edges
	`
	n, err := w.runCount(ctx, query, map[string]any{"toID": toID}, "edges")
	if err != nil {
		return 0, fmt.Errorf("retract edges to: %w", err)
	}
	return n, nil
}

func (w writer) runCount(ctx context.Context, query string, params map[string]any, column string) (int, error) {
	result, err := w.tx.Run(ctx, query, params)
	if err != nil {
		return 0, fmt.Errorf("run cypher: %w", err)
	}
	record, err := result.Single(ctx)
	if err != nil {
		return 0, fmt.Errorf("query single result: %w", err)
	}
	v, err := getRecordProperty[int64](record, column)
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", column, err)
	}
	return int(v), nil
}

// getRecordProperty reads a typed property out of a Neo4j record, failing
// if the key is absent or holds a value of an unexpected type.
func getRecordProperty[T any](record *neo4j.Record, key string) (value T, err error) {
	prop, exists := record.Get(key)
	if !exists {
		return value, fmt.Errorf("property %q not found", key)
	}
	v, ok := prop.(T)
	if !ok {
		return value, fmt.Errorf("property %q has unexpected type %T", key, prop)
	}
	return v, nil
}
