// Package neo4jprojector mirrors an [envire.Environment]'s four relation
// graphs into a Neo4j database for offline querying and visualization.
//
// It is never the source of truth: it subscribes as an ordinary
// envire.EventHandler and projects each event into Cypher writes inside its
// own transaction. If the projector falls behind or a write fails, the
// environment itself is unaffected; the mirror can always be rebuilt by
// unsubscribing and resubscribing, which replays the environment's full
// current state.
package neo4jprojector
