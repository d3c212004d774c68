package neo4jprojector_test

import (
	"context"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/go-envire/envire"
	"github.com/go-envire/envire/internal/dbtest"
	"github.com/go-envire/envire/neo4jprojector"
)

func TestProjectorMirrorsFrameTree(t *testing.T) {
	driver := dbtest.SetupNeo4j(t)

	env := envire.NewEnvironment("/test")
	p := neo4jprojector.NewProjector(driver, "neo4j")
	env.AddEventHandler(p)

	child := envire.NewFrame("child")
	if err := env.AttachFrame(child, nil); err != nil {
		t.Fatalf("AttachFrame() error = %v", err)
	}

	ctx := context.Background()
	session := driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: "neo4j"})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (:Frame {envireId: $childID})-[:FRAME_PARENT]->(:Frame {envireId: $parentID})
		RETURN count(*) AS n
	`, map[string]any{"childID": child.ID(), "parentID": env.Root().ID()})
	if err != nil {
		t.Fatalf("query mirrored edge: %v", err)
	}
	record, err := result.Single(ctx)
	if err != nil {
		t.Fatalf("expected exactly one result row: %v", err)
	}
	n, _ := record.Get("n")
	if n.(int64) != 1 {
		t.Errorf("mirrored FRAME_PARENT edge count = %v, want 1", n)
	}
}

func TestProjectorRetractsOnDetach(t *testing.T) {
	driver := dbtest.SetupNeo4j(t)

	env := envire.NewEnvironment("/test")
	p := neo4jprojector.NewProjector(driver, "neo4j")
	env.AddEventHandler(p)

	l := envire.NewLayer("l")
	if err := env.Attach(l); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	id := l.ID()
	if err := env.Detach(l, false); err != nil {
		t.Fatalf("Detach() error = %v", err)
	}

	ctx := context.Background()
	session := driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: "neo4j"})
	defer session.Close(ctx)

	result, err := session.Run(ctx, `MATCH (n:Layer {envireId: $id}) RETURN count(n) AS n`, map[string]any{"id": id})
	if err != nil {
		t.Fatalf("query retracted node: %v", err)
	}
	record, err := result.Single(ctx)
	if err != nil {
		t.Fatalf("expected exactly one result row: %v", err)
	}
	n, _ := record.Get("n")
	if n.(int64) != 0 {
		t.Errorf("node count after detach = %v, want 0", n)
	}
}
