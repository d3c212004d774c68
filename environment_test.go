package envire_test

import (
	"context"
	"errors"
	"testing"

	. "github.com/go-envire/envire"
)

func TestComposeIDAppendsSuffixForTrailingSlash(t *testing.T) {
	env := NewEnvironment("/robot")

	a := NewLayer("scan/")
	b := NewLayer("scan/")
	if err := env.Attach(a); err != nil {
		t.Fatalf("Attach(a) error = %v", err)
	}
	if err := env.Attach(b); err != nil {
		t.Fatalf("Attach(b) error = %v", err)
	}
	if a.ID() == b.ID() {
		t.Fatalf("two attaches with a trailing-slash id both got %q", a.ID())
	}
}

func TestAttachDuplicateIDFails(t *testing.T) {
	env := NewEnvironment("/test")
	a := NewLayer("fixed")
	b := NewLayer("fixed")
	if err := env.Attach(a); err != nil {
		t.Fatalf("Attach(a) error = %v", err)
	}
	err := env.Attach(b)
	if !errors.Is(err, ErrDuplicateID) {
		t.Errorf("Attach(duplicate id) error = %v, want ErrDuplicateID", err)
	}
}

func TestAttachAlreadyAttachedFails(t *testing.T) {
	env := NewEnvironment("/test")
	l := NewLayer("l")
	if err := env.Attach(l); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	err := env.Attach(l)
	if !errors.Is(err, ErrCrossEnvironment) {
		t.Errorf("re-Attach() of an already attached item error = %v, want ErrCrossEnvironment", err)
	}
}

func TestGetTypedAndGetUnique(t *testing.T) {
	env := NewEnvironment("/test")
	l := NewLayer("l")
	if err := env.Attach(l); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	got, ok := GetTyped[*Layer](env, l.ID())
	if !ok || got != l {
		t.Errorf("GetTyped[*Layer](%q) = (%v, %v), want (%v, true)", l.ID(), got, ok, l)
	}
	if _, ok := GetTyped[*Operator](env, l.ID()); ok {
		t.Errorf("GetTyped[*Operator] matched a *Layer id")
	}

	unique, err := GetUnique[*Layer](env)
	if err != nil || unique != l {
		t.Errorf("GetUnique[*Layer]() = (%v, %v), want (%v, nil)", unique, err, l)
	}

	second := NewLayer("l2")
	if err := env.Attach(second); err != nil {
		t.Fatalf("Attach(second) error = %v", err)
	}
	if _, err := GetUnique[*Layer](env); !errors.Is(err, ErrAmbiguousLookup) {
		t.Errorf("GetUnique[*Layer]() with two layers error = %v, want ErrAmbiguousLookup", err)
	}
}

func TestDeepDetachRemovesDescendants(t *testing.T) {
	env := NewEnvironment("/test")
	parent := NewFrame("parent")
	if err := env.AttachFrame(parent, nil); err != nil {
		t.Fatalf("AttachFrame(parent) error = %v", err)
	}
	child := NewFrame("child")
	if err := env.AttachFrame(child, parent); err != nil {
		t.Fatalf("AttachFrame(child) error = %v", err)
	}
	m := NewCartesianMap("m")
	if err := env.AttachCartesian(m, child); err != nil {
		t.Fatalf("AttachCartesian() error = %v", err)
	}

	if err := env.Detach(parent, true); err != nil {
		t.Fatalf("Detach(parent, deep) error = %v", err)
	}

	if env.Get(child.ID()) != nil {
		t.Errorf("child frame still present after deep detach of its parent")
	}
	if env.Get(m.ID()) != nil {
		t.Errorf("map bound under the deleted subtree still present after deep detach")
	}
	if m.Attached() {
		t.Errorf("detached map still reports Attached() = true")
	}
}

func TestDeepDetachHandlesMultipleChildren(t *testing.T) {
	env := NewEnvironment("/test")
	parent := NewFrame("parent")
	if err := env.AttachFrame(parent, nil); err != nil {
		t.Fatalf("AttachFrame(parent) error = %v", err)
	}
	var children []*Frame
	for _, id := range []string{"a", "b", "c"} {
		child := NewFrame(id)
		if err := env.AttachFrame(child, parent); err != nil {
			t.Fatalf("AttachFrame(%s) error = %v", id, err)
		}
		children = append(children, child)
	}

	if err := env.Detach(parent, true); err != nil {
		t.Fatalf("Detach(parent, deep) error = %v", err)
	}

	for _, child := range children {
		if env.Get(child.ID()) != nil {
			t.Errorf("child frame %q still present after deep detach of its parent", child.ID())
		}
	}
}

func TestDeepDetachLayerHandlesMultipleChildren(t *testing.T) {
	env := NewEnvironment("/test")
	parent := NewLayer("parent")
	if err := env.Attach(parent); err != nil {
		t.Fatalf("Attach(parent) error = %v", err)
	}
	var children []*Layer
	for _, id := range []string{"a", "b", "c"} {
		child := NewLayer(id)
		if err := env.Attach(child); err != nil {
			t.Fatalf("Attach(%s) error = %v", id, err)
		}
		if err := child.SetParent(parent); err != nil {
			t.Fatalf("SetParent(%s) error = %v", id, err)
		}
		children = append(children, child)
	}

	if err := env.Detach(parent, true); err != nil {
		t.Fatalf("Detach(parent, deep) error = %v", err)
	}

	for _, child := range children {
		if env.Get(child.ID()) != nil {
			t.Errorf("child layer %q still present after deep detach of its parent", child.ID())
		}
	}
}

func TestDetachCartesianMapCleansOperatorAndLayerRelations(t *testing.T) {
	env := NewEnvironment("/test")
	m := NewCartesianMap("m")
	if err := env.Attach(m); err != nil {
		t.Fatalf("Attach(m) error = %v", err)
	}
	other := NewLayer("other")
	if err := env.Attach(other); err != nil {
		t.Fatalf("Attach(other) error = %v", err)
	}
	if err := other.SetParent(&m.Layer); err != nil {
		t.Fatalf("SetParent(m) error = %v", err)
	}

	op := NewOperator("op", 1, 1, nil)
	if err := env.Attach(op); err != nil {
		t.Fatalf("Attach(op) error = %v", err)
	}
	if err := op.AddOutput(&m.Layer); err != nil {
		t.Fatalf("AddOutput(&m.Layer) error = %v", err)
	}

	consumer := NewOperator("consumer", 1, 0, nil)
	if err := env.Attach(consumer); err != nil {
		t.Fatalf("Attach(consumer) error = %v", err)
	}
	if err := consumer.AddInput(&m.Layer); err != nil {
		t.Fatalf("AddInput(&m.Layer) error = %v", err)
	}

	if err := env.Detach(m, false); err != nil {
		t.Fatalf("Detach(m) error = %v", err)
	}

	if outs := op.Outputs(); len(outs) != 0 {
		t.Errorf("op.Outputs() after detaching its output map = %v, want empty", outs)
	}
	if ins := consumer.Inputs(); len(ins) != 0 {
		t.Errorf("consumer.Inputs() after detaching its input map = %v, want empty", ins)
	}
	if parents := other.Parents(); len(parents) != 0 {
		t.Errorf("other.Parents() after its parent map was detached = %v, want empty", parents)
	}
}

func TestUpdateAllRunsOperatorsInDependencyOrder(t *testing.T) {
	env := NewEnvironment("/test")

	upstream := NewLayer("upstream")
	downstream := NewLayer("downstream")
	if err := env.Attach(upstream); err != nil {
		t.Fatalf("Attach(upstream) error = %v", err)
	}
	if err := env.Attach(downstream); err != nil {
		t.Fatalf("Attach(downstream) error = %v", err)
	}

	var order []string
	genUpstream := NewOperator("gen-upstream", 0, 1, func(op *Operator) error {
		order = append(order, "gen-upstream")
		return nil
	})
	genDownstream := NewOperator("gen-downstream", 1, 1, func(op *Operator) error {
		order = append(order, "gen-downstream")
		return nil
	})
	if err := env.Attach(genUpstream); err != nil {
		t.Fatalf("Attach(genUpstream) error = %v", err)
	}
	if err := env.Attach(genDownstream); err != nil {
		t.Fatalf("Attach(genDownstream) error = %v", err)
	}
	if err := genUpstream.AddOutput(upstream); err != nil {
		t.Fatalf("AddOutput(upstream) error = %v", err)
	}
	if err := genDownstream.SetInput(upstream); err != nil {
		t.Fatalf("SetInput(upstream) error = %v", err)
	}
	if err := genDownstream.AddOutput(downstream); err != nil {
		t.Fatalf("AddOutput(downstream) error = %v", err)
	}

	upstream.SetDirty(true)
	downstream.SetDirty(true)

	if err := env.UpdateAll(context.Background()); err != nil {
		t.Fatalf("UpdateAll() error = %v", err)
	}

	if len(order) != 2 || order[0] != "gen-upstream" || order[1] != "gen-downstream" {
		t.Errorf("UpdateAll() run order = %v, want [gen-upstream gen-downstream]", order)
	}
	if upstream.IsDirty() || downstream.IsDirty() {
		t.Errorf("UpdateAll() left a layer dirty: upstream=%v downstream=%v", upstream.IsDirty(), downstream.IsDirty())
	}
}

func TestUpdateAllDetectsCycle(t *testing.T) {
	env := NewEnvironment("/test")

	a := NewLayer("a")
	b := NewLayer("b")
	if err := env.Attach(a); err != nil {
		t.Fatalf("Attach(a) error = %v", err)
	}
	if err := env.Attach(b); err != nil {
		t.Fatalf("Attach(b) error = %v", err)
	}

	opA := NewOperator("op-a", 1, 1, func(*Operator) error { return nil })
	opB := NewOperator("op-b", 1, 1, func(*Operator) error { return nil })
	if err := env.Attach(opA); err != nil {
		t.Fatalf("Attach(opA) error = %v", err)
	}
	if err := env.Attach(opB); err != nil {
		t.Fatalf("Attach(opB) error = %v", err)
	}

	// a is generated by opA, consumed by opB; b is generated by opB,
	// consumed by opA: a manufactured cycle that cannot resolve.
	if err := opA.SetInput(b); err != nil {
		t.Fatalf("SetInput(b) error = %v", err)
	}
	if err := opA.AddOutput(a); err != nil {
		t.Fatalf("AddOutput(a) error = %v", err)
	}
	if err := opB.SetInput(a); err != nil {
		t.Fatalf("SetInput(a) error = %v", err)
	}
	if err := opB.AddOutput(b); err != nil {
		t.Fatalf("AddOutput(b) error = %v", err)
	}

	a.SetDirty(true)
	b.SetDirty(true)

	err := env.UpdateAll(context.Background())
	if !errors.Is(err, ErrOperatorCycle) {
		t.Errorf("UpdateAll() on a cyclic operator graph error = %v, want ErrOperatorCycle", err)
	}
}

func TestGeneratorsAndLayersGeneratedFrom(t *testing.T) {
	env := NewEnvironment("/test")
	raw := NewLayer("raw")
	if err := env.Attach(raw); err != nil {
		t.Fatalf("Attach(raw) error = %v", err)
	}

	filtered := NewCartesianMap("filtered")
	if err := env.AttachCartesian(filtered, nil); err != nil {
		t.Fatalf("AttachCartesian(filtered) error = %v", err)
	}
	other := NewLayer("other")
	if err := env.Attach(other); err != nil {
		t.Fatalf("Attach(other) error = %v", err)
	}

	filter := NewOperator("filter", 1, 2, nil)
	if err := env.Attach(filter); err != nil {
		t.Fatalf("Attach(filter) error = %v", err)
	}
	if err := filter.SetInput(raw); err != nil {
		t.Fatalf("SetInput(raw) error = %v", err)
	}
	if err := filter.AddOutput(&filtered.Layer); err != nil {
		t.Fatalf("AddOutput(filtered) error = %v", err)
	}
	if err := filter.AddOutput(other); err != nil {
		t.Fatalf("AddOutput(other) error = %v", err)
	}

	// an unrelated operator that does not consume raw must not show up.
	idle := NewOperator("idle", 0, 0, nil)
	if err := env.Attach(idle); err != nil {
		t.Fatalf("Attach(idle) error = %v", err)
	}

	gens := env.Generators(raw)
	if len(gens) != 1 || gens[0] != filter {
		t.Fatalf("Generators(raw) = %v, want [%v]", gens, filter)
	}

	maps := LayersGeneratedFrom[*CartesianMap](env, raw)
	if len(maps) != 1 || maps[0] != filtered {
		t.Errorf("LayersGeneratedFrom[*CartesianMap](raw) = %v, want [%v]", maps, filtered)
	}

	layers := LayersGeneratedFrom[*Layer](env, raw)
	if len(layers) != 1 || layers[0] != other {
		t.Errorf("LayersGeneratedFrom[*Layer](raw) = %v, want [%v] (excludes the *CartesianMap output)", layers, other)
	}

	if got := env.Generators(other); len(got) != 0 {
		t.Errorf("Generators(other) = %v, want empty (other is an output, not consumed by anything)", got)
	}
}

func TestUpdateAllNoOpWhenNothingDirty(t *testing.T) {
	env := NewEnvironment("/test")
	ran := false
	op := NewOperator("op", 0, 1, func(*Operator) error { ran = true; return nil })
	l := NewLayer("l")
	if err := env.Attach(op); err != nil {
		t.Fatalf("Attach(op) error = %v", err)
	}
	if err := env.Attach(l); err != nil {
		t.Fatalf("Attach(l) error = %v", err)
	}
	if err := op.AddOutput(l); err != nil {
		t.Fatalf("AddOutput(l) error = %v", err)
	}
	l.SetDirty(false)

	if err := env.UpdateAll(context.Background()); err != nil {
		t.Fatalf("UpdateAll() error = %v", err)
	}
	if ran {
		t.Errorf("UpdateAll() ran an operator whose only output was clean")
	}
}
