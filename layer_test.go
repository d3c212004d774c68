package envire_test

import (
	"errors"
	"testing"

	. "github.com/go-envire/envire"
)

func TestLayerImmutabilityLatches(t *testing.T) {
	l := NewLayer("l")
	l.SetDirty(true)
	l.SetImmutable()

	l.SetDirty(false)
	if !l.IsDirty() {
		t.Errorf("SetDirty(false) cleared an immutable layer's dirty flag")
	}

	l.SetDirty(true)
	if !l.IsDirty() {
		t.Errorf("SetDirty(true) on an immutable layer did not set the flag")
	}
}

func TestLayerMetadataRoundTrip(t *testing.T) {
	l := NewLayer("l")
	if l.HasMetadata("k") {
		t.Fatalf("HasMetadata() = true before any SetMetadata")
	}

	l.SetMetadata("k", "int", 42)
	if !l.HasMetadata("k") {
		t.Fatalf("HasMetadata() = false after SetMetadata")
	}

	got, err := l.Metadata("k", "int")
	if err != nil {
		t.Fatalf("Metadata() error = %v", err)
	}
	if got != 42 {
		t.Errorf("Metadata() = %v, want 42", got)
	}

	l.RemoveMetadata("k")
	if l.HasMetadata("k") {
		t.Errorf("HasMetadata() = true after RemoveMetadata")
	}
}

func TestLayerMetadataTypeMismatch(t *testing.T) {
	l := NewLayer("l")
	l.SetMetadata("k", "int", 42)

	_, err := l.Metadata("k", "string")
	if !errors.Is(err, ErrMetadataTypeMismatch) {
		t.Errorf("Metadata() with wrong type tag error = %v, want ErrMetadataTypeMismatch", err)
	}
}

func TestLayerMetadataNotFound(t *testing.T) {
	l := NewLayer("l")
	_, err := l.Metadata("missing", "int")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Metadata(missing key) error = %v, want ErrNotFound", err)
	}
}

func TestLayerClearMetadata(t *testing.T) {
	l := NewLayer("l")
	l.SetMetadata("a", "int", 1)
	l.SetMetadata("b", "int", 2)
	l.ClearMetadata()
	if l.HasMetadata("a") || l.HasMetadata("b") {
		t.Errorf("ClearMetadata() left entries behind")
	}
}

func TestLayerParentLinkDetectsCycle(t *testing.T) {
	env := NewEnvironment("/test")
	a := NewLayer("a")
	b := NewLayer("b")
	if err := env.Attach(a); err != nil {
		t.Fatalf("Attach(a) error = %v", err)
	}
	if err := env.Attach(b); err != nil {
		t.Fatalf("Attach(b) error = %v", err)
	}
	if err := b.SetParent(a); err != nil {
		t.Fatalf("SetParent(b, a) error = %v", err)
	}

	err := a.SetParent(b)
	if !errors.Is(err, ErrOperatorCycle) {
		t.Errorf("SetParent() introducing a cycle error = %v, want ErrOperatorCycle", err)
	}
}

func TestLayerGeneratorReflectsOperatorOutput(t *testing.T) {
	env := NewEnvironment("/test")
	l := NewLayer("l")
	if err := env.Attach(l); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	if l.Generator() != nil {
		t.Fatalf("Generator() = %v before any operator wrote this layer", l.Generator())
	}

	op := NewOperator("op", 0, 1, nil)
	if err := env.Attach(op); err != nil {
		t.Fatalf("Attach(op) error = %v", err)
	}
	if err := op.AddOutput(l); err != nil {
		t.Fatalf("AddOutput() error = %v", err)
	}

	if l.Generator() != op {
		t.Errorf("Generator() = %v, want %v", l.Generator(), op)
	}
}
