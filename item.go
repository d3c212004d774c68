package envire

import (
	"fmt"
	"sync"
)

// Item is the root interface implemented by every object an Environment can
// own: frames, layers, cartesian maps, and operators.
//
// A freshly constructed Item is detached: the caller owns it and must
// either attach it to an Environment or let it be garbage collected. Once
// attached, the Environment is solely responsible for the item until it is
// detached again.
type Item interface {
	// ID returns this item's identifier. Before attach, this is whatever
	// the caller supplied at construction; after attach, it is the fully
	// composed id (see Environment.Attach).
	ID() string
	Label() string
	SetLabel(label string)
	// ClassTag names the concrete kind of this item stably, for use by the
	// serialization factory registry.
	ClassTag() string
	// Environment returns the environment this item is attached to, or nil
	// if the item is detached.
	Environment() *Environment
	Attached() bool
}

// baseAccessor is implemented by every type embedding ItemBase. It exists so
// Environment can reach the unexported bookkeeping fields of any Item
// without a type switch over concrete types, following the checked-downcast
// pattern used throughout this package for typed access to items.
type baseAccessor interface {
	base() *ItemBase
}

// ItemBase is embedded by every concrete item type to satisfy Item. Custom
// item types defined outside this package (concrete map payloads, concrete
// operators) must call Init before the item is usable.
//
// ItemBase holds a non-owning handle to its Environment: the Environment
// owns the item through its id-to-item table, and the item merely reaches
// back to call into the Environment for relation queries and event
// notification. The handle is granted on attach and revoked on detach, so
// no reference cycle survives environment teardown.
type ItemBase struct {
	owner    Item
	id       string
	label    string
	classTag string
	env      *Environment
}

// Init wires b up to satisfy Item. owner must be the concrete type embedding
// b (e.g. &Frame{}), id is the caller-chosen identifier used to compute the
// item's final id on attach (see Environment.Attach), and classTag is the
// stable name used to find this type's factory on deserialization.
func (b *ItemBase) Init(owner Item, id, classTag string) {
	b.owner = owner
	b.id = id
	b.classTag = classTag
}

func (b *ItemBase) base() *ItemBase { return b }

func (b *ItemBase) ID() string       { return b.id }
func (b *ItemBase) Label() string    { return b.label }
func (b *ItemBase) ClassTag() string { return b.classTag }

func (b *ItemBase) SetLabel(label string) {
	b.label = label
	if b.env != nil {
		b.env.notify(itemModifiedEvent{item: b.owner})
	}
}

func (b *ItemBase) Environment() *Environment { return b.env }
func (b *ItemBase) Attached() bool            { return b.env != nil }

// SetID changes the caller-chosen id of a detached item. It panics if the
// item is already attached, matching the source library's use of a runtime
// error for the same programmer mistake: identity is fixed the moment an
// item joins an environment.
func (b *ItemBase) SetID(id string) {
	if b.env != nil {
		panic("envire: cannot change id of an attached item")
	}
	b.id = id
}

// Factory constructs an empty, detached Item of a registered class tag (its
// class tag already set), ready to have its state populated by
// Environment.Unserialize.
type Factory func() Item

var classRegistry = struct {
	mu sync.Mutex
	m  map[string]Factory
}{m: make(map[string]Factory)}

// RegisterClass registers the factory for a class tag at process start. Each
// concrete item kind that is meant to survive a serialize/unserialize
// round-trip must call this exactly once, typically from an init function.
// Registering the same tag twice panics.
func RegisterClass(classTag string, factory Factory) {
	classRegistry.mu.Lock()
	defer classRegistry.mu.Unlock()
	if _, dup := classRegistry.m[classTag]; dup {
		panic(fmt.Sprintf("envire: duplicate class tag registration: %s", classTag))
	}
	classRegistry.m[classTag] = factory
}

func lookupFactory(classTag string) (Factory, bool) {
	classRegistry.mu.Lock()
	defer classRegistry.mu.Unlock()
	f, ok := classRegistry.m[classTag]
	return f, ok
}

// KnownClasses returns the class tags with a registered factory, primarily
// useful for diagnostics.
func KnownClasses() []string {
	classRegistry.mu.Lock()
	defer classRegistry.mu.Unlock()
	tags := make([]string, 0, len(classRegistry.m))
	for tag := range classRegistry.m {
		tags = append(tags, tag)
	}
	return tags
}

// Well-known class tags for the four built-in item kinds.
const (
	ClassFrame        = "envire.Frame"
	ClassLayer        = "envire.Layer"
	ClassCartesianMap = "envire.CartesianMap"
	ClassOperator     = "envire.Operator"
)

func init() {
	RegisterClass(ClassFrame, func() Item { return NewFrame("") })
	RegisterClass(ClassLayer, func() Item { return NewLayer("") })
	RegisterClass(ClassCartesianMap, func() Item { return NewCartesianMap("") })
	RegisterClass(ClassOperator, func() Item { return NewOperator("", 0, 0, nil) })
}
