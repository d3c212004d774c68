package envire

import (
	"context"
	"log/slog"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/go-envire/envire/geom"
)

// Environment owns every item attached to it and tracks the four relation
// graphs described in this package's documentation: the frame tree, the
// layer DAG, the operator graph, and the cartesian-map-to-frame bindings.
//
// The zero value is not usable; construct with NewEnvironment. An
// Environment is not safe for concurrent mutation from more than one
// goroutine; concurrent read-only queries are safe only while no mutation
// is in flight, matching the single-threaded, cooperative scheduling model
// this kernel is deliberately built around.
type Environment struct {
	items  map[string]Item
	prefix string
	suffix int

	root          *Frame
	frameParent   map[*Frame]*Frame
	frameChildren map[*Frame][]*Frame

	layerParents   map[*Layer][]*Layer
	layerChildren  map[*Layer][]*Layer
	layerGenerator map[*Layer]*Operator

	opInputs  map[*Operator][]*Layer
	opOutputs map[*Operator][]*Layer

	cartesianFrame map[*CartesianMap]*Frame

	handlers []EventHandler
	log      *slog.Logger
}

// NewEnvironment constructs an empty environment with a designated root
// frame and the given id prefix (normalized to start and end with "/"; an
// empty prefix normalizes to "/").
func NewEnvironment(prefix string) *Environment {
	e := &Environment{
		items:          make(map[string]Item),
		frameParent:    make(map[*Frame]*Frame),
		frameChildren:  make(map[*Frame][]*Frame),
		layerParents:   make(map[*Layer][]*Layer),
		layerChildren:  make(map[*Layer][]*Layer),
		layerGenerator: make(map[*Layer]*Operator),
		opInputs:       make(map[*Operator][]*Layer),
		opOutputs:      make(map[*Operator][]*Layer),
		cartesianFrame: make(map[*CartesianMap]*Frame),
		log:            slog.Default(),
	}
	e.prefix = normalizePrefix(prefix)

	root := NewFrame("root")
	if err := e.Attach(root); err != nil {
		panic("envire: failed to attach root frame: " + err.Error())
	}
	e.root = root
	return e
}

func normalizePrefix(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasSuffix(p, "/") {
		p = p + "/"
	}
	return p
}

// SetPrefix replaces the id prefix used for future attaches. It does not
// rename already-attached items.
func (e *Environment) SetPrefix(prefix string) { e.prefix = normalizePrefix(prefix) }

// Prefix returns the current id prefix.
func (e *Environment) Prefix() string { return e.prefix }

// Root returns the environment's designated root frame.
func (e *Environment) Root() *Frame { return e.root }

func (e *Environment) logger() *slog.Logger {
	if e.log == nil {
		return slog.Default()
	}
	return e.log
}

// SetLogger replaces the logger used for internal diagnostics (event
// handler panics, update-all progress).
func (e *Environment) SetLogger(l *slog.Logger) { e.log = l }

func (e *Environment) handlerList() []EventHandler {
	return append([]EventHandler(nil), e.handlers...)
}

// -- identity & attach/detach -------------------------------------------------

func (e *Environment) composeID(userID string) string {
	if strings.HasSuffix(userID, "/") {
		id := e.prefix + userID + strconv.Itoa(e.suffix)
		e.suffix++
		return id
	}
	return e.prefix + userID
}

// Attach hands ownership of item to the environment: it must currently be
// detached. The environment composes the item's final id from its
// caller-supplied id and the environment's prefix (§4.1), and emits
// ItemAttached.
func (e *Environment) Attach(item Item) error {
	ba, ok := item.(baseAccessor)
	if !ok {
		return opError("attach", ErrUnknownClass, "item does not embed ItemBase")
	}
	base := ba.base()
	if base.env != nil {
		return opError("attach", ErrCrossEnvironment, "item already attached")
	}

	id := e.composeID(base.id)
	if _, exists := e.items[id]; exists {
		return opError("attach", ErrDuplicateID, id)
	}

	base.id = id
	base.env = e
	e.items[id] = item

	if m, ok := item.(*CartesianMap); ok {
		e.attachFrameless(m)
	}

	e.notify(itemAttachedEvent{item: item})
	return nil
}

func (e *Environment) attachFrameless(m *CartesianMap) {
	// AttachCartesian installs the binding; a plain Attach leaves a
	// cartesian map frameless until AttachCartesian or SetFrame is called,
	// unless the environment already has a root to bind to by default.
	if e.root != nil {
		e.cartesianFrame[m] = e.root
		e.notify(CartesianBindingEvent{Map: m, Frame: e.root})
	}
}

// AttachCartesian attaches a cartesian map like Attach, additionally
// binding it to frame, or to the root frame if frame is nil.
func (e *Environment) AttachCartesian(m *CartesianMap, frame *Frame) error {
	if frame == nil {
		frame = e.root
	}
	if frame != nil && frame.env != nil && frame.env != e {
		return opError("attach", ErrCrossEnvironment, frame.id)
	}
	if err := e.Attach(m); err != nil {
		return err
	}
	return e.bindCartesian(m, frame)
}

// AttachFrame attaches f and links it under parent (or the root frame if
// parent is nil).
func (e *Environment) AttachFrame(f *Frame, parent *Frame) error {
	if err := e.Attach(f); err != nil {
		return err
	}
	if parent == nil {
		parent = e.root
	}
	if parent == f {
		return nil // f is the root frame being constructed.
	}
	return e.reparentFrame(f, parent)
}

// Detach removes item from every relation it participates in and returns
// ownership to the caller. If deep is true, a post-order traversal also
// detaches descendants: for a frame, every descendant frame and any map
// bound under them; for a layer, every descendant layer.
func (e *Environment) Detach(item Item, deep bool) error {
	ba, ok := item.(baseAccessor)
	if !ok {
		return opError("detach", ErrUnknownClass, "")
	}
	base := ba.base()
	if base.env != e {
		return opError("detach", ErrUnattached, base.id)
	}

	if deep {
		if f, ok := item.(*Frame); ok {
			// Snapshot before iterating: the recursive Detach mutates
			// e.frameChildren[f] in place via removeFrameChild, which shifts
			// the shared backing array a live range over it would see.
			for _, child := range append([]*Frame(nil), e.frameChildren[f]...) {
				if err := e.Detach(child, true); err != nil {
					return err
				}
			}
			for _, m := range f.Maps() {
				if err := e.Detach(m, false); err != nil {
					return err
				}
			}
		}
		if lm, ok := item.(layerMarker); ok {
			l := lm.asLayer()
			for _, child := range append([]*Layer(nil), e.layerChildren[l]...) {
				if err := e.Detach(child, true); err != nil {
					return err
				}
			}
		}
	}

	e.unlinkAll(item)
	delete(e.items, base.id)
	base.env = nil
	e.notify(itemDetachedEvent{item: item})
	return nil
}

func (e *Environment) unlinkAll(item Item) {
	switch v := item.(type) {
	case *Frame:
		if parent, ok := e.frameParent[v]; ok {
			e.removeFrameChild(parent, v)
			delete(e.frameParent, v)
		}
		for _, child := range e.frameChildren[v] {
			delete(e.frameParent, child)
		}
		delete(e.frameChildren, v)
	case *Layer:
		e.unlinkLayer(v)
	case *CartesianMap:
		delete(e.cartesianFrame, v)
		// A CartesianMap's embedded Layer routinely participates in the
		// layer DAG and operator graph via &v.Layer; without this it would
		// leave dangling *Layer keys/values in those relation tables.
		e.unlinkLayer(v.asLayer())
	case *Operator:
		delete(e.opInputs, v)
		for _, l := range e.opOutputs[v] {
			delete(e.layerGenerator, l)
		}
		delete(e.opOutputs, v)
	}
}

// unlinkLayer removes l from every relation table it can appear in: the
// layer DAG (as parent or child), as an operator's tracked generator, and
// as an operator input. Shared by unlinkAll for both *Layer and the
// embedded Layer of a *CartesianMap.
func (e *Environment) unlinkLayer(l *Layer) {
	for _, parent := range e.layerParents[l] {
		e.removeLayerChild(parent, l)
	}
	delete(e.layerParents, l)
	for _, child := range e.layerChildren[l] {
		e.layerParents[child] = removeLayer(e.layerParents[child], l)
	}
	delete(e.layerChildren, l)
	if gen, ok := e.layerGenerator[l]; ok {
		e.opOutputs[gen] = removeLayer(e.opOutputs[gen], l)
		delete(e.layerGenerator, l)
	}
	for op, inputs := range e.opInputs {
		e.opInputs[op] = removeLayer(inputs, l)
	}
}

func removeLayer(layers []*Layer, target *Layer) []*Layer {
	out := layers[:0]
	for _, l := range layers {
		if l != target {
			out = append(out, l)
		}
	}
	return out
}

// -- typed lookup --------------------------------------------------------

// Get returns the item at id, or nil if none exists.
func (e *Environment) Get(id string) Item {
	return e.items[id]
}

// GetTyped returns the item at id if its concrete type is T, or the zero
// value and false otherwise (including when no item exists at id).
func GetTyped[T Item](e *Environment, id string) (T, bool) {
	var zero T
	item, ok := e.items[id]
	if !ok {
		return zero, false
	}
	t, ok := item.(T)
	return t, ok
}

// GetUnique returns the sole attached item of concrete type T, failing with
// ErrNotFound if there are none or ErrAmbiguousLookup if there is more than
// one.
func GetUnique[T Item](e *Environment) (T, error) {
	var zero, found T
	count := 0
	for _, item := range e.items {
		if t, ok := item.(T); ok {
			found = t
			count++
		}
	}
	switch count {
	case 0:
		return zero, opError("get", ErrNotFound, "")
	case 1:
		return found, nil
	default:
		return zero, opError("get", ErrAmbiguousLookup, "")
	}
}

// GetItems returns every attached item of concrete type T, ids sorted for
// determinism.
func GetItems[T Item](e *Environment) []T {
	var out []T
	for _, item := range e.items {
		if t, ok := item.(T); ok {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Generators returns every operator that lists input among its inputs, ids
// sorted for determinism.
func (e *Environment) Generators(input *Layer) []*Operator {
	var out []*Operator
	for op, inputs := range e.opInputs {
		for _, l := range inputs {
			if l == input {
				out = append(out, op)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// LayersGeneratedFrom returns the output layers, of concrete type T, of
// every operator input feeds: the layers derived from input, one hop
// downstream in the operator graph. The type is that of the attached item,
// so a *CartesianMap linked through its Layer field counts as a
// *CartesianMap, not as a *Layer.
func LayersGeneratedFrom[T Item](e *Environment, input *Layer) []T {
	var out []T
	for _, op := range e.Generators(input) {
		for _, l := range e.opOutputs[op] {
			if t, ok := e.items[l.ID()].(T); ok {
				out = append(out, t)
			}
		}
	}
	return out
}

// -- frame tree ------------------------------------------------------------

func (e *Environment) removeFrameChild(parent, child *Frame) {
	kids := e.frameChildren[parent]
	for i, k := range kids {
		if k == child {
			e.frameChildren[parent] = append(kids[:i], kids[i+1:]...)
			return
		}
	}
}

func (e *Environment) reparentFrame(f, parent *Frame) error {
	if old, ok := e.frameParent[f]; ok {
		if old == parent {
			return nil
		}
		e.removeFrameChild(old, f)
	}
	e.frameParent[f] = parent
	e.frameChildren[parent] = append(e.frameChildren[parent], f)
	e.notify(FrameTreeEvent{Child: f, Parent: parent})
	return nil
}

func (e *Environment) onFrameTransformChanged(f *Frame) {
	e.markMapsDirtyUnder(f)
	e.notify(FrameChangedEvent{Frame: f})
}

func (e *Environment) markMapsDirtyUnder(f *Frame) {
	for _, m := range f.Maps() {
		m.SetDirty(true)
	}
	for _, child := range e.frameChildren[f] {
		e.markMapsDirtyUnder(child)
	}
}

// frameChainToRoot returns f and each of its ancestors up to and including
// the root, in that order.
func (e *Environment) frameChainToRoot(f *Frame) []*Frame {
	var chain []*Frame
	for cur := f; cur != nil; cur = e.frameParent[cur] {
		chain = append(chain, cur)
	}
	return chain
}

// relativeTransform implements §4.2's algorithm: walk both chains to the
// root, find the lowest common ancestor, compose from -> lca forward and
// invert lca -> to.
func (e *Environment) relativeTransform(from, to *Frame) (geom.TransformWithUncertainty, error) {
	if from == to {
		return geom.TransformOnly(geom.Identity), nil
	}
	fromChain := e.frameChainToRoot(from)
	toChain := e.frameChainToRoot(to)

	toIndex := make(map[*Frame]int, len(toChain))
	for i, fr := range toChain {
		toIndex[fr] = i
	}

	lcaFromIdx := -1
	lcaToIdx := -1
	for i, fr := range fromChain {
		if j, ok := toIndex[fr]; ok {
			lcaFromIdx = i
			lcaToIdx = j
			break
		}
	}
	if lcaFromIdx == -1 {
		return geom.TransformWithUncertainty{}, opError("relative-transform", ErrNotFound, "no common ancestor")
	}

	// Compose from -> lca: chain from-> ... -> lca is fromChain[0:lcaFromIdx+1],
	// each frame's Transform() maps child -> parent, so composing in order
	// child-most first yields from -> lca.
	fromToLCA := geom.TransformOnly(geom.Identity)
	for i := 0; i < lcaFromIdx; i++ {
		fromToLCA = fromChain[i].Transform().Compose(fromToLCA)
	}

	lcaToRootOfTo := geom.TransformOnly(geom.Identity)
	for i := 0; i < lcaToIdx; i++ {
		lcaToRootOfTo = toChain[i].Transform().Compose(lcaToRootOfTo)
	}
	toToLCA := lcaToRootOfTo.Inverse()

	return toToLCA.Compose(fromToLCA), nil
}

// -- layer DAG ---------------------------------------------------------------

func (e *Environment) removeLayerChild(parent, child *Layer) {
	kids := e.layerChildren[parent]
	for i, k := range kids {
		if k == child {
			e.layerChildren[parent] = append(kids[:i], kids[i+1:]...)
			return
		}
	}
}

func (e *Environment) linkLayer(child, parent *Layer) error {
	if e.wouldCycle(child, parent) {
		return opError("set-parent", ErrOperatorCycle, "layer parent link would cycle")
	}
	for _, p := range e.layerParents[child] {
		if p == parent {
			return nil
		}
	}
	e.layerParents[child] = append(e.layerParents[child], parent)
	e.layerChildren[parent] = append(e.layerChildren[parent], child)
	e.notify(LayerTreeEvent{Child: child, Parent: parent})
	return nil
}

func (e *Environment) wouldCycle(child, newParent *Layer) bool {
	if child == newParent {
		return true
	}
	visited := make(map[*Layer]bool)
	var walk func(*Layer) bool
	walk = func(l *Layer) bool {
		if l == child {
			return true
		}
		if visited[l] {
			return false
		}
		visited[l] = true
		for _, p := range e.layerParents[l] {
			if walk(p) {
				return true
			}
		}
		return false
	}
	return walk(newParent)
}

// -- cartesian bindings -------------------------------------------------------

func (e *Environment) bindCartesian(m *CartesianMap, frame *Frame) error {
	e.cartesianFrame[m] = frame
	e.notify(CartesianBindingEvent{Map: m, Frame: frame})
	return nil
}

// -- operator graph -----------------------------------------------------------

func (e *Environment) addOperatorInput(op *Operator, layer *Layer) error {
	current := e.opInputs[op]
	if op.inputArity != 0 && len(current) >= op.inputArity {
		return opError("add-input", ErrArityExceeded, op.id)
	}
	e.opInputs[op] = append(current, layer)
	e.notify(OperatorInputEvent{Operator: op, Layer: layer, Added: true})
	return nil
}

func (e *Environment) setOperatorInput(op *Operator, layer *Layer) error {
	for _, l := range e.opInputs[op] {
		e.notify(OperatorInputEvent{Operator: op, Layer: l, Added: false})
	}
	e.opInputs[op] = nil
	return e.addOperatorInput(op, layer)
}

func (e *Environment) removeOperatorInput(op *Operator, layer *Layer) error {
	e.opInputs[op] = removeLayer(e.opInputs[op], layer)
	e.notify(OperatorInputEvent{Operator: op, Layer: layer, Added: false})
	return nil
}

func (e *Environment) addOperatorOutput(op *Operator, layer *Layer) error {
	if gen, exists := e.layerGenerator[layer]; exists && gen != op {
		return opError("add-output", ErrAlreadyGenerated, layer.id)
	}
	current := e.opOutputs[op]
	if op.outputArity != 0 && len(current) >= op.outputArity {
		return opError("add-output", ErrArityExceeded, op.id)
	}
	e.opOutputs[op] = append(current, layer)
	e.layerGenerator[layer] = op
	e.notify(OperatorOutputEvent{Operator: op, Layer: layer, Added: true})
	return nil
}

func (e *Environment) removeOperatorOutput(op *Operator, layer *Layer) error {
	e.opOutputs[op] = removeLayer(e.opOutputs[op], layer)
	if e.layerGenerator[layer] == op {
		delete(e.layerGenerator, layer)
	}
	e.notify(OperatorOutputEvent{Operator: op, Layer: layer, Added: false})
	return nil
}

// UpdateAll runs every dirty, generated layer's operator in dependency
// order: an operator is eligible once each of its dirty inputs is generated
// by an operator that has already run in this call. Each eligible operator
// runs at most once. An operator that never becomes eligible, whether
// because of a cycle in the induced dependency graph or because one of its
// inputs is dirty with no generator, is not run and is reported as
// ErrOperatorCycle.
func (e *Environment) UpdateAll(ctx context.Context) (err error) {
	_, span := tracer.Start(ctx, "UpdateAll")
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	dirty := make(map[*Operator]bool)
	for layer, op := range e.layerGenerator {
		if layer.IsDirty() {
			dirty[op] = true
		}
	}
	span.SetAttributes(attribute.Int("envire.dirty_operators", len(dirty)))
	if len(dirty) == 0 {
		return nil
	}

	resolved := make(map[*Operator]bool)
	progress := true
	for progress {
		progress = false
		for op := range dirty {
			if resolved[op] {
				continue
			}
			if e.inputsResolved(op, resolved) {
				if err := e.runOperator(op); err != nil {
					return err
				}
				resolved[op] = true
				progress = true
			}
		}
	}

	for op := range dirty {
		if !resolved[op] {
			return opError("update-all", ErrOperatorCycle, op.id)
		}
	}
	updateAllOperatorCounter.Add(ctx, int64(len(resolved)))
	return nil
}

func (e *Environment) inputsResolved(op *Operator, resolved map[*Operator]bool) bool {
	for _, in := range e.opInputs[op] {
		if !in.IsDirty() {
			continue
		}
		gen, hasGen := e.layerGenerator[in]
		if !hasGen {
			// dirty with no generator: nothing will ever clear it here.
			return false
		}
		if !resolved[gen] {
			return false
		}
	}
	return true
}

func (e *Environment) runOperator(op *Operator) error {
	if op.update == nil {
		return nil
	}
	e.logger().Debug("envire: running operator", "operator", op.id)
	if err := op.update(op); err != nil {
		e.logger().Error("envire: operator update failed", "operator", op.id, "error", err)
		return err
	}
	for _, out := range e.opOutputs[op] {
		out.SetDirty(false)
	}
	return nil
}

// -- event subscription --------------------------------------------------

// AddEventHandler subscribes h and immediately delivers the replay sequence
// that reconstructs the environment's current state in h: frames in
// pre-order from the root, then layers by id, then operators by id, then
// cartesian bindings.
func (e *Environment) AddEventHandler(h EventHandler) {
	e.handlers = append(e.handlers, h)
	for _, ev := range e.replaySequence() {
		e.deliver(h, ev)
	}
}

// RemoveEventHandler unsubscribes h after delivering the inverse of the
// replay sequence, so a downstream mirror can drain consistently. A function
// handler (such as an EventHandlerFunc) is matched by its code pointer, so
// two closures made from the same function literal match each other.
func (e *Environment) RemoveEventHandler(h EventHandler) {
	seq := e.replaySequence()
	for i := len(seq) - 1; i >= 0; i-- {
		e.deliver(h, inverseEvent(seq[i]))
	}
	for i, existing := range e.handlers {
		if sameHandler(existing, h) {
			e.handlers = append(e.handlers[:i], e.handlers[i+1:]...)
			break
		}
	}
}

// sameHandler compares two handlers without applying == to func values,
// which panics at run time.
func sameHandler(a, b EventHandler) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	if va.Kind() == reflect.Func {
		return va.Pointer() == vb.Pointer()
	}
	return va.Type().Comparable() && a == b
}

func inverseEvent(ev Event) Event {
	switch v := ev.(type) {
	case itemAttachedEvent:
		return itemDetachedEvent{item: v.item}
	case FrameTreeEvent:
		return FrameTreeEvent{Child: v.Child, Parent: nil}
	case LayerTreeEvent:
		return LayerTreeEvent{Child: v.Child, Parent: nil}
	case OperatorInputEvent:
		v.Added = false
		return v
	case OperatorOutputEvent:
		v.Added = false
		return v
	case CartesianBindingEvent:
		return CartesianBindingEvent{Map: v.Map, Frame: nil}
	default:
		return ev
	}
}

// replaySequence synthesizes the minimal event sequence that reconstructs
// the environment's current state, in the deterministic order fixed by
// this package's design notes.
func (e *Environment) replaySequence() []Event {
	var seq []Event

	var walkFrame func(f *Frame)
	walkFrame = func(f *Frame) {
		seq = append(seq, itemAttachedEvent{item: f})
		if parent := e.frameParent[f]; parent != nil {
			seq = append(seq, FrameTreeEvent{Child: f, Parent: parent})
		}
		seq = append(seq, FrameChangedEvent{Frame: f})
		children := append([]*Frame(nil), e.frameChildren[f]...)
		sort.Slice(children, func(i, j int) bool { return children[i].ID() < children[j].ID() })
		for _, c := range children {
			walkFrame(c)
		}
	}
	if e.root != nil {
		walkFrame(e.root)
	}

	// layerItems includes the Layer of every *CartesianMap, so maps are
	// attached here too, before any layer-tree or operator edge names them;
	// the event carries the attached item itself, not its Layer view. Every
	// layer is attached before the first layer-tree edge is replayed.
	layers := layerItems(e)
	for _, l := range layers {
		seq = append(seq, itemAttachedEvent{item: e.items[l.ID()]})
	}
	for _, l := range layers {
		for _, p := range e.layerParents[l] {
			seq = append(seq, LayerTreeEvent{Child: l, Parent: p})
		}
	}

	for _, op := range GetItems[*Operator](e) {
		seq = append(seq, itemAttachedEvent{item: op})
		for _, in := range e.opInputs[op] {
			seq = append(seq, OperatorInputEvent{Operator: op, Layer: in, Added: true})
		}
		for _, out := range e.opOutputs[op] {
			seq = append(seq, OperatorOutputEvent{Operator: op, Layer: out, Added: true})
		}
	}

	for _, m := range GetItems[*CartesianMap](e) {
		if frame, ok := e.cartesianFrame[m]; ok {
			seq = append(seq, CartesianBindingEvent{Map: m, Frame: frame})
		}
	}

	return seq
}

// ensureFrameChain copies the chain from f up to, but not including, its
// environment's root (creating any frame not already present in dst by id)
// and returns the corresponding frame in dst. The source root itself
// corresponds to dst's root. Used by CartesianMap.CloneInto.
//
// Clones are attached via attachExact rather than AttachFrame: f.ID() is
// already a fully composed id from the source environment, and running it
// back through dst's own composeID would double-prefix it instead of
// preserving the identity CloneInto is documented to carry over.
func (e *Environment) ensureFrameChain(f *Frame) (*Frame, error) {
	if f == nil || (f.env != nil && f == f.env.root) {
		return e.root, nil
	}
	if existing, ok := GetTyped[*Frame](e, f.ID()); ok {
		return existing, nil
	}
	parent, err := e.ensureFrameChain(f.Parent())
	if err != nil {
		return nil, err
	}
	clone := NewFrame(f.ID())
	clone.transform = f.Transform()
	e.attachExact(clone, f.ID(), f.label)
	if parent != clone {
		if err := e.reparentFrame(clone, parent); err != nil {
			return nil, err
		}
	}
	return clone, nil
}
