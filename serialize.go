package envire

import (
	"bufio"
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	sectionItems             = "#items"
	sectionFrameTree         = "#frame-tree"
	sectionLayerTree         = "#layer-tree"
	sectionOperatorInputs    = "#operator-inputs"
	sectionOperatorOutputs   = "#operator-outputs"
	sectionCartesianBindings = "#cartesian-bindings"
	manifestName             = "manifest.envire"
	noSideFile               = "-"
)

// stateEncoder is implemented by item kinds that carry state beyond id,
// label and class tag that must survive a round trip (a frame's transform,
// a layer's flags). Concrete map payloads defined outside this package can
// implement it too; their side file is opened the same way.
type stateEncoder interface {
	EncodeState() ([]byte, error)
}

type stateDecoder interface {
	DecodeState([]byte) error
}

// SideFileName derives the deterministic on-disk name for l's auxiliary
// payload from its id and class tag, sanitizing path separators out of the
// id the way a caller-supplied "/"-bearing id would otherwise break a flat
// directory layout.
func (l *Layer) SideFileName(ext string) string {
	safe := strings.ReplaceAll(strings.Trim(l.id, "/"), "/", "_")
	return fmt.Sprintf("%s.%s.%s", safe, l.classTag, ext)
}

// layerItems returns the *Layer view of every attached item that is a layer
// or embeds one, ids sorted for determinism. GetItems[*Layer] alone misses a
// *CartesianMap: a concrete-type assertion never succeeds through embedding,
// so a map that participates in the layer DAG would otherwise be dropped
// from the manifest.
func layerItems(e *Environment) []*Layer {
	var out []*Layer
	for _, item := range e.items {
		if lm, ok := item.(layerMarker); ok {
			out = append(out, lm.asLayer())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// layerByID resolves id to a *Layer view of the attached item, whether the
// item is a concrete *Layer or embeds one (a *CartesianMap); used to
// reconstruct layer-tree and operator edges without losing a map endpoint
// to a failed *Layer type assertion.
func layerByID(e *Environment, id string) *Layer {
	lm, ok := e.items[id].(layerMarker)
	if !ok {
		return nil
	}
	return lm.asLayer()
}

func sideFileNameFor(item Item) string {
	switch v := item.(type) {
	case *Layer:
		return v.SideFileName("state")
	case *CartesianMap:
		return v.SideFileName("state")
	default:
		safe := strings.ReplaceAll(strings.Trim(item.ID(), "/"), "/", "_")
		return fmt.Sprintf("%s.%s.state", safe, item.ClassTag())
	}
}

func (f *Frame) EncodeState() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(f.transform); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (f *Frame) DecodeState(data []byte) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(&f.transform)
}

type layerState struct {
	Immutable bool
	Dirty     bool
}

func (l *Layer) EncodeState() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(layerState{Immutable: l.immutable, Dirty: l.dirty})
	return buf.Bytes(), err
}

func (l *Layer) DecodeState(data []byte) error {
	var st layerState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&st); err != nil {
		return err
	}
	l.immutable = st.Immutable
	l.dirty = st.Dirty
	return nil
}

type operatorState struct {
	InputArity  int
	OutputArity int
}

func (o *Operator) EncodeState() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(operatorState{InputArity: o.inputArity, OutputArity: o.outputArity})
	return buf.Bytes(), err
}

func (o *Operator) DecodeState(data []byte) error {
	var st operatorState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&st); err != nil {
		return err
	}
	o.inputArity = st.InputArity
	o.outputArity = st.OutputArity
	return nil
}

// Serialize writes e's full state to dir: a manifest listing every item and
// the four relation tables as edge lists, plus one side file per item that
// carries state beyond id/label/class tag. Side files are written
// concurrently, at most eight at a time.
func (e *Environment) Serialize(ctx context.Context, dir string) (err error) {
	_, span := tracer.Start(ctx, "Serialize", trace.WithAttributes(
		attribute.String("envire.dir", dir),
		attribute.Int("envire.item_count", len(e.items)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return opError("serialize", ErrIO, err.Error())
	}

	ids := make([]string, 0, len(e.items))
	for id := range e.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	group := new(errgroup.Group)
	group.SetLimit(8)
	sideFiles := make(map[string]string, len(ids))
	for _, id := range ids {
		item := e.items[id]
		enc, ok := item.(stateEncoder)
		if !ok {
			sideFiles[id] = noSideFile
			continue
		}
		name := sideFileNameFor(item)
		sideFiles[id] = name
		group.Go(func() error {
			data, err := enc.EncodeState()
			if err != nil {
				return opError("serialize", ErrIO, err.Error())
			}
			if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
				return opError("serialize", ErrIO, err.Error())
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	f, err := os.Create(filepath.Join(dir, manifestName))
	if err != nil {
		return opError("serialize", ErrIO, err.Error())
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	fmt.Fprintf(w, "#prefix\t%s\n", e.prefix)
	fmt.Fprintln(w, sectionItems)
	for _, id := range ids {
		item := e.items[id]
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", id, item.ClassTag(), item.Label(), sideFiles[id])
	}

	fmt.Fprintln(w, sectionFrameTree)
	for _, f := range GetItems[*Frame](e) {
		if parent := e.frameParent[f]; parent != nil {
			fmt.Fprintf(w, "%s\t%s\n", f.ID(), parent.ID())
		}
	}

	fmt.Fprintln(w, sectionLayerTree)
	for _, l := range layerItems(e) {
		for _, p := range e.layerParents[l] {
			fmt.Fprintf(w, "%s\t%s\n", l.ID(), p.ID())
		}
	}

	fmt.Fprintln(w, sectionOperatorInputs)
	for _, op := range GetItems[*Operator](e) {
		for _, in := range e.opInputs[op] {
			fmt.Fprintf(w, "%s\t%s\n", op.ID(), in.ID())
		}
	}

	fmt.Fprintln(w, sectionOperatorOutputs)
	for _, op := range GetItems[*Operator](e) {
		for _, out := range e.opOutputs[op] {
			fmt.Fprintf(w, "%s\t%s\n", op.ID(), out.ID())
		}
	}

	fmt.Fprintln(w, sectionCartesianBindings)
	for _, m := range GetItems[*CartesianMap](e) {
		if frame, ok := e.cartesianFrame[m]; ok {
			fmt.Fprintf(w, "%s\t%s\n", m.ID(), frame.ID())
		}
	}

	if err := w.Flush(); err != nil {
		return opError("serialize", ErrIO, err.Error())
	}
	return nil
}

// Unserialize reads a directory written by Serialize into a fresh
// Environment, replaying the relation tables through the normal
// attach/link entry points so every invariant is re-checked.
func Unserialize(ctx context.Context, dir string) (_ *Environment, err error) {
	_, span := tracer.Start(ctx, "Unserialize", trace.WithAttributes(
		attribute.String("envire.dir", dir),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	data, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		return nil, opError("unserialize", ErrIO, err.Error())
	}

	e := newBareEnvironment("/")
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	section := ""
	var frameEdges, layerEdges, opInputEdges, opOutputEdges, cartesianEdges [][2]string

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#prefix\t") {
			e.prefix = strings.TrimPrefix(line, "#prefix\t")
			continue
		}
		switch line {
		case sectionItems, sectionFrameTree, sectionLayerTree,
			sectionOperatorInputs, sectionOperatorOutputs, sectionCartesianBindings:
			section = line
			continue
		}

		fields := strings.Split(line, "\t")
		switch section {
		case sectionItems:
			if len(fields) != 4 {
				return nil, opError("unserialize", ErrIO, "malformed item record: "+line)
			}
			if err := loadItem(e, dir, fields[0], fields[1], fields[2], fields[3]); err != nil {
				return nil, err
			}
		case sectionFrameTree:
			frameEdges = append(frameEdges, [2]string{fields[0], fields[1]})
		case sectionLayerTree:
			layerEdges = append(layerEdges, [2]string{fields[0], fields[1]})
		case sectionOperatorInputs:
			opInputEdges = append(opInputEdges, [2]string{fields[0], fields[1]})
		case sectionOperatorOutputs:
			opOutputEdges = append(opOutputEdges, [2]string{fields[0], fields[1]})
		case sectionCartesianBindings:
			cartesianEdges = append(cartesianEdges, [2]string{fields[0], fields[1]})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, opError("unserialize", ErrIO, err.Error())
	}

	root, foundRoot := findRoot(e, frameEdges)
	if !foundRoot {
		return nil, opError("unserialize", ErrIO, "no root frame found in frame-tree section")
	}
	e.root = root

	for _, edge := range frameEdges {
		child, _ := GetTyped[*Frame](e, edge[0])
		parent, _ := GetTyped[*Frame](e, edge[1])
		if child == nil || parent == nil {
			return nil, opError("unserialize", ErrNotFound, edge[0])
		}
		if err := child.SetParent(parent); err != nil {
			return nil, err
		}
	}
	for _, edge := range layerEdges {
		child, parent := layerByID(e, edge[0]), layerByID(e, edge[1])
		if child == nil || parent == nil {
			return nil, opError("unserialize", ErrNotFound, edge[0])
		}
		if err := child.SetParent(parent); err != nil {
			return nil, err
		}
	}
	for _, edge := range opInputEdges {
		op, _ := GetTyped[*Operator](e, edge[0])
		layer := layerByID(e, edge[1])
		if op == nil || layer == nil {
			return nil, opError("unserialize", ErrNotFound, edge[0])
		}
		if err := op.AddInput(layer); err != nil {
			return nil, err
		}
	}
	for _, edge := range opOutputEdges {
		op, _ := GetTyped[*Operator](e, edge[0])
		layer := layerByID(e, edge[1])
		if op == nil || layer == nil {
			return nil, opError("unserialize", ErrNotFound, edge[0])
		}
		if err := op.AddOutput(layer); err != nil {
			return nil, err
		}
	}
	for _, edge := range cartesianEdges {
		m, _ := GetTyped[*CartesianMap](e, edge[0])
		frame, _ := GetTyped[*Frame](e, edge[1])
		if m == nil || frame == nil {
			return nil, opError("unserialize", ErrNotFound, edge[0])
		}
		if err := m.SetFrame(frame); err != nil {
			return nil, err
		}
	}

	return e, nil
}

func findRoot(e *Environment, frameEdges [][2]string) (*Frame, bool) {
	hasParent := make(map[string]bool, len(frameEdges))
	for _, edge := range frameEdges {
		hasParent[edge[0]] = true
	}
	for _, f := range GetItems[*Frame](e) {
		if !hasParent[f.ID()] {
			return f, true
		}
	}
	return nil, false
}

func loadItem(e *Environment, dir, id, classTag, label, sideFile string) error {
	factory, ok := lookupFactory(classTag)
	if !ok {
		return opError("unserialize", ErrUnknownClass, classTag)
	}
	item := factory()
	if sideFile != noSideFile {
		data, err := os.ReadFile(filepath.Join(dir, sideFile))
		if err != nil {
			return opError("unserialize", ErrIO, err.Error())
		}
		if dec, ok := item.(stateDecoder); ok {
			if err := dec.DecodeState(data); err != nil {
				return opError("unserialize", ErrIO, err.Error())
			}
		}
	}
	e.attachExact(item, id, label)
	return nil
}

// attachExact installs item at exactly id, bypassing prefix composition;
// used while replaying a manifest and by CartesianMap.CloneInto and
// ensureFrameChain, where ids are already final.
func (e *Environment) attachExact(item Item, id, label string) {
	ba := item.(baseAccessor)
	base := ba.base()
	base.id = id
	base.label = label
	base.env = e
	e.items[id] = item
}

// newBareEnvironment constructs an environment with no root frame yet,
// for use by Unserialize which installs the root once it has parsed the
// frame-tree section.
func newBareEnvironment(prefix string) *Environment {
	return &Environment{
		items:          make(map[string]Item),
		prefix:         normalizePrefix(prefix),
		frameParent:    make(map[*Frame]*Frame),
		frameChildren:  make(map[*Frame][]*Frame),
		layerParents:   make(map[*Layer][]*Layer),
		layerChildren:  make(map[*Layer][]*Layer),
		layerGenerator: make(map[*Layer]*Operator),
		opInputs:       make(map[*Operator][]*Layer),
		opOutputs:      make(map[*Operator][]*Layer),
		cartesianFrame: make(map[*CartesianMap]*Frame),
	}
}

// ApplyEvents replays a stream of previously captured mutator calls. It is
// semantically equivalent to invoking each corresponding mutator directly;
// SerializedEvent values are produced by the eventbridge package.
func (e *Environment) ApplyEvents(events []SerializedEvent) error {
	for _, se := range events {
		if err := se.apply(e); err != nil {
			return err
		}
	}
	return nil
}
