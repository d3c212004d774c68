package envire

// SerializedEvent is the wire form of an Event, gob-encodable so it can
// travel through the eventbridge package or a persisted event log and be
// replayed with ApplyEvents. It carries enough information to reconstruct
// the mutator call that produced the original Event; it is not itself the
// authoritative record of the environment (see this package's Non-goals).
type SerializedEvent struct {
	Kind     EventKind
	ItemID   string
	ClassTag string
	Label    string
	ParentID string
	OtherID  string
	State    []byte
}

// EncodeEvent captures ev in wire form.
func EncodeEvent(ev Event) SerializedEvent {
	se := SerializedEvent{Kind: ev.Kind()}
	if item := ev.Item(); item != nil {
		se.ItemID = item.ID()
		se.ClassTag = item.ClassTag()
		se.Label = item.Label()
	}
	switch v := ev.(type) {
	case FrameTreeEvent:
		if v.Parent != nil {
			se.ParentID = v.Parent.ID()
		}
	case FrameChangedEvent:
		if enc, ok := Item(v.Frame).(stateEncoder); ok {
			if data, err := enc.EncodeState(); err == nil {
				se.State = data
			}
		}
	case LayerTreeEvent:
		if v.Parent != nil {
			se.ParentID = v.Parent.ID()
		}
	case OperatorInputEvent:
		se.OtherID = v.Layer.ID()
	case OperatorOutputEvent:
		se.OtherID = v.Layer.ID()
	case CartesianBindingEvent:
		if v.Frame != nil {
			se.OtherID = v.Frame.ID()
		}
	}
	return se
}

// apply invokes the mutator on e that se was originally captured from.
// Unknown items referenced by id are attached on the fly for ItemAttached,
// so a stream can rebuild an environment from empty.
func (se SerializedEvent) apply(e *Environment) error {
	switch se.Kind {
	case ItemAttached:
		if e.Get(se.ItemID) != nil {
			return nil
		}
		factory, ok := lookupFactory(se.ClassTag)
		if !ok {
			return opError("apply-events", ErrUnknownClass, se.ClassTag)
		}
		item := factory()
		if base, ok := item.(baseAccessor); ok {
			base.base().label = se.Label
		}
		userID := stripPrefix(e.prefix, se.ItemID)
		if base, ok := item.(baseAccessor); ok {
			base.base().id = userID
		}
		switch v := item.(type) {
		case *Frame:
			return e.AttachFrame(v, nil)
		case *CartesianMap:
			return e.AttachCartesian(v, nil)
		default:
			return e.Attach(item)
		}
	case ItemDetached:
		if item := e.Get(se.ItemID); item != nil {
			return e.Detach(item, false)
		}
		return nil
	case ItemModified:
		if item := e.Get(se.ItemID); item != nil {
			item.SetLabel(se.Label)
		}
		return nil
	case FrameNodeTreeChanged:
		child, _ := GetTyped[*Frame](e, se.ItemID)
		parent, _ := GetTyped[*Frame](e, se.ParentID)
		if child != nil && parent != nil {
			return child.SetParent(parent)
		}
		return nil
	case FrameNodeChanged:
		frame, _ := GetTyped[*Frame](e, se.ItemID)
		if frame != nil && se.State != nil {
			return frame.DecodeState(se.State)
		}
		return nil
	case LayerTreeChanged:
		child, parent := layerByID(e, se.ItemID), layerByID(e, se.ParentID)
		if child != nil && parent != nil {
			return child.SetParent(parent)
		}
		return nil
	case OperatorInputChanged:
		op, _ := GetTyped[*Operator](e, se.ItemID)
		layer := layerByID(e, se.OtherID)
		if op != nil && layer != nil {
			return op.AddInput(layer)
		}
		return nil
	case OperatorOutputChanged:
		op, _ := GetTyped[*Operator](e, se.ItemID)
		layer := layerByID(e, se.OtherID)
		if op != nil && layer != nil {
			return op.AddOutput(layer)
		}
		return nil
	case CartesianMapFrameChanged:
		m, _ := GetTyped[*CartesianMap](e, se.ItemID)
		frame, _ := GetTyped[*Frame](e, se.OtherID)
		if m != nil && frame != nil {
			return m.SetFrame(frame)
		}
		return nil
	}
	return nil
}

func stripPrefix(prefix, id string) string {
	if len(id) > len(prefix) && id[:len(prefix)] == prefix {
		return id[len(prefix):]
	}
	return id
}
