package envire

// UpdateFunc is the hook an Operator runs during Environment.UpdateAll: it
// reads the operator's inputs and writes its outputs, returning an error to
// abort this operator's step without clearing its outputs' dirty flags.
type UpdateFunc func(op *Operator) error

// Operator is an item that reads input layers and writes output layers,
// with declared arity bounds (0 meaning unbounded) enforced on link.
type Operator struct {
	ItemBase
	inputArity  int
	outputArity int
	update      UpdateFunc
}

func (*Operator) isOperator() {}

// NewOperator constructs a detached operator with the given input/output
// arity bounds (0 = unbounded) and update hook.
func NewOperator(id string, inputArity, outputArity int, update UpdateFunc) *Operator {
	o := &Operator{inputArity: inputArity, outputArity: outputArity, update: update}
	o.Init(o, id, ClassOperator)
	return o
}

type operatorMarker interface {
	isOperator()
}

// SetUpdate replaces the operator's update hook.
func (o *Operator) SetUpdate(fn UpdateFunc) { o.update = fn }

// InputArity returns the declared input bound (0 = unbounded).
func (o *Operator) InputArity() int { return o.inputArity }

// OutputArity returns the declared output bound (0 = unbounded).
func (o *Operator) OutputArity() int { return o.outputArity }

// Inputs returns o's current input layers in link order.
func (o *Operator) Inputs() []*Layer {
	if o.env == nil {
		return nil
	}
	return append([]*Layer(nil), o.env.opInputs[o]...)
}

// Outputs returns o's current output layers in link order.
func (o *Operator) Outputs() []*Layer {
	if o.env == nil {
		return nil
	}
	return append([]*Layer(nil), o.env.opOutputs[o]...)
}

// AddInput links layer as an additional input, failing with ErrArityExceeded
// if the declared input arity would be exceeded.
func (o *Operator) AddInput(layer *Layer) error {
	if o.env == nil {
		return opError("add-input", ErrUnattached, o.id)
	}
	if layer.env != o.env {
		return opError("add-input", ErrCrossEnvironment, layer.id)
	}
	return o.env.addOperatorInput(o, layer)
}

// SetInput replaces every current input with the single layer given,
// which is the common case for arity-1 operators. The old inputs are
// removed before the new one is linked, so a declared input arity of 1 or
// more (or 0, unbounded) never makes it fail with ErrArityExceeded.
func (o *Operator) SetInput(layer *Layer) error {
	if o.env == nil {
		return opError("set-input", ErrUnattached, o.id)
	}
	if layer.env != o.env {
		return opError("set-input", ErrCrossEnvironment, layer.id)
	}
	return o.env.setOperatorInput(o, layer)
}

// AddOutput links layer as an additional output, failing with
// ErrArityExceeded if arity would be exceeded or ErrAlreadyGenerated if
// another operator already writes layer.
func (o *Operator) AddOutput(layer *Layer) error {
	if o.env == nil {
		return opError("add-output", ErrUnattached, o.id)
	}
	if layer.env != o.env {
		return opError("add-output", ErrCrossEnvironment, layer.id)
	}
	return o.env.addOperatorOutput(o, layer)
}

// RemoveInput unlinks layer from o's inputs, if linked.
func (o *Operator) RemoveInput(layer *Layer) error {
	if o.env == nil {
		return opError("remove-input", ErrUnattached, o.id)
	}
	return o.env.removeOperatorInput(o, layer)
}

// RemoveInputs unlinks every current input.
func (o *Operator) RemoveInputs() error {
	if o.env == nil {
		return opError("remove-inputs", ErrUnattached, o.id)
	}
	for _, l := range o.Inputs() {
		if err := o.env.removeOperatorInput(o, l); err != nil {
			return err
		}
	}
	return nil
}

// RemoveOutput unlinks layer from o's outputs without destroying either
// party, per the detach-from-generator operation.
func (o *Operator) RemoveOutput(layer *Layer) error {
	if o.env == nil {
		return opError("remove-output", ErrUnattached, o.id)
	}
	return o.env.removeOperatorOutput(o, layer)
}

// RemoveOutputs unlinks every current output.
func (o *Operator) RemoveOutputs() error {
	if o.env == nil {
		return opError("remove-outputs", ErrUnattached, o.id)
	}
	for _, l := range o.Outputs() {
		if err := o.env.removeOperatorOutput(o, l); err != nil {
			return err
		}
	}
	return nil
}

// OperatorInput returns the sole input of op whose concrete registered item
// type is T, implementing the get-input<T> checked-downcast lookup. The
// downcast is resolved against the environment's item table so that inputs
// linked as their embedding Layer (e.g. a *CartesianMap added by its Layer
// field) still recover their true concrete type.
func OperatorInput[T Item](op *Operator) (T, error) {
	return typedUnique[T](op.env, op.Inputs(), "get-input")
}

// OperatorOutput returns the sole output of op whose concrete registered
// item type is T, implementing the get-output<T> checked-downcast lookup.
func OperatorOutput[T Item](op *Operator) (T, error) {
	return typedUnique[T](op.env, op.Outputs(), "get-output")
}

func typedUnique[T Item](env *Environment, layers []*Layer, op string) (T, error) {
	var zero T
	var found T
	count := 0
	for _, l := range layers {
		item := env.items[l.ID()]
		if t, ok := item.(T); ok {
			found = t
			count++
		}
	}
	switch count {
	case 0:
		return zero, opError(op, ErrNotFound, "")
	case 1:
		return found, nil
	default:
		return zero, opError(op, ErrAmbiguousLookup, "")
	}
}
