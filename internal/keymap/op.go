package keymap

import "fmt"

// Op is a layer-stack operation requested by a button action.
type Op interface {
	fmt.Stringer
	isOp()
}

// Push activates a layer.
type Push struct {
	Layer string
}

// Pop deactivates the topmost occurrence of a layer.
type Pop struct {
	Layer string
}

// Base replaces the base layer.
type Base struct {
	Layer string
}

// With inspects a layer without changing the stack.
type With struct {
	Layer string
	Fn    func(*Layer)
}

func (Push) isOp() {}
func (Pop) isOp()  {}
func (Base) isOp() {}
func (With) isOp() {}

func (o Push) String() string { return "push " + o.Layer }
func (o Pop) String() string  { return "pop " + o.Layer }
func (o Base) String() string { return "base " + o.Layer }
func (o With) String() string { return "with " + o.Layer }

// Apply dispatches an op against the keymap. Failures are layer-table
// protocol violations: they are reported and the op is dropped, keeping
// the engine live.
func (k *Keymap) Apply(op Op) {
	var err error
	switch o := op.(type) {
	case Push:
		err = k.PushLayer(o.Layer)
	case Pop:
		err = k.PopLayer(o.Layer)
	case Base:
		err = k.SetBase(o.Layer)
	case With:
		err = k.WithLayer(o.Layer, o.Fn)
	default:
		k.log.Warn("unknown layer op %T; ignored", op)
		return
	}
	if err != nil {
		k.log.Warn("layer op %s failed: %v; ignored", op, err)
	}
}
