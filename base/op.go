package base

import (
	"encoding/json"
	"fmt"

	"github.com/stevemurr/arowana/store"
	"golang.org/x/exp/constraints"
)

// OpKind tags the mutation an Op carries.
type OpKind uint8

const (
	OpSet OpKind = iota + 1
	OpTrim
	OpIncrement
	OpAppend
)

func (k OpKind) String() string {
	switch k {
	case OpSet:
		return "set"
	case OpTrim:
		return "trim"
	case OpIncrement:
		return "increment"
	case OpAppend:
		return "append"
	default:
		return "invalid"
	}
}

// Op is an update instruction for one field. It carries only its kind and
// payload; Update interprets it. The zero Op is invalid.
type Op struct {
	kind   OpKind
	value  any
	amount any
}

// Number is any value IncrementBy accepts.
type Number interface {
	constraints.Integer | constraints.Float
}

// Set replaces the field's value with v.
func Set(v any) Op { return Op{kind: OpSet, value: v} }

// Trim removes the field.
func Trim() Op { return Op{kind: OpTrim} }

// Increment adds 1 to the field.
func Increment() Op { return IncrementBy(int64(1)) }

// IncrementBy adds n to the field. Integers stay integers unless the
// stored value is a float.
func IncrementBy[N Number](n N) Op {
	// Only floating point types keep a fraction here.
	if N(1)/N(2) != 0 {
		return Op{kind: OpIncrement, amount: float64(n)}
	}
	return Op{kind: OpIncrement, amount: int64(n)}
}

// Append appends v to the field's array.
func Append(v any) Op { return Op{kind: OpAppend, value: v} }

func (o Op) Kind() OpKind { return o.kind }

func (o Op) String() string {
	switch o.kind {
	case OpSet, OpAppend:
		return fmt.Sprintf("%s(%v)", o.kind, o.value)
	case OpIncrement:
		return fmt.Sprintf("%s(%v)", o.kind, o.amount)
	default:
		return o.kind.String()
	}
}

// Change pairs a top-level field name with the Op to apply to it.
type Change struct {
	Field string
	Op    Op
}

// Field builds a Change. An Op value is used as the mutation; any other
// value is set as is.
func Field(name string, v any) Change {
	if op, ok := v.(Op); ok {
		return Change{Field: name, Op: op}
	}
	return Change{Field: name, Op: Set(v)}
}

// patch translates c into the store's patch for the same field.
func (c Change) patch() (store.Patch, error) {
	if err := store.ValidField(c.Field); err != nil {
		return store.Patch{}, err
	}
	switch c.Op.kind {
	case OpSet:
		raw, err := encode(c.Op.value)
		if err != nil {
			return store.Patch{}, err
		}
		return store.Patch{Op: store.PatchSet, Field: c.Field, Value: raw}, nil
	case OpTrim:
		return store.Patch{Op: store.PatchRemove, Field: c.Field}, nil
	case OpIncrement:
		return store.Patch{Op: store.PatchIncrement, Field: c.Field, Amount: c.Op.amount}, nil
	case OpAppend:
		raw, err := encode(c.Op.value)
		if err != nil {
			return store.Patch{}, err
		}
		return store.Patch{Op: store.PatchAppend, Field: c.Field, Value: raw}, nil
	default:
		return store.Patch{}, fmt.Errorf("%w: field %q has no operation", ErrInvalidMutation, c.Field)
	}
}

func encode(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMutation, err)
	}
	return raw, nil
}
