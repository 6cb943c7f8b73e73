package frame

import (
	"fmt"

	"github.com/chazu/typeflow/pkg/jtype"
)

// IsPossiblyAssignableFrom reports whether a value of type sub could be
// assigned to a variable of type super. Without a class hierarchy any two
// class types are taken to be compatible; arrays and known null are checked
// structurally, and return addresses are treated as Object.
func IsPossiblyAssignableFrom(super, sub *jtype.Type) bool {
	if super == sub {
		return true
	}
	if super.IsReturnAddress() {
		super = jtype.Object
	}
	if sub.IsReturnAddress() {
		sub = jtype.Object
	}
	if !super.IsReference() || !sub.IsReference() {
		// Distinct primitives only match when both are intlike.
		return super.IsIntlike() && sub.IsIntlike()
	}

	switch {
	case super.IsKnownNull():
		return false
	case sub.IsKnownNull():
		return true
	case super == jtype.Object:
		return true
	case super.IsArray():
		if !sub.IsArray() {
			return false
		}
		for super.IsArray() && sub.IsArray() {
			super, _ = super.ComponentType()
			sub, _ = sub.ComponentType()
		}
		return IsPossiblyAssignableFrom(super, sub)
	case sub.IsArray():
		return super == jtype.Serializable || super == jtype.Cloneable
	}
	return true
}

// MergeType returns the join of two slot types, or nil if they have none.
// A nil input (undefined slot) yields nil.
func MergeType(a, b *jtype.Type) *jtype.Type {
	if a == nil || b == nil {
		return nil
	}
	if a == b {
		return a
	}
	switch {
	case a.IsReference() && b.IsReference():
		if a.IsUninitialized() || b.IsUninitialized() {
			return nil
		}
		if a.IsKnownNull() {
			return b
		}
		if b.IsKnownNull() {
			return a
		}
		if a.IsArray() && b.IsArray() {
			ac, _ := a.ComponentType()
			bc, _ := b.ComponentType()
			union := MergeType(ac, bc)
			if union == nil {
				return jtype.Object
			}
			arr, err := jtype.ArrayOf(union)
			if err != nil {
				return jtype.Object
			}
			return arr
		}
		return jtype.Object
	case a.IsIntlike() && b.IsIntlike():
		return jtype.Int
	}
	return nil
}

// MergeLocals merges two local arrays slot by slot. Slots without a join
// become undefined. The result is a itself when nothing changes, otherwise a
// new immutable array.
func MergeLocals(a, b *Locals) (*Locals, error) {
	if a == b {
		return a, nil
	}
	if a.MaxLocals() != b.MaxLocals() {
		return nil, fmt.Errorf("%w: max locals %d vs %d", ErrFrameMergeMismatch, a.MaxLocals(), b.MaxLocals())
	}
	var result *Locals
	for i := 0; i < a.MaxLocals(); i++ {
		t1 := a.GetOrNil(i)
		merged := MergeType(t1, b.GetOrNil(i))
		if merged == t1 {
			continue
		}
		if result == nil {
			result = a.Copy()
		}
		if merged == nil {
			result.slots[i] = nil
			continue
		}
		if err := result.Set(i, merged); err != nil {
			return nil, err
		}
	}
	if result == nil {
		return a, nil
	}
	result.SetImmutable()
	return result, nil
}

// MergeStacks merges two stacks slot by slot. The depths must agree and
// every slot must have a join. The result is a itself when nothing
// changes, otherwise a new immutable stack.
func MergeStacks(a, b *Stack) (*Stack, error) {
	if a == b {
		return a, nil
	}
	if a.Size() != b.Size() {
		return nil, fmt.Errorf("%w: stack depths %d vs %d", ErrFrameMergeMismatch, a.Size(), b.Size())
	}
	var result *Stack
	for i := 0; i < a.Size(); i++ {
		t1, _ := a.Peek(i)
		t2, _ := b.Peek(i)
		merged := MergeType(t1, t2)
		if merged == t1 {
			continue
		}
		if merged == nil {
			return nil, fmt.Errorf("%w: stack slot %d: %s vs %s", ErrIncompatibleMerge, i, slotString(t1), slotString(t2))
		}
		if result == nil {
			result = a.Copy()
		}
		if err := result.Change(i, merged); err != nil {
			return nil, err
		}
	}
	if result == nil {
		return a, nil
	}
	result.SetImmutable()
	return result, nil
}

// MergeFrames joins the states reaching one block from two predecessors.
// The result is a itself when the merge changes nothing. Errors carry a
// dump of both frames.
func MergeFrames(a, b *Frame) (*Frame, error) {
	locals, err := MergeLocals(a.locals, b.locals)
	if err == nil {
		var stack *Stack
		stack, err = MergeStacks(a.stack, b.stack)
		if err == nil {
			if locals == a.locals && stack == a.stack {
				return a, nil
			}
			return &Frame{locals: locals, stack: stack}, nil
		}
	}
	err = AddContext(err, "underlay frame:")
	err = a.Annotate(err)
	err = AddContext(err, "overlay frame:")
	return nil, b.Annotate(err)
}
