package sim

import (
	"fmt"

	"github.com/chazu/typeflow/frame"
	"github.com/chazu/typeflow/pkg/bytecode"
	"github.com/chazu/typeflow/pkg/jtype"
)

// ShuffleForm identifies which form of a stack-shuffling instruction
// applies, as chosen from the categories of the values on top of the stack.
// Form numbers follow the JVM instruction set reference.
type ShuffleForm uint8

const (
	ShuffleNone ShuffleForm = iota
	ShufflePop
	ShufflePop2Form1
	ShufflePop2Form2
	ShuffleDup
	ShuffleDupX1
	ShuffleDupX2Form1
	ShuffleDupX2Form2
	ShuffleDup2Form1
	ShuffleDup2Form2
	ShuffleDup2X1Form1
	ShuffleDup2X1Form2
	ShuffleDup2X2Form1
	ShuffleDup2X2Form2
	ShuffleDup2X2Form3
	ShuffleDup2X2Form4
	ShuffleSwap
)

type shuffle struct {
	name string
	args int   // values popped
	perm []int // pushed values in push order, as indices into the popped values (bottom first)
}

var shuffles = [...]shuffle{
	ShuffleNone:        {"none", 0, nil},
	ShufflePop:         {"pop", 1, nil},
	ShufflePop2Form1:   {"pop2/1", 2, nil},
	ShufflePop2Form2:   {"pop2/2", 1, nil},
	ShuffleDup:         {"dup", 1, []int{0, 0}},
	ShuffleDupX1:       {"dup_x1", 2, []int{1, 0, 1}},
	ShuffleDupX2Form1:  {"dup_x2/1", 3, []int{2, 0, 1, 2}},
	ShuffleDupX2Form2:  {"dup_x2/2", 2, []int{1, 0, 1}},
	ShuffleDup2Form1:   {"dup2/1", 2, []int{0, 1, 0, 1}},
	ShuffleDup2Form2:   {"dup2/2", 1, []int{0, 0}},
	ShuffleDup2X1Form1: {"dup2_x1/1", 3, []int{1, 2, 0, 1, 2}},
	ShuffleDup2X1Form2: {"dup2_x1/2", 2, []int{1, 0, 1}},
	ShuffleDup2X2Form1: {"dup2_x2/1", 4, []int{2, 3, 0, 1, 2, 3}},
	ShuffleDup2X2Form2: {"dup2_x2/2", 3, []int{2, 0, 1, 2}},
	ShuffleDup2X2Form3: {"dup2_x2/3", 3, []int{1, 2, 0, 1, 2}},
	ShuffleDup2X2Form4: {"dup2_x2/4", 2, []int{1, 0, 1}},
	ShuffleSwap:        {"swap", 2, []int{1, 0}},
}

func (s ShuffleForm) String() string { return shuffles[s].name }

// ArgCount returns the number of values the form pops.
func (s ShuffleForm) ArgCount() int { return shuffles[s].args }

// Permutation returns the values the form pushes, in push order, as
// indices into the popped values ordered bottom first.
func (s ShuffleForm) Permutation() []int { return shuffles[s].perm }

// Apply returns the pushed sequence for args (bottom first).
func (s ShuffleForm) Apply(args []*jtype.Type) []*jtype.Type {
	perm := s.Permutation()
	out := make([]*jtype.Type, len(perm))
	for i, idx := range perm {
		out[i] = args[idx]
	}
	return out
}

// ShuffleFormFor selects the form of the shuffle instruction op for the
// given stack. Combinations that would split a category-2 value are
// rejected with ErrIllegalTopOfStack.
func ShuffleFormFor(op bytecode.Opcode, stack *frame.Stack) (ShuffleForm, error) {
	var err error
	cat := func(n int) int {
		if err != nil {
			return 0
		}
		var t *jtype.Type
		t, err = stack.Peek(n)
		if t == nil {
			return 0 // filler or error
		}
		return t.Category()
	}
	pick := func(form ShuffleForm) (ShuffleForm, error) {
		if err != nil {
			return ShuffleNone, err
		}
		if form == ShuffleNone {
			return ShuffleNone, illegalTos(op)
		}
		return form, nil
	}

	switch op {
	case bytecode.OpPop:
		if cat(0) == 2 {
			return pick(ShuffleNone)
		}
		return pick(ShufflePop)
	case bytecode.OpDup:
		if cat(0) == 2 {
			return pick(ShuffleNone)
		}
		return pick(ShuffleDup)
	case bytecode.OpPop2, bytecode.OpDup2:
		form1, form2 := ShufflePop2Form1, ShufflePop2Form2
		if op == bytecode.OpDup2 {
			form1, form2 = ShuffleDup2Form1, ShuffleDup2Form2
		}
		if cat(0) == 2 {
			return pick(form2)
		}
		if cat(1) == 1 {
			return pick(form1)
		}
		return pick(ShuffleNone)
	case bytecode.OpDupX1, bytecode.OpSwap:
		if cat(0) == 2 || cat(1) == 2 {
			return pick(ShuffleNone)
		}
		if op == bytecode.OpSwap {
			return pick(ShuffleSwap)
		}
		return pick(ShuffleDupX1)
	case bytecode.OpDupX2:
		if cat(0) == 2 {
			return pick(ShuffleNone)
		}
		if cat(1) == 2 {
			return pick(ShuffleDupX2Form2)
		}
		if cat(2) == 1 {
			return pick(ShuffleDupX2Form1)
		}
		return pick(ShuffleNone)
	case bytecode.OpDup2X1:
		if cat(0) == 2 {
			if cat(2) == 2 {
				return pick(ShuffleNone)
			}
			return pick(ShuffleDup2X1Form2)
		}
		if cat(1) == 2 || cat(2) == 2 {
			return pick(ShuffleNone)
		}
		return pick(ShuffleDup2X1Form1)
	case bytecode.OpDup2X2:
		if cat(0) == 2 {
			if cat(2) == 2 {
				return pick(ShuffleDup2X2Form4)
			}
			if cat(3) == 1 {
				return pick(ShuffleDup2X2Form2)
			}
			return pick(ShuffleNone)
		}
		if cat(1) == 1 {
			if cat(2) == 2 {
				return pick(ShuffleDup2X2Form3)
			}
			if cat(3) == 1 {
				return pick(ShuffleDup2X2Form1)
			}
		}
		return pick(ShuffleNone)
	}
	return ShuffleNone, fmt.Errorf("%w: %s is not a stack shuffle", ErrInvalidOpcode, op)
}
