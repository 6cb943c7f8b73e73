package sim

import (
	"fmt"
	"strings"

	"github.com/chazu/typeflow/frame"
	"github.com/chazu/typeflow/pkg/bytecode"
	"github.com/chazu/typeflow/pkg/jtype"
)

// Insn is one simulated instruction as handed to a Machine: the decoded
// instruction plus the types the simulator popped and is about to push.
type Insn struct {
	Opcode bytecode.Opcode // canonical opcode
	Raw    bytecode.Opcode
	Offset int

	// Args are the popped operands, bottom first. For loads and iinc the
	// single arg is the local being read.
	Args []*jtype.Type

	// Type is the operand type implied by the opcode, refined for array
	// accesses to the element type of the array actually on the stack.
	Type *jtype.Type

	// Results are pushed in order after the machine runs, or stored into
	// Local when Store is set.
	Results []*jtype.Type
	Store   bool

	Local     int // -1 when the instruction names no local
	LocalInfo *bytecode.LocalVariable

	Value      int
	Constant   bytecode.Constant
	Target     int
	Switch     *bytecode.SwitchTable
	InitValues []bytecode.Constant
	Shuffle    ShuffleForm
}

// Result returns the single result type, or nil.
func (in *Insn) Result() *jtype.Type {
	if len(in.Results) == 1 {
		return in.Results[0]
	}
	return nil
}

func (in *Insn) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%04x %s", in.Offset, in.Raw)
	if in.Local >= 0 {
		fmt.Fprintf(&sb, " %d", in.Local)
	}
	if in.Constant != nil {
		fmt.Fprintf(&sb, " %s", in.Constant)
	}
	if in.Shuffle != ShuffleNone {
		fmt.Fprintf(&sb, " [%s]", in.Shuffle)
	}
	sb.WriteString(" (")
	writeTypes(&sb, in.Args)
	sb.WriteString(") -> ")
	if in.Store {
		fmt.Fprintf(&sb, "local%d=", in.Local)
	}
	sb.WriteString("(")
	writeTypes(&sb, in.Results)
	sb.WriteString(")")
	return sb.String()
}

func writeTypes(sb *strings.Builder, types []*jtype.Type) {
	for i, t := range types {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(t.Human())
	}
}

// Machine receives every simulated instruction after its operands have been
// popped and before its results are pushed. Translators to another
// representation implement it; f is the live frame.
type Machine interface {
	Run(f *frame.Frame, in *Insn) error
}

// MachineFunc adapts a function to Machine.
type MachineFunc func(f *frame.Frame, in *Insn) error

// Run calls fn.
func (fn MachineFunc) Run(f *frame.Frame, in *Insn) error { return fn(f, in) }

type nopMachine struct{}

func (nopMachine) Run(*frame.Frame, *Insn) error { return nil }

// Decoder yields the instruction at a code offset. *bytecode.Code
// implements it.
type Decoder interface {
	Decode(offset int) (bytecode.Instruction, error)
}
