package bytecode

import (
	"fmt"

	"github.com/chazu/typeflow/pkg/jtype"
)

// Kind classifies a decoded instruction by the shape of its payload.
type Kind uint8

const (
	KindInvalid  Kind = iota // unrecognized opcode byte
	KindNoArgs               // payload is at most a type
	KindLocal                // local index + type (loads, stores, iinc, ret)
	KindConstant             // inline literal or constant-pool reference
	KindBranch               // single branch target
	KindSwitch               // switch table
	KindNewArray             // primitive array allocation, maybe with initializer
)

var kindNames = [...]string{
	KindInvalid:  "invalid",
	KindNoArgs:   "no-args",
	KindLocal:    "local",
	KindConstant: "constant",
	KindBranch:   "branch",
	KindSwitch:   "switch",
	KindNewArray: "newarray",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Instruction is one decoded instruction.
//
// Typed opcode families are folded onto a canonical opcode: ladd decodes as
// OpIadd with Type long, aload_2 as OpIload with Type Object and Local 2,
// iconst_3 and bipush as OpLdc with an IntConst. Raw keeps the opcode that
// was actually in the code array (the modified opcode for wide forms).
type Instruction struct {
	Kind   Kind
	Opcode Opcode
	Raw    Opcode
	Wide   bool
	Offset int
	Length int

	// Type is the operand type implied by the opcode: the value type for
	// loads, stores, returns and arithmetic, the element type for array
	// accesses, the result type for conversions and compares, and the array
	// type for newarray.
	Type *jtype.Type

	Local    int
	Value    int // iinc delta, literal int value, invokeinterface count, dimensions
	Constant Constant
	Target   int
	Switch   *SwitchTable

	// InitValues holds the constants of a recognized array initializer
	// following newarray. Length then spans the whole initializer.
	InitValues []Constant
}

// End returns the offset just past the instruction.
func (in *Instruction) End() int { return in.Offset + in.Length }

// CanThrow reports whether the instruction may raise an exception. For ldc
// only class, method handle and method type constants can fail.
func (in *Instruction) CanThrow() bool {
	if in.Kind == KindInvalid {
		return false
	}
	if in.Raw == OpLdc || in.Raw == OpLdcW {
		switch in.Constant.(type) {
		case ClassConst, MethodHandleConst, MethodTypeConst:
			return true
		}
		return false
	}
	return in.Raw.CanThrow()
}

// Targets returns the explicit branch targets of the instruction, default
// included for switches.
func (in *Instruction) Targets() []int {
	switch in.Kind {
	case KindBranch:
		return []int{in.Target}
	case KindSwitch:
		return in.Switch.AllTargets()
	}
	return nil
}

func (in Instruction) String() string {
	name := in.Raw.String()
	if in.Wide {
		name = "wide " + name
	}
	switch in.Kind {
	case KindInvalid:
		return fmt.Sprintf("invalid 0x%02X", byte(in.Raw))
	case KindLocal:
		if !in.Wide && in.Raw.OperandLen() == 0 {
			return name
		}
		if in.Opcode == OpIinc {
			return fmt.Sprintf("%s %d, %d", name, in.Local, in.Value)
		}
		return fmt.Sprintf("%s %d", name, in.Local)
	case KindConstant:
		switch in.Raw {
		case OpLdc, OpLdcW, OpLdc2W, OpBipush, OpSipush, OpGetstatic, OpPutstatic,
			OpGetfield, OpPutfield, OpInvokevirtual, OpInvokespecial, OpInvokestatic,
			OpInvokeinterface, OpInvokedynamic, OpNew, OpAnewarray, OpCheckcast,
			OpInstanceof:
			return fmt.Sprintf("%s %s", name, in.Constant)
		case OpMultianewarray:
			return fmt.Sprintf("%s %s, %d", name, in.Constant, in.Value)
		}
		return name
	case KindBranch:
		return fmt.Sprintf("%s %04X", name, in.Target)
	case KindSwitch:
		return fmt.Sprintf("%s %s", name, in.Switch)
	case KindNewArray:
		if len(in.InitValues) > 0 {
			return fmt.Sprintf("%s %s, init %v", name, in.Type.Human(), in.InitValues)
		}
		return fmt.Sprintf("%s %s", name, in.Type.Human())
	}
	return name
}
