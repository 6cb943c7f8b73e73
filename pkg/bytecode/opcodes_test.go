package bytecode

import (
	"strings"
	"testing"
)

func TestAllOpcodesHaveMetadata(t *testing.T) {
	// Ensure every defined opcode has metadata
	for _, op := range AllOpcodes() {
		info := GetOpcodeInfo(op)
		if info.Name == "" || strings.HasPrefix(info.Name, "UNKNOWN") {
			t.Errorf("Opcode 0x%02X has no metadata", byte(op))
		}
	}
}

func TestOpcodeCount(t *testing.T) {
	// 0x00 through 0xC9 with no gaps
	if got := OpcodeCount(); got != 0xCA {
		t.Errorf("OpcodeCount() = %d, want %d", got, 0xCA)
	}
	for b := 0; b < 0xCA; b++ {
		if !Opcode(b).Valid() {
			t.Errorf("Opcode(0x%02X) not valid", b)
		}
	}
}

func TestOpcodeString(t *testing.T) {
	tests := []struct {
		op   Opcode
		want string
	}{
		{OpNop, "nop"},
		{OpAconstNull, "aconst_null"},
		{OpIconstM1, "iconst_m1"},
		{OpLdc2W, "ldc2_w"},
		{OpAload3, "aload_3"},
		{OpDup2X2, "dup2_x2"},
		{OpIfAcmpne, "if_acmpne"},
		{OpLookupswitch, "lookupswitch"},
		{OpInvokedynamic, "invokedynamic"},
		{OpMultianewarray, "multianewarray"},
		{OpJsrW, "jsr_w"},
	}

	for _, tt := range tests {
		got := tt.op.String()
		if got != tt.want {
			t.Errorf("Opcode(0x%02X).String() = %q, want %q", byte(tt.op), got, tt.want)
		}
	}
}

func TestUnknownOpcodeString(t *testing.T) {
	for _, op := range []Opcode{0xCA, 0xEE, 0xFF} {
		if got := op.String(); !strings.HasPrefix(got, "UNKNOWN") {
			t.Errorf("Opcode(0x%02X).String() = %q, want UNKNOWN", byte(op), got)
		}
		if op.Valid() {
			t.Errorf("Opcode(0x%02X).Valid() = true", byte(op))
		}
	}
}

func TestOpcodeInstructionLen(t *testing.T) {
	tests := []struct {
		op   Opcode
		want int
	}{
		{OpNop, 1},
		{OpBipush, 2},
		{OpSipush, 3},
		{OpLdc, 2},
		{OpLdcW, 3},
		{OpIload, 2},
		{OpIinc, 3},
		{OpGoto, 3},
		{OpGotoW, 5},
		{OpInvokeinterface, 5},
		{OpInvokedynamic, 5},
		{OpMultianewarray, 4},
		{OpNewarray, 2},
		{OpTableswitch, -1},
		{OpLookupswitch, -1},
		{OpWide, -1},
	}

	for _, tt := range tests {
		if got := tt.op.InstructionLen(); got != tt.want {
			t.Errorf("%s.InstructionLen() = %d, want %d", tt.op, got, tt.want)
		}
	}
}

func TestOpcodeClassification(t *testing.T) {
	tests := []struct {
		op          Opcode
		branch      bool
		conditional bool
		falls       bool
		canThrow    bool
	}{
		{OpIadd, false, false, true, false},
		{OpIdiv, false, false, true, true},
		{OpFdiv, false, false, true, false},
		{OpIfeq, true, true, true, false},
		{OpIfnonnull, true, true, true, false},
		{OpGoto, true, false, false, false},
		{OpGotoW, true, false, false, false},
		{OpJsr, true, false, false, false},
		{OpRet, false, false, false, false},
		{OpTableswitch, false, false, false, false},
		{OpIreturn, false, false, false, false},
		{OpReturn, false, false, false, false},
		{OpAthrow, false, false, false, true},
		{OpInvokevirtual, false, false, true, true},
		{OpAaload, false, false, true, true},
		{OpCheckcast, false, false, true, true},
	}

	for _, tt := range tests {
		if got := tt.op.IsBranch(); got != tt.branch {
			t.Errorf("%s.IsBranch() = %v, want %v", tt.op, got, tt.branch)
		}
		if got := tt.op.IsConditional(); got != tt.conditional {
			t.Errorf("%s.IsConditional() = %v, want %v", tt.op, got, tt.conditional)
		}
		if got := tt.op.Fallsthrough(); got != tt.falls {
			t.Errorf("%s.Fallsthrough() = %v, want %v", tt.op, got, tt.falls)
		}
		if got := tt.op.CanThrow(); got != tt.canThrow {
			t.Errorf("%s.CanThrow() = %v, want %v", tt.op, got, tt.canThrow)
		}
	}
}

func TestOpcodeIsReturn(t *testing.T) {
	for op := OpIreturn; op <= OpReturn; op++ {
		if !op.IsReturn() {
			t.Errorf("%s.IsReturn() = false", op)
		}
	}
	for _, op := range []Opcode{OpAthrow, OpGoto, OpRet, OpNop} {
		if op.IsReturn() {
			t.Errorf("%s.IsReturn() = true", op)
		}
	}
}

func TestOpcodeIsInvoke(t *testing.T) {
	for op := OpInvokevirtual; op <= OpInvokedynamic; op++ {
		if !op.IsInvoke() {
			t.Errorf("%s.IsInvoke() = false", op)
		}
	}
	if OpNew.IsInvoke() || OpGetfield.IsInvoke() {
		t.Error("non-invoke reported as invoke")
	}
}
