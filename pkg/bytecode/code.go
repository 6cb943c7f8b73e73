package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/chazu/typeflow/pkg/jtype"
)

var (
	ErrTruncated   = errors.New("truncated instruction")
	ErrBadOperand  = errors.New("bad operand")
	ErrBadConstant = errors.New("constant has the wrong kind")
)

// Code is the code array of one method together with the constant pool its
// instructions refer to.
type Code struct {
	bytes []byte
	pool  ConstantPool

	// DetectArrayInit enables folding "newarray; dup; idx; val; xastore..."
	// runs into a single KindNewArray instruction with InitValues.
	DetectArrayInit bool

	startsOnce sync.Once
	starts     []int
}

// NewCode wraps a code array. pool may be nil if the code has no
// constant-pool references.
func NewCode(code []byte, pool ConstantPool) *Code {
	if pool == nil {
		pool = MapPool{}
	}
	return &Code{bytes: code, pool: pool}
}

// Len returns the size of the code array in bytes.
func (c *Code) Len() int { return len(c.bytes) }

// Bytes returns the code array. It must not be modified.
func (c *Code) Bytes() []byte { return c.bytes }

// Pool returns the constant pool.
func (c *Code) Pool() ConstantPool { return c.pool }

// Decode decodes the instruction starting at offset.
func (c *Code) Decode(offset int) (Instruction, error) {
	return c.decode(offset, c.DetectArrayInit)
}

// Walk decodes every instruction in order and calls fn for each. It stops at
// the first error from the decoder or from fn.
func (c *Code) Walk(fn func(in Instruction) error) error {
	for offset := 0; offset < len(c.bytes); {
		in, err := c.Decode(offset)
		if err != nil {
			return err
		}
		if err := fn(in); err != nil {
			return err
		}
		offset += in.Length
	}
	return nil
}

// ---------------------------------------------------------------------------
// Operand readers
// ---------------------------------------------------------------------------

func (c *Code) need(offset, n int) error {
	if offset < 0 || offset+n > len(c.bytes) {
		return fmt.Errorf("%w: need %d bytes at %04X, code length %d", ErrTruncated, n, offset, len(c.bytes))
	}
	return nil
}

func (c *Code) u1(offset int) int { return int(c.bytes[offset]) }
func (c *Code) s1(offset int) int { return int(int8(c.bytes[offset])) }
func (c *Code) u2(offset int) int { return int(binary.BigEndian.Uint16(c.bytes[offset:])) }
func (c *Code) s2(offset int) int { return int(int16(binary.BigEndian.Uint16(c.bytes[offset:]))) }
func (c *Code) s4(offset int) int { return int(int32(binary.BigEndian.Uint32(c.bytes[offset:]))) }

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

func (c *Code) decode(offset int, detect bool) (Instruction, error) {
	if err := c.need(offset, 1); err != nil {
		return Instruction{}, err
	}
	op := Opcode(c.bytes[offset])
	in := Instruction{Opcode: op, Raw: op, Offset: offset, Length: 1}
	if !op.Valid() {
		in.Kind = KindInvalid
		return in, nil
	}
	if n := op.OperandLen(); n > 0 {
		if err := c.need(offset+1, n); err != nil {
			return in, fmt.Errorf("%s: %w", op, err)
		}
		in.Length = 1 + n
	}

	switch {
	case op == OpNop:
		return noArgs(in, OpNop, jtype.Void), nil
	case op == OpAconstNull:
		in.Kind = KindConstant
		in.Constant = NullConst{}
		return in, nil
	case op >= OpIconstM1 && op <= OpIconst5:
		v := int(op) - int(OpIconst0)
		return literal(in, OpLdc, IntConst(v), v), nil
	case op == OpLconst0 || op == OpLconst1:
		return literal(in, OpLdc2W, LongConst(op-OpLconst0), 0), nil
	case op >= OpFconst0 && op <= OpFconst2:
		return literal(in, OpLdc, FloatConst(op-OpFconst0), 0), nil
	case op == OpDconst0 || op == OpDconst1:
		return literal(in, OpLdc2W, DoubleConst(op-OpDconst0), 0), nil
	case op == OpBipush:
		v := c.s1(offset + 1)
		return literal(in, OpLdc, IntConst(v), v), nil
	case op == OpSipush:
		v := c.s2(offset + 1)
		return literal(in, OpLdc, IntConst(v), v), nil
	case op == OpLdc, op == OpLdcW, op == OpLdc2W:
		return c.decodeLdc(in)
	case op >= OpIload && op <= OpAload:
		return local(in, OpIload, loadStoreTypes[op-OpIload], c.u1(offset+1)), nil
	case op >= OpIload0 && op <= OpAload3:
		n := int(op - OpIload0)
		return local(in, OpIload, loadStoreTypes[n/4], n%4), nil
	case op >= OpIaload && op <= OpSaload:
		return noArgs(in, OpIaload, arrayElementTypes[op-OpIaload]), nil
	case op >= OpIstore && op <= OpAstore:
		return local(in, OpIstore, loadStoreTypes[op-OpIstore], c.u1(offset+1)), nil
	case op >= OpIstore0 && op <= OpAstore3:
		n := int(op - OpIstore0)
		return local(in, OpIstore, loadStoreTypes[n/4], n%4), nil
	case op >= OpIastore && op <= OpSastore:
		return noArgs(in, OpIastore, arrayElementTypes[op-OpIastore]), nil
	case op >= OpPop && op <= OpSwap:
		return noArgs(in, op, jtype.Void), nil
	case op >= OpIadd && op <= OpDneg:
		// add, sub, mul, div, rem, neg: four typed variants each
		n := int(op - OpIadd)
		return noArgs(in, op-Opcode(n%4), arithmeticTypes[n%4]), nil
	case op >= OpIshl && op <= OpLxor:
		// shifts and bitwise ops come in int/long pairs
		n := int(op - OpIshl)
		return noArgs(in, op-Opcode(n%2), arithmeticTypes[n%2]), nil
	case op == OpIinc:
		in = local(in, OpIinc, jtype.Int, c.u1(offset+1))
		in.Value = c.s1(offset + 2)
		return in, nil
	case op >= OpI2l && op <= OpI2s:
		return noArgs(in, op, conversionResults[op-OpI2l]), nil
	case op >= OpLcmp && op <= OpDcmpg:
		return noArgs(in, op, jtype.Int), nil
	case op.IsBranch():
		return c.decodeBranch(in)
	case op == OpRet:
		return local(in, OpRet, jtype.ReturnAddress, c.u1(offset+1)), nil
	case op == OpTableswitch:
		return c.decodeTableswitch(in)
	case op == OpLookupswitch:
		return c.decodeLookupswitch(in)
	case op >= OpIreturn && op <= OpAreturn:
		return noArgs(in, OpIreturn, loadStoreTypes[op-OpIreturn]), nil
	case op == OpReturn:
		return noArgs(in, OpReturn, jtype.Void), nil
	case op >= OpGetstatic && op <= OpPutfield:
		return c.poolRef(in, c.u2(offset+1), isFieldRef)
	case op >= OpInvokevirtual && op <= OpInvokestatic:
		return c.poolRef(in, c.u2(offset+1), isMethodRef)
	case op == OpInvokeinterface:
		in.Value = c.u1(offset + 3)
		return c.poolRef(in, c.u2(offset+1), isMethodRef)
	case op == OpInvokedynamic:
		return c.poolRef(in, c.u2(offset+1), isCallSite)
	case op == OpNew, op == OpAnewarray, op == OpCheckcast, op == OpInstanceof:
		return c.poolRef(in, c.u2(offset+1), isClass)
	case op == OpMultianewarray:
		in.Value = c.u1(offset + 3)
		if in.Value == 0 {
			return in, fmt.Errorf("%w: multianewarray with zero dimensions at %04X", ErrBadOperand, offset)
		}
		return c.poolRef(in, c.u2(offset+1), isClass)
	case op == OpNewarray:
		return c.decodeNewarray(in, detect)
	case op == OpArraylength:
		return noArgs(in, op, jtype.Int), nil
	case op == OpAthrow:
		return noArgs(in, op, jtype.Throwable), nil
	case op == OpMonitorenter, op == OpMonitorexit:
		return noArgs(in, op, jtype.Object), nil
	case op == OpWide:
		return c.decodeWide(in)
	}
	in.Kind = KindInvalid
	return in, nil
}

var (
	loadStoreTypes    = [...]*jtype.Type{jtype.Int, jtype.Long, jtype.Float, jtype.Double, jtype.Object}
	arithmeticTypes   = [...]*jtype.Type{jtype.Int, jtype.Long, jtype.Float, jtype.Double}
	arrayElementTypes = [...]*jtype.Type{
		jtype.Int, jtype.Long, jtype.Float, jtype.Double,
		jtype.Object, jtype.Byte, jtype.Char, jtype.Short,
	}
	conversionResults = [...]*jtype.Type{
		jtype.Long, jtype.Float, jtype.Double, // i2x
		jtype.Int, jtype.Float, jtype.Double, // l2x
		jtype.Int, jtype.Long, jtype.Double, // f2x
		jtype.Int, jtype.Long, jtype.Float, // d2x
		jtype.Byte, jtype.Char, jtype.Short, // i2b, i2c, i2s
	}
)

func noArgs(in Instruction, canonical Opcode, t *jtype.Type) Instruction {
	in.Kind = KindNoArgs
	in.Opcode = canonical
	in.Type = t
	return in
}

func local(in Instruction, canonical Opcode, t *jtype.Type, idx int) Instruction {
	in.Kind = KindLocal
	in.Opcode = canonical
	in.Type = t
	in.Local = idx
	return in
}

func literal(in Instruction, canonical Opcode, cst Constant, value int) Instruction {
	in.Kind = KindConstant
	in.Opcode = canonical
	in.Constant = cst
	in.Value = value
	return in
}

func (c *Code) decodeLdc(in Instruction) (Instruction, error) {
	var idx int
	if in.Raw == OpLdc {
		idx = c.u1(in.Offset + 1)
	} else {
		idx = c.u2(in.Offset + 1)
	}
	cst, err := c.pool.Get(idx)
	if err != nil {
		return in, fmt.Errorf("%s at %04X: %w", in.Raw, in.Offset, err)
	}
	wide := cst.Type().IsCategory2()
	if wide != (in.Raw == OpLdc2W) {
		return in, fmt.Errorf("%w: %s at %04X loads %s", ErrBadConstant, in.Raw, in.Offset, cst)
	}
	switch cst.(type) {
	case IntConst, LongConst, FloatConst, DoubleConst, StringConst, ClassConst,
		MethodHandleConst, MethodTypeConst:
	default:
		return in, fmt.Errorf("%w: %s at %04X loads %s", ErrBadConstant, in.Raw, in.Offset, cst)
	}
	canonical := OpLdc
	if wide {
		canonical = OpLdc2W
	}
	value := 0
	if v, ok := cst.(IntConst); ok {
		value = int(v)
	}
	return literal(in, canonical, cst, value), nil
}

func (c *Code) decodeBranch(in Instruction) (Instruction, error) {
	in.Kind = KindBranch
	switch in.Raw {
	case OpGotoW, OpJsrW:
		in.Target = in.Offset + c.s4(in.Offset+1)
		if in.Raw == OpGotoW {
			in.Opcode = OpGoto
		} else {
			in.Opcode = OpJsr
		}
	default:
		in.Target = in.Offset + c.s2(in.Offset+1)
	}
	if in.Target < 0 || in.Target >= len(c.bytes) {
		return in, fmt.Errorf("%w: %s at %04X targets %d outside code", ErrBadOperand, in.Raw, in.Offset, in.Target)
	}
	return in, nil
}

// switchBase returns the offset of the first operand of a switch at offset,
// skipping the alignment padding.
func switchBase(offset int) int {
	return (offset + 4) &^ 3
}

func (c *Code) decodeTableswitch(in Instruction) (Instruction, error) {
	base := switchBase(in.Offset)
	if err := c.need(base, 12); err != nil {
		return in, fmt.Errorf("tableswitch: %w", err)
	}
	def := c.s4(base)
	low, high := c.s4(base+4), c.s4(base+8)
	if low > high {
		return in, fmt.Errorf("%w: tableswitch at %04X has low %d > high %d", ErrBadOperand, in.Offset, low, high)
	}
	n := high - low + 1
	if err := c.need(base+12, 4*n); err != nil {
		return in, fmt.Errorf("tableswitch: %w", err)
	}
	sw := &SwitchTable{
		Values:  make([]int32, 0, n),
		Targets: make([]int, 0, n),
		Default: in.Offset + def,
	}
	for i := 0; i < n; i++ {
		sw.Values = append(sw.Values, int32(low+i))
		sw.Targets = append(sw.Targets, in.Offset+c.s4(base+12+4*i))
	}
	in.Length = base + 12 + 4*n - in.Offset
	return c.finishSwitch(in, sw)
}

func (c *Code) decodeLookupswitch(in Instruction) (Instruction, error) {
	base := switchBase(in.Offset)
	if err := c.need(base, 8); err != nil {
		return in, fmt.Errorf("lookupswitch: %w", err)
	}
	def := c.s4(base)
	n := c.s4(base + 4)
	if n < 0 {
		return in, fmt.Errorf("%w: lookupswitch at %04X has %d pairs", ErrBadOperand, in.Offset, n)
	}
	if err := c.need(base+8, 8*n); err != nil {
		return in, fmt.Errorf("lookupswitch: %w", err)
	}
	sw := &SwitchTable{
		Values:  make([]int32, 0, n),
		Targets: make([]int, 0, n),
		Default: in.Offset + def,
	}
	for i := 0; i < n; i++ {
		p := base + 8 + 8*i
		v := int32(c.s4(p))
		if i > 0 && v <= sw.Values[i-1] {
			return in, fmt.Errorf("%w: lookupswitch at %04X keys not sorted", ErrBadOperand, in.Offset)
		}
		sw.Values = append(sw.Values, v)
		sw.Targets = append(sw.Targets, in.Offset+c.s4(p+4))
	}
	in.Length = base + 8 + 8*n - in.Offset
	return c.finishSwitch(in, sw)
}

// finishSwitch folds both switch forms onto OpLookupswitch.
func (c *Code) finishSwitch(in Instruction, sw *SwitchTable) (Instruction, error) {
	for _, t := range sw.AllTargets() {
		if t < 0 || t >= len(c.bytes) {
			return in, fmt.Errorf("%w: %s at %04X targets %d outside code", ErrBadOperand, in.Raw, in.Offset, t)
		}
	}
	in.Kind = KindSwitch
	in.Opcode = OpLookupswitch
	in.Switch = sw
	return in, nil
}

func (c *Code) decodeWide(in Instruction) (Instruction, error) {
	if err := c.need(in.Offset+1, 3); err != nil {
		return in, fmt.Errorf("wide: %w", err)
	}
	op := Opcode(c.bytes[in.Offset+1])
	idx := c.u2(in.Offset + 2)
	in.Raw = op
	in.Wide = true
	in.Length = 4
	switch {
	case op >= OpIload && op <= OpAload:
		return local(in, OpIload, loadStoreTypes[op-OpIload], idx), nil
	case op >= OpIstore && op <= OpAstore:
		return local(in, OpIstore, loadStoreTypes[op-OpIstore], idx), nil
	case op == OpRet:
		return local(in, OpRet, jtype.ReturnAddress, idx), nil
	case op == OpIinc:
		if err := c.need(in.Offset+4, 2); err != nil {
			return in, fmt.Errorf("wide iinc: %w", err)
		}
		in = local(in, OpIinc, jtype.Int, idx)
		in.Value = c.s2(in.Offset + 4)
		in.Length = 6
		return in, nil
	}
	in.Kind = KindInvalid
	in.Raw = OpWide
	in.Length = 1
	return in, nil
}

// ---------------------------------------------------------------------------
// Constant-pool operands
// ---------------------------------------------------------------------------

func isFieldRef(c Constant) bool {
	_, ok := c.(FieldRef)
	return ok
}

func isMethodRef(c Constant) bool {
	_, ok := c.(MethodRef)
	return ok
}

func isCallSite(c Constant) bool {
	_, ok := c.(CallSite)
	return ok
}

func isClass(c Constant) bool {
	_, ok := c.(ClassConst)
	return ok
}

func (c *Code) poolRef(in Instruction, idx int, want func(Constant) bool) (Instruction, error) {
	cst, err := c.pool.Get(idx)
	if err != nil {
		return in, fmt.Errorf("%s at %04X: %w", in.Raw, in.Offset, err)
	}
	if !want(cst) {
		return in, fmt.Errorf("%w: %s at %04X refers to %s", ErrBadConstant, in.Raw, in.Offset, cst)
	}
	in.Kind = KindConstant
	in.Constant = cst
	return in, nil
}

// ---------------------------------------------------------------------------
// newarray and array initializers
// ---------------------------------------------------------------------------

// newarrayTypes maps the atype operand of newarray to the array type and the
// store opcode an initializer must use.
var newarrayTypes = map[int]struct {
	array *jtype.Type
	store Opcode
}{
	4:  {jtype.BooleanArray, OpBastore},
	5:  {jtype.CharArray, OpCastore},
	6:  {jtype.FloatArray, OpFastore},
	7:  {jtype.DoubleArray, OpDastore},
	8:  {jtype.ByteArray, OpBastore},
	9:  {jtype.ShortArray, OpSastore},
	10: {jtype.IntArray, OpIastore},
	11: {jtype.LongArray, OpLastore},
}

func (c *Code) decodeNewarray(in Instruction, detect bool) (Instruction, error) {
	atype := c.u1(in.Offset + 1)
	nt, ok := newarrayTypes[atype]
	if !ok {
		return in, fmt.Errorf("%w: newarray at %04X with type code %d", ErrBadOperand, in.Offset, atype)
	}
	in.Kind = KindNewArray
	in.Type = nt.array
	in.Value = atype
	if !detect {
		return in, nil
	}

	length, ok := c.precedingIntConst(in.Offset)
	if !ok || length < 2 {
		return in, nil
	}

	var values []Constant
	cur := in.End()
	last := cur
	for len(values) < length {
		if cur >= len(c.bytes) || Opcode(c.bytes[cur]) != OpDup {
			break
		}
		cur++
		idx, err := c.decode(cur, false)
		if err != nil || idx.Kind != KindConstant {
			break
		}
		if v, ok := idx.Constant.(IntConst); !ok || int(v) != len(values) {
			break
		}
		cur = idx.End()
		val, err := c.decode(cur, false)
		if err != nil || val.Kind != KindConstant || !isLiteral(val.Constant) {
			break
		}
		cur = val.End()
		if cur >= len(c.bytes) || Opcode(c.bytes[cur]) != nt.store {
			break
		}
		cur++
		values = append(values, val.Constant)
		last = cur
	}

	// Singleton or partial initializers are left as ordinary stores.
	if len(values) < 2 || len(values) != length {
		return in, nil
	}
	in.InitValues = values
	in.Length = last - in.Offset
	return in, nil
}

func isLiteral(c Constant) bool {
	switch c.(type) {
	case IntConst, LongConst, FloatConst, DoubleConst:
		return true
	}
	return false
}

// precedingIntConst reports the int pushed by the instruction that ends
// exactly at offset, if it is a literal.
func (c *Code) precedingIntConst(offset int) (int, bool) {
	starts := c.instructionStarts()
	i := sort.SearchInts(starts, offset)
	if i == 0 || i > len(starts) {
		return 0, false
	}
	prev, err := c.decode(starts[i-1], false)
	if err != nil || prev.Kind != KindConstant || prev.End() != offset {
		return 0, false
	}
	v, ok := prev.Constant.(IntConst)
	return int(v), ok
}

// instructionStarts lists the offset of every instruction, decoded without
// initializer folding. Decoding stops at the first malformed instruction.
func (c *Code) instructionStarts() []int {
	c.startsOnce.Do(func() {
		for offset := 0; offset < len(c.bytes); {
			in, err := c.decode(offset, false)
			if err != nil {
				break
			}
			c.starts = append(c.starts, offset)
			offset += in.Length
		}
	})
	return c.starts
}
