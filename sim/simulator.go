// Package sim simulates JVM instructions over a frame of types. For every
// instruction it pops and checks the operands, selects the form of stack
// shuffles, computes the result type and hands the resolved instruction to
// a Machine before applying the result to the frame.
package sim

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/typeflow/frame"
	"github.com/chazu/typeflow/pkg/bytecode"
	"github.com/chazu/typeflow/pkg/jtype"
)

// Simulator simulates the instructions of one method.
type Simulator struct {
	proto   *jtype.Prototype
	locals  bytecode.LocalVariableList
	machine Machine
	log     commonlog.Logger
	strict  bool
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithLogger sets the logger instructions are traced to at debug level.
func WithLogger(log commonlog.Logger) Option {
	return func(s *Simulator) {
		s.log = log
	}
}

// WithStrictLocals controls what happens when the local variable table
// disagrees with the opcode about the type of a local. Strict (the
// default) fails with ErrLocalVariableMismatch as the JVM verifier would.
// Non-strict ignores the table entry, accepting methods the verifier rejects.
func WithStrictLocals(strict bool) Option {
	return func(s *Simulator) {
		s.strict = strict
	}
}

// New returns a simulator for a method with prototype proto and debug
// table locals. A nil machine discards instructions.
func New(proto *jtype.Prototype, locals bytecode.LocalVariableList, m Machine, opts ...Option) *Simulator {
	if m == nil {
		m = nopMachine{}
	}
	s := &Simulator{
		proto:   proto,
		locals:  locals,
		machine: m,
		log:     commonlog.GetLogger("typeflow.sim"),
		strict:  true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Prototype returns the prototype of the simulated method.
func (s *Simulator) Prototype() *jtype.Prototype { return s.proto }

// Simulate runs the instructions in [start, end) against f, which is
// modified in place.
func (s *Simulator) Simulate(dec Decoder, start, end int, f *frame.Frame) error {
	for pc := start; pc < end; {
		in, err := dec.Decode(pc)
		if err != nil {
			return f.Annotate(&Error{Err: err, Offset: pc, Opcode: in.Raw, NoOpcode: in.Length == 0})
		}
		if _, err := s.Step(f, &in); err != nil {
			return err
		}
		pc = in.End()
	}
	return nil
}

// Step simulates one instruction against f and returns what was handed to
// the machine. Failures are *Error values carrying a dump of f.
func (s *Simulator) Step(f *frame.Frame, in *bytecode.Instruction) (*Insn, error) {
	st := &step{
		sim: s,
		f:   f,
		in:  in,
		insn: &Insn{
			Opcode:     in.Opcode,
			Raw:        in.Raw,
			Offset:     in.Offset,
			Type:       in.Type,
			Local:      -1,
			Value:      in.Value,
			Constant:   in.Constant,
			Target:     in.Target,
			Switch:     in.Switch,
			InitValues: in.InitValues,
		},
	}

	var err error
	switch in.Kind {
	case bytecode.KindNoArgs:
		err = st.noArgs()
	case bytecode.KindLocal:
		err = st.local()
	case bytecode.KindConstant:
		err = st.constant()
	case bytecode.KindBranch:
		err = st.branch()
	case bytecode.KindSwitch:
		err = st.popArgs(jtype.Int)
	case bytecode.KindNewArray:
		err = st.newArray()
	default:
		err = fmt.Errorf("%w 0x%02x", ErrInvalidOpcode, byte(in.Raw))
	}
	if err == nil {
		err = st.finish()
	}
	if err != nil {
		return nil, f.Annotate(fail(in, err))
	}
	return st.insn, nil
}

// step carries the state of one Step call through the per-kind handlers.
type step struct {
	sim  *Simulator
	f    *frame.Frame
	in   *bytecode.Instruction
	insn *Insn
}

func (st *step) push(t *jtype.Type) {
	st.insn.Results = append(st.insn.Results, t)
}

// popArgs pops one value per type, bottom first, and checks that each could
// be assigned to its type.
func (st *step) popArgs(types ...*jtype.Type) error {
	args, err := st.popCount(len(types))
	if err != nil {
		return err
	}
	for i, want := range types {
		if !frame.IsPossiblyAssignableFrom(want, args[i]) {
			return mismatch("at stack depth %d, expected type %s but found %s",
				len(types)-1-i, want.Human(), args[i].Human())
		}
	}
	return nil
}

func (st *step) popCount(n int) ([]*jtype.Type, error) {
	args := make([]*jtype.Type, n)
	for i := n - 1; i >= 0; i-- {
		t, err := st.f.Stack().Pop()
		if err != nil {
			return nil, err
		}
		args[i] = t
	}
	st.insn.Args = args
	return args, nil
}

// finish runs the machine and applies the results to the frame.
func (st *step) finish() error {
	insn := st.insn
	if err := st.sim.machine.Run(st.f, insn); err != nil {
		return err
	}
	if st.sim.log.AllowLevel(commonlog.Debug) {
		st.sim.log.Debugf("%s", insn)
	}
	if insn.Store {
		return st.f.Locals().Set(insn.Local, insn.Result())
	}
	stack := st.f.Stack()
	for _, t := range insn.Results {
		if err := stack.Push(t); err != nil {
			return err
		}
	}
	if insn.Opcode == bytecode.OpIload && insn.LocalInfo != nil {
		return stack.SetLocal()
	}
	return nil
}

func (st *step) noArgs() error {
	in := st.in
	t := in.Type
	switch in.Opcode {
	case bytecode.OpNop:
		return nil
	case bytecode.OpIaload:
		return st.arrayLoad()
	case bytecode.OpIastore:
		return st.arrayStore()
	case bytecode.OpPop, bytecode.OpPop2, bytecode.OpDup, bytecode.OpDupX1, bytecode.OpDupX2,
		bytecode.OpDup2, bytecode.OpDup2X1, bytecode.OpDup2X2, bytecode.OpSwap:
		return st.shuffle()
	case bytecode.OpIadd, bytecode.OpIsub, bytecode.OpImul, bytecode.OpIdiv, bytecode.OpIrem,
		bytecode.OpIand, bytecode.OpIor, bytecode.OpIxor:
		if err := st.popArgs(t, t); err != nil {
			return err
		}
	case bytecode.OpIshl, bytecode.OpIshr, bytecode.OpIushr:
		if err := st.popArgs(t, jtype.Int); err != nil {
			return err
		}
	case bytecode.OpIneg:
		if err := st.popArgs(t); err != nil {
			return err
		}
	case bytecode.OpI2l, bytecode.OpI2f, bytecode.OpI2d, bytecode.OpL2i, bytecode.OpL2f,
		bytecode.OpL2d, bytecode.OpF2i, bytecode.OpF2l, bytecode.OpF2d, bytecode.OpD2i,
		bytecode.OpD2l, bytecode.OpD2f, bytecode.OpI2b, bytecode.OpI2c, bytecode.OpI2s:
		if err := st.popArgs(conversionSources[(in.Opcode-bytecode.OpI2l)/3]); err != nil {
			return err
		}
	case bytecode.OpLcmp:
		if err := st.popArgs(jtype.Long, jtype.Long); err != nil {
			return err
		}
	case bytecode.OpFcmpl, bytecode.OpFcmpg:
		if err := st.popArgs(jtype.Float, jtype.Float); err != nil {
			return err
		}
	case bytecode.OpDcmpl, bytecode.OpDcmpg:
		if err := st.popArgs(jtype.Double, jtype.Double); err != nil {
			return err
		}
	case bytecode.OpIreturn:
		return st.returnValue()
	case bytecode.OpReturn:
		return st.checkReturnType(jtype.Void)
	case bytecode.OpArraylength:
		top, err := st.f.Stack().Peek(0)
		if err != nil {
			return err
		}
		if !top.IsArrayOrKnownNull() {
			return mismatch("expected array type but encountered %s", top.Human())
		}
		if err := st.popArgs(jtype.Object); err != nil {
			return err
		}
	case bytecode.OpAthrow, bytecode.OpMonitorenter, bytecode.OpMonitorexit:
		return st.popArgs(t)
	default:
		return fmt.Errorf("%w %s", ErrInvalidOpcode, in.Raw)
	}
	st.push(t)
	return nil
}

// conversionSources holds the operand type of i2x, l2x, f2x, d2x and the
// int narrowing conversions, in opcode order.
var conversionSources = [...]*jtype.Type{jtype.Int, jtype.Long, jtype.Float, jtype.Double, jtype.Int}

// RequiredArrayTypeFor returns the array type an array access with element
// type implied must find on the stack, given that found is what is there.
// Object accesses accept any array of references and byte accesses accept
// boolean arrays.
func RequiredArrayTypeFor(implied, found *jtype.Type) *jtype.Type {
	if found != nil && found.IsKnownNull() {
		if implied.IsReference() {
			return jtype.KnownNull
		}
		return arrayOf(implied)
	}
	if found != nil && implied == jtype.Object && found.IsArray() {
		if c, _ := found.ComponentType(); c.IsReference() {
			return found
		}
	}
	if implied == jtype.Byte && found == jtype.BooleanArray {
		return jtype.BooleanArray
	}
	return arrayOf(implied)
}

func arrayOf(t *jtype.Type) *jtype.Type {
	a, err := jtype.ArrayOf(t)
	if err != nil {
		// element types of array opcodes always have arrays
		panic(err)
	}
	return a
}

// elementType returns the element type to use for an access to an array of
// type required; known null falls back to the opcode's type.
func (st *step) elementType(required *jtype.Type) *jtype.Type {
	if required.IsKnownNull() {
		return st.in.Type
	}
	c, _ := required.ComponentType()
	return c
}

func (st *step) arrayLoad() error {
	found, err := st.f.Stack().Peek(1)
	if err != nil {
		return err
	}
	required := RequiredArrayTypeFor(st.in.Type, found)
	elem := st.elementType(required)
	if err := st.popArgs(required, jtype.Int); err != nil {
		return err
	}
	st.insn.Type = elem
	st.push(elem)
	return nil
}

func (st *step) arrayStore() error {
	depth := 2
	if st.in.Type.IsCategory2() {
		depth = 3
	}
	found, err := st.f.Stack().Peek(depth)
	if err != nil {
		return err
	}
	required := RequiredArrayTypeFor(st.in.Type, found)
	elem := st.elementType(required)
	value := elem
	if value.IsReference() {
		// reference stores are checked at run time
		value = jtype.Object
	}
	if err := st.popArgs(required, jtype.Int, value); err != nil {
		return err
	}
	st.insn.Type = elem
	return nil
}

func (st *step) shuffle() error {
	form, err := ShuffleFormFor(st.in.Opcode, st.f.Stack())
	if err != nil {
		return err
	}
	args, err := st.popCount(form.ArgCount())
	if err != nil {
		return err
	}
	st.insn.Shuffle = form
	st.insn.Results = form.Apply(args)
	return nil
}

func (st *step) returnValue() error {
	top, err := st.f.Stack().Peek(0)
	if err != nil {
		return err
	}
	if err := st.checkReturnType(top); err != nil {
		return err
	}
	if st.in.Type == jtype.Object {
		st.insn.Type = top
	}
	return st.popArgs(st.in.Type)
}

func (st *step) checkReturnType(encountered *jtype.Type) error {
	if st.sim.proto == nil {
		return nil
	}
	declared := st.sim.proto.ReturnType()
	if !frame.IsPossiblyAssignableFrom(declared, encountered) {
		return fmt.Errorf("%w: prototype indicates %s, but encountered type %s",
			ErrReturnTypeMismatch, declared.Human(), encountered.Human())
	}
	return nil
}

// basicKind is the kind of t once on the stack; all references share one.
func basicKind(t *jtype.Type) jtype.Kind {
	return t.FrameType().Kind()
}

func (st *step) local() error {
	in := st.in
	pc := in.Offset
	if in.Opcode == bytecode.OpIstore {
		// a stored local only becomes live after the store
		pc = in.End()
	}

	localType := in.Type
	var info *bytecode.LocalVariable
	if in.Opcode != bytecode.OpRet {
		info = st.sim.locals.Lookup(pc, in.Local)
	}
	if info != nil {
		if basicKind(info.Type) != basicKind(in.Type) {
			if st.sim.strict {
				return fmt.Errorf("%w: %s at local %d, but %s is declared as %s",
					ErrLocalVariableMismatch, in.Raw, in.Local, info.Name, info.Type.Human())
			}
			info = nil
		} else {
			localType = info.Type
		}
	}
	st.insn.Local = in.Local
	st.insn.LocalInfo = info

	switch in.Opcode {
	case bytecode.OpIload:
		t, err := st.f.Locals().Get(in.Local)
		if err != nil {
			return err
		}
		if !frame.IsPossiblyAssignableFrom(in.Type, t) {
			return mismatch("local %d holds %s, %s expects %s", in.Local, t.Human(), in.Raw, in.Type.Human())
		}
		st.insn.Args = []*jtype.Type{t}
		st.push(t)
	case bytecode.OpRet:
		t, err := st.f.Locals().Get(in.Local)
		if err != nil {
			return err
		}
		if !t.IsReturnAddress() {
			return mismatch("ret through local %d holding %s", in.Local, t.Human())
		}
		st.insn.Args = []*jtype.Type{t}
	case bytecode.OpIstore:
		if err := st.popArgs(in.Type); err != nil {
			return err
		}
		return st.storeTo(localType, st.insn.Args[0])
	case bytecode.OpIinc:
		t, err := st.f.Locals().Get(in.Local)
		if err != nil {
			return err
		}
		if !frame.IsPossiblyAssignableFrom(jtype.Int, t) {
			return mismatch("iinc of local %d holding %s", in.Local, t.Human())
		}
		st.insn.Args = []*jtype.Type{t}
		return st.storeTo(localType, jtype.Int)
	default:
		return fmt.Errorf("%w %s", ErrInvalidOpcode, in.Raw)
	}
	return nil
}

// storeTo records a store of a value of type result into a local declared
// (or implied) to be localType. An Object local takes the more specific
// type of the value.
func (st *step) storeTo(localType, result *jtype.Type) error {
	target := localType
	if localType != result {
		if !frame.IsPossiblyAssignableFrom(localType, result) {
			return fmt.Errorf("%w: attempt to set or access a value of type %s using a local variable of type %s",
				ErrLocalVariableMismatch, result.Human(), localType.Human())
		}
		if localType == jtype.Object {
			target = result
		}
	}
	st.insn.Results = []*jtype.Type{target}
	st.insn.Store = true
	return nil
}

func (st *step) constant() error {
	in := st.in
	switch in.Opcode {
	case bytecode.OpAconstNull, bytecode.OpLdc, bytecode.OpLdc2W:
		st.push(in.Constant.Type())
		return nil
	case bytecode.OpGetstatic, bytecode.OpGetfield, bytecode.OpPutstatic, bytecode.OpPutfield:
		return st.field()
	case bytecode.OpInvokevirtual, bytecode.OpInvokespecial, bytecode.OpInvokestatic, bytecode.OpInvokeinterface:
		return st.invoke()
	case bytecode.OpInvokedynamic:
		cs, ok := in.Constant.(bytecode.CallSite)
		if !ok {
			return badOperand(in)
		}
		if err := st.popArgs(cs.Proto.Parameters()...); err != nil {
			return err
		}
		st.pushReturn(cs.Proto.ReturnType())
		return nil
	}

	cc, ok := in.Constant.(bytecode.ClassConst)
	if !ok {
		return badOperand(in)
	}
	class := cc.ClassType()
	switch in.Opcode {
	case bytecode.OpNew:
		if class.IsArray() {
			return mismatch("new of array type %s", class.Human())
		}
		u, err := jtype.AsUninitialized(class, in.Offset)
		if err != nil {
			return err
		}
		st.push(u)
	case bytecode.OpAnewarray:
		if err := st.popArgs(jtype.Int); err != nil {
			return err
		}
		arr, err := jtype.ArrayOf(class)
		if err != nil {
			return err
		}
		st.push(arr)
	case bytecode.OpCheckcast:
		if err := st.popArgs(jtype.Object); err != nil {
			return err
		}
		st.push(class)
	case bytecode.OpInstanceof:
		if err := st.popArgs(jtype.Object); err != nil {
			return err
		}
		st.push(jtype.Int)
	case bytecode.OpMultianewarray:
		if !class.IsArray() {
			return mismatch("multianewarray of non-array type %s", class.Human())
		}
		dims := jtype.InternInts(jtype.Void, in.Value)
		if err := st.popArgs(dims.Parameters()...); err != nil {
			return err
		}
		st.push(class)
	default:
		return fmt.Errorf("%w %s", ErrInvalidOpcode, in.Raw)
	}
	return nil
}

func badOperand(in *bytecode.Instruction) error {
	return fmt.Errorf("%w: %s with operand %v", bytecode.ErrBadConstant, in.Raw, in.Constant)
}

func (st *step) pushReturn(t *jtype.Type) {
	if t != jtype.Void {
		st.push(t)
	}
}

func (st *step) field() error {
	in := st.in
	ref, ok := in.Constant.(bytecode.FieldRef)
	if !ok {
		return badOperand(in)
	}
	var err error
	switch in.Opcode {
	case bytecode.OpGetstatic:
		st.push(ref.FieldType)
	case bytecode.OpGetfield:
		if err = st.popArgs(jtype.Object); err == nil {
			st.push(ref.FieldType)
		}
	case bytecode.OpPutstatic:
		err = st.popArgs(ref.FieldType)
	case bytecode.OpPutfield:
		err = st.popArgs(jtype.Object, ref.FieldType)
	}
	return err
}

func (st *step) invoke() error {
	in := st.in
	ref, ok := in.Constant.(bytecode.MethodRef)
	if !ok {
		return badOperand(in)
	}
	proto := ref.Prototype(in.Opcode == bytecode.OpInvokestatic)
	if err := st.popArgs(proto.Parameters()...); err != nil {
		return err
	}
	if in.Opcode == bytecode.OpInvokespecial && ref.IsConstructor() {
		recv := st.insn.Args[0]
		if !recv.IsUninitialized() {
			return mismatch("constructor %s invoked on initialized %s", ref, recv.Human())
		}
		if err := st.f.MakeInitialized(recv); err != nil {
			return err
		}
	}
	st.pushReturn(ref.Proto.ReturnType())
	return nil
}

func (st *step) branch() error {
	switch op := st.in.Opcode; op {
	case bytecode.OpIfeq, bytecode.OpIfne, bytecode.OpIflt, bytecode.OpIfge, bytecode.OpIfgt, bytecode.OpIfle:
		return st.popArgs(jtype.Int)
	case bytecode.OpIfIcmpeq, bytecode.OpIfIcmpne, bytecode.OpIfIcmplt, bytecode.OpIfIcmpge,
		bytecode.OpIfIcmpgt, bytecode.OpIfIcmple:
		return st.popArgs(jtype.Int, jtype.Int)
	case bytecode.OpIfAcmpeq, bytecode.OpIfAcmpne:
		return st.popArgs(jtype.Object, jtype.Object)
	case bytecode.OpIfnull, bytecode.OpIfnonnull:
		return st.popArgs(jtype.Object)
	case bytecode.OpGoto:
		return nil
	case bytecode.OpJsr:
		st.push(jtype.ReturnAddress)
		return nil
	default:
		return fmt.Errorf("%w %s", ErrInvalidOpcode, st.in.Raw)
	}
}

func (st *step) newArray() error {
	if err := st.popArgs(jtype.Int); err != nil {
		return err
	}
	st.push(st.in.Type)
	return nil
}
