package bytecode

import (
	"fmt"
	"strconv"

	"github.com/chazu/typeflow/pkg/jtype"
)

// Constant is an already-resolved constant-pool entry or inline literal.
// Type is the type a value of the constant has once loaded: the pushed type
// for literals, the field type for field references, the return type for
// method references and call sites.
type Constant interface {
	Type() *jtype.Type
	String() string
}

// ConstantPool resolves constant-pool indices. Parsing the class file that
// backs it is the caller's business.
type ConstantPool interface {
	Get(index int) (Constant, error)
}

// MapPool is a ConstantPool backed by a map.
type MapPool map[int]Constant

// Get returns the constant at index.
func (p MapPool) Get(index int) (Constant, error) {
	c, ok := p[index]
	if !ok {
		return nil, fmt.Errorf("constant pool index %d: no entry", index)
	}
	return c, nil
}

// ---------------------------------------------------------------------------
// Literals
// ---------------------------------------------------------------------------

type IntConst int32

func (IntConst) Type() *jtype.Type { return jtype.Int }
func (c IntConst) String() string  { return strconv.Itoa(int(c)) }

type LongConst int64

func (LongConst) Type() *jtype.Type { return jtype.Long }
func (c LongConst) String() string  { return strconv.FormatInt(int64(c), 10) + "L" }

type FloatConst float32

func (FloatConst) Type() *jtype.Type { return jtype.Float }
func (c FloatConst) String() string  { return strconv.FormatFloat(float64(c), 'g', -1, 32) + "f" }

type DoubleConst float64

func (DoubleConst) Type() *jtype.Type { return jtype.Double }
func (c DoubleConst) String() string  { return strconv.FormatFloat(float64(c), 'g', -1, 64) + "d" }

type StringConst string

func (StringConst) Type() *jtype.Type { return jtype.String }
func (c StringConst) String() string  { return strconv.Quote(string(c)) }

// NullConst is the operand of aconst_null.
type NullConst struct{}

func (NullConst) Type() *jtype.Type { return jtype.KnownNull }
func (NullConst) String() string    { return "null" }

// ---------------------------------------------------------------------------
// Symbolic references
// ---------------------------------------------------------------------------

// ClassConst names a class or array type. Loaded by ldc it is a
// java.lang.Class; as the operand of new, checkcast and friends it is the
// named type itself (see ClassType).
type ClassConst struct {
	Class *jtype.Type
}

func (ClassConst) Type() *jtype.Type        { return jtype.Class }
func (c ClassConst) String() string         { return c.Class.Human() + ".class" }
func (c ClassConst) ClassType() *jtype.Type { return c.Class }

// FieldRef is a resolved field reference.
type FieldRef struct {
	Class     *jtype.Type
	Name      string
	FieldType *jtype.Type
}

func (c FieldRef) Type() *jtype.Type { return c.FieldType }
func (c FieldRef) String() string {
	return c.Class.Human() + "." + c.Name + ":" + c.FieldType.Descriptor()
}

// MethodRef is a resolved method reference.
type MethodRef struct {
	Class     *jtype.Type
	Name      string
	Proto     *jtype.Prototype
	Interface bool
}

func (c MethodRef) Type() *jtype.Type { return c.Proto.ReturnType() }
func (c MethodRef) String() string {
	return c.Class.Human() + "." + c.Name + c.Proto.Descriptor()
}

// IsConstructor reports whether the reference names an instance
// initializer.
func (c MethodRef) IsConstructor() bool { return c.Name == "<init>" }

// Prototype returns the prototype the caller's arguments must match. For
// instance methods the receiver, typed as the defining class, comes first.
func (c MethodRef) Prototype(static bool) *jtype.Prototype {
	if static {
		return c.Proto
	}
	return c.Proto.WithFirstParameter(c.Class)
}

// CallSite is the resolved operand of invokedynamic.
type CallSite struct {
	Name  string
	Proto *jtype.Prototype
}

func (c CallSite) Type() *jtype.Type { return c.Proto.ReturnType() }
func (c CallSite) String() string    { return "callsite " + c.Name + c.Proto.Descriptor() }

// MethodHandleConst is a java.lang.invoke.MethodHandle constant.
type MethodHandleConst struct {
	Kind int
	Ref  Constant
}

func (MethodHandleConst) Type() *jtype.Type { return jtype.MethodHandle }
func (c MethodHandleConst) String() string  { return fmt.Sprintf("handle(%d) %s", c.Kind, c.Ref) }

// MethodTypeConst is a java.lang.invoke.MethodType constant.
type MethodTypeConst struct {
	Proto *jtype.Prototype
}

func (MethodTypeConst) Type() *jtype.Type { return jtype.MethodType }
func (c MethodTypeConst) String() string  { return "methodtype " + c.Proto.Descriptor() }
