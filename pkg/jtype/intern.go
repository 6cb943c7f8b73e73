package jtype

import (
	"fmt"
	"strings"
	"sync"
)

// internTable is shared by every simulation running in the process.
var internTable = struct {
	sync.RWMutex
	types map[string]*Type
}{types: make(map[string]*Type, 1000)}

func lookup(descriptor string) *Type {
	internTable.RLock()
	t := internTable.types[descriptor]
	internTable.RUnlock()
	return t
}

// putIntern stores t unless a type with the same descriptor is already
// present, in which case the existing one wins.
func putIntern(t *Type) *Type {
	internTable.Lock()
	defer internTable.Unlock()
	if existing, ok := internTable.types[t.descriptor]; ok {
		return existing
	}
	internTable.types[t.descriptor] = t
	return t
}

func primitive(desc string, kind Kind) *Type {
	return putIntern(&Type{descriptor: desc, kind: kind, newAt: NotUninitialized})
}

func class(name string) *Type {
	return putIntern(&Type{
		descriptor: "L" + name + ";",
		kind:       KindObject,
		className:  name,
		newAt:      NotUninitialized,
	})
}

func mustArray(t *Type) *Type {
	a, err := ArrayOf(t)
	if err != nil {
		panic(err)
	}
	return a
}

// Primitive types, populated before any dynamic interning.
var (
	Boolean = primitive("Z", KindBoolean)
	Byte    = primitive("B", KindByte)
	Char    = primitive("C", KindChar)
	Double  = primitive("D", KindDouble)
	Float   = primitive("F", KindFloat)
	Int     = primitive("I", KindInt)
	Long    = primitive("J", KindLong)
	Short   = primitive("S", KindShort)
	Void    = primitive("V", KindVoid)
)

// Synthetic lattice members. Their descriptors cannot be produced by Intern.
var (
	KnownNull = putIntern(&Type{
		descriptor: "<null>",
		kind:       KindObject,
		variant:    variantKnownNull,
		newAt:      NotUninitialized,
	})
	ReturnAddress = putIntern(&Type{
		descriptor: "<addr>",
		kind:       KindAddr,
		variant:    variantReturnAddress,
		newAt:      NotUninitialized,
	})
)

// Frequently used class and array types.
var (
	Object       = class("java/lang/Object")
	String       = class("java/lang/String")
	Class        = class("java/lang/Class")
	Throwable    = class("java/lang/Throwable")
	Cloneable    = class("java/lang/Cloneable")
	Serializable = class("java/io/Serializable")
	MethodHandle = class("java/lang/invoke/MethodHandle")
	MethodType   = class("java/lang/invoke/MethodType")

	BooleanArray = mustArray(Boolean)
	ByteArray    = mustArray(Byte)
	CharArray    = mustArray(Char)
	DoubleArray  = mustArray(Double)
	FloatArray   = mustArray(Float)
	IntArray     = mustArray(Int)
	LongArray    = mustArray(Long)
	ShortArray   = mustArray(Short)
	ObjectArray  = mustArray(Object)
)

var primitivesByCode = map[byte]*Type{
	'Z': Boolean,
	'B': Byte,
	'C': Char,
	'D': Double,
	'F': Float,
	'I': Int,
	'J': Long,
	'S': Short,
}

func malformed(descriptor, why string) error {
	return fmt.Errorf("%w: %q: %s", ErrMalformedDescriptor, descriptor, why)
}

// Intern returns the unique Type for a field descriptor. Void is rejected.
func Intern(descriptor string) (*Type, error) {
	if descriptor == "V" {
		return nil, malformed(descriptor, "void is not a value type")
	}
	return intern(descriptor)
}

// InternReturnType is Intern, except that "V" yields Void.
func InternReturnType(descriptor string) (*Type, error) {
	if descriptor == "V" {
		return Void, nil
	}
	return intern(descriptor)
}

// InternClassName interns the class type for an internal name such as
// java/lang/String. Names starting with '[' are taken as array descriptors.
func InternClassName(name string) (*Type, error) {
	if strings.HasPrefix(name, "[") {
		return Intern(name)
	}
	return Intern("L" + name + ";")
}

// MustIntern is Intern for descriptors known to be valid.
func MustIntern(descriptor string) *Type {
	t, err := Intern(descriptor)
	if err != nil {
		panic(err)
	}
	return t
}

func intern(descriptor string) (*Type, error) {
	if descriptor == "" {
		return nil, malformed(descriptor, "empty")
	}

	switch c := descriptor[0]; c {
	case '[':
		if descriptor == "[" || descriptor[1] == 'V' {
			return nil, malformed(descriptor, "bad array component")
		}
		component, err := intern(descriptor[1:])
		if err != nil {
			return nil, malformed(descriptor, "bad array component")
		}
		return ArrayOf(component)
	case 'L':
		if t := lookup(descriptor); t != nil {
			return t, nil
		}
		if !strings.HasSuffix(descriptor, ";") {
			return nil, malformed(descriptor, "missing ';'")
		}
		name := descriptor[1 : len(descriptor)-1]
		if !ValidClassName(name) {
			return nil, malformed(descriptor, "invalid class name")
		}
		return class(name), nil
	default:
		if len(descriptor) == 1 {
			if t, ok := primitivesByCode[c]; ok {
				return t, nil
			}
		}
		return nil, malformed(descriptor, "unknown type code")
	}
}

// ValidClassName reports whether name is a usable internal class name: not
// empty, none of "[;.()", and no empty path segments.
func ValidClassName(name string) bool {
	if name == "" || name[0] == '/' || name[len(name)-1] == '/' {
		return false
	}
	prevSlash := false
	for i := 0; i < len(name); i++ {
		switch name[i] {
		case '[', ';', '.', '(', ')':
			return false
		case '/':
			if prevSlash {
				return false
			}
			prevSlash = true
		default:
			prevSlash = false
		}
	}
	return true
}
