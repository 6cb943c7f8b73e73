package jtype

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

var (
	ErrMalformedDescriptor  = errors.New("malformed descriptor")
	ErrNotAnArray           = errors.New("not an array type")
	ErrNotAReference        = errors.New("not a reference type")
	ErrAlreadyUninitialized = errors.New("already uninitialized")
	ErrNotUninitialized     = errors.New("not an uninitialized type")
)

// ---------------------------------------------------------------------------
// Kind
// ---------------------------------------------------------------------------

// Kind is the basic kind of a type.
type Kind uint8

const (
	KindVoid Kind = iota
	KindBoolean
	KindByte
	KindChar
	KindDouble
	KindFloat
	KindInt
	KindLong
	KindShort
	KindObject
	KindAddr // return address pushed by jsr
)

var kindNames = [...]string{
	KindVoid:    "void",
	KindBoolean: "boolean",
	KindByte:    "byte",
	KindChar:    "char",
	KindDouble:  "double",
	KindFloat:   "float",
	KindInt:     "int",
	KindLong:    "long",
	KindShort:   "short",
	KindObject:  "object",
	KindAddr:    "return-address",
}

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// ---------------------------------------------------------------------------
// Type
// ---------------------------------------------------------------------------

// variant separates ordinary descriptor types from the synthetic members of
// the lattice. Predicates compare the variant tag, never pointer identity.
type variant uint8

const (
	variantPlain variant = iota
	variantKnownNull
	variantReturnAddress
	variantUninitialized
)

// NotUninitialized is the new-at marker of an initialized type.
const NotUninitialized = -1

// Incoming marks the uninitialized "this" a constructor receives; it is not
// tied to an allocation instruction in the method being simulated.
const Incoming = -2

// Type is an interned, immutable value-type descriptor. Two Types with the
// same descriptor are the same pointer, so == is type equality.
type Type struct {
	descriptor string
	kind       Kind
	variant    variant
	className  string // internal name for plain class types, "" otherwise
	newAt      int

	component   *Type // set for arrays
	initialized *Type // set for uninitialized types

	array atomic.Pointer[Type]
}

// Descriptor returns the canonical descriptor string.
func (t *Type) Descriptor() string { return t.descriptor }

// String returns the descriptor.
func (t *Type) String() string { return t.descriptor }

// Kind returns the basic kind.
func (t *Type) Kind() Kind { return t.kind }

// ClassName returns the internal class name (java/lang/String) of a class
// type or of an uninitialized class type, or "" for anything else.
func (t *Type) ClassName() string { return t.className }

// NewAt returns the allocation offset of an uninitialized type. ok is false
// for initialized types. The offset is Incoming for a constructor's receiver.
func (t *Type) NewAt() (offset int, ok bool) {
	if t.variant != variantUninitialized {
		return NotUninitialized, false
	}
	return t.newAt, true
}

// Category returns the number of stack or local slots a value occupies.
func (t *Type) Category() int {
	if t.kind == KindLong || t.kind == KindDouble {
		return 2
	}
	return 1
}

func (t *Type) IsCategory1() bool { return t.Category() == 1 }
func (t *Type) IsCategory2() bool { return t.Category() == 2 }

// IsPrimitive reports whether t is one of the primitive types, void included.
func (t *Type) IsPrimitive() bool {
	return t.kind != KindObject && t.kind != KindAddr
}

// IsReference reports whether t is an object type: classes, arrays, known
// null and uninitialized objects. Return addresses are not references.
func (t *Type) IsReference() bool { return t.kind == KindObject }

func (t *Type) IsArray() bool { return t.component != nil }

func (t *Type) IsKnownNull() bool { return t.variant == variantKnownNull }

func (t *Type) IsReturnAddress() bool { return t.variant == variantReturnAddress }

func (t *Type) IsUninitialized() bool { return t.variant == variantUninitialized }

// IsArrayOrKnownNull reports whether t can be the receiver of an array
// operation.
func (t *Type) IsArrayOrKnownNull() bool { return t.IsArray() || t.IsKnownNull() }

// IsIntlike reports whether t collapses to int on the stack.
func (t *Type) IsIntlike() bool {
	switch t.kind {
	case KindBoolean, KindByte, KindChar, KindShort, KindInt:
		return true
	}
	return false
}

// FrameType returns the type a value of t has once it is on the stack or in
// a local.
func (t *Type) FrameType() *Type {
	if t.IsIntlike() {
		return Int
	}
	return t
}

// FrameType is the function form of (*Type).FrameType.
func FrameType(t *Type) *Type { return t.FrameType() }

// ComponentType returns the element type of an array type.
func (t *Type) ComponentType() (*Type, error) {
	if t.component == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotAnArray, t.Human())
	}
	return t.component, nil
}

// InitializedType returns the type an uninitialized type becomes once its
// constructor has run.
func (t *Type) InitializedType() (*Type, error) {
	if t.initialized == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotUninitialized, t.Human())
	}
	return t.initialized, nil
}

// Human returns the Java-source spelling of the type.
func (t *Type) Human() string {
	switch t.variant {
	case variantKnownNull, variantReturnAddress:
		return t.descriptor
	case variantUninitialized:
		if t.newAt == Incoming {
			return "<init>" + t.initialized.Human()
		}
		return fmt.Sprintf("N%04x%s", t.newAt, t.initialized.Human())
	}
	if t.component != nil {
		return t.component.Human() + "[]"
	}
	if t.className != "" {
		return strings.ReplaceAll(t.className, "/", ".")
	}
	return t.kind.String()
}

// ComponentOf returns the element type of array type t.
func ComponentOf(t *Type) (*Type, error) { return t.ComponentType() }

// ArrayOf returns the array type whose elements are t.
func ArrayOf(t *Type) (*Type, error) {
	if a := t.array.Load(); a != nil {
		return a, nil
	}
	if t.kind == KindVoid || t.variant != variantPlain {
		return nil, fmt.Errorf("%w: no array of %s", ErrMalformedDescriptor, t.Human())
	}
	a := putIntern(&Type{
		descriptor: "[" + t.descriptor,
		kind:       KindObject,
		newAt:      NotUninitialized,
		component:  t,
	})
	t.array.Store(a)
	return a, nil
}

// AsUninitialized returns the uninitialized counterpart of class type t
// allocated at offset newAt (or Incoming).
func AsUninitialized(t *Type, newAt int) (*Type, error) {
	if t.IsUninitialized() {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyUninitialized, t.Human())
	}
	if t.kind != KindObject || t.variant != variantPlain {
		return nil, fmt.Errorf("%w: %s", ErrNotAReference, t.Human())
	}
	if newAt < 0 && newAt != Incoming {
		return nil, fmt.Errorf("invalid allocation offset %d", newAt)
	}

	var desc string
	if newAt == Incoming {
		desc = "<init>" + t.descriptor
	} else {
		desc = fmt.Sprintf("N%04x%s", newAt, t.descriptor)
	}
	if u := lookup(desc); u != nil {
		return u, nil
	}
	return putIntern(&Type{
		descriptor:  desc,
		kind:        KindObject,
		variant:     variantUninitialized,
		className:   t.className,
		newAt:       newAt,
		initialized: t,
	}), nil
}
