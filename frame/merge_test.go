package frame

import (
	"errors"
	"testing"

	"github.com/chazu/typeflow/pkg/jtype"
)

func TestIsPossiblyAssignableFrom(t *testing.T) {
	foo := jtype.MustIntern("Lcom/example/Foo;")
	fooArr := jtype.MustIntern("[Lcom/example/Foo;")
	strArr2 := jtype.MustIntern("[[Ljava/lang/String;")
	objArr2 := jtype.MustIntern("[[Ljava/lang/Object;")

	tests := []struct {
		super, sub *jtype.Type
		want       bool
	}{
		{jtype.Int, jtype.Int, true},
		{jtype.Int, jtype.Short, true},
		{jtype.Boolean, jtype.Char, true},
		{jtype.Int, jtype.Long, false},
		{jtype.Float, jtype.Int, false},
		{jtype.Int, jtype.Object, false},
		{jtype.Object, jtype.String, true},
		{jtype.Object, jtype.IntArray, true},
		{foo, jtype.String, true},
		{jtype.String, jtype.KnownNull, true},
		{jtype.IntArray, jtype.KnownNull, true},
		{jtype.KnownNull, jtype.String, false},
		{jtype.IntArray, jtype.String, false},
		{jtype.IntArray, jtype.LongArray, false},
		{fooArr, jtype.ObjectArray, true},
		{objArr2, strArr2, true},
		{jtype.ObjectArray, strArr2, true},
		{jtype.Serializable, jtype.IntArray, true},
		{jtype.Cloneable, fooArr, true},
		{jtype.String, fooArr, false},
		{jtype.ReturnAddress, jtype.String, true},
		{jtype.Object, jtype.ReturnAddress, true},
		{jtype.Int, jtype.ReturnAddress, false},
	}
	for _, tt := range tests {
		if got := IsPossiblyAssignableFrom(tt.super, tt.sub); got != tt.want {
			t.Errorf("IsPossiblyAssignableFrom(%s, %s) = %v, want %v", tt.super, tt.sub, got, tt.want)
		}
	}
}

func TestMergeType(t *testing.T) {
	foo := jtype.MustIntern("Lcom/example/Foo;")
	u1, _ := jtype.AsUninitialized(foo, 1)
	u2, _ := jtype.AsUninitialized(foo, 2)

	tests := []struct {
		a, b, want *jtype.Type
	}{
		{jtype.Int, jtype.Int, jtype.Int},
		{jtype.Boolean, jtype.Short, jtype.Int},
		{jtype.Int, jtype.Float, nil},
		{jtype.Long, jtype.Double, nil},
		{jtype.String, jtype.KnownNull, jtype.String},
		{jtype.KnownNull, foo, foo},
		{jtype.String, foo, jtype.Object},
		{jtype.IntArray, jtype.LongArray, jtype.Object},
		{jtype.ByteArray, jtype.ShortArray, jtype.IntArray},
		{jtype.MustIntern("[Ljava/lang/String;"), jtype.MustIntern("[Lcom/example/Foo;"), jtype.ObjectArray},
		{jtype.Int, jtype.String, nil},
		{jtype.Int, nil, nil},
		{nil, jtype.Int, nil},
		{u1, u1, u1},
		{u1, u2, nil},
		{u1, foo, nil},
		{u1, jtype.KnownNull, nil},
	}
	for _, tt := range tests {
		if got := MergeType(tt.a, tt.b); got != tt.want {
			t.Errorf("MergeType(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestMergeFramesUnchanged(t *testing.T) {
	a := mustNew(t, 2, 2)
	a.Locals().Set(0, jtype.String)
	mustPush(t, a.Stack(), jtype.Int)
	b := a.Copy()
	b.Locals().Set(1, jtype.Int) // undefined in a: stays undefined

	got, err := MergeFrames(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if got != a {
		t.Error("merge with no changes returned a new frame")
	}
}

func TestMergeFramesChanged(t *testing.T) {
	a := mustNew(t, 3, 2)
	a.Locals().Set(0, jtype.String)
	a.Locals().Set(1, jtype.Int)
	a.Locals().Set(2, jtype.Float)
	mustPush(t, a.Stack(), jtype.KnownNull)

	b := mustNew(t, 3, 2)
	b.Locals().Set(0, jtype.MustIntern("Lcom/example/Foo;"))
	b.Locals().Set(1, jtype.Int)
	b.Locals().Set(2, jtype.Int)
	mustPush(t, b.Stack(), jtype.IntArray)

	got, err := MergeFrames(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if got == a {
		t.Fatal("merge returned the underlay unchanged")
	}
	if l := got.Locals(); l.GetOrNil(0) != jtype.Object || l.GetOrNil(1) != jtype.Int || l.GetOrNil(2) != nil {
		t.Errorf("merged locals = %s", l)
	}
	if top, _ := got.Stack().Peek(0); top != jtype.IntArray {
		t.Errorf("merged top = %s", top)
	}
	if !got.IsImmutable() {
		t.Error("merged frame is mutable")
	}
}

func TestMergeFramesDepthMismatch(t *testing.T) {
	a := mustNew(t, 0, 4)
	mustPush(t, a.Stack(), jtype.Int, jtype.Int)
	b := mustNew(t, 0, 4)
	mustPush(t, b.Stack(), jtype.Int, jtype.Int, jtype.Int)

	_, err := MergeFrames(a, b)
	if !errors.Is(err, ErrFrameMergeMismatch) {
		t.Fatalf("err = %v, want ErrFrameMergeMismatch", err)
	}
	var ce *ContextError
	if !errors.As(err, &ce) || len(ce.Context) == 0 {
		t.Error("merge error carries no frame dump")
	}
}

func TestMergeStacksIncompatible(t *testing.T) {
	a := NewStack(2)
	mustPush(t, a, jtype.Int)
	b := NewStack(2)
	mustPush(t, b, jtype.Float)
	if _, err := MergeStacks(a, b); !errors.Is(err, ErrIncompatibleMerge) {
		t.Errorf("err = %v, want ErrIncompatibleMerge", err)
	}

	// Same depth, different shapes.
	c := NewStack(2)
	mustPush(t, c, jtype.Long)
	d := NewStack(2)
	mustPush(t, d, jtype.Int, jtype.Int)
	if _, err := MergeStacks(c, d); !errors.Is(err, ErrIncompatibleMerge) {
		t.Errorf("long vs int,int err = %v", err)
	}
}

func TestMergeLocalsMaxMismatch(t *testing.T) {
	if _, err := MergeLocals(NewLocals(1), NewLocals(2)); !errors.Is(err, ErrFrameMergeMismatch) {
		t.Errorf("err = %v", err)
	}
}
