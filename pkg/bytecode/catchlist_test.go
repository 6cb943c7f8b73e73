package bytecode

import (
	"errors"
	"testing"

	"github.com/chazu/typeflow/pkg/jtype"
)

var (
	ioException  = jtype.MustIntern("Ljava/io/IOException;")
	rtException  = jtype.MustIntern("Ljava/lang/RuntimeException;")
	npeException = jtype.MustIntern("Ljava/lang/NullPointerException;")
)

func mustCatchList(t *testing.T, hs ...Handler) *CatchList {
	t.Helper()
	l, err := NewCatchList(hs)
	if err != nil {
		t.Fatalf("NewCatchList: %v", err)
	}
	return l
}

func handlerPCs(l *CatchList) []int {
	pcs, _ := l.TargetList(-1)
	return pcs
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestListForDeduplicates(t *testing.T) {
	l := mustCatchList(t,
		Handler{Start: 0, End: 10, HandlerPC: 100, Type: ioException},
		Handler{Start: 0, End: 10, HandlerPC: 200, Type: ioException},
		Handler{Start: 0, End: 10, HandlerPC: 300, Type: jtype.Object},
	)
	got := l.ListFor(5)
	if pcs := handlerPCs(got); !equalInts(pcs, []int{100, 300}) {
		t.Errorf("ListFor(5) = %v, want [100 300]", pcs)
	}
	if !got.CatchesAll() {
		t.Error("ListFor(5).CatchesAll() = false")
	}
}

func TestListForCatchAllShadowsLater(t *testing.T) {
	l := mustCatchList(t,
		Handler{Start: 0, End: 20, HandlerPC: 50, Type: npeException},
		Handler{Start: 0, End: 20, HandlerPC: 60},
		Handler{Start: 0, End: 20, HandlerPC: 70, Type: rtException},
		Handler{Start: 0, End: 20, HandlerPC: 80},
	)
	if pcs := handlerPCs(l.ListFor(3)); !equalInts(pcs, []int{50, 60}) {
		t.Errorf("ListFor(3) = %v, want [50 60]", pcs)
	}
}

func TestListForKeepsUnrelatedTypes(t *testing.T) {
	// No hierarchy knowledge: a subclass after its superclass is kept.
	l := mustCatchList(t,
		Handler{Start: 0, End: 20, HandlerPC: 50, Type: rtException},
		Handler{Start: 0, End: 20, HandlerPC: 60, Type: npeException},
	)
	if pcs := handlerPCs(l.ListFor(0)); !equalInts(pcs, []int{50, 60}) {
		t.Errorf("ListFor(0) = %v, want [50 60]", pcs)
	}
}

func TestListForRanges(t *testing.T) {
	l := mustCatchList(t,
		Handler{Start: 0, End: 10, HandlerPC: 100, Type: ioException},
		Handler{Start: 5, End: 15, HandlerPC: 200, Type: rtException},
		Handler{Start: 20, End: 20, HandlerPC: 300},
	)
	tests := []struct {
		pc   int
		want []int
	}{
		{0, []int{100}},
		{5, []int{100, 200}},
		{9, []int{100, 200}},
		{10, []int{200}},
		{15, []int{}},
		{20, []int{}},
	}
	for _, tt := range tests {
		got := l.ListFor(tt.pc)
		if pcs := handlerPCs(got); !equalInts(pcs, tt.want) {
			t.Errorf("ListFor(%d) = %v, want %v", tt.pc, pcs, tt.want)
		}
	}
	if l.ListFor(17) != EmptyCatchList {
		t.Error("uncovered pc should yield EmptyCatchList")
	}
}

func TestTargetList(t *testing.T) {
	empty := mustCatchList(t)
	got, err := empty.TargetList(7)
	if err != nil || !equalInts(got, []int{7}) {
		t.Errorf("TargetList(7) = %v, %v, want [7]", got, err)
	}
	got, err = empty.TargetList(-1)
	if err != nil || len(got) != 0 {
		t.Errorf("TargetList(-1) = %v, %v, want []", got, err)
	}
	if _, err := empty.TargetList(-2); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("TargetList(-2) err = %v, want ErrInvalidArgument", err)
	}

	l := mustCatchList(t,
		Handler{Start: 0, End: 4, HandlerPC: 10, Type: ioException},
		Handler{Start: 0, End: 4, HandlerPC: 12},
	)
	got, err = l.TargetList(4)
	if err != nil || !equalInts(got, []int{10, 12, 4}) {
		t.Errorf("TargetList(4) = %v, %v, want [10 12 4]", got, err)
	}
}

func TestExceptionTypes(t *testing.T) {
	l := mustCatchList(t,
		Handler{Start: 0, End: 4, HandlerPC: 10, Type: ioException},
		Handler{Start: 0, End: 4, HandlerPC: 12},
	)
	types := l.ExceptionTypes()
	if len(types) != 2 || types[0] != ioException || types[1] != jtype.Object {
		t.Errorf("ExceptionTypes() = %v", types)
	}
	if l.ByteLength() != 18 {
		t.Errorf("ByteLength() = %d, want 18", l.ByteLength())
	}
	if EmptyCatchList.ByteLength() != 2 {
		t.Errorf("empty ByteLength() = %d, want 2", EmptyCatchList.ByteLength())
	}
}

func TestNewCatchListValidation(t *testing.T) {
	bad := []Handler{
		{Start: -1, End: 4, HandlerPC: 10},
		{Start: 5, End: 4, HandlerPC: 10},
		{Start: 0, End: 4, HandlerPC: -3},
		{Start: 0, End: 4, HandlerPC: 10, Type: jtype.Int},
	}
	for _, h := range bad {
		if _, err := NewCatchList([]Handler{h}); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("NewCatchList(%s) err = %v, want ErrInvalidArgument", h, err)
		}
	}
}

func TestCatchListIsACopy(t *testing.T) {
	hs := []Handler{{Start: 0, End: 4, HandlerPC: 10}}
	l := mustCatchList(t, hs...)
	hs[0].HandlerPC = 99
	if l.Get(0).HandlerPC != 10 {
		t.Error("CatchList aliases its input")
	}
	out := l.Handlers()
	out[0].HandlerPC = 77
	if l.Get(0).HandlerPC != 10 {
		t.Error("Handlers() aliases the list")
	}
}

func TestLocalVariableLookup(t *testing.T) {
	lv := LocalVariableList{
		{Start: 0, Length: 10, Name: "this", Type: jtype.Object, Slot: 0},
		{Start: 2, Length: 5, Name: "s", Type: jtype.String, Slot: 1},
		{Start: 7, Length: 3, Name: "n", Type: jtype.Int, Slot: 1},
	}
	tests := []struct {
		pc, slot int
		want     string
	}{
		{0, 0, "this"},
		{9, 0, "this"},
		{10, 0, ""},
		{1, 1, ""},
		{2, 1, "s"},
		{6, 1, "s"},
		{7, 1, "n"},
		{3, 2, ""},
	}
	for _, tt := range tests {
		got := lv.Lookup(tt.pc, tt.slot)
		name := ""
		if got != nil {
			name = got.Name
		}
		if name != tt.want {
			t.Errorf("Lookup(%d, %d) = %q, want %q", tt.pc, tt.slot, name, tt.want)
		}
	}
	if len(lv.ForSlot(1)) != 2 {
		t.Errorf("ForSlot(1) = %v", lv.ForSlot(1))
	}

	var none LocalVariableList
	if none.Lookup(0, 0) != nil {
		t.Error("nil list Lookup returned an entry")
	}
}
