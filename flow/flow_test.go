package flow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/chazu/typeflow/frame"
	"github.com/chazu/typeflow/machine"
	"github.com/chazu/typeflow/pkg/bytecode"
	"github.com/chazu/typeflow/pkg/jtype"
	"github.com/chazu/typeflow/sim"
)

const fooClass = "com/example/Foo"

func method(t *testing.T, name, desc string, static bool, maxLocals, maxStack int,
	raw []byte, pool bytecode.MapPool, handlers ...bytecode.Handler) *Method {
	t.Helper()
	catches, err := bytecode.NewCatchList(handlers)
	if err != nil {
		t.Fatal(err)
	}
	return &Method{
		Class:      fooClass,
		Name:       name,
		Descriptor: desc,
		Static:     static,
		MaxStack:   maxStack,
		MaxLocals:  maxLocals,
		Code:       bytecode.NewCode(raw, pool),
		Handlers:   catches,
	}
}

// choose returns 1 if its argument is nonzero, else 0.
var chooseCode = []byte{
	0x1a,             // 0: iload_0
	0x99, 0x00, 0x07, // 1: ifeq 8
	0x04,             // 4: iconst_1
	0xa7, 0x00, 0x04, // 5: goto 9
	0x03,             // 8: iconst_0
	0xac,             // 9: ireturn
}

func TestFindBlocks(t *testing.T) {
	blocks, err := FindBlocks(bytecode.NewCode(chooseCode, nil), nil)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		start, end int
		succ       []int
	}{
		{0, 4, []int{8, 4}},
		{4, 8, []int{9}},
		{8, 9, []int{9}},
		{9, 10, nil},
	}
	if len(blocks) != len(tests) {
		t.Fatalf("found %d blocks, want %d: %v", len(blocks), len(tests), blocks)
	}
	for i, tt := range tests {
		b := blocks[i]
		if b.Start != tt.start || b.End != tt.end {
			t.Errorf("block %d = [%04x, %04x), want [%04x, %04x)", i, b.Start, b.End, tt.start, tt.end)
		}
		if len(b.Successors) != len(tt.succ) {
			t.Errorf("block %04x successors = %v, want %v", b.Start, b.Successors, tt.succ)
			continue
		}
		for j := range tt.succ {
			if b.Successors[j] != tt.succ[j] {
				t.Errorf("block %04x successors = %v, want %v", b.Start, b.Successors, tt.succ)
				break
			}
		}
	}
}

func TestFindBlocksErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want error
	}{
		{"branch past end", []byte{0xa7, 0x00, 0x64}, bytecode.ErrBadOperand},
		{"branch into operand", []byte{0x10, 0x05, 0xa7, 0xff, 0xff, 0xb1}, ErrInvalidTarget},
		{"falls off end", []byte{0x03}, ErrFallOffEnd},
		{"jsr", []byte{0xa8, 0x00, 0x04, 0xb1, 0x4c, 0xa9, 0x01}, ErrUnsupported},
		{"empty", nil, ErrNoCode},
	}
	for _, tt := range tests {
		_, err := FindBlocks(bytecode.NewCode(tt.raw, nil), nil)
		if !errors.Is(err, tt.want) {
			t.Errorf("%s: err = %v, want %v", tt.name, err, tt.want)
		}
	}
}

func TestAnalyzeJoin(t *testing.T) {
	m := method(t, "choose", "(I)I", true, 1, 1, chooseCode, nil)
	res, err := Analyze(context.Background(), m, Options{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	join := res.Block(9)
	if join == nil || join.Frame == nil {
		t.Fatal("join block not reached")
	}
	if top, _ := join.Frame.Stack().Peek(0); top != jtype.Int {
		t.Errorf("join top = %v", top)
	}
	if !join.Frame.IsImmutable() {
		t.Error("recorded start frame is mutable")
	}
	if res.Recorder.Len() != 6 {
		t.Errorf("recorded %d instructions, want 6", res.Recorder.Len())
	}
}

func TestAnalyzeDepthMismatch(t *testing.T) {
	raw := []byte{
		0x03,             // 0: iconst_0
		0x03,             // 1: iconst_0
		0x1a,             // 2: iload_0
		0x99, 0x00, 0x07, // 3: ifeq 10 (depth 2)
		0x03,             // 6: iconst_0
		0xa7, 0x00, 0x03, // 7: goto 10 (depth 3)
		0xb1,             // 10: return
	}
	m := method(t, "uneven", "(I)V", true, 1, 3, raw, nil)
	_, err := Analyze(context.Background(), m, Options{})
	if !errors.Is(err, sim.ErrFrameMergeMismatch) {
		t.Fatalf("err = %v, want FrameMergeMismatch", err)
	}
	if !strings.Contains(err.Error(), "while merging block 0006 into 000a") {
		t.Errorf("error lacks block context: %v", err)
	}
}

func TestAnalyzeLoopWidensLocal(t *testing.T) {
	raw := []byte{
		0x01,             // 0: aconst_null
		0x4c,             // 1: astore_1
		0x2b,             // 2: aload_1
		0xc7, 0x00, 0x08, // 3: ifnonnull 11
		0x2a,             // 6: aload_0
		0x4c,             // 7: astore_1
		0xa7, 0xff, 0xfa, // 8: goto 2
		0xb1,             // 11: return
	}
	m := method(t, "loop", "(Ljava/lang/String;)V", true, 2, 1, raw, nil)
	res, err := Analyze(context.Background(), m, Options{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	for _, pc := range []int{2, 6, 11} {
		b := res.Block(pc)
		if got := b.Frame.Locals().GetOrNil(1); got != jtype.String {
			t.Errorf("block %04x local 1 = %v, want String", pc, got)
		}
	}
	if res.Recorder.Len() != 8 {
		t.Errorf("recorded %d instructions, want 8", res.Recorder.Len())
	}
}

func TestAnalyzeExceptionHandler(t *testing.T) {
	ioe := jtype.MustIntern("Ljava/io/IOException;")
	foo := jtype.MustIntern("L" + fooClass + ";")
	pool := bytecode.MapPool{
		1: bytecode.MethodRef{Class: foo, Name: "run", Proto: jtype.MustInternPrototype("()V")},
	}
	raw := []byte{
		0x2a,             // 0: aload_0
		0xb6, 0x00, 0x01, // 1: invokevirtual run
		0xb1,             // 4: return
		0x4c,             // 5: astore_1
		0xb1,             // 6: return
	}
	m := method(t, "guarded", "()V", false, 2, 1, raw, pool,
		bytecode.Handler{Start: 0, End: 4, HandlerPC: 5, Type: ioe})

	res, err := Analyze(context.Background(), m, Options{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if b := res.Block(0); b.Catches.Len() != 1 || len(b.Handlers) != 1 || b.Handlers[0] != 5 {
		t.Errorf("block 0 catches = %s, handlers = %v", b.Catches, b.Handlers)
	}
	h := res.Block(5)
	if h == nil || h.Frame == nil {
		t.Fatal("handler not reached")
	}
	if top, _ := h.Frame.Stack().Peek(0); top != ioe || h.Frame.Stack().Size() != 1 {
		t.Errorf("handler stack = %s", h.Frame.Stack())
	}
	if got := h.Frame.Locals().GetOrNil(0); got != foo {
		t.Errorf("handler local 0 = %v", got)
	}
}

func TestBlockHandlerSuccessors(t *testing.T) {
	ioe := jtype.MustIntern("Ljava/io/IOException;")
	foo := jtype.MustIntern("L" + fooClass + ";")
	pool := bytecode.MapPool{
		1: bytecode.MethodRef{Class: foo, Name: "run", Proto: jtype.MustInternPrototype("()V")},
	}
	raw := []byte{
		0x2a,             // 0: aload_0
		0xb6, 0x00, 0x01, // 1: invokevirtual run
		0xb1,             // 4: return
		0x4c,             // 5: astore_1
		0xb1,             // 6: return
		0x4c,             // 7: astore_1
		0xb1,             // 8: return
	}
	m := method(t, "guarded", "()V", false, 2, 1, raw, pool,
		bytecode.Handler{Start: 0, End: 4, HandlerPC: 5, Type: ioe},
		bytecode.Handler{Start: 0, End: 4, HandlerPC: 7},
		bytecode.Handler{Start: 0, End: 4, HandlerPC: 5}, // unreachable after the catch-all
	)

	res, err := Analyze(context.Background(), m, Options{})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	tests := []struct {
		start    int
		handlers []int
	}{
		{0, []int{5, 7}},
		{4, nil},
		{5, nil},
		{7, nil},
	}
	for _, tt := range tests {
		b := res.Block(tt.start)
		if b == nil {
			t.Errorf("no block at %04x", tt.start)
			continue
		}
		if len(b.Handlers) != len(tt.handlers) {
			t.Errorf("block %04x handlers = %v, want %v", tt.start, b.Handlers, tt.handlers)
			continue
		}
		for i, pc := range tt.handlers {
			if b.Handlers[i] != pc {
				t.Errorf("block %04x handlers = %v, want %v", tt.start, b.Handlers, tt.handlers)
				break
			}
		}
		if b.Frame == nil {
			t.Errorf("block %04x not reached", tt.start)
		}
	}
	if top, _ := res.Block(5).Frame.Stack().Peek(0); top != ioe {
		t.Errorf("typed handler stack top = %v, want %v", top, ioe)
	}

	d, err := machine.NewDump("run", m.Class, m.Name, m.Descriptor, res.Recorder.Blocks())
	if err != nil {
		t.Fatal(err)
	}
	first := d.Blocks[0]
	if first.Start != 0 || len(first.Handlers) != 2 || first.Handlers[0] != 5 || first.Handlers[1] != 7 {
		t.Errorf("dump block 0 = %+v", first)
	}
	if len(first.ExceptionTypes) != 2 || first.ExceptionTypes[0] != ioe.Descriptor() || first.ExceptionTypes[1] != jtype.Object.Descriptor() {
		t.Errorf("dump block 0 exception types = %v", first.ExceptionTypes)
	}
}

func TestAnalyzeConstructor(t *testing.T) {
	pool := bytecode.MapPool{
		1: bytecode.MethodRef{Class: jtype.Object, Name: "<init>", Proto: jtype.MustInternPrototype("()V")},
	}
	// aload_0, invokespecial Object.<init>, return
	m := method(t, "<init>", "()V", false, 1, 1, []byte{0x2a, 0xb7, 0x00, 0x01, 0xb1}, pool)

	entry, err := m.InitialFrame()
	if err != nil {
		t.Fatal(err)
	}
	if recv := entry.Locals().GetOrNil(0); !recv.IsUninitialized() {
		t.Errorf("constructor receiver = %v, want uninitialized", recv)
	}

	var seen *frame.Frame
	opts := Options{Machine: func(*Method) sim.Machine {
		return sim.MachineFunc(func(f *frame.Frame, in *sim.Insn) error {
			if in.Raw == bytecode.OpReturn {
				seen = f.Copy()
			}
			return nil
		})
	}}
	if _, err := Analyze(context.Background(), m, opts); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if seen == nil {
		t.Fatal("extra machine never saw the return")
	}
	if got := seen.Locals().GetOrNil(0); got != jtype.MustIntern("L"+fooClass+";") {
		t.Errorf("receiver after <init> = %v", got)
	}
}

func TestAnalyzeFailureContext(t *testing.T) {
	// aconst_null, areturn from an int method
	m := method(t, "bad", "()I", true, 0, 1, []byte{0x01, 0xb0}, nil)
	_, err := Analyze(context.Background(), m, Options{})
	if !errors.Is(err, sim.ErrReturnTypeMismatch) {
		t.Fatalf("err = %v, want ReturnTypeMismatch", err)
	}
	var se *sim.Error
	if !errors.As(err, &se) || se.Offset != 1 {
		t.Fatalf("err = %#v", err)
	}
	if last := se.Context[len(se.Context)-1]; last != "...while working on block 0000" {
		t.Errorf("last context line = %q", last)
	}
}

func TestAnalyzeNegativeSizes(t *testing.T) {
	m := method(t, "nothing", "()V", true, 0, -1, []byte{0xb1}, nil)
	if _, err := Analyze(context.Background(), m, Options{}); !errors.Is(err, frame.ErrInvalidSize) {
		t.Errorf("err = %v, want ErrInvalidSize", err)
	}

	// One broken method does not take the batch down.
	batch, err := AnalyzeAll(context.Background(), []*Method{
		m,
		method(t, "fine", "()V", true, 0, 0, []byte{0xb1}, nil),
	}, Options{Parallelism: 2})
	if err != nil {
		t.Fatal(err)
	}
	if batch.Outcomes[0].Err == nil || batch.Outcomes[1].Err != nil {
		t.Errorf("outcomes = %+v", batch.Outcomes)
	}
}

func TestAnalyzeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := method(t, "choose", "(I)I", true, 1, 1, chooseCode, nil)
	if _, err := Analyze(ctx, m, Options{}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestAnalyzeAll(t *testing.T) {
	methods := []*Method{
		method(t, "choose", "(I)I", true, 1, 1, chooseCode, nil),
		method(t, "bad", "()I", true, 0, 1, []byte{0x01, 0xb0}, nil),
		method(t, "nothing", "()V", true, 0, 0, []byte{0xb1}, nil),
	}
	batch, err := AnalyzeAll(context.Background(), methods, Options{Parallelism: 2})
	if err != nil {
		t.Fatal(err)
	}
	if batch.RunID == uuid.Nil {
		t.Error("batch has no run id")
	}
	if len(batch.Outcomes) != 3 {
		t.Fatalf("outcomes = %d", len(batch.Outcomes))
	}
	for i, o := range batch.Outcomes {
		if o.Method != methods[i] {
			t.Errorf("outcome %d is for %s", i, o.Method)
		}
	}
	failed := batch.Failed()
	if len(failed) != 1 || failed[0].Method.Name != "bad" {
		t.Errorf("failed = %v", failed)
	}
	if batch.Outcomes[0].Result == nil || batch.Outcomes[2].Result == nil {
		t.Error("successful methods lack results")
	}
}

func TestMethodString(t *testing.T) {
	m := &Method{Class: fooClass, Name: "bar", Descriptor: "(I)V"}
	if got := m.String(); got != "com.example.Foo.bar(I)V" {
		t.Errorf("String() = %q", got)
	}
}
