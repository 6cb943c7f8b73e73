package jtype

import (
	"errors"
	"sync"
	"testing"
)

func TestInternPrototype(t *testing.T) {
	tests := []struct {
		desc   string
		params []*Type
		ret    *Type
		words  int
	}{
		{"()V", nil, Void, 0},
		{"(I)I", []*Type{Int}, Int, 1},
		{"(JD)V", []*Type{Long, Double}, Void, 4},
		{"([Ljava/lang/String;Z)Ljava/lang/Object;", []*Type{MustIntern("[Ljava/lang/String;"), Boolean}, Object, 2},
		{"(Ljava/lang/String;[[IJ)[B", []*Type{String, MustIntern("[[I"), Long}, ByteArray, 4},
	}
	for _, tt := range tests {
		p, err := InternPrototype(tt.desc)
		if err != nil {
			t.Fatalf("InternPrototype(%q): %v", tt.desc, err)
		}
		if p.ReturnType() != tt.ret {
			t.Errorf("%s: ReturnType = %s, want %s", tt.desc, p.ReturnType(), tt.ret)
		}
		if p.ParameterCount() != len(tt.params) {
			t.Fatalf("%s: ParameterCount = %d, want %d", tt.desc, p.ParameterCount(), len(tt.params))
		}
		for i, want := range tt.params {
			if p.Parameters()[i] != want {
				t.Errorf("%s: param %d = %s, want %s", tt.desc, i, p.Parameters()[i], want)
			}
		}
		if p.ParameterWords() != tt.words {
			t.Errorf("%s: ParameterWords = %d, want %d", tt.desc, p.ParameterWords(), tt.words)
		}
		if again := MustInternPrototype(tt.desc); again != p {
			t.Errorf("%s: not interned", tt.desc)
		}
	}
}

func TestInternPrototypeMalformed(t *testing.T) {
	for _, d := range []string{"", "V", "()", "(V)V", "(I", "(Ljava/lang/String)V", "(I)X", "(I)II"} {
		if _, err := InternPrototype(d); !errors.Is(err, ErrMalformedDescriptor) {
			t.Errorf("InternPrototype(%q) error = %v", d, err)
		}
	}
}

func TestWithFirstParameter(t *testing.T) {
	p := MustInternPrototype("(I)V")
	inst := p.WithFirstParameter(String)
	if inst.Descriptor() != "(Ljava/lang/String;I)V" {
		t.Errorf("WithFirstParameter = %s", inst)
	}
	if inst.ParameterWords() != 2 {
		t.Errorf("ParameterWords = %d, want 2", inst.ParameterWords())
	}
}

func TestInternInts(t *testing.T) {
	p := InternInts(MustIntern("[[[I"), 3)
	if p.Descriptor() != "(III)[[[I" {
		t.Errorf("InternInts = %s", p)
	}
}

func TestInternPrototypeConcurrent(t *testing.T) {
	const workers = 16
	results := make([]*Prototype, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := InternPrototype("(Lcom/example/concurrent/Shared;J)[I")
			if err != nil {
				t.Errorf("InternPrototype: %v", err)
				return
			}
			results[i] = p
		}(i)
	}
	wg.Wait()
	for i := 1; i < workers; i++ {
		if results[i] != results[0] {
			t.Fatalf("worker %d got a different pointer", i)
		}
	}
	if lookupPrototype("(Lcom/example/concurrent/Shared;J)[I") != results[0] {
		t.Error("table holds a different prototype than the one returned")
	}
}
