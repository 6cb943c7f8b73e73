package jtype

import (
	"strings"
	"sync"
)

// Prototype is an interned method descriptor: parameter types and return
// type.
type Prototype struct {
	descriptor string
	returnType *Type
	params     []*Type
	words      int
}

// prototypeTable is shared like internTable.
var prototypeTable = struct {
	sync.RWMutex
	protos map[string]*Prototype
}{protos: make(map[string]*Prototype, 256)}

func lookupPrototype(descriptor string) *Prototype {
	prototypeTable.RLock()
	p := prototypeTable.protos[descriptor]
	prototypeTable.RUnlock()
	return p
}

// putPrototype stores p unless the descriptor is already present, in which
// case the existing prototype wins.
func putPrototype(p *Prototype) *Prototype {
	prototypeTable.Lock()
	defer prototypeTable.Unlock()
	if existing, ok := prototypeTable.protos[p.descriptor]; ok {
		return existing
	}
	prototypeTable.protos[p.descriptor] = p
	return p
}

// InternPrototype parses and interns a method descriptor such as
// "(I[Ljava/lang/String;)V".
func InternPrototype(descriptor string) (*Prototype, error) {
	if p := lookupPrototype(descriptor); p != nil {
		return p, nil
	}
	if len(descriptor) < 3 || descriptor[0] != '(' {
		return nil, malformed(descriptor, "method descriptor must start with '('")
	}
	end := strings.IndexByte(descriptor, ')')
	if end < 0 {
		return nil, malformed(descriptor, "missing ')'")
	}

	var params []*Type
	words := 0
	for i := 1; i < end; {
		n := fieldDescriptorLen(descriptor[i:end])
		if n == 0 {
			return nil, malformed(descriptor, "bad parameter type")
		}
		t, err := Intern(descriptor[i : i+n])
		if err != nil {
			return nil, malformed(descriptor, "bad parameter type")
		}
		params = append(params, t)
		words += t.Category()
		i += n
	}

	ret, err := InternReturnType(descriptor[end+1:])
	if err != nil {
		return nil, malformed(descriptor, "bad return type")
	}

	return putPrototype(&Prototype{descriptor: descriptor, returnType: ret, params: params, words: words}), nil
}

// MustInternPrototype is InternPrototype for descriptors known to be valid.
func MustInternPrototype(descriptor string) *Prototype {
	p, err := InternPrototype(descriptor)
	if err != nil {
		panic(err)
	}
	return p
}

// InternInts returns the prototype taking count ints and returning ret.
func InternInts(ret *Type, count int) *Prototype {
	return MustInternPrototype("(" + strings.Repeat("I", count) + ")" + ret.Descriptor())
}

// fieldDescriptorLen returns the length of the field descriptor at the start
// of s, or 0 if there is none.
func fieldDescriptorLen(s string) int {
	i := 0
	for i < len(s) && s[i] == '[' {
		i++
	}
	if i >= len(s) {
		return 0
	}
	if s[i] == 'L' {
		semi := strings.IndexByte(s[i:], ';')
		if semi < 0 {
			return 0
		}
		return i + semi + 1
	}
	return i + 1
}

func (p *Prototype) Descriptor() string { return p.descriptor }
func (p *Prototype) String() string     { return p.descriptor }

// ReturnType returns the declared return type; Void for void methods.
func (p *Prototype) ReturnType() *Type { return p.returnType }

// Parameters returns the parameter types. The slice must not be modified.
func (p *Prototype) Parameters() []*Type { return p.params }

// ParameterCount returns the number of parameters.
func (p *Prototype) ParameterCount() int { return len(p.params) }

// ParameterWords returns the number of local slots the parameters occupy.
func (p *Prototype) ParameterWords() int { return p.words }

// WithFirstParameter returns the prototype with t prepended to the
// parameters; it turns a static prototype into an instance one.
func (p *Prototype) WithFirstParameter(t *Type) *Prototype {
	return MustInternPrototype("(" + t.Descriptor() + p.descriptor[1:])
}
