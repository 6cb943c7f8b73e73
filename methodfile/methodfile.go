// Package methodfile loads pre-decoded method bundles: one class's constant
// pool and methods written as TOML, with code arrays in hex.
//
//	class = "com/example/Foo"
//
//	[[pool]]
//	index = 1
//	kind = "method"
//	class = "java/lang/Object"
//	name = "<init>"
//	descriptor = "()V"
//
//	[[method]]
//	name = "<init>"
//	descriptor = "()V"
//	max-stack = 1
//	max-locals = 1
//	code = "2a b7 00 01 b1"
package methodfile

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/chazu/typeflow/flow"
	"github.com/chazu/typeflow/pkg/bytecode"
	"github.com/chazu/typeflow/pkg/jtype"
)

var ErrInvalidBundle = errors.New("invalid method bundle")

// Bundle is the decoded form of a method bundle file.
type Bundle struct {
	Class   string   `toml:"class"`
	Pool    []Entry  `toml:"pool"`
	Methods []Method `toml:"method"`

	// Path is the file the bundle was read from (set at load time).
	Path string `toml:"-"`
}

// Entry is one constant pool entry. Which fields apply depends on Kind:
//
//	int, long, float, double, string   value
//	null                               (none)
//	class                              class
//	field                              class, name, descriptor
//	method, interface-method           class, name, descriptor
//	callsite, method-type              name, descriptor
//	method-handle                      handle-kind, ref
type Entry struct {
	Index      int    `toml:"index"`
	Kind       string `toml:"kind"`
	Value      any    `toml:"value"`
	Class      string `toml:"class"`
	Name       string `toml:"name"`
	Descriptor string `toml:"descriptor"`
	HandleKind int    `toml:"handle-kind"`
	Ref        int    `toml:"ref"`
}

// Method is one method of a bundle.
type Method struct {
	Name       string     `toml:"name"`
	Descriptor string     `toml:"descriptor"`
	Static     bool       `toml:"static"`
	MaxStack   int        `toml:"max-stack"`
	MaxLocals  int        `toml:"max-locals"`
	Code       string     `toml:"code"`
	Handlers   []Handler  `toml:"handler"`
	Locals     []LocalVar `toml:"local"`
}

// Handler is one exception table row. An empty Type catches everything.
type Handler struct {
	Start int    `toml:"start"`
	End   int    `toml:"end"`
	PC    int    `toml:"pc"`
	Type  string `toml:"type"`
}

// LocalVar is one local variable debug table row.
type LocalVar struct {
	Start      int    `toml:"start"`
	Length     int    `toml:"length"`
	Slot       int    `toml:"slot"`
	Name       string `toml:"name"`
	Descriptor string `toml:"descriptor"`
	Signature  string `toml:"signature"`
}

// Load reads and parses a bundle file.
func Load(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	b, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	b.Path = path
	return b, nil
}

// Parse decodes bundle content. Unknown keys are rejected.
func Parse(data []byte) (*Bundle, error) {
	var b Bundle
	md, err := toml.Decode(string(data), &b)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: unknown key %q", ErrInvalidBundle, undecoded[0].String())
	}
	if !jtype.ValidClassName(b.Class) {
		return nil, fmt.Errorf("%w: bad class name %q", ErrInvalidBundle, b.Class)
	}
	return &b, nil
}

// ConstantPool resolves the bundle's pool entries.
func (b *Bundle) ConstantPool() (bytecode.MapPool, error) {
	pool := bytecode.MapPool{}
	byIndex := make(map[int]Entry, len(b.Pool))
	for _, e := range b.Pool {
		if e.Index <= 0 {
			return nil, fmt.Errorf("%w: pool index %d", ErrInvalidBundle, e.Index)
		}
		if _, dup := byIndex[e.Index]; dup {
			return nil, fmt.Errorf("%w: duplicate pool index %d", ErrInvalidBundle, e.Index)
		}
		byIndex[e.Index] = e
	}

	// Method handles refer to other entries, so they go last.
	var handles []Entry
	for _, e := range b.Pool {
		if e.Kind == "method-handle" {
			handles = append(handles, e)
			continue
		}
		c, err := e.constant()
		if err != nil {
			return nil, fmt.Errorf("pool #%d: %w", e.Index, err)
		}
		pool[e.Index] = c
	}
	for _, e := range handles {
		ref, ok := pool[e.Ref]
		if !ok {
			return nil, fmt.Errorf("pool #%d: %w: handle refers to missing #%d", e.Index, ErrInvalidBundle, e.Ref)
		}
		pool[e.Index] = bytecode.MethodHandleConst{Kind: e.HandleKind, Ref: ref}
	}
	return pool, nil
}

func (e Entry) constant() (bytecode.Constant, error) {
	switch e.Kind {
	case "int":
		v, err := e.integer()
		return bytecode.IntConst(v), err
	case "long":
		v, err := e.integer()
		return bytecode.LongConst(v), err
	case "float":
		v, err := e.float()
		return bytecode.FloatConst(v), err
	case "double":
		v, err := e.float()
		return bytecode.DoubleConst(v), err
	case "string":
		s, ok := e.Value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: string value is %T", ErrInvalidBundle, e.Value)
		}
		return bytecode.StringConst(s), nil
	case "null":
		return bytecode.NullConst{}, nil
	case "class":
		t, err := jtype.InternClassName(e.Class)
		if err != nil {
			return nil, err
		}
		return bytecode.ClassConst{Class: t}, nil
	case "field":
		owner, err := jtype.InternClassName(e.Class)
		if err != nil {
			return nil, err
		}
		t, err := jtype.Intern(e.Descriptor)
		if err != nil {
			return nil, err
		}
		return bytecode.FieldRef{Class: owner, Name: e.Name, FieldType: t}, nil
	case "method", "interface-method":
		owner, err := jtype.InternClassName(e.Class)
		if err != nil {
			return nil, err
		}
		proto, err := jtype.InternPrototype(e.Descriptor)
		if err != nil {
			return nil, err
		}
		return bytecode.MethodRef{Class: owner, Name: e.Name, Proto: proto, Interface: e.Kind == "interface-method"}, nil
	case "callsite":
		proto, err := jtype.InternPrototype(e.Descriptor)
		if err != nil {
			return nil, err
		}
		return bytecode.CallSite{Name: e.Name, Proto: proto}, nil
	case "method-type":
		proto, err := jtype.InternPrototype(e.Descriptor)
		if err != nil {
			return nil, err
		}
		return bytecode.MethodTypeConst{Proto: proto}, nil
	default:
		return nil, fmt.Errorf("%w: unknown pool kind %q", ErrInvalidBundle, e.Kind)
	}
}

func (e Entry) integer() (int64, error) {
	v, ok := e.Value.(int64)
	if !ok {
		return 0, fmt.Errorf("%w: %s value is %T", ErrInvalidBundle, e.Kind, e.Value)
	}
	return v, nil
}

func (e Entry) float() (float64, error) {
	switch v := e.Value.(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	}
	return 0, fmt.Errorf("%w: %s value is %T", ErrInvalidBundle, e.Kind, e.Value)
}

// FlowMethods converts every method of the bundle for analysis. All methods
// share one constant pool.
func (b *Bundle) FlowMethods(detectArrayInit bool) ([]*flow.Method, error) {
	pool, err := b.ConstantPool()
	if err != nil {
		return nil, err
	}
	out := make([]*flow.Method, 0, len(b.Methods))
	for _, m := range b.Methods {
		fm, err := m.flowMethod(b.Class, pool)
		if err != nil {
			return nil, fmt.Errorf("method %s%s: %w", m.Name, m.Descriptor, err)
		}
		fm.Code.DetectArrayInit = detectArrayInit
		out = append(out, fm)
	}
	return out, nil
}

func (m Method) flowMethod(class string, pool bytecode.ConstantPool) (*flow.Method, error) {
	if _, err := jtype.InternPrototype(m.Descriptor); err != nil {
		return nil, err
	}
	if m.MaxStack < 0 || m.MaxLocals < 0 {
		return nil, fmt.Errorf("%w: max-stack %d, max-locals %d", ErrInvalidBundle, m.MaxStack, m.MaxLocals)
	}
	raw, err := hex.DecodeString(strings.Join(strings.Fields(m.Code), ""))
	if err != nil {
		return nil, fmt.Errorf("%w: code: %v", ErrInvalidBundle, err)
	}

	handlers := make([]bytecode.Handler, 0, len(m.Handlers))
	for _, h := range m.Handlers {
		bh := bytecode.Handler{Start: h.Start, End: h.End, HandlerPC: h.PC}
		if h.Type != "" {
			if bh.Type, err = jtype.InternClassName(h.Type); err != nil {
				return nil, fmt.Errorf("handler: %w", err)
			}
		}
		handlers = append(handlers, bh)
	}
	catches, err := bytecode.NewCatchList(handlers)
	if err != nil {
		return nil, err
	}

	var locals bytecode.LocalVariableList
	for _, l := range m.Locals {
		t, err := jtype.Intern(l.Descriptor)
		if err != nil {
			return nil, fmt.Errorf("local %s: %w", l.Name, err)
		}
		locals = append(locals, bytecode.LocalVariable{
			Start:     l.Start,
			Length:    l.Length,
			Name:      l.Name,
			Type:      t,
			Signature: l.Signature,
			Slot:      l.Slot,
		})
	}

	return &flow.Method{
		Class:      class,
		Name:       m.Name,
		Descriptor: m.Descriptor,
		Static:     m.Static,
		MaxStack:   m.MaxStack,
		MaxLocals:  m.MaxLocals,
		Code:       bytecode.NewCode(raw, pool),
		Handlers:   catches,
		Locals:     locals,
	}, nil
}
