// Package flow drives the simulator over whole methods: it splits the code
// into basic blocks, runs a worklist over them merging frames where control
// flow joins, and analyzes batches of methods in parallel.
package flow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chazu/typeflow/frame"
	"github.com/chazu/typeflow/pkg/bytecode"
	"github.com/chazu/typeflow/pkg/jtype"
)

var (
	ErrUnsupported   = errors.New("unsupported")
	ErrInvalidTarget = errors.New("invalid branch target")
	ErrFallOffEnd    = errors.New("execution falls off the end of the code")
	ErrNoCode        = errors.New("method has no code")
)

// Method is everything the analysis needs to know about one method.
type Method struct {
	Class      string // internal name, e.g. com/example/Foo
	Name       string
	Descriptor string
	Static     bool
	MaxStack   int
	MaxLocals  int
	Code       *bytecode.Code
	Handlers   *bytecode.CatchList
	Locals     bytecode.LocalVariableList
}

// Prototype interns the method descriptor.
func (m *Method) Prototype() (*jtype.Prototype, error) {
	return jtype.InternPrototype(m.Descriptor)
}

// IsConstructor reports whether the method is an instance initializer.
func (m *Method) IsConstructor() bool { return m.Name == "<init>" }

func (m *Method) String() string {
	return strings.ReplaceAll(m.Class, "/", ".") + "." + m.Name + m.Descriptor
}

// catches returns the handler table, never nil.
func (m *Method) catches() *bytecode.CatchList {
	if m.Handlers == nil {
		return bytecode.EmptyCatchList
	}
	return m.Handlers
}

// InitialFrame returns the frame on method entry: the receiver (still
// uninitialized in a constructor) followed by the parameters.
func (m *Method) InitialFrame() (*frame.Frame, error) {
	proto, err := m.Prototype()
	if err != nil {
		return nil, err
	}
	params := proto.Parameters()
	if !m.Static {
		recv, err := jtype.InternClassName(m.Class)
		if err != nil {
			return nil, fmt.Errorf("receiver: %w", err)
		}
		if m.IsConstructor() {
			if recv, err = jtype.AsUninitialized(recv, jtype.Incoming); err != nil {
				return nil, fmt.Errorf("receiver: %w", err)
			}
		}
		params = append([]*jtype.Type{recv}, params...)
	}
	f, err := frame.New(m.MaxLocals, m.MaxStack)
	if err != nil {
		return nil, err
	}
	if err := f.InitializeWithParameters(params); err != nil {
		return nil, err
	}
	f.SetImmutable()
	return f, nil
}
