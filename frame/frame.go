// Package frame models the abstract machine state of a JVM method during
// type-flow simulation: an operand stack and a local variable array holding
// types instead of values. merge.go holds the join rules used at
// control-flow merge points.
package frame

import (
	"fmt"

	"github.com/chazu/typeflow/pkg/jtype"
)

// Frame is the state at one point of a method. A frame flows through the
// simulation of a block and is then frozen with SetImmutable as the
// recorded state of a block.
type Frame struct {
	locals *Locals
	stack  *Stack
}

// New returns a frame with maxLocals undefined locals and an empty stack of
// maxStack slots. Negative sizes fail with ErrInvalidSize.
func New(maxLocals, maxStack int) (*Frame, error) {
	if maxLocals < 0 || maxStack < 0 {
		return nil, fmt.Errorf("%w: max locals %d, max stack %d", ErrInvalidSize, maxLocals, maxStack)
	}
	return &Frame{locals: NewLocals(maxLocals), stack: NewStack(maxStack)}, nil
}

// FromParts builds a frame around existing locals and stack.
func FromParts(locals *Locals, stack *Stack) *Frame {
	return &Frame{locals: locals, stack: stack}
}

func (f *Frame) Locals() *Locals { return f.locals }
func (f *Frame) Stack() *Stack   { return f.stack }

// Copy returns a mutable deep copy.
func (f *Frame) Copy() *Frame {
	return &Frame{locals: f.locals.Copy(), stack: f.stack.Copy()}
}

// SetImmutable freezes both halves of the frame.
func (f *Frame) SetImmutable() {
	f.locals.SetImmutable()
	f.stack.SetImmutable()
}

// IsImmutable reports whether the frame is frozen.
func (f *Frame) IsImmutable() bool {
	return f.locals.IsImmutable() && f.stack.IsImmutable()
}

// InitializeWithParameters stores the parameter types in consecutive
// locals starting at 0, category-2 parameters taking two slots.
func (f *Frame) InitializeWithParameters(params []*jtype.Type) error {
	at := 0
	for _, p := range params {
		if err := f.locals.Set(at, p); err != nil {
			return fmt.Errorf("parameter at local %d: %w", at, err)
		}
		at += p.Category()
	}
	return nil
}

// MakeInitialized replaces uninit with its initialized type throughout the
// frame; it runs once the constructor of the object has been invoked.
func (f *Frame) MakeInitialized(uninit *jtype.Type) error {
	if err := f.locals.MakeInitialized(uninit); err != nil {
		return err
	}
	return f.stack.MakeInitialized(uninit)
}

// MakeExceptionHandlerStartFrame returns the state on entry to a handler
// catching exType: the same locals and a stack holding only the exception.
func (f *Frame) MakeExceptionHandlerStartFrame(exType *jtype.Type) (*Frame, error) {
	stack := NewStack(f.stack.MaxSize())
	if err := stack.Push(exType); err != nil {
		return nil, err
	}
	return &Frame{locals: f.locals.Copy(), stack: stack}, nil
}

// MergeWith merges other into f. The result is f itself when the merge
// changes nothing.
func (f *Frame) MergeWith(other *Frame) (*Frame, error) {
	return MergeFrames(f, other)
}

// Annotate attaches a dump of the frame to err and returns the error to
// propagate.
func (f *Frame) Annotate(err error) error {
	err = AddContext(err, f.stack.Lines()...)
	return AddContext(err, f.locals.Lines()...)
}

func (f *Frame) String() string {
	return fmt.Sprintf("locals %s stack %s", f.locals, f.stack)
}
