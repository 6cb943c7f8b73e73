package frame

import (
	"fmt"
	"strings"

	"github.com/chazu/typeflow/pkg/jtype"
)

// Stack is the operand stack of a frame. Values are stored by frame type. A
// category-2 value takes two slots: a nil filler below the value itself.
// Peek and Change address slots, counting the top slot as 0.
type Stack struct {
	slots     []*jtype.Type
	local     []bool // value was loaded from a local with debug info
	max       int
	immutable bool
}

// NewStack returns an empty stack holding at most max slots.
func NewStack(max int) *Stack {
	return &Stack{
		slots: make([]*jtype.Type, 0, max),
		local: make([]bool, 0, max),
		max:   max,
	}
}

// Copy returns a mutable copy of the stack.
func (s *Stack) Copy() *Stack {
	c := NewStack(s.max)
	c.slots = append(c.slots, s.slots...)
	c.local = append(c.local, s.local...)
	return c
}

// SetImmutable freezes the stack. Mutators fail with ErrImmutable after.
func (s *Stack) SetImmutable() { s.immutable = true }

// IsImmutable reports whether the stack is frozen.
func (s *Stack) IsImmutable() bool { return s.immutable }

// Size returns the number of slots in use.
func (s *Stack) Size() int { return len(s.slots) }

// MaxSize returns the capacity in slots.
func (s *Stack) MaxSize() int { return s.max }

func (s *Stack) checkMutable() error {
	if s.immutable {
		return fmt.Errorf("%w: stack", ErrImmutable)
	}
	return nil
}

// Clear removes every value.
func (s *Stack) Clear() error {
	if err := s.checkMutable(); err != nil {
		return err
	}
	s.slots = s.slots[:0]
	s.local = s.local[:0]
	return nil
}

// Push pushes the frame type of t.
func (s *Stack) Push(t *jtype.Type) error {
	if err := s.checkMutable(); err != nil {
		return err
	}
	if t == nil || t == jtype.Void {
		return fmt.Errorf("cannot push %v", t)
	}
	t = t.FrameType()
	cat := t.Category()
	if len(s.slots)+cat > s.max {
		return fmt.Errorf("%w: pushing %s onto %d of %d slots", ErrStackOverflow, t.Human(), len(s.slots), s.max)
	}
	if cat == 2 {
		s.slots = append(s.slots, nil)
		s.local = append(s.local, false)
	}
	s.slots = append(s.slots, t)
	s.local = append(s.local, false)
	return nil
}

// SetLocal marks the top value as having come from a local with debug
// information.
func (s *Stack) SetLocal() error {
	if err := s.checkMutable(); err != nil {
		return err
	}
	if len(s.slots) == 0 {
		return fmt.Errorf("%w: set local info on empty stack", ErrStackUnderflow)
	}
	s.local[len(s.local)-1] = true
	return nil
}

// Pop removes and returns the top value, both slots of a category-2 value.
func (s *Stack) Pop() (*jtype.Type, error) {
	if err := s.checkMutable(); err != nil {
		return nil, err
	}
	if len(s.slots) == 0 {
		return nil, fmt.Errorf("%w: pop from empty stack", ErrStackUnderflow)
	}
	n := len(s.slots) - 1
	t := s.slots[n]
	if t == nil {
		return nil, fmt.Errorf("%w: top of stack is the second half of a wide value", ErrStackUnderflow)
	}
	cat := t.Category()
	if cat > len(s.slots) {
		return nil, fmt.Errorf("%w: popping %s", ErrStackUnderflow, t.Human())
	}
	s.slots = s.slots[:len(s.slots)-cat]
	s.local = s.local[:len(s.local)-cat]
	return t, nil
}

// Peek returns the type in slot n counted from the top. The filler slot of
// a category-2 value reads as nil.
func (s *Stack) Peek(n int) (*jtype.Type, error) {
	if n < 0 {
		return nil, fmt.Errorf("peek at negative slot %d", n)
	}
	if n >= len(s.slots) {
		return nil, fmt.Errorf("%w: peek at slot %d of %d", ErrStackUnderflow, n, len(s.slots))
	}
	return s.slots[len(s.slots)-1-n], nil
}

// PeekLocal reports whether the value in slot n came from a local with
// debug information.
func (s *Stack) PeekLocal(n int) (bool, error) {
	if n < 0 || n >= len(s.slots) {
		return false, fmt.Errorf("%w: peek at slot %d of %d", ErrStackUnderflow, n, len(s.slots))
	}
	return s.local[len(s.local)-1-n], nil
}

// Change replaces the value in slot n with t, which must have the same
// category.
func (s *Stack) Change(n int, t *jtype.Type) error {
	if err := s.checkMutable(); err != nil {
		return err
	}
	old, err := s.Peek(n)
	if err != nil {
		return err
	}
	t = t.FrameType()
	if old == nil || old.Category() != t.Category() {
		return fmt.Errorf("%w: cannot change slot %d from %v to %s", ErrIncompatibleMerge, n, old, t.Human())
	}
	s.slots[len(s.slots)-1-n] = t
	return nil
}

// MakeInitialized replaces every occurrence of the uninitialized type
// uninit with its initialized counterpart.
func (s *Stack) MakeInitialized(uninit *jtype.Type) error {
	if err := s.checkMutable(); err != nil {
		return err
	}
	init, err := uninit.InitializedType()
	if err != nil {
		return err
	}
	for i, t := range s.slots {
		if t == uninit {
			s.slots[i] = init
		}
	}
	return nil
}

// Lines returns one line per slot, top first, for diagnostics.
func (s *Stack) Lines() []string {
	lines := make([]string, 0, len(s.slots))
	for i := len(s.slots) - 1; i >= 0; i-- {
		idx := "top0"
		if n := len(s.slots) - 1 - i; n > 0 {
			idx = fmt.Sprintf("%04x", n)
		}
		lines = append(lines, fmt.Sprintf("stack[%s]: %s", idx, slotString(s.slots[i])))
	}
	return lines
}

func (s *Stack) String() string {
	parts := make([]string, 0, len(s.slots))
	for _, t := range s.slots {
		if t != nil {
			parts = append(parts, t.Human())
		}
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func slotString(t *jtype.Type) string {
	if t == nil {
		return "<invalid>"
	}
	return t.Human()
}
