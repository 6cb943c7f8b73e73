package frame

import (
	"fmt"

	"github.com/chazu/typeflow/pkg/jtype"
)

// Locals is the local variable array of a frame. A nil slot is undefined:
// never assigned, invalidated by an overlapping category-2 store, or merged
// from incompatible predecessors.
type Locals struct {
	slots     []*jtype.Type
	immutable bool
}

// NewLocals returns max undefined locals.
func NewLocals(max int) *Locals {
	return &Locals{slots: make([]*jtype.Type, max)}
}

// Copy returns a mutable copy.
func (l *Locals) Copy() *Locals {
	return &Locals{slots: append([]*jtype.Type(nil), l.slots...)}
}

func (l *Locals) SetImmutable()     { l.immutable = true }
func (l *Locals) IsImmutable() bool { return l.immutable }

// MaxLocals returns the number of slots.
func (l *Locals) MaxLocals() int { return len(l.slots) }

func (l *Locals) checkIndex(idx int) error {
	if idx < 0 || idx >= len(l.slots) {
		return fmt.Errorf("%w: local %d of %d", ErrLocalOutOfRange, idx, len(l.slots))
	}
	return nil
}

// Get returns the type in slot idx, failing if the slot is undefined.
func (l *Locals) Get(idx int) (*jtype.Type, error) {
	if err := l.checkIndex(idx); err != nil {
		return nil, err
	}
	t := l.slots[idx]
	if t == nil {
		return nil, fmt.Errorf("%w: local %04x", ErrUndefinedLocal, idx)
	}
	return t, nil
}

// GetOrNil returns the type in slot idx, nil if undefined or out of range.
func (l *Locals) GetOrNil(idx int) *jtype.Type {
	if idx < 0 || idx >= len(l.slots) {
		return nil
	}
	return l.slots[idx]
}

// Set stores the frame type of t in slot idx. A category-2 value also
// claims idx+1, and a category-2 value in idx-1 is invalidated.
func (l *Locals) Set(idx int, t *jtype.Type) error {
	if l.immutable {
		return fmt.Errorf("%w: locals", ErrImmutable)
	}
	if err := l.checkIndex(idx); err != nil {
		return err
	}
	if t == nil || t == jtype.Void {
		return fmt.Errorf("cannot store %v in local %d", t, idx)
	}
	t = t.FrameType()
	if t.IsCategory2() {
		if err := l.checkIndex(idx + 1); err != nil {
			return fmt.Errorf("storing %s: %w", t.Human(), err)
		}
		l.slots[idx+1] = nil
	}
	l.slots[idx] = t
	if idx > 0 {
		if prev := l.slots[idx-1]; prev != nil && prev.IsCategory2() {
			l.slots[idx-1] = nil
		}
	}
	return nil
}

// Invalidate makes slot idx undefined.
func (l *Locals) Invalidate(idx int) error {
	if l.immutable {
		return fmt.Errorf("%w: locals", ErrImmutable)
	}
	if err := l.checkIndex(idx); err != nil {
		return err
	}
	l.slots[idx] = nil
	return nil
}

// MakeInitialized replaces every occurrence of uninit with its initialized
// counterpart.
func (l *Locals) MakeInitialized(uninit *jtype.Type) error {
	if l.immutable {
		return fmt.Errorf("%w: locals", ErrImmutable)
	}
	init, err := uninit.InitializedType()
	if err != nil {
		return err
	}
	for i, t := range l.slots {
		if t == uninit {
			l.slots[i] = init
		}
	}
	return nil
}

// Lines returns one line per slot for diagnostics.
func (l *Locals) Lines() []string {
	lines := make([]string, len(l.slots))
	for i, t := range l.slots {
		lines[i] = fmt.Sprintf("locals[%04x]: %s", i, slotString(t))
	}
	return lines
}

func (l *Locals) String() string {
	s := "{"
	for i, t := range l.slots {
		if i > 0 {
			s += ", "
		}
		if t == nil {
			s += "-"
		} else {
			s += t.Human()
		}
	}
	return s + "}"
}
