package bytecode

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chazu/typeflow/pkg/jtype"
)

var ErrInvalidArgument = errors.New("invalid argument")

// Handler is one row of a method's exception table. Type is nil for a
// catch-all handler.
type Handler struct {
	Start     int // inclusive
	End       int // exclusive
	HandlerPC int
	Type      *jtype.Type
}

// Covers reports whether pc lies in the handler's protected range.
func (h Handler) Covers(pc int) bool {
	return pc >= h.Start && pc < h.End
}

// ExceptionType returns the caught type, Object for catch-all.
func (h Handler) ExceptionType() *jtype.Type {
	if h.Type == nil {
		return jtype.Object
	}
	return h.Type
}

func (h Handler) String() string {
	name := "<any>"
	if h.Type != nil {
		name = h.Type.Human()
	}
	return fmt.Sprintf("%04X..%04X -> %04X %s", h.Start, h.End, h.HandlerPC, name)
}

// CatchList is an immutable, ordered exception table.
type CatchList struct {
	handlers []Handler
}

// EmptyCatchList has no handlers.
var EmptyCatchList = &CatchList{}

// NewCatchList validates the handlers and returns them as a list, keeping
// declaration order.
func NewCatchList(handlers []Handler) (*CatchList, error) {
	for i, h := range handlers {
		if h.Start < 0 || h.HandlerPC < 0 {
			return nil, fmt.Errorf("%w: handler %d: negative pc in %s", ErrInvalidArgument, i, h)
		}
		if h.End < h.Start {
			return nil, fmt.Errorf("%w: handler %d: end before start in %s", ErrInvalidArgument, i, h)
		}
		if h.Type != nil && !h.Type.IsReference() {
			return nil, fmt.Errorf("%w: handler %d: %s is not a class", ErrInvalidArgument, i, h.Type.Human())
		}
	}
	return &CatchList{handlers: append([]Handler(nil), handlers...)}, nil
}

// Len returns the number of handlers.
func (l *CatchList) Len() int { return len(l.handlers) }

// Get returns handler n.
func (l *CatchList) Get(n int) Handler { return l.handlers[n] }

// Handlers returns a copy of the handlers in declaration order.
func (l *CatchList) Handlers() []Handler {
	return append([]Handler(nil), l.handlers...)
}

// ListFor returns the handlers live at pc. The first handler for a given
// exception type wins, and nothing after a catch-all handler is reachable.
func (l *CatchList) ListFor(pc int) *CatchList {
	var kept []Handler
	for _, h := range l.handlers {
		if !h.Covers(pc) || shadowed(kept, h) {
			continue
		}
		kept = append(kept, h)
	}
	if len(kept) == 0 {
		return EmptyCatchList
	}
	return &CatchList{handlers: kept}
}

// shadowed reports whether an already kept handler catches everything h
// would: one with the same type, or a catch-all.
func shadowed(kept []Handler, h Handler) bool {
	t := h.ExceptionType()
	for _, k := range kept {
		kt := k.ExceptionType()
		if kt == t || kt == jtype.Object {
			return true
		}
	}
	return false
}

// CatchesAll reports whether the list ends in a handler for Object.
func (l *CatchList) CatchesAll() bool {
	if len(l.handlers) == 0 {
		return false
	}
	return l.handlers[len(l.handlers)-1].ExceptionType() == jtype.Object
}

// TargetList returns the handler pcs in order, followed by noException if
// it is not -1.
func (l *CatchList) TargetList(noException int) ([]int, error) {
	if noException < -1 {
		return nil, fmt.Errorf("%w: no-exception pc %d", ErrInvalidArgument, noException)
	}
	out := make([]int, 0, len(l.handlers)+1)
	for _, h := range l.handlers {
		out = append(out, h.HandlerPC)
	}
	if noException >= 0 {
		out = append(out, noException)
	}
	return out, nil
}

// ExceptionTypes returns the caught types in order, Object for catch-all.
func (l *CatchList) ExceptionTypes() []*jtype.Type {
	out := make([]*jtype.Type, len(l.handlers))
	for i, h := range l.handlers {
		out[i] = h.ExceptionType()
	}
	return out
}

// ByteLength returns the size of the table in class-file form.
func (l *CatchList) ByteLength() int {
	return 2 + 8*len(l.handlers)
}

func (l *CatchList) String() string {
	parts := make([]string, len(l.handlers))
	for i, h := range l.handlers {
		parts[i] = h.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
