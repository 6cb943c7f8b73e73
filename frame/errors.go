package frame

import (
	"errors"
	"strings"
)

var (
	ErrStackUnderflow     = errors.New("stack underflow")
	ErrStackOverflow      = errors.New("stack overflow")
	ErrUndefinedLocal     = errors.New("local variable undefined")
	ErrLocalOutOfRange    = errors.New("local index out of range")
	ErrImmutable          = errors.New("frame is immutable")
	ErrFrameMergeMismatch = errors.New("frame merge mismatch")
	ErrIncompatibleMerge  = errors.New("incompatible types at merge")
	ErrInvalidSize        = errors.New("invalid frame size")
)

// Contexter is an error that collects diagnostic context lines.
type Contexter interface {
	error
	AddContext(line string)
}

// ContextError decorates an error with context lines, such as a dump of the
// frame it happened in.
type ContextError struct {
	Err     error
	Context []string
}

func (e *ContextError) Error() string {
	if len(e.Context) == 0 {
		return e.Err.Error()
	}
	return e.Err.Error() + "\n" + strings.Join(e.Context, "\n")
}

func (e *ContextError) Unwrap() error { return e.Err }

// AddContext appends a context line.
func (e *ContextError) AddContext(line string) {
	e.Context = append(e.Context, line)
}

// AddContext appends lines to the Contexter in err's chain, wrapping err in
// a ContextError first if there is none. It returns the error to propagate.
func AddContext(err error, lines ...string) error {
	if err == nil {
		return nil
	}
	var c Contexter
	if !errors.As(err, &c) {
		c = &ContextError{Err: err}
		err = c
	}
	for _, line := range lines {
		c.AddContext(line)
	}
	return err
}
