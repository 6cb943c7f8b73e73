package sim

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chazu/typeflow/frame"
	"github.com/chazu/typeflow/pkg/bytecode"
)

var (
	ErrIllegalTopOfStack     = errors.New("illegal top-of-stack for instruction")
	ErrInvalidOpcode         = errors.New("invalid opcode")
	ErrReturnTypeMismatch    = errors.New("return type mismatch")
	ErrLocalVariableMismatch = errors.New("local variable type mismatch")
	ErrTypeMismatch          = errors.New("type mismatch")
	ErrUnsupported           = errors.New("unsupported instruction")

	// Frame errors surface unchanged through the simulator.
	ErrStackUnderflow     = frame.ErrStackUnderflow
	ErrStackOverflow      = frame.ErrStackOverflow
	ErrUndefinedLocal     = frame.ErrUndefinedLocal
	ErrFrameMergeMismatch = frame.ErrFrameMergeMismatch
)

// Error is a simulation failure at one instruction. Context holds the
// frame dump and any further lines added on the way out.
type Error struct {
	Err     error
	Offset  int
	Opcode  bytecode.Opcode
	Context []string

	// NoOpcode is set when not even the opcode byte could be decoded.
	NoOpcode bool
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.NoOpcode {
		fmt.Fprintf(&sb, "at offset %04x: %v", e.Offset, e.Err)
	} else {
		fmt.Fprintf(&sb, "at offset %04x (%s): %v", e.Offset, e.Opcode, e.Err)
	}
	for _, line := range e.Context {
		sb.WriteString("\n")
		sb.WriteString(line)
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Err }

// AddContext appends a context line.
func (e *Error) AddContext(line string) {
	e.Context = append(e.Context, line)
}

// fail wraps err as an *Error for in unless it already is one.
func fail(in *bytecode.Instruction, err error) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return &Error{Err: err, Offset: in.Offset, Opcode: in.Raw}
}

func mismatch(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrTypeMismatch}, args...)...)
}

func illegalTos(op bytecode.Opcode) error {
	return fmt.Errorf("%w %s", ErrIllegalTopOfStack, op)
}
