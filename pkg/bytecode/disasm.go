package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of the code array.
func (c *Code) Disassemble() string {
	return c.DisassembleWithName("", nil)
}

// DisassembleWithName returns a listing with a name header and, if handlers
// is not empty, the exception table.
func (c *Code) DisassembleWithName(name string, handlers *CatchList) string {
	var sb strings.Builder

	// Header
	if name != "" {
		sb.WriteString(fmt.Sprintf("; === %s ===\n", name))
	}
	sb.WriteString(fmt.Sprintf("; Code length: %d bytes\n", len(c.bytes)))

	// Exception table
	if handlers != nil && handlers.Len() > 0 {
		sb.WriteString("; Handlers:\n")
		for i, h := range handlers.handlers {
			sb.WriteString(fmt.Sprintf(";   [%2d] %s\n", i, h))
		}
	}
	sb.WriteString("\n")

	// Code section
	sb.WriteString("; Code:\n")
	offset := 0
	for offset < len(c.bytes) {
		line, instrLen := c.DisassembleInstruction(offset)
		sb.WriteString(fmt.Sprintf("%04X  %s\n", offset, line))
		if instrLen == 0 {
			break
		}
		offset += instrLen
	}

	return sb.String()
}

// DisassembleInstruction disassembles a single instruction at the given
// offset. Returns the formatted string and the instruction length, 0 if the
// listing cannot continue.
func (c *Code) DisassembleInstruction(offset int) (string, int) {
	if offset >= len(c.bytes) {
		return "<end of code>", 0
	}
	in, err := c.Decode(offset)
	if err != nil {
		return fmt.Sprintf("<%v>", err), 0
	}
	return in.String(), in.Length
}
