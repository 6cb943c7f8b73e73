package machine

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/typeflow/pkg/jtype"
	"github.com/chazu/typeflow/sim"
)

// Canonical mode keeps dumps of the same analysis byte-identical.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("machine: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Dump is the serialized annotated stream of one analyzed method. Types
// are carried as descriptors.
type Dump struct {
	RunID      string      `cbor:"1,keyasint"`
	Class      string      `cbor:"2,keyasint"`
	Method     string      `cbor:"3,keyasint"`
	Descriptor string      `cbor:"4,keyasint"`
	Blocks     []DumpBlock `cbor:"5,keyasint,omitempty"`
}

// DumpBlock is one basic block of a Dump.
type DumpBlock struct {
	Start int        `cbor:"1,keyasint"`
	End   int        `cbor:"2,keyasint"`
	Insns []DumpInsn `cbor:"3,keyasint,omitempty"`

	// Handlers and ExceptionTypes run in parallel: the handler pcs the
	// block can throw to and the descriptor each one catches.
	Handlers       []int    `cbor:"4,keyasint,omitempty"`
	ExceptionTypes []string `cbor:"5,keyasint,omitempty"`
}

// DumpInsn is one simulated instruction of a Dump.
type DumpInsn struct {
	Offset  int      `cbor:"1,keyasint"`
	Opcode  string   `cbor:"2,keyasint"`
	Args    []string `cbor:"3,keyasint,omitempty"`
	Results []string `cbor:"4,keyasint,omitempty"`
	Local   int      `cbor:"5,keyasint"` // -1 when none
	Store   bool     `cbor:"6,keyasint,omitempty"`
	Text    string   `cbor:"7,keyasint"` // human-readable form
	Type    string   `cbor:"8,keyasint,omitempty"`
	Target  int      `cbor:"9,keyasint"` // -1 unless a branch
	Shuffle string   `cbor:"10,keyasint,omitempty"`
}

// NewDump builds a dump from recorded blocks.
func NewDump(runID, class, method, descriptor string, blocks []Block) (*Dump, error) {
	d := &Dump{RunID: runID, Class: class, Method: method, Descriptor: descriptor}
	for _, b := range blocks {
		db := DumpBlock{Start: b.Start, End: b.End}
		if b.Catches != nil {
			handlers, err := b.Catches.TargetList(-1)
			if err != nil {
				return nil, err
			}
			db.Handlers = handlers
			db.ExceptionTypes = descriptors(b.Catches.ExceptionTypes())
		}
		for i := range b.Insns {
			db.Insns = append(db.Insns, dumpInsn(&b.Insns[i]))
		}
		d.Blocks = append(d.Blocks, db)
	}
	return d, nil
}

func dumpInsn(in *sim.Insn) DumpInsn {
	di := DumpInsn{
		Offset:  in.Offset,
		Opcode:  in.Raw.String(),
		Args:    descriptors(in.Args),
		Results: descriptors(in.Results),
		Local:   in.Local,
		Store:   in.Store,
		Text:    in.String(),
		Target:  -1,
	}
	if in.Type != nil && in.Type != jtype.Void {
		di.Type = in.Type.Descriptor()
	}
	if in.Raw.IsBranch() {
		di.Target = in.Target
	}
	if in.Shuffle != sim.ShuffleNone {
		di.Shuffle = in.Shuffle.String()
	}
	return di
}

func descriptors(types []*jtype.Type) []string {
	if len(types) == 0 {
		return nil
	}
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.Descriptor()
	}
	return out
}

// MarshalDump serializes a Dump to CBOR bytes.
func MarshalDump(d *Dump) ([]byte, error) {
	return cborEncMode.Marshal(d)
}

// UnmarshalDump deserializes a Dump from CBOR bytes.
func UnmarshalDump(data []byte) (*Dump, error) {
	var d Dump
	if err := cbor.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("machine: unmarshal dump: %w", err)
	}
	return &d, nil
}

// InsnCount returns the number of instructions in the dump.
func (d *Dump) InsnCount() int {
	n := 0
	for _, b := range d.Blocks {
		n += len(b.Insns)
	}
	return n
}
