// Package machine holds concrete sim.Machine implementations. Recorder
// captures the type-annotated instruction stream of a method block by
// block; wire.go encodes it as a CBOR dump.
package machine

import (
	"sort"

	"github.com/chazu/typeflow/frame"
	"github.com/chazu/typeflow/pkg/bytecode"
	"github.com/chazu/typeflow/pkg/jtype"
	"github.com/chazu/typeflow/sim"
)

// Block is the recorded stream of one basic block.
type Block struct {
	Start int
	End   int
	Insns []sim.Insn

	// Catches are the handlers the block's last instruction can reach.
	Catches *bytecode.CatchList
}

// Recorder is a sim.Machine that keeps a copy of every instruction it is
// handed. A block simulated again replaces its earlier record, so after a
// fixpoint the record reflects the final frames.
type Recorder struct {
	blocks map[int]*Block
	cur    *Block
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{blocks: make(map[int]*Block)}
}

// BeginBlock starts (or restarts) the record of the block at start. A nil
// catches means the block has no exception successors.
func (r *Recorder) BeginBlock(start, end int, catches *bytecode.CatchList) {
	if catches == nil {
		catches = bytecode.EmptyCatchList
	}
	b := &Block{Start: start, End: end, Catches: catches}
	r.blocks[start] = b
	r.cur = b
}

// Run records a copy of in.
func (r *Recorder) Run(f *frame.Frame, in *sim.Insn) error {
	if r.cur == nil {
		r.BeginBlock(in.Offset, -1, nil)
	}
	c := *in
	c.Args = append([]*jtype.Type(nil), in.Args...)
	c.Results = append([]*jtype.Type(nil), in.Results...)
	r.cur.Insns = append(r.cur.Insns, c)
	return nil
}

// Blocks returns the recorded blocks in offset order.
func (r *Recorder) Blocks() []Block {
	out := make([]Block, 0, len(r.blocks))
	for _, b := range r.blocks {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// Insns returns every recorded instruction in offset order.
func (r *Recorder) Insns() []sim.Insn {
	var out []sim.Insn
	for _, b := range r.Blocks() {
		out = append(out, b.Insns...)
	}
	return out
}

// Len returns the number of recorded instructions.
func (r *Recorder) Len() int {
	n := 0
	for _, b := range r.blocks {
		n += len(b.Insns)
	}
	return n
}
