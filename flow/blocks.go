package flow

import (
	"fmt"
	"sort"

	"github.com/chazu/typeflow/frame"
	"github.com/chazu/typeflow/pkg/bytecode"
)

// Block is a basic block: a run of instructions entered only at Start.
type Block struct {
	Start int
	End   int

	// Successors are the normal control-flow successors, fallthrough last.
	Successors []int

	// Catches are the handlers reachable when the last instruction throws.
	Catches *bytecode.CatchList

	// Handlers are the exception successors, one per entry of Catches.
	Handlers []int

	// Frame is the merged start frame; nil while the block is unreached.
	Frame *frame.Frame
}

func (b *Block) String() string {
	return fmt.Sprintf("block %04x..%04x -> %v catches %s", b.Start, b.End, b.Successors, b.Catches)
}

// FindBlocks splits code into basic blocks. A block starts at offset 0, at
// every branch, switch and handler target, after every control transfer,
// at the edges of every try range and after every instruction that may
// throw inside one. Subroutines (jsr/ret) are rejected with ErrUnsupported.
func FindBlocks(code *bytecode.Code, catches *bytecode.CatchList) ([]*Block, error) {
	if code == nil || code.Len() == 0 {
		return nil, ErrNoCode
	}
	if catches == nil {
		catches = bytecode.EmptyCatchList
	}

	var insns []bytecode.Instruction
	isStart := map[int]bool{}
	leaders := map[int]bool{0: true}
	err := code.Walk(func(in bytecode.Instruction) error {
		insns = append(insns, in)
		isStart[in.Offset] = true
		switch in.Raw {
		case bytecode.OpJsr, bytecode.OpJsrW, bytecode.OpRet:
			return fmt.Errorf("%w: subroutine instruction %s at %04x", ErrUnsupported, in.Raw, in.Offset)
		}
		for _, t := range in.Targets() {
			if t < 0 || t >= code.Len() {
				return fmt.Errorf("%w: %04x from %04x", ErrInvalidTarget, t, in.Offset)
			}
			leaders[t] = true
		}
		if in.Kind == bytecode.KindBranch || in.Kind == bytecode.KindSwitch || !in.Raw.Fallsthrough() {
			leaders[in.End()] = true
		}
		if in.CanThrow() && catches.ListFor(in.Offset).Len() > 0 {
			leaders[in.End()] = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, h := range catches.Handlers() {
		leaders[h.HandlerPC] = true
		leaders[h.Start] = true
		leaders[h.End] = true
	}

	var starts []int
	for pc := range leaders {
		if pc == code.Len() {
			continue
		}
		if !isStart[pc] {
			return nil, fmt.Errorf("%w: %04x is not an instruction boundary", ErrInvalidTarget, pc)
		}
		starts = append(starts, pc)
	}
	sort.Ints(starts)

	blocks := make([]*Block, len(starts))
	next := 0
	for i, start := range starts {
		end := code.Len()
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		b := &Block{Start: start, End: end, Catches: bytecode.EmptyCatchList}

		var last bytecode.Instruction
		for next < len(insns) && insns[next].Offset < end {
			last = insns[next]
			next++
		}
		b.Successors = append(b.Successors, last.Targets()...)
		if last.Kind == bytecode.KindInvalid || last.Raw.Fallsthrough() {
			if end == code.Len() {
				return nil, fmt.Errorf("%w: after %s at %04x", ErrFallOffEnd, last.Raw, last.Offset)
			}
			b.Successors = append(b.Successors, end)
		}
		if last.CanThrow() {
			b.Catches = catches.ListFor(last.Offset)
		}
		if b.Handlers, err = b.Catches.TargetList(-1); err != nil {
			return nil, err
		}
		blocks[i] = b
	}
	return blocks, nil
}
