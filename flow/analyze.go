package flow

import (
	"context"
	"fmt"
	"runtime"

	"github.com/tliron/commonlog"

	"github.com/chazu/typeflow/frame"
	"github.com/chazu/typeflow/machine"
	"github.com/chazu/typeflow/sim"
)

var log = commonlog.GetLogger("typeflow.flow")

// Options configures an analysis.
type Options struct {
	// LenientLocals ignores local variable table entries that disagree with
	// the opcodes instead of failing. The JVM verifier would reject such
	// methods.
	LenientLocals bool

	// Parallelism bounds AnalyzeAll; zero means runtime.NumCPU().
	Parallelism int

	// Logger overrides the per-instruction trace logger of the simulator.
	Logger commonlog.Logger

	// Machine, if set, supplies an extra machine per method that sees every
	// simulated instruction after the recorder.
	Machine func(*Method) sim.Machine
}

func (o Options) parallelism() int {
	if o.Parallelism > 0 {
		return o.Parallelism
	}
	return runtime.NumCPU()
}

// Result is the outcome of analyzing one method.
type Result struct {
	Method   *Method
	Blocks   []*Block
	Recorder *machine.Recorder
}

// Block returns the block starting at pc, or nil.
func (r *Result) Block(pc int) *Block {
	for _, b := range r.Blocks {
		if b.Start == pc {
			return b
		}
	}
	return nil
}

// Reachable returns the blocks that were simulated.
func (r *Result) Reachable() []*Block {
	var out []*Block
	for _, b := range r.Blocks {
		if b.Frame != nil {
			out = append(out, b)
		}
	}
	return out
}

// Analyze simulates every reachable block of m until the start frames stop
// changing. A failure carries the frame it happened in and the block being
// worked on.
func Analyze(ctx context.Context, m *Method, opts Options) (*Result, error) {
	if m.Code == nil {
		return nil, ErrNoCode
	}
	proto, err := m.Prototype()
	if err != nil {
		return nil, err
	}
	blocks, err := FindBlocks(m.Code, m.catches())
	if err != nil {
		return nil, err
	}
	initial, err := m.InitialFrame()
	if err != nil {
		return nil, err
	}

	rec := machine.NewRecorder()
	var mach sim.Machine = rec
	if opts.Machine != nil {
		mach = machine.Tee{rec, opts.Machine(m)}
	}
	simOpts := []sim.Option{sim.WithStrictLocals(!opts.LenientLocals)}
	if opts.Logger != nil {
		simOpts = append(simOpts, sim.WithLogger(opts.Logger))
	}
	s := sim.New(proto, m.Locals, mach, simOpts...)

	w := newWorklist(blocks)
	blocks[0].Frame = initial
	w.add(0)

	for {
		i, ok := w.next()
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b := blocks[i]
		log.Debugf("%s: %s", m, b)

		f := b.Frame.Copy()
		rec.BeginBlock(b.Start, b.End, b.Catches)
		if err := s.Simulate(m.Code, b.Start, b.End, f); err != nil {
			return nil, frame.AddContext(err, fmt.Sprintf("...while working on block %04x", b.Start))
		}

		for _, succ := range b.Successors {
			if err := w.merge(succ, f); err != nil {
				return nil, frame.AddContext(err, fmt.Sprintf("...while merging block %04x into %04x", b.Start, succ))
			}
		}
		types := b.Catches.ExceptionTypes()
		for j, pc := range b.Handlers {
			hf, err := f.MakeExceptionHandlerStartFrame(types[j])
			if err != nil {
				return nil, frame.AddContext(err, fmt.Sprintf("...while entering handler %04x from block %04x", pc, b.Start))
			}
			if err := w.merge(pc, hf); err != nil {
				return nil, frame.AddContext(err, fmt.Sprintf("...while merging block %04x into handler %04x", b.Start, pc))
			}
		}
	}
	return &Result{Method: m, Blocks: blocks, Recorder: rec}, nil
}

// worklist holds the blocks whose start frame changed since they were
// last simulated. The lowest pending block is taken first.
type worklist struct {
	blocks  []*Block
	byStart map[int]int
	pending []bool
}

func newWorklist(blocks []*Block) *worklist {
	w := &worklist{
		blocks:  blocks,
		byStart: make(map[int]int, len(blocks)),
		pending: make([]bool, len(blocks)),
	}
	for i, b := range blocks {
		w.byStart[b.Start] = i
	}
	return w
}

func (w *worklist) add(i int) { w.pending[i] = true }

func (w *worklist) next() (int, bool) {
	for i, p := range w.pending {
		if p {
			w.pending[i] = false
			return i, true
		}
	}
	return 0, false
}

// merge folds f into the start frame of the block at pc and queues the
// block if that frame changed.
func (w *worklist) merge(pc int, f *frame.Frame) error {
	i, ok := w.byStart[pc]
	if !ok {
		return fmt.Errorf("%w: no block at %04x", ErrInvalidTarget, pc)
	}
	b := w.blocks[i]
	if b.Frame == nil {
		c := f.Copy()
		c.SetImmutable()
		b.Frame = c
		w.add(i)
		return nil
	}
	merged, err := frame.MergeFrames(b.Frame, f)
	if err != nil {
		return err
	}
	if merged != b.Frame {
		merged.SetImmutable()
		b.Frame = merged
		w.add(i)
	}
	return nil
}
