package machine

import (
	"github.com/chazu/typeflow/frame"
	"github.com/chazu/typeflow/sim"
)

// Tee is a sim.Machine that hands each instruction to every machine in
// turn, stopping at the first error. Nil entries are skipped.
type Tee []sim.Machine

func (t Tee) Run(f *frame.Frame, in *sim.Insn) error {
	for _, m := range t {
		if m == nil {
			continue
		}
		if err := m.Run(f, in); err != nil {
			return err
		}
	}
	return nil
}
