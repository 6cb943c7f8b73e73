package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/typeflow/flow"
	"github.com/chazu/typeflow/machine"
	"github.com/chazu/typeflow/manifest"
)

// writeOutputs writes the CBOR dump of every successfully analyzed method
// and, if enabled, its disassembly. Without a dump directory disassembly
// goes to stdout.
func writeOutputs(cfg *manifest.Manifest, batch *flow.Batch, stdout io.Writer) error {
	dir := cfg.DumpDir()
	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("cannot create dump directory: %w", err)
		}
	}

	for i, o := range batch.Outcomes {
		m := o.Method
		base := dumpName(i, m)

		if cfg.Dump.Disassemble {
			listing := m.Code.DisassembleWithName(m.String(), m.Handlers)
			if dir == "" {
				fmt.Fprint(stdout, listing)
			} else if err := os.WriteFile(filepath.Join(dir, base+".txt"), []byte(listing), 0644); err != nil {
				return err
			}
		}

		if dir == "" || o.Err != nil {
			continue
		}
		d, err := machine.NewDump(batch.RunID.String(), m.Class, m.Name, m.Descriptor, o.Result.Recorder.Blocks())
		if err != nil {
			return fmt.Errorf("%s: %w", m, err)
		}
		data, err := machine.MarshalDump(d)
		if err != nil {
			return fmt.Errorf("%s: %w", m, err)
		}
		path := filepath.Join(dir, base+".cbor")
		if err := os.WriteFile(path, data, 0644); err != nil {
			return err
		}
		log.Debugf("wrote %s (%d instructions)", path, d.InsnCount())
	}
	return nil
}

var nameReplacer = strings.NewReplacer("/", ".", "<", "_", ">", "_")

// dumpName is the file name stem for the i-th method of a run. The index
// keeps overloads apart.
func dumpName(i int, m *flow.Method) string {
	return fmt.Sprintf("%03d-%s.%s", i, nameReplacer.Replace(m.Class), nameReplacer.Replace(m.Name))
}
