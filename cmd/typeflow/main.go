// typeflow CLI - simulates the type flow of pre-decoded JVM methods
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/typeflow/flow"
	"github.com/chazu/typeflow/manifest"
	"github.com/chazu/typeflow/methodfile"
)

var log = commonlog.GetLogger("typeflow.cli")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run is main without the process exit, returning the exit status.
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("typeflow", flag.ContinueOnError)
	fs.SetOutput(stderr)
	verbose := fs.Bool("v", false, "Verbose output (info level logging)")
	configDir := fs.String("config", "", "Directory holding typeflow.toml (default: search upward from the working directory)")
	dumpDir := fs.String("dump", "", "Write CBOR dumps of the annotated instruction streams to this directory")
	jobs := fs.Int("j", 0, "Methods analyzed in parallel (default: from config, else number of CPUs)")
	disasm := fs.Bool("disasm", false, "Disassemble every method")
	lenient := fs.Bool("lenient-locals", false, "Ignore local variable table entries that disagree with the code (unlike the JVM verifier, which rejects such methods)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: typeflow [options] bundle.toml...\n\n")
		fmt.Fprintf(stderr, "Simulates every method of the given bundles and reports type errors.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  typeflow Foo.toml                 # Check one class\n")
		fmt.Fprintf(stderr, "  typeflow -j 4 -dump out *.toml    # Check many, dump annotated streams\n")
		fmt.Fprintf(stderr, "  typeflow -disasm Foo.toml         # Also print disassembly\n")
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := loadConfig(*configDir)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if *jobs > 0 {
		cfg.Analysis.Parallelism = *jobs
	}
	if *dumpDir != "" {
		cfg.Dump.Dir = *dumpDir
	}
	if *disasm {
		cfg.Dump.Disassemble = true
	}
	if *lenient {
		strict := false
		cfg.Simulator.StrictLocals = &strict
	}
	configureLogging(cfg, *verbose)

	var methods []*flow.Method
	for _, path := range fs.Args() {
		b, err := methodfile.Load(path)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		ms, err := b.FlowMethods(cfg.Simulator.DetectArrayInit)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %s: %v\n", path, err)
			return 1
		}
		log.Infof("loaded %d methods from %s", len(ms), path)
		methods = append(methods, ms...)
	}

	batch, err := flow.AnalyzeAll(context.Background(), methods, flow.Options{
		LenientLocals: !cfg.IsStrictLocals(),
		Parallelism:   cfg.Analysis.Parallelism,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if err := writeOutputs(cfg, batch, stdout); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	failed := batch.Failed()
	for _, o := range failed {
		fmt.Fprintf(stderr, "%s: %v\n", o.Method, o.Err)
	}
	if *verbose {
		fmt.Fprintf(stdout, "Analyzed %d methods, %d failed (run %s)\n", len(methods), len(failed), batch.RunID)
	}
	if len(failed) > 0 {
		return 1
	}
	return 0
}

// loadConfig loads typeflow.toml from dir, or searches upward from the
// working directory when dir is empty. No file means defaults.
func loadConfig(dir string) (*manifest.Manifest, error) {
	if dir != "" {
		return manifest.Load(dir)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfg, err := manifest.FindAndLoad(wd)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return manifest.Default(), nil
	}
	return cfg, nil
}

func configureLogging(cfg *manifest.Manifest, verbose bool) {
	verbosity := cfg.Log.Verbosity
	if verbose && verbosity < 1 {
		verbosity = 1
	}
	var path *string
	if p := cfg.LogPath(); p != "" {
		path = &p
	}
	commonlog.Configure(verbosity, path)
}
