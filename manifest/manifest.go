// Package manifest handles typeflow.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

// FileName is the name of the configuration file.
const FileName = "typeflow.toml"

// Manifest represents a typeflow.toml project configuration.
type Manifest struct {
	Project   Project   `toml:"project"`
	Simulator Simulator `toml:"simulator"`
	Analysis  Analysis  `toml:"analysis"`
	Log       Log       `toml:"log"`
	Dump      Dump      `toml:"dump"`

	// Dir is the directory containing the typeflow.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name string `toml:"name"`
}

// Simulator configures instruction simulation.
type Simulator struct {
	// StrictLocals fails a method whose local variable table disagrees
	// with its opcodes, as the JVM verifier does. When false such entries
	// are ignored.
	StrictLocals *bool `toml:"strict-locals"`

	DetectArrayInit bool `toml:"detect-array-init"`
}

// Analysis configures the method-level driver.
type Analysis struct {
	Parallelism int `toml:"parallelism"`
}

// Log configures commonlog.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Dump configures the annotated instruction dumps.
type Dump struct {
	Dir         string `toml:"dir"`
	Disassemble bool   `toml:"disassemble"`
}

// Default returns the configuration used when no typeflow.toml exists.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

// Load parses a typeflow.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return m, nil
}

// Parse decodes typeflow.toml content and fills in defaults.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %q", undecoded[0].String())
	}
	if m.Analysis.Parallelism < 0 {
		return nil, fmt.Errorf("analysis.parallelism must not be negative, got %d", m.Analysis.Parallelism)
	}
	m.applyDefaults()
	return &m, nil
}

func (m *Manifest) applyDefaults() {
	if m.Simulator.StrictLocals == nil {
		strict := true
		m.Simulator.StrictLocals = &strict
	}
	if m.Analysis.Parallelism == 0 {
		m.Analysis.Parallelism = runtime.NumCPU()
	}
}

// FindAndLoad walks up from startDir to find a typeflow.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// IsStrictLocals reports whether local variable table mismatches are fatal.
func (m *Manifest) IsStrictLocals() bool {
	return m.Simulator.StrictLocals == nil || *m.Simulator.StrictLocals
}

// DumpDir returns the absolute dump directory, or "" if dumps are off.
func (m *Manifest) DumpDir() string {
	if m.Dump.Dir == "" {
		return ""
	}
	if filepath.IsAbs(m.Dump.Dir) || m.Dir == "" {
		return m.Dump.Dir
	}
	return filepath.Join(m.Dir, m.Dump.Dir)
}

// LogPath returns the absolute log file path, or "" for stderr.
func (m *Manifest) LogPath() string {
	if m.Log.File == "" || filepath.IsAbs(m.Log.File) || m.Dir == "" {
		return m.Log.File
	}
	return filepath.Join(m.Dir, m.Log.File)
}
