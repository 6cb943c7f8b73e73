package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/typeflow/machine"
)

const chooseBundle = `
class = "com/example/Foo"

[[method]]
name = "choose"
descriptor = "(I)I"
static = true
max-stack = 1
max-locals = 1
code = "1a 99 00 07 04 a7 00 04 03 ac"
`

const badBundle = `
class = "com/example/Bar"

[[method]]
name = "bad"
descriptor = "()I"
static = true
max-stack = 1
max-locals = 0
code = "01 b0"
`

func writeProject(t *testing.T, config string, bundles map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "typeflow.toml"), []byte(config), 0644); err != nil {
		t.Fatal(err)
	}
	for name, content := range bundles {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestRunSuccessWritesDump(t *testing.T) {
	dir := writeProject(t, "[dump]\ndir = \"out\"\n", map[string]string{"Foo.toml": chooseBundle})

	var stdout, stderr bytes.Buffer
	code := run([]string{"-config", dir, filepath.Join(dir, "Foo.toml")}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit %d, stderr:\n%s", code, stderr.String())
	}

	data, err := os.ReadFile(filepath.Join(dir, "out", "000-com.example.Foo.choose.cbor"))
	if err != nil {
		t.Fatalf("dump not written: %v", err)
	}
	d, err := machine.UnmarshalDump(data)
	if err != nil {
		t.Fatal(err)
	}
	if d.Class != "com/example/Foo" || d.Method != "choose" || d.RunID == "" {
		t.Errorf("dump header = %+v", d)
	}
	if d.InsnCount() != 6 {
		t.Errorf("dump has %d instructions, want 6", d.InsnCount())
	}
}

func TestRunReportsFailures(t *testing.T) {
	dir := writeProject(t, "[project]\nname = \"t\"\n", map[string]string{
		"Foo.toml": chooseBundle,
		"Bar.toml": badBundle,
	})

	var stdout, stderr bytes.Buffer
	code := run([]string{"-config", dir, "-j", "2",
		filepath.Join(dir, "Foo.toml"), filepath.Join(dir, "Bar.toml")}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("exit %d, want 1", code)
	}
	out := stderr.String()
	if !strings.Contains(out, "com.example.Bar.bad()I: ") {
		t.Errorf("stderr lacks failing method:\n%s", out)
	}
	if strings.Contains(out, "choose") {
		t.Errorf("stderr mentions the passing method:\n%s", out)
	}
}

func TestRunDisassembleToStdout(t *testing.T) {
	dir := writeProject(t, "", map[string]string{"Foo.toml": chooseBundle})

	var stdout, stderr bytes.Buffer
	code := run([]string{"-config", dir, "-disasm", filepath.Join(dir, "Foo.toml")}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit %d, stderr:\n%s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "; === com.example.Foo.choose(I)I ===") {
		t.Errorf("stdout lacks listing header:\n%s", stdout.String())
	}
}

func TestRunUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"no bundles", nil, 2},
		{"bad flag", []string{"-nope"}, 2},
		{"missing bundle", []string{"-config", t.TempDir(), "missing.toml"}, 1},
	}
	for _, tt := range tests {
		var stdout, stderr bytes.Buffer
		if code := run(tt.args, &stdout, &stderr); code != tt.want {
			t.Errorf("%s: exit %d, want %d", tt.name, code, tt.want)
		}
	}
}

func TestUsageLenientLocals(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"-h"}, &stdout, &stderr); code != 2 {
		t.Errorf("exit %d, want 2", code)
	}
	usage := stderr.String()
	for _, want := range []string{"-lenient-locals", "unlike the JVM verifier"} {
		if !strings.Contains(usage, want) {
			t.Errorf("usage lacks %q:\n%s", want, usage)
		}
	}
}

func TestDumpName(t *testing.T) {
	dir := writeProject(t, "", map[string]string{"Foo.toml": `
class = "com/example/Foo"

[[method]]
name = "<init>"
descriptor = "()V"
max-stack = 1
max-locals = 1
code = "b1"
`})
	var stdout, stderr bytes.Buffer
	code := run([]string{"-config", dir, "-dump", filepath.Join(dir, "d"), filepath.Join(dir, "Foo.toml")}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit %d, stderr:\n%s", code, stderr.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "d", "000-com.example.Foo._init_.cbor")); err != nil {
		t.Error(err)
	}
}
