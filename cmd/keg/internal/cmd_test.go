package internal

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"emperror.dev/errors"

	"github.com/maxgog/keg/internal/config"
	"github.com/maxgog/keg/internal/store"
)

const helloFormula = `name: hello
desc: Prints a greeting
homepage: https://example.com/hello
url: https://example.com/hello-1.2.0.tar.gz
sha256: 5f70bf18a086007016e948b04aed3b82103a36bea41755b6cddfaf10ace3c6ef
license: MIT
install:
  - [make, install, "PREFIX=${prefix}"]
test:
  - ["${bin}/hello"]
`

type sandbox struct {
	config string
	root   string
}

func newSandbox(t *testing.T) *sandbox {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("KEG_ROOT", "")
	t.Setenv("KEG_CACHE", filepath.Join(dir, "cache"))
	return &sandbox{
		config: filepath.Join(dir, "config.yml"),
		root:   filepath.Join(dir, "root"),
	}
}

func (s *sandbox) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetArgs(append([]string{"--config", s.config, "--root", s.root}, args...))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestTapLocalDirectory(t *testing.T) {
	s := newSandbox(t)
	tapDir := t.TempDir()
	writeFile(t, filepath.Join(tapDir, "Formula", "hello.yml"), helloFormula)

	if _, err := s.run(t, "tap", "local", tapDir); err != nil {
		t.Fatalf("tap: %v", err)
	}
	cfg, err := config.Load(s.config)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Taps) != 1 || cfg.Taps[0].Name != "local" || cfg.Taps[0].Dir != tapDir {
		t.Fatalf("config taps = %+v", cfg.Taps)
	}
	if data, _ := os.ReadFile(s.config); strings.Contains(string(data), "root:") {
		t.Errorf("tap saved the --root override:\n%s", data)
	}

	out, err := s.run(t, "tap")
	if err != nil {
		t.Fatalf("tap list: %v", err)
	}
	if !strings.Contains(out, "local") || !strings.Contains(out, "1 formulae") {
		t.Errorf("tap list = %q", out)
	}

	if _, err := s.run(t, "untap", "local"); err != nil {
		t.Fatalf("untap: %v", err)
	}
	if _, err := os.Stat(tapDir); err != nil {
		t.Errorf("untap removed a user directory: %v", err)
	}
	if _, err := s.run(t, "untap", "local"); err == nil {
		t.Error("second untap succeeded")
	}
}

func TestTapRejectsBadName(t *testing.T) {
	s := newSandbox(t)
	if _, err := s.run(t, "tap", "a/b", t.TempDir()); err == nil {
		t.Fatal("tap accepted a name with a slash")
	}
}

func TestInfoNotInstalled(t *testing.T) {
	s := newSandbox(t)
	writeFile(t, filepath.Join(s.root, "Taps", "core", "hello.yml"), helloFormula)

	out, err := s.run(t, "info", "hello")
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	for _, want := range []string{"hello", "1.2.0", "Prints a greeting", "License: MIT", "Not installed"} {
		if !strings.Contains(out, want) {
			t.Errorf("info output missing %q:\n%s", want, out)
		}
	}
}

func TestAudit(t *testing.T) {
	s := newSandbox(t)
	writeFile(t, filepath.Join(s.root, "Taps", "core", "hello.yml"), helloFormula)

	if out, err := s.run(t, "audit", "hello"); err != nil {
		t.Fatalf("audit of a clean formula: %v\n%s", err, out)
	}

	broken := strings.Replace(helloFormula, "sha256: 5f70bf18a086007016e948b04aed3b82103a36bea41755b6cddfaf10ace3c6ef\n", "", 1)
	writeFile(t, filepath.Join(s.root, "Taps", "core", "broken.yml"), strings.Replace(broken, "name: hello", "name: broken", 1))

	out, err := s.run(t, "audit")
	if !errors.Is(err, errReported) {
		t.Fatalf("audit err = %v, want errReported", err)
	}
	if !strings.Contains(out, "broken") || !strings.Contains(out, "sha256: missing") {
		t.Errorf("audit output = %q", out)
	}
}

func TestListEmpty(t *testing.T) {
	s := newSandbox(t)
	out, err := s.run(t, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if out != "" {
		t.Errorf("list of an empty root = %q", out)
	}
}

func TestPrintPkgConfigInfo_NoPkgConfigDir(t *testing.T) {
	var out bytes.Buffer
	if err := printPkgConfigInfo(&out, t.TempDir()); err == nil {
		t.Error("printPkgConfigInfo succeeded without a pkgconfig directory")
	}
	if out.Len() != 0 {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestPrintPkgConfigInfo_NoPCFiles(t *testing.T) {
	prefix := t.TempDir()
	writeFile(t, filepath.Join(prefix, "lib", "pkgconfig", "README"), "not a pc file")
	var out bytes.Buffer
	if err := printPkgConfigInfo(&out, prefix); err != nil {
		t.Fatal(err)
	}
	if out.Len() != 0 {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestKegUsage(t *testing.T) {
	prefix := t.TempDir()
	writeFile(t, filepath.Join(prefix, "bin", "hello"), "12345")
	writeFile(t, filepath.Join(prefix, "share", "doc", "README"), "123")
	files, size := kegUsage(prefix)
	if files != 2 || size != 8 {
		t.Errorf("kegUsage = %d files, %d bytes, want 2, 8", files, size)
	}
}

func TestFormatActivity(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		act  store.Activity
		want []string
	}{
		{
			store.Activity{Event: store.EventInstall, Formula: "hello", Version: "1.2.0", Timestamp: ts},
			[]string{"install", "hello 1.2.0"},
		},
		{
			store.Activity{Event: store.EventFailed, Formula: "hello", Message: "step 2 failed", Timestamp: ts},
			[]string{"failed", "hello: step 2 failed"},
		},
	}
	for _, tt := range tests {
		got := formatActivity(tt.act)
		for _, want := range tt.want {
			if !strings.Contains(got, want) {
				t.Errorf("formatActivity(%v) = %q, missing %q", tt.act.Event, got, want)
			}
		}
	}
}

func TestInfoGroupsDependencies(t *testing.T) {
	s := newSandbox(t)
	withDeps := strings.Replace(helloFormula, "install:\n", "depends_on:\n  - zlib\n  - name: cmake\n    type: build\ninstall:\n", 1)
	writeFile(t, filepath.Join(s.root, "Taps", "core", "hello.yml"), withDeps)

	out, err := s.run(t, "info", "hello")
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	build := strings.Index(out, "Build dependencies:")
	runtime := strings.Index(out, "\nDependencies:")
	if build < 0 || runtime < 0 {
		t.Fatalf("info output missing dependency groups:\n%s", out)
	}
	if !strings.Contains(out[build:runtime], "cmake") || !strings.Contains(out[runtime:], "zlib") {
		t.Errorf("dependencies listed under the wrong group:\n%s", out)
	}
}

func TestRackVersions(t *testing.T) {
	rack := t.TempDir()
	for _, v := range []string{"1.10.0", "1.2.0", "1.9.1"} {
		if err := os.MkdirAll(filepath.Join(rack, v), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	writeFile(t, filepath.Join(rack, "stray"), "")

	got := rackVersions(rack, "1.9.1")
	if strings.Join(got, ",") != "1.2.0,1.10.0" {
		t.Errorf("rackVersions = %v, want [1.2.0 1.10.0]", got)
	}
	if got := rackVersions(filepath.Join(rack, "missing"), ""); got != nil {
		t.Errorf("rackVersions of a missing rack = %v", got)
	}
}
