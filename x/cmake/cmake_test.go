package cmake

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestUseSetsEnv(t *testing.T) {
	root := t.TempDir()
	includeDir := filepath.Join(root, "include")
	libDir := filepath.Join(root, "lib")
	pkgconfigDir := filepath.Join(libDir, "pkgconfig")
	for _, d := range []string{includeDir, libDir, pkgconfigDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", d, err)
		}
	}

	for _, key := range []string{
		"PKG_CONFIG_PATH", "CMAKE_PREFIX_PATH", "CMAKE_INCLUDE_PATH",
		"CMAKE_LIBRARY_PATH", "INCLUDE", "LIB", "CPPFLAGS", "LDFLAGS",
	} {
		t.Setenv(key, "")
	}

	c := New("", "", "")
	c.Use(root)

	for key, want := range map[string]string{
		"PKG_CONFIG_PATH":    pkgconfigDir,
		"CMAKE_PREFIX_PATH":  root,
		"CMAKE_INCLUDE_PATH": includeDir,
		"CMAKE_LIBRARY_PATH": libDir,
	} {
		if got := c.Getenv(key); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
		// The process environment is untouched.
		if got := os.Getenv(key); got != "" {
			t.Errorf("os %s = %q, want empty", key, got)
		}
	}

	if runtime.GOOS != "windows" {
		if got := c.Getenv("CPPFLAGS"); strings.TrimSpace(got) != "-I"+includeDir {
			t.Errorf("CPPFLAGS = %q, want %q", got, "-I"+includeDir)
		}
		if got := c.Getenv("LDFLAGS"); strings.TrimSpace(got) != "-L"+libDir {
			t.Errorf("LDFLAGS = %q, want %q", got, "-L"+libDir)
		}
	}
}

func TestUsePartialDirs(t *testing.T) {
	root := t.TempDir()
	os.MkdirAll(filepath.Join(root, "include"), 0o755)

	for _, key := range []string{
		"PKG_CONFIG_PATH", "CMAKE_LIBRARY_PATH",
	} {
		t.Setenv(key, "")
	}

	c := New("", "", "")
	c.Use(root)

	if got := c.Getenv("PKG_CONFIG_PATH"); got != "" {
		t.Errorf("PKG_CONFIG_PATH = %q, want empty", got)
	}
	if got := c.Getenv("CMAKE_LIBRARY_PATH"); got != "" {
		t.Errorf("CMAKE_LIBRARY_PATH = %q, want empty", got)
	}
}

func TestUseTwicePrepends(t *testing.T) {
	t.Setenv("CMAKE_PREFIX_PATH", "/existing")
	a, b := t.TempDir(), t.TempDir()

	c := New("", "", "")
	c.Use(a)
	c.Use(b)

	sep := string(os.PathListSeparator)
	want := b + sep + a + sep + "/existing"
	if got := c.Getenv("CMAKE_PREFIX_PATH"); got != want {
		t.Errorf("CMAKE_PREFIX_PATH = %q, want %q", got, want)
	}
}

func TestEnvironOverrides(t *testing.T) {
	t.Setenv("KEG_CMAKE_TEST", "old")
	c := New("", "", "")
	c.Env("KEG_CMAKE_TEST", "new")

	var found []string
	for _, kv := range c.Environ() {
		if strings.HasPrefix(kv, "KEG_CMAKE_TEST=") {
			found = append(found, kv)
		}
	}
	if len(found) != 1 || found[0] != "KEG_CMAKE_TEST=new" {
		t.Errorf("Environ entries = %v, want [KEG_CMAKE_TEST=new]", found)
	}
}

func TestStdArgs(t *testing.T) {
	args := StdArgs("/opt/keg/Cellar/seekfs/1.0.0")
	if args[0] != "-DCMAKE_INSTALL_PREFIX=/opt/keg/Cellar/seekfs/1.0.0" {
		t.Errorf("first arg = %q", args[0])
	}
	joined := strings.Join(args, " ")
	for _, want := range []string{"-DCMAKE_BUILD_TYPE=Release", "-DCMAKE_INSTALL_LIBDIR=lib", "-DBUILD_TESTING=OFF"} {
		if !strings.Contains(joined, want) {
			t.Errorf("StdArgs missing %q, got %q", want, joined)
		}
	}
}

func TestDefinesArgs(t *testing.T) {
	c := New("", "", "")
	c.Define("FOO", "BAR")
	c.DefineBool("ENABLE", true)
	c.DefineBool("DISABLE", false)

	args := c.definesArgs()
	if len(args) != 3 {
		t.Fatalf("definesArgs = %v, want 3 entries", args)
	}
	if args[0] != "-DDISABLE:BOOL=OFF" || args[1] != "-DENABLE:BOOL=ON" || args[2] != "-DFOO:STRING=BAR" {
		t.Errorf("definesArgs not sorted: %v", args)
	}
}

func TestDefinesArgsEmpty(t *testing.T) {
	c := New("", "", "")
	if args := c.definesArgs(); args != nil {
		t.Errorf("definesArgs on empty = %v, want nil", args)
	}
}

func TestSource(t *testing.T) {
	c := New("orig", "", "")
	c.Source("/new")
	if c.sourceDir != "/new" {
		t.Errorf("sourceDir = %q, want %q", c.sourceDir, "/new")
	}
}

// fakeCMake writes a script that records its arguments, one per line.
func fakeCMake(t *testing.T) (program, record string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in needs a POSIX shell")
	}
	dir := t.TempDir()
	record = filepath.Join(dir, "args")
	program = filepath.Join(dir, "cmake")
	script := "#!/bin/sh\nfor a in \"$@\"; do echo \"$a\" >> " + record + "; done\necho ---- >> " + record + "\n"
	if err := os.WriteFile(program, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return program, record
}

func TestConfigureBuildInstallArgs(t *testing.T) {
	program, record := fakeCMake(t)
	tmp := t.TempDir()

	c := New(tmp, filepath.Join(tmp, "build"), filepath.Join(tmp, "inst"))
	c.Program = program
	var out bytes.Buffer
	c.Stdout, c.Stderr = &out, &out
	c.BuildType("Release")
	c.Generator("Ninja")
	c.Define("FOO", "BAR")

	ctx := context.Background()
	if err := c.Configure(ctx, "-Wno-dev"); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := c.Build(ctx); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := c.Install(ctx); err != nil {
		t.Fatalf("Install: %v", err)
	}

	data, err := os.ReadFile(record)
	if err != nil {
		t.Fatal(err)
	}
	calls := strings.Split(strings.TrimSuffix(string(data), "----\n"), "----\n")
	if len(calls) != 3 {
		t.Fatalf("got %d invocations, want 3: %q", len(calls), data)
	}
	configure := strings.Fields(calls[0])
	for _, want := range []string{
		"-S", "-B", "-G", "Ninja",
		"-DCMAKE_BUILD_TYPE:STRING=Release",
		"-DCMAKE_INSTALL_PREFIX:STRING=" + filepath.Join(tmp, "inst"),
		"-DFOO:STRING=BAR",
		"-Wno-dev",
	} {
		if !contains(configure, want) {
			t.Errorf("configure args missing %q: %v", want, configure)
		}
	}
	if got := strings.Fields(calls[1]); got[0] != "--build" || !contains(got, "--config") {
		t.Errorf("build args = %v", got)
	}
	if got := strings.Fields(calls[2]); got[0] != "--install" || !contains(got, "--prefix") {
		t.Errorf("install args = %v", got)
	}
}

func TestConfigureFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	falseBin, err := exec.LookPath("false")
	if err != nil {
		t.Skip("false not found in PATH")
	}
	tmp := t.TempDir()
	c := New(tmp, filepath.Join(tmp, "build"), "")
	c.Program = falseBin
	if err := c.Configure(context.Background()); err == nil {
		t.Fatal("Configure succeeded with a failing cmake")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
