package autotools

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
}

// script writes an executable shell script that appends its working
// directory and arguments to record.
func script(t *testing.T, path, record string) {
	t.Helper()
	body := "#!/bin/sh\necho \"$(pwd -P) $*\" >> " + record + "\n"
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
}

func TestConfigureMakeInstall(t *testing.T) {
	skipWithoutShell(t)
	src := t.TempDir()
	build := filepath.Join(t.TempDir(), "build")
	record := filepath.Join(t.TempDir(), "calls")
	script(t, filepath.Join(src, "configure"), record)
	fakeMake := filepath.Join(t.TempDir(), "make")
	script(t, fakeMake, record)

	a := New(src, build, "/opt/keg/Cellar/hello/1.0")
	a.Make = fakeMake
	var out bytes.Buffer
	a.Stdout, a.Stderr = &out, &out

	ctx := context.Background()
	if err := a.Configure(ctx, "--disable-nls"); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := a.Build(ctx, "-j2"); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := a.Install(ctx); err != nil {
		t.Fatalf("Install: %v", err)
	}

	data, err := os.ReadFile(record)
	if err != nil {
		t.Fatal(err)
	}
	buildDir, _ := filepath.EvalSymlinks(build)
	want := []string{
		buildDir + " --prefix=/opt/keg/Cellar/hello/1.0 --disable-nls",
		buildDir + " -j2",
		buildDir + " install",
	}
	got := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(got) != len(want) {
		t.Fatalf("calls = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestInSourceBuild(t *testing.T) {
	a := New("/src", "", "")
	if got := a.workDir(); got != "/src" {
		t.Errorf("workDir = %q, want %q", got, "/src")
	}
	a.Source("/other")
	if got := a.workDir(); got != "/other" {
		t.Errorf("workDir after Source = %q, want %q", got, "/other")
	}
}

func TestEnvPassedToCommands(t *testing.T) {
	skipWithoutShell(t)
	src := t.TempDir()
	out := filepath.Join(t.TempDir(), "env")
	body := "#!/bin/sh\necho \"$KEG_AUTOTOOLS_TEST\" > " + out + "\n"
	if err := os.WriteFile(filepath.Join(src, "configure"), []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
	a := New(src, "", "")
	a.Env = append(os.Environ(), "KEG_AUTOTOOLS_TEST=yes")
	if err := a.Configure(context.Background()); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	data, _ := os.ReadFile(out)
	if strings.TrimSpace(string(data)) != "yes" {
		t.Errorf("configure saw %q, want yes", data)
	}
}

func TestConfigureFailure(t *testing.T) {
	skipWithoutShell(t)
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found in PATH")
	}
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "configure"), []byte("#!/bin/sh\nexit 3\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	err := New(src, "", "").Configure(context.Background())
	var ee *exec.ExitError
	if !errors.As(err, &ee) || ee.ExitCode() != 3 {
		t.Fatalf("Configure err = %v, want exit status 3", err)
	}
}
