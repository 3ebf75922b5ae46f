// Package autotools wraps the classic configure/make/make-install workflow.
package autotools

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
)

// AutoTools drives Autotools-style builds.
type AutoTools struct {
	sourceDir  string
	buildDir   string
	installDir string

	// Make is the make executable, "make" by default.
	Make string
	// Env is the environment of spawned commands, os.Environ() when nil.
	Env    []string
	Stdout io.Writer
	Stderr io.Writer
}

// New returns a ready-to-use AutoTools. An empty buildDir builds in the
// source tree.
func New(sourceDir, buildDir, installDir string) *AutoTools {
	return &AutoTools{
		sourceDir:  sourceDir,
		buildDir:   buildDir,
		installDir: installDir,
		Make:       "make",
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
	}
}

// Source overrides the source directory.
func (a *AutoTools) Source(dir string) { a.sourceDir = dir }

// Configure runs <sourceDir>/configure inside the build directory.
// --prefix is prepended automatically when installDir is set.
// Extra flags are appended after --prefix.
func (a *AutoTools) Configure(ctx context.Context, args ...string) error {
	dir := a.workDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	exe := filepath.Join(a.sourceDir, "configure")
	flags := make([]string, 0, 1+len(args))
	if a.installDir != "" {
		flags = append(flags, "--prefix="+a.installDir)
	}
	return a.run(ctx, exe, append(flags, args...))
}

// Build runs "make" with optional extra arguments.
func (a *AutoTools) Build(ctx context.Context, args ...string) error {
	return a.run(ctx, a.Make, args)
}

// Install runs "make install" with optional extra arguments appended.
func (a *AutoTools) Install(ctx context.Context, args ...string) error {
	return a.run(ctx, a.Make, append([]string{"install"}, args...))
}

func (a *AutoTools) workDir() string {
	if a.buildDir == "" {
		return a.sourceDir
	}
	return a.buildDir
}

func (a *AutoTools) run(ctx context.Context, name string, args []string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = a.workDir()
	cmd.Env = a.Env
	cmd.Stdout = a.Stdout
	cmd.Stderr = a.Stderr
	return cmd.Run()
}
