// Package vcs keeps tap checkouts in sync with their git remotes.
package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// VCS defines the interface for version control operations.
type VCS interface {
	// Sync ensures the local repo exists and is at the specified ref.
	// ref can be a branch, tag, commit hash or "HEAD".
	// If dir doesn't exist, it is created and initialized.
	// If dir exists, updates are fetched and the ref is checked out.
	Sync(ctx context.Context, remote, ref, dir string) error

	// Head returns the commit checked out in dir.
	Head(ctx context.Context, dir string) (string, error)

	// Latest returns the commit hash remote ref points to.
	Latest(ctx context.Context, remote, ref string) (string, error)
}

// gitVCS implements VCS using git.
type gitVCS struct {
	git string
}

// GitOption configures gitVCS.
type GitOption func(*gitVCS)

// WithGitPath sets a custom git executable path.
func WithGitPath(path string) GitOption {
	return func(g *gitVCS) {
		g.git = path
	}
}

// NewGitVCS creates a new git VCS instance.
func NewGitVCS(opts ...GitOption) VCS {
	g := &gitVCS{git: "git"}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// IsRepo reports whether dir is the top of a git checkout.
func IsRepo(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil
}

func (g *gitVCS) ensureInit(ctx context.Context, dir string) error {
	if IsRepo(dir) {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return g.run(ctx, dir, "init", "--quiet")
}

func (g *gitVCS) Sync(ctx context.Context, remote, ref, dir string) error {
	if ref == "" {
		ref = "HEAD"
	}
	if err := g.ensureInit(ctx, dir); err != nil {
		return err
	}
	if err := g.fetch(ctx, remote, dir, ref); err != nil {
		return err
	}
	return g.checkout(ctx, dir, "FETCH_HEAD")
}

func (g *gitVCS) fetch(ctx context.Context, remote, dir, ref string) error {
	args := []string{"fetch", "--quiet", "--depth", "1", remote, ref}
	if err := g.run(ctx, dir, args...); err != nil {
		return fmt.Errorf("fetch %s %s: %w", remote, ref, err)
	}
	return nil
}

func (g *gitVCS) checkout(ctx context.Context, dir, ref string) error {
	if err := g.run(ctx, dir, "checkout", "--quiet", "--force", ref); err != nil {
		return fmt.Errorf("checkout %s: %w", ref, err)
	}
	return nil
}

func (g *gitVCS) Head(ctx context.Context, dir string) (string, error) {
	output, err := g.output(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("rev-parse HEAD: %w", err)
	}
	return strings.TrimSpace(output), nil
}

func (g *gitVCS) Latest(ctx context.Context, remote, ref string) (string, error) {
	if ref == "" {
		ref = "HEAD"
	}
	output, err := g.output(ctx, "", "ls-remote", remote, ref)
	if err != nil {
		return "", fmt.Errorf("ls-remote %s: %w", remote, err)
	}

	output = strings.TrimSpace(output)
	if output == "" {
		return "", fmt.Errorf("no %s found in remote %s", ref, remote)
	}

	// format: <hash>\t<ref>
	line, _, _ := strings.Cut(output, "\n")
	hash, _, ok := strings.Cut(line, "\t")
	if !ok {
		return "", fmt.Errorf("invalid ls-remote output: %s", line)
	}
	return hash, nil
}

func (g *gitVCS) run(ctx context.Context, dir string, args ...string) error {
	_, err := g.output(ctx, dir, args...)
	return err
}

func (g *gitVCS) output(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, g.git, args...)
	if dir != "" {
		cmd.Dir = dir
	}
	// Never prompt for credentials.
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("%s", msg)
		}
		return "", err
	}
	return stdout.String(), nil
}
