package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"emperror.dev/errors"
	"github.com/apex/log"
	"github.com/spf13/cobra"

	"github.com/maxgog/keg/internal/config"
	"github.com/maxgog/keg/internal/tap"
	"github.com/maxgog/keg/internal/vcs"
)

var tapRef string

var tapCmd = &cobra.Command{
	Use:   "tap [name <remote|dir>]",
	Short: "List or add formula repositories",
	Long: `Without arguments, tap lists the known taps. With a name and a git remote
it adds a tap cloned into <root>/Taps/<name>; with a name and a local
directory it adds that directory as a tap.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 0 && len(args) != 2 {
			return errors.New("expected no arguments or a name and a remote")
		}
		return nil
	},
	RunE: runTap,
}

var untapCmd = &cobra.Command{
	Use:   "untap <name>",
	Short: "Remove a formula repository",
	Args:  cobra.ExactArgs(1),
	RunE:  runUntap,
}

func init() {
	tapCmd.Flags().StringVar(&tapRef, "ref", "HEAD", "Branch, tag or commit of a git tap")
	rootCmd.AddCommand(tapCmd, untapCmd)
}

func runTap(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(args) == 0 {
		taps, err := tap.FromConfig(cfg)
		if err != nil {
			return err
		}
		for _, t := range taps.Taps() {
			paths, _ := t.Formulae()
			origin := t.Dir
			if t.IsGit() {
				origin = t.Remote
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d formulae\t%s\n", t.Name, len(paths), origin)
		}
		return nil
	}

	name, source := args[0], args[1]
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return errors.Errorf("invalid tap name %q", name)
	}
	entry := config.Tap{Name: name, Ref: tapRef}
	if fi, err := os.Stat(source); err == nil && fi.IsDir() {
		abs, err := filepath.Abs(source)
		if err != nil {
			return errors.WithStack(err)
		}
		entry.Dir = abs
	} else {
		entry.Remote = source
	}

	t := &tap.Tap{Name: name, Dir: cfg.TapDir(entry), Remote: entry.Remote, Ref: entry.Ref}
	if err := t.Sync(cmd.Context(), vcs.NewGitVCS()); err != nil {
		return err
	}
	cfg.AddTap(entry)
	if err := cfg.Save(); err != nil {
		return err
	}
	paths, _ := t.Formulae()
	log.WithFields(log.Fields{"tap": name, "dir": t.Dir}).Info(fmt.Sprintf("Tapped %s (%d formulae)", name, len(paths)))
	return nil
}

func runUntap(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	name := args[0]
	managed := filepath.Join(cfg.Layout().Taps(), name)

	var dir string
	for _, t := range cfg.Taps {
		if t.Name == name {
			dir = cfg.TapDir(t)
		}
	}
	removed := cfg.RemoveTap(name)
	if removed {
		if err := cfg.Save(); err != nil {
			return err
		}
	}
	// Only checkouts keg manages are deleted; a user directory stays.
	if dir == "" || dir == managed {
		if _, err := os.Stat(managed); err == nil {
			removed = true
			if err := os.RemoveAll(managed); err != nil {
				return errors.WithStack(err)
			}
		}
	}
	if !removed {
		return errors.Errorf("no tap named %q", name)
	}
	log.WithField("tap", name).Info("Untapped " + name)
	return nil
}
