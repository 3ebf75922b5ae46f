// Package tap locates formulae in formula repositories ("taps").
//
// A tap is a directory holding formula files, either directly or under a
// Formula subdirectory. A tap with a remote is a shallow git checkout that
// Sync keeps up to date.
package tap

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"emperror.dev/errors"
	"github.com/apex/log"
	"github.com/karrick/godirwalk"

	"github.com/maxgog/keg/formula"
	"github.com/maxgog/keg/internal/vcs"
)

// Tap is one formula repository.
type Tap struct {
	Name   string
	Dir    string
	Remote string
	Ref    string
}

// IsGit reports whether the tap is backed by a git remote.
func (t *Tap) IsGit() bool {
	return t.Remote != ""
}

// FormulaDir returns Dir/Formula when it exists, otherwise Dir.
func (t *Tap) FormulaDir() string {
	sub := filepath.Join(t.Dir, "Formula")
	if fi, err := os.Stat(sub); err == nil && fi.IsDir() {
		return sub
	}
	return t.Dir
}

// Formulae returns the paths of all formula files in the tap, sorted. A tap
// whose directory does not exist yet is empty.
func (t *Tap) Formulae() ([]string, error) {
	root := t.FormulaDir()
	if _, err := os.Stat(root); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	var paths []string
	err := godirwalk.Walk(root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(p string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				if p != root && strings.HasPrefix(de.Name(), ".") {
					return godirwalk.SkipThis
				}
				return nil
			}
			if formula.IsFormulaFile(de.Name()) && (de.IsRegular() || de.IsSymlink()) {
				paths = append(paths, p)
			}
			return nil
		},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "tap %s: could not list formulae", t.Name)
	}
	sort.Strings(paths)
	return paths, nil
}

// Path returns the file defining the named formula.
func (t *Tap) Path(name string) (string, bool) {
	dir := t.FormulaDir()
	for _, ext := range formula.Exts {
		p := filepath.Join(dir, name+ext)
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p, true
		}
	}
	// Formulae may be sharded into subdirectories.
	paths, err := t.Formulae()
	if err != nil {
		return "", false
	}
	for _, p := range paths {
		base := filepath.Base(p)
		if strings.TrimSuffix(base, filepath.Ext(base)) == name {
			return p, true
		}
	}
	return "", false
}

// Sync brings a git tap up to date. Plain directory taps are left alone, as
// are clones whose HEAD already matches the remote ref.
func (t *Tap) Sync(ctx context.Context, v vcs.VCS) error {
	if !t.IsGit() {
		return nil
	}
	if latest, err := v.Latest(ctx, t.Remote, t.Ref); err == nil {
		if head, err := v.Head(ctx, t.Dir); err == nil && head == latest {
			log.WithFields(log.Fields{"tap": t.Name, "head": head}).Debug("tap is up to date")
			return nil
		}
	}
	log.WithFields(log.Fields{"tap": t.Name, "remote": t.Remote}).Info("updating tap")
	if err := v.Sync(ctx, t.Remote, t.Ref, t.Dir); err != nil {
		return errors.Wrapf(err, "tap %s", t.Name)
	}
	if head, err := v.Head(ctx, t.Dir); err == nil {
		log.WithFields(log.Fields{"tap": t.Name, "head": head}).Debug("tap updated")
	}
	return nil
}
