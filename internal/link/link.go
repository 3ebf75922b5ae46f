// Package link exposes keg executables in the shared bin directory.
package link

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"emperror.dev/errors"
	"github.com/karrick/godirwalk"

	"github.com/maxgog/keg/internal/errs"
)

// Link symlinks every executable of kegDir/bin into binDir and returns the
// names linked. A name already linked into another version of the same
// formula is relinked; any other existing entry is a conflict and nothing
// is linked.
func Link(kegDir, binDir string) ([]string, error) {
	src := filepath.Join(kegDir, "bin")
	names, err := readNames(src)
	if err != nil || names == nil {
		return nil, err
	}

	type pending struct {
		name, target string
		replace      bool
	}
	var todo []pending
	for _, name := range names {
		target := filepath.Join(src, name)
		fi, err := os.Stat(target)
		if err != nil || fi.IsDir() || fi.Mode()&0o111 == 0 {
			continue
		}
		dst := filepath.Join(binDir, name)
		owner, err := os.Readlink(dst)
		switch {
		case errors.Is(err, os.ErrNotExist):
			todo = append(todo, pending{name: name, target: target})
		case err != nil:
			return nil, errs.E(errs.ErrLinkConflict, nil, "path", dst, "owner", "not a symlink")
		case within(kegDir, owner):
		case sameRack(kegDir, owner):
			todo = append(todo, pending{name: name, target: target, replace: true})
		default:
			return nil, errs.E(errs.ErrLinkConflict, nil, "path", dst, "owner", owner)
		}
	}

	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return nil, errors.WithStack(err)
	}
	var linked []string
	for _, p := range todo {
		dst := filepath.Join(binDir, p.name)
		if p.replace {
			if err := os.Remove(dst); err != nil {
				return linked, errors.WithStack(err)
			}
		}
		if err := os.Symlink(p.target, dst); err != nil {
			return linked, errors.WithStack(err)
		}
		linked = append(linked, p.name)
	}
	return linked, nil
}

// Unlink removes the links in binDir that point into kegDir and returns
// their names.
func Unlink(kegDir, binDir string) ([]string, error) {
	names, err := readNames(binDir)
	if err != nil || names == nil {
		return nil, err
	}

	var removed []string
	for _, name := range names {
		p := filepath.Join(binDir, name)
		target, err := os.Readlink(p)
		if err != nil || !within(kegDir, target) {
			continue
		}
		if err := os.Remove(p); err != nil {
			return removed, errors.WithStack(err)
		}
		removed = append(removed, name)
	}
	return removed, nil
}

// readNames returns the sorted entry names of dir, or nil when dir does not
// exist.
func readNames(dir string) ([]string, error) {
	names, err := godirwalk.ReadDirnames(dir, nil)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	sort.Strings(names)
	return names, nil
}

func within(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// sameRack reports whether p lies in a sibling version of kegDir, i.e.
// under the same Cellar/<name> directory.
func sameRack(kegDir, p string) bool {
	rack := filepath.Dir(kegDir)
	rel, err := filepath.Rel(rack, p)
	if err != nil || !within(rack, p) {
		return false
	}
	version, _, _ := strings.Cut(rel, string(filepath.Separator))
	return version != "." && version != ""
}
