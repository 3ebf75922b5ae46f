// Package archive unpacks source archives.
package archive

import (
	"archive/tar"
	"archive/zip"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"emperror.dev/errors"
	"github.com/apex/log"
	kzip "github.com/klauspost/compress/zip"
	"github.com/mholt/archiver/v4"

	"github.com/maxgog/keg/internal/errs"
)

// Extract unpacks the archive at src into dest, which is created if needed.
// The format is identified from the file name and content. It returns the
// source root: the single top-level directory of the archive if there is
// exactly one, dest otherwise.
func Extract(ctx context.Context, src, dest string) (string, error) {
	f, err := os.Open(src)
	if err != nil {
		return "", errors.WithStack(err)
	}
	defer f.Close()

	format, input, err := archiver.Identify(filepath.Base(src), f)
	if err != nil {
		if errors.Is(err, archiver.ErrNoMatch) {
			return "", errors.Errorf("%s: unknown archive format", filepath.Base(src))
		}
		return "", errors.WithStack(err)
	}
	ex, ok := format.(archiver.Extractor)
	if !ok {
		return "", errors.Errorf("%s: format %T cannot be extracted", filepath.Base(src), format)
	}
	switch format.(type) {
	case archiver.Zip, *archiver.Zip:
		// Zip reads the central directory at the end and needs the file itself.
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return "", errors.WithStack(err)
		}
		input = f
	}

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", errors.WithStack(err)
	}
	dest, err = filepath.Abs(dest)
	if err != nil {
		return "", errors.WithStack(err)
	}

	var count int
	err = ex.Extract(ctx, input, nil, func(ctx context.Context, f archiver.File) error {
		count++
		return writeEntry(dest, f)
	})
	if err != nil {
		return "", err
	}
	log.WithFields(log.Fields{"archive": src, "entries": count}).Debug("extracted archive")
	return sourceRoot(dest)
}

func writeEntry(dest string, f archiver.File) error {
	name := nameInArchive(f)
	p, err := within(dest, name)
	if err != nil {
		return err
	}
	if p == dest {
		return nil
	}
	// Links written by earlier entries must not redirect later ones.
	if link, err := firstSymlink(dest, filepath.Dir(p)); err != nil {
		return err
	} else if link != "" {
		return errs.E(errs.ErrUnsafeArchive, nil, "entry", name, "through", link)
	}
	isLink := false
	if fi, err := os.Lstat(p); err == nil {
		isLink = fi.Mode()&fs.ModeSymlink != 0
	}

	mode := f.Mode()
	switch {
	case f.IsDir():
		if isLink {
			return errs.E(errs.ErrUnsafeArchive, nil, "entry", name, "through", p)
		}
		return errors.WithStack(os.MkdirAll(p, mode.Perm()|0o700))
	case mode&fs.ModeSymlink != 0:
		target := linkTarget(f)
		if filepath.IsAbs(target) {
			return errs.E(errs.ErrUnsafeArchive, nil, "entry", name, "target", target)
		}
		if _, err := within(dest, filepath.Join(filepath.Dir(name), target)); err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return errors.WithStack(err)
		}
		os.Remove(p)
		return errors.WithStack(os.Symlink(target, p))
	case !mode.IsRegular():
		// Devices, fifos and the like have no place in a source tree.
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return errors.WithStack(err)
	}
	if isLink {
		if err := os.Remove(p); err != nil {
			return errors.WithStack(err)
		}
	}
	r, err := f.Open()
	if err != nil {
		return errors.WithStack(err)
	}
	defer r.Close()
	out, err := os.OpenFile(p, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm()|0o200)
	if err != nil {
		return errors.WithStack(err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return errors.WithStack(err)
	}
	if err := out.Close(); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.Chtimes(p, f.ModTime(), f.ModTime()))
}

// firstSymlink returns the first existing symlink on the way from dest down
// to dir, or "" if there is none.
func firstSymlink(dest, dir string) (string, error) {
	rel, err := filepath.Rel(dest, dir)
	if err != nil {
		return "", errors.WithStack(err)
	}
	if rel == "." {
		return "", nil
	}
	cur := dest
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		cur = filepath.Join(cur, part)
		fi, err := os.Lstat(cur)
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		if err != nil {
			return "", errors.WithStack(err)
		}
		if fi.Mode()&fs.ModeSymlink != 0 {
			return cur, nil
		}
	}
	return "", nil
}

// within joins name onto dest and rejects results outside dest.
func within(dest, name string) (string, error) {
	p := filepath.Join(dest, filepath.FromSlash(name))
	rel, err := filepath.Rel(dest, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errs.E(errs.ErrUnsafeArchive, nil, "entry", name)
	}
	return p, nil
}

// nameInArchive returns the full path of an entry. The embedded FileInfo
// only knows the base name, the format specific header has the path.
func nameInArchive(f archiver.File) string {
	switch h := f.Sys().(type) {
	case *tar.Header:
		return h.Name
	case *zip.FileHeader:
		return h.Name
	case *kzip.FileHeader:
		return h.Name
	}
	return f.Name()
}

func linkTarget(f archiver.File) string {
	if h, ok := f.Sys().(*tar.Header); ok {
		return h.Linkname
	}
	return ""
}

func sourceRoot(dest string) (string, error) {
	entries, err := os.ReadDir(dest)
	if err != nil {
		return "", errors.WithStack(err)
	}
	var visible []os.DirEntry
	for _, e := range entries {
		// Metadata written by macOS tar.
		if e.Name() == "__MACOSX" || strings.HasPrefix(e.Name(), "._") {
			continue
		}
		visible = append(visible, e)
	}
	if len(visible) == 1 && visible[0].IsDir() {
		return filepath.Join(dest, visible[0].Name()), nil
	}
	return dest, nil
}
