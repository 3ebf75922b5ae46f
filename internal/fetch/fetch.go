// Package fetch downloads source archives into a local cache and verifies
// them against their declared checksum.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/apex/log"
	"github.com/cespare/xxhash/v2"

	"github.com/maxgog/keg/internal/errs"
	"github.com/maxgog/keg/internal/lockedfile"
)

// Downloader fetches archives into Dir. Files are named after a hash of
// their URL, so a cached file is reused by every formula pointing at it.
type Downloader struct {
	Dir    string
	Client *http.Client
}

// New returns a Downloader storing files in dir.
func New(dir string, timeout time.Duration) *Downloader {
	return &Downloader{
		Dir:    dir,
		Client: &http.Client{Timeout: timeout},
	}
}

// CachePath returns where the archive of rawURL is stored.
func (d *Downloader) CachePath(rawURL string) string {
	name := "download"
	if u, err := url.Parse(rawURL); err == nil {
		if base := path.Base(u.Path); base != "." && base != "/" {
			name = base
		}
	}
	return filepath.Join(d.Dir, fmt.Sprintf("%016x--%s", xxhash.Sum64String(rawURL), name))
}

// Fetch makes sure the archive at rawURL is in the cache and matches sum,
// downloading it when needed, and returns its local path. A cached file that
// does not match is discarded and downloaded again once.
func (d *Downloader) Fetch(ctx context.Context, rawURL, sum string) (string, error) {
	dst := d.CachePath(rawURL)
	logger := log.WithFields(log.Fields{"url": rawURL, "path": dst})

	// One download per cache file, across goroutines and processes.
	unlock, err := lockedfile.MutexAt(filepath.Join(d.Dir, ".locks", filepath.Base(dst)+".lock")).Lock()
	if err != nil {
		return "", errors.Wrapf(err, "could not lock %s", dst)
	}
	defer unlock()

	if _, err := os.Stat(dst); err == nil {
		if err := Verify(dst, sum); err == nil {
			logger.Debug("using cached download")
			return dst, nil
		}
		logger.Warn("cached download does not match its checksum, fetching again")
		if err := os.Remove(dst); err != nil {
			return "", errors.WithStack(err)
		}
	}

	logger.Debug("downloading")
	if err := d.download(ctx, rawURL, dst); err != nil {
		return "", err
	}
	if err := Verify(dst, sum); err != nil {
		// Keep nothing that failed verification in the cache.
		_ = os.Remove(dst)
		return "", err
	}
	return dst, nil
}

func (d *Downloader) download(ctx context.Context, rawURL, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o700); err != nil {
		return errors.WithStack(err)
	}
	body, err := d.open(ctx, rawURL)
	if err != nil {
		return errs.E(errs.ErrDownloadFailed, err, "url", rawURL)
	}
	defer body.Close()

	f, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*.incomplete")
	if err != nil {
		return errors.WithStack(err)
	}
	tmp := f.Name()
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(tmp)
		return errs.E(errs.ErrDownloadFailed, err, "url", rawURL)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.WithStack(err)
	}
	return errors.WithStack(os.Rename(tmp, dst))
}

func (d *Downloader) open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(u.Scheme) {
	case "file":
		return os.Open(filepath.FromSlash(u.Path))
	case "http", "https":
	default:
		return nil, fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "keg")
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// Clean removes every cached download and returns the number of bytes freed.
func (d *Downloader) Clean() (int64, error) {
	entries, err := os.ReadDir(d.Dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.WithStack(err)
	}
	var freed int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if info, err := e.Info(); err == nil {
			freed += info.Size()
		}
		if err := os.Remove(filepath.Join(d.Dir, e.Name())); err != nil {
			return freed, errors.WithStack(err)
		}
	}
	return freed, nil
}
