package fetch

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strings"

	"emperror.dev/errors"

	"github.com/maxgog/keg/internal/errs"
)

// Sum returns the hex encoded SHA-256 digest of the file at path.
func Sum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.WithStack(err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.WithStack(err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify checks that the file at path has the SHA-256 digest want. A
// mismatch is an errs.ErrChecksumMismatch carrying both digests.
func Verify(path, want string) error {
	got, err := Sum(path)
	if err != nil {
		return err
	}
	if !strings.EqualFold(got, strings.TrimSpace(want)) {
		return errs.E(errs.ErrChecksumMismatch, nil, "file", path, "expected", want, "actual", got)
	}
	return nil
}
