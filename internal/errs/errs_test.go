package errs

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.trai.ch/zerr"
)

func TestErrorMatchesKindAndCause(t *testing.T) {
	err := E(ErrChecksumMismatch, fs.ErrNotExist, "file", "a.tar.gz", "want", "abc")

	assert.ErrorIs(t, err, ErrChecksumMismatch)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.NotErrorIs(t, err, ErrDownloadFailed)
	assert.Equal(t, "a.tar.gz", err.Field("file"))
	assert.Equal(t, "checksum mismatch: file does not exist (file=a.tar.gz, want=abc)", err.Error())
}

func TestErrorWithKeepsOrder(t *testing.T) {
	err := E(ErrStepFailed, nil, "step", 1).With("log", "x.log").With("step", 2)
	assert.Equal(t, "install step failed (step=2, log=x.log)", err.Error())
	assert.Equal(t, map[string]any{"step": 2, "log": "x.log"}, err.Fields())
}

func TestErrorSurvivesWrapping(t *testing.T) {
	wrapped := zerr.Wrap(E(ErrNotInstalled, nil, "formula", "seekfs"), "uninstall")

	var e *Error
	assert.True(t, errors.As(wrapped, &e))
	assert.ErrorIs(t, wrapped, ErrNotInstalled)
	assert.Equal(t, "seekfs", e.Field("formula"))
}

func TestZerrWithDropsSentinel(t *testing.T) {
	assert.False(t, errors.Is(zerr.With(ErrNotInstalled, "formula", "seekfs"), ErrNotInstalled))
}
