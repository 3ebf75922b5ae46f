package store

import (
	"os"
	"path/filepath"
	"time"

	"emperror.dev/errors"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// ReceiptFile is the name of the receipt written into every keg.
const ReceiptFile = "INSTALL_RECEIPT.json"

// Receipt describes how a keg was built.
type Receipt struct {
	InstallID    string            `json:"install_id"`
	Formula      string            `json:"formula"`
	Version      string            `json:"version"`
	Source       Source            `json:"source"`
	FormulaPath  string            `json:"formula_path,omitempty"`
	Dependencies []ReceiptDep      `json:"dependencies"`
	BuildTime    time.Time         `json:"build_time"`
	Duration     string            `json:"duration"`
	Environment  map[string]string `json:"environment,omitempty"`
	KegVersion   string            `json:"keg_version"`
}

// Source is the archive a keg was built from.
type Source struct {
	URL    string `json:"url"`
	SHA256 string `json:"sha256"`
}

// ReceiptDep is a dependency present during the build.
type ReceiptDep struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Version string `json:"version,omitempty"`
	Path    string `json:"path,omitempty"`
}

// NewReceipt returns a receipt with a fresh install id.
func NewReceipt(formula, version string) *Receipt {
	return &Receipt{
		InstallID:    uuid.NewString(),
		Formula:      formula,
		Version:      version,
		Dependencies: []ReceiptDep{},
		BuildTime:    time.Now().UTC(),
	}
}

// WriteReceipt stores r in kegDir.
func WriteReceipt(kegDir string, r *Receipt) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.WriteFile(filepath.Join(kegDir, ReceiptFile), append(data, '\n'), 0o644))
}

// ReadReceipt loads the receipt of the keg in kegDir.
func ReadReceipt(kegDir string) (*Receipt, error) {
	data, err := os.ReadFile(filepath.Join(kegDir, ReceiptFile))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var r Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrapf(err, "store: could not parse receipt in %s", kegDir)
	}
	return &r, nil
}
