package formula

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"

	"github.com/maxgog/keg/internal/errs"
)

// Exts lists the file extensions a formula may be stored with.
var Exts = []string{".yml", ".yaml", ".toml"}

// IsFormulaFile reports whether the name carries a formula extension.
func IsFormulaFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Exts {
		if ext == e {
			return true
		}
	}
	return false
}

// Parse decodes a formula. The format is chosen by the extension of name.
// When the document carries no name, it is taken from the file name.
func Parse(name string, data []byte) (*Formula, error) {
	f := new(Formula)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yml", ".yaml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(f); err != nil {
			return nil, errs.E(errs.ErrInvalidFormula, err, "file", name)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), f); err != nil {
			return nil, errs.E(errs.ErrInvalidFormula, err, "file", name)
		}
	default:
		return nil, errs.E(errs.ErrInvalidFormula, zerr.New("unsupported formula format"), "file", name)
	}
	if f.Name == "" {
		base := filepath.Base(name)
		f.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return f, nil
}

// ParseFile reads and decodes the formula stored at path.
func ParseFile(path string) (*Formula, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Parse(path, data)
	if err != nil {
		return nil, err
	}
	f.Path = path
	return f, nil
}
