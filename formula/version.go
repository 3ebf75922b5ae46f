package formula

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/maxgog/keg/internal/errs"
)

// archiveSuffixes are stripped from a download name before a version is
// looked for. Longer suffixes come first.
var archiveSuffixes = []string{
	".tar.gz", ".tar.xz", ".tar.bz2", ".tar.zst", ".tar.lz",
	".tgz", ".txz", ".tbz", ".tbz2", ".tar", ".zip",
}

var versionRun = regexp.MustCompile(`[vV]?(\d+(?:\.\d+)*(?:[-_.]?(?:alpha|beta|rc|pre|p)\d*)?)`)

// PkgVersion returns the version of the package, either declared or
// inferred from the source URL.
func (f *Formula) PkgVersion() (string, error) {
	if f.Version != "" {
		return f.Version, nil
	}
	v := VersionFromURL(f.URL)
	if v == "" {
		return "", errs.E(errs.ErrNoVersion, nil, "formula", f.Name, "url", f.URL)
	}
	return v, nil
}

// VersionFromURL guesses the version encoded in the file name of an archive
// URL, for example "1.0.0" from ".../archive/v1.0.0.tar.gz". It returns ""
// when the name holds no version.
func VersionFromURL(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		p = u.Path
	}
	name := path.Base(p)
	lower := strings.ToLower(name)
	for _, suffix := range archiveSuffixes {
		if strings.HasSuffix(lower, suffix) {
			name = name[:len(name)-len(suffix)]
			break
		}
	}
	matches := versionRun.FindAllStringSubmatch(name, -1)
	if len(matches) == 0 {
		return ""
	}
	// Prefer a dotted run: "x264-1.2" is 1.2, not 264.
	for _, m := range matches {
		if strings.Contains(m[1], ".") {
			return m[1]
		}
	}
	return matches[len(matches)-1][1]
}
