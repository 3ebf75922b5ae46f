// Package version orders package versions.
//
// Versions that are valid semantic versions (with or without a leading "v")
// are compared by semver rules. Anything else falls back to the GNU
// version-sort ordering used by "sort -V", which copes with suffixes such as
// "1.0p1" or "2.6.32.1".
package version

import (
	"slices"
	"strings"

	"golang.org/x/mod/semver"
)

// Compare returns -1, 0 or 1 as a is older than, equal to or newer than b.
func Compare(a, b string) int {
	if sa, sb := canonical(a), canonical(b); sa != "" && sb != "" {
		if c := semver.Compare(sa, sb); c != 0 {
			return c
		}
		// v1.0 and v1.0.0 are the same release; keep the order total.
	}
	return sign(verrevcmp(a, b))
}

// Newer reports whether a is strictly newer than b.
func Newer(a, b string) bool {
	return Compare(a, b) > 0
}

// Sort orders list from oldest to newest.
func Sort(list []string) {
	slices.SortStableFunc(list, Compare)
}

func canonical(v string) string {
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return ""
	}
	return v
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}

// verrevcmp follows the comparison of GNU gnulib's filevercmp: non-digit
// runs compare by weight, digit runs by numeric value.
func verrevcmp(a, b string) int {
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		for (i < len(a) && !isDigit(a[i])) || (j < len(b) && !isDigit(b[j])) {
			var ca, cb byte
			if i < len(a) {
				ca = a[i]
			}
			if j < len(b) {
				cb = b[j]
			}
			if wa, wb := weight(ca), weight(cb); wa != wb {
				return wa - wb
			}
			i++
			j++
		}

		for i < len(a) && a[i] == '0' {
			i++
		}
		for j < len(b) && b[j] == '0' {
			j++
		}

		diff := 0
		for i < len(a) && j < len(b) && isDigit(a[i]) && isDigit(b[j]) {
			if diff == 0 {
				diff = int(a[i]) - int(b[j])
			}
			i++
			j++
		}
		// the longer digit run is the larger number
		if i < len(a) && isDigit(a[i]) {
			return 1
		}
		if j < len(b) && isDigit(b[j]) {
			return -1
		}
		if diff != 0 {
			return diff
		}
	}
	return 0
}

// weight ranks a byte of a non-digit run: '~' sorts before the end of the
// string, letters before punctuation.
func weight(c byte) int {
	switch {
	case isDigit(c), c == 0:
		return 0
	case isAlpha(c):
		return int(c)
	case c == '~':
		return -1
	}
	return int(c) + 256
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isAlpha(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
