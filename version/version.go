// Package version orders the free-form version strings published by
// artifact registries.
//
// A version is split on dots. Each part is read as an optional non-numeric
// prefix, a number, and an optional suffix ("rc1" in "0rc1", "-jre" in
// "31-jre"). Parts without a number are ignored for ordering.
package version

import (
	"regexp"
	"strconv"
	"strings"
)

var partPattern = regexp.MustCompile(`^([^0-9]*)([0-9]+)([^0-9]?.*)$`)

// Part is one dot-separated component of a Version.
type Part struct {
	Prefix string
	Number uint64
	Suffix string
}

// Compare orders parts by number, then suffix, then prefix.
func (p Part) Compare(o Part) int {
	switch {
	case p.Number < o.Number:
		return -1
	case p.Number > o.Number:
		return 1
	}
	if c := strings.Compare(p.Suffix, o.Suffix); c != 0 {
		return c
	}
	return strings.Compare(p.Prefix, o.Prefix)
}

// Version is a parsed version string.
type Version struct {
	String string
	Parts  []Part
}

// Parse splits s into its parts. It never fails: a string without any
// number has no parts and sorts before every other version.
func Parse(s string) Version {
	v := Version{String: s}
	for _, text := range strings.Split(s, ".") {
		m := partPattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		n, err := strconv.ParseUint(m[2], 10, 64)
		if err != nil {
			// Too many digits to be a version number.
			continue
		}
		v.Parts = append(v.Parts, Part{Prefix: m[1], Number: n, Suffix: m[3]})
	}
	return v
}

// Compare returns -1, 0 or 1 as v sorts before, with or after o. Parts are
// compared pairwise; when one version is a prefix of the other, the longer
// one is greater.
func (v Version) Compare(o Version) int {
	n := min(len(v.Parts), len(o.Parts))
	for i := 0; i < n; i++ {
		if c := v.Parts[i].Compare(o.Parts[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(v.Parts) < len(o.Parts):
		return -1
	case len(v.Parts) > len(o.Parts):
		return 1
	}
	return 0
}

// Less reports whether a sorts before b.
func Less(a, b string) bool { return Parse(a).Compare(Parse(b)) < 0 }

// Max returns the greatest of the given version strings, and false if there
// are none. Among equal versions the first one wins.
func Max(versions []string) (string, bool) {
	if len(versions) == 0 {
		return "", false
	}
	best := Parse(versions[0])
	for _, s := range versions[1:] {
		if v := Parse(s); v.Compare(best) > 0 {
			best = v
		}
	}
	return best.String, true
}

// MajorMinor returns the first two numbers of v, used to group release
// lines. Missing parts read as zero.
func (v Version) MajorMinor() (uint64, uint64) {
	var major, minor uint64
	if len(v.Parts) > 0 {
		major = v.Parts[0].Number
	}
	if len(v.Parts) > 1 {
		minor = v.Parts[1].Number
	}
	return major, minor
}
