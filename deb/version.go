package deb

import (
	"strconv"
	"strings"
)

// Version is a Debian package version: [epoch:]upstream[-revision].
type Version struct {
	Epoch    int
	Upstream string
	Revision string
}

// ParseVersion splits v into its components. A missing or non-numeric
// epoch reads as zero.
func ParseVersion(v string) Version {
	var out Version
	v = strings.TrimSpace(v)
	if i := strings.IndexByte(v, ':'); i >= 0 {
		out.Epoch, _ = strconv.Atoi(v[:i])
		v = v[i+1:]
	}
	if i := strings.LastIndexByte(v, '-'); i >= 0 {
		out.Upstream, out.Revision = v[:i], v[i+1:]
	} else {
		out.Upstream = v
	}
	return out
}

func (v Version) String() string {
	s := v.Upstream
	if v.Epoch != 0 {
		s = strconv.Itoa(v.Epoch) + ":" + s
	}
	if v.Revision != "" {
		s += "-" + v.Revision
	}
	return s
}

// CompareVersions orders two Debian version strings the way dpkg does:
// epochs numerically, then upstream versions and revisions with
// verrevcmp, where '~' sorts before anything, even the end of the string.
func CompareVersions(a, b string) int {
	va, vb := ParseVersion(a), ParseVersion(b)
	switch {
	case va.Epoch < vb.Epoch:
		return -1
	case va.Epoch > vb.Epoch:
		return 1
	}
	if c := verrevcmp(va.Upstream, vb.Upstream); c != 0 {
		return sign(c)
	}
	return sign(verrevcmp(va.Revision, vb.Revision))
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

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isLetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

// order is the weight of a non-digit character; 0 stands for the end of
// the string.
func order(s string) int {
	if s == "" {
		return 0
	}
	c := s[0]
	switch {
	case isDigit(c):
		return 0
	case isLetter(c):
		return int(c)
	case c == '~':
		return -1
	}
	return int(c) + 256
}

func verrevcmp(a, b string) int {
	for a != "" || b != "" {
		for (a != "" && !isDigit(a[0])) || (b != "" && !isDigit(b[0])) {
			ac, bc := order(a), order(b)
			if ac != bc {
				return ac - bc
			}
			if a != "" {
				a = a[1:]
			}
			if b != "" {
				b = b[1:]
			}
		}
		for a != "" && a[0] == '0' {
			a = a[1:]
		}
		for b != "" && b[0] == '0' {
			b = b[1:]
		}
		firstDiff := 0
		for a != "" && isDigit(a[0]) && b != "" && isDigit(b[0]) {
			if firstDiff == 0 {
				firstDiff = int(a[0]) - int(b[0])
			}
			a, b = a[1:], b[1:]
		}
		if a != "" && isDigit(a[0]) {
			return 1
		}
		if b != "" && isDigit(b[0]) {
			return -1
		}
		if firstDiff != 0 {
			return firstDiff
		}
	}
	return 0
}

// MaxVersion returns the greatest Debian version in vs, or "" if vs is
// empty.
func MaxVersion(vs []string) string {
	var best string
	for i, v := range vs {
		if i == 0 || CompareVersions(v, best) > 0 {
			best = v
		}
	}
	return best
}
