package addonsync

import (
	"strconv"
	"strings"
)

// Version is an opaque, ordered add-on version identifier. The zero value
// means "no version": it sorts before every non-zero version, so a
// component that reports no version is always eligible for upgrade when a
// minimum is declared.
type Version struct {
	raw string
}

// ParseVersion builds a Version from a raw identifier. Anything after the
// first space is dropped; hosts append build metadata there.
func ParseVersion(s string) Version {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, ' '); i >= 0 {
		s = s[:i]
	}
	return Version{raw: s}
}

// IsZero reports whether v is the "no version" state.
func (v Version) IsZero() bool { return v.raw == "" }

func (v Version) String() string { return v.raw }

// Compare defines a total order over versions, with the zero value
// ordered before any non-zero version.
func (v Version) Compare(o Version) int {
	switch {
	case v.raw == o.raw:
		return 0
	case v.IsZero():
		return -1
	case o.IsZero():
		return 1
	}

	a, b := tokenize(v.raw), tokenize(o.raw)
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := range n {
		ta, tb := "0", "0"
		if i < len(a) {
			ta = a[i]
		}
		if i < len(b) {
			tb = b[i]
		}
		if c := compareToken(ta, tb); c != 0 {
			return c
		}
	}
	return 0
}

// OlderThan reports whether v sorts strictly before o.
func (v Version) OlderThan(o Version) bool { return v.Compare(o) < 0 }

// tokenize splits a version identifier on dots and dashes.
func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == '.' || r == '-' || r == '_'
	})
}

// compareToken orders two version tokens. Numeric tokens compare
// numerically and sort after non-numeric ones, so "1.0" > "1.0-beta".
func compareToken(a, b string) int {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		return 0
	case errA == nil:
		return 1
	case errB == nil:
		return -1
	}
	return strings.Compare(a, b)
}
