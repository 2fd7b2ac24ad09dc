package spkgdb

import (
	"fmt"
	"strconv"
	"strings"
)

// EVR is the canonical package version identifier: epoch, version, release.
type EVR struct {
	Epoch   int
	Version string
	Release string
}

// ParseEVR parses "<epoch>:<version>-<release>". The epoch defaults to 0
// when the colon is absent, the release to "1" when the dash is absent.
func ParseEVR(s string) (EVR, error) {
	e := EVR{Release: "1"}

	if i := strings.IndexByte(s, ':'); i >= 0 {
		n, err := strconv.Atoi(s[:i])
		if err != nil {
			return e, fmt.Errorf("invalid epoch in %q", s)
		}
		e.Epoch = n
		s = s[i+1:]
	}
	if i := strings.LastIndexByte(s, '-'); i >= 0 {
		e.Release = s[i+1:]
		s = s[:i]
	}
	if s == "" {
		return e, fmt.Errorf("empty version")
	}
	e.Version = s
	return e, nil
}

func (e EVR) String() string {
	return fmt.Sprintf("%d:%s-%s", e.Epoch, e.Version, e.Release)
}

// Compare returns -1, 0 or 1. Order is (numeric epoch, version segments,
// release segments) where segments split on '.', '-' and '_' and compare
// numerically when both sides are numeric, lexically otherwise. Numeric
// segments order after alphabetic ones, same rule the apkg natural sort
// applies to version-bearing names. EVRs whose segments all compare equal
// but whose strings differ (leading zeroes, other separators) are ordered by
// plain string comparison, so Compare returns 0 only for equal components.
func (e EVR) Compare(o EVR) int {
	if e.Epoch != o.Epoch {
		if e.Epoch < o.Epoch {
			return -1
		}
		return 1
	}
	if c := compareSegmented(e.Version, o.Version); c != 0 {
		return c
	}
	if c := compareSegmented(e.Release, o.Release); c != 0 {
		return c
	}
	if c := strings.Compare(e.Version, o.Version); c != 0 {
		return c
	}
	return strings.Compare(e.Release, o.Release)
}

func segments(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == '.' || r == '-' || r == '_'
	})
}

func compareSegmented(a, b string) int {
	as, bs := segments(a), segments(b)
	for i := 0; i < len(as) && i < len(bs); i++ {
		if c := compareSegment(as[i], bs[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(as) < len(bs):
		return -1
	case len(as) > len(bs):
		return 1
	}
	return 0
}

func isNumeric(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}

func compareSegment(a, b string) int {
	an, bn := isNumeric(a), isNumeric(b)
	switch {
	case an && bn:
		// strip leading zeroes, longer run of digits is the bigger number
		at := strings.TrimLeft(a, "0")
		bt := strings.TrimLeft(b, "0")
		if len(at) != len(bt) {
			if len(at) < len(bt) {
				return -1
			}
			return 1
		}
		return strings.Compare(at, bt)
	case an:
		return 1
	case bn:
		return -1
	}
	return strings.Compare(a, b)
}
