package spkgdb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseEVR(t *testing.T) {
	e, err := ParseEVR("0:1.3-1")
	require.NoError(t, err)
	require.Equal(t, EVR{Epoch: 0, Version: "1.3", Release: "1"}, e)

	e, err = ParseEVR("1.3.1")
	require.NoError(t, err)
	require.Equal(t, EVR{Epoch: 0, Version: "1.3.1", Release: "1"}, e)

	e, err = ParseEVR("2:5.0-3")
	require.NoError(t, err)
	require.Equal(t, EVR{Epoch: 2, Version: "5.0", Release: "3"}, e)

	_, err = ParseEVR("x:1.0-1")
	require.Error(t, err)

	_, err = ParseEVR("")
	require.Error(t, err)
}

func TestEVRRoundTrip(t *testing.T) {
	for _, s := range []string{"0:1.3-1", "2:5.0.1-3", "0:20240101-2"} {
		e, err := ParseEVR(s)
		require.NoError(t, err)
		require.Equal(t, s, e.String())

		back, err := ParseEVR(e.String())
		require.NoError(t, err)
		require.Equal(t, e, back)
	}
}

func TestEVRCompare(t *testing.T) {
	lt := [][2]string{
		{"0:1.3-1", "0:1.3.1-1"},
		{"0:1.3-1", "0:1.3-2"},
		{"0:1.9-1", "0:1.10-1"},
		{"0:1.3-1", "1:0.1-1"},
		{"0:1.3_rc1-1", "0:1.3_1-1"}, // numeric segment orders after alpha
		{"0:2.4.9-1", "0:2.4.115-1"},
		{"0:1-1", "0:1.0-1"},
	}
	for _, p := range lt {
		a, err := ParseEVR(p[0])
		require.NoError(t, err)
		b, err := ParseEVR(p[1])
		require.NoError(t, err)
		require.Equal(t, -1, a.Compare(b), "%s < %s", p[0], p[1])
		require.Equal(t, 1, b.Compare(a), "%s > %s", p[1], p[0])
	}
}

func TestEVRCompareEquality(t *testing.T) {
	// cmp(a,b) = 0 must coincide with componentwise equality
	cases := []string{"0:1.3-1", "3:2.0_beta-2", "0:007-1"}
	for _, s := range cases {
		a, _ := ParseEVR(s)
		b, _ := ParseEVR(s)
		require.Equal(t, 0, a.Compare(b))
		require.Equal(t, a, b)
	}

	// leading zeroes compare numerically equal but are distinct components,
	// so the string tie-break keeps cmp away from 0
	a, _ := ParseEVR("0:007-1")
	b, _ := ParseEVR("0:7-1")
	require.Equal(t, -1, a.Compare(b))
	require.Equal(t, 1, b.Compare(a))
}

func TestEVRCompareTransitive(t *testing.T) {
	vs := []string{"0:1.2-1", "0:1.10-1", "1:0.1-1"}
	var evrs []EVR
	for _, s := range vs {
		e, _ := ParseEVR(s)
		evrs = append(evrs, e)
	}
	require.Equal(t, -1, evrs[0].Compare(evrs[1]))
	require.Equal(t, -1, evrs[1].Compare(evrs[2]))
	require.Equal(t, -1, evrs[0].Compare(evrs[2]))
}
