package spkgdb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func fileEntry(path, hash string) Entry {
	return Entry{Mode: 0644, Type: 'f', Size: 1, Hash: hash, Path: path}
}

func TestComputeDelta(t *testing.T) {
	old := Manifest{
		fileEntry("/usr/lib/libz.so.1.3", "aaaa"),
		fileEntry("/usr/share/doc/old.txt", "cccc"),
		fileEntry("/usr/share/same.txt", "dddd"),
	}
	new := Manifest{
		fileEntry("/usr/lib/libz.so.1.3", "bbbb"),
		fileEntry("/usr/share/same.txt", "dddd"),
		fileEntry("/usr/share/doc/new.txt", "eeee"),
	}

	dl := ComputeDelta(old, new)
	require.Equal(t, []string{"/usr/share/doc/new.txt"}, dl.Added)
	require.Equal(t, []string{"/usr/share/doc/old.txt"}, dl.Removed)
	require.Equal(t, []string{"/usr/share/same.txt"}, dl.Unchanged)
	require.Len(t, dl.Changed, 1)
	require.Equal(t, Change{Path: "/usr/lib/libz.so.1.3", OldHash: "aaaa", NewHash: "bbbb"}, dl.Changed[0])
}

func TestDeltaWriteRead(t *testing.T) {
	d := testDB(t)

	dl := &Delta{
		Added:     []string{"/a"},
		Removed:   []string{"/b"},
		Changed:   []Change{{Path: "/c", OldHash: "1111", NewHash: "2222"}},
		Unchanged: []string{"/d"},
	}

	path, err := d.WriteDelta("zlib", evr(t, "0:1.3-1"), evr(t, "0:1.3.1-1"), dl)
	require.NoError(t, err)
	require.Contains(t, path, "0:1.3-1__to__0:1.3.1-1.delta")

	back, err := ReadDelta(path)
	require.NoError(t, err)
	require.Equal(t, dl, back)
}

func TestComputeDeltaEmptyOld(t *testing.T) {
	new := Manifest{fileEntry("/a", "1111")}
	dl := ComputeDelta(nil, new)
	require.Equal(t, []string{"/a"}, dl.Added)
	require.Empty(t, dl.Removed)
	require.Empty(t, dl.Changed)
	require.Empty(t, dl.Unchanged)
}
