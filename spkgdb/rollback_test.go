package spkgdb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCaptureAndRestoreBundle(t *testing.T) {
	d := testDB(t)
	e := evr(t, "0:1.3-1")

	target := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(target, "usr/lib"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(target, "usr/lib/libz.so.1.3"), []byte("old contents"), 0755))
	require.NoError(t, os.Symlink("libz.so.1.3", filepath.Join(target, "usr/lib/libz.so")))

	m, err := BuildManifest(target)
	require.NoError(t, err)

	require.NoError(t, d.CaptureBundle("zlib", e, m, target))
	require.True(t, d.HasBundle("zlib", e))
	require.FileExists(t, filepath.Join(d.BundleDir("zlib", e), "manifest.old"))

	// clobber the target, then restore from the bundle alone
	require.NoError(t, os.WriteFile(filepath.Join(target, "usr/lib/libz.so.1.3"), []byte("new contents"), 0755))
	require.NoError(t, os.Remove(filepath.Join(target, "usr/lib/libz.so")))

	restored, err := d.RestoreBundle("zlib", e, target)
	require.NoError(t, err)
	require.Len(t, restored, len(m))

	b, err := os.ReadFile(filepath.Join(target, "usr/lib/libz.so.1.3"))
	require.NoError(t, err)
	require.Equal(t, "old contents", string(b))

	link, err := os.Readlink(filepath.Join(target, "usr/lib/libz.so"))
	require.NoError(t, err)
	require.Equal(t, "libz.so.1.3", link)
}

func TestCaptureBundleSkipsMissing(t *testing.T) {
	d := testDB(t)
	e := evr(t, "0:1.0-1")

	m := Manifest{fileEntry("/usr/lib/vanished.so", "abcd")}
	require.NoError(t, d.CaptureBundle("ghost", e, m, t.TempDir()))
	require.True(t, d.HasBundle("ghost", e))
}

func TestRestoreBundleMissing(t *testing.T) {
	d := testDB(t)
	_, err := d.RestoreBundle("zlib", evr(t, "0:9.9-9"), t.TempDir())
	require.Error(t, err)
}

func TestHistoryAppendRead(t *testing.T) {
	d := testDB(t)

	require.NoError(t, d.AppendEvent("zlib", ActionInstall, "", "0:1.3-1"))
	require.NoError(t, d.AppendEvent("zlib", ActionUpgrade, "0:1.3-1", "0:1.3.1-1"))
	require.NoError(t, d.AppendEvent("zlib", ActionRollback, "0:1.3.1-1", "0:1.3-1"))

	evs, err := d.History("zlib")
	require.NoError(t, err)
	require.Len(t, evs, 3)
	require.Equal(t, ActionInstall, evs[0].Action)
	require.Equal(t, "-", evs[0].From)
	require.Equal(t, ActionUpgrade, evs[1].Action)
	require.Equal(t, "0:1.3-1", evs[1].From)
	require.Equal(t, "0:1.3.1-1", evs[1].To)
	require.Equal(t, ActionRollback, evs[2].Action)

	// unknown package has an empty history
	evs, err = d.History("nope")
	require.NoError(t, err)
	require.Empty(t, evs)
}
