package spkgpack

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AzusaOS/spkg/spkgconf"
	"github.com/AzusaOS/spkg/spkgdb"
)

func testDB(t *testing.T) *spkgdb.DB {
	t.Helper()
	t.Setenv("SPKG_ROOT", t.TempDir())
	p := spkgconf.DefaultPaths()
	require.NoError(t, p.MkdirAll())
	d, err := spkgdb.New(p)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func stage(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "usr/lib"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "usr/lib/libz.so.1.3"), []byte("not really elf"), 0755))
	require.NoError(t, os.Symlink("libz.so.1.3", filepath.Join(root, "usr/lib/libz.so.1")))
	return root
}

func TestPackageProducesArchiveAndManifest(t *testing.T) {
	db := testDB(t)
	evr, err := spkgdb.ParseEVR("0:1.3-1")
	require.NoError(t, err)

	res, err := Package(db, "zlib", evr, stage(t), 1700000000, true)
	require.NoError(t, err)
	require.FileExists(t, res.Archive)
	require.FileExists(t, res.Manifest)
	require.Contains(t, filepath.Base(res.Archive), "zlib-1.3-1.tar.")

	// built-but-not-installed record
	rec, err := db.GetRecord("zlib")
	require.NoError(t, err)
	require.Equal(t, spkgdb.StateBuilt, rec.State)
	require.Equal(t, res.Archive, rec.Archive)

	// manifest round-trips to the staged contents
	m, err := spkgdb.LoadManifest(res.Manifest)
	require.NoError(t, err)
	_, ok := m.Lookup("/usr/lib/libz.so.1.3")
	require.True(t, ok)
}

func TestPackageReproducible(t *testing.T) {
	root := stage(t)
	evr, err := spkgdb.ParseEVR("0:1.3-1")
	require.NoError(t, err)

	db1 := testDB(t)
	res1, err := Package(db1, "zlib", evr, root, 1700000000, true)
	require.NoError(t, err)
	a1, err := os.ReadFile(res1.Archive)
	require.NoError(t, err)
	m1, err := os.ReadFile(res1.Manifest)
	require.NoError(t, err)

	db2 := testDB(t)
	res2, err := Package(db2, "zlib", evr, root, 1700000000, true)
	require.NoError(t, err)
	a2, err := os.ReadFile(res2.Archive)
	require.NoError(t, err)
	m2, err := os.ReadFile(res2.Manifest)
	require.NoError(t, err)

	require.Equal(t, m1, m2, "manifests must be byte-identical")
	require.Equal(t, a1, a2, "archives must be byte-identical")
}

func TestIsELF(t *testing.T) {
	dir := t.TempDir()
	elf := filepath.Join(dir, "elfish")
	require.NoError(t, os.WriteFile(elf, []byte{0x7f, 'E', 'L', 'F', 0, 0}, 0755))
	require.True(t, isELF(elf))

	txt := filepath.Join(dir, "script")
	require.NoError(t, os.WriteFile(txt, []byte("#!/bin/sh\n"), 0755))
	require.False(t, isELF(txt))
}
