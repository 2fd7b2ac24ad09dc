package spkgextract

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

func mkTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg-1.0/src"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg-1.0/README"), []byte("hello\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg-1.0/src/main.c"), []byte("int main(){}\n"), 0644))
	require.NoError(t, os.Symlink("README", filepath.Join(root, "pkg-1.0/README.txt")))
	return root
}

func TestTarRoundTrip(t *testing.T) {
	root := mkTree(t)

	var buf bytes.Buffer
	require.NoError(t, TarTree(&buf, root, time.Unix(0, 0)))

	dest := t.TempDir()
	require.NoError(t, ExtractTar(bytes.NewReader(buf.Bytes()), dest))

	b, err := os.ReadFile(filepath.Join(dest, "pkg-1.0/README"))
	require.NoError(t, err)
	require.Equal(t, "hello\n", string(b))

	link, err := os.Readlink(filepath.Join(dest, "pkg-1.0/README.txt"))
	require.NoError(t, err)
	require.Equal(t, "README", link)
}

func TestTarTreeDeterministic(t *testing.T) {
	root := mkTree(t)
	epoch := time.Unix(1700000000, 0)

	var a, b bytes.Buffer
	require.NoError(t, TarTree(&a, root, epoch))
	require.NoError(t, TarTree(&b, root, epoch))
	require.Equal(t, a.Bytes(), b.Bytes())
}

func TestExtractTarGz(t *testing.T) {
	root := mkTree(t)

	archive := filepath.Join(t.TempDir(), "pkg-1.0.tar.gz")
	f, err := os.Create(archive)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	require.NoError(t, TarTree(gz, root, time.Unix(0, 0)))
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	dest := t.TempDir()
	require.NoError(t, Extract(archive, dest))

	src, err := SourceRoot(dest)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dest, "pkg-1.0"), src)
}

func TestExtractZstRoundTrip(t *testing.T) {
	root := mkTree(t)

	archive := filepath.Join(t.TempDir(), "pkg-1.0.tar.zst")
	w, err := CreateCompressed(archive)
	require.NoError(t, err)
	require.NoError(t, TarTree(w, root, time.Unix(0, 0)))
	require.NoError(t, w.Close())

	dest := t.TempDir()
	require.NoError(t, Extract(archive, dest))
	_, err = os.Stat(filepath.Join(dest, "pkg-1.0/src/main.c"))
	require.NoError(t, err)
}

func TestExtractUnknownFormat(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "pkg.rar")
	require.NoError(t, os.WriteFile(bad, []byte("x"), 0644))
	err := Extract(bad, t.TempDir())
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestSourceRootMultiple(t *testing.T) {
	dest := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dest, "a"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dest, "b"), 0755))
	src, err := SourceRoot(dest)
	require.NoError(t, err)
	require.Equal(t, dest, src)
}

func TestApplyPatches(t *testing.T) {
	if _, err := exec.LookPath("patch"); err != nil {
		t.Skip("patch not available")
	}

	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "hello.txt"), []byte("hello\n"), 0644))

	patch := filepath.Join(t.TempDir(), "0001-hello.patch")
	require.NoError(t, os.WriteFile(patch, []byte(
		"--- a/hello.txt\n+++ b/hello.txt\n@@ -1 +1 @@\n-hello\n+goodbye\n"), 0644))

	require.NoError(t, ApplyPatches(src, []string{patch}))
	b, err := os.ReadFile(filepath.Join(src, "hello.txt"))
	require.NoError(t, err)
	require.Equal(t, "goodbye\n", string(b))
}

func TestApplyPatchesFailure(t *testing.T) {
	if _, err := exec.LookPath("patch"); err != nil {
		t.Skip("patch not available")
	}

	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "hello.txt"), []byte("something else\n"), 0644))

	patch := filepath.Join(t.TempDir(), "bad.patch")
	require.NoError(t, os.WriteFile(patch, []byte(
		"--- a/hello.txt\n+++ b/hello.txt\n@@ -1 +1 @@\n-hello\n+goodbye\n"), 0644))

	err := ApplyPatches(src, []string{patch})
	var pe *PatchError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, 0, pe.Index)
}
