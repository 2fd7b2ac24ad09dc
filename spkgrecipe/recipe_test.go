package spkgrecipe

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const zlibRecipe = `name: zlib
version: "1.3"
release: "1"
summary: compression library
license: Zlib
deps: [glibc]
sources:
  - url: https://zlib.net/zlib-1.3.tar.gz
    sha256: ff0ba4c292013dbc27530b3a81e1f9a813cd39de01ca5e0f8bf355702efa593e
build:
  - ./configure --prefix=/usr
  - make -j$JOBS
install:
  - make install
`

func TestParseRecipe(t *testing.T) {
	r, err := Parse([]byte(zlibRecipe))
	require.NoError(t, err)
	require.Equal(t, "zlib", r.Name)
	require.Equal(t, "1.3", r.Version)
	require.Equal(t, []string{"glibc"}, r.Deps)
	require.Len(t, r.Sources, 1)
	require.Equal(t, "0:1.3-1", r.EVR().String())
	require.NoError(t, r.Lint())
}

func TestParseRecipeBadYAML(t *testing.T) {
	_, err := Parse([]byte("name: [unclosed"))
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
}

func TestLintFailures(t *testing.T) {
	cases := []struct {
		yaml  string
		field string
	}{
		{"version: \"1.0\"\ninstall: [\"true\"]\n", "name"},
		{"name: x\ninstall: [\"true\"]\n", "version"},
		{"name: x\nversion: \"1\"\nsources:\n  - url: http://a\n    sha256: short\n", "sources[0].sha256"},
		{"name: x\nversion: \"1\"\ngit:\n  url: https://example.com/x.git\n", "git.ref"},
		{"name: x\nversion: \"1\"\n", "sources"},
	}
	for _, c := range cases {
		r, err := Parse([]byte(c.yaml))
		require.NoError(t, err, c.yaml)
		err = r.Lint()
		var le *LintError
		require.ErrorAs(t, err, &le, c.yaml)
		require.Equal(t, c.field, le.Field)
	}
}

func TestLintInstallOnly(t *testing.T) {
	r, err := Parse([]byte("name: meta\nversion: \"1\"\ninstall:\n  - mkdir -p $DESTDIR/etc\n"))
	require.NoError(t, err)
	require.NoError(t, r.Lint())
}

func TestEVRDefaultRelease(t *testing.T) {
	r := &Recipe{Name: "x", Version: "2.0"}
	require.Equal(t, "0:2.0-1", r.EVR().String())
}

func TestConvertLegacy(t *testing.T) {
	legacy := strings.Join([]string{
		"# zlib legacy recipe",
		"name=zlib",
		"version=1.3",
		"release=1",
		"deps=(glibc)",
		"sources=(https://zlib.net/zlib-1.3.tar.gz)",
		"source_hashes=(ff0ba4c292013dbc27530b3a81e1f9a813cd39de01ca5e0f8bf355702efa593e)",
		"build=./configure --prefix=/usr",
		"build=make -j$JOBS",
		"install=make install",
		"no_strip=1",
		"var_CFLAGS=-O2",
	}, "\n")

	r, err := ConvertLegacy([]byte(legacy))
	require.NoError(t, err)
	require.Equal(t, "zlib", r.Name)
	require.Equal(t, []string{"glibc"}, r.Deps)
	require.Len(t, r.Sources, 1)
	require.Equal(t, "ff0ba4c292013dbc27530b3a81e1f9a813cd39de01ca5e0f8bf355702efa593e", r.Sources[0].SHA256)
	require.Equal(t, []string{"./configure --prefix=/usr", "make -j$JOBS"}, r.Build)
	require.True(t, r.Flags.NoStrip)
	require.Equal(t, "-O2", r.Vars["CFLAGS"])
	require.NoError(t, r.Lint())

	// converted recipes render and re-parse
	out, err := MarshalYAML(r)
	require.NoError(t, err)
	back, err := Parse(out)
	require.NoError(t, err)
	require.Equal(t, r.Name, back.Name)
	require.Equal(t, r.Sources, back.Sources)
}

func TestConvertLegacyPositionalMismatch(t *testing.T) {
	_, err := ConvertLegacy([]byte("name=x\nversion=1\nsources=(a b)\nsource_hashes=(h1)\n"))
	var le *LintError
	require.ErrorAs(t, err, &le)
}
