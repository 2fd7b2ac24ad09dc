package spkgbuild

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AzusaOS/spkg/spkgconf"
	"github.com/AzusaOS/spkg/spkgrecipe"
)

func testCfg(t *testing.T) *spkgconf.Config {
	t.Helper()
	t.Setenv("SPKG_ROOT", t.TempDir())
	cfg, err := spkgconf.Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Paths.MkdirAll())
	return cfg
}

func TestContextEnviron(t *testing.T) {
	cfg := testCfg(t)
	r := &spkgrecipe.Recipe{
		Name: "zlib", Version: "1.3", Release: "1",
		Vars: map[string]string{"CFLAGS": "-O2"},
	}
	bc, err := NewContext(cfg, r)
	require.NoError(t, err)

	env := strings.Join(bc.Environ(), "\n")
	require.Contains(t, env, "DESTDIR="+bc.Staging)
	require.Contains(t, env, "NAME=zlib")
	require.Contains(t, env, "VERSION=1.3")
	require.Contains(t, env, "LC_ALL=C")
	require.Contains(t, env, "CFLAGS=-O2")
	require.NotContains(t, env, "SOURCE_DATE_EPOCH", "unset unless pinned")

	bc.Epoch = 1700000000
	require.Contains(t, strings.Join(bc.Environ(), "\n"), "SOURCE_DATE_EPOCH=1700000000")
}

func TestStagingEmptyAtStart(t *testing.T) {
	cfg := testCfg(t)
	r := &spkgrecipe.Recipe{Name: "x", Version: "1", Install: []string{"true"}}
	bc, err := NewContext(cfg, r)
	require.NoError(t, err)

	// pre-existing junk in the staging root is wiped by the engine
	require.NoError(t, os.WriteFile(filepath.Join(bc.Staging, "junk"), []byte("x"), 0644))
	e := &Engine{Cfg: cfg}
	require.NoError(t, e.Run(context.Background(), bc))

	_, err = os.Stat(filepath.Join(bc.Staging, "junk"))
	require.True(t, os.IsNotExist(err))
}

func TestStagesPopulateDestdir(t *testing.T) {
	cfg := testCfg(t)
	r := &spkgrecipe.Recipe{
		Name: "hello", Version: "1.0",
		Install: []string{
			"mkdir -p $DESTDIR/usr/bin",
			"printf '#!/bin/sh\\necho hello\\n' > $DESTDIR/usr/bin/hello",
			"chmod 755 $DESTDIR/usr/bin/hello",
		},
	}
	bc, err := NewContext(cfg, r)
	require.NoError(t, err)

	e := &Engine{Cfg: cfg}
	require.NoError(t, e.Run(context.Background(), bc))
	require.FileExists(t, filepath.Join(bc.Staging, "usr/bin/hello"))
}

func TestStageFailurePreservesWorkspace(t *testing.T) {
	cfg := testCfg(t)
	r := &spkgrecipe.Recipe{
		Name: "broken", Version: "1.0",
		Build: []string{"exit 7"},
	}
	bc, err := NewContext(cfg, r)
	require.NoError(t, err)

	e := &Engine{Cfg: cfg}
	err = e.Run(context.Background(), bc)
	var se *StageError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "build", se.Stage)
	require.DirExists(t, bc.Workspace)
}

func TestHooksRunInLexicalOrder(t *testing.T) {
	cfg := testCfg(t)
	r := &spkgrecipe.Recipe{Name: "hooked", Version: "1.0", Install: []string{"true"}}
	bc, err := NewContext(cfg, r)
	require.NoError(t, err)

	hookDir := cfg.Paths.HooksDir("pre-install.d")
	require.NoError(t, os.MkdirAll(hookDir, 0755))
	marker := filepath.Join(bc.Workspace, "order")
	for _, n := range []string{"20-second", "10-first"} {
		script := "#!/bin/sh\necho " + n + " >> " + marker + "\n"
		require.NoError(t, os.WriteFile(filepath.Join(hookDir, n), []byte(script), 0755))
	}

	e := &Engine{Cfg: cfg}
	require.NoError(t, e.Run(context.Background(), bc))

	b, err := os.ReadFile(marker)
	require.NoError(t, err)
	require.Equal(t, "10-first\n20-second\n", string(b))
}

func TestFailingHookAbortsStage(t *testing.T) {
	cfg := testCfg(t)
	r := &spkgrecipe.Recipe{Name: "hookfail", Version: "1.0", Install: []string{"true"}}
	bc, err := NewContext(cfg, r)
	require.NoError(t, err)

	hookDir := cfg.Paths.HooksDir("pre-install.d")
	require.NoError(t, os.MkdirAll(hookDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(hookDir, "00-fail"),
		[]byte("#!/bin/sh\nexit 1\n"), 0755))

	e := &Engine{Cfg: cfg}
	err = e.Run(context.Background(), bc)
	var se *StageError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "install", se.Stage)
}

func TestDefaultBuildDetectsConfigure(t *testing.T) {
	cfg := testCfg(t)
	r := &spkgrecipe.Recipe{Name: "auto", Version: "1.0"}
	bc, err := NewContext(cfg, r)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(bc.SrcRoot, "configure"), []byte("#!/bin/sh\n"), 0755))
	cmds := bc.stageCmds("build")
	require.Equal(t, []string{"./configure --prefix=/usr", "make -j$JOBS"}, cmds)

	require.NoError(t, os.Remove(filepath.Join(bc.SrcRoot, "configure")))
	require.Empty(t, bc.stageCmds("build"))

	require.NoError(t, os.WriteFile(filepath.Join(bc.SrcRoot, "Makefile"), []byte("all:\n"), 0644))
	require.Equal(t, []string{"make -j$JOBS"}, bc.stageCmds("build"))
	require.Equal(t, []string{"make install DESTDIR=$DESTDIR"}, bc.stageCmds("install"))
}
