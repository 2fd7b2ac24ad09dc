package spkgfprint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AzusaOS/spkg/spkgconf"
	"github.com/AzusaOS/spkg/spkgdb"
)

func TestEnvironmentDeterministic(t *testing.T) {
	t.Setenv("CFLAGS", "-O2 -pipe")
	a := Environment()
	b := Environment()
	require.Equal(t, a, b)
	require.Len(t, a, 64)

	t.Setenv("CFLAGS", "-O3")
	require.NotEqual(t, a, Environment())
}

func TestToolchainStable(t *testing.T) {
	a := Toolchain()
	b := Toolchain()
	require.Equal(t, a, b)
	require.Len(t, a, 64)
}

func TestABIEmptyTree(t *testing.T) {
	a, err := ABI(t.TempDir())
	require.NoError(t, err)
	b, err := ABI(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, a, b, "trees without ELF files hash identically")
}

func TestABIIgnoresNonELF(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "script.sh"), []byte("#!/bin/sh\n"), 0755))

	withFiles, err := ABI(dir)
	require.NoError(t, err)
	empty, err := ABI(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, empty, withFiles)
}

func TestToolchainStateFirstObservation(t *testing.T) {
	ts := NewToolchainState(t.TempDir())

	changed, err := ts.Changed("aaaa")
	require.NoError(t, err)
	require.False(t, changed, "first observation is recorded, not a change")
	require.Equal(t, "aaaa", ts.Stored())

	changed, err = ts.Changed("aaaa")
	require.NoError(t, err)
	require.False(t, changed)

	changed, err = ts.Changed("bbbb")
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, "bbbb", ts.Stored())
}

func plannerFixture(t *testing.T) (*Planner, *spkgdb.DB) {
	t.Helper()
	t.Setenv("SPKG_ROOT", t.TempDir())
	p := spkgconf.DefaultPaths()
	require.NoError(t, p.MkdirAll())
	db, err := spkgdb.New(p)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Planner{DB: db}, db
}

func put(t *testing.T, db *spkgdb.DB, name, evrStr string, deps []string, depVers map[string]string) {
	t.Helper()
	e, err := spkgdb.ParseEVR(evrStr)
	require.NoError(t, err)
	require.NoError(t, db.PutRecord(&spkgdb.InstalledRecord{
		Name: name, EVR: e, State: spkgdb.StateInstalled,
		Deps: deps, DepVersions: depVers,
	}))
}

func TestPlanWorld(t *testing.T) {
	p, db := plannerFixture(t)
	put(t, db, "glibc", "0:2.39-1", nil, nil)
	put(t, db, "zlib", "0:1.3-1", []string{"glibc"}, nil)
	put(t, db, "curl", "0:8.0-1", []string{"zlib"}, nil)

	order, err := p.PlanWorld()
	require.NoError(t, err)
	require.Equal(t, []string{"glibc", "zlib", "curl"}, order)
}

func TestPlanChanged(t *testing.T) {
	p, db := plannerFixture(t)
	put(t, db, "glibc", "0:2.39-1", nil, nil)
	put(t, db, "zlib", "0:1.3-1", []string{"glibc"}, nil)
	put(t, db, "curl", "0:8.0-1", []string{"zlib"}, nil)
	put(t, db, "nano", "0:7.2-1", []string{"glibc"}, nil)

	plan, err := p.PlanChanged("zlib")
	require.NoError(t, err)
	require.Equal(t, []string{"zlib", "curl"}, plan)
}

func TestPlanSmartDepDrift(t *testing.T) {
	p, db := plannerFixture(t)
	// zlib was built against glibc 2.38, but 2.39 is installed now
	put(t, db, "glibc", "0:2.39-1", nil, nil)
	put(t, db, "zlib", "0:1.3-1", []string{"glibc"}, map[string]string{"glibc": "0:2.38-1"})
	put(t, db, "curl", "0:8.0-1", []string{"zlib"}, map[string]string{"zlib": "0:1.3-1"})

	plan, err := p.PlanSmart()
	require.NoError(t, err)
	require.Equal(t, []string{"zlib", "curl"}, plan, "drift closes over dependents")
}

func TestPlanSmartCleanWorld(t *testing.T) {
	p, db := plannerFixture(t)
	put(t, db, "glibc", "0:2.39-1", nil, nil)
	put(t, db, "zlib", "0:1.3-1", []string{"glibc"}, map[string]string{"glibc": "0:2.39-1"})

	// first call records the toolchain fingerprint
	_, err := p.PlanSmart()
	require.NoError(t, err)

	plan, err := p.PlanSmart()
	require.NoError(t, err)
	require.Empty(t, plan)
}
