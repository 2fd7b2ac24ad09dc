package spkggraph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func depsOf(m map[string][]string) DepFunc {
	return func(name string) ([]string, error) {
		return m[name], nil
	}
}

func TestTopoOrderSingleNode(t *testing.T) {
	g, err := Build([]string{"zlib"}, depsOf(map[string][]string{}))
	require.NoError(t, err)

	order, err := g.TopoOrder()
	require.NoError(t, err)
	require.Equal(t, []string{"zlib"}, order)
}

func TestTopoOrderDepsFirst(t *testing.T) {
	m := map[string][]string{
		"openssl": {"zlib", "glibc"},
		"zlib":    {"glibc"},
		"curl":    {"openssl", "zlib"},
	}
	g, err := Build([]string{"curl"}, depsOf(m))
	require.NoError(t, err)
	require.Equal(t, 4, g.Len())

	order, err := g.TopoOrder()
	require.NoError(t, err)

	idx := map[string]int{}
	for i, n := range order {
		idx[n] = i
	}
	// every dependency precedes its dependents
	for pkg, deps := range m {
		for _, d := range deps {
			require.Less(t, idx[d], idx[pkg], "%s must precede %s", d, pkg)
		}
	}
}

func TestTopoOrderDeterministic(t *testing.T) {
	m := map[string][]string{"a": nil, "b": nil, "c": nil}
	g, err := Build([]string{"c", "a", "b"}, depsOf(m))
	require.NoError(t, err)

	order, err := g.TopoOrder()
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, order, "lexicographic tie-break")
}

func TestTwoNodeCycle(t *testing.T) {
	m := map[string][]string{"a": {"b"}, "b": {"a"}}
	g, err := Build([]string{"a"}, depsOf(m))
	require.NoError(t, err)

	_, err = g.TopoOrder()
	var ce *CycleError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, []string{"a", "b"}, ce.Nodes)
}

func TestCycleBelowRoot(t *testing.T) {
	m := map[string][]string{"top": {"a"}, "a": {"b"}, "b": {"a"}}
	g, err := Build([]string{"top"}, depsOf(m))
	require.NoError(t, err)

	_, err = g.TopoOrder()
	var ce *CycleError
	require.ErrorAs(t, err, &ce)
	require.Contains(t, ce.Nodes, "a")
	require.Contains(t, ce.Nodes, "b")
	require.Contains(t, ce.Nodes, "top") // never released either
}

func TestMemoizedExpansion(t *testing.T) {
	calls := map[string]int{}
	deps := func(name string) ([]string, error) {
		calls[name]++
		if name == "app1" || name == "app2" {
			return []string{"shared"}, nil
		}
		return nil, nil
	}

	g, err := Build([]string{"app1", "app2"}, deps)
	require.NoError(t, err)
	require.Equal(t, 3, g.Len())
	require.Equal(t, 1, calls["shared"], "shared node expanded once")
}

func TestLayers(t *testing.T) {
	m := map[string][]string{
		"glibc":   nil,
		"zlib":    {"glibc"},
		"openssl": {"glibc"},
		"curl":    {"zlib", "openssl"},
	}
	g, err := Build([]string{"curl"}, depsOf(m))
	require.NoError(t, err)

	layers, err := g.Layers()
	require.NoError(t, err)
	require.Equal(t, [][]string{
		{"glibc"},
		{"openssl", "zlib"},
		{"curl"},
	}, layers)
}

func TestReverseClosure(t *testing.T) {
	m := map[string][]string{
		"glibc":   nil,
		"zlib":    {"glibc"},
		"openssl": {"glibc", "zlib"},
		"curl":    {"openssl"},
		"nano":    {"glibc"},
	}
	g, err := Build([]string{"curl", "nano"}, depsOf(m))
	require.NoError(t, err)

	out, err := g.ReverseClosure("zlib")
	require.NoError(t, err)
	require.Equal(t, []string{"zlib", "openssl", "curl"}, out)

	_, err = g.ReverseClosure("unknown")
	require.Error(t, err)
}
