// Package spkgfprint computes the fingerprints that drive rebuild
// decisions: toolchain versions, the pinned build environment and the ABI
// surface of installed trees. The planner turns fingerprint drift into
// topologically ordered rebuild plans over the installed database.
package spkgfprint

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"os/exec"
	"sort"
	"strings"
)

func hashDump(dump string) string {
	h := sha256.Sum256([]byte(dump))
	return hex.EncodeToString(h[:])
}

// toolchain probes: tool name and the argument revealing its version
var toolProbes = []struct {
	tool string
	arg  string
}{
	{"cc", "--version"},
	{"ld", "--version"},
	{"as", "--version"},
	{"ar", "--version"},
	{"ranlib", "--version"},
	{"ldd", "--version"},
}

// Toolchain probes the compiler, linker, assembler, archiver, ranlib and
// libc loader and hashes the canonical dump of their version lines. A tool
// that cannot be probed contributes the literal sentinel "<tool>?".
func Toolchain() string {
	var lines []string
	for _, p := range toolProbes {
		lines = append(lines, p.tool+"="+probeVersion(p.tool, p.arg))
	}
	return hashDump(strings.Join(lines, "\n"))
}

func probeVersion(tool, arg string) string {
	path, err := exec.LookPath(tool)
	if err != nil {
		return tool + "?"
	}
	out, err := exec.Command(path, arg).Output()
	if err != nil {
		return tool + "?"
	}
	// first line carries the version
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line)
}

// variables that influence builds, pinned for the environment fingerprint
var envVars = []string{
	"CC", "CXX", "CFLAGS", "CXXFLAGS", "CPPFLAGS", "LDFLAGS",
	"PATH", "PKG_CONFIG_PATH", "LD_LIBRARY_PATH", "LIBRARY_PATH",
}

// Environment hashes the canonical dump of the pinned variable subset.
func Environment() string {
	var lines []string
	for _, v := range envVars {
		lines = append(lines, v+"="+os.Getenv(v))
	}
	return hashDump(strings.Join(lines, "\n"))
}

// ABI hashes the SONAME and NEEDED entries of every ELF file under dir in
// stable order. The directory may be a staging root (post-build) or the
// target root (post-install). A tree without ELF files hashes the empty
// dump.
func ABI(dir string) (string, error) {
	entries, err := scanELF(dir)
	if err != nil {
		return "", err
	}
	sort.Strings(entries)
	return hashDump(strings.Join(entries, "\n")), nil
}

// Fingerprints bundles the three fingerprints recorded with an install.
type Fingerprints struct {
	Toolchain   string
	Environment string
	ABI         string
}

// Collect computes all three for a tree.
func Collect(dir string) (*Fingerprints, error) {
	abi, err := ABI(dir)
	if err != nil {
		return nil, err
	}
	return &Fingerprints{
		Toolchain:   Toolchain(),
		Environment: Environment(),
		ABI:         abi,
	}, nil
}

// ToolchainState persists the last observed toolchain fingerprint under
// the database directory. The first observation is recorded, not reported
// as a change.
type ToolchainState struct {
	path string
}

// NewToolchainState opens the state file location under dbDir.
func NewToolchainState(dbDir string) *ToolchainState {
	return &ToolchainState{path: dbDir + "/toolchain.fprint"}
}

// Changed compares current against the stored fingerprint and records the
// new value. Returns false on first observation.
func (ts *ToolchainState) Changed(current string) (bool, error) {
	prev, err := os.ReadFile(ts.path)
	if err != nil && !os.IsNotExist(err) {
		return false, err
	}

	if err := os.WriteFile(ts.path+".tmp", []byte(current), 0644); err != nil {
		return false, err
	}
	if err := os.Rename(ts.path+".tmp", ts.path); err != nil {
		return false, err
	}

	if len(prev) == 0 {
		return false, nil
	}
	return string(prev) != current, nil
}

// Stored returns the recorded fingerprint, empty when none exists.
func (ts *ToolchainState) Stored() string {
	b, err := os.ReadFile(ts.path)
	if err != nil {
		return ""
	}
	return string(b)
}
