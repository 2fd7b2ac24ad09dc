package spkginstall

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ParseArchiveName decodes <name>-<version>-<release>.tar.<comp>,
// tokenizing from the right so names may contain dashes.
func ParseArchiveName(path string) (name, version, release string, err error) {
	base := filepath.Base(path)

	i := strings.Index(base, ".tar.")
	if i < 0 {
		return "", "", "", fmt.Errorf("not a package archive: %s", base)
	}
	stem := base[:i]

	j := strings.LastIndexByte(stem, '-')
	if j < 0 {
		return "", "", "", fmt.Errorf("no release in archive name: %s", base)
	}
	release = stem[j+1:]
	stem = stem[:j]

	k := strings.LastIndexByte(stem, '-')
	if k < 0 {
		return "", "", "", fmt.Errorf("no version in archive name: %s", base)
	}
	version = stem[k+1:]
	name = stem[:k]

	if name == "" || version == "" || release == "" {
		return "", "", "", fmt.Errorf("malformed archive name: %s", base)
	}
	return name, version, release, nil
}
