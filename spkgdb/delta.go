package spkgdb

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Change records a path whose contents differ between two manifests.
type Change struct {
	Path    string
	OldHash string
	NewHash string
}

// Delta is the four-section diff between two manifests, joined on path.
type Delta struct {
	Added     []string
	Removed   []string
	Changed   []Change
	Unchanged []string
}

// ComputeDelta joins old and new on path.
func ComputeDelta(old, new Manifest) *Delta {
	d := &Delta{}

	oldByPath := make(map[string]Entry, len(old))
	for _, e := range old {
		oldByPath[e.Path] = e
	}

	seen := make(map[string]bool, len(new))
	for _, e := range new {
		seen[e.Path] = true
		oe, ok := oldByPath[e.Path]
		if !ok {
			d.Added = append(d.Added, e.Path)
			continue
		}
		if oe.Hash != e.Hash {
			d.Changed = append(d.Changed, Change{Path: e.Path, OldHash: oe.Hash, NewHash: e.Hash})
			continue
		}
		d.Unchanged = append(d.Unchanged, e.Path)
	}
	for _, e := range old {
		if !seen[e.Path] {
			d.Removed = append(d.Removed, e.Path)
		}
	}
	return d
}

// DeltaPath returns the file a delta between two EVRs of name is stored at.
func (d *DB) DeltaPath(name string, from, to EVR) string {
	return filepath.Join(d.paths.Delta, name, fmt.Sprintf("%s__to__%s.delta", from, to))
}

// WriteDelta stores the delta for name between two EVRs.
func (d *DB) WriteDelta(name string, from, to EVR, delta *Delta) (string, error) {
	path := d.DeltaPath(name, from, to)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}
	err := atomicWrite(path, func(w io.Writer) error {
		return delta.encode(w)
	})
	return path, err
}

func (dl *Delta) encode(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "[added]")
	for _, p := range dl.Added {
		fmt.Fprintln(bw, p)
	}
	fmt.Fprintln(bw, "[removed]")
	for _, p := range dl.Removed {
		fmt.Fprintln(bw, p)
	}
	fmt.Fprintln(bw, "[changed]")
	for _, c := range dl.Changed {
		fmt.Fprintf(bw, "%s %s -> %s\n", c.Path, c.OldHash, c.NewHash)
	}
	fmt.Fprintln(bw, "[unchanged]")
	for _, p := range dl.Unchanged {
		fmt.Fprintln(bw, p)
	}
	return bw.Flush()
}

// ReadDelta parses a stored delta file.
func ReadDelta(path string) (*Delta, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dl := &Delta{}
	section := ""
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = line[1 : len(line)-1]
			continue
		}
		switch section {
		case "added":
			dl.Added = append(dl.Added, line)
		case "removed":
			dl.Removed = append(dl.Removed, line)
		case "changed":
			parts := strings.Fields(line)
			if len(parts) == 4 && parts[2] == "->" {
				dl.Changed = append(dl.Changed, Change{Path: parts[0], OldHash: parts[1], NewHash: parts[3]})
			}
		case "unchanged":
			dl.Unchanged = append(dl.Unchanged, line)
		}
	}
	return dl, s.Err()
}
