package spkgdb

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Entry is one manifest line: mode, ownership, type, size, hash and the
// absolute path the file takes under the target root.
type Entry struct {
	Mode uint32 // permission bits, octal in the file
	UID  int
	GID  int
	Type byte // 'f', 'd' or 'l'
	Size int64
	Hash string // lowercase hex sha256, "-" for dirs and symlinks
	Path string // absolute, starts with /
}

// Manifest is the ordered file listing of a package. Parents precede
// children so removing in reverse order keeps rmdir safe.
type Manifest []Entry

// BuildManifest walks root lexically and produces the manifest with paths
// rebased to /.
func BuildManifest(root string) (Manifest, error) {
	var m Manifest

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}

		e := Entry{
			Mode: uint32(fi.Mode().Perm()),
			Path: "/" + filepath.ToSlash(rel),
		}
		if st, ok := statUID(fi); ok {
			e.UID, e.GID = st.uid, st.gid
		}

		switch {
		case fi.IsDir():
			e.Type = 'd'
			e.Hash = "-"
		case fi.Mode()&os.ModeSymlink != 0:
			e.Type = 'l'
			e.Hash = "-"
		case fi.Mode().IsRegular():
			e.Type = 'f'
			e.Size = fi.Size()
			h, err := HashFile(path)
			if err != nil {
				return err
			}
			e.Hash = h
		default:
			// sockets, fifos and devices never end up in packages
			return nil
		}

		m = append(m, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// HashFile returns the lowercase hex sha256 of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// WriteTo writes the manifest in its line format.
func (m Manifest) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	for _, e := range m {
		c, err := fmt.Fprintf(bw, "%o %d %d %c %d %s %s\n",
			e.Mode, e.UID, e.GID, e.Type, e.Size, e.Hash, e.Path)
		if err != nil {
			return n, err
		}
		n += int64(c)
	}
	return n, bw.Flush()
}

// ParseManifest reads the line format back.
func ParseManifest(r io.Reader) (Manifest, error) {
	var m Manifest
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0

	for s.Scan() {
		line++
		text := strings.TrimSpace(s.Text())
		if text == "" {
			continue
		}
		f := strings.SplitN(text, " ", 7)
		if len(f) != 7 {
			return nil, fmt.Errorf("manifest line %d: expected 7 fields, got %d", line, len(f))
		}

		mode, err := strconv.ParseUint(f[0], 8, 32)
		if err != nil {
			return nil, fmt.Errorf("manifest line %d: bad mode %q", line, f[0])
		}
		uid, err := strconv.Atoi(f[1])
		if err != nil {
			return nil, fmt.Errorf("manifest line %d: bad uid", line)
		}
		gid, err := strconv.Atoi(f[2])
		if err != nil {
			return nil, fmt.Errorf("manifest line %d: bad gid", line)
		}
		if len(f[3]) != 1 || (f[3][0] != 'f' && f[3][0] != 'd' && f[3][0] != 'l') {
			return nil, fmt.Errorf("manifest line %d: bad type %q", line, f[3])
		}
		size, err := strconv.ParseInt(f[4], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("manifest line %d: bad size", line)
		}
		if !strings.HasPrefix(f[6], "/") {
			return nil, fmt.Errorf("manifest line %d: path not absolute", line)
		}

		m = append(m, Entry{
			Mode: uint32(mode),
			UID:  uid,
			GID:  gid,
			Type: f[3][0],
			Size: size,
			Hash: f[5],
			Path: f[6],
		})
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// LoadManifest reads a manifest file.
func LoadManifest(path string) (Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseManifest(f)
}

// Lookup returns the entry for path, if any.
func (m Manifest) Lookup(path string) (Entry, bool) {
	for _, e := range m {
		if e.Path == path {
			return e, true
		}
	}
	return Entry{}, false
}
