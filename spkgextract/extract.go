package spkgextract

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Extract unpacks archive into dest, dispatching on the extension.
// Supported: tar.{gz,xz,bz2,zst}, tgz/txz/tbz2, plain tar and zip.
func Extract(archive, dest string) error {
	if err := os.MkdirAll(dest, 0755); err != nil {
		return err
	}

	if strings.HasSuffix(archive, ".zip") {
		return extractZip(archive, dest)
	}

	base := filepath.Base(archive)
	switch {
	case strings.Contains(base, ".tar."),
		strings.HasSuffix(base, ".tar"),
		strings.HasSuffix(base, ".tgz"),
		strings.HasSuffix(base, ".txz"),
		strings.HasSuffix(base, ".tbz2"):
		r, err := OpenCompressed(archive)
		if err != nil {
			return err
		}
		defer r.Close()
		return ExtractTar(r, dest)
	}

	return fmt.Errorf("%w: %s", ErrUnsupportedFormat, archive)
}

func extractZip(archive, dest string) error {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return err
	}
	defer zr.Close()

	for _, f := range zr.File {
		name := filepath.Clean(f.Name)
		if strings.HasPrefix(name, "..") || filepath.IsAbs(name) {
			return fmt.Errorf("archive entry escapes destination: %s", f.Name)
		}
		target := filepath.Join(dest, name)

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, f.Mode()&0777); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode()&0777)
		if err != nil {
			rc.Close()
			return err
		}
		_, err = io.Copy(out, rc)
		out.Close()
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// SourceRoot returns the effective source root after extraction: when the
// workspace holds a single top-level directory it is promoted, otherwise the
// workspace itself is the root.
func SourceRoot(dest string) (string, error) {
	ents, err := os.ReadDir(dest)
	if err != nil {
		return "", err
	}

	var dirs []fs.DirEntry
	for _, e := range ents {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		dirs = append(dirs, e)
	}
	if len(dirs) == 1 && dirs[0].IsDir() {
		return filepath.Join(dest, dirs[0].Name()), nil
	}
	return dest, nil
}
