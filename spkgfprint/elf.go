package spkgfprint

import (
	"debug/elf"
	"io/fs"
	"path/filepath"
)

// scanELF walks dir and returns one "path soname=... needed=a,b" line per
// ELF file. Non-ELF files and unreadable entries are skipped.
func scanELF(dir string) ([]string, error) {
	var out []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil || !fi.Mode().IsRegular() {
			return nil
		}

		f, err := elf.Open(path)
		if err != nil {
			return nil // not an ELF file
		}
		defer f.Close()

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		line := "/" + filepath.ToSlash(rel)
		if sonames, err := f.DynString(elf.DT_SONAME); err == nil && len(sonames) > 0 {
			line += " soname=" + sonames[0]
		}
		if needed, err := f.DynString(elf.DT_NEEDED); err == nil && len(needed) > 0 {
			for i, n := range needed {
				if i == 0 {
					line += " needed=" + n
				} else {
					line += "," + n
				}
			}
		}
		out = append(out, line)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
