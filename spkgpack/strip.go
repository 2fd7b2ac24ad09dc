// Package spkgpack turns a populated staging root into a package: strip
// pass, reproducible manifest, compressed archive, all renamed into place
// atomically.
package spkgpack

import (
	"bytes"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// directories searched for strippable ELF objects, relative to the staging
// root
var stripDirs = []string{
	"bin", "sbin", "lib", "lib64", "libexec",
	"usr/bin", "usr/sbin", "usr/lib", "usr/lib64", "usr/libexec",
	"usr/local/bin", "usr/local/lib",
}

var elfMagic = []byte{0x7f, 'E', 'L', 'F'}

// isELF sniffs the 4-byte magic.
func isELF(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	var magic [4]byte
	if _, err := f.Read(magic[:]); err != nil {
		return false
	}
	return bytes.Equal(magic[:], elfMagic)
}

// StripTree strips ELF binaries below the recognized bin/lib directories
// of root. Setuid files are skipped with a warning; a missing strip tool
// skips the pass entirely.
func StripTree(root string) error {
	stripBin, err := exec.LookPath("strip")
	if err != nil {
		log.Warn("pack: strip not found, skipping")
		return nil
	}

	for _, d := range stripDirs {
		dir := filepath.Join(root, d)
		if _, err := os.Stat(dir); err != nil {
			continue
		}

		err := filepath.WalkDir(dir, func(path string, de fs.DirEntry, err error) error {
			if err != nil || de.IsDir() {
				return err
			}
			fi, err := de.Info()
			if err != nil {
				return err
			}
			if !fi.Mode().IsRegular() || !isELF(path) {
				return nil
			}
			if fi.Mode()&(os.ModeSetuid|os.ModeSetgid) != 0 {
				log.WithField("file", path).Warn("pack: setuid file not stripped")
				return nil
			}

			cmd := exec.Command(stripBin, "--strip-unneeded", path)
			if out, err := cmd.CombinedOutput(); err != nil {
				// shared objects of odd shapes make strip grumble, not fatal
				log.WithField("file", path).Debugf("pack: strip: %s", bytes.TrimSpace(out))
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}
