package spkginstall

import (
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/AzusaOS/spkg/spkgdb"
)

// Verify re-hashes every type-f manifest entry of an installed package
// against the target root. Mismatching or missing paths are reported per
// file and aggregated into a VerifyMismatch.
func (in *Installer) Verify(name string) error {
	rec, err := in.DB.GetRecord(name)
	if err != nil {
		return err
	}
	manifest, err := spkgdb.LoadManifest(rec.Manifest)
	if err != nil {
		return err
	}

	var bad []string
	for _, e := range manifest {
		target := filepath.Join(rec.Root, e.Path)
		switch e.Type {
		case 'f':
			got, err := spkgdb.HashFile(target)
			if err != nil {
				if os.IsNotExist(err) {
					log.WithField("path", e.Path).Error("verify: missing")
					bad = append(bad, e.Path)
					continue
				}
				return err
			}
			if got != e.Hash {
				log.WithField("path", e.Path).Error("verify: hash mismatch")
				bad = append(bad, e.Path)
			}
		case 'l':
			if _, err := os.Readlink(target); err != nil {
				log.WithField("path", e.Path).Error("verify: missing symlink")
				bad = append(bad, e.Path)
			}
		}
	}

	if len(bad) > 0 {
		return &VerifyMismatch{Name: name, Paths: bad}
	}
	return nil
}
