package spkginstall

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/AzusaOS/spkg/spkgconf"
	"github.com/AzusaOS/spkg/spkgdb"
)

// Uninstall removes a package from targetRoot using its manifest. Files
// whose hash still matches are removed; modified files are renamed to
// <path>.save so user edits survive. Empty directories are pruned
// bottom-up. Without force the operation refuses while reverse
// dependencies exist.
func (in *Installer) Uninstall(name, targetRoot string, force bool, postRemove []string) error {
	guard, err := in.Cfg.Lock("uninstall-"+name, spkgconf.InstallLockTimeout)
	if err != nil {
		return err
	}
	defer guard.Release()

	rec, err := in.DB.GetRecord(name)
	if err != nil {
		return err
	}

	if !force {
		rev, err := in.DB.ReverseDeps(name)
		if err != nil {
			return err
		}
		if len(rev) > 0 {
			return &ReverseDepsPresent{Name: name, Deps: rev}
		}
	}

	manifest, err := spkgdb.LoadManifest(rec.Manifest)
	if err != nil {
		return fmt.Errorf("manifest for %s: %w", name, err)
	}

	if err := in.removeListed(manifest, targetRoot); err != nil {
		return err
	}

	if err := in.DB.DeleteRecord(name); err != nil {
		return err
	}

	if len(postRemove) > 0 {
		runPostRemove(name, targetRoot, postRemove)
	}

	log.WithFields(log.Fields{"package": name, "evr": rec.EVR.String()}).
		Info("uninstall: removed")
	return nil
}

// removeListed walks the manifest in reverse so children go before their
// directories.
func (in *Installer) removeListed(manifest spkgdb.Manifest, targetRoot string) error {
	var dirs []string

	for i := len(manifest) - 1; i >= 0; i-- {
		e := manifest[i]
		target := filepath.Join(targetRoot, e.Path)

		switch e.Type {
		case 'd':
			dirs = append(dirs, target)
		case 'l':
			if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
				return err
			}
		case 'f':
			got, err := spkgdb.HashFile(target)
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return err
			}
			if got != e.Hash {
				// user modified the file, preserve it
				if err := os.Rename(target, target+".save"); err != nil {
					return err
				}
				log.WithField("path", e.Path).Warn("uninstall: modified file kept as .save")
				continue
			}
			if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
	}

	for _, d := range dirs {
		// remove only if empty
		_ = os.Remove(d)
	}
	return nil
}

// runPostRemove executes the recipe's post-remove procedure. Failures are
// logged, the uninstall itself already happened.
func runPostRemove(name, targetRoot string, cmds []string) {
	for _, c := range cmds {
		cmd := exec.Command("/bin/sh", "-c", c)
		cmd.Env = []string{
			"PATH=/usr/bin:/usr/sbin:/bin:/sbin",
			"LC_ALL=C",
			"NAME=" + name,
			"TARGET_ROOT=" + targetRoot,
		}
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			log.WithError(err).WithField("package", name).Warn("uninstall: post-remove hook failed")
		}
	}
}
