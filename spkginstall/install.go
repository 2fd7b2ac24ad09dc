// Package spkginstall applies packages to a target root and keeps the
// installed database in step: install, uninstall, upgrade, rollback and
// verification. Every operation holds its per-name lock, so the target
// root has a single writer per package at any time.
package spkginstall

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/AzusaOS/spkg/spkgconf"
	"github.com/AzusaOS/spkg/spkgdb"
	"github.com/AzusaOS/spkg/spkgextract"
)

// Installer binds the configuration and database used by all operations.
type Installer struct {
	Cfg *spkgconf.Config
	DB  *spkgdb.DB
}

// Meta carries the build-time metadata recorded alongside an install.
type Meta struct {
	Deps        []string
	DepVersions map[string]string
	EnvFprint   string
	ABIFprint   string
	ToolFprint  string
}

// Install applies the package archive to targetRoot and records the
// installed metadata. Re-installing a byte-identical archive over a clean
// install leaves the same file contents in place, but the files are written
// again, the record is rewritten with a new install time and an INSTALL
// event is appended to the history; no identical-archive check is made. When a prior
// install of the same name exists its leftover paths are removed after the
// overlay.
func (in *Installer) Install(archive, targetRoot string, meta *Meta) error {
	name, version, release, err := ParseArchiveName(archive)
	if err != nil {
		return err
	}
	evr, err := spkgdb.ParseEVR(version + "-" + release)
	if err != nil {
		return err
	}

	guard, err := in.Cfg.Lock("install-"+name, spkgconf.InstallLockTimeout)
	if err != nil {
		return err
	}
	defer guard.Release()

	prior, _ := in.DB.GetRecord(name)

	if err := in.overlay(name, evr, archive, targetRoot, prior, meta, spkgdb.ActionInstall); err != nil {
		return err
	}
	return nil
}

// overlay is the shared single-pass application used by install, upgrade
// and rollback. It extracts the archive into a staging tmp, applies it to
// the target, removes leftovers of the prior install, then writes the new
// record. No partial overlay is visible: application starts only once the
// full staging tree exists.
func (in *Installer) overlay(name string, evr spkgdb.EVR, archive, targetRoot string,
	prior *spkgdb.InstalledRecord, meta *Meta, action string) error {

	staging, err := os.MkdirTemp(in.Cfg.Paths.Work, "install-"+name+"-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(staging)

	if err := spkgextract.Extract(archive, staging); err != nil {
		return err
	}

	newManifest, err := spkgdb.BuildManifest(staging)
	if err != nil {
		return err
	}

	if err := applyTree(staging, targetRoot); err != nil {
		return err
	}

	// paths owned by the prior install but absent from the new tree
	if prior != nil && prior.State == spkgdb.StateInstalled {
		oldManifest, err := spkgdb.LoadManifest(prior.Manifest)
		if err == nil {
			removeLeftovers(oldManifest, newManifest, targetRoot)
		} else {
			log.WithError(err).WithField("package", name).
				Warn("install: prior manifest unreadable, leftovers not pruned")
		}
	}

	manifestPath := in.DB.ManifestPath(name, evr)
	if _, err := os.Stat(manifestPath); err != nil {
		// installing a foreign archive: persist the manifest we computed
		mf, err := os.Create(manifestPath)
		if err != nil {
			return err
		}
		if _, err := newManifest.WriteTo(mf); err != nil {
			mf.Close()
			return err
		}
		if err := mf.Close(); err != nil {
			return err
		}
	}

	rec := &spkgdb.InstalledRecord{
		Name:        name,
		EVR:         evr,
		State:       spkgdb.StateInstalled,
		Root:        targetRoot,
		Archive:     archive,
		Manifest:    manifestPath,
		InstalledAt: time.Now(),
	}
	if prior != nil {
		rec.BuiltAt = prior.BuiltAt
	}
	if meta != nil {
		rec.Deps = meta.Deps
		rec.DepVersions = meta.DepVersions
		rec.EnvFprint = meta.EnvFprint
		rec.ABIFprint = meta.ABIFprint
		rec.ToolFprint = meta.ToolFprint
	}
	if err := in.DB.PutRecord(rec); err != nil {
		return err
	}

	from := ""
	if prior != nil && prior.State == spkgdb.StateInstalled {
		from = prior.EVR.String()
	}
	if err := in.DB.AppendEvent(name, action, from, evr.String()); err != nil {
		return err
	}

	log.WithFields(log.Fields{"package": name, "evr": evr.String(), "root": targetRoot}).
		Info("install: applied")
	return nil
}

// applyTree copies the staged tree onto the target root in one pass:
// regular files overwrite, directories are created, symlinks are recreated
// as recorded.
func applyTree(staging, targetRoot string) error {
	return filepath.WalkDir(staging, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(staging, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		target := filepath.Join(targetRoot, rel)

		fi, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case fi.IsDir():
			if err := os.MkdirAll(target, fi.Mode().Perm()); err != nil {
				return err
			}
		case fi.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			_ = os.Remove(target)
			if err := os.Symlink(link, target); err != nil {
				return err
			}
		case fi.Mode().IsRegular():
			if err := copyFile(path, target, fi.Mode().Perm()); err != nil {
				return err
			}
		}
		return nil
	})
}

func copyFile(src, dst string, mode fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	s, err := os.Open(src)
	if err != nil {
		return err
	}
	defer s.Close()

	// write to a sibling temp and rename so readers never see a torn file
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".spkg-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := io.Copy(tmp, s); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	return os.Rename(name, dst)
}

// removeLeftovers deletes paths the old manifest lists but the new one
// does not, files first, then empty directories bottom-up.
func removeLeftovers(old, new spkgdb.Manifest, targetRoot string) {
	keep := make(map[string]bool, len(new))
	for _, e := range new {
		keep[e.Path] = true
	}

	var dirs []string
	for i := len(old) - 1; i >= 0; i-- {
		e := old[i]
		if keep[e.Path] {
			continue
		}
		target := filepath.Join(targetRoot, e.Path)
		if e.Type == 'd' {
			dirs = append(dirs, target)
			continue
		}
		if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
			log.WithError(err).WithField("path", e.Path).Warn("install: leftover not removed")
		}
	}
	for _, d := range dirs {
		// only empties go, shared directories survive
		_ = os.Remove(d)
	}
}
