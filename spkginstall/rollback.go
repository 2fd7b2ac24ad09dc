package spkginstall

import (
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/AzusaOS/spkg/spkgconf"
	"github.com/AzusaOS/spkg/spkgdb"
)

// Rollback restores name at targetEVR on targetRoot. When the old package
// archive still exists it is reinstalled; otherwise the rollback bundle is
// restored directly and a minimal installed record is regenerated from the
// preserved manifest.
func (in *Installer) Rollback(name string, targetEVR spkgdb.EVR, targetRoot string) error {
	current, err := in.DB.GetRecord(name)
	if err != nil {
		return err
	}
	from := current.EVR.String()

	archive := in.DB.ArchivePath(name, targetEVR, "zst")
	if _, statErr := os.Stat(archive); statErr != nil {
		archive = in.DB.ArchivePath(name, targetEVR, "xz")
		if _, statErr = os.Stat(archive); statErr != nil {
			archive = ""
		}
	}

	if archive != "" {
		// archive path: plain uninstall + reinstall
		if err := in.Uninstall(name, targetRoot, true, nil); err != nil {
			return err
		}
		if err := in.Install(archive, targetRoot, nil); err != nil {
			return err
		}
		// Install logged INSTALL; the rollback event still gets recorded
		return in.DB.AppendEvent(name, spkgdb.ActionRollback, from, targetEVR.String())
	}

	if !in.DB.HasBundle(name, targetEVR) {
		return fmt.Errorf("no archive and no rollback bundle for %s-%s", name, targetEVR)
	}

	guard, err := in.Cfg.Lock("install-"+name, spkgconf.InstallLockTimeout)
	if err != nil {
		return err
	}
	defer guard.Release()

	// drop the current file set first, then lay the bundle back down
	if err := in.Uninstall(name, targetRoot, true, nil); err != nil {
		return err
	}

	manifest, err := in.DB.RestoreBundle(name, targetEVR, targetRoot)
	if err != nil {
		return err
	}

	// regenerate a minimal record pointing at the preserved manifest
	manifestPath := in.DB.ManifestPath(name, targetEVR)
	if _, err := os.Stat(manifestPath); err != nil {
		mf, err := os.Create(manifestPath)
		if err != nil {
			return err
		}
		if _, err := manifest.WriteTo(mf); err != nil {
			mf.Close()
			return err
		}
		if err := mf.Close(); err != nil {
			return err
		}
	}
	rec := &spkgdb.InstalledRecord{
		Name:        name,
		EVR:         targetEVR,
		State:       spkgdb.StateInstalled,
		Root:        targetRoot,
		Manifest:    manifestPath,
		InstalledAt: time.Now(),
	}
	if err := in.DB.PutRecord(rec); err != nil {
		return err
	}

	log.WithFields(log.Fields{"package": name, "from": from, "to": targetEVR.String()}).
		Info("rollback: restored from bundle")
	return in.DB.AppendEvent(name, spkgdb.ActionRollback, from, targetEVR.String())
}

// PreviousEVR picks the most recent SAVE event older than the current
// install, the target of a "rollback <name> prev" request.
func (in *Installer) PreviousEVR(name string) (spkgdb.EVR, error) {
	current, err := in.DB.GetRecord(name)
	if err != nil {
		return spkgdb.EVR{}, err
	}

	evs, err := in.DB.History(name)
	if err != nil {
		return spkgdb.EVR{}, err
	}
	for i := len(evs) - 1; i >= 0; i-- {
		if evs[i].Action != spkgdb.ActionSave {
			continue
		}
		evr, err := spkgdb.ParseEVR(evs[i].From)
		if err != nil {
			continue
		}
		if evr.Compare(current.EVR) != 0 {
			return evr, nil
		}
	}
	return spkgdb.EVR{}, fmt.Errorf("no previous version recorded for %s", name)
}
