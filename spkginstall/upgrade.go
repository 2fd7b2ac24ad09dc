package spkginstall

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/AzusaOS/spkg/spkgconf"
	"github.com/AzusaOS/spkg/spkgdb"
)

// Upgrade replaces the installed package with the given archive. Before
// the overlay a rollback bundle for the old EVR is captured and a manifest
// delta written, so S-style rollbacks work even after the old archive is
// garbage-collected. Downgrades are refused without force.
func (in *Installer) Upgrade(archive, targetRoot string, meta *Meta, force bool) error {
	name, version, release, err := ParseArchiveName(archive)
	if err != nil {
		return err
	}
	newEVR, err := spkgdb.ParseEVR(version + "-" + release)
	if err != nil {
		return err
	}

	guard, err := in.Cfg.Lock("install-"+name, spkgconf.InstallLockTimeout)
	if err != nil {
		return err
	}
	defer guard.Release()

	prior, err := in.DB.GetRecord(name)
	if err != nil {
		return fmt.Errorf("upgrade needs an installed package: %w", err)
	}
	if prior.State != spkgdb.StateInstalled {
		return fmt.Errorf("%s is built but not installed", name)
	}

	if cmp := newEVR.Compare(prior.EVR); cmp <= 0 && !force {
		return &DowngradeRefused{Name: name, Old: prior.EVR.String(), New: newEVR.String()}
	}

	oldManifest, err := spkgdb.LoadManifest(prior.Manifest)
	if err != nil {
		return fmt.Errorf("old manifest for %s: %w", name, err)
	}

	if err := in.DB.CaptureBundle(name, prior.EVR, oldManifest, targetRoot); err != nil {
		return fmt.Errorf("rollback bundle for %s: %w", name, err)
	}
	if err := in.DB.AppendEvent(name, spkgdb.ActionSave, prior.EVR.String(), ""); err != nil {
		return err
	}

	if err := in.overlay(name, newEVR, archive, targetRoot, prior, meta, spkgdb.ActionUpgrade); err != nil {
		return err
	}

	newManifest, err := spkgdb.LoadManifest(in.DB.ManifestPath(name, newEVR))
	if err != nil {
		return err
	}
	delta := spkgdb.ComputeDelta(oldManifest, newManifest)
	if _, err := in.DB.WriteDelta(name, prior.EVR, newEVR, delta); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"package": name,
		"from":    prior.EVR.String(),
		"to":      newEVR.String(),
		"changed": len(delta.Changed),
		"added":   len(delta.Added),
		"removed": len(delta.Removed),
	}).Info("upgrade: done")
	return nil
}
