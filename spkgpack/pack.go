package spkgpack

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/AzusaOS/spkg/spkgdb"
	"github.com/AzusaOS/spkg/spkgextract"
)

// Result is what packaging one staging root produces.
type Result struct {
	Archive  string
	Manifest string
	Files    spkgdb.Manifest
}

// Package strips, manifests and archives the staging root for (name, evr).
// The archive and manifest are written through temp paths and renamed into
// place, and a built-but-not-installed record is stored unless name already
// has an installed record, which is left as it is. epoch pins every
// timestamp inside the archive so identical staging roots produce
// byte-identical packages.
func Package(db *spkgdb.DB, name string, evr spkgdb.EVR, stagingRoot string, epoch int64, noStrip bool) (*Result, error) {
	paths := db.Paths()
	if err := os.MkdirAll(paths.Packages, 0755); err != nil {
		return nil, err
	}

	if !noStrip {
		if err := StripTree(stagingRoot); err != nil {
			return nil, err
		}
	}

	manifest, err := spkgdb.BuildManifest(stagingRoot)
	if err != nil {
		return nil, err
	}

	manifestPath := db.ManifestPath(name, evr)
	tmpManifest := manifestPath + ".tmp"
	mf, err := os.Create(tmpManifest)
	if err != nil {
		return nil, err
	}
	if _, err := manifest.WriteTo(mf); err != nil {
		mf.Close()
		os.Remove(tmpManifest)
		return nil, err
	}
	if err := mf.Close(); err != nil {
		os.Remove(tmpManifest)
		return nil, err
	}

	archivePath := db.ArchivePath(name, evr, spkgextract.DefaultCompression)
	tmpArchive := archivePath + ".tmp." + spkgextract.DefaultCompression
	if err := writeArchive(tmpArchive, stagingRoot, epoch); err != nil {
		os.Remove(tmpManifest)
		os.Remove(tmpArchive)
		return nil, err
	}

	if err := os.Rename(tmpManifest, manifestPath); err != nil {
		return nil, err
	}
	if err := os.Rename(tmpArchive, archivePath); err != nil {
		return nil, err
	}

	// mark built-but-not-installed, but never clobber a live install record
	if prior, err := db.GetRecord(name); err != nil || prior.State != spkgdb.StateInstalled {
		rec := &spkgdb.InstalledRecord{
			Name:     name,
			EVR:      evr,
			State:    spkgdb.StateBuilt,
			Archive:  archivePath,
			Manifest: manifestPath,
			BuiltAt:  time.Now(),
		}
		if err := db.PutRecord(rec); err != nil {
			return nil, err
		}
	}

	log.WithFields(log.Fields{
		"package": name,
		"evr":     evr.String(),
		"archive": filepath.Base(archivePath),
		"files":   len(manifest),
	}).Info("pack: package written")

	return &Result{Archive: archivePath, Manifest: manifestPath, Files: manifest}, nil
}

func writeArchive(path, root string, epoch int64) error {
	w, err := spkgextract.CreateCompressed(path)
	if err != nil {
		return err
	}
	if err := spkgextract.TarTree(w, root, time.Unix(epoch, 0).UTC()); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// ArchiveName composes the package archive file name.
func ArchiveName(name string, evr spkgdb.EVR, comp string) string {
	return fmt.Sprintf("%s-%s-%s.tar.%s", name, evr.Version, evr.Release, comp)
}
