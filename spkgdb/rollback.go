package spkgdb

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/AzusaOS/spkg/spkgextract"
)

// BundleDir returns the rollback bundle directory for (name, evr).
func (d *DB) BundleDir(name string, evr EVR) string {
	return filepath.Join(d.paths.Rollback, name, evr.String())
}

// BundlePath returns the bundle archive inside BundleDir.
func (d *DB) BundlePath(name string, evr EVR) string {
	return filepath.Join(d.BundleDir(name, evr), "bundle.tar."+spkgextract.DefaultCompression)
}

// CaptureBundle archives the exact file and symlink set the manifest lists,
// read from targetRoot, plus a copy of the manifest itself. The bundle is
// content-complete for a rollback even after the old package archive is
// gone. Paths listed by the manifest but absent from the target are skipped
// with a warning.
func (d *DB) CaptureBundle(name string, evr EVR, m Manifest, targetRoot string) error {
	dir := d.BundleDir(name, evr)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	out, err := spkgextract.CreateCompressed(d.BundlePath(name, evr))
	if err != nil {
		return err
	}
	tw := tar.NewWriter(out)

	for _, e := range m {
		if e.Type == 'd' {
			continue
		}
		src := filepath.Join(targetRoot, e.Path)
		fi, err := os.Lstat(src)
		if err != nil {
			log.WithFields(log.Fields{"package": name, "path": e.Path}).
				Warn("bundle: listed path missing from target")
			continue
		}

		var link string
		if e.Type == 'l' {
			link, err = os.Readlink(src)
			if err != nil {
				return err
			}
		}
		hdr, err := tar.FileInfoHeader(fi, link)
		if err != nil {
			return err
		}
		hdr.Name = e.Path[1:] // manifest paths are absolute
		hdr.Format = tar.FormatPAX

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if e.Type == 'f' {
			f, err := os.Open(src)
			if err != nil {
				return err
			}
			_, err = io.Copy(tw, f)
			f.Close()
			if err != nil {
				return err
			}
		}
	}

	if err := tw.Close(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	// the old manifest rides along so a rollback needs nothing else
	return atomicWrite(filepath.Join(dir, "manifest.old"), func(w io.Writer) error {
		_, err := m.WriteTo(w)
		return err
	})
}

// HasBundle reports whether a bundle exists for (name, evr).
func (d *DB) HasBundle(name string, evr EVR) bool {
	_, err := os.Stat(d.BundlePath(name, evr))
	return err == nil
}

// RestoreBundle extracts the bundle for (name, evr) over targetRoot and
// returns the preserved manifest.
func (d *DB) RestoreBundle(name string, evr EVR, targetRoot string) (Manifest, error) {
	if !d.HasBundle(name, evr) {
		return nil, fmt.Errorf("no rollback bundle for %s-%s", name, evr)
	}

	m, err := LoadManifest(filepath.Join(d.BundleDir(name, evr), "manifest.old"))
	if err != nil {
		return nil, err
	}

	r, err := spkgextract.OpenCompressed(d.BundlePath(name, evr))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	if err := spkgextract.ExtractTar(r, targetRoot); err != nil {
		return nil, err
	}
	return m, nil
}
