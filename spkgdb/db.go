// Package spkgdb is the on-disk database of installed packages: per-name
// metadata records, manifests, the append-only history, rollback bundles
// and manifest deltas. Flat files are the source of truth; a bolt index
// sits next to them for reverse-dependency and listing queries, is updated
// on every record write and is rebuilt from the files each time the
// database is opened.
package spkgdb

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/AzusaOS/spkg/spkgconf"
)

var (
	bucketInstalled = []byte("installed")
	bucketDeps      = []byte("deps")
)

// ErrNotInstalled is returned when no record exists for a package name.
var ErrNotInstalled = errors.New("package not installed")

// DB gives access to the spkg state directories.
type DB struct {
	paths spkgconf.Paths
	dbptr *bolt.DB
	dbrw  sync.RWMutex
}

// New opens the database, creating directories and the index as needed.
func New(paths spkgconf.Paths) (*DB, error) {
	if err := os.MkdirAll(paths.Installed(), 0755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(paths.Manifest, 0755); err != nil {
		return nil, err
	}

	db, err := bolt.Open(filepath.Join(paths.DB, "index.db"), 0600, nil)
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketInstalled); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketDeps)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	res := &DB{paths: paths, dbptr: db}
	if err := res.reindex(); err != nil {
		db.Close()
		return nil, err
	}
	return res, nil
}

// Close releases the index.
func (d *DB) Close() error {
	d.dbrw.Lock()
	defer d.dbrw.Unlock()

	if d.dbptr == nil {
		return nil
	}
	err := d.dbptr.Close()
	d.dbptr = nil
	return err
}

// Paths returns the layout the database was opened with.
func (d *DB) Paths() spkgconf.Paths { return d.paths }

func (d *DB) recordPath(name string) string {
	return filepath.Join(d.paths.Installed(), name+".meta")
}

// ManifestPath returns where the manifest for name at evr lives.
func (d *DB) ManifestPath(name string, evr EVR) string {
	return filepath.Join(d.paths.Manifest, fmt.Sprintf("%s-%s.manifest", name, evr))
}

// ArchivePath returns the package archive path for the given compression.
func (d *DB) ArchivePath(name string, evr EVR, comp string) string {
	return filepath.Join(d.paths.Packages,
		fmt.Sprintf("%s-%s-%s.tar.%s", name, evr.Version, evr.Release, comp))
}

// PutRecord writes the record atomically and refreshes the index. Exactly
// one record exists per name; an upgrade overwrites it.
func (d *DB) PutRecord(rec *InstalledRecord) error {
	err := atomicWrite(d.recordPath(rec.Name), rec.encode)
	if err != nil {
		return err
	}

	d.dbrw.RLock()
	defer d.dbrw.RUnlock()
	return d.dbptr.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketInstalled).Put([]byte(rec.Name), []byte(rec.EVR.String())); err != nil {
			return err
		}
		return tx.Bucket(bucketDeps).Put([]byte(rec.Name), []byte(strings.Join(rec.Deps, " ")))
	})
}

// GetRecord loads the record for name.
func (d *DB) GetRecord(name string) (*InstalledRecord, error) {
	f, err := os.Open(d.recordPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotInstalled, name)
		}
		return nil, err
	}
	defer f.Close()
	return decodeRecord(f)
}

// DeleteRecord removes the record and its index entries.
func (d *DB) DeleteRecord(name string) error {
	if err := os.Remove(d.recordPath(name)); err != nil && !os.IsNotExist(err) {
		return err
	}

	d.dbrw.RLock()
	defer d.dbrw.RUnlock()
	return d.dbptr.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketInstalled).Delete([]byte(name)); err != nil {
			return err
		}
		return tx.Bucket(bucketDeps).Delete([]byte(name))
	})
}

// List returns the names of all recorded packages, sorted.
func (d *DB) List() ([]string, error) {
	var names []string

	d.dbrw.RLock()
	defer d.dbrw.RUnlock()
	err := d.dbptr.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketInstalled).ForEach(func(k, v []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Deps returns the declared runtime dependencies recorded for name.
func (d *DB) Deps(name string) ([]string, error) {
	var deps []string

	d.dbrw.RLock()
	defer d.dbrw.RUnlock()
	err := d.dbptr.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketDeps).Get([]byte(name))
		if v == nil {
			return fmt.Errorf("%w: %s", ErrNotInstalled, name)
		}
		if len(v) > 0 {
			deps = strings.Fields(string(v))
		}
		return nil
	})
	return deps, err
}

// ReverseDeps returns the installed packages that declare name as a
// dependency, sorted.
func (d *DB) ReverseDeps(name string) ([]string, error) {
	var rev []string

	d.dbrw.RLock()
	defer d.dbrw.RUnlock()
	err := d.dbptr.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDeps).ForEach(func(k, v []byte) error {
			for _, dep := range strings.Fields(string(v)) {
				if dep == name {
					rev = append(rev, string(k))
					break
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(rev)
	return rev, nil
}

// reindex rebuilds the bolt index from the flat meta files. Runs at open so
// a stale or deleted index never changes query results.
func (d *DB) reindex() error {
	ents, err := os.ReadDir(d.paths.Installed())
	if err != nil {
		return err
	}

	return d.dbptr.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketInstalled); err != nil {
			return err
		}
		if err := tx.DeleteBucket(bucketDeps); err != nil {
			return err
		}
		inst, err := tx.CreateBucket(bucketInstalled)
		if err != nil {
			return err
		}
		deps, err := tx.CreateBucket(bucketDeps)
		if err != nil {
			return err
		}

		for _, e := range ents {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".meta") {
				continue
			}
			f, err := os.Open(filepath.Join(d.paths.Installed(), e.Name()))
			if err != nil {
				continue
			}
			rec, err := decodeRecord(f)
			f.Close()
			if err != nil {
				continue
			}
			if err := inst.Put([]byte(rec.Name), []byte(rec.EVR.String())); err != nil {
				return err
			}
			if err := deps.Put([]byte(rec.Name), []byte(strings.Join(rec.Deps, " "))); err != nil {
				return err
			}
		}
		return nil
	})
}
