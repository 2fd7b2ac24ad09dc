package spkgbuild

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/AzusaOS/spkg/spkgconf"
	"github.com/AzusaOS/spkg/spkgdb"
	"github.com/AzusaOS/spkg/spkgextract"
	"github.com/AzusaOS/spkg/spkgfetch"
	"github.com/AzusaOS/spkg/spkgfprint"
	"github.com/AzusaOS/spkg/spkggraph"
	"github.com/AzusaOS/spkg/spkginstall"
	"github.com/AzusaOS/spkg/spkgpack"
	"github.com/AzusaOS/spkg/spkgrecipe"
)

// Orchestrator drives whole dependency graphs through the
// fetch/extract/patch/build/package/install pipeline. Within one package
// the pipeline is strictly sequential; across packages a layer of the
// graph may build in parallel up to the job ceiling.
type Orchestrator struct {
	Cfg     *spkgconf.Config
	Store   *spkgrecipe.Store
	DB      *spkgdb.DB
	Fetcher *spkgfetch.Fetcher

	// Target is the root packages are applied to, "/" in production.
	Target string
}

// New wires an orchestrator from the usual parts.
func New(cfg *spkgconf.Config, store *spkgrecipe.Store, db *spkgdb.DB, target string) *Orchestrator {
	return &Orchestrator{
		Cfg:     cfg,
		Store:   store,
		DB:      db,
		Fetcher: spkgfetch.New(cfg),
		Target:  target,
	}
}

// BuildMany builds and installs the roots plus everything they depend on.
// A layered schedule releases a layer only when all its predecessors hold
// installed records, so a build never starts before its dependencies are
// visible in the database.
func (o *Orchestrator) BuildMany(ctx context.Context, roots []string) error {
	g, err := spkggraph.Build(roots, o.Store.AllDeps)
	if err != nil {
		return err
	}
	layers, err := g.Layers()
	if err != nil {
		return err
	}

	for _, layer := range layers {
		eg, ctx := errgroup.WithContext(ctx)
		eg.SetLimit(o.Cfg.Jobs())
		for _, name := range layer {
			eg.Go(func() error {
				return o.BuildOne(ctx, name)
			})
		}
		if err := eg.Wait(); err != nil {
			return err
		}
	}
	return nil
}

// BuildOne runs the full pipeline for one package: skip when the installed
// EVR already matches the recipe, otherwise fetch, extract, patch, build,
// package and install or upgrade.
func (o *Orchestrator) BuildOne(ctx context.Context, name string) error {
	r, err := o.Store.Load(name)
	if err != nil {
		return err
	}
	if err := r.Lint(); err != nil {
		return err
	}

	if rec, err := o.DB.GetRecord(name); err == nil &&
		rec.State == spkgdb.StateInstalled && rec.EVR.Compare(r.EVR()) == 0 {
		log.WithField("package", name).Debug("build: up to date")
		return nil
	}

	res, bc, err := o.buildPackage(ctx, r)
	if err != nil {
		return err
	}

	meta, err := o.installMeta(r, bc)
	if err != nil {
		return err
	}

	in := &spkginstall.Installer{Cfg: o.Cfg, DB: o.DB}
	if rec, err := o.DB.GetRecord(name); err == nil && rec.State == spkgdb.StateInstalled {
		err = in.Upgrade(res.Archive, o.Target, meta, false)
	} else {
		err = in.Install(res.Archive, o.Target, meta)
	}
	if err != nil {
		return err
	}

	return bc.Destroy()
}

// buildPackage takes a recipe through packaging and returns the result and
// the (still existing) build context.
func (o *Orchestrator) buildPackage(ctx context.Context, r *spkgrecipe.Recipe) (*spkgpack.Result, *Context, error) {
	bc, err := NewContext(o.Cfg, r)
	if err != nil {
		return nil, nil, err
	}

	if err := o.acquireSources(ctx, r, bc); err != nil {
		return nil, nil, err
	}

	engine := &Engine{Cfg: o.Cfg}
	if err := engine.Run(ctx, bc); err != nil {
		return nil, nil, err
	}

	res, err := spkgpack.Package(o.DB, r.Name, r.EVR(), bc.Staging, bc.Epoch, r.Flags.NoStrip)
	if err != nil {
		return nil, nil, err
	}
	return res, bc, nil
}

// acquireSources fetches and unpacks everything the recipe declares. The
// first archive source is extracted and becomes the source root; further
// sources are copied alongside it; a git source exports a deterministic
// tarball and pins SOURCE_DATE_EPOCH to the commit time.
func (o *Orchestrator) acquireSources(ctx context.Context, r *spkgrecipe.Recipe, bc *Context) error {
	var archives []string

	if len(r.Sources) > 0 {
		reqs := make([]spkgfetch.Request, len(r.Sources))
		for i, s := range r.Sources {
			reqs[i] = spkgfetch.Request{URL: s.URL, SHA256: s.SHA256}
		}
		paths, err := o.Fetcher.FetchList(ctx, reqs, o.Cfg.Paths.Sources)
		if err != nil {
			return err
		}
		archives = paths
	}

	if r.Git != nil {
		archive, epoch, err := o.Fetcher.FetchGit(ctx, r.Git.URL, r.Git.Ref, r.Name, o.Cfg.Paths.Tarballs)
		if err != nil {
			return err
		}
		archives = append(archives, archive)
		if r.Flags.Reproducible || bc.Epoch == 0 {
			bc.Epoch = epoch
		}
	}

	if len(archives) > 0 {
		if err := spkgextract.Extract(archives[0], bc.SrcRoot); err != nil {
			return err
		}
		src, err := spkgextract.SourceRoot(bc.SrcRoot)
		if err != nil {
			return err
		}
		bc.SrcRoot = src

		for _, extra := range archives[1:] {
			if err := copyIntoTree(extra, bc.SrcRoot); err != nil {
				return err
			}
		}
	}

	if len(r.Patches) > 0 {
		reqs := make([]spkgfetch.Request, len(r.Patches))
		for i, p := range r.Patches {
			reqs[i] = spkgfetch.Request{URL: p.URL, SHA256: p.SHA256}
		}
		paths, err := o.Fetcher.FetchList(ctx, reqs, o.Cfg.Paths.Sources)
		if err != nil {
			return err
		}
		if err := spkgextract.ApplyPatches(bc.SrcRoot, paths); err != nil {
			return err
		}
	}
	return nil
}

func copyIntoTree(src, dir string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(filepath.Join(dir, filepath.Base(src)))
	if err != nil {
		return err
	}
	if _, err := out.ReadFrom(in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// installMeta resolves the metadata recorded with an install: declared
// deps, dep EVRs at build time and the three fingerprints of the staging
// root.
func (o *Orchestrator) installMeta(r *spkgrecipe.Recipe, bc *Context) (*spkginstall.Meta, error) {
	fps, err := spkgfprint.Collect(bc.Staging)
	if err != nil {
		return nil, err
	}

	depVers := make(map[string]string, len(r.Deps))
	for _, dep := range r.Deps {
		rec, err := o.DB.GetRecord(dep)
		if err != nil {
			if r.Flags.LockDeps {
				return nil, fmt.Errorf("locked dependency %s of %s is not installed", dep, r.Name)
			}
			continue
		}
		depVers[dep] = rec.EVR.String()
	}

	return &spkginstall.Meta{
		Deps:        r.Deps,
		DepVersions: depVers,
		EnvFprint:   fps.Environment,
		ABIFprint:   fps.ABI,
		ToolFprint:  fps.Toolchain,
	}, nil
}

// Upgrade rebuilds name when the recipe is newer than the installed EVR
// and applies it. The precondition check consults the database before any
// work happens.
func (o *Orchestrator) Upgrade(ctx context.Context, name string, force bool) error {
	r, err := o.Store.Load(name)
	if err != nil {
		return err
	}
	rec, err := o.DB.GetRecord(name)
	if err != nil {
		return err
	}
	if r.EVR().Compare(rec.EVR) <= 0 && !force {
		return &spkginstall.DowngradeRefused{
			Name: name, Old: rec.EVR.String(), New: r.EVR().String(),
		}
	}

	res, bc, err := o.buildPackage(ctx, r)
	if err != nil {
		return err
	}
	meta, err := o.installMeta(r, bc)
	if err != nil {
		return err
	}

	in := &spkginstall.Installer{Cfg: o.Cfg, DB: o.DB}
	if err := in.Upgrade(res.Archive, o.Target, meta, force); err != nil {
		return err
	}
	return bc.Destroy()
}

// UpdateAll upgrades every installed package whose recipe moved ahead,
// serialized under the update-all lock.
func (o *Orchestrator) UpdateAll(ctx context.Context) error {
	guard, err := o.Cfg.Lock("update-all", spkgconf.BuildLockTimeout)
	if err != nil {
		return err
	}
	defer guard.Release()

	names, err := o.DB.List()
	if err != nil {
		return err
	}
	for _, name := range names {
		rec, err := o.DB.GetRecord(name)
		if err != nil || rec.State != spkgdb.StateInstalled {
			continue
		}
		r, err := o.Store.Load(name)
		if err != nil {
			log.WithField("package", name).Debug("update: no recipe, skipping")
			continue
		}
		if r.EVR().Compare(rec.EVR) > 0 {
			if err := o.Upgrade(ctx, name, false); err != nil {
				return err
			}
		}
	}
	return nil
}
