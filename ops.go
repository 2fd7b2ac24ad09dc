package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/AzusaOS/spkg/spkgbuild"
	"github.com/AzusaOS/spkg/spkgconf"
	"github.com/AzusaOS/spkg/spkgdb"
	"github.com/AzusaOS/spkg/spkgfetch"
	"github.com/AzusaOS/spkg/spkgfprint"
	"github.com/AzusaOS/spkg/spkginstall"
	"github.com/AzusaOS/spkg/spkgrecipe"
)

var errUsage = errors.New("usage error")

// targetRoot is where packages are applied; SPKG_TARGET redirects it for
// bootstrap roots like /mnt/lfs.
func targetRoot() string {
	if v := os.Getenv("SPKG_TARGET"); v != "" {
		return v
	}
	return "/"
}

func run(ctx context.Context, cfg *spkgconf.Config, cmd string, args []string) error {
	if cmd == "doctor" {
		return doctor()
	}
	if cmd == "version" {
		fmt.Printf("spkg built on %s\n", DATE_TAG)
		return nil
	}

	if err := cfg.Paths.MkdirAll(); err != nil {
		return err
	}
	db, err := spkgdb.New(cfg.Paths)
	if err != nil {
		return err
	}
	defer db.Close()

	store := spkgrecipe.NewStore(cfg.Paths.Recipes, cfg.Paths.SysRec)
	defer store.Close()

	orch := spkgbuild.New(cfg, store, db, targetRoot())
	in := &spkginstall.Installer{Cfg: cfg, DB: db}

	// strip a trailing --force wherever it makes sense
	force := false
	if n := len(args); n > 0 && args[n-1] == "--force" {
		force = true
		args = args[:n-1]
	}

	switch cmd {
	case "build":
		if len(args) < 1 {
			return errUsage
		}
		return orch.BuildMany(ctx, args)

	case "fetch":
		if len(args) != 1 {
			return errUsage
		}
		r, err := store.Load(args[0])
		if err != nil {
			return err
		}
		f := spkgfetch.New(cfg)
		for _, s := range r.Sources {
			p, err := f.FetchOne(ctx, s.URL, s.SHA256, cfg.Paths.Sources)
			if err != nil {
				return err
			}
			fmt.Println(p)
		}
		if r.Git != nil {
			p, _, err := f.FetchGit(ctx, r.Git.URL, r.Git.Ref, r.Name, cfg.Paths.Tarballs)
			if err != nil {
				return err
			}
			fmt.Println(p)
		}
		return nil

	case "install":
		if len(args) != 1 {
			return errUsage
		}
		return in.Install(args[0], targetRoot(), nil)

	case "remove":
		if len(args) != 1 {
			return errUsage
		}
		var postRemove []string
		if r, err := store.Load(args[0]); err == nil {
			postRemove = r.PostRemove
		}
		return in.Uninstall(args[0], targetRoot(), force, postRemove)

	case "upgrade":
		if len(args) != 1 {
			return errUsage
		}
		return orch.Upgrade(ctx, args[0], force)

	case "update":
		return orch.UpdateAll(ctx)

	case "rollback":
		if len(args) < 1 {
			return errUsage
		}
		name := args[0]
		var evr spkgdb.EVR
		if len(args) < 2 || args[1] == "prev" {
			evr, err = in.PreviousEVR(name)
		} else {
			evr, err = spkgdb.ParseEVR(args[1])
		}
		if err != nil {
			return err
		}
		return in.Rollback(name, evr, targetRoot())

	case "verify":
		if len(args) != 1 {
			return errUsage
		}
		return in.Verify(args[0])

	case "list":
		names, err := db.List()
		if err != nil {
			return err
		}
		for _, n := range names {
			rec, err := db.GetRecord(n)
			if err != nil {
				continue
			}
			fmt.Printf("%s %s (%s)\n", n, rec.EVR, rec.State)
		}
		return nil

	case "search":
		if len(args) != 1 {
			return errUsage
		}
		names, err := store.Search(args[0])
		if err != nil {
			return err
		}
		for _, n := range names {
			mark := " "
			if rec, err := db.GetRecord(n); err == nil && rec.State == spkgdb.StateInstalled {
				mark = "i"
			}
			fmt.Printf("[%s] %s\n", mark, n)
		}
		return nil

	case "info":
		if len(args) != 1 {
			return errUsage
		}
		r, err := store.Load(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s %s\n", r.Name, r.EVR())
		if r.Summary != "" {
			fmt.Println(r.Summary)
		}
		if r.Homepage != "" {
			fmt.Println(r.Homepage)
		}
		if len(r.Deps) > 0 {
			fmt.Printf("deps: %v\n", r.Deps)
		}
		return nil

	case "history":
		if len(args) != 1 {
			return errUsage
		}
		evs, err := db.History(args[0])
		if err != nil {
			return err
		}
		for _, e := range evs {
			fmt.Printf("%s %s %s %s -> %s\n",
				e.Time.Format("2006-01-02 15:04:05"), e.Action, e.Name, e.From, e.To)
		}
		return nil

	case "plan":
		planner := &spkgfprint.Planner{DB: db}
		var plan []string
		switch {
		case len(args) == 0 || args[0] == "smart":
			plan, err = planner.PlanSmart()
		case args[0] == "world":
			plan, err = planner.PlanWorld()
		default:
			plan, err = planner.PlanChanged(args[0])
		}
		if err != nil {
			return err
		}
		for _, p := range plan {
			fmt.Println(p)
		}
		return nil

	case "lint":
		if len(args) != 1 {
			return errUsage
		}
		if err := store.Lint(args[0]); err != nil {
			return err
		}
		log.WithField("package", args[0]).Info("spkg: recipe is valid")
		return nil
	}

	usage()
	return errUsage
}
