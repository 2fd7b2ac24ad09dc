package spkgfprint

import (
	log "github.com/sirupsen/logrus"

	"github.com/AzusaOS/spkg/spkgdb"
	"github.com/AzusaOS/spkg/spkggraph"
)

// Planner decides what needs rebuilding, working over the installed
// database.
type Planner struct {
	DB *spkgdb.DB
}

func (p *Planner) installedGraph() (*spkggraph.Graph, error) {
	names, err := p.DB.List()
	if err != nil {
		return nil, err
	}
	return spkggraph.Build(names, func(name string) ([]string, error) {
		deps, err := p.DB.Deps(name)
		if err != nil {
			return nil, err
		}
		// deps missing from the database are outside the installed world
		var known []string
		for _, d := range deps {
			if _, err := p.DB.GetRecord(d); err == nil {
				known = append(known, d)
			}
		}
		return known, nil
	})
}

// PlanWorld orders every installed package topologically.
func (p *Planner) PlanWorld() ([]string, error) {
	g, err := p.installedGraph()
	if err != nil {
		return nil, err
	}
	return g.TopoOrder()
}

// PlanChanged returns pkg plus its transitive dependents, topologically
// ordered.
func (p *Planner) PlanChanged(pkg string) ([]string, error) {
	g, err := p.installedGraph()
	if err != nil {
		return nil, err
	}
	return g.ReverseClosure(pkg)
}

// PlanSmart selects packages whose recorded state drifted: the toolchain
// changed globally, the environment fingerprint differs, a dependency's
// current EVR differs from the recorded dep_versions, or the ABI under the
// target root moved. The set is closed under reverse reachability and
// topologically ordered.
func (p *Planner) PlanSmart() ([]string, error) {
	g, err := p.installedGraph()
	if err != nil {
		return nil, err
	}

	toolState := NewToolchainState(p.DB.Paths().DB)
	toolChanged, err := toolState.Changed(Toolchain())
	if err != nil {
		return nil, err
	}
	envNow := Environment()

	names, err := p.DB.List()
	if err != nil {
		return nil, err
	}

	dirty := make(map[string]bool)
	for _, name := range names {
		rec, err := p.DB.GetRecord(name)
		if err != nil {
			continue
		}
		if rec.State != spkgdb.StateInstalled {
			continue
		}

		reason := ""
		switch {
		case toolChanged:
			reason = "toolchain changed"
		case rec.EnvFprint != "" && rec.EnvFprint != envNow:
			reason = "environment drifted"
		default:
			for dep, recorded := range rec.DepVersions {
				depRec, err := p.DB.GetRecord(dep)
				if err != nil {
					continue
				}
				if depRec.EVR.String() != recorded {
					reason = "dependency " + dep + " moved"
					break
				}
			}
			if reason == "" && rec.ABIFprint != "" && rec.Root != "" {
				abi, err := ABI(rec.Root)
				if err == nil && abi != rec.ABIFprint {
					reason = "ABI drifted"
				}
			}
		}
		if reason != "" {
			log.WithFields(log.Fields{"package": name, "reason": reason}).
				Debug("plan: rebuild candidate")
			dirty[name] = true
		}
	}

	// close under reverse reachability
	closure := make(map[string]bool)
	for name := range dirty {
		dependents, err := g.ReverseClosure(name)
		if err != nil {
			return nil, err
		}
		for _, d := range dependents {
			closure[d] = true
		}
	}

	order, err := g.TopoOrder()
	if err != nil {
		return nil, err
	}
	var plan []string
	for _, n := range order {
		if closure[n] {
			plan = append(plan, n)
		}
	}
	return plan, nil
}
