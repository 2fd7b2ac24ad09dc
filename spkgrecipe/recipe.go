// Package spkgrecipe locates, parses and validates recipe descriptors.
// Recipes are YAML files named <name>.recipe, looked up in the user store
// first and the read-only system store second.
package spkgrecipe

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/AzusaOS/spkg/spkgdb"
)

// Source is one fetchable input with its expected content hash.
type Source struct {
	URL    string `yaml:"url"`
	SHA256 string `yaml:"sha256"`
}

// Git points at a repository and a ref to export.
type Git struct {
	URL string `yaml:"url"`
	Ref string `yaml:"ref"`
}

// Flags are the capability switches a recipe may set.
type Flags struct {
	Chroot       bool `yaml:"chroot"`       // prefer building inside the chroot
	NoStrip      bool `yaml:"no_strip"`     // skip the ELF strip pass
	Reproducible bool `yaml:"reproducible"` // pin SOURCE_DATE_EPOCH
	LockDeps     bool `yaml:"lock_deps"`    // fail the build when a declared dep is not installed
}

// Recipe is the declarative package description.
type Recipe struct {
	Name     string `yaml:"name"`
	Epoch    int    `yaml:"epoch"`
	Version  string `yaml:"version"`
	Release  string `yaml:"release"`
	Summary  string `yaml:"summary,omitempty"`
	Homepage string `yaml:"homepage,omitempty"`
	License  string `yaml:"license,omitempty"`

	Deps      []string `yaml:"deps,omitempty"`
	BuildDeps []string `yaml:"build_deps,omitempty"`

	Sources []Source `yaml:"sources,omitempty"`
	Patches []Source `yaml:"patches,omitempty"`
	Git     *Git     `yaml:"git,omitempty"`

	Vars map[string]string `yaml:"vars,omitempty"`

	// stage procedures: opaque command sequences run by the build engine,
	// never evaluated in-process
	Prepare    []string `yaml:"prepare,omitempty"`
	Build      []string `yaml:"build,omitempty"`
	Check      []string `yaml:"check,omitempty"`
	Install    []string `yaml:"install,omitempty"`
	PostRemove []string `yaml:"post_remove,omitempty"`

	Flags Flags `yaml:"flags,omitempty"`
}

// EVR returns the recipe's version identifier.
func (r *Recipe) EVR() spkgdb.EVR {
	rel := r.Release
	if rel == "" {
		rel = "1"
	}
	return spkgdb.EVR{Epoch: r.Epoch, Version: r.Version, Release: rel}
}

// Parse decodes a YAML recipe.
func Parse(data []byte) (*Recipe, error) {
	var r Recipe
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, &ParseError{Reason: err.Error()}
	}
	return &r, nil
}

// Lint verifies the recipe invariants.
func (r *Recipe) Lint() error {
	if r.Name == "" {
		return &LintError{Field: "name", Reason: "must not be empty"}
	}
	if r.Version == "" {
		return &LintError{Field: "version", Reason: "must not be empty"}
	}
	for i, s := range r.Sources {
		if s.URL == "" {
			return &LintError{Field: fmt.Sprintf("sources[%d].url", i), Reason: "must not be empty"}
		}
		if !validSHA256(s.SHA256) {
			return &LintError{Field: fmt.Sprintf("sources[%d].sha256", i), Reason: "must be 64 hex characters"}
		}
	}
	for i, p := range r.Patches {
		if p.URL == "" {
			return &LintError{Field: fmt.Sprintf("patches[%d].url", i), Reason: "must not be empty"}
		}
		if !validSHA256(p.SHA256) {
			return &LintError{Field: fmt.Sprintf("patches[%d].sha256", i), Reason: "must be 64 hex characters"}
		}
	}
	if r.Git != nil {
		if r.Git.URL == "" {
			return &LintError{Field: "git.url", Reason: "must not be empty"}
		}
		if r.Git.Ref == "" {
			return &LintError{Field: "git.ref", Reason: "required when git.url is set"}
		}
	}
	if len(r.Sources) == 0 && r.Git == nil && len(r.Install) == 0 {
		return &LintError{Field: "sources", Reason: "recipe has no sources, no git and no install procedure"}
	}
	return nil
}

func validSHA256(s string) bool {
	if len(s) != 64 {
		return false
	}
	for i := 0; i < 64; i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
