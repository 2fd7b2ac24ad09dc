package spkgrecipe

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConvertLegacy parses the historical key=value + array recipe form and
// returns the equivalent structured recipe. Arrays use the key=(a b c)
// syntax; sources/source_hashes and patches/patch_hashes are positional
// pairs; stage keys may repeat, each occurrence appending one command.
func ConvertLegacy(data []byte) (*Recipe, error) {
	r := &Recipe{Vars: map[string]string{}}
	var sources, sourceHashes, patches, patchHashes []string
	var gitURL, gitRef string

	s := bufio.NewScanner(strings.NewReader(string(data)))
	line := 0
	for s.Scan() {
		line++
		text := strings.TrimSpace(s.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		k, v, ok := strings.Cut(text, "=")
		if !ok {
			return nil, &ParseError{Line: line, Reason: "expected key=value"}
		}
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)

		switch k {
		case "name":
			r.Name = v
		case "epoch":
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, &ParseError{Line: line, Reason: "epoch must be numeric"}
			}
			r.Epoch = n
		case "version":
			r.Version = v
		case "release":
			r.Release = v
		case "summary":
			r.Summary = v
		case "homepage":
			r.Homepage = v
		case "license":
			r.License = v
		case "deps":
			r.Deps = parseArray(v)
		case "build_deps":
			r.BuildDeps = parseArray(v)
		case "sources":
			sources = parseArray(v)
		case "source_hashes":
			sourceHashes = parseArray(v)
		case "patches":
			patches = parseArray(v)
		case "patch_hashes":
			patchHashes = parseArray(v)
		case "git_url":
			gitURL = v
		case "git_ref":
			gitRef = v
		case "prepare":
			r.Prepare = append(r.Prepare, v)
		case "build":
			r.Build = append(r.Build, v)
		case "check":
			r.Check = append(r.Check, v)
		case "install":
			r.Install = append(r.Install, v)
		case "post_remove":
			r.PostRemove = append(r.PostRemove, v)
		case "chroot":
			r.Flags.Chroot = v == "1" || v == "yes" || v == "true"
		case "no_strip":
			r.Flags.NoStrip = v == "1" || v == "yes" || v == "true"
		case "reproducible":
			r.Flags.Reproducible = v == "1" || v == "yes" || v == "true"
		case "lock_deps":
			r.Flags.LockDeps = v == "1" || v == "yes" || v == "true"
		default:
			if name, ok := strings.CutPrefix(k, "var_"); ok {
				r.Vars[name] = v
				continue
			}
			return nil, &ParseError{Line: line, Reason: fmt.Sprintf("unknown key %q", k)}
		}
	}
	if err := s.Err(); err != nil {
		return nil, &ParseError{Reason: err.Error()}
	}

	if len(sources) != len(sourceHashes) {
		return nil, &LintError{Field: "source_hashes",
			Reason: fmt.Sprintf("%d hashes for %d sources", len(sourceHashes), len(sources))}
	}
	if len(patches) != len(patchHashes) {
		return nil, &LintError{Field: "patch_hashes",
			Reason: fmt.Sprintf("%d hashes for %d patches", len(patchHashes), len(patches))}
	}
	for i := range sources {
		r.Sources = append(r.Sources, Source{URL: sources[i], SHA256: sourceHashes[i]})
	}
	for i := range patches {
		r.Patches = append(r.Patches, Source{URL: patches[i], SHA256: patchHashes[i]})
	}
	if gitURL != "" || gitRef != "" {
		r.Git = &Git{URL: gitURL, Ref: gitRef}
	}
	if len(r.Vars) == 0 {
		r.Vars = nil
	}
	return r, nil
}

func parseArray(v string) []string {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "(") && strings.HasSuffix(v, ")") {
		v = v[1 : len(v)-1]
	}
	return strings.Fields(v)
}

// MarshalYAML renders the recipe in the structured on-disk form.
func MarshalYAML(r *Recipe) ([]byte, error) {
	return yaml.Marshal(r)
}
