package spkgrecipe

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Store resolves recipe names against the user-writable store and the
// read-only system store. Parsed recipes are cached; a watcher on the user
// store drops cache entries when files change underneath us.
type Store struct {
	userDir string
	sysDir  string

	cacheLk sync.Mutex
	cache   map[string]*cachedRecipe // keyed by resolved path

	watcher *fsnotify.Watcher
}

type cachedRecipe struct {
	recipe *Recipe
	mtime  time.Time
	size   int64
}

// NewStore creates a store over the two recipe directories. The watcher is
// best effort; a store without one just parses on every load.
func NewStore(userDir, sysDir string) *Store {
	s := &Store{
		userDir: userDir,
		sysDir:  sysDir,
		cache:   make(map[string]*cachedRecipe),
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.WithError(err).Debug("recipe store: no watcher")
		return s
	}
	if err = w.Add(userDir); err != nil {
		w.Close()
		log.WithError(err).Debug("recipe store: cannot watch user dir")
		return s
	}
	s.watcher = w
	go s.watch()
	return s
}

func (s *Store) watch() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				s.cacheLk.Lock()
				delete(s.cache, event.Name)
				s.cacheLk.Unlock()
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.WithError(err).Debug("recipe store: watcher error")
		}
	}
}

// Close stops the watcher.
func (s *Store) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// Resolve returns the path of the recipe for name. The user store wins;
// both <name>.recipe and <name>/<name>.recipe layouts are accepted.
func (s *Store) Resolve(name string) (string, error) {
	for _, dir := range []string{s.userDir, s.sysDir} {
		if dir == "" {
			continue
		}
		for _, cand := range []string{
			filepath.Join(dir, name+".recipe"),
			filepath.Join(dir, name, name+".recipe"),
		} {
			if fi, err := os.Stat(cand); err == nil && fi.Mode().IsRegular() {
				return cand, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Load resolves, parses and caches the recipe for name.
func (s *Store) Load(name string) (*Recipe, error) {
	path, err := s.Resolve(name)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	// the watcher evicts eagerly, the mtime check covers missed events
	s.cacheLk.Lock()
	if c, ok := s.cache[path]; ok && c.mtime.Equal(fi.ModTime()) && c.size == fi.Size() {
		s.cacheLk.Unlock()
		return c.recipe, nil
	}
	s.cacheLk.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	r, err := Parse(data)
	if err != nil {
		return nil, err
	}

	s.cacheLk.Lock()
	s.cache[path] = &cachedRecipe{recipe: r, mtime: fi.ModTime(), size: fi.Size()}
	s.cacheLk.Unlock()
	return r, nil
}

// Lint loads the recipe and verifies its invariants.
func (s *Store) Lint(name string) error {
	r, err := s.Load(name)
	if err != nil {
		return err
	}
	return r.Lint()
}

// Deps returns the runtime dependency names of a recipe.
func (s *Store) Deps(name string) ([]string, error) {
	r, err := s.Load(name)
	if err != nil {
		return nil, err
	}
	return r.Deps, nil
}

// BuildDeps returns the build-time dependency names of a recipe.
func (s *Store) BuildDeps(name string) ([]string, error) {
	r, err := s.Load(name)
	if err != nil {
		return nil, err
	}
	return r.BuildDeps, nil
}

// AllDeps returns runtime and build-time dependencies merged, for build
// ordering.
func (s *Store) AllDeps(name string) ([]string, error) {
	r, err := s.Load(name)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var all []string
	for _, d := range append(append([]string{}, r.Deps...), r.BuildDeps...) {
		if !seen[d] {
			seen[d] = true
			all = append(all, d)
		}
	}
	return all, nil
}

// Search returns the names of recipes whose name contains term, sorted.
func (s *Store) Search(term string) ([]string, error) {
	term = strings.ToLower(term)
	seen := make(map[string]bool)
	var out []string

	for _, dir := range []string{s.userDir, s.sysDir} {
		if dir == "" {
			continue
		}
		_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return nil // missing store dirs are not an error
			}
			if d.IsDir() || !strings.HasSuffix(d.Name(), ".recipe") {
				return nil
			}
			name := strings.TrimSuffix(d.Name(), ".recipe")
			if !seen[name] && strings.Contains(strings.ToLower(name), term) {
				seen[name] = true
				out = append(out, name)
			}
			return nil
		})
	}
	sort.Strings(out)
	return out, nil
}
