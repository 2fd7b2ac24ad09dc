// Package spkgconf holds the global configuration, the derived filesystem
// layout and the named exclusive locks used by every other spkg component.
package spkgconf

import (
	"bufio"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
)

// Config is the merged view of /etc/spkg/config, /etc/spkg/config.d/*.conf
// and SPKG_* environment overrides.
type Config struct {
	Verbosity    int      // 0..3
	Color        string   // auto, always, never
	MaxJobs      int      // 0 = detect
	MaxFetches   int      // parallel fetch cap
	Mirrors      []string // mirror roots, tried in order
	LogTimezone  string
	RetryCount   int
	RetryBackoff float64 // seconds, base of the exponential

	Paths Paths

	raw map[string]string
}

// Paths is the filesystem layout. All entries are absolute directories
// except LogFile.
type Paths struct {
	Etc      string // /etc/spkg
	Sources  string // /var/cache/spkg/sources
	Tarballs string // /var/cache/spkg/tarballs (git-derived archives)
	Locks    string // /var/lib/spkg/locks
	DB       string // /var/lib/spkg/db
	Manifest string // /var/lib/spkg/manifests
	Packages string // /var/lib/spkg/packages
	Recipes  string // /var/lib/spkg/recipes (user store)
	SysRec   string // /usr/local/share/spkg/recipes (system store)
	History  string // /var/lib/spkg/history
	Rollback string // /var/lib/spkg/rollback
	Delta    string // /var/lib/spkg/delta
	Work     string // /var/cache/spkg/build
	LogDir   string // /var/log/spkg
	LogFile  string // /var/log/spkg/spkg.log
}

// DefaultPaths returns the standard layout rooted at /, or under
// $HOME/.cache/spkg when not running as root (same rule apkg applies to its
// database directory).
func DefaultPaths() Paths {
	varLib := "/var/lib/spkg"
	varCache := "/var/cache/spkg"
	varLog := "/var/log/spkg"
	etc := "/etc/spkg"

	if os.Geteuid() != 0 {
		if h := os.Getenv("HOME"); h != "" {
			base := filepath.Join(h, ".cache/spkg")
			varLib = filepath.Join(base, "lib")
			varCache = filepath.Join(base, "cache")
			varLog = filepath.Join(base, "log")
			etc = filepath.Join(base, "etc")
		}
	}
	if v := os.Getenv("SPKG_ROOT"); v != "" {
		varLib = filepath.Join(v, "var/lib/spkg")
		varCache = filepath.Join(v, "var/cache/spkg")
		varLog = filepath.Join(v, "var/log/spkg")
		etc = filepath.Join(v, "etc/spkg")
	}

	return Paths{
		Etc:      etc,
		Sources:  filepath.Join(varCache, "sources"),
		Tarballs: filepath.Join(varCache, "tarballs"),
		Work:     filepath.Join(varCache, "build"),
		Locks:    filepath.Join(varLib, "locks"),
		DB:       filepath.Join(varLib, "db"),
		Manifest: filepath.Join(varLib, "manifests"),
		Packages: filepath.Join(varLib, "packages"),
		Recipes:  filepath.Join(varLib, "recipes"),
		SysRec:   "/usr/local/share/spkg/recipes",
		History:  filepath.Join(varLib, "history"),
		Rollback: filepath.Join(varLib, "rollback"),
		Delta:    filepath.Join(varLib, "delta"),
		LogDir:   varLog,
		LogFile:  filepath.Join(varLog, "spkg.log"),
	}
}

// Installed returns the installed-records directory.
func (p Paths) Installed() string { return filepath.Join(p.DB, "installed") }

// HooksDir returns the drop-dir for a given hook point, e.g. "pre-build.d".
func (p Paths) HooksDir(point string) string {
	return filepath.Join(p.Etc, "hooks", point)
}

// KeysDir returns the trust material directory for signature checks.
func (p Paths) KeysDir() string { return filepath.Join(p.Etc, "keys") }

// MkdirAll creates every directory of the layout.
func (p Paths) MkdirAll() error {
	for _, d := range []string{
		p.Sources, p.Tarballs, p.Work, p.Locks, p.Installed(), p.Manifest,
		p.Packages, p.Recipes, p.History, p.Rollback, p.Delta, p.LogDir,
	} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return err
		}
	}
	return nil
}

// Load reads the main config file and config.d fragments, then applies
// environment overrides. Missing files are not an error.
func Load() (*Config, error) {
	c := &Config{
		Verbosity:    1,
		Color:        "auto",
		MaxFetches:   4,
		RetryCount:   3,
		RetryBackoff: 1.0,
		Paths:        DefaultPaths(),
		raw:          make(map[string]string),
	}

	if err := c.mergeFile(filepath.Join(c.Paths.Etc, "config")); err != nil {
		return nil, err
	}

	frags, _ := filepath.Glob(filepath.Join(c.Paths.Etc, "config.d", "*.conf"))
	sort.Strings(frags)
	for _, f := range frags {
		if err := c.mergeFile(f); err != nil {
			return nil, err
		}
	}

	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, "SPKG_") {
			continue
		}
		k, v, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}
		k = strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(k, "SPKG_"), "_", "-"))
		c.raw[k] = v
	}

	c.apply()
	return c, nil
}

func (c *Config) mergeFile(fn string) error {
	f, err := os.Open(fn)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		c.raw[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return s.Err()
}

func (c *Config) apply() {
	if v, ok := c.raw["verbosity"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 3 {
			c.Verbosity = n
		}
	}
	if v, ok := c.raw["color"]; ok {
		switch v {
		case "auto", "always", "never":
			c.Color = v
		}
	}
	if v, ok := c.raw["jobs"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.MaxJobs = n
		}
	}
	if v, ok := c.raw["fetches"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.MaxFetches = n
		}
	}
	if v, ok := c.raw["mirrors"]; ok {
		c.Mirrors = strings.Fields(v)
	}
	if v, ok := c.raw["log-timezone"]; ok {
		c.LogTimezone = v
	}
	if v, ok := c.raw["retries"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.RetryCount = n
		}
	}
	if v, ok := c.raw["retry-backoff"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			c.RetryBackoff = f
		}
	}
}

// Get returns a raw configuration value. Implementers may add keys but must
// not repurpose the recognized ones.
func (c *Config) Get(key string) (string, bool) {
	v, ok := c.raw[key]
	return v, ok
}

// Jobs returns the effective build job count (0 in config means CPU count).
func (c *Config) Jobs() int {
	if c.MaxJobs > 0 {
		return c.MaxJobs
	}
	return runtime.NumCPU()
}
