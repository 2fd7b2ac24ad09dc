// Package spkgbuild runs the recipe stage pipeline. Each stage executes in
// a fresh subprocess with a controlled environment against a redirected
// install root (DESTDIR), optionally inside a chroot. The orchestrator at
// the top of the package drives whole dependency graphs through
// fetch/extract/build/package/install with a bounded worker pool.
package spkgbuild

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/AzusaOS/spkg/spkgconf"
	"github.com/AzusaOS/spkg/spkgrecipe"
)

// Context is the ephemeral state of one build: workspace, detected source
// root, staging root and the exported variables. It is created per build
// and destroyed after packaging on success; on failure it is retained for
// debugging.
type Context struct {
	Cfg    *spkgconf.Config
	Recipe *spkgrecipe.Recipe

	Workspace string // per-build scratch directory
	SrcRoot   string // set after extraction
	Staging   string // DESTDIR
	Jobs      int
	Epoch     int64 // SOURCE_DATE_EPOCH
}

// NewContext creates a fresh workspace for the recipe. The staging root is
// guaranteed empty.
func NewContext(cfg *spkgconf.Config, r *spkgrecipe.Recipe) (*Context, error) {
	ws := filepath.Join(cfg.Paths.Work, fmt.Sprintf("%s-%s", r.Name, r.EVR()))
	if err := os.RemoveAll(ws); err != nil {
		return nil, err
	}
	staging := filepath.Join(ws, "destdir")
	if err := os.MkdirAll(staging, 0755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(ws, "src"), 0755); err != nil {
		return nil, err
	}

	bc := &Context{
		Cfg:       cfg,
		Recipe:    r,
		Workspace: ws,
		SrcRoot:   filepath.Join(ws, "src"),
		Staging:   staging,
		Jobs:      cfg.Jobs(),
	}
	if r.Flags.Reproducible {
		// a fixed default until the fetch layer learns the real commit time
		bc.Epoch = 1
	}
	return bc, nil
}

// Environ returns the controlled stage environment. Nothing of the parent
// environment leaks in except an explicit PATH; the locale is pinned so
// tool output stays parseable.
func (bc *Context) Environ() []string {
	r := bc.Recipe
	env := []string{
		"PATH=/usr/bin:/usr/sbin:/bin:/sbin",
		"HOME=" + bc.Workspace,
		"LC_ALL=C",
		"LANG=C",
		"DESTDIR=" + bc.Staging,
		"JOBS=" + strconv.Itoa(bc.Jobs),
		"NAME=" + r.Name,
		"VERSION=" + r.Version,
		"EPOCH=" + strconv.Itoa(r.Epoch),
		"RELEASE=" + r.EVR().Release,
	}
	if bc.Epoch > 0 {
		env = append(env, "SOURCE_DATE_EPOCH="+strconv.FormatInt(bc.Epoch, 10))
	}
	keys := make([]string, 0, len(r.Vars))
	for k := range r.Vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+r.Vars[k])
	}
	return env
}

// Destroy removes the workspace. Only called after a successful packaging.
func (bc *Context) Destroy() error {
	return os.RemoveAll(bc.Workspace)
}
