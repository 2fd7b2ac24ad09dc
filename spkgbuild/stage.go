package spkgbuild

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
)

// Stage names in pipeline order.
var stageOrder = []string{"prepare", "build", "check", "install"}

// StageError reports a failed stage. The workspace and staging root are
// preserved for inspection.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// runStage executes the command sequence of one stage, bracketed by the
// pre-<stage>.d and post-<stage>.d hook directories. Every command runs in
// a fresh subprocess with the controlled environment; stage output is teed
// to a per-stage log file.
func (bc *Context) runStage(ctx context.Context, stage string, cmds []string) error {
	if err := bc.runHooks(ctx, "pre-"+stage+".d"); err != nil {
		return &StageError{Stage: stage, Err: err}
	}

	if len(cmds) > 0 {
		logPath := filepath.Join(bc.Cfg.Paths.LogDir,
			fmt.Sprintf("%s-%s-%s.log", bc.Recipe.Name, stage, time.Now().Format("20060102-150405")))
		out, err := os.Create(logPath)
		if err != nil {
			// still build, just without the tee
			log.WithError(err).Warn("build: cannot create stage log")
			out = nil
		}

		for _, cmdStr := range cmds {
			log.WithFields(log.Fields{"package": bc.Recipe.Name, "stage": stage}).
				Infof("$ %s", cmdStr)
			if err := bc.runCommand(ctx, stage, cmdStr, out); err != nil {
				if out != nil {
					out.Close()
				}
				return &StageError{Stage: stage, Err: err}
			}
		}
		if out != nil {
			out.Close()
		}
	}

	if err := bc.runHooks(ctx, "post-"+stage+".d"); err != nil {
		return &StageError{Stage: stage, Err: err}
	}
	return nil
}

// runCommand runs one stage command via the shell, never in-process. The
// install stage is wrapped in the simulated-root helper when present so
// ownership-affecting operations never touch the real root.
func (bc *Context) runCommand(ctx context.Context, stage, cmdStr string, tee io.Writer) error {
	argv := []string{"/bin/sh", "-c", cmdStr}
	if stage == "install" {
		if fakeroot, err := exec.LookPath("fakeroot"); err == nil {
			argv = append([]string{fakeroot}, argv...)
		} else {
			log.WithField("package", bc.Recipe.Name).
				Warn("build: fakeroot not found, install stage runs unwrapped")
		}
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = bc.SrcRoot
	cmd.Env = bc.Environ()
	if tee != nil {
		cmd.Stdout = io.MultiWriter(os.Stdout, tee)
		cmd.Stderr = io.MultiWriter(os.Stderr, tee)
	} else {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}
	return cmd.Run()
}

// runHooks executes the files of one hook directory in lexical order. Any
// non-zero exit aborts the stage. A missing directory is fine.
func (bc *Context) runHooks(ctx context.Context, point string) error {
	dir := bc.Cfg.Paths.HooksDir(point)
	ents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var names []string
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		fi, err := e.Info()
		if err != nil || fi.Mode()&0111 == 0 {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, n := range names {
		log.WithFields(log.Fields{"hook": n, "point": point}).Debug("build: running hook")
		cmd := exec.CommandContext(ctx, filepath.Join(dir, n))
		cmd.Dir = bc.SrcRoot
		cmd.Env = bc.Environ()
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("hook %s/%s: %w", point, n, err)
		}
	}
	return nil
}

// defaultCmds returns the default procedure for a stage when the recipe
// does not provide one.
func (bc *Context) defaultCmds(stage string) []string {
	switch stage {
	case "build":
		if _, err := os.Stat(filepath.Join(bc.SrcRoot, "configure")); err == nil {
			return []string{"./configure --prefix=/usr", "make -j$JOBS"}
		}
		if _, err := os.Stat(filepath.Join(bc.SrcRoot, "Makefile")); err == nil {
			return []string{"make -j$JOBS"}
		}
	case "install":
		if _, err := os.Stat(filepath.Join(bc.SrcRoot, "Makefile")); err == nil {
			return []string{"make install DESTDIR=$DESTDIR"}
		}
	}
	return nil
}

// stageCmds resolves the effective command sequence for a stage.
func (bc *Context) stageCmds(stage string) []string {
	r := bc.Recipe
	var cmds []string
	switch stage {
	case "prepare":
		cmds = r.Prepare
	case "build":
		cmds = r.Build
	case "check":
		cmds = r.Check
	case "install":
		cmds = r.Install
	}
	if len(cmds) == 0 {
		cmds = bc.defaultCmds(stage)
	}
	return cmds
}
