package spkgbuild

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

const defaultChrootRoot = "/mnt/lfs"

// chrootRoot returns the chroot base, overridable via the chroot-root
// config key.
func (e *Engine) chrootRoot() string {
	if v, ok := e.Cfg.Get("chroot-root"); ok && v != "" {
		return v
	}
	return defaultChrootRoot
}

// runChroot is the chroot build variant: the workspace is rsync'd below
// the chroot, stages run through chroot with a sanitized environment, and
// the staging tree is rsync'd back out.
func (e *Engine) runChroot(ctx context.Context, bc *Context) error {
	root := e.chrootRoot()
	if _, err := os.Stat(root); err != nil {
		return fmt.Errorf("chroot root %s not available: %w", root, err)
	}

	inner := filepath.Join("/build", bc.Recipe.Name)
	outer := filepath.Join(root, "build", bc.Recipe.Name)
	if err := os.MkdirAll(outer, 0755); err != nil {
		return err
	}

	log.WithField("package", bc.Recipe.Name).Info("build: syncing workspace into chroot")
	if err := runRsync(ctx, bc.Workspace+"/", outer+"/"); err != nil {
		return err
	}

	srcRel, err := filepath.Rel(bc.Workspace, bc.SrcRoot)
	if err != nil {
		return err
	}

	for _, stage := range stageOrder {
		cmds := bc.stageCmds(stage)
		if len(cmds) == 0 {
			continue
		}
		if err := bc.runHooks(ctx, "pre-"+stage+".d"); err != nil {
			return &StageError{Stage: stage, Err: err}
		}
		for _, cmdStr := range cmds {
			log.WithFields(log.Fields{"package": bc.Recipe.Name, "stage": stage}).
				Infof("chroot$ %s", cmdStr)

			env := make([]string, 0, 16)
			for _, kv := range bc.Environ() {
				// DESTDIR and HOME must point inside the chroot
				switch {
				case strings.HasPrefix(kv, "DESTDIR="):
					kv = "DESTDIR=" + filepath.Join(inner, "destdir")
				case strings.HasPrefix(kv, "HOME="):
					kv = "HOME=" + inner
				}
				env = append(env, kv)
			}

			argv := []string{"chroot", root, "env", "-i"}
			argv = append(argv, env...)
			argv = append(argv, "/bin/sh", "-c",
				fmt.Sprintf("cd %s && %s", filepath.Join(inner, srcRel), cmdStr))

			cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
			cmd.Stdout = os.Stdout
			cmd.Stderr = os.Stderr
			if err := cmd.Run(); err != nil {
				return &StageError{Stage: stage, Err: err}
			}
		}
		if err := bc.runHooks(ctx, "post-"+stage+".d"); err != nil {
			return &StageError{Stage: stage, Err: err}
		}
	}

	log.WithField("package", bc.Recipe.Name).Info("build: syncing staging out of chroot")
	return runRsync(ctx, filepath.Join(outer, "destdir")+"/", bc.Staging+"/")
}

func runRsync(ctx context.Context, src, dst string) error {
	cmd := exec.CommandContext(ctx, "rsync", "-a", "--delete", src, dst)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("rsync %s -> %s: %w", src, dst, err)
	}
	return nil
}
