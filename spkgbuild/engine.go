package spkgbuild

import (
	"context"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/AzusaOS/spkg/spkgconf"
)

// Engine runs the stage pipeline of a build context.
type Engine struct {
	Cfg *spkgconf.Config
}

// Run executes prepare, build, check and install in order while holding
// the build-<name> lock. On success the staging root holds the package's
// full filesystem contribution; on failure the workspace is preserved and
// no package is produced.
func (e *Engine) Run(ctx context.Context, bc *Context) error {
	guard, err := e.Cfg.Lock("build-"+bc.Recipe.Name, spkgconf.BuildLockTimeout)
	if err != nil {
		return err
	}
	defer guard.Release()

	// the staging root must be empty at stage start
	if err := os.RemoveAll(bc.Staging); err != nil {
		return err
	}
	if err := os.MkdirAll(bc.Staging, 0755); err != nil {
		return err
	}

	if bc.Recipe.Flags.Chroot {
		return e.runChroot(ctx, bc)
	}

	for _, stage := range stageOrder {
		cmds := bc.stageCmds(stage)
		if len(cmds) == 0 && stage != "install" {
			continue
		}
		log.WithFields(log.Fields{"package": bc.Recipe.Name, "stage": stage}).
			Info("build: stage start")
		if err := bc.runStage(ctx, stage, cmds); err != nil {
			log.WithFields(log.Fields{"package": bc.Recipe.Name, "stage": stage}).
				WithError(err).Error("build: stage failed, workspace preserved")
			return err
		}
	}
	return nil
}
