package spkgextract

import (
	"bytes"
	"fmt"
	"os/exec"

	log "github.com/sirupsen/logrus"
)

// PatchError reports a failed patch by its position in the declaration
// order. The workspace is left in place for diagnosis.
type PatchError struct {
	Index  int
	Patch  string
	Reason string
}

func (e *PatchError) Error() string {
	return fmt.Sprintf("patch %d (%s) failed: %s", e.Index, e.Patch, e.Reason)
}

// ApplyPatches applies patches in declaration order with strip prefix 1,
// working in srcRoot. The first failure aborts.
func ApplyPatches(srcRoot string, patches []string) error {
	for i, p := range patches {
		log.WithFields(log.Fields{"patch": p, "index": i}).Info("applying patch")

		cmd := exec.Command("patch", "-N", "-p1", "-i", p)
		cmd.Dir = srcRoot
		var out bytes.Buffer
		cmd.Stdout = &out
		cmd.Stderr = &out
		if err := cmd.Run(); err != nil {
			return &PatchError{Index: i, Patch: p, Reason: out.String()}
		}
	}
	return nil
}
