package main

import (
	"fmt"
	"os/exec"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
)

// host programs the pipeline shells out to. Compression, hashing and git
// transport are handled in-process.
var requiredProgs = []string{"sh", "make", "patch"}
var optionalProgs = map[string]string{
	"strip":    "ELF binaries will not be stripped",
	"fakeroot": "install stages run without simulated root",
	"rsync":    "chroot builds unavailable",
	"chroot":   "chroot builds unavailable",
	"cc":       "toolchain fingerprint will carry a sentinel",
	"ld":       "toolchain fingerprint will carry a sentinel",
}

type missingPrograms struct {
	progs []string
}

func (e *missingPrograms) Error() string {
	return "missing required host programs: " + strings.Join(e.progs, ", ")
}

// doctor enumerates missing host dependencies. Missing required programs
// are fatal; missing optional ones degrade features and only warn.
func doctor() error {
	var missing []string
	for _, p := range requiredProgs {
		if _, err := exec.LookPath(p); err != nil {
			fmt.Printf("[FAIL] %s: not found\n", p)
			missing = append(missing, p)
		} else {
			fmt.Printf("[ ok ] %s\n", p)
		}
	}
	opt := make([]string, 0, len(optionalProgs))
	for p := range optionalProgs {
		opt = append(opt, p)
	}
	sort.Strings(opt)
	for _, p := range opt {
		effect := optionalProgs[p]
		if _, err := exec.LookPath(p); err != nil {
			fmt.Printf("[warn] %s: not found (%s)\n", p, effect)
			log.WithField("program", p).Warn("doctor: optional program missing")
		} else {
			fmt.Printf("[ ok ] %s\n", p)
		}
	}

	if len(missing) > 0 {
		return &missingPrograms{progs: missing}
	}
	return nil
}
