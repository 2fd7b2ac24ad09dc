package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/AzusaOS/spkg/spkgconf"
	"github.com/AzusaOS/spkg/spkgdb"
	"github.com/AzusaOS/spkg/spkginstall"
	"github.com/AzusaOS/spkg/spkgrecipe"
)

// exit codes
const (
	exitOK          = 0
	exitDomain      = 1
	exitUsage       = 2
	exitMissingProg = 127
	exitInterrupted = 130
)

var interrupted bool

func setupSignals(cancel context.CancelFunc) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	signal.Notify(c, syscall.SIGTERM)

	go func() {
		<-c
		log.Warn("spkg: interrupted, shutting down...")
		interrupted = true
		cancel()
	}()
}

// Stack returns a formatted stack trace of all the goroutines.
// It calls runtime.Stack with a large enough buffer to capture the entire trace.
func Stack() []byte {
	buf := make([]byte, 1024*1024)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) {
			return buf[:n]
		}
		buf = make([]byte, 2*len(buf))
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `spkg %s - source package manager

usage: spkg <command> [args]

  build <name>...          build and install packages with dependencies
  fetch <name>             download and verify the sources of a recipe
  install <archive>        apply a built package archive to the target root
  remove <name>            uninstall a package (--force overrides rev-deps)
  upgrade <name>           rebuild and upgrade one package
  update                   upgrade everything with a newer recipe
  rollback <name> [evr]    return to the previous (or given) version
  verify <name>            re-hash installed files against the manifest
  list                     list installed packages
  search <term>            search the recipe stores
  info <name>              show recipe details
  history <name>           show the package event log
  plan [world|smart|<pkg>] print a rebuild plan
  lint <name>              validate a recipe
  doctor                   check required host programs
  version                  print build identification

environment: SPKG_ROOT relocates every path but the system recipe store, SPKG_* overrides config keys
`, DATE_TAG)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(exitUsage)
	}

	cfg, err := spkgconf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "spkg: config: %s\n", err)
		os.Exit(exitUsage)
	}
	cfg.SetupLogging()

	ctx, cancel := context.WithCancel(context.Background())
	setupSignals(cancel)

	err = run(ctx, cfg, os.Args[1], os.Args[2:])
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	if interrupted || errors.Is(err, context.Canceled) {
		return exitInterrupted
	}

	log.WithError(err).Error("spkg: operation failed")
	log.Debugf("stack trace:\n%s", Stack())

	var (
		le  *spkgrecipe.LintError
		pe  *spkgrecipe.ParseError
		rdp *spkginstall.ReverseDepsPresent
		dr  *spkginstall.DowngradeRefused
		mp  *missingPrograms
	)
	switch {
	case errors.As(err, &mp):
		return exitMissingProg
	case errors.Is(err, spkgrecipe.ErrNotFound),
		errors.Is(err, spkgdb.ErrNotInstalled),
		errors.As(err, &le),
		errors.As(err, &pe),
		errors.As(err, &rdp),
		errors.As(err, &dr),
		errors.Is(err, errUsage):
		return exitUsage
	}
	return exitDomain
}
