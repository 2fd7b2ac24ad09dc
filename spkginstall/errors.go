package spkginstall

import (
	"fmt"
	"strings"
)

// ReverseDepsPresent blocks an uninstall while other installed packages
// depend on the target. Overridable with force.
type ReverseDepsPresent struct {
	Name string
	Deps []string
}

func (e *ReverseDepsPresent) Error() string {
	return fmt.Sprintf("%s is required by: %s", e.Name, strings.Join(e.Deps, ", "))
}

// DowngradeRefused blocks an upgrade to an older or equal EVR.
// Overridable with force.
type DowngradeRefused struct {
	Name string
	Old  string
	New  string
}

func (e *DowngradeRefused) Error() string {
	return fmt.Sprintf("refusing downgrade of %s from %s to %s", e.Name, e.Old, e.New)
}

// VerifyMismatch aggregates the per-file verification failures of one
// package.
type VerifyMismatch struct {
	Name  string
	Paths []string
}

func (e *VerifyMismatch) Error() string {
	return fmt.Sprintf("%d file(s) of %s fail verification", len(e.Paths), e.Name)
}
