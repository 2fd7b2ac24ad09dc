// spkg-convert is the one-shot converter from the historical key=value +
// array recipe form to the structured YAML descriptor. It reads one legacy
// file and writes <name>.recipe next to it, or to the path given as the
// second argument.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/AzusaOS/spkg/spkgrecipe"
)

func main() {
	if len(os.Args) < 2 || len(os.Args) > 3 {
		fmt.Fprintf(os.Stderr, "usage: spkg-convert <legacy-recipe> [out.recipe]\n")
		os.Exit(2)
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "spkg-convert: %s\n", err)
		os.Exit(2)
	}

	r, err := spkgrecipe.ConvertLegacy(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "spkg-convert: %s\n", err)
		os.Exit(2)
	}
	if err := r.Lint(); err != nil {
		fmt.Fprintf(os.Stderr, "spkg-convert: converted recipe is invalid: %s\n", err)
		os.Exit(1)
	}

	out := filepath.Join(filepath.Dir(os.Args[1]), r.Name+".recipe")
	if len(os.Args) == 3 {
		out = os.Args[2]
	}

	y, err := spkgrecipe.MarshalYAML(r)
	if err != nil {
		fmt.Fprintf(os.Stderr, "spkg-convert: %s\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(out, y, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "spkg-convert: %s\n", err)
		os.Exit(1)
	}
	fmt.Println(out)
}
