// Command critique reviews source artifacts through the analysis
// pipeline: fingerprint, cache, backend fallback chain, checks,
// scoring, and persistence. See the cli package for the command
// surface.
package main

import (
	"os"

	"github.com/ahrav/go-critique/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
