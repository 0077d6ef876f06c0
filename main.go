// The main package for the geo-ingest executable.
package main

import (
	"github.com/JakeFAU/geo-ingest/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
