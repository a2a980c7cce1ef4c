// =============================================================================
// csvmap - Main Entry Point
// =============================================================================
//
// USAGE:
//   csvmap rows FILE        - Print the normalised rows of a file
//   csvmap keyed FILE       - Print the records of a file as YAML
//   csvmap convert IN OUT   - Map one file onto a declared field list
//   csvmap process          - Map every file in the input directory
//   csvmap version          - Display the application version
//
// ARCHITECTURE:
//   - cmd/            : CLI command definitions (Cobra)
//   - pkg/csvmap/     : The record mapping library
//   - pkg/rowio/      : Dialects, encodings and raw row streams
//   - pkg/spill/      : Memory-then-disk record buffering
//   - pkg/utils/      : File discovery, archival and run logs
//   - internal/       : Profiles, field templates and the batch converter
//
// =============================================================================

package main

import (
	"github.com/ginjaninja78/csvmap/cmd"
)

func main() {
	cmd.Execute()
}
