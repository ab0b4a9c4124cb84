// =============================================================================
// MD to Excel Sync - Main Entry Point
// =============================================================================
//
// This is the main entry point for the MD to Excel Sync CLI application.
// It delegates command execution to the cmd package.
//
// USAGE:
//   excelsync process       - Process every document in the input directory
//   excelsync parse         - Print the extracted table of a document
//   excelsync sync          - Write a JSON field record into the template
//   excelsync validate      - Check configuration and template markers
//   excelsync template      - Generate a blank template for the mapping
//   excelsync serve         - Start the JSON HTTP API
//   excelsync clean         - Remove expired archives
//   excelsync version       - Display the application version
//
// ARCHITECTURE:
//   - cmd/           : CLI command definitions (Cobra)
//   - internal/      : Core pipeline and its supporting layers
//   - pkg/           : Shared file utilities
//
// =============================================================================

package main

import (
	"github.com/ginjaninja78/excelsync/cmd"
)

func main() {
	cmd.Execute()
}
