// Package schemas embeds the JSON Schema files for the handoff artifacts.
package schemas

import "embed"

// Schema file names
const (
	PrimerBundle = "primer_bundle.schema.json"
	Checkpoint   = "checkpoint.schema.json"
)

//go:embed *.schema.json
var FS embed.FS

// Read returns the content of an embedded schema file
func Read(name string) ([]byte, error) {
	return FS.ReadFile(name)
}
