// Package defaults bundles starter files for new installations.
package defaults

import _ "embed"

// ConfigYAML is the annotated example configuration written by
// "mafuyu init".
//
//go:embed config.yaml
var ConfigYAML []byte

// PersonaMD is the example persona prompt.
//
//go:embed persona.md
var PersonaMD []byte
