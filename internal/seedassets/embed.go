// Package seedassets embeds a small default resource set so a server
// started with no seed file or remote source still serves something.
package seedassets

import (
	_ "embed"
)

//go:embed seed.json
var seed []byte

// SeedDoc returns the embedded resource-set document (rid -> content).
func SeedDoc() []byte {
	return seed
}
