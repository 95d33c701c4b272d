// Package assets bundles static files shipped inside the binary.
package assets

import _ "embed"

//go:embed default_card.png
var defaultCard []byte

// DefaultCard returns the bundled fallback image used when a job has no
// uploaded base image. Callers must not mutate the returned slice.
func DefaultCard() []byte {
	return defaultCard
}
