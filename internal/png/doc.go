// Package png implements the chunk-level PNG/APNG codec used to embed and
// extract character-card documents as tEXt metadata chunks. Images are always
// handled as decode -> chunk sequence -> mutate -> encode; payload bytes of
// untouched chunks (including APNG frame data) pass through verbatim.
package png
