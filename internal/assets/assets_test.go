package assets

import (
	"testing"

	"cardforge/internal/png"
)

func TestDefaultCardIsValidPNG(t *testing.T) {
	chunks, err := png.Decode(DefaultCard())
	if err != nil {
		t.Fatalf("bundled image does not decode: %v", err)
	}
	if chunks[0].Type != "IHDR" || chunks[len(chunks)-1].Type != "IEND" {
		t.Fatalf("unexpected chunk layout: %q ... %q", chunks[0].Type, chunks[len(chunks)-1].Type)
	}
	doc, found, err := png.ExtractCard(DefaultCard())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if found {
		t.Fatalf("bundled image must not carry a card, got %q", doc)
	}
}
