package png

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// CardKeyword is the tEXt keyword written when embedding a card document.
const CardKeyword = "ccv3"

// LegacyCardKeyword is the older keyword still honored on extract.
const LegacyCardKeyword = "chara"

// ExtractCard returns the card document embedded in a PNG/APNG image, if any.
// tEXt chunks are scanned in stream order for the reserved keywords, matched
// case-insensitively; the first match is authoritative and later duplicates
// are ignored. A reserved chunk whose payload is not base64-encoded JSON fails
// with ErrMalformedImage.
func ExtractCard(data []byte) ([]byte, bool, error) {
	chunks, err := Decode(data)
	if err != nil {
		return nil, false, err
	}
	for _, chunk := range chunks {
		if chunk.Type != "tEXt" {
			continue
		}
		keyword, value, ok := splitText(chunk.Data)
		if !ok {
			continue
		}
		if !isCardKeyword(keyword) {
			continue
		}
		doc, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			return nil, false, fmt.Errorf("%w: card chunk %q is not base64: %v", ErrMalformedImage, keyword, err)
		}
		if !json.Valid(doc) {
			return nil, false, fmt.Errorf("%w: card chunk %q payload is not JSON", ErrMalformedImage, keyword)
		}
		return doc, true, nil
	}
	return nil, false, nil
}

// EmbedCard returns a copy of the image carrying doc as its only card chunk.
// Existing chunks under either reserved keyword, in any casing, are removed
// and a single tEXt chunk is inserted immediately after IHDR, ahead of any
// image or frame data.
// All other chunks, APNG control and frame chunks included, pass through
// byte for byte.
func EmbedCard(data []byte, doc []byte) ([]byte, error) {
	chunks, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if chunks[0].Type != "IHDR" {
		return nil, fmt.Errorf("%w: first chunk is %q, want IHDR", ErrMalformedImage, chunks[0].Type)
	}

	kept := chunks[:0]
	for _, chunk := range chunks {
		if chunk.Type == "tEXt" {
			if keyword, _, ok := splitText(chunk.Data); ok && isCardKeyword(keyword) {
				continue
			}
		}
		kept = append(kept, chunk)
	}

	card := cardChunk(doc)
	out := make([]Chunk, 0, len(kept)+1)
	out = append(out, kept[0], card)
	out = append(out, kept[1:]...)
	return Encode(out), nil
}

// isCardKeyword reports whether a tEXt keyword names a card chunk. Producers
// disagree on keyword casing, so matching ignores case.
func isCardKeyword(keyword string) bool {
	switch strings.ToLower(keyword) {
	case CardKeyword, LegacyCardKeyword:
		return true
	}
	return false
}

func cardChunk(doc []byte) Chunk {
	encoded := base64.StdEncoding.EncodeToString(doc)
	payload := make([]byte, 0, len(CardKeyword)+1+len(encoded))
	payload = append(payload, CardKeyword...)
	payload = append(payload, 0)
	payload = append(payload, encoded...)
	return Chunk{Type: "tEXt", Data: payload}
}

func splitText(data []byte) (keyword, value string, ok bool) {
	for i, b := range data {
		if b == 0 {
			return string(data[:i]), string(data[i+1:]), true
		}
	}
	return "", "", false
}
