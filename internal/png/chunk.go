package png

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

// ErrMalformedImage reports a structurally invalid PNG/APNG byte stream or an
// unparseable embedded payload. Callers match it with errors.Is.
var ErrMalformedImage = errors.New("malformed png image")

var signature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// Chunk is one length-prefixed, type-tagged segment of a PNG stream. The CRC
// is a pure function of type+payload and is recomputed on encode, so callers
// may mutate Data freely between Decode and Encode.
type Chunk struct {
	Type string
	Data []byte
}

// CRC returns the checksum the chunk serializes with.
func (c Chunk) CRC() uint32 {
	crc := crc32.NewIEEE()
	crc.Write([]byte(c.Type))
	crc.Write(c.Data)
	return crc.Sum32()
}

// IsSignature reports whether data begins with the PNG signature.
func IsSignature(data []byte) bool {
	return len(data) >= len(signature) && string(data[:len(signature)]) == string(signature)
}

// Decode parses a PNG/APNG byte stream into its ordered chunk sequence.
// A bad signature, a declared chunk length running past the buffer end, or a
// checksum mismatch fails with ErrMalformedImage.
func Decode(data []byte) ([]Chunk, error) {
	if !IsSignature(data) {
		return nil, fmt.Errorf("%w: missing signature", ErrMalformedImage)
	}

	var chunks []Chunk
	pos := len(signature)
	for pos < len(data) {
		if pos+8 > len(data) {
			return nil, fmt.Errorf("%w: truncated chunk header at offset %d", ErrMalformedImage, pos)
		}
		length := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		chunkType := string(data[pos+4 : pos+8])
		end := pos + 8 + length + 4
		if length < 0 || end > len(data) {
			return nil, fmt.Errorf("%w: chunk %q length %d exceeds buffer", ErrMalformedImage, chunkType, length)
		}
		payload := make([]byte, length)
		copy(payload, data[pos+8:pos+8+length])
		chunk := Chunk{Type: chunkType, Data: payload}
		declared := binary.BigEndian.Uint32(data[pos+8+length : end])
		if declared != chunk.CRC() {
			return nil, fmt.Errorf("%w: chunk %q checksum mismatch", ErrMalformedImage, chunkType)
		}
		chunks = append(chunks, chunk)
		pos = end
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no chunks", ErrMalformedImage)
	}
	return chunks, nil
}

// Encode serializes the signature followed by each chunk in order, recomputing
// every checksum. Encoding the unmodified result of Decode reproduces the
// source stream.
func Encode(chunks []Chunk) []byte {
	size := len(signature)
	for _, chunk := range chunks {
		size += 12 + len(chunk.Data)
	}
	out := make([]byte, 0, size)
	out = append(out, signature...)
	var scratch [4]byte
	for _, chunk := range chunks {
		binary.BigEndian.PutUint32(scratch[:], uint32(len(chunk.Data)))
		out = append(out, scratch[:]...)
		out = append(out, chunk.Type...)
		out = append(out, chunk.Data...)
		binary.BigEndian.PutUint32(scratch[:], chunk.CRC())
		out = append(out, scratch[:]...)
	}
	return out
}
