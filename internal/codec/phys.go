package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"math"
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

const (
	inchesPerMetre = 1 / 0.0254
	// signature + IHDR (length, type, 13 data bytes, crc)
	ihdrEnd = 8 + 4 + 4 + 13 + 4
)

// withPhysicalDPI inserts a pHYs chunk directly after IHDR. Go's png encoder
// never writes one, so density is otherwise lost.
func withPhysicalDPI(data []byte, dpi int) ([]byte, error) {
	if len(data) < ihdrEnd || !bytes.Equal(data[:8], pngSignature) || string(data[12:16]) != "IHDR" {
		return nil, errors.New("not a png stream")
	}

	ppm := uint32(math.Round(float64(dpi) * inchesPerMetre))
	chunk := make([]byte, 0, 21)
	chunk = binary.BigEndian.AppendUint32(chunk, 9)
	chunk = append(chunk, "pHYs"...)
	chunk = binary.BigEndian.AppendUint32(chunk, ppm)
	chunk = binary.BigEndian.AppendUint32(chunk, ppm)
	chunk = append(chunk, 1) // unit: metre
	chunk = binary.BigEndian.AppendUint32(chunk, crc32.ChecksumIEEE(chunk[4:]))

	out := make([]byte, 0, len(data)+len(chunk))
	out = append(out, data[:ihdrEnd]...)
	out = append(out, chunk...)
	out = append(out, data[ihdrEnd:]...)
	return out, nil
}

// ReadDPI returns the horizontal density recorded in a PNG pHYs chunk.
func ReadDPI(data []byte) (int, error) {
	if len(data) < 8 || !bytes.Equal(data[:8], pngSignature) {
		return 0, errors.New("not a png stream")
	}

	pos := 8
	for pos+8 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		kind := string(data[pos+4 : pos+8])
		body := pos + 8
		if body+length+4 > len(data) {
			return 0, errors.New("truncated png chunk")
		}
		switch kind {
		case "pHYs":
			if length != 9 {
				return 0, fmt.Errorf("pHYs chunk has length %d", length)
			}
			if data[body+8] != 1 {
				return 0, errors.New("pHYs unit is not metres")
			}
			ppm := binary.BigEndian.Uint32(data[body : body+4])
			return int(math.Round(float64(ppm) / inchesPerMetre)), nil
		case "IDAT", "IEND":
			return 0, errors.New("png has no pHYs chunk")
		}
		pos = body + length + 4
	}
	return 0, errors.New("png has no pHYs chunk")
}
