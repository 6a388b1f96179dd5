package fecwire

import (
	"encoding/binary"
)

// Payload kinds of a frozen-bit table record.
const (
	KindOrder uint8 = 0 // N little-endian uint32 channel indices, most reliable first
	KindMask  uint8 = 1 // N bits packed LSB first, 1 = frozen
)

// Magic opens every binary table file.
const Magic uint16 = 0x5046 // "FP"

type TableHeader struct {
	Magic      uint16
	Version    uint8  // 1
	Kind       uint8  // KindOrder or KindMask
	N          uint32 // mother code length
	K          uint32 // information length
	SigmaMilli uint32 // design sigma * 1000, 0 when the table is not tied to a noise level
	PayloadLen uint32 // bytes following the header
	Checksum   uint32 // CRC-32 (IEEE) of the payload
}

const HeaderLen = 2 + 1 + 1 + 4 + 4 + 4 + 4 + 4

func (h *TableHeader) MarshalBinary(b []byte) []byte {
	if len(b) < HeaderLen {
		b = make([]byte, HeaderLen)
	}
	binary.LittleEndian.PutUint16(b[0:2], h.Magic)
	b[2] = h.Version
	b[3] = h.Kind
	binary.LittleEndian.PutUint32(b[4:8], h.N)
	binary.LittleEndian.PutUint32(b[8:12], h.K)
	binary.LittleEndian.PutUint32(b[12:16], h.SigmaMilli)
	binary.LittleEndian.PutUint32(b[16:20], h.PayloadLen)
	binary.LittleEndian.PutUint32(b[20:24], h.Checksum)
	return b[:HeaderLen]
}

func (h *TableHeader) UnmarshalBinary(b []byte) bool {
	if len(b) < HeaderLen {
		return false
	}
	h.Magic = binary.LittleEndian.Uint16(b[0:2])
	h.Version = b[2]
	h.Kind = b[3]
	h.N = binary.LittleEndian.Uint32(b[4:8])
	h.K = binary.LittleEndian.Uint32(b[8:12])
	h.SigmaMilli = binary.LittleEndian.Uint32(b[12:16])
	h.PayloadLen = binary.LittleEndian.Uint32(b[16:20])
	h.Checksum = binary.LittleEndian.Uint32(b[20:24])
	return h.Magic == Magic
}

// PayloadSize returns the payload length implied by kind and n.
func PayloadSize(kind uint8, n int) int {
	if kind == KindMask {
		return (n + 7) / 8
	}
	return 4 * n
}
