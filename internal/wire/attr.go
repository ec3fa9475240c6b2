package wire

import "errors"

// AppendAttribute appends one TLV attribute (type, length, data) to pkt and
// rewrites the header's length field to match. capacity is the maximum
// number of bytes the caller's underlying buffer may grow to (the buffer's
// cap, mirroring the original design's separate "cap" and "used" fields on
// an io_buf); if the new attribute would not fit, ErrNoSpace is returned
// and pkt is returned unmodified.
//
// The returned slice must replace the caller's reference to pkt: when the
// backing array has to grow, AppendAttribute allocates a new one.
func AppendAttribute(pkt []byte, capacity int, typ byte, data []byte) ([]byte, error) {
	if len(pkt) < HeaderLen {
		return pkt, ErrPacketTooShort
	}
	if len(data) > MaxAttrData {
		return pkt, ErrBadAttribute
	}
	need := len(pkt) + 2 + len(data)
	if need > capacity || need > MaxPacketSize {
		return pkt, ErrNoSpace
	}
	out := pkt
	if cap(out) < need {
		grown := make([]byte, len(pkt), need)
		copy(grown, pkt)
		out = grown
	}
	out = out[:need]
	out[len(pkt)] = typ
	out[len(pkt)+1] = byte(2 + len(data))
	copy(out[len(pkt)+2:], data)
	setLength(out, need)
	return out, nil
}

// ErrNoSpace is returned by AppendAttribute when the attribute would not
// fit within capacity or MaxPacketSize.
var ErrNoSpace = errors.New("wire: no space for attribute")
