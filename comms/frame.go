package comms

import (
	"rtcore-go/errcode"
)

// Wire frame: [len lo][len hi][payload...][crc lo][crc hi]. The length
// counts payload bytes only; the CRC16 covers the payload only. Both fields
// are little-endian.
const (
	// MaxPayload bounds a frame's payload. A header announcing more is
	// treated as corruption, so a flipped length byte cannot stall the
	// stream waiting for bytes that never come.
	MaxPayload = 1024

	frameOverhead = 4 // 2-byte length + 2-byte CRC
)

// AppendFrame appends the wire encoding of payload to dst and returns it.
func AppendFrame(dst, payload []byte) ([]byte, error) {
	n := len(payload)
	if n > MaxPayload {
		return dst, errcode.InvalidParams
	}
	dst = append(dst, byte(n), byte(n>>8))
	dst = append(dst, payload...)
	crc := CRC16(payload)
	return append(dst, byte(crc), byte(crc>>8)), nil
}

// EncodeFrame returns the wire encoding of payload.
func EncodeFrame(payload []byte) ([]byte, error) {
	return AppendFrame(make([]byte, 0, len(payload)+frameOverhead), payload)
}

// FrameReader extracts frames from a byte stream fed in arbitrary chunks.
// Single-owner; the transport pump feeds raw reads and drains Next.
type FrameReader struct {
	buf []byte
	off int // scan position within buf
}

func NewFrameReader() *FrameReader {
	return &FrameReader{buf: make([]byte, 0, MaxPayload+frameOverhead)}
}

// Feed appends a chunk of raw stream bytes.
func (r *FrameReader) Feed(chunk []byte) {
	if r.off == len(r.buf) {
		r.buf = r.buf[:0]
		r.off = 0
	} else if r.off > MaxPayload {
		n := copy(r.buf, r.buf[r.off:])
		r.buf = r.buf[:n]
		r.off = 0
	}
	r.buf = append(r.buf, chunk...)
}

// Buffered reports bytes fed but not yet consumed by Next.
func (r *FrameReader) Buffered() int { return len(r.buf) - r.off }

// Next scans for the next whole frame. It returns (nil, nil) when the
// buffer holds no complete frame yet, and errcode.BadChecksum when it drops
// a corrupt one; callers loop until the nil/nil case. An implausible length
// header skips a single byte and rescans, so the reader re-synchronises on
// the next real frame boundary after line noise.
func (r *FrameReader) Next() ([]byte, error) {
	for {
		avail := len(r.buf) - r.off
		if avail < 2 {
			return nil, nil
		}
		length := int(r.buf[r.off]) | int(r.buf[r.off+1])<<8
		if length > MaxPayload {
			r.off++
			continue
		}
		if avail < length+frameOverhead {
			return nil, nil
		}
		start := r.off + 2
		payload := r.buf[start : start+length]
		want := uint16(r.buf[start+length]) | uint16(r.buf[start+length+1])<<8
		r.off += length + frameOverhead
		if CRC16(payload) != want {
			return nil, errcode.BadChecksum
		}
		out := make([]byte, length)
		copy(out, payload)
		return out, nil
	}
}
