// Package conv formats numbers into caller-supplied buffers for MCU code
// paths that must stay clear of fmt and strconv.
package conv

// Itoa writes the base-10 representation of n into buf and returns the used
// slice. buf should be length >= 20 for int64; negative numbers supported.
func Itoa(buf []byte, n int64) []byte {
	if len(buf) == 0 {
		return buf[:0]
	}
	i := len(buf)
	neg := n < 0
	var u uint64
	if neg {
		u = uint64(-n)
	} else {
		u = uint64(n)
	}
	if u == 0 {
		i--
		buf[i] = '0'
	} else {
		for u > 0 && i > 0 {
			i--
			buf[i] = byte('0' + (u % 10))
			u /= 10
		}
	}
	if neg && i > 0 {
		i--
		buf[i] = '-'
	}
	return buf[i:]
}

// U16Hex writes 4-digit uppercase hex without 0x, zero-padded, the spelling
// used for wire checksums in diagnostics.
func U16Hex(buf []byte, n uint16) []byte {
	if len(buf) < 4 {
		return buf[:0]
	}
	const hexd = "0123456789ABCDEF"
	i := len(buf)
	for j := 0; j < 4; j++ {
		i--
		buf[i] = hexd[n&0xF]
		n >>= 4
	}
	return buf[i:]
}
