package comms

// CRC16 computes CRC-16/ARC over data: initial register 0xFFFF, reflected
// polynomial 0xA001, no final xor. Each input byte is XORed into the low
// register byte, then the register steps eight times LSB-first. The check
// value for "123456789" is 0x4B37; empty input returns the initial register.
//
// Peers validate frames with the same register sequence, so the loop must
// stay bit-for-bit as written.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
