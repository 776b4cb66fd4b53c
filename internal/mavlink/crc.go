package mavlink

const crcInit uint16 = 0xFFFF

// crcAccumulate folds one byte into a CRC-16/MCRF4XX (X.25) checksum
func crcAccumulate(b byte, crc uint16) uint16 {
	tmp := b ^ byte(crc&0xff)
	tmp ^= tmp << 4
	return (crc >> 8) ^ (uint16(tmp) << 8) ^ (uint16(tmp) << 3) ^ (uint16(tmp) >> 4)
}

// Checksum computes the frame checksum over data (length byte through the
// end of the payload) followed by the message-specific extra byte.
func Checksum(data []byte, extra byte) uint16 {
	crc := crcInit
	for _, b := range data {
		crc = crcAccumulate(b, crc)
	}
	return crcAccumulate(extra, crc)
}
