package storfs

// polynomial is the reflected CRC16 polynomial used by the on-media
// format (matches the reference C implementation this spec was
// distilled from). There is no stdlib or example-pack CRC16 variant
// using this polynomial, so it is implemented directly rather than
// pulled from a library (see DESIGN.md).
const polynomial = 0x8408

// crc16 is the built-in CRC engine: initial 0xFFFF, reflected
// polynomial 0x8408, final one's-complement, followed by a byte-swap
// of the complemented result. An empty buffer returns 0x0000.
func crc16(buf []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range buf {
		data := uint16(b)
		for i := 0; i < 8; i++ {
			if (crc^data)&0x0001 != 0 {
				crc = (crc >> 1) ^ polynomial
			} else {
				crc >>= 1
			}
			data >>= 1
		}
	}
	crc = ^crc
	return (crc << 8) | (crc >> 8 & 0x00FF)
}

// crcName computes the header CRC over a file name: the name bytes up
// to and including the null terminator.
func crcName(name string, maxLen int, fn CRC16Func) uint16 {
	if fn == nil {
		fn = crc16
	}
	buf := make([]byte, 0, maxLen)
	buf = append(buf, name...)
	buf = append(buf, 0) // null terminator, always included
	return fn(buf)
}

// crcPayload computes the fragment/data CRC over raw payload bytes
// (the bytes following a header, excluding the header itself).
func crcPayload(payload []byte, fn CRC16Func) uint16 {
	if fn == nil {
		fn = crc16
	}
	return fn(payload)
}
