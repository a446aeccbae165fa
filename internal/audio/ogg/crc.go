package ogg

// Ogg uses the non-reflected CRC-32 with polynomial 0x04c11db7, zero init and
// no final xor, which hash/crc32 cannot express.
var crcTable = generateChecksumTable()

func generateChecksumTable() *[256]uint32 {
	var table [256]uint32
	const poly = 0x04c11db7
	for i := range table {
		r := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if r&0x80000000 != 0 {
				r = r<<1 ^ poly
			} else {
				r <<= 1
			}
		}
		table[i] = r
	}
	return &table
}

func updateChecksum(crc uint32, b []byte) uint32 {
	for _, v := range b {
		crc = crc<<8 ^ crcTable[byte(crc>>24)^v]
	}
	return crc
}
