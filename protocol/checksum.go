package protocol

import "github.com/sigurn/crc8"

// Dallas/Maxim 1-Wire CRC: poly 0x31 reflected, init 0x00, no final xor.
var maximTable = crc8.MakeTable(crc8.CRC8_MAXIM)

// Checksum returns the CRC-8/MAXIM of data.
func Checksum(data []byte) byte {
	return crc8.Checksum(data, maximTable)
}

// stamp writes the checksum of everything before the last byte into the last byte.
func stamp(buf []byte) {
	n := len(buf) - ChecksumSize
	buf[n] = Checksum(buf[:n])
}

// verify reports whether the last byte of buf is the checksum of the rest.
func verify(buf []byte) bool {
	n := len(buf) - ChecksumSize
	if n < TagSize {
		return false
	}
	return buf[n] == Checksum(buf[:n])
}
