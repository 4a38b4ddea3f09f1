package util

import "encoding/binary"

// Big-endian readers for page frames and log buffers. Offsets are absolute
// within the buffer; the two-value forms advance a cursor the way the
// protocol readers do.

func ReadUB2(buff []byte, cursor int) (int, uint16) {
	return cursor + 2, binary.BigEndian.Uint16(buff[cursor:])
}

func ReadUB4(buff []byte, cursor int) (int, uint32) {
	return cursor + 4, binary.BigEndian.Uint32(buff[cursor:])
}

func ReadUB8(buff []byte, cursor int) (int, uint64) {
	return cursor + 8, binary.BigEndian.Uint64(buff[cursor:])
}

// ReadUB2Byte2Int reads a big-endian uint16 from the head of buff.
func ReadUB2Byte2Int(buff []byte) uint16 {
	return binary.BigEndian.Uint16(buff)
}

// ReadUB4Byte2UInt32 reads a big-endian uint32 from the head of buff.
func ReadUB4Byte2UInt32(buff []byte) uint32 {
	return binary.BigEndian.Uint32(buff)
}

// ReadUB8Byte2Long reads a big-endian uint64 from the head of buff.
func ReadUB8Byte2Long(buff []byte) uint64 {
	return binary.BigEndian.Uint64(buff)
}
