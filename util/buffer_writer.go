package util

import "encoding/binary"

func ConvertUInt2Bytes(i uint16) []byte {
	var buff [2]byte
	binary.BigEndian.PutUint16(buff[:], i)
	return buff[:]
}

func ConvertUInt4Bytes(i uint32) []byte {
	var buff [4]byte
	binary.BigEndian.PutUint32(buff[:], i)
	return buff[:]
}

func ConvertULong8Bytes(i uint64) []byte {
	var buff [8]byte
	binary.BigEndian.PutUint64(buff[:], i)
	return buff[:]
}

func ConvertLong8Bytes(i int64) []byte {
	return ConvertULong8Bytes(uint64(i))
}

// In-place variants used when writing directly into a latched page frame.

func WriteUB2(buff []byte, cursor int, i uint16) {
	binary.BigEndian.PutUint16(buff[cursor:], i)
}

func WriteUB4(buff []byte, cursor int, i uint32) {
	binary.BigEndian.PutUint32(buff[cursor:], i)
}

func WriteUB8(buff []byte, cursor int, i uint64) {
	binary.BigEndian.PutUint64(buff[cursor:], i)
}
