package util

import "github.com/OneOfOne/xxhash"

// PageChecksum computes the checksum stamped into the FIL header. The seed
// keeps an all-zero frame from hashing to zero.
func PageChecksum(data []byte) uint32 {
	return xxhash.Checksum32S(data, 0x9747b28c)
}
