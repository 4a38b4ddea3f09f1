package record

import (
	"github.com/filasieno/embedded-innodb/innodb/basic"
	"github.com/filasieno/embedded-innodb/util"
)

// Physical record layout. A record is addressed by its origin, the offset
// of its first data byte within the page frame. Before the origin sit six
// fixed header bytes and, below those, one 2-byte end offset per field:
//
//	origin-6          info bits (4) | n_owned (4)
//	origin-5..-4      heap_no (13) | status (3)
//	origin-3..-2      next record offset, absolute within page
//	origin-1          n_fields
//	origin-6-2(i+1)   end offset of field i, bit 15 = NULL, bit 14 = extern
//
// End offsets are cumulative data sizes, so the last entry is the record's
// data size and field i occupies [end(i-1), end(i)).

const (
	// RecNExtraBytes is the fixed header size before the origin.
	RecNExtraBytes = 6

	// FieldEndSize is the per-field end offset width.
	FieldEndSize = 2
)

// Record status values (3 bits).
const (
	StatusOrdinary byte = 0
	StatusNodePtr  byte = 1
	StatusInfimum  byte = 2
	StatusSupremum byte = 3
)

// Info bits (high nibble of the first header byte).
const (
	InfoMinRecFlag  byte = 0x10
	InfoDeletedFlag byte = 0x20
)

// Field end offset flags.
const (
	endNullFlag   uint16 = 0x8000
	endExternFlag uint16 = 0x4000
	endMask       uint16 = 0x3FFF
)

// MaxNOwned is the largest value the 4-bit n_owned field can hold; the
// directory code keeps it within [0, 8].
const MaxNOwned = 15

// Offsets is the ephemeral column-offset array for one record:
// [0] field count, [1] extra size, then one entry per field holding the
// cumulative end plus the flag bits below.
type Offsets []uint32

const (
	// OffsNull flags a NULL field entry.
	OffsNull uint32 = 1 << 31
	// OffsExtern flags an externally stored field entry.
	OffsExtern uint32 = 1 << 30
)

// GetNOwned returns the directory ownership count of the record.
func GetNOwned(frame []byte, origin int) int {
	return int(frame[origin-6] & 0x0F)
}

func SetNOwned(frame []byte, origin int, nOwned int) {
	frame[origin-6] = frame[origin-6]&0xF0 | byte(nOwned)&0x0F
}

func GetInfoBits(frame []byte, origin int) byte {
	return frame[origin-6] & 0xF0
}

func SetInfoBits(frame []byte, origin int, bits byte) {
	frame[origin-6] = bits&0xF0 | frame[origin-6]&0x0F
}

// GetDeletedFlag reports the delete mark.
func GetDeletedFlag(frame []byte, origin int) bool {
	return frame[origin-6]&InfoDeletedFlag != 0
}

func SetDeletedFlag(frame []byte, origin int, del bool) {
	if del {
		frame[origin-6] |= InfoDeletedFlag
	} else {
		frame[origin-6] &^= InfoDeletedFlag
	}
}

func GetMinRecFlag(frame []byte, origin int) bool {
	return frame[origin-6]&InfoMinRecFlag != 0
}

func GetHeapNo(frame []byte, origin int) int {
	return int(util.ReadUB2Byte2Int(frame[origin-5:]) >> 3)
}

func SetHeapNo(frame []byte, origin int, heapNo int) {
	v := uint16(heapNo)<<3 | uint16(GetStatus(frame, origin))
	util.WriteUB2(frame, origin-5, v)
}

func GetStatus(frame []byte, origin int) byte {
	return byte(util.ReadUB2Byte2Int(frame[origin-5:]) & 0x07)
}

func SetStatus(frame []byte, origin int, status byte) {
	v := uint16(GetHeapNo(frame, origin))<<3 | uint16(status&0x07)
	util.WriteUB2(frame, origin-5, v)
}

// GetNextOffs returns the absolute page offset of the successor record, or
// 0 at the end of the list.
func GetNextOffs(frame []byte, origin int) int {
	return int(util.ReadUB2Byte2Int(frame[origin-3:]))
}

func SetNextOffs(frame []byte, origin int, next int) {
	util.WriteUB2(frame, origin-3, uint16(next))
}

func GetNFields(frame []byte, origin int) int {
	return int(frame[origin-1])
}

func fieldEndRaw(frame []byte, origin, i int) uint16 {
	return util.ReadUB2Byte2Int(frame[origin-RecNExtraBytes-FieldEndSize*(i+1):])
}

func setFieldEndRaw(frame []byte, origin, i int, v uint16) {
	util.WriteUB2(frame, origin-RecNExtraBytes-FieldEndSize*(i+1), v)
}

// GetColOffsets decodes the record's offset array. Records are
// self-describing, so no index descriptor is needed here.
func GetColOffsets(frame []byte, origin int) Offsets {
	n := GetNFields(frame, origin)
	offs := make(Offsets, 2+n)
	offs[0] = uint32(n)
	offs[1] = uint32(RecNExtraBytes + FieldEndSize*n)
	for i := 0; i < n; i++ {
		raw := fieldEndRaw(frame, origin, i)
		entry := uint32(raw & endMask)
		if raw&endNullFlag != 0 {
			entry |= OffsNull
		}
		if raw&endExternFlag != 0 {
			entry |= OffsExtern
		}
		offs[2+i] = entry
	}
	return offs
}

// NFields returns the field count.
func (offs Offsets) NFields() int {
	return int(offs[0])
}

// ExtraSize returns the header size before the origin.
func (offs Offsets) ExtraSize() int {
	return int(offs[1])
}

// DataSize returns the size of the data payload.
func (offs Offsets) DataSize() int {
	if offs.NFields() == 0 {
		return 0
	}
	return int(offs[2+offs.NFields()-1] &^ (OffsNull | OffsExtern))
}

// Size returns the full record footprint, extra plus data.
func (offs Offsets) Size() int {
	return offs.ExtraSize() + offs.DataSize()
}

// AnyExtern reports whether any field is stored externally.
func (offs Offsets) AnyExtern() bool {
	for i := 0; i < offs.NFields(); i++ {
		if offs[2+i]&OffsExtern != 0 {
			return true
		}
	}
	return false
}

// NthFieldIsNull reports SQL NULL for field i.
func (offs Offsets) NthFieldIsNull(i int) bool {
	return offs[2+i]&OffsNull != 0
}

// NthFieldIsExtern reports external storage for field i.
func (offs Offsets) NthFieldIsExtern(i int) bool {
	return offs[2+i]&OffsExtern != 0
}

// Start returns the offset of the first byte of the record, header
// included.
func Start(origin int, offs Offsets) int {
	return origin - offs.ExtraSize()
}

// End returns the offset just past the record data.
func End(origin int, offs Offsets) int {
	return origin + offs.DataSize()
}

// GetNthField returns the bytes and logical length of field i. NULL fields
// return (nil, UnivSQLNull); extern fields return the local prefix with the
// extern flag folded into the length.
func GetNthField(frame []byte, origin int, offs Offsets, i int) ([]byte, uint32) {
	if offs.NthFieldIsNull(i) {
		return nil, basic.UnivSQLNull
	}
	start := 0
	if i > 0 {
		start = int(offs[2+i-1] &^ (OffsNull | OffsExtern))
	}
	end := int(offs[2+i] &^ (OffsNull | OffsExtern))
	data := frame[origin+start : origin+end]
	length := uint32(end - start)
	if offs.NthFieldIsExtern(i) {
		length += basic.UnivExternStorageField
	}
	return data, length
}

// TupleRecSize returns the extra and data sizes the tuple will occupy once
// materialized.
func TupleRecSize(tuple *DTuple) (extra, data int) {
	extra = RecNExtraBytes + FieldEndSize*len(tuple.Fields)
	for i := range tuple.Fields {
		data += int(tuple.Fields[i].LocalLen())
	}
	return extra, data
}

// ConvertTupleToRec materializes the tuple into the frame with its header
// starting at extraStart and returns the record origin. n_owned, heap_no
// and next are zeroed; the caller assigns them.
func ConvertTupleToRec(frame []byte, extraStart int, tuple *DTuple) int {
	n := len(tuple.Fields)
	origin := extraStart + RecNExtraBytes + FieldEndSize*n

	frame[origin-6] = tuple.InfoBits & 0xF0
	util.WriteUB2(frame, origin-5, uint16(tuple.Status)&0x07)
	SetNextOffs(frame, origin, 0)
	frame[origin-1] = byte(n)

	end := 0
	for i := range tuple.Fields {
		f := &tuple.Fields[i]
		var raw uint16
		if f.IsNull() {
			raw = uint16(end) | endNullFlag
		} else {
			local := int(f.LocalLen())
			copy(frame[origin+end:], f.Data[:local])
			end += local
			raw = uint16(end)
			if f.IsExtern() {
				raw |= endExternFlag
			}
		}
		setFieldEndRaw(frame, origin, i, raw)
	}

	return origin
}

// CopyRec copies the full record (extra + data) out of the frame. The
// returned origin addresses the copy.
func CopyRec(frame []byte, origin int, offs Offsets) (buf []byte, bufOrigin int) {
	start := Start(origin, offs)
	buf = append([]byte(nil), frame[start:End(origin, offs)]...)
	return buf, origin - start
}

// RecToTuple rebuilds the logical tuple of a physical record.
func RecToTuple(frame []byte, origin int, offs Offsets) *DTuple {
	n := offs.NFields()
	tuple := NewTuple(n)
	tuple.Status = GetStatus(frame, origin)
	tuple.InfoBits = GetInfoBits(frame, origin)
	for i := 0; i < n; i++ {
		data, length := GetNthField(frame, origin, offs, i)
		if length == basic.UnivSQLNull {
			tuple.SetFieldNull(i)
			continue
		}
		cp := append([]byte(nil), data...)
		tuple.Fields[i] = DField{Data: cp, Len: length}
	}
	return tuple
}
