// Package page implements the index page: the record heap, the sparse page
// directory, list-level bulk operations and self-validation.
//
// The page layout grows from both ends. The FIL header, page header and the
// infimum/supremum records sit at the start; user records are appended to
// the heap above them; the directory of 2-byte slots grows downward from
// the page end. Each slot points to a record owning the group of records
// between the previous slot's record (exclusive) and itself (inclusive);
// the count is kept between 4 and 8, except that the infimum slot always
// owns exactly one record and the supremum slot from 1 to 8.
package page

import (
	"github.com/filasieno/embedded-innodb/innodb/basic"
	"github.com/filasieno/embedded-innodb/innodb/buffer_pool"
	"github.com/filasieno/embedded-innodb/innodb/mtr"
	"github.com/filasieno/embedded-innodb/innodb/record"
	"github.com/filasieno/embedded-innodb/util"
)

// FIL header offsets.
const (
	FilPageSpaceOrChksum = 0
	FilPageOffset        = 4
	FilPagePrev          = 8
	FilPageNext          = 12
	FilPageLSN           = 16
	FilPageType          = 24
	FilPageFileFlushLSN  = 26
	FilPageArchLogNo     = 34
	FilPageData          = 38
)

// Page types stamped into FilPageType.
const (
	FilPageTypeAllocated uint16 = 0
	FilPageTypeIndex     uint16 = 17855
)

// Page header field offsets, relative to PageHeaderOffset.
const (
	PageHeaderOffset = FilPageData

	PageNDirSlots  = 0
	PageHeapTop    = 2
	PageNHeap      = 4
	PageFree       = 6
	PageGarbage    = 8
	PageLastInsert = 10
	PageDirection  = 12
	PageNDirection = 14
	PageNRecs      = 16
	PageMaxTrxID   = 18
	PageLevel      = 26
	PageIndexID    = 28
	PageBtrSegLeaf = 36
	PageBtrSegTop  = 46

	// PageData is the offset where the record heap begins.
	PageData = PageHeaderOffset + 56
)

// Derived record positions: infimum and supremum are one-field records
// ("infimum\0", 8 bytes and "supremum\0", 9 bytes) materialized through the
// codec right at PageData.
const (
	sysRecExtra = record.RecNExtraBytes + record.FieldEndSize

	// PageInfimum is the origin of the infimum record.
	PageInfimum = PageData + sysRecExtra

	infimumDataLen  = 8
	supremumDataLen = 9

	// PageSupremum is the origin of the supremum record.
	PageSupremum = PageInfimum + infimumDataLen + sysRecExtra

	// PageSupremumEnd is the first heap byte above the system records.
	PageSupremumEnd = PageSupremum + supremumDataLen
)

// Heap numbers of the system records.
const (
	PageHeapNoInfimum  = 0
	PageHeapNoSupremum = 1
	PageHeapNoUserLow  = 2
)

// Directory geometry at the page end.
const (
	// PageDir is the FIL trailer size reserved below the directory.
	PageDir           = 8
	PageDirSlotSize   = 2
	PageEmptyDirStart = PageDir + 2*PageDirSlotSize

	PageDirSlotMaxNOwned = 8
	PageDirSlotMinNOwned = 4
)

// Last-insert direction hints.
const (
	PageLeft        = 1
	PageRight       = 2
	PageSameRec     = 3
	PageSamePage    = 4
	PageNoDirection = 5
)

// HeaderGetField reads a 2-byte page header field.
func HeaderGetField(frame []byte, field int) int {
	return int(util.ReadUB2Byte2Int(frame[PageHeaderOffset+field:]))
}

// HeaderSetField writes a 2-byte page header field.
func HeaderSetField(frame []byte, field int, v int) {
	util.WriteUB2(frame, PageHeaderOffset+field, uint16(v))
}

// GetSpaceID reads the tablespace id from the FIL header.
func GetSpaceID(frame []byte) basic.SpaceID {
	return basic.SpaceID(util.ReadUB4Byte2UInt32(frame[FilPageArchLogNo:]))
}

// GetPageNo reads the page number from the FIL header.
func GetPageNo(frame []byte) basic.PageNo {
	return basic.PageNo(util.ReadUB4Byte2UInt32(frame[FilPageOffset:]))
}

// GetType reads the FIL page type.
func GetType(frame []byte) uint16 {
	return util.ReadUB2Byte2Int(frame[FilPageType:])
}

// GetMaxTrxID reads PAGE_MAX_TRX_ID.
func GetMaxTrxID(frame []byte) basic.TrxID {
	return basic.TrxID(util.ReadUB8Byte2Long(frame[PageHeaderOffset+PageMaxTrxID:]))
}

// SetMaxTrxID records trx_id in the header. When mtr is non-nil the write
// goes through the redo log; the nil form is the unlogged initialization
// path: recovery assumes the max trx id of every page is the maximum trx id
// assigned before the crash.
func SetMaxTrxID(block *buffer_pool.BufferBlock, trxID basic.TrxID, m *mtr.Mtr) {
	if m != nil {
		m.WriteUint64Field(block, PageHeaderOffset+PageMaxTrxID, uint64(trxID))
	} else {
		util.WriteUB8(block.Frame(), PageHeaderOffset+PageMaxTrxID, uint64(trxID))
	}
}

// UpdateMaxTrxID raises PAGE_MAX_TRX_ID if trxID is larger.
func UpdateMaxTrxID(block *buffer_pool.BufferBlock, trxID basic.TrxID, m *mtr.Mtr) {
	if trxID > GetMaxTrxID(block.Frame()) {
		SetMaxTrxID(block, trxID, m)
	}
}

// GetIndexID reads PAGE_INDEX_ID.
func GetIndexID(frame []byte) basic.IndexID {
	return basic.IndexID(util.ReadUB8Byte2Long(frame[PageHeaderOffset+PageIndexID:]))
}

// GetLevel reads PAGE_LEVEL; 0 means leaf.
func GetLevel(frame []byte) int {
	return HeaderGetField(frame, PageLevel)
}

// IsLeaf reports whether the page is a B-tree leaf.
func IsLeaf(frame []byte) bool {
	return GetLevel(frame) == 0
}

// GetNRecs returns the number of user records.
func GetNRecs(frame []byte) int {
	return HeaderGetField(frame, PageNRecs)
}

// DirGetNHeap returns the number of heap-allocated records, system records
// included.
func DirGetNHeap(frame []byte) int {
	return HeaderGetField(frame, PageNHeap)
}

// GetFree returns the head of the free record list, 0 if empty.
func GetFree(frame []byte) int {
	return HeaderGetField(frame, PageFree)
}

// GetGarbage returns the bytes held by deleted records.
func GetGarbage(frame []byte) int {
	return HeaderGetField(frame, PageGarbage)
}

// GetHeapTop returns the first unused heap byte.
func GetHeapTop(frame []byte) int {
	return HeaderGetField(frame, PageHeapTop)
}

// GetDataSize returns the sum of live user record data footprints.
func GetDataSize(frame []byte) int {
	return GetHeapTop(frame) - PageSupremumEnd - GetGarbage(frame)
}

// GetMaxInsertSize returns the free space available for inserting nRecs
// records from the heap top, directory growth included.
func GetMaxInsertSize(frame []byte, nRecs int) int {
	nSlots := DirGetNSlots(frame)
	dirTop := DirGetNthSlotOffset(frame, nSlots-1)
	free := dirTop - GetHeapTop(frame) - PageDirSlotSize*nRecs
	if free < 0 {
		return 0
	}
	return free
}

// GetMaxInsertSizeAfterReorganize additionally counts the garbage bytes a
// reorganization would reclaim.
func GetMaxInsertSizeAfterReorganize(frame []byte, nRecs int) int {
	return GetMaxInsertSize(frame, nRecs) + GetGarbage(frame)
}

// IsInfimum reports whether origin addresses the infimum record.
func IsInfimum(origin int) bool {
	return origin == PageInfimum
}

// IsSupremum reports whether origin addresses the supremum record.
func IsSupremum(origin int) bool {
	return origin == PageSupremum
}

// IsUserRec reports a non-system record.
func IsUserRec(origin int) bool {
	return origin != PageInfimum && origin != PageSupremum
}

// RecGetNext follows the record list.
func RecGetNext(frame []byte, origin int) int {
	return record.GetNextOffs(frame, origin)
}

// RecGetPrev returns the predecessor of origin in the record list. It
// localizes the owner slot and walks the group, the way the directory is
// meant to be used.
func RecGetPrev(frame []byte, origin int) int {
	slotNo := DirFindOwnerSlot(frame, origin)
	if slotNo == 0 {
		// Only the infimum lives in slot 0 and it has no predecessor.
		panic("page: prev of infimum")
	}
	rec := DirGetNthSlotRec(frame, slotNo-1)
	for {
		next := RecGetNext(frame, rec)
		if next == origin {
			return rec
		}
		rec = next
	}
}

// MemAllocHeap allocates need bytes from the heap top. Returns the offset
// where the record header may start, the assigned heap number, and whether
// the allocation fit.
func MemAllocHeap(frame []byte, need int) (extraStart, heapNo int, ok bool) {
	if GetMaxInsertSize(frame, 1) < need {
		return 0, 0, false
	}

	extraStart = GetHeapTop(frame)
	HeaderSetField(frame, PageHeapTop, extraStart+need)

	heapNo = DirGetNHeap(frame)
	HeaderSetField(frame, PageNHeap, heapNo+1)

	return extraStart, heapNo, true
}

// infimumTuple and supremumTuple build the system record tuples.
func infimumTuple() *record.DTuple {
	t := record.NewTuple(1)
	t.Status = record.StatusInfimum
	t.SetField(0, []byte("infimum\x00"))
	return t
}

func supremumTuple() *record.DTuple {
	t := record.NewTuple(1)
	t.Status = record.StatusSupremum
	t.SetField(0, []byte("supremum\x00"))
	return t
}

// Create initializes block as an empty index page: it logs
// MLOG_PAGE_CREATE, stamps the index page type, materializes infimum and
// supremum through the codec, resets the header, seeds the two directory
// slots and zero-fills the free area.
func Create(block *buffer_pool.BufferBlock, m *mtr.Mtr, indexID basic.IndexID, level int) []byte {
	m.WriteInitialLogRecord(block, mtr.MLOG_PAGE_CREATE)

	block.ModifyClockInc()

	frame := block.Frame()

	util.WriteUB2(frame, FilPageType, FilPageTypeIndex)
	util.WriteUB4(frame, FilPageOffset, uint32(block.PageNo()))
	util.WriteUB4(frame, FilPageArchLogNo, uint32(block.SpaceID()))

	infimum := record.ConvertTupleToRec(frame, PageData, infimumTuple())
	if infimum != PageInfimum {
		panic("page: infimum misplaced")
	}
	record.SetNOwned(frame, infimum, 1)
	record.SetHeapNo(frame, infimum, PageHeapNoInfimum)

	supremum := record.ConvertTupleToRec(frame, PageInfimum+infimumDataLen, supremumTuple())
	if supremum != PageSupremum {
		panic("page: supremum misplaced")
	}
	record.SetNOwned(frame, supremum, 1)
	record.SetHeapNo(frame, supremum, PageHeapNoSupremum)

	HeaderSetField(frame, PageNDirSlots, 2)
	HeaderSetField(frame, PageHeapTop, PageSupremumEnd)
	HeaderSetField(frame, PageNHeap, PageHeapNoUserLow)
	HeaderSetField(frame, PageFree, 0)
	HeaderSetField(frame, PageGarbage, 0)
	HeaderSetField(frame, PageLastInsert, 0)
	HeaderSetField(frame, PageDirection, PageNoDirection)
	HeaderSetField(frame, PageNDirection, 0)
	HeaderSetField(frame, PageNRecs, 0)
	HeaderSetField(frame, PageLevel, level)
	util.WriteUB8(frame, PageHeaderOffset+PageIndexID, uint64(indexID))
	SetMaxTrxID(block, 0, nil)

	for i := PageSupremumEnd; i < basic.UnivPageSize-PageEmptyDirStart; i++ {
		frame[i] = 0
	}

	DirSetNthSlotRec(frame, 0, PageInfimum)
	DirSetNthSlotRec(frame, 1, PageSupremum)

	record.SetNextOffs(frame, PageInfimum, PageSupremum)
	record.SetNextOffs(frame, PageSupremum, 0)

	util.WriteUB4(frame, FilPageSpaceOrChksum, util.PageChecksum(frame[FilPageData:]))

	return frame
}

// UpdateChecksum refreshes the FIL header checksum over the page body.
func UpdateChecksum(frame []byte) {
	util.WriteUB4(frame, FilPageSpaceOrChksum, util.PageChecksum(frame[FilPageData:]))
}

// ChecksumValid verifies the stamped checksum.
func ChecksumValid(frame []byte) bool {
	return util.ReadUB4Byte2UInt32(frame[FilPageSpaceOrChksum:]) == util.PageChecksum(frame[FilPageData:])
}

// ParseCreate applies a parsed MLOG_PAGE_CREATE record; the body is empty
// apart from the initial part.
func ParseCreate(body []byte, block *buffer_pool.BufferBlock, m *mtr.Mtr, indexID basic.IndexID, level int) []byte {
	if block != nil {
		Create(block, m, indexID, level)
	}
	return body
}

// FindRecWithHeapNo scans the record list for the record with the given
// heap number; 0 if absent.
func FindRecWithHeapNo(frame []byte, heapNo int) int {
	rec := PageInfimum
	for {
		h := record.GetHeapNo(frame, rec)
		if h == heapNo {
			return rec
		}
		if h == PageHeapNoSupremum {
			return 0
		}
		rec = RecGetNext(frame, rec)
	}
}

// GetMiddleRec returns the record in the middle of the record list.
func GetMiddleRec(frame []byte) int {
	middle := (GetNRecs(frame) + PageHeapNoUserLow) / 2

	count := 0
	var i int
	for i = 0; ; i++ {
		nOwned := record.GetNOwned(frame, DirGetNthSlotRec(frame, i))
		if count+nOwned > middle {
			break
		}
		count += nOwned
	}

	rec := DirGetNthSlotRec(frame, i-1)
	rec = RecGetNext(frame, rec)

	for j := 0; j < middle-count; j++ {
		rec = RecGetNext(frame, rec)
	}

	return rec
}

// RecGetNRecsBefore counts the records preceding origin in the list,
// infimum included.
func RecGetNRecsBefore(frame []byte, origin int) int {
	rec := origin
	n := 0

	for record.GetNOwned(frame, rec) == 0 {
		rec = RecGetNext(frame, rec)
		n--
	}

	for i := 0; ; i++ {
		slotRec := DirGetNthSlotRec(frame, i)
		n += record.GetNOwned(frame, slotRec)
		if slotRec == rec {
			break
		}
	}

	return n - 1
}
