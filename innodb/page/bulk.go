package page

import (
	"github.com/filasieno/embedded-innodb/innodb/basic"
	"github.com/filasieno/embedded-innodb/innodb/buffer_pool"
	"github.com/filasieno/embedded-innodb/innodb/mtr"
	"github.com/filasieno/embedded-innodb/innodb/record"
	"github.com/filasieno/embedded-innodb/logger"
	"github.com/filasieno/embedded-innodb/util"
)

// LockSys receives record-lock move notifications. The calls happen inside
// the same mtr bracket as the record moves.
type LockSys interface {
	// MoveRecListEnd moves the locks of the records from rec onward to
	// their copies on the new block.
	MoveRecListEnd(newBlock, block *buffer_pool.BufferBlock, rec int)
	// MoveRecListStart moves the locks of the records before rec to their
	// copies on the new block; oldEnd is the record after which the copies
	// start.
	MoveRecListStart(newBlock, block *buffer_pool.BufferBlock, rec int, oldEnd int)
}

// NopLockSys discards the notifications; used when no lock manager is
// attached.
type NopLockSys struct{}

func (NopLockSys) MoveRecListEnd(_, _ *buffer_pool.BufferBlock, _ int)      {}
func (NopLockSys) MoveRecListStart(_, _ *buffer_pool.BufferBlock, _, _ int) {}

// sublistStats walks [rec, supremum) once, computing count and byte size.
func sublistStats(frame []byte, rec int) (n, size int) {
	for !IsSupremum(rec) {
		offs := record.GetColOffsets(frame, rec)
		size += offs.Size()
		n++
		rec = RecGetNext(frame, rec)
	}
	return n, size
}

// copyRecListEndNoLocks copies records one by one after the infimum of the
// destination. An insert failure here means the page pair is already
// inconsistent: both pages are dumped and the process aborts.
func copyRecListEndNoLocks(newBlock, block *buffer_pool.BufferBlock, rec int, m *mtr.Mtr) {
	frame := block.Frame()

	cur1 := CurPosition(block, rec)
	if cur1.IsBeforeFirst() {
		cur1.MoveToNext()
	}

	cur2 := PageInfimum

	for !cur1.IsAfterLast() {
		offs := record.GetColOffsets(frame, cur1.Rec)

		insRec, ok := InsertRecLow(newBlock, cur2, frame, cur1.Rec, offs, m)
		if !ok {
			logger.Errorf("record list copy failed: rec offset %d, cur1 offset %d, cur2 offset %d",
				rec, cur1.Rec, cur2)
			PrintFrame(newBlock.Frame())
			PrintFrame(frame)
			panic(basic.ErrCorruption)
		}

		cur1.MoveToNext()
		cur2 = insRec
	}
}

// copyRecListEndToCreatedPage bulk-loads a freshly created page: records
// are appended straight to the heap and the directory is rebuilt in one
// pass, with one logical record covering the whole operation.
func copyRecListEndToCreatedPage(newBlock *buffer_pool.BufferBlock, srcFrame []byte, rec int, m *mtr.Mtr) {
	w := m.OpenAndWriteIndex(newBlock, uint16(rec), mtr.MLOG_LIST_END_COPY_CREATED)
	w.Close()

	prevMode := m.SetLogMode(mtr.LogModeShortInserts)

	frame := newBlock.Frame()
	heapTop := GetHeapTop(frame)
	prev := PageInfimum
	heapNo := PageHeapNoUserLow

	n := 0
	ownCount := 0
	var owners []int

	if IsInfimum(rec) {
		rec = RecGetNext(srcFrame, rec)
	}

	for !IsSupremum(rec) {
		offs := record.GetColOffsets(srcFrame, rec)

		start := record.Start(rec, offs)
		copy(frame[heapTop:], srcFrame[start:record.End(rec, offs)])
		origin := heapTop + offs.ExtraSize()

		record.SetHeapNo(frame, origin, heapNo)
		record.SetNOwned(frame, origin, 0)
		record.SetNextOffs(frame, prev, origin)

		heapTop += offs.Size()
		prev = origin
		heapNo++
		n++
		ownCount++

		if ownCount == (PageDirSlotMaxNOwned+1)/2 {
			record.SetNOwned(frame, origin, ownCount)
			owners = append(owners, origin)
			ownCount = 0
		}

		rec = RecGetNext(srcFrame, rec)
	}

	record.SetNextOffs(frame, prev, PageSupremum)
	record.SetNOwned(frame, PageSupremum, ownCount+1)

	for k, owner := range owners {
		DirSetNthSlotRec(frame, 1+k, owner)
	}
	DirSetNthSlotRec(frame, 1+len(owners), PageSupremum)
	dirSetNSlots(frame, 2+len(owners))

	HeaderSetField(frame, PageHeapTop, heapTop)
	HeaderSetField(frame, PageNHeap, PageHeapNoUserLow+n)
	HeaderSetField(frame, PageNRecs, n)
	HeaderSetField(frame, PageLastInsert, 0)
	HeaderSetField(frame, PageDirection, PageNoDirection)
	HeaderSetField(frame, PageNDirection, 0)

	m.SetLogMode(prevMode)
}

// CopyRecListEnd copies the records from rec (inclusive) to the supremum
// onto newBlock. A freshly created destination takes the bulk path. On a
// secondary leaf the destination's max trx id is raised, and the lock
// system is notified of the move. Returns the destination's first record
// from before the copy (the copies now precede it), and false when the
// records do not fit.
func CopyRecListEnd(newBlock, block *buffer_pool.BufferBlock, rec int, meta *record.Meta, locks LockSys, m *mtr.Mtr) (int, bool) {
	frame := block.Frame()
	newFrame := newBlock.Frame()

	ret := RecGetNext(newFrame, PageInfimum)

	statsFrom := rec
	if IsInfimum(statsFrom) {
		statsFrom = RecGetNext(frame, statsFrom)
	}
	n, size := sublistStats(frame, statsFrom)
	if size > GetMaxInsertSize(newFrame, n) {
		return ret, false
	}

	if DirGetNHeap(newFrame) == PageHeapNoUserLow {
		copyRecListEndToCreatedPage(newBlock, frame, rec, m)
	} else {
		copyRecListEndNoLocks(newBlock, block, rec, m)
	}

	if !meta.IsClustered() && IsLeaf(frame) {
		UpdateMaxTrxID(newBlock, GetMaxTrxID(frame), m)
	}

	if locks != nil {
		locks.MoveRecListEnd(newBlock, block, rec)
	}

	return ret, true
}

// CopyRecListStart copies the records before rec onto newBlock, after the
// destination's last user record. Returns the record after which the
// copies were placed, and false when the records do not fit.
func CopyRecListStart(newBlock, block *buffer_pool.BufferBlock, rec int, meta *record.Meta, locks LockSys, m *mtr.Mtr) (int, bool) {
	frame := block.Frame()
	newFrame := newBlock.Frame()

	ret := RecGetPrev(newFrame, PageSupremum)

	if IsInfimum(rec) {
		return ret, true
	}

	n := 0
	size := 0
	for r := RecGetNext(frame, PageInfimum); r != rec; r = RecGetNext(frame, r) {
		offs := record.GetColOffsets(frame, r)
		size += offs.Size()
		n++
	}
	if size > GetMaxInsertSize(newFrame, n) {
		return ret, false
	}

	cur1 := CurSetBeforeFirst(block)
	cur1.MoveToNext()

	cur2 := ret

	for cur1.Rec != rec {
		offs := record.GetColOffsets(frame, cur1.Rec)

		insRec, ok := InsertRecLow(newBlock, cur2, frame, cur1.Rec, offs, m)
		if !ok {
			logger.Errorf("record list copy failed: rec offset %d, cur1 offset %d, cur2 offset %d",
				rec, cur1.Rec, cur2)
			PrintFrame(newFrame)
			PrintFrame(frame)
			panic(basic.ErrCorruption)
		}

		cur1.MoveToNext()
		cur2 = insRec
	}

	if !meta.IsClustered() && IsLeaf(frame) {
		UpdateMaxTrxID(newBlock, GetMaxTrxID(frame), m)
	}

	if locks != nil {
		locks.MoveRecListStart(newBlock, block, rec, ret)
	}

	return ret, true
}

// DeleteRecListEnd removes the records from rec to the supremum: one
// logical record covers the whole range, the sublist is detached onto the
// free list, and the supremum slot inherits the tail ownership without
// minimum-count enforcement. Pass UlintUndefined for nRecs/size to have
// them computed in one walk.
func DeleteRecListEnd(block *buffer_pool.BufferBlock, rec int, nRecs, size int, m *mtr.Mtr) {
	frame := block.Frame()

	if IsInfimum(rec) {
		rec = RecGetNext(frame, rec)
	}
	if IsSupremum(rec) {
		return
	}

	// The page gets invalid for optimistic searches.
	HeaderSetField(frame, PageLastInsert, 0)
	block.ModifyClockInc()

	w := m.OpenAndWriteIndex(block, uint16(rec), mtr.MLOG_LIST_END_DELETE)
	w.Close()

	prevRec := RecGetPrev(frame, rec)
	lastRec := RecGetPrev(frame, PageSupremum)

	if size == basic.UlintUndefined || nRecs == basic.UlintUndefined {
		nRecs, size = sublistStats(frame, rec)
	}

	// Reassign ownership: the first owner at or after the head of the
	// deleted chain donates its remaining count to the supremum slot, and
	// every slot above it is dropped. The supremum may own fewer than the
	// usual minimum here.
	rec2 := rec
	count := 0
	for record.GetNOwned(frame, rec2) == 0 {
		count++
		rec2 = RecGetNext(frame, rec2)
	}

	nOwned := record.GetNOwned(frame, rec2) - count
	slotIndex := DirFindOwnerSlot(frame, rec2)

	DirSetNthSlotRec(frame, slotIndex, PageSupremum)
	record.SetNOwned(frame, PageSupremum, nOwned)

	dirSetNSlots(frame, slotIndex+1)

	// Detach the chain and catenate it onto the free list.
	record.SetNextOffs(frame, prevRec, PageSupremum)

	record.SetNextOffs(frame, lastRec, GetFree(frame))
	HeaderSetField(frame, PageFree, rec)

	HeaderSetField(frame, PageGarbage, size+GetGarbage(frame))
	HeaderSetField(frame, PageNRecs, GetNRecs(frame)-nRecs)
}

// DeleteRecListStart removes the records before rec one by one, logging a
// single MLOG_LIST_START_DELETE and suppressing the per-record logging
// underneath.
func DeleteRecListStart(block *buffer_pool.BufferBlock, rec int, m *mtr.Mtr) {
	if IsInfimum(rec) {
		return
	}

	w := m.OpenAndWriteIndex(block, uint16(rec), mtr.MLOG_LIST_START_DELETE)
	w.Close()

	cur := CurSetBeforeFirst(block)
	cur.MoveToNext()

	// Individual deletes are not logged.
	logMode := m.SetLogMode(mtr.LogModeNone)

	for cur.Rec != rec {
		offs := record.GetColOffsets(block.Frame(), cur.Rec)
		DeleteRec(&cur, offs, m)
	}

	if prev := m.SetLogMode(logMode); prev != mtr.LogModeNone {
		panic("page: log mode not restored")
	}
}

// MoveRecListEnd copies the records from splitRec onward to newBlock and
// deletes them from block. Returns false when the copy would overflow the
// destination; the caller then discards the destination page.
func MoveRecListEnd(newBlock, block *buffer_pool.BufferBlock, splitRec int, meta *record.Meta, locks LockSys, m *mtr.Mtr) bool {
	newFrame := newBlock.Frame()

	oldDataSize := GetDataSize(newFrame)
	oldNRecs := GetNRecs(newFrame)

	if _, ok := CopyRecListEnd(newBlock, block, splitRec, meta, locks, m); !ok {
		return false
	}

	newDataSize := GetDataSize(newFrame)
	newNRecs := GetNRecs(newFrame)

	DeleteRecListEnd(block, splitRec, newNRecs-oldNRecs, newDataSize-oldDataSize, m)

	return true
}

// MoveRecListStart copies the records before splitRec to newBlock and
// deletes them from block. Returns false when the copy would overflow.
func MoveRecListStart(newBlock, block *buffer_pool.BufferBlock, splitRec int, meta *record.Meta, locks LockSys, m *mtr.Mtr) bool {
	if _, ok := CopyRecListStart(newBlock, block, splitRec, meta, locks, m); !ok {
		return false
	}

	DeleteRecListStart(block, splitRec, m)

	return true
}

// Reorganize rebuilds the page from its own live record list, reclaiming
// the garbage. One MLOG_PAGE_REORGANIZE record covers the operation.
func Reorganize(block *buffer_pool.BufferBlock, m *mtr.Mtr) {
	frame := block.Frame()

	m.WriteInitialLogRecord(block, mtr.MLOG_PAGE_REORGANIZE)

	snapshot := append([]byte(nil), frame...)

	indexID := GetIndexID(frame)
	level := GetLevel(frame)
	maxTrx := GetMaxTrxID(frame)

	logMode := m.SetLogMode(mtr.LogModeNone)

	Create(block, m, indexID, level)

	prev := PageInfimum
	for rec := RecGetNext(snapshot, PageInfimum); !IsSupremum(rec); rec = RecGetNext(snapshot, rec) {
		offs := record.GetColOffsets(snapshot, rec)
		insRec, ok := InsertRecLow(block, prev, snapshot, rec, offs, m)
		if !ok {
			PrintFrame(snapshot)
			panic(basic.ErrCorruption)
		}
		prev = insRec
	}

	SetMaxTrxID(block, maxTrx, nil)

	m.SetLogMode(logMode)
}

// ParseDeleteRecList applies a parsed MLOG_LIST_END_DELETE or
// MLOG_LIST_START_DELETE record, whose body is the 2-byte offset of the
// first record to delete.
func ParseDeleteRecList(t mtr.MlogType, body []byte, block *buffer_pool.BufferBlock, m *mtr.Mtr) []byte {
	if len(body) < 2 {
		return nil
	}

	offset := int(util.ReadUB2Byte2Int(body))
	body = body[2:]

	if block == nil {
		return body
	}

	if t == mtr.MLOG_LIST_END_DELETE {
		DeleteRecListEnd(block, offset, basic.UlintUndefined, basic.UlintUndefined, m)
	} else {
		DeleteRecListStart(block, offset, m)
	}

	return body
}

// WriteRecFieldPageNo rewrites a 4-byte page-number field of a node
// pointer record through the redo log.
func WriteRecFieldPageNo(block *buffer_pool.BufferBlock, origin int, field int, pageNo basic.PageNo, m *mtr.Mtr) {
	frame := block.Frame()
	offs := record.GetColOffsets(frame, origin)

	_, length := record.GetNthField(frame, origin, offs, field)
	if length != 4 {
		panic("page: node pointer field is not 4 bytes")
	}

	fieldStart := 0
	if field > 0 {
		fieldStart = int(offs[2+field-1] &^ (record.OffsNull | record.OffsExtern))
	}

	m.WriteUlint(block, origin+fieldStart, uint32(pageNo), mtr.MLOG_4BYTES)
}
