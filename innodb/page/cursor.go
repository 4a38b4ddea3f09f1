package page

import (
	"github.com/filasieno/embedded-innodb/innodb/buffer_pool"
	"github.com/filasieno/embedded-innodb/innodb/mtr"
	"github.com/filasieno/embedded-innodb/innodb/record"
)

// PageCur is a position within one page's record list.
type PageCur struct {
	Block *buffer_pool.BufferBlock
	Rec   int
}

// CurPosition places the cursor on a known record.
func CurPosition(block *buffer_pool.BufferBlock, rec int) PageCur {
	return PageCur{Block: block, Rec: rec}
}

// CurSetBeforeFirst positions before the first user record.
func CurSetBeforeFirst(block *buffer_pool.BufferBlock) PageCur {
	return PageCur{Block: block, Rec: PageInfimum}
}

func (c *PageCur) IsBeforeFirst() bool {
	return c.Rec == PageInfimum
}

func (c *PageCur) IsAfterLast() bool {
	return c.Rec == PageSupremum
}

// MoveToNext advances along the record list.
func (c *PageCur) MoveToNext() {
	c.Rec = RecGetNext(c.Block.Frame(), c.Rec)
}

// SearchLE positions on the last record that compares less than or equal
// to tuple: binary search over the directory slots, then a linear walk
// through the localized ownership group. The second result reports an
// exact match.
func SearchLE(block *buffer_pool.BufferBlock, meta *record.Meta, tuple *record.DTuple) (PageCur, bool) {
	frame := block.Frame()

	low := 0
	up := DirGetNSlots(frame) - 1

	for up-low > 1 {
		mid := (low + up) / 2
		rec := DirGetNthSlotRec(frame, mid)
		offs := record.GetColOffsets(frame, rec)
		if record.CmpDtupleRec(meta, tuple, frame, rec, offs) >= 0 {
			low = mid
		} else {
			up = mid
		}
	}

	cur := DirGetNthSlotRec(frame, low)
	for {
		next := RecGetNext(frame, cur)
		offs := record.GetColOffsets(frame, next)
		if record.CmpDtupleRec(meta, tuple, frame, next, offs) < 0 {
			break
		}
		cur = next
	}

	exact := false
	if IsUserRec(cur) {
		offs := record.GetColOffsets(frame, cur)
		exact = record.CmpDtupleRec(meta, tuple, frame, cur, offs) == 0
	}

	return PageCur{Block: block, Rec: cur}, exact
}

// InsertRecLow inserts a copy of the physical record (srcFrame, srcOrigin)
// after prevRec. It reuses the free list head when the space fits,
// otherwise allocates from the heap. Returns the new record origin, or
// ok=false when the page is full.
func InsertRecLow(block *buffer_pool.BufferBlock, prevRec int, srcFrame []byte, srcOrigin int, srcOffs record.Offsets, m *mtr.Mtr) (int, bool) {
	frame := block.Frame()

	extra := srcOffs.ExtraSize()
	need := srcOffs.Size()

	var extraStart, heapNo int

	if free := GetFree(frame); free != 0 {
		freeOffs := record.GetColOffsets(frame, free)
		if freeOffs.Size() >= need {
			// Reuse the head of the free list; the remainder of its
			// space stays accounted as garbage.
			extraStart = record.Start(free, freeOffs)
			heapNo = record.GetHeapNo(frame, free)
			HeaderSetField(frame, PageFree, record.GetNextOffs(frame, free))
			HeaderSetField(frame, PageGarbage, GetGarbage(frame)-need)
		}
	}

	if extraStart == 0 {
		var ok bool
		extraStart, heapNo, ok = MemAllocHeap(frame, need)
		if !ok {
			return 0, false
		}
	}

	srcStart := record.Start(srcOrigin, srcOffs)
	copy(frame[extraStart:], srcFrame[srcStart:record.End(srcOrigin, srcOffs)])
	origin := extraStart + extra

	record.SetHeapNo(frame, origin, heapNo)
	record.SetNOwned(frame, origin, 0)

	next := RecGetNext(frame, prevRec)
	record.SetNextOffs(frame, prevRec, origin)
	record.SetNextOffs(frame, origin, next)

	HeaderSetField(frame, PageNRecs, GetNRecs(frame)+1)

	// The new record joins the group of the next owner.
	owner := origin
	for record.GetNOwned(frame, owner) == 0 {
		owner = RecGetNext(frame, owner)
	}
	nOwned := record.GetNOwned(frame, owner) + 1
	record.SetNOwned(frame, owner, nOwned)

	if nOwned == PageDirSlotMaxNOwned+1 {
		dirSplitSlot(frame, DirFindOwnerSlot(frame, owner))
	}

	// Track the insert direction for the split heuristics.
	lastInsert := HeaderGetField(frame, PageLastInsert)
	direction := HeaderGetField(frame, PageDirection)
	switch {
	case lastInsert == 0:
		HeaderSetField(frame, PageDirection, PageNoDirection)
		HeaderSetField(frame, PageNDirection, 0)
	case lastInsert == prevRec && direction != PageLeft:
		HeaderSetField(frame, PageDirection, PageRight)
		HeaderSetField(frame, PageNDirection, HeaderGetField(frame, PageNDirection)+1)
	case lastInsert == next && direction != PageRight:
		HeaderSetField(frame, PageDirection, PageLeft)
		HeaderSetField(frame, PageNDirection, HeaderGetField(frame, PageNDirection)+1)
	default:
		HeaderSetField(frame, PageDirection, PageNoDirection)
		HeaderSetField(frame, PageNDirection, 0)
	}
	HeaderSetField(frame, PageLastInsert, origin)

	w := m.OpenAndWriteIndex(block, uint16(origin), mtr.MLOG_REC_INSERT)
	w.WriteUlint2(uint16(prevRec))
	w.Close()

	return origin, true
}

// InsertTuple materializes the tuple in scratch space and inserts it after
// prevRec.
func InsertTuple(block *buffer_pool.BufferBlock, prevRec int, tuple *record.DTuple, m *mtr.Mtr) (int, bool) {
	extra, data := record.TupleRecSize(tuple)
	scratch := make([]byte, extra+data)
	origin := record.ConvertTupleToRec(scratch, 0, tuple)
	offs := record.GetColOffsets(scratch, origin)
	return InsertRecLow(block, prevRec, scratch, origin, offs, m)
}

// DeleteRec removes the cursor's record from the live list and pushes it
// onto the free list; the cursor moves to the successor.
func DeleteRec(c *PageCur, offs record.Offsets, m *mtr.Mtr) {
	frame := c.Block.Frame()
	cur := c.Rec

	w := m.OpenAndWriteIndex(c.Block, uint16(cur), mtr.MLOG_REC_DELETE)
	w.Close()

	HeaderSetField(frame, PageLastInsert, 0)

	slotNo := DirFindOwnerSlot(frame, cur)
	prev := RecGetPrev(frame, cur)
	next := RecGetNext(frame, cur)

	owner := DirGetNthSlotRec(frame, slotNo)
	if owner == cur {
		// The record owns its group; ownership moves to the predecessor.
		nOwned := record.GetNOwned(frame, cur)
		record.SetNOwned(frame, cur, 0)
		record.SetNOwned(frame, prev, nOwned-1)
		DirSetNthSlotRec(frame, slotNo, prev)
		owner = prev
	} else {
		record.SetNOwned(frame, owner, record.GetNOwned(frame, owner)-1)
	}

	record.SetNextOffs(frame, prev, next)

	record.SetNextOffs(frame, cur, GetFree(frame))
	HeaderSetField(frame, PageFree, cur)
	HeaderSetField(frame, PageGarbage, GetGarbage(frame)+offs.Size())

	HeaderSetField(frame, PageNRecs, GetNRecs(frame)-1)

	if slotNo > 0 && record.GetNOwned(frame, owner) < PageDirSlotMinNOwned {
		dirBalanceSlot(frame, slotNo)
	}

	c.Rec = next
}
