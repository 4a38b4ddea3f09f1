package page

import (
	"github.com/filasieno/embedded-innodb/innodb/basic"
	"github.com/filasieno/embedded-innodb/innodb/record"
	"github.com/filasieno/embedded-innodb/logger"
	"github.com/filasieno/embedded-innodb/util"
)

// DirGetNSlots returns the directory slot count.
func DirGetNSlots(frame []byte) int {
	return HeaderGetField(frame, PageNDirSlots)
}

func dirSetNSlots(frame []byte, n int) {
	HeaderSetField(frame, PageNDirSlots, n)
}

// DirGetNthSlotOffset returns the frame offset of slot n. Slot 0 is the
// highest-addressed slot; the table grows toward lower addresses.
func DirGetNthSlotOffset(frame []byte, n int) int {
	return basic.UnivPageSize - PageDir - (n+1)*PageDirSlotSize
}

// DirGetNthSlotRec returns the record offset stored in slot n.
func DirGetNthSlotRec(frame []byte, n int) int {
	return int(util.ReadUB2Byte2Int(frame[DirGetNthSlotOffset(frame, n):]))
}

// DirSetNthSlotRec points slot n at the record.
func DirSetNthSlotRec(frame []byte, n int, rec int) {
	util.WriteUB2(frame, DirGetNthSlotOffset(frame, n), uint16(rec))
}

// DirFindOwnerSlot walks forward from origin to its owner record, then
// scans the slot table from the supremum slot toward slot 0 for the slot
// pointing at the owner. A missing slot is fatal corruption: the page and
// the records involved are dumped and the process aborts.
func DirFindOwnerSlot(frame []byte, origin int) int {
	r := origin
	for record.GetNOwned(frame, r) == 0 {
		r = RecGetNext(frame, r)
	}

	nSlots := DirGetNSlots(frame)
	for slot := nSlots - 1; ; slot-- {
		if slot < 0 {
			logger.Errorf("probable data corruption on page %d; cannot find the dir slot for record at %d",
				GetPageNo(frame), origin)
			logger.Errorf("original record: %s", RecToString(frame, origin))
			logger.Errorf("owner candidate: %s", RecToString(frame, r))
			PrintFrame(frame)
			panic(basic.ErrCorruption)
		}
		if DirGetNthSlotRec(frame, slot) == r {
			return slot
		}
	}
}

// dirAddSlot opens one slot immediately above start. The record pointer and
// n_owned of the opened slot are the caller's responsibility.
func dirAddSlot(frame []byte, start int) {
	nSlots := DirGetNSlots(frame)

	dirSetNSlots(frame, nSlots+1)

	// Shift the slots above start one slot width toward low addresses.
	for i := nSlots - 1; i > start; i-- {
		DirSetNthSlotRec(frame, i+1, DirGetNthSlotRec(frame, i))
	}
}

// dirDeleteSlot removes slot slotNo; the next slot up inherits the deleted
// slot's records.
func dirDeleteSlot(frame []byte, slotNo int) {
	nSlots := DirGetNSlots(frame)

	victim := DirGetNthSlotRec(frame, slotNo)
	nOwned := record.GetNOwned(frame, victim)
	record.SetNOwned(frame, victim, 0)

	heir := DirGetNthSlotRec(frame, slotNo+1)
	record.SetNOwned(frame, heir, nOwned+record.GetNOwned(frame, heir))

	// Compact the higher slots down by one slot width.
	for i := slotNo + 1; i < nSlots; i++ {
		DirSetNthSlotRec(frame, i-1, DirGetNthSlotRec(frame, i))
	}

	// Zero the vacated tail slot.
	util.WriteUB2(frame, DirGetNthSlotOffset(frame, nSlots-1), 0)

	dirSetNSlots(frame, nSlots-1)
}

// dirSplitSlot splits a slot whose owner count has grown past the maximum.
// The new slot is inserted immediately below slotNo and takes the first
// half of the group.
func dirSplitSlot(frame []byte, slotNo int) {
	owner := DirGetNthSlotRec(frame, slotNo)
	nOwned := record.GetNOwned(frame, owner)

	// Walk to a record in the middle of the owned group.
	rec := DirGetNthSlotRec(frame, slotNo-1)
	for i := 0; i < nOwned/2; i++ {
		rec = RecGetNext(frame, rec)
	}

	dirAddSlot(frame, slotNo-1)

	// The added slot is now number slotNo; the old one is slotNo+1.
	DirSetNthSlotRec(frame, slotNo, rec)
	record.SetNOwned(frame, rec, nOwned/2)
	record.SetNOwned(frame, owner, nOwned-nOwned/2)
}

// dirBalanceSlot rebalances a slot whose owner count has dropped below the
// minimum: either one record is transferred from the upper neighbour, or
// the two slots are merged.
func dirBalanceSlot(frame []byte, slotNo int) {
	// The last slot has no upper neighbour to balance with.
	if slotNo == DirGetNSlots(frame)-1 {
		return
	}

	owner := DirGetNthSlotRec(frame, slotNo)
	nOwned := record.GetNOwned(frame, owner)

	up := DirGetNthSlotRec(frame, slotNo+1)
	upNOwned := record.GetNOwned(frame, up)

	if upNOwned > PageDirSlotMinNOwned {
		// Transfer one record from the upper group.
		newOwner := RecGetNext(frame, owner)

		record.SetNOwned(frame, owner, 0)
		record.SetNOwned(frame, newOwner, nOwned+1)

		DirSetNthSlotRec(frame, slotNo, newOwner)

		record.SetNOwned(frame, up, upNOwned-1)
	} else {
		dirDeleteSlot(frame, slotNo)
	}
}
