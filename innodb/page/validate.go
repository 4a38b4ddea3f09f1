package page

import (
	"github.com/filasieno/embedded-innodb/innodb/basic"
	"github.com/filasieno/embedded-innodb/innodb/record"
	"github.com/filasieno/embedded-innodb/logger"
)

// RecValidate checks the bounds of one record's header fields.
func RecValidate(frame []byte, origin int) bool {
	nOwned := record.GetNOwned(frame, origin)
	heapNo := record.GetHeapNo(frame, origin)

	if nOwned > PageDirSlotMaxNOwned {
		logger.Errorf("dir slot of rec %d, n owned too big %d", origin, nOwned)
		return false
	}

	if heapNo >= DirGetNHeap(frame) {
		logger.Errorf("heap no of rec %d too big %d >= %d", origin, heapNo, DirGetNHeap(frame))
		return false
	}

	return true
}

// CheckDir verifies that the boundary slots point at the system records.
func CheckDir(frame []byte) bool {
	nSlots := DirGetNSlots(frame)
	ok := true

	if DirGetNthSlotRec(frame, 0) != PageInfimum {
		logger.Errorf("page directory corruption: infimum not pointed to")
		PrintFrame(frame)
		ok = false
	}

	if DirGetNthSlotRec(frame, nSlots-1) != PageSupremum {
		logger.Errorf("page directory corruption: supremum not pointed to")
		PrintFrame(frame)
		ok = false
	}

	return ok
}

// dirSlotCheck verifies the ownership bounds of one slot.
func dirSlotCheck(frame []byte, slotNo int) bool {
	nSlots := DirGetNSlots(frame)
	rec := DirGetNthSlotRec(frame, slotNo)
	nOwned := record.GetNOwned(frame, rec)

	switch {
	case slotNo == 0:
		return nOwned == 1
	case slotNo == nSlots-1:
		return nOwned >= 1 && nOwned <= PageDirSlotMaxNOwned
	default:
		return nOwned >= PageDirSlotMinNOwned && nOwned <= PageDirSlotMaxNOwned
	}
}

// SimpleValidate runs the structural checks that need no index
// information: heap/directory disjointness, list and directory
// consistency, and the free list.
func SimpleValidate(frame []byte) bool {
	nSlots := DirGetNSlots(frame)

	if nSlots > basic.UnivPageSize/4 {
		logger.Errorf("nonsensical number %d of page dir slots", nSlots)
		return false
	}

	heapTop := GetHeapTop(frame)

	if heapTop > DirGetNthSlotOffset(frame, nSlots-1) {
		logger.Errorf("record heap and dir overlap on a page, heap top %d, dir %d",
			heapTop, DirGetNthSlotOffset(frame, nSlots-1))
		return false
	}

	count := 0
	ownCount := 1
	slotNo := 0

	rec := PageInfimum

	for {
		if rec > heapTop {
			logger.Errorf("record %d is above rec heap top %d", rec, heapTop)
			return false
		}

		if nOwned := record.GetNOwned(frame, rec); nOwned != 0 {
			// A record pointed to by a dir slot.
			if nOwned != ownCount {
				logger.Errorf("wrong owned count %d, %d, rec %d", nOwned, ownCount, rec)
				return false
			}

			if DirGetNthSlotRec(frame, slotNo) != rec {
				logger.Errorf("dir slot does not point to right rec %d", rec)
				return false
			}

			ownCount = 0

			if !IsSupremum(rec) {
				slotNo++
			}
		}

		if IsSupremum(rec) {
			break
		}

		next := record.GetNextOffs(frame, rec)
		if next < FilPageData || next >= basic.UnivPageSize {
			logger.Errorf("next record offset nonsensical %d for rec %d", next, rec)
			return false
		}

		count++
		if count > basic.UnivPageSize {
			logger.Errorf("page record list appears to be circular %d", count)
			return false
		}

		rec = next
		ownCount++
	}

	if record.GetNOwned(frame, PageSupremum) == 0 {
		logger.Errorf("n owned is zero in the supremum rec")
		return false
	}

	if slotNo != nSlots-1 {
		logger.Errorf("n slots wrong %d, %d", slotNo, nSlots-1)
		return false
	}

	if GetNRecs(frame)+PageHeapNoUserLow != count+1 {
		logger.Errorf("n recs wrong %d %d", GetNRecs(frame)+PageHeapNoUserLow, count+1)
		return false
	}

	// Check then the free list.
	rec = GetFree(frame)

	for rec != 0 {
		if rec < FilPageData || rec >= basic.UnivPageSize {
			logger.Errorf("free list record has a nonsensical offset %d", rec)
			return false
		}

		if rec > heapTop {
			logger.Errorf("free list record %d is above rec heap top %d", rec, heapTop)
			return false
		}

		count++
		if count > basic.UnivPageSize {
			logger.Errorf("page free list appears to be circular %d", count)
			return false
		}

		rec = record.GetNextOffs(frame, rec)
	}

	if DirGetNHeap(frame) != count+1 {
		logger.Errorf("n heap is wrong %d, %d", DirGetNHeap(frame), count+1)
		return false
	}

	return true
}

// Validate performs the exhaustive check: SimpleValidate, strict key order
// between adjacent records, a shadow bitmap proving that no two record
// byte ranges overlap in either the live list or the free list, and the
// data-size cross-check. Any violation logs a page dump and returns false.
func Validate(frame []byte, meta *record.Meta) bool {
	if !validateLow(frame, meta) {
		logger.Errorf("apparent corruption in space %d page %d",
			GetSpaceID(frame), GetPageNo(frame))
		PrintFrame(frame)
		return false
	}
	return true
}

func validateLow(frame []byte, meta *record.Meta) bool {
	if !SimpleValidate(frame) {
		return false
	}

	if !CheckDir(frame) {
		return false
	}

	// Shadow bitmap: every record byte must be painted exactly once.
	shadow := make([]byte, basic.UnivPageSize)

	paint := func(origin int, offs record.Offsets) bool {
		start := record.Start(origin, offs)
		size := offs.Size()
		if start+size >= basic.UnivPageSize {
			logger.Errorf("record offset out of bounds")
			return false
		}
		for i := 0; i < size; i++ {
			if shadow[start+i] != 0 {
				logger.Errorf("record overlaps another at offset %d", start+i)
				return false
			}
			shadow[start+i] = 1
		}
		return true
	}

	count := 0
	ownCount := 1
	slotNo := 0
	dataSize := 0

	rec := PageInfimum
	oldRec := 0
	var oldOffs record.Offsets

	for {
		offs := record.GetColOffsets(frame, rec)

		if !RecValidate(frame, rec) {
			return false
		}

		// Records must be in strictly ascending key order.
		if count >= PageHeapNoUserLow && !IsSupremum(rec) {
			if record.CmpRecRec(meta, frame, rec, offs, frame, oldRec, oldOffs) != 1 {
				logger.Errorf("records in wrong order on space %d page %d",
					GetSpaceID(frame), GetPageNo(frame))
				logger.Errorf("previous record %s", RecToString(frame, oldRec))
				logger.Errorf("record %s", RecToString(frame, rec))
				return false
			}
		}

		if IsUserRec(rec) {
			dataSize += offs.Size()
		}

		if !paint(rec, offs) {
			return false
		}

		if recOwnCount := record.GetNOwned(frame, rec); recOwnCount != 0 {
			if recOwnCount != ownCount {
				logger.Errorf("wrong owned count %d, %d", recOwnCount, ownCount)
				return false
			}

			if DirGetNthSlotRec(frame, slotNo) != rec {
				logger.Errorf("dir slot does not point to right rec")
				return false
			}

			if !dirSlotCheck(frame, slotNo) {
				logger.Errorf("dir slot %d out of bounds", slotNo)
				return false
			}

			ownCount = 0
			if !IsSupremum(rec) {
				slotNo++
			}
		}

		if IsSupremum(rec) {
			break
		}

		count++
		ownCount++
		oldRec = rec
		oldOffs = offs
		rec = RecGetNext(frame, rec)
	}

	if record.GetNOwned(frame, rec) == 0 {
		logger.Errorf("n owned is zero")
		return false
	}

	if slotNo != DirGetNSlots(frame)-1 {
		logger.Errorf("n slots wrong %d %d", slotNo, DirGetNSlots(frame)-1)
		return false
	}

	if GetNRecs(frame)+PageHeapNoUserLow != count+1 {
		logger.Errorf("n recs wrong %d %d", GetNRecs(frame)+PageHeapNoUserLow, count+1)
		return false
	}

	if dataSize != GetDataSize(frame) {
		logger.Errorf("summed data size %d, returned by func %d", dataSize, GetDataSize(frame))
		return false
	}

	// Check then the free list.
	for rec = GetFree(frame); rec != 0; rec = record.GetNextOffs(frame, rec) {
		offs := record.GetColOffsets(frame, rec)

		if !RecValidate(frame, rec) {
			return false
		}

		count++

		if !paint(rec, offs) {
			return false
		}
	}

	if DirGetNHeap(frame) != count+1 {
		logger.Errorf("n heap is wrong %d %d", DirGetNHeap(frame), count+1)
		return false
	}

	return true
}
