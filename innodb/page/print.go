package page

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/filasieno/embedded-innodb/innodb/record"
	"github.com/filasieno/embedded-innodb/logger"
)

// RecToString renders one record header and payload for diagnostics.
func RecToString(frame []byte, origin int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "rec offs %d: n_owned %d; heap_no %d; status %d; next %d;",
		origin,
		record.GetNOwned(frame, origin),
		record.GetHeapNo(frame, origin),
		record.GetStatus(frame, origin),
		record.GetNextOffs(frame, origin))

	offs := record.GetColOffsets(frame, origin)
	for i := 0; i < offs.NFields(); i++ {
		data, length := record.GetNthField(frame, origin, offs, i)
		if data == nil {
			fmt.Fprintf(&sb, " f%d=NULL;", i)
		} else {
			fmt.Fprintf(&sb, " f%d=%x(len %d);", i, data, length)
		}
	}
	return sb.String()
}

// HeaderPrint logs the page header fields.
func HeaderPrint(frame []byte) {
	logger.Errorf("PAGE HEADER INFO: space %d page %d, n records %d, "+
		"n dir slots %d, heap top %d, n heap %d, free %d, garbage %d, "+
		"last insert %d, direction %d, n direction %d",
		GetSpaceID(frame), GetPageNo(frame), GetNRecs(frame),
		DirGetNSlots(frame), GetHeapTop(frame), DirGetNHeap(frame),
		GetFree(frame), GetGarbage(frame),
		HeaderGetField(frame, PageLastInsert),
		HeaderGetField(frame, PageDirection),
		HeaderGetField(frame, PageNDirection))
}

// DirPrint logs the directory slots.
func DirPrint(frame []byte) {
	n := DirGetNSlots(frame)
	logger.Errorf("PAGE DIRECTORY: %d slots, stack top at offs %d",
		n, DirGetNthSlotOffset(frame, n-1))
	for i := 0; i < n; i++ {
		rec := DirGetNthSlotRec(frame, i)
		logger.Errorf("slot %d: n_owned %d, rec offs %d",
			i, record.GetNOwned(frame, rec), rec)
	}
}

// ListPrint logs the first prN+1 entries of the record list (infimum
// included) and the last prN (supremum included).
func ListPrint(frame []byte, prN int) {
	nRecs := GetNRecs(frame)
	logger.Errorf("PAGE RECORD LIST: %d user records", nRecs)

	count := 0
	rec := PageInfimum
	for {
		if count <= prN || count+prN >= nRecs+PageHeapNoUserLow {
			logger.Errorf("%s", RecToString(frame, rec))
		} else if count == prN+1 {
			logger.Errorf("  ...")
		}
		if IsSupremum(rec) {
			break
		}
		rec = RecGetNext(frame, rec)
		count++
	}
}

// PrintFrame dumps the header, the directory, the record list and a hex
// image of the page; the last diagnostic before a corruption abort.
func PrintFrame(frame []byte) {
	HeaderPrint(frame)
	DirPrint(frame)
	ListPrint(frame, 5)
	logger.Errorf("PAGE HEX DUMP:\n%s", hex.Dump(frame))
}
