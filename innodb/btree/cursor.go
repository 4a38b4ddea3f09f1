// Package btree provides the cursor operations the undo core drives:
// optimistic and pessimistic delete and update on single-level index
// trees, and the persistent cursor that survives mtr commits.
package btree

import (
	"github.com/juju/errors"

	"github.com/filasieno/embedded-innodb/innodb/basic"
	"github.com/filasieno/embedded-innodb/innodb/buffer_pool"
	"github.com/filasieno/embedded-innodb/innodb/dict"
	"github.com/filasieno/embedded-innodb/innodb/mtr"
	"github.com/filasieno/embedded-innodb/innodb/page"
	"github.com/filasieno/embedded-innodb/innodb/record"
)

// LatchMode selects the descent kind.
type LatchMode int

const (
	// ModifyLeaf latches the leaf exclusively for an optimistic change.
	ModifyLeaf LatchMode = iota
	// ModifyTree is the pessimistic descent that may restructure the tree.
	ModifyTree
	// SearchLeaf latches the leaf shared, for reading.
	SearchLeaf
)

// Operation flag bits, passed by rollback to keep locking and undo logging
// out of its own page mutations.
const (
	NoUndoLogFlag = 1 << iota
	NoLockingFlag
	KeepSysFlag
)

// SpaceReserver stands for the file-space allocator: pessimistic
// operations reserve free extents before restructuring.
type SpaceReserver interface {
	ReserveFreeExtents(n int) error
}

// DefaultSpace never runs out.
type DefaultSpace struct{}

func (DefaultSpace) ReserveFreeExtents(int) error { return nil }

// Cursor is a B-tree cursor positioned on one record.
type Cursor struct {
	Index *dict.Index
	Block *buffer_pool.BufferBlock
	Rec   int

	// Space is consulted by the pessimistic paths; nil means unlimited.
	Space SpaceReserver
}

func (c *Cursor) space() SpaceReserver {
	if c.Space == nil {
		return DefaultSpace{}
	}
	return c.Space
}

func (c *Cursor) frame() []byte {
	return c.Block.Frame()
}

// latchRoot latches the index root according to the mode and positions the
// cursor block.
func (c *Cursor) latchRoot(mode LatchMode, m *mtr.Mtr) {
	c.Block = c.Index.Root
	if mode == SearchLeaf {
		m.SLatch(c.Block)
	} else {
		m.XLatch(c.Block)
	}
}

// Search descends to the record with the greatest key not above tuple.
// Returns whether the position matches tuple exactly.
func (c *Cursor) Search(tuple *record.DTuple, mode LatchMode, m *mtr.Mtr) bool {
	c.latchRoot(mode, m)

	cur, exact := page.SearchLE(c.Block, c.Index.Meta, tuple)
	c.Rec = cur.Rec
	return exact
}

// IsPositioned reports whether the cursor stands on a user record.
func (c *Cursor) IsPositioned() bool {
	return c.Block != nil && page.IsUserRec(c.Rec)
}

// OptimisticDelete removes the record if that needs no tree change.
// Records with externally stored columns take the pessimistic path, which
// owns the overflow page bookkeeping.
func (c *Cursor) OptimisticDelete(m *mtr.Mtr) bool {
	offs := record.GetColOffsets(c.frame(), c.Rec)

	if offs.AnyExtern() {
		return false
	}

	cur := page.CurPosition(c.Block, c.Rec)
	page.DeleteRec(&cur, offs, m)
	return true
}

// PessimisticDelete removes the record after reserving file space for the
// possible tree compression. Returns ErrOutOfFileSpace when the reserve
// fails.
func (c *Cursor) PessimisticDelete(m *mtr.Mtr) error {
	if err := c.space().ReserveFreeExtents(1); err != nil {
		return basic.ErrOutOfFileSpace
	}

	offs := record.GetColOffsets(c.frame(), c.Rec)
	cur := page.CurPosition(c.Block, c.Rec)
	page.DeleteRec(&cur, offs, m)
	return nil
}

// DelMarkSetSecRec sets or clears the delete mark of a secondary index
// record, logging the change.
func (c *Cursor) DelMarkSetSecRec(_ int, val bool, m *mtr.Mtr) error {
	record.SetDeletedFlag(c.frame(), c.Rec, val)

	w := m.OpenAndWriteIndex(c.Block, uint16(c.Rec), mtr.MLOG_REC_SEC_DELETE_MARK)
	flag := uint16(0)
	if val {
		flag = 1
	}
	w.WriteUlint2(flag)
	w.Close()

	return nil
}

// applyUpdate rebuilds the record with the update applied. The in-place
// path keeps the record bytes where they are; otherwise the record is
// deleted and reinserted, reorganizing the page when the contiguous space
// is insufficient.
func (c *Cursor) applyUpdate(update *record.Update, m *mtr.Mtr, pessimistic bool) error {
	frame := c.frame()
	offs := record.GetColOffsets(frame, c.Rec)

	oldTuple := record.RecToTuple(frame, c.Rec, offs)
	newTuple := oldTuple.Copy()
	update.ApplyToTuple(newTuple)

	newExtra, newData := record.TupleRecSize(newTuple)
	newSize := newExtra + newData

	if newSize == offs.Size() {
		// Same footprint: overwrite in place, preserving the list linkage
		// fields of the header.
		nOwned := record.GetNOwned(frame, c.Rec)
		heapNo := record.GetHeapNo(frame, c.Rec)
		next := record.GetNextOffs(frame, c.Rec)

		scratch := make([]byte, newSize)
		record.ConvertTupleToRec(scratch, 0, newTuple)
		copy(frame[record.Start(c.Rec, offs):], scratch[:newSize])

		record.SetNOwned(frame, c.Rec, nOwned)
		record.SetHeapNo(frame, c.Rec, heapNo)
		record.SetNextOffs(frame, c.Rec, next)

		w := m.OpenAndWriteIndex(c.Block, uint16(c.Rec), mtr.MLOG_REC_UPDATE_IN_PLACE)
		w.WriteUlint2(uint16(newSize))
		w.Close()

		return nil
	}

	if page.GetMaxInsertSizeAfterReorganize(frame, 1) < newSize {
		return basic.ErrOverflow
	}

	prev := page.RecGetPrev(frame, c.Rec)

	cur := page.CurPosition(c.Block, c.Rec)
	page.DeleteRec(&cur, offs, m)

	newRec, ok := page.InsertTuple(c.Block, prev, newTuple, m)
	if !ok {
		if !pessimistic {
			// The contiguous space is gone; reorganize to reclaim the
			// garbage and retry the insert once.
			page.Reorganize(c.Block, m)
			prev = c.repositionPrev(newTuple)
			newRec, ok = page.InsertTuple(c.Block, prev, newTuple, m)
		}
		if !ok {
			return basic.ErrOverflow
		}
	}

	c.Rec = newRec
	return nil
}

// repositionPrev finds the insert position for tuple after a reorganize
// moved every record.
func (c *Cursor) repositionPrev(tuple *record.DTuple) int {
	cur, _ := page.SearchLE(c.Block, c.Index.Meta, tuple)
	return cur.Rec
}

// OptimisticUpdate applies the update keeping the change within the page.
// Returns ErrOverflow when the new record cannot be placed this way, and
// ErrFail when the update moves the record in key order. It never returns
// ErrUnderflow.
func (c *Cursor) OptimisticUpdate(_ int, update *record.Update, _ int, m *mtr.Mtr) error {
	if update.NFields() == 0 {
		return nil
	}

	if record.ChangesOrdFieldBinary(c.Index.Meta, update) && c.orderWouldMove(update) {
		return basic.ErrFail
	}

	return c.applyUpdate(update, m, false)
}

// orderWouldMove reports whether applying the update changes the record's
// position relative to its neighbours.
func (c *Cursor) orderWouldMove(update *record.Update) bool {
	frame := c.frame()
	offs := record.GetColOffsets(frame, c.Rec)

	newTuple := record.RecToTuple(frame, c.Rec, offs).Copy()
	update.ApplyToTuple(newTuple)

	prev := page.RecGetPrev(frame, c.Rec)
	if page.IsUserRec(prev) {
		prevOffs := record.GetColOffsets(frame, prev)
		if record.CmpDtupleRec(c.Index.Meta, newTuple, frame, prev, prevOffs) < 0 {
			return true
		}
	}

	next := page.RecGetNext(frame, c.Rec)
	if page.IsUserRec(next) {
		nextOffs := record.GetColOffsets(frame, next)
		if record.CmpDtupleRec(c.Index.Meta, newTuple, frame, next, nextOffs) > 0 {
			return true
		}
	}

	return false
}

// PessimisticUpdate reserves file space and applies the update with the
// full-tree latitude: the page may be reorganized, and in a multi-level
// tree the record could migrate. Returns ErrOutOfFileSpace when the
// reserve fails.
func (c *Cursor) PessimisticUpdate(_ int, update *record.Update, _ int, m *mtr.Mtr) error {
	if update.NFields() == 0 {
		return nil
	}

	if err := c.space().ReserveFreeExtents(1); err != nil {
		return basic.ErrOutOfFileSpace
	}

	frame := c.frame()
	offs := record.GetColOffsets(frame, c.Rec)

	newTuple := record.RecToTuple(frame, c.Rec, offs).Copy()
	update.ApplyToTuple(newTuple)

	// Remove and reinsert at the correct position; reorganize first so the
	// heap is compact.
	cur := page.CurPosition(c.Block, c.Rec)
	page.DeleteRec(&cur, offs, m)

	page.Reorganize(c.Block, m)

	prev := c.repositionPrev(newTuple)
	newRec, ok := page.InsertTuple(c.Block, prev, newTuple, m)
	if !ok {
		return basic.ErrOutOfFileSpace
	}

	c.Rec = newRec
	return nil
}

// InsertEntry descends and inserts the tuple at its key position; the DML
// side uses this to build test data and index loads.
func InsertEntry(index *dict.Index, tuple *record.DTuple, m *mtr.Mtr) error {
	var cur Cursor
	cur.Index = index
	cur.Search(tuple, ModifyLeaf, m)

	if _, ok := page.InsertTuple(cur.Block, cur.Rec, tuple, m); !ok {
		return errors.Trace(basic.ErrOutOfFileSpace)
	}
	return nil
}

// CreateIndex materializes the root page of an index.
func CreateIndex(index *dict.Index, block *buffer_pool.BufferBlock, m *mtr.Mtr) {
	index.Root = block
	m.XLatch(block)
	page.Create(block, m, index.ID, 0)
}
