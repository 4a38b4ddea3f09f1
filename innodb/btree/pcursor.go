package btree

import (
	"github.com/filasieno/embedded-innodb/innodb/dict"
	"github.com/filasieno/embedded-innodb/innodb/mtr"
	"github.com/filasieno/embedded-innodb/innodb/page"
	"github.com/filasieno/embedded-innodb/innodb/record"
)

// PCursor is a persistent cursor: it can give up its page latches at an
// mtr commit and later reacquire them, restoring its logical position by
// the stored record image when the page changed underneath.
type PCursor struct {
	btrCur Cursor

	storedTuple *record.DTuple
	storedClock uint64
	storedRec   int
	posStored   bool
}

// GetBtrCur exposes the underlying cursor.
func (p *PCursor) GetBtrCur() *Cursor {
	return &p.btrCur
}

// Index returns the index the cursor descends.
func (p *PCursor) Index() *dict.Index {
	return p.btrCur.Index
}

// Rec returns the current record offset.
func (p *PCursor) Rec() int {
	return p.btrCur.Rec
}

// Open positions the cursor on the index for tuple; returns exact match.
func (p *PCursor) Open(index *dict.Index, tuple *record.DTuple, mode LatchMode, space SpaceReserver, m *mtr.Mtr) bool {
	p.btrCur.Index = index
	p.btrCur.Space = space
	found := p.btrCur.Search(tuple, mode, m)
	p.StorePosition()
	return found
}

// StorePosition snapshots the current record and the block modify clock.
// The block latch must still be held.
func (p *PCursor) StorePosition() {
	frame := p.btrCur.Block.Frame()
	rec := p.btrCur.Rec

	if page.IsUserRec(rec) {
		offs := record.GetColOffsets(frame, rec)
		p.storedTuple = record.RecToTuple(frame, rec, offs)
	} else {
		p.storedTuple = nil
	}
	p.storedRec = rec
	p.storedClock = p.btrCur.Block.ModifyClock()
	p.posStored = true
}

// RestorePosition relatches the tree and puts the cursor back on its
// record. If the page was not restructured in between, the old offset is
// still valid; otherwise the stored record image is searched again.
// Returns whether the record was found.
func (p *PCursor) RestorePosition(mode LatchMode, m *mtr.Mtr) bool {
	if !p.posStored {
		return false
	}

	p.btrCur.latchRoot(mode, m)

	if p.btrCur.Block.ModifyClock() == p.storedClock {
		p.btrCur.Rec = p.storedRec
		return true
	}

	if p.storedTuple == nil {
		return false
	}

	cur, exact := page.SearchLE(p.btrCur.Block, p.btrCur.Index.Meta, p.storedTuple)
	p.btrCur.Rec = cur.Rec
	return exact
}

// CommitSpecifyMtr stores the position and commits the mtr, releasing the
// latches while keeping the cursor restorable.
func (p *PCursor) CommitSpecifyMtr(m *mtr.Mtr) {
	if p.btrCur.Block != nil {
		p.StorePosition()
	}
	m.Commit()
}

// Close detaches the cursor from its position.
func (p *PCursor) Close() {
	p.btrCur = Cursor{}
	p.storedTuple = nil
	p.posStored = false
}

// SearchIndexEntry opens pcur on the index entry; found means an exact
// match is positioned on.
func SearchIndexEntry(index *dict.Index, entry *record.DTuple, mode LatchMode, pcur *PCursor, space SpaceReserver, m *mtr.Mtr) bool {
	return pcur.Open(index, entry, mode, space, m)
}
