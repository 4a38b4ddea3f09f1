// Package trx carries the transaction handles the undo core operates on:
// the per-transaction undo log, the undo-number window of the current
// rollback, and the transaction-system low-water mark that decides whether
// delete-marked versions must be preserved.
package trx

import (
	"sync"

	"github.com/filasieno/embedded-innodb/innodb/basic"
)

const trxMagicN = 91118598

// UndoLogEntry is one raw undo record of a transaction.
type UndoLogEntry struct {
	UndoNo basic.UndoNo
	Data   []byte
}

// Trx is a transaction handle.
type Trx struct {
	mu sync.Mutex

	magicN uint32

	ID basic.TrxID

	// RollLimit is the undo number the current rollback stops at:
	// records with undo_no >= RollLimit are undone.
	RollLimit basic.UndoNo

	// Recv marks a transaction being rolled back by crash recovery.
	Recv bool

	// DictOperationXLocked is set while the transaction holds the
	// dictionary structure lock exclusively.
	DictOperationXLocked bool

	undoLog []UndoLogEntry
	nextNo  basic.UndoNo

	// reserved tracks undo numbers handed out by UndoRecReserve and not
	// yet released.
	reserved map[basic.UndoNo]bool
}

func NewTrx(id basic.TrxID) *Trx {
	return &Trx{
		magicN:   trxMagicN,
		ID:       id,
		reserved: make(map[basic.UndoNo]bool),
	}
}

// AssertValid aborts on a clobbered handle.
func (t *Trx) AssertValid() {
	if t.magicN != trxMagicN {
		panic("trx: magic number mismatch")
	}
}

// IsRecv reports recovery rollback.
func (t *Trx) IsRecv() bool {
	return t.Recv
}

// UndoLogAppend stores a new undo record and returns its undo number.
func (t *Trx) UndoLogAppend(data []byte) basic.UndoNo {
	t.mu.Lock()
	defer t.mu.Unlock()

	no := t.nextNo
	t.nextNo++
	t.undoLog = append(t.undoLog, UndoLogEntry{UndoNo: no, Data: data})
	return no
}

// UndoRecByNo fetches the raw undo record with the given number.
func (t *Trx) UndoRecByNo(no basic.UndoNo) []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.undoLog {
		if t.undoLog[i].UndoNo == no {
			return t.undoLog[i].Data
		}
	}
	return nil
}

// MaxUndoNo returns the undo number one past the newest record.
func (t *Trx) MaxUndoNo() basic.UndoNo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nextNo
}

// UndoRecReserve claims the undo number for one undoing thread. Returns
// false when another thread already holds it.
func (t *Trx) UndoRecReserve(no basic.UndoNo) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.reserved[no] {
		return false
	}
	t.reserved[no] = true
	return true
}

// UndoRecRelease returns a reserved undo number.
func (t *Trx) UndoRecRelease(no basic.UndoNo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.reserved, no)
}

// Roll pointer encoding: the insert flag in the top bit, the transaction
// id and undo number below it. A zero roll pointer marks a version chain
// end.
const (
	rollPtrInsertFlag = uint64(1) << 63
	rollPtrTrxShift   = 24
	rollPtrUndoMask   = (uint64(1) << rollPtrTrxShift) - 1
)

// MakeRollPtr builds a roll pointer.
func MakeRollPtr(insert bool, trxID basic.TrxID, undoNo basic.UndoNo) basic.RollPtr {
	v := uint64(trxID)<<rollPtrTrxShift | uint64(undoNo)&rollPtrUndoMask
	if insert {
		v |= rollPtrInsertFlag
	}
	return basic.RollPtr(v)
}

// RollPtrIsInsert reports the insert flag.
func RollPtrIsInsert(ptr basic.RollPtr) bool {
	return uint64(ptr)&rollPtrInsertFlag != 0
}

// RollPtrTrxID extracts the transaction id.
func RollPtrTrxID(ptr basic.RollPtr) basic.TrxID {
	return basic.TrxID(uint64(ptr) &^ rollPtrInsertFlag >> rollPtrTrxShift)
}

// RollPtrUndoNo extracts the undo number.
func RollPtrUndoNo(ptr basic.RollPtr) basic.UndoNo {
	return basic.UndoNo(uint64(ptr) & rollPtrUndoMask)
}

// Sys is the transaction system: the live transaction registry and the
// purge low-water mark.
type Sys struct {
	mu     sync.RWMutex
	trxs   map[basic.TrxID]*Trx
	nextID basic.TrxID

	// lowWater is the oldest transaction id some read view may still
	// need; delete-marked versions at or above it must be preserved.
	lowWater basic.TrxID
}

func NewSys() *Sys {
	return &Sys{trxs: make(map[basic.TrxID]*Trx), nextID: 1}
}

// Begin creates and registers a transaction.
func (s *Sys) Begin() *Trx {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := NewTrx(s.nextID)
	s.nextID++
	s.trxs[t.ID] = t
	return t
}

// Get resolves a transaction id; nil if unknown (already purged).
func (s *Sys) Get(id basic.TrxID) *Trx {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trxs[id]
}

// SetLowWater moves the purge low-water mark.
func (s *Sys) SetLowWater(id basic.TrxID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lowWater = id
}

// MustPreserve reports whether a version stamped with trxID may still be
// visible to some view and therefore must not be physically removed.
func (s *Sys) MustPreserve(trxID basic.TrxID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return trxID >= s.lowWater
}
