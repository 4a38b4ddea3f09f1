// Package lock keeps the record-lock bookkeeping the page core must notify
// when it moves record lists between pages. Conflict resolution and waiting
// belong to the full lock manager outside this core.
package lock

import (
	"sync"

	"github.com/filasieno/embedded-innodb/innodb/basic"
	"github.com/filasieno/embedded-innodb/innodb/buffer_pool"
	"github.com/filasieno/embedded-innodb/innodb/page"
	"github.com/filasieno/embedded-innodb/innodb/record"
)

// Mode of a record lock.
type Mode int

const (
	LockS Mode = iota
	LockX
)

type lockKey struct {
	space  basic.SpaceID
	pageNo basic.PageNo
	heapNo int
}

type lockEntry struct {
	trx  basic.TrxID
	mode Mode
}

// Sys is the record-lock table keyed by (space, page, heap_no).
type Sys struct {
	mu    sync.Mutex
	locks map[lockKey][]lockEntry
}

func NewSys() *Sys {
	return &Sys{locks: make(map[lockKey][]lockEntry)}
}

// AddRecordLock registers a lock on the record with the given heap number.
func (s *Sys) AddRecordLock(block *buffer_pool.BufferBlock, heapNo int, trx basic.TrxID, mode Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := lockKey{block.SpaceID(), block.PageNo(), heapNo}
	s.locks[key] = append(s.locks[key], lockEntry{trx, mode})
}

// LocksOn returns the number of locks held on the record.
func (s *Sys) LocksOn(block *buffer_pool.BufferBlock, heapNo int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.locks[lockKey{block.SpaceID(), block.PageNo(), heapNo}])
}

// moveLock transfers the lock list of one record to its copy.
func (s *Sys) moveLock(from, to lockKey) {
	if entries, ok := s.locks[from]; ok {
		s.locks[to] = append(s.locks[to], entries...)
		delete(s.locks, from)
	}
}

// MoveRecListEnd implements page.LockSys: the records from rec onward were
// copied to the start of newBlock's record list in order; their locks
// follow by walking both lists in parallel.
func (s *Sys) MoveRecListEnd(newBlock, block *buffer_pool.BufferBlock, rec int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	frame := block.Frame()
	newFrame := newBlock.Frame()

	oldRec := rec
	if page.IsInfimum(oldRec) {
		oldRec = page.RecGetNext(frame, oldRec)
	}
	newRec := page.RecGetNext(newFrame, page.PageInfimum)

	for !page.IsSupremum(oldRec) {
		s.moveLock(
			lockKey{block.SpaceID(), block.PageNo(), record.GetHeapNo(frame, oldRec)},
			lockKey{newBlock.SpaceID(), newBlock.PageNo(), record.GetHeapNo(newFrame, newRec)},
		)
		oldRec = page.RecGetNext(frame, oldRec)
		newRec = page.RecGetNext(newFrame, newRec)
	}
}

// MoveRecListStart implements page.LockSys for the copy-before-rec case;
// oldEnd is the record on newBlock after which the copies were placed.
func (s *Sys) MoveRecListStart(newBlock, block *buffer_pool.BufferBlock, rec int, oldEnd int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	frame := block.Frame()
	newFrame := newBlock.Frame()

	oldRec := page.RecGetNext(frame, page.PageInfimum)
	newRec := page.RecGetNext(newFrame, oldEnd)

	for oldRec != rec {
		s.moveLock(
			lockKey{block.SpaceID(), block.PageNo(), record.GetHeapNo(frame, oldRec)},
			lockKey{newBlock.SpaceID(), newBlock.PageNo(), record.GetHeapNo(newFrame, newRec)},
		)
		oldRec = page.RecGetNext(frame, oldRec)
		newRec = page.RecGetNext(newFrame, newRec)
	}
}
