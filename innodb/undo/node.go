package undo

import (
	"time"

	"github.com/filasieno/embedded-innodb/innodb/basic"
	"github.com/filasieno/embedded-innodb/innodb/btree"
	"github.com/filasieno/embedded-innodb/innodb/dict"
	"github.com/filasieno/embedded-innodb/innodb/mtr"
	"github.com/filasieno/embedded-innodb/innodb/record"
	"github.com/filasieno/embedded-innodb/innodb/trx"
)

// Pessimistic delete retry policy under file-space pressure.
const (
	BtrCurRetryDeleteNTimes = 100
	BtrCurRetrySleepTime    = 50 * time.Millisecond
)

// OsThreadSleep suspends the undoing thread between pessimistic retries;
// tests swap it to count the waits.
var OsThreadSleep = func(d time.Duration) { time.Sleep(d) }

// State of an undo node.
type State int

const (
	// StateInsert undoes a fresh clustered insert.
	StateInsert State = iota + 1
	// StateModify undoes an update or delete mark.
	StateModify
	// StateFetchNext means the node is done and the driver should pop the
	// next undo record.
	StateFetchNext
	// StatePrevVers means the same row's previous version must be undone
	// before fetching the next record.
	StatePrevVers
)

// Env carries the process-wide state the undo core reads: the forced
// recovery level, the dictionary cache, the transaction system, the redo
// handle and the file-space allocator. Nothing here is written by the
// core.
type Env struct {
	Recovery basic.RecoveryLevel
	Dict     *dict.Cache
	TrxSys   *trx.Sys
	Log      mtr.RedoSink
	Space    btree.SpaceReserver
}

func (e *Env) newMtr() *mtr.Mtr {
	return mtr.New(e.Log)
}

// Node is the per-row rollback state machine.
type Node struct {
	State State
	Trx   *trx.Trx

	// Pcur stays positioned on the clustered record across mtr commits.
	Pcur btree.PCursor

	UndoRec []byte
	UndoNo  basic.UndoNo

	RecType  byte
	CmplInfo byte
	Update   *record.Update
	Ref      *record.DTuple

	Table *dict.Table

	// Row is the current clustered row image; Ext maps row positions of
	// externally stored columns to their full values when available.
	Row *record.DTuple
	Ext map[int][]byte

	// UndoRow/UndoExt are the previous version of the row, rebuilt by
	// applying the undo update vector.
	UndoRow *record.DTuple
	UndoExt map[int][]byte

	// NewTrxID/NewRollPtr are the system columns the rollback restores,
	// i.e. those of the version before the undone change.
	NewTrxID   basic.TrxID
	NewRollPtr basic.RollPtr

	// NewUndoNo is set when the previous version falls inside the same
	// rollback and must be undone next.
	NewUndoNo basic.UndoNo

	// Index iterates the secondary indexes during modify rollback.
	Index *dict.Index
}

// NewNode builds a node for one popped undo record.
func NewNode(t *trx.Trx, undoRec []byte, undoNo basic.UndoNo) *Node {
	state := StateModify
	if len(undoRec) > 0 && undoRec[0] == TrxUndoInsertRec {
		state = StateInsert
	}
	return &Node{
		State:   state,
		Trx:     t,
		UndoRec: undoRec,
		UndoNo:  undoNo,
	}
}
