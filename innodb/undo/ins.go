package undo

import (
	stderrors "errors"

	"github.com/filasieno/embedded-innodb/innodb/basic"
	"github.com/filasieno/embedded-innodb/innodb/btree"
	"github.com/filasieno/embedded-innodb/innodb/dict"
	"github.com/filasieno/embedded-innodb/innodb/record"
	"github.com/filasieno/embedded-innodb/logger"
)

// rowUndoInsRemoveClustRec removes the clustered index record the node's
// cursor references. Rolling back an insert into SYS_INDEXES also drops
// the index tree the row described, under the dictionary X-latch.
func rowUndoInsRemoveClustRec(env *Env, node *Node) error {
	m := env.newMtr()
	m.Start()

	if !node.Pcur.RestorePosition(btree.ModifyLeaf, m) {
		panic("undo: lost position of clustered record")
	}

	if node.Table.ID == dict.DictIndexesID {
		if !node.Trx.DictOperationXLocked {
			panic("undo: SYS_INDEXES rollback without dict lock")
		}

		// Drop the index tree associated with the row in SYS_INDEXES.
		cur := node.Pcur.GetBtrCur()
		env.Dict.DropIndexTree(cur.Block.Frame(), cur.Rec)

		m.Commit()
		m.Start()

		if !node.Pcur.RestorePosition(btree.ModifyLeaf, m) {
			panic("undo: lost position of SYS_INDEXES record")
		}
	}

	btrCur := node.Pcur.GetBtrCur()

	success := btrCur.OptimisticDelete(m)

	node.Pcur.CommitSpecifyMtr(m)

	if success {
		node.Trx.UndoRecRelease(node.UndoNo)
		return nil
	}

	// Pessimistic descent, retried a bounded number of times when the
	// file space runs out.
	for nTries := 0; ; {
		m.Start()

		if !node.Pcur.RestorePosition(btree.ModifyTree, m) {
			panic("undo: lost position of clustered record")
		}

		err := node.Pcur.GetBtrCur().PessimisticDelete(m)

		if stderrors.Is(err, basic.ErrOutOfFileSpace) && nTries < BtrCurRetryDeleteNTimes {
			node.Pcur.CommitSpecifyMtr(m)

			nTries++
			OsThreadSleep(BtrCurRetrySleepTime)
			continue
		}

		node.Pcur.CommitSpecifyMtr(m)

		node.Trx.UndoRecRelease(node.UndoNo)

		return err
	}
}

// rowUndoInsRemoveSecLow removes a secondary index entry if found, with
// the descent mode the caller chose.
func rowUndoInsRemoveSecLow(env *Env, mode btree.LatchMode, index *dict.Index, entry *record.DTuple) error {
	env.Log.FreeCheck()

	var pcur btree.PCursor

	m := env.newMtr()
	m.Start()

	found := btree.SearchIndexEntry(index, entry, mode, &pcur, env.Space, m)
	btrCur := pcur.GetBtrCur()

	if !found {
		// Already removed, or never installed.
		pcur.Close()
		m.Commit()
		return nil
	}

	var err error
	if mode == btree.ModifyLeaf {
		if !btrCur.OptimisticDelete(m) {
			err = basic.ErrFail
		}
	} else {
		// A secondary index record carries no externally stored columns,
		// so the rollback kind makes no difference here.
		err = btrCur.PessimisticDelete(m)
	}

	pcur.Close()
	m.Commit()

	return err
}

// rowUndoInsRemoveSec removes a secondary index entry: first the
// optimistic descent, then bounded pessimistic retries under file-space
// pressure.
func rowUndoInsRemoveSec(env *Env, index *dict.Index, entry *record.DTuple) error {
	err := rowUndoInsRemoveSecLow(env, btree.ModifyLeaf, index, entry)
	if err == nil {
		return nil
	}

	for nTries := 0; ; nTries++ {
		err = rowUndoInsRemoveSecLow(env, btree.ModifyTree, index, entry)

		if err == nil || nTries >= BtrCurRetryDeleteNTimes {
			return err
		}

		OsThreadSleep(BtrCurRetrySleepTime)
	}
}

// rowUndoInsParseUndoRec parses the row reference of a fresh insert undo
// record into the node.
func rowUndoInsParseUndoRec(env *Env, node *Node) {
	recType, cmplInfo, undoNo, tableID, rest, err := GetPars(node.UndoRec)
	if err != nil || recType != TrxUndoInsertRec {
		panic("undo: bad insert undo record")
	}
	node.RecType = recType
	node.CmplInfo = cmplInfo
	node.UndoNo = undoNo

	node.Update = nil
	node.Table = env.Dict.TableGetOnID(env.Recovery, tableID)

	// Skip the undo if the table or its data file is gone.
	if node.Table == nil {
		return
	}
	if node.Table.IbdFileMissing {
		node.Table = nil
		return
	}

	clustIndex := node.Table.GetFirstIndex()
	if clustIndex == nil {
		logger.Warnf("table %s has no indexes, ignoring the table", node.Table.Name)
		node.Table = nil
		return
	}

	node.Ref, _, err = GetRowRef(rest)
	if err != nil {
		panic("undo: bad insert undo row ref")
	}
}

// RowUndoIns rolls back a fresh insert: every secondary index entry of the
// row is removed, then the clustered record itself.
func RowUndoIns(env *Env, node *Node) error {
	if node.State != StateInsert {
		panic("undo: node not in insert state")
	}

	rowUndoInsParseUndoRec(env, node)

	if node.Table == nil || !RowUndoSearchClustToPcur(env, node) {
		node.Trx.UndoRecRelease(node.UndoNo)
		return nil
	}

	for index := node.Table.GetFirstIndex(); index != nil; index = index.GetNext() {
		if index.IsClustered() {
			continue
		}

		entry := RowBuildIndexEntry(node.Row, node.Ext, index)

		if entry == nil {
			// The database crashed after inserting the clustered record
			// but before writing its externally stored columns. Secondary
			// entries are inserted after the clustered record, so the
			// entry cannot exist; only recovery rollback may see this.
			if !node.Trx.IsRecv() {
				panic("undo: missing extern columns outside recovery")
			}
			continue
		}

		if err := rowUndoInsRemoveSec(env, index, entry); err != nil {
			return err
		}
	}

	return rowUndoInsRemoveClustRec(env, node)
}
