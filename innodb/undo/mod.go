package undo

import (
	stderrors "errors"

	"github.com/filasieno/embedded-innodb/innodb/basic"
	"github.com/filasieno/embedded-innodb/innodb/btree"
	"github.com/filasieno/embedded-innodb/innodb/dict"
	"github.com/filasieno/embedded-innodb/innodb/mtr"
	"github.com/filasieno/embedded-innodb/innodb/record"
	"github.com/filasieno/embedded-innodb/innodb/trx"
	"github.com/filasieno/embedded-innodb/logger"
)

/* Considerations on undoing a modify operation.
(1) Undoing a delete marking: all index records should be found, though
some may already have their delete mark false if the operation stopped
underway or the undo ended prematurely in a crash.
(2) Undoing an update of a delete-unmarked record: the newer version of an
updated secondary index entry is removed if no prior version of the
clustered record requires its existence; otherwise it is delete marked.
(3) Undoing an update of a delete-marked record: the delete-marked
clustered record was delete-unmarked and possibly changed; the marked
version may have become obsolete by the time the undo starts. */

// rowUndoModUndoAlsoPrevVers checks whether the previous version of the
// clustered record was written by the same transaction with an undo number
// inside the rollback range, in which case it must be undone too.
func rowUndoModUndoAlsoPrevVers(node *Node) (bool, basic.UndoNo) {
	if node.NewTrxID != node.Trx.ID {
		return false, 0
	}

	undoRec := node.Trx.UndoRecByNo(trx.RollPtrUndoNo(node.NewRollPtr))
	if undoRec == nil {
		return false, 0
	}

	undoNo := GetUndoNo(undoRec)
	return node.Trx.RollLimit <= undoNo, undoNo
}

// rowUndoModClustLow applies the inverse update to the clustered record
// through the node's cursor, with the chosen descent.
func rowUndoModClustLow(node *Node, m *mtr.Mtr, mode btree.LatchMode) error {
	if !node.Pcur.RestorePosition(mode, m) {
		panic("undo: lost position of clustered record")
	}

	btrCur := node.Pcur.GetBtrCur()
	flags := btree.NoLockingFlag | btree.NoUndoLogFlag | btree.KeepSysFlag

	if mode == btree.ModifyLeaf {
		return btrCur.OptimisticUpdate(flags, node.Update, int(node.CmplInfo), m)
	}
	return btrCur.PessimisticUpdate(flags, node.Update, int(node.CmplInfo), m)
}

// rowUndoModRemoveClustLow removes the clustered record after the inverse
// update, when the record was produced by updating a delete-marked record
// and no transaction can see the marked version anymore. The rollback then
// amounts to purging the record.
func rowUndoModRemoveClustLow(env *Env, node *Node, m *mtr.Mtr, mode btree.LatchMode) error {
	if node.RecType != TrxUndoUpdDelRec {
		panic("undo: remove attempted for wrong undo type")
	}

	if !node.Pcur.RestorePosition(mode, m) {
		return nil
	}

	if RowVersMustPreserveDelMarked(env, node.NewTrxID) {
		return nil
	}

	btrCur := node.Pcur.GetBtrCur()

	if mode == btree.ModifyLeaf {
		if !btrCur.OptimisticDelete(m) {
			return basic.ErrFail
		}
		return nil
	}

	// Analogous to purge: inherited externally stored fields may be freed
	// as well.
	return btrCur.PessimisticDelete(m)
}

// rowUndoModClust undoes the modify on the clustered index record and sets
// the node state for the next round.
func rowUndoModClust(env *Env, node *Node) error {
	// Check first whether the previous version of the record falls inside
	// this same rollback.
	moreVers, newUndoNo := rowUndoModUndoAlsoPrevVers(node)

	m := env.newMtr()
	m.Start()

	// Optimistic processing, keeping the change within the index page.
	err := rowUndoModClustLow(node, m, btree.ModifyLeaf)

	if err != nil {
		node.Pcur.CommitSpecifyMtr(m)

		// The tree structure may have to change: pessimistic descent.
		m.Start()
		err = rowUndoModClustLow(node, m, btree.ModifyTree)
	}

	node.Pcur.CommitSpecifyMtr(m)

	if err == nil && node.RecType == TrxUndoUpdDelRec {
		m.Start()

		err = rowUndoModRemoveClustLow(env, node, m, btree.ModifyLeaf)
		if err != nil {
			node.Pcur.CommitSpecifyMtr(m)

			m.Start()
			err = rowUndoModRemoveClustLow(env, node, m, btree.ModifyTree)
		}

		node.Pcur.CommitSpecifyMtr(m)
	}

	node.State = StateFetchNext

	node.Trx.UndoRecRelease(node.UndoNo)

	if moreVers && err == nil {
		// Reserve the prior undo record after committing the mtr, to keep
		// the latching order against the fsp latch.
		if node.Trx.UndoRecReserve(newUndoNo) {
			node.State = StatePrevVers
			node.NewUndoNo = newUndoNo
		}
	}

	return err
}

// rowUndoModDelMarkOrRemoveSecLow delete-marks or removes one secondary
// index entry: if any older version of the clustered record still requires
// the entry, it is only delete marked; otherwise it is removed.
func rowUndoModDelMarkOrRemoveSecLow(env *Env, node *Node, index *dict.Index, entry *record.DTuple, mode btree.LatchMode) error {
	env.Log.FreeCheck()

	var pcur btree.PCursor

	m := env.newMtr()
	m.Start()

	found := btree.SearchIndexEntry(index, entry, mode, &pcur, env.Space, m)
	btrCur := pcur.GetBtrCur()

	if !found {
		// In crash recovery the UPDATE may not have inserted this entry
		// before the crash; in normal processing a deadlock may have
		// stopped it. Either way there is nothing to undo here.
		pcur.Close()
		m.Commit()
		return nil
	}

	mtrVers := env.newMtr()
	mtrVers.Start()

	if !node.Pcur.RestorePosition(btree.SearchLeaf, mtrVers) {
		panic("undo: lost position of clustered record")
	}

	oldHas := RowVersOldHasIndexEntry(env, false, node, index, entry)

	var err error
	if oldHas {
		err = btrCur.DelMarkSetSecRec(btree.NoLockingFlag, true, m)
	} else {
		// Remove the index record.
		if mode == btree.ModifyLeaf {
			if !btrCur.OptimisticDelete(m) {
				err = basic.ErrFail
			}
		} else {
			// A secondary index record carries no externally stored
			// columns, so the rollback kind makes no difference.
			err = btrCur.PessimisticDelete(m)
		}
	}

	node.Pcur.CommitSpecifyMtr(mtrVers)
	pcur.Close()
	m.Commit()

	return err
}

func rowUndoModDelMarkOrRemoveSec(env *Env, node *Node, index *dict.Index, entry *record.DTuple) error {
	err := rowUndoModDelMarkOrRemoveSecLow(env, node, index, entry, btree.ModifyLeaf)
	if err == nil {
		return nil
	}

	return rowUndoModDelMarkOrRemoveSecLow(env, node, index, entry, btree.ModifyTree)
}

// rowUndoModDelUnmarkSecAndUndoUpdate delete-unmarks a secondary index
// entry which is expected to exist, and restores its stored fields when an
// update left them binarily different while collation-equal, e.g.
// 'abc' -> 'aBc'. Such values cannot be recovered from the entry alone,
// which is why the stored record is diffed against the rebuilt entry.
func rowUndoModDelUnmarkSecAndUndoUpdate(env *Env, mode btree.LatchMode, index *dict.Index, entry *record.DTuple) error {
	// Ignore indexes that are being created.
	if index.IsTemp() {
		return nil
	}

	env.Log.FreeCheck()

	var pcur btree.PCursor

	m := env.newMtr()
	m.Start()

	var err error

	if !btree.SearchIndexEntry(index, entry, mode, &pcur, env.Space, m) {
		logger.Errorf("error in sec index entry del undo in index %s", index.Name)
		logger.Errorf("tuple has %d fields; positioned rec offs %d", len(entry.Fields), pcur.Rec())
		logger.Errorf("submit a detailed bug report")
	} else {
		btrCur := pcur.GetBtrCur()

		if err = btrCur.DelMarkSetSecRec(btree.NoLockingFlag, false, m); err != nil {
			panic("undo: delete unmark failed")
		}

		frame := btrCur.Block.Frame()
		offs := record.GetColOffsets(frame, btrCur.Rec)
		update := record.BuildSecRecDifferenceBinary(entry, frame, btrCur.Rec, offs)

		switch {
		case update.NFields() == 0:
			// Nothing to restore.

		case mode == btree.ModifyLeaf:
			// Optimistic update, keeping the change within the page.
			err = btrCur.OptimisticUpdate(btree.KeepSysFlag|btree.NoLockingFlag, update, 0, m)
			if stderrors.Is(err, basic.ErrOverflow) || stderrors.Is(err, basic.ErrUnderflow) {
				err = basic.ErrFail
			}

		default:
			err = btrCur.PessimisticUpdate(btree.KeepSysFlag|btree.NoLockingFlag, update, 0, m)
		}
	}

	pcur.Close()
	m.Commit()

	return err
}

// rowUndoModUpdDelSec undoes the secondary index changes of a UPD_DEL
// record: every entry of the row is delete-marked or removed.
func rowUndoModUpdDelSec(env *Env, node *Node) error {
	if node.RecType != TrxUndoUpdDelRec {
		panic("undo: wrong rec type")
	}

	for ; node.Index != nil; node.Index = node.Index.GetNext() {
		index := node.Index

		entry := RowBuildIndexEntry(node.Row, node.Ext, index)

		if entry == nil {
			// Crash between the clustered insert and its externally
			// stored columns; the secondary entry cannot exist. Only
			// recovery rollback may see this.
			if !node.Trx.IsRecv() {
				panic("undo: missing extern columns outside recovery")
			}
			continue
		}

		if err := rowUndoModDelMarkOrRemoveSec(env, node, index, entry); err != nil {
			return err
		}
	}

	return nil
}

// rowUndoModDelMarkSec undoes a delete marking: every secondary entry is
// delete-unmarked and restored.
func rowUndoModDelMarkSec(env *Env, node *Node) error {
	for ; node.Index != nil; node.Index = node.Index.GetNext() {
		index := node.Index

		entry := RowBuildIndexEntry(node.Row, node.Ext, index)
		if entry == nil {
			panic("undo: del mark rollback could not build entry")
		}

		err := rowUndoModDelUnmarkSecAndUndoUpdate(env, btree.ModifyLeaf, index, entry)
		if stderrors.Is(err, basic.ErrFail) {
			err = rowUndoModDelUnmarkSecAndUndoUpdate(env, btree.ModifyTree, index, entry)
		}

		if err != nil {
			return err
		}
	}

	return nil
}

// rowUndoModUpdExistSec undoes an update of an existing record in the
// secondary indexes whose ordering columns the update touched: the new
// version of each entry is delete-marked or removed, then the old version
// is delete-unmarked and restored.
func rowUndoModUpdExistSec(env *Env, node *Node) error {
	if node.CmplInfo&record.UpdNodeNoOrdChange != 0 {
		// No change in the secondary indexes.
		return nil
	}

	for ; node.Index != nil; node.Index = node.Index.GetNext() {
		index := node.Index

		if !record.ChangesOrdFieldBinary(index.Meta, node.Update) {
			continue
		}

		// The newest version of the entry.
		entry := RowBuildIndexEntry(node.Row, node.Ext, index)
		if entry == nil {
			panic("undo: update rollback could not build entry")
		}

		if err := rowUndoModDelMarkOrRemoveSec(env, node, index, entry); err != nil {
			return err
		}

		// The previous version: delete-unmark it and restore the fields a
		// collation-equal update may have changed.
		entry = RowBuildIndexEntry(node.UndoRow, node.UndoExt, index)
		if entry == nil {
			panic("undo: update rollback could not build old entry")
		}

		err := rowUndoModDelUnmarkSecAndUndoUpdate(env, btree.ModifyLeaf, index, entry)
		if stderrors.Is(err, basic.ErrFail) {
			err = rowUndoModDelUnmarkSecAndUndoUpdate(env, btree.ModifyTree, index, entry)
		}

		if err != nil {
			return err
		}
	}

	return nil
}

// rowUndoModParseUndoRec parses a modify undo record into the node.
func rowUndoModParseUndoRec(env *Env, node *Node) {
	recType, cmplInfo, undoNo, tableID, rest, err := GetPars(node.UndoRec)
	if err != nil {
		panic("undo: bad modify undo record")
	}
	node.RecType = recType
	node.CmplInfo = cmplInfo
	node.UndoNo = undoNo

	node.Table = env.Dict.TableGetOnID(env.Recovery, tableID)
	if node.Table == nil {
		// Table was dropped.
		return
	}

	if node.Table.IbdFileMissing {
		// Skip undo operations against missing data files.
		node.Table = nil
		return
	}

	clustIndex := node.Table.GetFirstIndex()

	trxID, rollPtr, infoBits, rest, err := UpdateRecGetSysCols(rest)
	if err != nil {
		panic("undo: bad modify undo sys cols")
	}

	node.Ref, rest, err = GetRowRef(rest)
	if err != nil {
		panic("undo: bad modify undo row ref")
	}

	node.Update, err = UpdateRecGetUpdate(rest, clustIndex.Meta, trxID, rollPtr, infoBits)
	if err != nil {
		panic("undo: bad modify undo update vector")
	}

	node.NewRollPtr = rollPtr
	node.NewTrxID = trxID
}

// RowUndoMod undoes a modify operation: dispatches the secondary index
// work on the undo record type, then rolls the clustered record back.
func RowUndoMod(env *Env, node *Node) error {
	if node.State != StateModify {
		panic("undo: node not in modify state")
	}

	rowUndoModParseUndoRec(env, node)

	if node.Table == nil || !RowUndoSearchClustToPcur(env, node) {
		// Already undone, or undone by another thread, or the table was
		// dropped.
		node.Trx.UndoRecRelease(node.UndoNo)
		node.State = StateFetchNext
		return nil
	}

	node.Index = node.Table.GetFirstIndex().GetNext()

	var err error
	switch node.RecType {
	case TrxUndoUpdExistRec:
		err = rowUndoModUpdExistSec(env, node)
	case TrxUndoDelMarkRec:
		err = rowUndoModDelMarkSec(env, node)
	case TrxUndoUpdDelRec:
		err = rowUndoModUpdDelSec(env, node)
	default:
		panic("undo: unknown modify undo type")
	}

	if err != nil {
		return err
	}

	return rowUndoModClust(env, node)
}
