package undo

import (
	"github.com/filasieno/embedded-innodb/innodb/basic"
	"github.com/filasieno/embedded-innodb/innodb/btree"
	"github.com/filasieno/embedded-innodb/innodb/dict"
	"github.com/filasieno/embedded-innodb/innodb/record"
	"github.com/filasieno/embedded-innodb/innodb/trx"
)

// RowBuildIndexEntry projects the index entry for a row image. Returns nil
// when a needed externally stored column has no full value available,
// which is only legal while rolling back an incomplete transaction after a
// crash.
func RowBuildIndexEntry(row *record.DTuple, ext map[int][]byte, index *dict.Index) *record.DTuple {
	meta := index.Meta
	entry := record.NewTuple(meta.NFields())

	for i := range meta.Cols {
		rowNo := meta.Cols[i].RowNo
		f := row.Fields[rowNo]

		if f.IsNull() {
			entry.SetFieldNull(i)
			continue
		}
		if f.IsExtern() {
			full, ok := ext[rowNo]
			if !ok {
				return nil
			}
			entry.SetField(i, full)
			continue
		}
		entry.SetField(i, f.Data)
	}

	return entry
}

// RowUndoSearchClustToPcur positions the node's persistent cursor on the
// clustered record referenced by the undo record and caches the row image.
// Returns false when the record is gone, meaning the undo is already
// satisfied.
func RowUndoSearchClustToPcur(env *Env, node *Node) bool {
	clustIndex := node.Table.GetFirstIndex()

	m := env.newMtr()
	m.Start()

	found := node.Pcur.Open(clustIndex, node.Ref, btree.ModifyLeaf, env.Space, m)
	if !found {
		m.Commit()
		return false
	}

	cur := node.Pcur.GetBtrCur()
	frame := cur.Block.Frame()
	offs := record.GetColOffsets(frame, cur.Rec)

	node.Row = record.RecToTuple(frame, cur.Rec, offs)
	node.Ext = nil

	if node.RecType != TrxUndoInsertRec && node.CmplInfo&record.UpdNodeNoOrdChange == 0 {
		// The previous version of the row is needed to locate the old
		// secondary index entries.
		node.UndoRow = node.Row.Copy()
		node.Update.ApplyToTuple(node.UndoRow)
		node.UndoExt = nil
	}

	node.Pcur.CommitSpecifyMtr(m)
	return true
}

// rowTrxID reads the transaction id system column of a row image.
func rowTrxID(meta *record.Meta, row *record.DTuple) basic.TrxID {
	f := row.Fields[meta.TrxIDPos]
	return basic.TrxID(beUint64(f.Data))
}

// rowRollPtr reads the roll pointer system column of a row image.
func rowRollPtr(meta *record.Meta, row *record.DTuple) basic.RollPtr {
	f := row.Fields[meta.RollPtrPos]
	return basic.RollPtr(beUint64(f.Data))
}

func beUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

// RowVersOldHasIndexEntry walks the older versions of the clustered record
// through their roll pointers, reporting whether any version that cannot
// be purged yet still produces the given secondary index entry. With
// alsoCurr the current version participates too.
func RowVersOldHasIndexEntry(env *Env, alsoCurr bool, node *Node, index *dict.Index, entry *record.DTuple) bool {
	meta := node.Table.GetFirstIndex().Meta

	version := node.Row
	if alsoCurr && version.InfoBits&record.InfoDeletedFlag == 0 {
		if e := RowBuildIndexEntry(version, node.Ext, index); e != nil &&
			record.TuplesEqual(index.Meta, e, entry) {
			return true
		}
	}

	for depth := 0; depth < int(basic.UnivPageSize); depth++ {
		rollPtr := rowRollPtr(meta, version)
		if trx.RollPtrIsInsert(rollPtr) {
			// The chain ends at the version the insert created.
			return false
		}

		prevTrx := env.TrxSys.Get(trx.RollPtrTrxID(rollPtr))
		if prevTrx == nil {
			// The undo log of the older version is purged; no prior
			// version can require the entry.
			return false
		}

		undoRec := prevTrx.UndoRecByNo(trx.RollPtrUndoNo(rollPtr))
		if undoRec == nil {
			return false
		}

		_, _, _, _, rest, err := GetPars(undoRec)
		if err != nil {
			return false
		}
		trxID, prevRollPtr, infoBits, rest, err := UpdateRecGetSysCols(rest)
		if err != nil {
			return false
		}
		if _, rest, err = GetRowRef(rest); err != nil {
			return false
		}
		update, err := UpdateRecGetUpdate(rest, meta, trxID, prevRollPtr, infoBits)
		if err != nil {
			return false
		}

		prev := version.Copy()
		update.ApplyToTuple(prev)

		if prev.InfoBits&record.InfoDeletedFlag == 0 {
			if e := RowBuildIndexEntry(prev, nil, index); e != nil &&
				record.TuplesEqual(index.Meta, e, entry) {
				return true
			}
		}

		version = prev
	}

	return false
}

// RowVersMustPreserveDelMarked reports whether a delete-marked record
// stamped with trxID may still be seen by some view and therefore must
// stay in place.
func RowVersMustPreserveDelMarked(env *Env, trxID basic.TrxID) bool {
	return env.TrxSys.MustPreserve(trxID)
}
