package undo_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filasieno/embedded-innodb/innodb/basic"
	"github.com/filasieno/embedded-innodb/innodb/btree"
	"github.com/filasieno/embedded-innodb/innodb/buffer_pool"
	"github.com/filasieno/embedded-innodb/innodb/dict"
	"github.com/filasieno/embedded-innodb/innodb/mtr"
	"github.com/filasieno/embedded-innodb/innodb/page"
	"github.com/filasieno/embedded-innodb/innodb/record"
	"github.com/filasieno/embedded-innodb/innodb/trx"
	"github.com/filasieno/embedded-innodb/innodb/undo"
	"github.com/filasieno/embedded-innodb/util"
)

const (
	testTableID  = basic.TableID(50)
	noSecTableID = basic.TableID(51)
	testSpaceID  = basic.SpaceID(0)
)

type fixture struct {
	redo  *mtr.BufferedRedo
	pool  *buffer_pool.Pool
	cache *dict.Cache
	sys   *trx.Sys
	env   *undo.Env

	table *dict.Table
	clust *dict.Index
	sec   *dict.Index

	// tableNoSec has only a clustered index; extern-column scenarios use
	// it.
	tableNoSec *dict.Table
	clustNoSec *dict.Index
}

func clustMeta() *record.Meta {
	return &record.Meta{
		Cols: []record.Col{
			{Name: "id", Type: record.DType{MType: record.DATA_INT, Len: 4}, RowNo: 0},
			{Name: "c", Type: record.DType{MType: record.DATA_VARCHAR, PrType: record.DATA_ENGLISH}, RowNo: 1},
			{Name: "db_trx_id", Type: record.DType{MType: record.DATA_SYS, Len: 8}, RowNo: 2},
			{Name: "db_roll_ptr", Type: record.DType{MType: record.DATA_SYS, Len: 8}, RowNo: 3},
		},
		NUnique:    1,
		TrxIDPos:   2,
		RollPtrPos: 3,
	}
}

func secMeta() *record.Meta {
	return &record.Meta{
		Cols: []record.Col{
			{Name: "c", Type: record.DType{MType: record.DATA_VARCHAR, PrType: record.DATA_ENGLISH}, RowNo: 1},
			{Name: "id", Type: record.DType{MType: record.DATA_INT, Len: 4}, RowNo: 0},
		},
		NUnique:    1,
		TrxIDPos:   -1,
		RollPtrPos: -1,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		redo:  mtr.NewBufferedRedo(),
		pool:  buffer_pool.NewPool(),
		cache: dict.NewCache(),
		sys:   trx.NewSys(),
	}
	f.env = &undo.Env{
		Recovery: basic.RecoveryDefault,
		Dict:     f.cache,
		TrxSys:   f.sys,
		Log:      f.redo,
		Space:    btree.DefaultSpace{},
	}

	f.table = &dict.Table{ID: testTableID, Name: "t"}
	f.clust = &dict.Index{ID: 1, Name: "PRIMARY", Clustered: true, Meta: clustMeta()}
	f.sec = &dict.Index{ID: 2, Name: "c_idx", Meta: secMeta()}
	f.table.AddIndex(f.clust)
	f.table.AddIndex(f.sec)
	f.cache.Register(f.table)

	f.tableNoSec = &dict.Table{ID: noSecTableID, Name: "t_blob"}
	f.clustNoSec = &dict.Index{ID: 3, Name: "PRIMARY", Clustered: true, Meta: clustMeta()}
	f.tableNoSec.AddIndex(f.clustNoSec)
	f.cache.Register(f.tableNoSec)

	m := mtr.New(f.redo)
	m.Start()
	btree.CreateIndex(f.clust, f.pool.GetBlock(testSpaceID, 10), m)
	btree.CreateIndex(f.sec, f.pool.GetBlock(testSpaceID, 11), m)
	btree.CreateIndex(f.clustNoSec, f.pool.GetBlock(testSpaceID, 12), m)
	m.Commit()

	return f
}

func (f *fixture) refOf(id int) *record.DTuple {
	ref := record.NewTuple(1)
	ref.SetField(0, util.ConvertUInt4Bytes(uint32(id)))
	return ref
}

func (f *fixture) secEntry(id int, c string) *record.DTuple {
	e := record.NewTuple(2)
	e.SetField(0, []byte(c))
	e.SetField(1, util.ConvertUInt4Bytes(uint32(id)))
	return e
}

func sysBytes(v uint64) []byte {
	return util.ConvertULong8Bytes(v)
}

// insertRow runs the forward path of an insert: undo record first, then
// the clustered and secondary entries.
func (f *fixture) insertRow(t *testing.T, tr *trx.Trx, id int, c string) {
	t.Helper()

	undoNo := tr.MaxUndoNo()
	tr.UndoLogAppend(undo.BuildInsertUndoRec(undoNo, testTableID, f.refOf(id)))

	rollPtr := trx.MakeRollPtr(true, tr.ID, undoNo)

	row := record.NewTuple(4)
	row.SetField(0, util.ConvertUInt4Bytes(uint32(id)))
	row.SetField(1, []byte(c))
	row.SetField(2, sysBytes(uint64(tr.ID)))
	row.SetField(3, sysBytes(uint64(rollPtr)))

	m := mtr.New(f.redo)
	m.Start()
	require.NoError(t, btree.InsertEntry(f.clust, row, m))
	require.NoError(t, btree.InsertEntry(f.sec, f.secEntry(id, c), m))
	m.Commit()
}

// insertRowExtern inserts into the secondary-free table with the c column
// stored externally; only its local prefix lives in the record.
func (f *fixture) insertRowExtern(t *testing.T, tr *trx.Trx, id int, local string) {
	t.Helper()

	undoNo := tr.MaxUndoNo()
	tr.UndoLogAppend(undo.BuildInsertUndoRec(undoNo, noSecTableID, f.refOf(id)))

	rollPtr := trx.MakeRollPtr(true, tr.ID, undoNo)

	row := record.NewTuple(4)
	row.SetField(0, util.ConvertUInt4Bytes(uint32(id)))
	row.SetFieldExtern(1, []byte(local))
	row.SetField(2, sysBytes(uint64(tr.ID)))
	row.SetField(3, sysBytes(uint64(rollPtr)))

	m := mtr.New(f.redo)
	m.Start()
	require.NoError(t, btree.InsertEntry(f.clustNoSec, row, m))
	m.Commit()
}

// clustRow fetches the current clustered row image for id.
func (f *fixture) clustRow(t *testing.T, index *dict.Index, id int) (*record.DTuple, bool) {
	t.Helper()

	m := mtr.New(f.redo)
	m.Start()
	defer m.Commit()

	var cur btree.Cursor
	cur.Index = index
	if !cur.Search(f.refOf(id), btree.SearchLeaf, m) {
		return nil, false
	}

	frame := cur.Block.Frame()
	offs := record.GetColOffsets(frame, cur.Rec)
	return record.RecToTuple(frame, cur.Rec, offs), true
}

// secRec fetches the secondary record matching (c, id) under the
// collation: whether it exists, its delete mark, and the stored bytes of
// the ordering column.
func (f *fixture) secRec(t *testing.T, id int, c string) (found bool, deleted bool, stored []byte) {
	t.Helper()

	m := mtr.New(f.redo)
	m.Start()
	defer m.Commit()

	var cur btree.Cursor
	cur.Index = f.sec
	if !cur.Search(f.secEntry(id, c), btree.SearchLeaf, m) {
		return false, false, nil
	}

	frame := cur.Block.Frame()
	offs := record.GetColOffsets(frame, cur.Rec)
	data, _ := record.GetNthField(frame, cur.Rec, offs, 0)
	return true, record.GetDeletedFlag(frame, cur.Rec), append([]byte(nil), data...)
}

// readSysCols extracts (trx id, roll ptr, info bits) from a clustered row
// image.
func readSysCols(row *record.DTuple) (basic.TrxID, basic.RollPtr, byte) {
	return basic.TrxID(util.ReadUB8Byte2Long(row.Fields[2].Data)),
		basic.RollPtr(util.ReadUB8Byte2Long(row.Fields[3].Data)),
		row.InfoBits
}

// updateRow runs the forward path of an UPDATE of column c.
func (f *fixture) updateRow(t *testing.T, tr *trx.Trx, id int, newC string) {
	t.Helper()

	m := mtr.New(f.redo)
	m.Start()

	var cur btree.Cursor
	cur.Index = f.clust
	require.True(t, cur.Search(f.refOf(id), btree.ModifyLeaf, m))

	frame := cur.Block.Frame()
	offs := record.GetColOffsets(frame, cur.Rec)
	oldRow := record.RecToTuple(frame, cur.Rec, offs)

	oldC := append([]byte(nil), oldRow.Fields[1].Data...)
	oldTrxID, oldRollPtr, oldInfo := readSysCols(oldRow)

	undoNo := tr.MaxUndoNo()
	uv := record.NewUpdate(1)
	uv.AppendField(1, oldC, uint32(len(oldC)))
	tr.UndoLogAppend(undo.BuildModifyUndoRec(undo.TrxUndoUpdExistRec, 0, undoNo, testTableID,
		oldInfo, oldTrxID, oldRollPtr, f.refOf(id), uv))

	fwd := record.NewUpdate(3)
	fwd.AppendField(1, []byte(newC), uint32(len(newC)))
	fwd.AppendField(2, sysBytes(uint64(tr.ID)), 8)
	fwd.AppendField(3, sysBytes(uint64(trx.MakeRollPtr(false, tr.ID, undoNo))), 8)

	if err := cur.OptimisticUpdate(0, fwd, 0, m); err != nil {
		require.NoError(t, cur.PessimisticUpdate(0, fwd, 0, m))
	}
	m.Commit()

	// Secondary index maintenance.
	m.Start()
	var scur btree.Cursor
	scur.Index = f.sec

	cType := f.sec.Meta.Cols[0].Type
	if record.CmpData(cType, oldC, uint32(len(oldC)), []byte(newC), uint32(len(newC))) == 0 {
		// Collation-equal change: the existing entry is rewritten in
		// place, the way an insert lands on a matching delete-marked
		// entry.
		require.True(t, scur.Search(f.secEntry(id, string(oldC)), btree.ModifyLeaf, m))
		sframe := scur.Block.Frame()
		soffs := record.GetColOffsets(sframe, scur.Rec)
		if upd := record.BuildSecRecDifferenceBinary(f.secEntry(id, newC), sframe, scur.Rec, soffs); upd != nil {
			require.NoError(t, scur.OptimisticUpdate(0, upd, 0, m))
		}
	} else {
		require.True(t, scur.Search(f.secEntry(id, string(oldC)), btree.ModifyLeaf, m))
		require.NoError(t, scur.DelMarkSetSecRec(0, true, m))
		require.NoError(t, btree.InsertEntry(f.sec, f.secEntry(id, newC), m))
	}
	m.Commit()
}

// deleteMarkRow runs the forward path of a DELETE (delete marking).
func (f *fixture) deleteMarkRow(t *testing.T, tr *trx.Trx, id int) {
	t.Helper()

	m := mtr.New(f.redo)
	m.Start()

	var cur btree.Cursor
	cur.Index = f.clust
	require.True(t, cur.Search(f.refOf(id), btree.ModifyLeaf, m))

	frame := cur.Block.Frame()
	offs := record.GetColOffsets(frame, cur.Rec)
	oldRow := record.RecToTuple(frame, cur.Rec, offs)
	oldC := append([]byte(nil), oldRow.Fields[1].Data...)
	oldTrxID, oldRollPtr, oldInfo := readSysCols(oldRow)

	undoNo := tr.MaxUndoNo()
	uv := record.NewUpdate(0)
	tr.UndoLogAppend(undo.BuildModifyUndoRec(undo.TrxUndoDelMarkRec, 0, undoNo, testTableID,
		oldInfo, oldTrxID, oldRollPtr, f.refOf(id), uv))

	fwd := record.NewUpdate(2)
	fwd.AppendField(2, sysBytes(uint64(tr.ID)), 8)
	fwd.AppendField(3, sysBytes(uint64(trx.MakeRollPtr(false, tr.ID, undoNo))), 8)
	fwd.InfoBits = record.InfoDeletedFlag
	require.NoError(t, cur.OptimisticUpdate(0, fwd, 0, m))
	m.Commit()

	m.Start()
	var scur btree.Cursor
	scur.Index = f.sec
	require.True(t, scur.Search(f.secEntry(id, string(oldC)), btree.ModifyLeaf, m))
	require.NoError(t, scur.DelMarkSetSecRec(0, true, m))
	m.Commit()
}

// insertByUnmark runs the forward path of an INSERT that lands on a
// delete-marked record: delete-unmark plus update, producing a UPD_DEL
// undo record.
func (f *fixture) insertByUnmark(t *testing.T, tr *trx.Trx, id int, newC string) {
	t.Helper()

	m := mtr.New(f.redo)
	m.Start()

	var cur btree.Cursor
	cur.Index = f.clust
	require.True(t, cur.Search(f.refOf(id), btree.ModifyLeaf, m))

	frame := cur.Block.Frame()
	offs := record.GetColOffsets(frame, cur.Rec)
	oldRow := record.RecToTuple(frame, cur.Rec, offs)
	require.True(t, oldRow.InfoBits&record.InfoDeletedFlag != 0)

	oldC := append([]byte(nil), oldRow.Fields[1].Data...)
	oldTrxID, oldRollPtr, oldInfo := readSysCols(oldRow)

	undoNo := tr.MaxUndoNo()
	uv := record.NewUpdate(1)
	uv.AppendField(1, oldC, uint32(len(oldC)))
	tr.UndoLogAppend(undo.BuildModifyUndoRec(undo.TrxUndoUpdDelRec, 0, undoNo, testTableID,
		oldInfo, oldTrxID, oldRollPtr, f.refOf(id), uv))

	fwd := record.NewUpdate(3)
	fwd.AppendField(1, []byte(newC), uint32(len(newC)))
	fwd.AppendField(2, sysBytes(uint64(tr.ID)), 8)
	fwd.AppendField(3, sysBytes(uint64(trx.MakeRollPtr(false, tr.ID, undoNo))), 8)
	fwd.InfoBits = 0
	if err := cur.OptimisticUpdate(0, fwd, 0, m); err != nil {
		require.NoError(t, cur.PessimisticUpdate(0, fwd, 0, m))
	}
	m.Commit()

	m.Start()
	var scur btree.Cursor
	scur.Index = f.sec

	cType := f.sec.Meta.Cols[0].Type
	if record.CmpData(cType, oldC, uint32(len(oldC)), []byte(newC), uint32(len(newC))) == 0 {
		require.True(t, scur.Search(f.secEntry(id, string(oldC)), btree.ModifyLeaf, m))
		require.NoError(t, scur.DelMarkSetSecRec(0, false, m))
		sframe := scur.Block.Frame()
		soffs := record.GetColOffsets(sframe, scur.Rec)
		if upd := record.BuildSecRecDifferenceBinary(f.secEntry(id, newC), sframe, scur.Rec, soffs); upd != nil {
			require.NoError(t, scur.OptimisticUpdate(0, upd, 0, m))
		}
	} else {
		require.NoError(t, btree.InsertEntry(f.sec, f.secEntry(id, newC), m))
	}
	m.Commit()
}

func TestFreshInsertUndo(t *testing.T) {
	f := newFixture(t)
	tr := f.sys.Begin()

	f.insertRow(t, tr, 1, "abc")

	_, found := f.clustRow(t, f.clust, 1)
	require.True(t, found)
	require.Equal(t, 1, page.GetNRecs(f.clust.Root.Frame()))

	tr.RollLimit = 0
	require.NoError(t, undo.Rollback(f.env, tr))

	_, found = f.clustRow(t, f.clust, 1)
	assert.False(t, found)
	secFound, _, _ := f.secRec(t, 1, "abc")
	assert.False(t, secFound)
	assert.Equal(t, 0, page.GetNRecs(f.clust.Root.Frame()))
	assert.Equal(t, 0, page.GetNRecs(f.sec.Root.Frame()))

	assert.True(t, page.Validate(f.clust.Root.Frame(), f.clust.Meta))
	assert.True(t, page.Validate(f.sec.Root.Frame(), f.sec.Meta))
}

func TestFreshInsertUndoIdempotent(t *testing.T) {
	f := newFixture(t)
	tr := f.sys.Begin()

	f.insertRow(t, tr, 1, "abc")
	tr.RollLimit = 0
	require.NoError(t, undo.Rollback(f.env, tr))

	// Running the same undo record again is a no-op: the record is gone
	// and every secondary entry already missing.
	node := undo.NewNode(tr, tr.UndoRecByNo(0), 0)
	require.NoError(t, undo.RowUndo(f.env, node))

	assert.Equal(t, undo.StateFetchNext, node.State)
	assert.Equal(t, 0, page.GetNRecs(f.clust.Root.Frame()))
	assert.Equal(t, 0, page.GetNRecs(f.sec.Root.Frame()))
}

func TestUpdateUndoRestoresOrderColumn(t *testing.T) {
	f := newFixture(t)

	tr0 := f.sys.Begin()
	f.insertRow(t, tr0, 1, "abc")

	tr := f.sys.Begin()
	f.updateRow(t, tr, 1, "aBc")

	found, deleted, stored := f.secRec(t, 1, "aBc")
	require.True(t, found)
	require.False(t, deleted)
	require.Equal(t, []byte("aBc"), stored)

	tr.RollLimit = 0
	require.NoError(t, undo.Rollback(f.env, tr))

	// The secondary entry is delete-unmarked and byte-identical to the
	// original, not merely collation-equal.
	found, deleted, stored = f.secRec(t, 1, "abc")
	require.True(t, found)
	assert.False(t, deleted)
	assert.Equal(t, []byte("abc"), stored)

	row, found := f.clustRow(t, f.clust, 1)
	require.True(t, found)
	assert.Equal(t, []byte("abc"), row.Fields[1].Data)

	trxID, rollPtr, info := readSysCols(row)
	assert.Equal(t, tr0.ID, trxID)
	assert.True(t, trx.RollPtrIsInsert(rollPtr))
	assert.EqualValues(t, 0, info)
}

func TestUpdateUndoSymmetry(t *testing.T) {
	f := newFixture(t)

	tr0 := f.sys.Begin()
	f.insertRow(t, tr0, 1, "hello")

	before, found := f.clustRow(t, f.clust, 1)
	require.True(t, found)

	tr := f.sys.Begin()
	f.updateRow(t, tr, 1, "a-significantly-longer-value")

	tr.RollLimit = 0
	require.NoError(t, undo.Rollback(f.env, tr))

	after, found := f.clustRow(t, f.clust, 1)
	require.True(t, found)

	require.Equal(t, len(before.Fields), len(after.Fields))
	for i := range before.Fields {
		assert.Equal(t, before.Fields[i].Data, after.Fields[i].Data, "field %d", i)
		assert.Equal(t, before.Fields[i].Len, after.Fields[i].Len, "field %d", i)
	}
	assert.Equal(t, before.InfoBits, after.InfoBits)

	// The new secondary entry is gone; the old one is unmarked.
	secFound, _, _ := f.secRec(t, 1, "a-significantly-longer-value")
	assert.False(t, secFound)
	secFound, deleted, _ := f.secRec(t, 1, "hello")
	require.True(t, secFound)
	assert.False(t, deleted)
}

func TestDeleteMarkRollback(t *testing.T) {
	f := newFixture(t)

	tr0 := f.sys.Begin()
	f.insertRow(t, tr0, 1, "abc")

	tr := f.sys.Begin()
	f.deleteMarkRow(t, tr, 1)

	row, found := f.clustRow(t, f.clust, 1)
	require.True(t, found)
	require.True(t, row.InfoBits&record.InfoDeletedFlag != 0)

	tr.RollLimit = 0
	require.NoError(t, undo.Rollback(f.env, tr))

	row, found = f.clustRow(t, f.clust, 1)
	require.True(t, found)
	assert.EqualValues(t, 0, row.InfoBits)

	trxID, _, _ := readSysCols(row)
	assert.Equal(t, tr0.ID, trxID)

	secFound, deleted, _ := f.secRec(t, 1, "abc")
	require.True(t, secFound)
	assert.False(t, deleted)
}

func TestUpdDelRollbackRemovesWhenPurgeable(t *testing.T) {
	f := newFixture(t)

	tr0 := f.sys.Begin()
	f.insertRow(t, tr0, 1, "abc")

	tr1 := f.sys.Begin()
	f.deleteMarkRow(t, tr1, 1)

	tr2 := f.sys.Begin()
	f.insertByUnmark(t, tr2, 1, "abc")

	// No view needs the delete-marked version anymore.
	f.sys.SetLowWater(tr2.ID + 1)

	tr2.RollLimit = 0
	require.NoError(t, undo.Rollback(f.env, tr2))

	// The rollback re-marked the record and then purged it.
	_, found := f.clustRow(t, f.clust, 1)
	assert.False(t, found)

	// The secondary entry stays delete-marked for the older chain.
	secFound, deleted, _ := f.secRec(t, 1, "abc")
	require.True(t, secFound)
	assert.True(t, deleted)

	assert.True(t, page.Validate(f.clust.Root.Frame(), f.clust.Meta))
}

func TestUpdDelRollbackPreservesForOldViews(t *testing.T) {
	f := newFixture(t)

	tr0 := f.sys.Begin()
	f.insertRow(t, tr0, 1, "abc")

	tr1 := f.sys.Begin()
	f.deleteMarkRow(t, tr1, 1)

	tr2 := f.sys.Begin()
	f.insertByUnmark(t, tr2, 1, "abc")

	// The low-water mark still covers tr1: the marked version must stay.
	tr2.RollLimit = 0
	require.NoError(t, undo.Rollback(f.env, tr2))

	row, found := f.clustRow(t, f.clust, 1)
	require.True(t, found)
	assert.True(t, row.InfoBits&record.InfoDeletedFlag != 0)

	trxID, _, _ := readSysCols(row)
	assert.Equal(t, tr1.ID, trxID)
}

func TestPessimisticRetryUnderSpacePressure(t *testing.T) {
	f := newFixture(t)

	var sleeps int
	savedSleep := undo.OsThreadSleep
	undo.OsThreadSleep = func(time.Duration) { sleeps++ }
	defer func() { undo.OsThreadSleep = savedSleep }()

	f.env.Space = &failingSpace{failures: 2}

	tr := f.sys.Begin()
	f.insertRowExtern(t, tr, 1, "local-prefix")
	tr.RollLimit = 0

	node := undo.NewNode(tr, tr.UndoRecByNo(0), 0)
	require.NoError(t, undo.RowUndo(f.env, node))

	assert.Equal(t, 2, sleeps)
	assert.Equal(t, undo.StateFetchNext, node.State)

	_, found := f.clustRow(t, f.clustNoSec, 1)
	assert.False(t, found)
}

func TestPrevVersionChaining(t *testing.T) {
	f := newFixture(t)

	tr0 := f.sys.Begin()
	f.insertRow(t, tr0, 1, "aaa")

	tr := f.sys.Begin()
	f.updateRow(t, tr, 1, "bbb")
	f.updateRow(t, tr, 1, "ccc")

	tr.RollLimit = 0

	// Undoing the newest record alone leaves the node asking for the
	// previous version of the same row.
	node := undo.NewNode(tr, tr.UndoRecByNo(1), 1)
	require.NoError(t, undo.RowUndo(f.env, node))

	require.Equal(t, undo.StatePrevVers, node.State)
	assert.Equal(t, basic.UndoNo(0), node.NewUndoNo)

	row, found := f.clustRow(t, f.clust, 1)
	require.True(t, found)
	assert.Equal(t, []byte("bbb"), row.Fields[1].Data)

	prevNode := undo.NewNode(tr, tr.UndoRecByNo(node.NewUndoNo), node.NewUndoNo)
	require.NoError(t, undo.RowUndo(f.env, prevNode))

	row, found = f.clustRow(t, f.clust, 1)
	require.True(t, found)
	assert.Equal(t, []byte("aaa"), row.Fields[1].Data)
}

func TestRollbackChainsThroughDriver(t *testing.T) {
	f := newFixture(t)

	tr0 := f.sys.Begin()
	f.insertRow(t, tr0, 1, "aaa")

	tr := f.sys.Begin()
	f.updateRow(t, tr, 1, "bbb")
	f.updateRow(t, tr, 1, "ccc")

	tr.RollLimit = 0
	require.NoError(t, undo.Rollback(f.env, tr))

	row, found := f.clustRow(t, f.clust, 1)
	require.True(t, found)
	assert.Equal(t, []byte("aaa"), row.Fields[1].Data)

	trxID, _, _ := readSysCols(row)
	assert.Equal(t, tr0.ID, trxID)
}

func TestMissingTableUndoIsSatisfied(t *testing.T) {
	f := newFixture(t)
	tr := f.sys.Begin()

	undoNo := tr.MaxUndoNo()
	tr.UndoLogAppend(undo.BuildInsertUndoRec(undoNo, basic.TableID(9999), f.refOf(1)))
	tr.RollLimit = 0

	require.NoError(t, undo.Rollback(f.env, tr))
}

func TestMissingIbdFileUndoIsSatisfied(t *testing.T) {
	f := newFixture(t)
	tr := f.sys.Begin()

	f.insertRow(t, tr, 1, "abc")
	f.table.IbdFileMissing = true
	defer func() { f.table.IbdFileMissing = false }()

	tr.RollLimit = 0
	require.NoError(t, undo.Rollback(f.env, tr))

	// Nothing was touched: the undo was skipped wholesale.
	f.table.IbdFileMissing = false
	_, found := f.clustRow(t, f.clust, 1)
	assert.True(t, found)
}

func TestRollbackAllParallel(t *testing.T) {
	f := newFixture(t)

	tr1 := f.sys.Begin()
	tr2 := f.sys.Begin()
	f.insertRow(t, tr1, 1, "one")
	f.insertRow(t, tr2, 2, "two")

	tr1.RollLimit = 0
	tr2.RollLimit = 0
	require.NoError(t, undo.RollbackAll(f.env, []*trx.Trx{tr1, tr2}))

	_, found := f.clustRow(t, f.clust, 1)
	assert.False(t, found)
	_, found = f.clustRow(t, f.clust, 2)
	assert.False(t, found)

	assert.Equal(t, 0, page.GetNRecs(f.clust.Root.Frame()))
	assert.Equal(t, 0, page.GetNRecs(f.sec.Root.Frame()))
}

type failingSpace struct {
	failures int
	calls    int
}

func (s *failingSpace) ReserveFreeExtents(int) error {
	s.calls++
	if s.calls <= s.failures {
		return errors.New("tablespace full")
	}
	return nil
}
