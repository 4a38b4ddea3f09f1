package btree

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filasieno/embedded-innodb/innodb/basic"
	"github.com/filasieno/embedded-innodb/innodb/buffer_pool"
	"github.com/filasieno/embedded-innodb/innodb/dict"
	"github.com/filasieno/embedded-innodb/innodb/mtr"
	"github.com/filasieno/embedded-innodb/innodb/page"
	"github.com/filasieno/embedded-innodb/innodb/record"
	"github.com/filasieno/embedded-innodb/util"
)

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

func newTestIndex(t *testing.T, m *mtr.Mtr) *dict.Index {
	t.Helper()

	meta := &record.Meta{
		Cols: []record.Col{
			{Name: "id", Type: record.DType{MType: record.DATA_INT, Len: 4}, RowNo: 0},
			{Name: "v", Type: record.DType{MType: record.DATA_VARCHAR, PrType: record.DATA_ENGLISH}, RowNo: 1},
		},
		NUnique:    1,
		TrxIDPos:   -1,
		RollPtrPos: -1,
	}

	index := &dict.Index{ID: 10, Name: "t_idx", Meta: meta}
	block := buffer_pool.NewPool().GetBlock(0, 7)
	CreateIndex(index, block, m)
	return index
}

func entryOf(key int, v string) *record.DTuple {
	e := record.NewTuple(2)
	e.SetField(0, util.ConvertUInt4Bytes(uint32(key)))
	e.SetField(1, []byte(v))
	return e
}

func externEntryOf(key int, local string) *record.DTuple {
	e := record.NewTuple(2)
	e.SetField(0, util.ConvertUInt4Bytes(uint32(key)))
	e.SetFieldExtern(1, []byte(local))
	return e
}

func TestCursorSearchAndInsert(t *testing.T) {
	redo := mtr.NewBufferedRedo()
	m := mtr.New(redo)
	m.Start()
	index := newTestIndex(t, m)

	require.NoError(t, InsertEntry(index, entryOf(1, "aa"), m))
	require.NoError(t, InsertEntry(index, entryOf(3, "cc"), m))
	require.NoError(t, InsertEntry(index, entryOf(2, "bb"), m))
	m.Commit()

	m.Start()
	var cur Cursor
	cur.Index = index
	found := cur.Search(entryOf(2, "bb"), SearchLeaf, m)
	assert.True(t, found)

	found = cur.Search(entryOf(9, "zz"), SearchLeaf, m)
	assert.False(t, found)
	m.Commit()

	assert.True(t, page.Validate(index.Root.Frame(), index.Meta))
}

// An optimistic delete that fails leaves the page unchanged, and the
// pessimistic retry on the unchanged page either succeeds or reports the
// space pressure; it never asks for another escalation.
func TestPessimisticDeleteMonotonicity(t *testing.T) {
	redo := mtr.NewBufferedRedo()
	m := mtr.New(redo)
	m.Start()
	index := newTestIndex(t, m)

	require.NoError(t, InsertEntry(index, externEntryOf(5, "big-prefix"), m))
	m.Commit()

	m.Start()
	var cur Cursor
	cur.Index = index
	require.True(t, cur.Search(entryOf(5, "big-prefix"), ModifyLeaf, m))

	// The extern column forces the pessimistic path.
	assert.False(t, cur.OptimisticDelete(m))
	assert.Equal(t, 1, page.GetNRecs(index.Root.Frame()))

	err := cur.PessimisticDelete(m)
	require.NoError(t, err)
	assert.Equal(t, 0, page.GetNRecs(index.Root.Frame()))
	m.Commit()
}

func TestPessimisticDeleteOutOfSpace(t *testing.T) {
	redo := mtr.NewBufferedRedo()
	m := mtr.New(redo)
	m.Start()
	index := newTestIndex(t, m)
	require.NoError(t, InsertEntry(index, externEntryOf(5, "x"), m))
	m.Commit()

	m.Start()
	cur := Cursor{Index: index, Space: &failingSpace{failures: 1}}
	require.True(t, cur.Search(entryOf(5, "x"), ModifyTree, m))

	err := cur.PessimisticDelete(m)
	assert.ErrorIs(t, err, basic.ErrOutOfFileSpace)
	assert.Equal(t, 1, page.GetNRecs(index.Root.Frame()))

	// The reserve succeeds on the retry.
	err = cur.PessimisticDelete(m)
	assert.NoError(t, err)
	assert.Equal(t, 0, page.GetNRecs(index.Root.Frame()))
	m.Commit()
}

func TestOptimisticUpdateInPlaceAndResize(t *testing.T) {
	redo := mtr.NewBufferedRedo()
	m := mtr.New(redo)
	m.Start()
	index := newTestIndex(t, m)
	require.NoError(t, InsertEntry(index, entryOf(1, "abc"), m))
	m.Commit()

	// Same-size update rewrites the bytes in place.
	m.Start()
	var cur Cursor
	cur.Index = index
	require.True(t, cur.Search(entryOf(1, "abc"), ModifyLeaf, m))

	update := record.NewUpdate(1)
	update.AppendField(1, []byte("aBc"), 3)
	require.NoError(t, cur.OptimisticUpdate(0, update, 0, m))

	frame := index.Root.Frame()
	offs := record.GetColOffsets(frame, cur.Rec)
	data, _ := record.GetNthField(frame, cur.Rec, offs, 1)
	assert.Equal(t, []byte("aBc"), data)
	m.Commit()

	// A growing update relocates the record within the page.
	m.Start()
	require.True(t, cur.Search(entryOf(1, "aBc"), ModifyLeaf, m))
	update = record.NewUpdate(1)
	update.AppendField(1, []byte("a-much-longer-value"), 19)
	require.NoError(t, cur.OptimisticUpdate(0, update, 0, m))

	offs = record.GetColOffsets(frame, cur.Rec)
	data, _ = record.GetNthField(frame, cur.Rec, offs, 1)
	assert.Equal(t, []byte("a-much-longer-value"), data)
	assert.True(t, page.Validate(frame, index.Meta))
	m.Commit()
}

func TestPCursorRestoreAcrossMtr(t *testing.T) {
	redo := mtr.NewBufferedRedo()
	m := mtr.New(redo)
	m.Start()
	index := newTestIndex(t, m)
	require.NoError(t, InsertEntry(index, entryOf(1, "aa"), m))
	require.NoError(t, InsertEntry(index, entryOf(2, "bb"), m))
	m.Commit()

	var pcur PCursor
	m.Start()
	found := pcur.Open(index, entryOf(2, "bb"), ModifyLeaf, nil, m)
	require.True(t, found)
	pcur.CommitSpecifyMtr(m)

	// Restructure the page so the optimistic restore misses.
	m.Start()
	m.XLatch(index.Root)
	page.Reorganize(index.Root, m)
	m.Commit()

	m.Start()
	require.True(t, pcur.RestorePosition(ModifyLeaf, m))

	frame := index.Root.Frame()
	offs := record.GetColOffsets(frame, pcur.Rec())
	key, _ := record.GetNthField(frame, pcur.Rec(), offs, 0)
	assert.Equal(t, uint32(2), util.ReadUB4Byte2UInt32(key))
	pcur.CommitSpecifyMtr(m)
}

func TestDelMarkSetSecRec(t *testing.T) {
	redo := mtr.NewBufferedRedo()
	m := mtr.New(redo)
	m.Start()
	index := newTestIndex(t, m)
	require.NoError(t, InsertEntry(index, entryOf(4, "dd"), m))

	var cur Cursor
	cur.Index = index
	require.True(t, cur.Search(entryOf(4, "dd"), ModifyLeaf, m))

	require.NoError(t, cur.DelMarkSetSecRec(NoLockingFlag, true, m))
	assert.True(t, record.GetDeletedFlag(index.Root.Frame(), cur.Rec))

	require.NoError(t, cur.DelMarkSetSecRec(NoLockingFlag, false, m))
	assert.False(t, record.GetDeletedFlag(index.Root.Frame(), cur.Rec))
	m.Commit()

	assert.Len(t, redo.RecordsOfType(mtr.MLOG_REC_SEC_DELETE_MARK), 2)
}
