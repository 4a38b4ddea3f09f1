package undo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filasieno/embedded-innodb/innodb/basic"
	"github.com/filasieno/embedded-innodb/innodb/record"
)

func refTuple() *record.DTuple {
	ref := record.NewTuple(2)
	ref.SetField(0, []byte{0, 0, 0, 7})
	ref.SetFieldNull(1)
	return ref
}

func TestInsertUndoRecRoundTrip(t *testing.T) {
	rec := BuildInsertUndoRec(9, 50, refTuple())

	recType, cmplInfo, undoNo, tableID, rest, err := GetPars(rec)
	require.NoError(t, err)
	assert.EqualValues(t, TrxUndoInsertRec, recType)
	assert.EqualValues(t, 0, cmplInfo)
	assert.Equal(t, basic.UndoNo(9), undoNo)
	assert.Equal(t, basic.TableID(50), tableID)
	assert.Equal(t, basic.UndoNo(9), GetUndoNo(rec))

	ref, rest, err := GetRowRef(rest)
	require.NoError(t, err)
	assert.Empty(t, rest)
	require.Len(t, ref.Fields, 2)
	assert.Equal(t, []byte{0, 0, 0, 7}, ref.Fields[0].Data)
	assert.True(t, ref.Fields[1].IsNull())
}

func TestModifyUndoRecRoundTrip(t *testing.T) {
	meta := &record.Meta{
		Cols:       make([]record.Col, 4),
		TrxIDPos:   2,
		RollPtrPos: 3,
	}

	uv := record.NewUpdate(2)
	uv.AppendField(1, []byte("old-value"), 9)
	uv.AppendField(0, nil, basic.UnivSQLNull)

	rec := BuildModifyUndoRec(TrxUndoUpdExistRec, record.UpdNodeNoOrdChange, 3, 50,
		record.InfoDeletedFlag, 77, 123456, refTuple(), uv)

	recType, cmplInfo, undoNo, tableID, rest, err := GetPars(rec)
	require.NoError(t, err)
	assert.EqualValues(t, TrxUndoUpdExistRec, recType)
	assert.EqualValues(t, record.UpdNodeNoOrdChange, cmplInfo)
	assert.Equal(t, basic.UndoNo(3), undoNo)
	assert.Equal(t, basic.TableID(50), tableID)

	trxID, rollPtr, infoBits, rest, err := UpdateRecGetSysCols(rest)
	require.NoError(t, err)
	assert.Equal(t, basic.TrxID(77), trxID)
	assert.Equal(t, basic.RollPtr(123456), rollPtr)
	assert.Equal(t, record.InfoDeletedFlag, infoBits)

	_, rest, err = GetRowRef(rest)
	require.NoError(t, err)

	update, err := UpdateRecGetUpdate(rest, meta, trxID, rollPtr, infoBits)
	require.NoError(t, err)

	// The parsed vector carries the user fields plus the system column
	// restoration.
	require.Equal(t, 4, update.NFields())
	assert.Equal(t, uint16(1), update.Fields[0].FieldNo)
	assert.Equal(t, []byte("old-value"), update.Fields[0].Data)
	assert.Equal(t, basic.UnivSQLNull, update.Fields[1].Len)
	assert.Equal(t, uint16(2), update.Fields[2].FieldNo)
	assert.Equal(t, uint16(3), update.Fields[3].FieldNo)
	assert.Equal(t, record.InfoDeletedFlag, update.InfoBits)
}

func TestGetParsRejectsTruncatedRecord(t *testing.T) {
	_, _, _, _, _, err := GetPars([]byte{TrxUndoInsertRec, 0, 1})
	assert.Error(t, err)
}
