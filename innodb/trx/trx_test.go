package trx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filasieno/embedded-innodb/innodb/basic"
)

func TestRollPtrEncoding(t *testing.T) {
	ptr := MakeRollPtr(true, 42, 7)
	assert.True(t, RollPtrIsInsert(ptr))
	assert.Equal(t, basic.TrxID(42), RollPtrTrxID(ptr))
	assert.Equal(t, basic.UndoNo(7), RollPtrUndoNo(ptr))

	ptr = MakeRollPtr(false, 1<<30, 12345)
	assert.False(t, RollPtrIsInsert(ptr))
	assert.Equal(t, basic.TrxID(1<<30), RollPtrTrxID(ptr))
	assert.Equal(t, basic.UndoNo(12345), RollPtrUndoNo(ptr))
}

func TestUndoLogAppendAndLookup(t *testing.T) {
	sys := NewSys()
	trx := sys.Begin()

	no0 := trx.UndoLogAppend([]byte("first"))
	no1 := trx.UndoLogAppend([]byte("second"))

	require.Equal(t, basic.UndoNo(0), no0)
	require.Equal(t, basic.UndoNo(1), no1)
	assert.Equal(t, basic.UndoNo(2), trx.MaxUndoNo())

	assert.Equal(t, []byte("second"), trx.UndoRecByNo(no1))
	assert.Nil(t, trx.UndoRecByNo(99))
}

func TestUndoRecReserveRelease(t *testing.T) {
	trx := NewTrx(1)

	require.True(t, trx.UndoRecReserve(5))
	assert.False(t, trx.UndoRecReserve(5))

	trx.UndoRecRelease(5)
	assert.True(t, trx.UndoRecReserve(5))
}

func TestSysMustPreserve(t *testing.T) {
	sys := NewSys()
	t1 := sys.Begin()

	assert.True(t, sys.MustPreserve(t1.ID))

	sys.SetLowWater(t1.ID + 1)
	assert.False(t, sys.MustPreserve(t1.ID))
	assert.True(t, sys.MustPreserve(t1.ID+1))
}

func TestTrxMagicGuard(t *testing.T) {
	trx := NewTrx(9)
	trx.AssertValid()

	trx.magicN = 0
	assert.Panics(t, func() { trx.AssertValid() })
}
