package dict

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filasieno/embedded-innodb/innodb/basic"
	"github.com/filasieno/embedded-innodb/innodb/record"
)

func TestCacheLookup(t *testing.T) {
	cache := NewCache()

	table := &Table{ID: 42, Name: "t1"}
	clust := &Index{ID: 1, Name: "PRIMARY", Clustered: true, Meta: &record.Meta{TrxIDPos: 0, RollPtrPos: 1}}
	sec := &Index{ID: 2, Name: "ix_a", Meta: &record.Meta{TrxIDPos: -1, RollPtrPos: -1}}
	table.AddIndex(clust)
	table.AddIndex(sec)
	cache.Register(table)

	got := cache.TableGetOnID(basic.RecoveryDefault, 42)
	require.NotNil(t, got)
	assert.Equal(t, "t1", got.Name)
	cache.DecrementHandleCount(got)

	assert.Nil(t, cache.TableGetOnID(basic.RecoveryDefault, 43))

	require.Same(t, clust, table.GetFirstIndex())
	require.Same(t, sec, clust.GetNext())
	assert.Nil(t, sec.GetNext())
}

func TestTablesIterateInIDOrder(t *testing.T) {
	cache := NewCache()
	for _, id := range []basic.TableID{30, 10, 20} {
		cache.Register(&Table{ID: id})
	}

	var ids []basic.TableID
	cache.Tables(func(tab *Table) bool {
		ids = append(ids, tab.ID)
		return true
	})

	assert.Equal(t, []basic.TableID{10, 20, 30}, ids)
}

func TestTempIndexPrefix(t *testing.T) {
	index := &Index{Name: string([]byte{TempIndexPrefix}) + "tmp_ix"}
	assert.True(t, index.IsTemp())

	index = &Index{Name: "ix_normal"}
	assert.False(t, index.IsTemp())
}

func TestDropIndexTreeHook(t *testing.T) {
	cache := NewCache()

	called := false
	cache.DropIndexTreeHook = func([]byte, int) { called = true }
	cache.DropIndexTree(nil, 0)
	assert.True(t, called)
}
