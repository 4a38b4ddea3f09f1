// Package dict is the in-memory data dictionary cache consulted by the
// undo core: tables, their index lists, and the hooks rollback needs when
// it touches the dictionary's own tables.
package dict

import (
	"sync"

	"github.com/tidwall/btree"

	"github.com/filasieno/embedded-innodb/innodb/basic"
	"github.com/filasieno/embedded-innodb/innodb/buffer_pool"
	"github.com/filasieno/embedded-innodb/innodb/record"
	"github.com/filasieno/embedded-innodb/logger"
)

// DictIndexesID is the table id of SYS_INDEXES. Rolling back an insert
// into it must also drop the index tree the row described.
const DictIndexesID basic.TableID = 3

// TempIndexPrefix marks an index that is still being built; undo skips it.
const TempIndexPrefix = 0xFF

// Index is one index of a table.
type Index struct {
	ID        basic.IndexID
	Name      string
	Table     *Table
	Clustered bool

	// Meta describes the physical records of this index.
	Meta *record.Meta

	// Root is the index tree root; a single-level tree keeps all records
	// on it.
	Root *buffer_pool.BufferBlock

	next *Index
}

// IsClustered reports whether this is the clustered index.
func (i *Index) IsClustered() bool {
	return i.Clustered
}

// IsTemp reports an index under construction.
func (i *Index) IsTemp() bool {
	return len(i.Name) > 0 && i.Name[0] == TempIndexPrefix
}

// GetNext returns the next index of the table, nil at the end.
func (i *Index) GetNext() *Index {
	return i.next
}

// Table is one dictionary table entry.
type Table struct {
	ID   basic.TableID
	Name string

	// IbdFileMissing marks a table whose backing file was not found;
	// undo operations against it are skipped.
	IbdFileMissing bool

	indexes     []*Index
	handleCount int
}

// AddIndex appends an index; the first added must be the clustered one.
func (t *Table) AddIndex(index *Index) {
	index.Table = t
	if len(t.indexes) > 0 {
		t.indexes[len(t.indexes)-1].next = index
	}
	t.indexes = append(t.indexes, index)
}

// GetFirstIndex returns the clustered index, nil if the table has none.
func (t *Table) GetFirstIndex() *Index {
	if len(t.indexes) == 0 {
		return nil
	}
	return t.indexes[0]
}

// Indexes returns the index list in table order.
func (t *Table) Indexes() []*Index {
	return t.indexes
}

// Cache is the dictionary cache, ordered by table id.
type Cache struct {
	mu     sync.RWMutex
	tables *btree.Map[uint64, *Table]

	// DropIndexTreeHook is called when rollback of a SYS_INDEXES row must
	// drop the index tree the row described. The record is the SYS_INDEXES
	// clustered record being rolled back.
	DropIndexTreeHook func(frame []byte, origin int)

	// dictLock serializes dictionary structure changes; undo of
	// SYS_INDEXES rows runs under its exclusive side.
	dictLock sync.RWMutex
}

func NewCache() *Cache {
	return &Cache{tables: btree.NewMap[uint64, *Table](8)}
}

// Register adds a table to the cache.
func (c *Cache) Register(t *Table) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables.Set(uint64(t.ID), t)
}

// TableGetOnID resolves a table id and takes a handle on the result.
// Returns nil when the table is absent; a dropped table during a forced
// recovery is reported once.
func (c *Cache) TableGetOnID(recovery basic.RecoveryLevel, id basic.TableID) *Table {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.tables.Get(uint64(id))
	if !ok {
		if recovery > basic.RecoveryDefault {
			logger.Warnf("table id %d not found in the dictionary during recovery", id)
		}
		return nil
	}

	t.handleCount++
	return t
}

// DecrementHandleCount drops the handle taken by TableGetOnID.
func (c *Cache) DecrementHandleCount(t *Table) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.handleCount > 0 {
		t.handleCount--
	}
}

// XLockDict takes the dictionary structure lock exclusively.
func (c *Cache) XLockDict() {
	c.dictLock.Lock()
}

// XUnlockDict releases the dictionary structure lock.
func (c *Cache) XUnlockDict() {
	c.dictLock.Unlock()
}

// DropIndexTree drops the index tree described by a SYS_INDEXES record.
func (c *Cache) DropIndexTree(frame []byte, origin int) {
	if c.DropIndexTreeHook != nil {
		c.DropIndexTreeHook(frame, origin)
	}
}

// Tables iterates the cache in id order.
func (c *Cache) Tables(fn func(*Table) bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.tables.Scan(func(_ uint64, t *Table) bool {
		return fn(t)
	})
}
