package buffer_pool

import (
	"sync"
	"sync/atomic"

	"github.com/filasieno/embedded-innodb/innodb/basic"
	"github.com/filasieno/embedded-innodb/innodb/latch"
)

// BufferBlock is the control block for one page frame. The frame holds the
// on-disk page image; the modify clock invalidates optimistic cursor
// positions whenever the frame is restructured.
type BufferBlock struct {
	frame []byte

	spaceID basic.SpaceID
	pageNo  basic.PageNo

	modifyClock uint64

	lock *latch.Latch
}

func NewBufferBlock(spaceID basic.SpaceID, pageNo basic.PageNo) *BufferBlock {
	return &BufferBlock{
		frame:   make([]byte, basic.UnivPageSize),
		spaceID: spaceID,
		pageNo:  pageNo,
		lock:    latch.NewLatch(),
	}
}

// Frame returns the page image. Callers must hold the block latch through
// an mtr while reading or writing it.
func (b *BufferBlock) Frame() []byte {
	return b.frame
}

func (b *BufferBlock) SpaceID() basic.SpaceID {
	return b.spaceID
}

func (b *BufferBlock) PageNo() basic.PageNo {
	return b.pageNo
}

// Latch exposes the block latch to the mtr memo.
func (b *BufferBlock) Latch() *latch.Latch {
	return b.lock
}

// ModifyClockInc must be called before any restructuring mutation so that
// optimistic cursor clients observe the change.
func (b *BufferBlock) ModifyClockInc() {
	atomic.AddUint64(&b.modifyClock, 1)
}

func (b *BufferBlock) ModifyClock() uint64 {
	return atomic.LoadUint64(&b.modifyClock)
}

// Pool is a minimal buffer pool: it owns the blocks and hands out handles.
// Eviction and file I/O belong to the embedding application.
type Pool struct {
	mu     sync.RWMutex
	blocks map[blockKey]*BufferBlock
}

type blockKey struct {
	space basic.SpaceID
	page  basic.PageNo
}

func NewPool() *Pool {
	return &Pool{blocks: make(map[blockKey]*BufferBlock)}
}

// GetBlock returns the block for (space, page), allocating a zero-filled
// frame on first use.
func (p *Pool) GetBlock(space basic.SpaceID, page basic.PageNo) *BufferBlock {
	key := blockKey{space, page}

	p.mu.RLock()
	block, ok := p.blocks[key]
	p.mu.RUnlock()
	if ok {
		return block
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if block, ok = p.blocks[key]; ok {
		return block
	}
	block = NewBufferBlock(space, page)
	p.blocks[key] = block
	return block
}
