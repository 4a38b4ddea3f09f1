package mtr

import (
	"github.com/filasieno/embedded-innodb/innodb/buffer_pool"
	"github.com/filasieno/embedded-innodb/innodb/latch"
	"github.com/filasieno/embedded-innodb/util"
)

// LogMode controls whether page mutations inside the mtr emit redo.
type LogMode int

const (
	// LogModeAll logs every mutation.
	LogModeAll LogMode = iota
	// LogModeNone suppresses logging; used when a bracketing logical record
	// already covers the mutations.
	LogModeNone
	// LogModeShortInserts is set while populating a freshly created page;
	// records are logged the same way as under LogModeAll.
	LogModeShortInserts
)

type memoSlot struct {
	block *buffer_pool.BufferBlock
	mode  latch.Mode
}

// Mtr is a mini-transaction: a scoped group of page mutations that are
// latched together, logged together and released together.
type Mtr struct {
	active  bool
	logMode LogMode
	memo    []memoSlot
	log     []LogRec
	sink    RedoSink
}

// New returns an mtr bound to a redo sink. The same value is restarted via
// Start after each Commit.
func New(sink RedoSink) *Mtr {
	return &Mtr{sink: sink}
}

// Start opens the mtr. Panics if it is already active: an unfinished mtr
// still holds latches.
func (m *Mtr) Start() {
	if m.active {
		panic("mtr: started while active")
	}
	m.active = true
	m.logMode = LogModeAll
	m.memo = m.memo[:0]
	m.log = m.log[:0]
}

// Commit writes the batched logical records to the redo sink and releases
// every latch in reverse acquisition order.
func (m *Mtr) Commit() {
	if !m.active {
		panic("mtr: commit while inactive")
	}

	if len(m.log) > 0 && m.sink != nil {
		m.sink.WriteBatch(m.log)
	}

	for i := len(m.memo) - 1; i >= 0; i-- {
		slot := m.memo[i]
		switch slot.mode {
		case latch.Exclusive:
			slot.block.Latch().XUnlock()
		case latch.Shared:
			slot.block.Latch().SUnlock()
		}
	}

	m.memo = m.memo[:0]
	m.log = m.log[:0]
	m.active = false
}

// SetLogMode switches the log mode and returns the previous one.
func (m *Mtr) SetLogMode(mode LogMode) LogMode {
	prev := m.logMode
	m.logMode = mode
	return prev
}

func (m *Mtr) LogMode() LogMode {
	return m.logMode
}

func (m *Mtr) Active() bool {
	return m.active
}

// XLatch acquires the block latch exclusively and remembers it in the memo.
// Re-latching a block already held exclusively is a no-op.
func (m *Mtr) XLatch(block *buffer_pool.BufferBlock) {
	if m.MemoContains(block, latch.Exclusive) {
		return
	}
	block.Latch().XLock()
	m.memo = append(m.memo, memoSlot{block, latch.Exclusive})
}

// SLatch acquires the block latch shared and remembers it in the memo.
func (m *Mtr) SLatch(block *buffer_pool.BufferBlock) {
	if m.MemoContains(block, latch.Shared) || m.MemoContains(block, latch.Exclusive) {
		return
	}
	block.Latch().SLock()
	m.memo = append(m.memo, memoSlot{block, latch.Shared})
}

// MemoContains reports whether the memo holds the block with the mode.
func (m *Mtr) MemoContains(block *buffer_pool.BufferBlock, mode latch.Mode) bool {
	for i := range m.memo {
		if m.memo[i].block == block && m.memo[i].mode == mode {
			return true
		}
	}
	return false
}

// appendRec batches one logical record, honoring the log mode.
func (m *Mtr) appendRec(rec LogRec) {
	if m.logMode == LogModeNone {
		return
	}
	m.log = append(m.log, rec)
}

// WriteInitialLogRecord emits a body-less logical record for the block,
// e.g. MLOG_PAGE_CREATE.
func (m *Mtr) WriteInitialLogRecord(block *buffer_pool.BufferBlock, t MlogType) {
	m.appendRec(LogRec{Type: t, Space: block.SpaceID(), Page: block.PageNo()})
}

// LogWriter accumulates the body of one logical record opened with
// OpenAndWriteIndex.
type LogWriter struct {
	mtr  *Mtr
	rec  LogRec
	open bool
}

// OpenAndWriteIndex opens a logical record whose body starts with the page
// offset of rec, the shape shared by the record-level log types. Returns
// nil when logging is suppressed.
func (m *Mtr) OpenAndWriteIndex(block *buffer_pool.BufferBlock, recOffs uint16, t MlogType) *LogWriter {
	if m.logMode == LogModeNone {
		return nil
	}
	w := &LogWriter{
		mtr:  m,
		rec:  LogRec{Type: t, Space: block.SpaceID(), Page: block.PageNo()},
		open: true,
	}
	w.WriteUlint2(uint16(recOffs))
	return w
}

// WriteUlint2 appends a 2-byte big-endian value to the open record body.
func (w *LogWriter) WriteUlint2(v uint16) *LogWriter {
	if w == nil {
		return nil
	}
	w.rec.Body = append(w.rec.Body, util.ConvertUInt2Bytes(v)...)
	return w
}

// WriteUlint4 appends a 4-byte big-endian value.
func (w *LogWriter) WriteUlint4(v uint32) *LogWriter {
	if w == nil {
		return nil
	}
	w.rec.Body = append(w.rec.Body, util.ConvertUInt4Bytes(v)...)
	return w
}

// WriteUint64 appends an 8-byte big-endian value.
func (w *LogWriter) WriteUint64(v uint64) *LogWriter {
	if w == nil {
		return nil
	}
	w.rec.Body = append(w.rec.Body, util.ConvertULong8Bytes(v)...)
	return w
}

// Close hands the record to the mtr batch.
func (w *LogWriter) Close() {
	if w == nil || !w.open {
		return
	}
	w.open = false
	w.mtr.appendRec(w.rec)
}

// WriteUlint writes v into the frame at off and logs it as MLOG_1BYTE,
// MLOG_2BYTES or MLOG_4BYTES.
func (m *Mtr) WriteUlint(block *buffer_pool.BufferBlock, off int, v uint32, t MlogType) {
	frame := block.Frame()
	switch t {
	case MLOG_1BYTE:
		frame[off] = byte(v)
	case MLOG_2BYTES:
		util.WriteUB2(frame, off, uint16(v))
	case MLOG_4BYTES:
		util.WriteUB4(frame, off, v)
	default:
		panic("mtr: bad inline log type")
	}

	rec := LogRec{Type: t, Space: block.SpaceID(), Page: block.PageNo()}
	rec.Body = append(rec.Body, util.ConvertUInt2Bytes(uint16(off))...)
	rec.Body = append(rec.Body, util.ConvertUInt4Bytes(v)...)
	m.appendRec(rec)
}

// WriteUint64Field writes v into the frame at off and logs it as
// MLOG_8BYTES; used for PAGE_MAX_TRX_ID.
func (m *Mtr) WriteUint64Field(block *buffer_pool.BufferBlock, off int, v uint64) {
	util.WriteUB8(block.Frame(), off, v)

	rec := LogRec{Type: MLOG_8BYTES, Space: block.SpaceID(), Page: block.PageNo()}
	rec.Body = append(rec.Body, util.ConvertUInt2Bytes(uint16(off))...)
	rec.Body = append(rec.Body, util.ConvertULong8Bytes(v)...)
	m.appendRec(rec)
}
