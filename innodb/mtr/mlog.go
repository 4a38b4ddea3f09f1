package mtr

import (
	"sync"

	"github.com/filasieno/embedded-innodb/innodb/basic"
	"github.com/filasieno/embedded-innodb/util"
)

// MlogType identifies a logical redo record.
type MlogType byte

const (
	MLOG_1BYTE  MlogType = 1
	MLOG_2BYTES MlogType = 2
	MLOG_4BYTES MlogType = 4
	MLOG_8BYTES MlogType = 8

	MLOG_REC_INSERT            MlogType = 9
	MLOG_REC_CLUST_DELETE_MARK MlogType = 10
	MLOG_REC_SEC_DELETE_MARK   MlogType = 11
	MLOG_REC_UPDATE_IN_PLACE   MlogType = 13
	MLOG_REC_DELETE            MlogType = 14
	MLOG_LIST_END_DELETE       MlogType = 15
	MLOG_LIST_START_DELETE     MlogType = 16
	MLOG_LIST_END_COPY_CREATED MlogType = 17
	MLOG_PAGE_REORGANIZE       MlogType = 18
	MLOG_PAGE_CREATE           MlogType = 19
)

// LogRec is one logical record: type, page address and body.
type LogRec struct {
	Type  MlogType
	Space basic.SpaceID
	Page  basic.PageNo
	Body  []byte
}

// Serialize renders the record in the on-log big-endian layout.
func (r *LogRec) Serialize() []byte {
	buff := make([]byte, 0, 11+len(r.Body))
	buff = append(buff, byte(r.Type))
	buff = append(buff, util.ConvertUInt4Bytes(uint32(r.Space))...)
	buff = append(buff, util.ConvertUInt4Bytes(uint32(r.Page))...)
	buff = append(buff, util.ConvertUInt2Bytes(uint16(len(r.Body)))...)
	buff = append(buff, r.Body...)
	return buff
}

// RedoSink receives the batched records of a committing mtr. The real log
// writer lives outside the core; tests use BufferedRedo.
type RedoSink interface {
	// WriteBatch appends the records atomically and returns the end LSN.
	WriteBatch(recs []LogRec) basic.LSN
	// FreeCheck blocks until the log has room; called before mutating ops
	// whose redo might overflow the buffer.
	FreeCheck()
}

// BufferedRedo keeps committed records in memory, assigning LSNs in commit
// order.
type BufferedRedo struct {
	mu   sync.Mutex
	lsn  basic.LSN
	recs []LogRec
	raw  []byte
}

func NewBufferedRedo() *BufferedRedo {
	return &BufferedRedo{}
}

func (b *BufferedRedo) WriteBatch(recs []LogRec) basic.LSN {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range recs {
		data := recs[i].Serialize()
		b.raw = append(b.raw, data...)
		b.lsn += basic.LSN(len(data))
	}
	b.recs = append(b.recs, recs...)
	return b.lsn
}

func (b *BufferedRedo) FreeCheck() {}

// Records returns a snapshot of everything written so far.
func (b *BufferedRedo) Records() []LogRec {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]LogRec, len(b.recs))
	copy(out, b.recs)
	return out
}

// RecordsOfType filters the committed records by type.
func (b *BufferedRedo) RecordsOfType(t MlogType) []LogRec {
	var out []LogRec
	for _, rec := range b.Records() {
		if rec.Type == t {
			out = append(out, rec)
		}
	}
	return out
}

// Reset drops all buffered records, for test isolation.
func (b *BufferedRedo) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recs = nil
	b.raw = nil
}
