package basic

import "math"

// Scalar identifier types shared across the engine packages.

type (
	// SpaceID is a tablespace identifier.
	SpaceID uint32
	// PageNo is a page number within a tablespace.
	PageNo uint32
	// TrxID is a transaction identifier (DB_TRX_ID).
	TrxID uint64
	// RollPtr points at the undo record that produced a row version.
	RollPtr uint64
	// UndoNo is the per-transaction undo record sequence number.
	UndoNo uint64
	// TableID is a dictionary table identifier.
	TableID uint64
	// IndexID is a dictionary index identifier.
	IndexID uint64
	// LSN is a redo log sequence number.
	LSN uint64
)

const (
	// UnivPageSizeShift is the 2-logarithm of the page size.
	UnivPageSizeShift = 14
	// UnivPageSize is the universal page size of the database.
	UnivPageSize = 1 << UnivPageSizeShift
)

// UlintUndefined is the sentinel for "value not known"; bulk delete callers
// pass it when the sublist size has not been computed yet.
const UlintUndefined = math.MaxUint32

// UnivSQLNull as the length of a logical field means the field holds the
// SQL NULL. It must fit in 32 bits because lengths are stored as 32-bit
// integers in undo records.
const UnivSQLNull uint32 = math.MaxUint32

// UnivExternStorageField flags a length whose field data continues in
// overflow pages; the locally stored length is len - UnivExternStorageField.
const UnivExternStorageField uint32 = UnivSQLNull - UnivPageSize

// RecoveryLevel mirrors innodb_force_recovery.
type RecoveryLevel int

const (
	RecoveryDefault RecoveryLevel = iota
	RecoveryIgnoreCorrupt
	RecoveryNoBackground
	RecoveryNoTrxUndo
	RecoveryNoIbufMerge
	RecoveryNoUndoLogScan
	RecoveryNoLogRedo
)
