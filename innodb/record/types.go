package record

import "github.com/filasieno/embedded-innodb/innodb/basic"

// Main data types, following the dictionary column model.
const (
	DATA_VARCHAR = 1
	DATA_CHAR    = 2
	DATA_BINARY  = 3
	DATA_INT     = 4
	DATA_DECIMAL = 5
	DATA_SYS     = 8 // trx id, roll ptr
)

// Precise-type flag bits.
const (
	DATA_ENGLISH  uint32 = 0x0010 // case-insensitive latin collation
	DATA_NOT_NULL uint32 = 0x0100
	DATA_UNSIGNED uint32 = 0x0200
)

// DType describes one column type.
type DType struct {
	MType  int
	PrType uint32
	Len    uint32
}

// Col is a column as seen by an index: its name, type and the position of
// the column in the clustered row image.
type Col struct {
	Name  string
	Type  DType
	RowNo int
}

// Meta is the record descriptor for one index: the ordered columns a
// physical record of that index carries.
type Meta struct {
	Cols []Col
	// NUnique is the number of leading fields that determine the key.
	NUnique int
	// TrxIDPos/RollPtrPos locate the system columns within the record;
	// -1 on secondary indexes.
	TrxIDPos   int
	RollPtrPos int
}

func (m *Meta) NFields() int {
	return len(m.Cols)
}

// IsClustered reports whether the descriptor carries the system columns,
// which only the clustered index does.
func (m *Meta) IsClustered() bool {
	return m.TrxIDPos >= 0
}

// DField is one field of a logical tuple. Len is UnivSQLNull for SQL NULL;
// a length carrying UnivExternStorageField means Data holds only the
// locally stored prefix of an externally stored column.
type DField struct {
	Data []byte
	Len  uint32
}

// IsNull reports SQL NULL.
func (f *DField) IsNull() bool {
	return f.Len == basic.UnivSQLNull
}

// IsExtern reports an externally stored column.
func (f *DField) IsExtern() bool {
	return f.Len != basic.UnivSQLNull && f.Len >= basic.UnivExternStorageField
}

// LocalLen is the number of bytes stored inline.
func (f *DField) LocalLen() uint32 {
	if f.IsNull() {
		return 0
	}
	if f.IsExtern() {
		return f.Len - basic.UnivExternStorageField
	}
	return f.Len
}

// DTuple is a logical record: an ordered field list plus the record status
// and info bits it should be materialized with.
type DTuple struct {
	Fields   []DField
	Status   byte
	InfoBits byte
}

func NewTuple(n int) *DTuple {
	return &DTuple{Fields: make([]DField, n), Status: StatusOrdinary}
}

// SetField stores data in the nth field.
func (t *DTuple) SetField(i int, data []byte) {
	t.Fields[i] = DField{Data: data, Len: uint32(len(data))}
}

// SetFieldNull marks the nth field SQL NULL.
func (t *DTuple) SetFieldNull(i int) {
	t.Fields[i] = DField{Len: basic.UnivSQLNull}
}

// SetFieldExtern stores the local prefix of an externally stored column.
func (t *DTuple) SetFieldExtern(i int, local []byte) {
	t.Fields[i] = DField{Data: local, Len: uint32(len(local)) + basic.UnivExternStorageField}
}

// Copy deep-copies the tuple.
func (t *DTuple) Copy() *DTuple {
	cp := &DTuple{
		Fields:   make([]DField, len(t.Fields)),
		Status:   t.Status,
		InfoBits: t.InfoBits,
	}
	for i, f := range t.Fields {
		nf := DField{Len: f.Len}
		if f.Data != nil {
			nf.Data = append([]byte(nil), f.Data...)
		}
		cp.Fields[i] = nf
	}
	return cp
}
