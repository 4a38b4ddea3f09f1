package record

import "github.com/filasieno/embedded-innodb/innodb/basic"

// Compilation info flags carried by update undo records.
const (
	UpdNodeNoOrdChange  = 1 // no ordering column of any index changed
	UpdNodeNoSizeChange = 2 // the record size is unchanged
)

// UpdField is one changed field: the clustered field position and the value
// to install. Len follows the UnivSQLNull / UnivExternStorageField
// conventions.
type UpdField struct {
	FieldNo uint16
	Data    []byte
	Len     uint32
}

// Update is an ordered set of field changes on a clustered record, plus the
// info bits the record should end up with.
type Update struct {
	Fields   []UpdField
	InfoBits byte
}

func NewUpdate(n int) *Update {
	return &Update{Fields: make([]UpdField, 0, n)}
}

func (u *Update) NFields() int {
	if u == nil {
		return 0
	}
	return len(u.Fields)
}

// AppendField records one change.
func (u *Update) AppendField(fieldNo int, data []byte, length uint32) {
	u.Fields = append(u.Fields, UpdField{FieldNo: uint16(fieldNo), Data: data, Len: length})
}

// ApplyToTuple installs the update's values into the tuple in place. Field
// numbers address tuple positions directly (the clustered row image).
func (u *Update) ApplyToTuple(tuple *DTuple) {
	if u == nil {
		return
	}
	tuple.InfoBits = u.InfoBits
	for i := range u.Fields {
		f := &u.Fields[i]
		tuple.Fields[f.FieldNo] = DField{Data: f.Data, Len: f.Len}
	}
}

// ChangesOrdFieldBinary reports whether the update touches any column the
// index orders by.
func ChangesOrdFieldBinary(meta *Meta, update *Update) bool {
	if update == nil {
		return false
	}
	for i := range update.Fields {
		for j := range meta.Cols {
			if meta.Cols[j].RowNo == int(update.Fields[i].FieldNo) {
				return true
			}
		}
	}
	return false
}

// BuildSecRecDifferenceBinary diffs a secondary index record against the
// desired entry and returns the update that transforms the record into the
// entry. The comparison is binary: fields that are equal under the
// collation but differ in bytes (the 'abc' vs 'aBc' case) produce a
// change. Field numbers are secondary-index field positions here.
func BuildSecRecDifferenceBinary(entry *DTuple, frame []byte, origin int, offs Offsets) *Update {
	update := NewUpdate(len(entry.Fields))

	for i := range entry.Fields {
		data, length := GetNthField(frame, origin, offs, i)
		f := &entry.Fields[i]

		equal := length == f.Len
		if equal && f.Len != basic.UnivSQLNull {
			equal = string(data) == string(f.Data)
		}
		if !equal {
			update.AppendField(i, f.Data, f.Len)
		}
	}

	if len(update.Fields) == 0 {
		return nil
	}
	return update
}
