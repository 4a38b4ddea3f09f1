// Package undo implements transaction rollback: parsing undo records and
// replaying them back through the clustered and secondary indexes.
package undo

import (
	"github.com/juju/errors"

	"github.com/filasieno/embedded-innodb/innodb/basic"
	"github.com/filasieno/embedded-innodb/innodb/record"
	"github.com/filasieno/embedded-innodb/util"
)

// Undo record types.
const (
	TrxUndoInsertRec   = 11 // fresh insert into a clustered index
	TrxUndoUpdExistRec = 12 // update of a non-delete-marked record
	TrxUndoUpdDelRec   = 13 // insert by delete-unmarking a delete-marked record
	TrxUndoDelMarkRec  = 14 // delete marking of a record
)

// Undo record layout (big-endian):
//
//	type(1) cmpl_info(1) undo_no(8) table_id(8)
//	-- modify records then carry the previous version's system columns:
//	info_bits(1) trx_id(8) roll_ptr(8)
//	-- every record continues with the row reference:
//	n_ref(1) { len(4) data(len) }*
//	-- modify records end with the update vector:
//	n_upd(2) { field_no(2) len(4) data(len) }*
//
// Lengths follow the UnivSQLNull / UnivExternStorageField conventions; the
// stored bytes of an extern field are its local prefix.

// BuildInsertUndoRec encodes a fresh-insert undo record: only the row
// reference is needed to find and remove the record again.
func BuildInsertUndoRec(undoNo basic.UndoNo, tableID basic.TableID, ref *record.DTuple) []byte {
	buff := make([]byte, 0, 32)
	buff = append(buff, TrxUndoInsertRec, 0)
	buff = append(buff, util.ConvertULong8Bytes(uint64(undoNo))...)
	buff = append(buff, util.ConvertULong8Bytes(uint64(tableID))...)
	buff = appendRef(buff, ref)
	return buff
}

// BuildModifyUndoRec encodes an update/delete-mark undo record. The update
// vector holds the old values of the changed fields; trxID and rollPtr are
// the system columns of the previous version.
func BuildModifyUndoRec(recType byte, cmplInfo byte, undoNo basic.UndoNo, tableID basic.TableID,
	infoBits byte, trxID basic.TrxID, rollPtr basic.RollPtr, ref *record.DTuple, update *record.Update) []byte {

	buff := make([]byte, 0, 64)
	buff = append(buff, recType, cmplInfo)
	buff = append(buff, util.ConvertULong8Bytes(uint64(undoNo))...)
	buff = append(buff, util.ConvertULong8Bytes(uint64(tableID))...)

	buff = append(buff, infoBits)
	buff = append(buff, util.ConvertULong8Bytes(uint64(trxID))...)
	buff = append(buff, util.ConvertULong8Bytes(uint64(rollPtr))...)
	buff = appendRef(buff, ref)

	buff = append(buff, util.ConvertUInt2Bytes(uint16(update.NFields()))...)
	for i := range update.Fields {
		f := &update.Fields[i]
		buff = append(buff, util.ConvertUInt2Bytes(f.FieldNo)...)
		buff = append(buff, util.ConvertUInt4Bytes(f.Len)...)
		if f.Len != basic.UnivSQLNull {
			buff = append(buff, f.Data[:localLen(f.Len)]...)
		}
	}
	return buff
}

func localLen(length uint32) uint32 {
	if length == basic.UnivSQLNull {
		return 0
	}
	if length >= basic.UnivExternStorageField {
		return length - basic.UnivExternStorageField
	}
	return length
}

func appendRef(buff []byte, ref *record.DTuple) []byte {
	buff = append(buff, byte(len(ref.Fields)))
	for i := range ref.Fields {
		f := &ref.Fields[i]
		buff = append(buff, util.ConvertUInt4Bytes(f.Len)...)
		if f.Len != basic.UnivSQLNull {
			buff = append(buff, f.Data[:localLen(f.Len)]...)
		}
	}
	return buff
}

// GetPars reads the header of an undo record: its type, compilation info,
// undo number and table id. The remainder of the buffer is returned for
// the follow-up parsers.
func GetPars(rec []byte) (recType byte, cmplInfo byte, undoNo basic.UndoNo, tableID basic.TableID, rest []byte, err error) {
	if len(rec) < 18 {
		return 0, 0, 0, 0, nil, errors.New("undo record truncated")
	}
	recType = rec[0]
	cmplInfo = rec[1]
	undoNo = basic.UndoNo(util.ReadUB8Byte2Long(rec[2:]))
	tableID = basic.TableID(util.ReadUB8Byte2Long(rec[10:]))
	return recType, cmplInfo, undoNo, tableID, rec[18:], nil
}

// GetUndoNo reads only the undo number.
func GetUndoNo(rec []byte) basic.UndoNo {
	return basic.UndoNo(util.ReadUB8Byte2Long(rec[2:]))
}

func parseField(rest []byte) (record.DField, []byte, error) {
	if len(rest) < 4 {
		return record.DField{}, nil, errors.New("undo field truncated")
	}
	length := util.ReadUB4Byte2UInt32(rest)
	rest = rest[4:]

	if length == basic.UnivSQLNull {
		return record.DField{Len: basic.UnivSQLNull}, rest, nil
	}

	local := int(localLen(length))
	if len(rest) < local {
		return record.DField{}, nil, errors.New("undo field data truncated")
	}
	data := append([]byte(nil), rest[:local]...)
	return record.DField{Data: data, Len: length}, rest[local:], nil
}

// GetRowRef reads the row reference: the clustered key of the row the undo
// record applies to.
func GetRowRef(rest []byte) (*record.DTuple, []byte, error) {
	if len(rest) < 1 {
		return nil, nil, errors.New("undo row ref truncated")
	}
	n := int(rest[0])
	rest = rest[1:]

	ref := record.NewTuple(n)
	for i := 0; i < n; i++ {
		var f record.DField
		var err error
		f, rest, err = parseField(rest)
		if err != nil {
			return nil, nil, errors.Trace(err)
		}
		ref.Fields[i] = f
	}
	return ref, rest, nil
}

// UpdateRecGetSysCols reads the previous version's system columns from a
// modify undo record.
func UpdateRecGetSysCols(rest []byte) (trxID basic.TrxID, rollPtr basic.RollPtr, infoBits byte, out []byte, err error) {
	if len(rest) < 17 {
		return 0, 0, 0, nil, errors.New("undo sys cols truncated")
	}
	infoBits = rest[0]
	trxID = basic.TrxID(util.ReadUB8Byte2Long(rest[1:]))
	rollPtr = basic.RollPtr(util.ReadUB8Byte2Long(rest[9:]))
	return trxID, rollPtr, infoBits, rest[17:], nil
}

// UpdateRecGetUpdate reads the update vector of a modify undo record and
// folds the system column restoration into it, so that applying the vector
// rewrites trx_id and roll_ptr along with the user columns.
func UpdateRecGetUpdate(rest []byte, clustMeta *record.Meta, trxID basic.TrxID, rollPtr basic.RollPtr, infoBits byte) (*record.Update, error) {
	if len(rest) < 2 {
		return nil, errors.New("undo update vector truncated")
	}
	n := int(util.ReadUB2Byte2Int(rest))
	rest = rest[2:]

	update := record.NewUpdate(n + 2)
	update.InfoBits = infoBits

	for i := 0; i < n; i++ {
		if len(rest) < 2 {
			return nil, errors.New("undo update field truncated")
		}
		fieldNo := int(util.ReadUB2Byte2Int(rest))
		rest = rest[2:]

		var f record.DField
		var err error
		f, rest, err = parseField(rest)
		if err != nil {
			return nil, errors.Trace(err)
		}
		update.AppendField(fieldNo, f.Data, f.Len)
	}

	update.AppendField(clustMeta.TrxIDPos, util.ConvertULong8Bytes(uint64(trxID)), 8)
	update.AppendField(clustMeta.RollPtrPos, util.ConvertULong8Bytes(uint64(rollPtr)), 8)

	return update, nil
}
