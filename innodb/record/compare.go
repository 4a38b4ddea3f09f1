package record

import (
	"bytes"

	"github.com/shopspring/decimal"

	"github.com/filasieno/embedded-innodb/innodb/basic"
)

// foldCase lowers ASCII letters, the comparison rule of the english
// (case-insensitive) collation.
func foldCase(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + 'a' - 'A'
	}
	return b
}

// CmpData compares two field values of the given type. SQL NULL sorts
// below every value and equal to NULL.
func CmpData(dtype DType, a []byte, alen uint32, b []byte, blen uint32) int {
	aNull := alen == basic.UnivSQLNull
	bNull := blen == basic.UnivSQLNull
	switch {
	case aNull && bNull:
		return 0
	case aNull:
		return -1
	case bNull:
		return 1
	}

	switch dtype.MType {
	case DATA_DECIMAL:
		da, errA := decimal.NewFromString(string(a))
		db, errB := decimal.NewFromString(string(b))
		if errA == nil && errB == nil {
			return da.Cmp(db)
		}
		// Unparseable decimals fall back to the binary order.
	case DATA_VARCHAR, DATA_CHAR:
		if dtype.PrType&DATA_ENGLISH != 0 {
			n := len(a)
			if len(b) < n {
				n = len(b)
			}
			for i := 0; i < n; i++ {
				ca, cb := foldCase(a[i]), foldCase(b[i])
				if ca != cb {
					if ca < cb {
						return -1
					}
					return 1
				}
			}
			switch {
			case len(a) < len(b):
				return -1
			case len(a) > len(b):
				return 1
			}
			return 0
		}
	}

	return bytes.Compare(a, b)
}

// statusOrder positions the system records around user records.
func statusOrder(status byte) int {
	switch status {
	case StatusInfimum:
		return -1
	case StatusSupremum:
		return 1
	default:
		return 0
	}
}

// CmpDtupleRec compares a search tuple against a physical record. Only the
// tuple's fields participate; a tuple that is a strict prefix of an equal
// record compares equal.
func CmpDtupleRec(meta *Meta, tuple *DTuple, frame []byte, origin int, offs Offsets) int {
	if s := statusOrder(GetStatus(frame, origin)); s != 0 {
		// User tuples sort above infimum and below supremum.
		return -s
	}

	n := len(tuple.Fields)
	if rn := offs.NFields(); rn < n {
		n = rn
	}
	for i := 0; i < n; i++ {
		data, length := GetNthField(frame, origin, offs, i)
		f := &tuple.Fields[i]
		if c := CmpData(meta.Cols[i].Type, f.Data, f.Len, data, length); c != 0 {
			return c
		}
	}
	return 0
}

// CmpRecRec compares two physical records of the same index; used by the
// key-order validation. Returns -1, 0 or 1.
func CmpRecRec(meta *Meta, frame1 []byte, origin1 int, offs1 Offsets, frame2 []byte, origin2 int, offs2 Offsets) int {
	s1 := statusOrder(GetStatus(frame1, origin1))
	s2 := statusOrder(GetStatus(frame2, origin2))
	if s1 != s2 {
		if s1 < s2 {
			return -1
		}
		return 1
	}

	n := offs1.NFields()
	if rn := offs2.NFields(); rn < n {
		n = rn
	}
	for i := 0; i < n; i++ {
		d1, l1 := GetNthField(frame1, origin1, offs1, i)
		d2, l2 := GetNthField(frame2, origin2, offs2, i)
		if c := CmpData(meta.Cols[i].Type, d1, l1, d2, l2); c != 0 {
			return c
		}
	}
	return 0
}

// TuplesEqual reports field-wise equality under the index collation.
func TuplesEqual(meta *Meta, a, b *DTuple) bool {
	if len(a.Fields) != len(b.Fields) {
		return false
	}
	for i := range a.Fields {
		if CmpData(meta.Cols[i].Type, a.Fields[i].Data, a.Fields[i].Len, b.Fields[i].Data, b.Fields[i].Len) != 0 {
			return false
		}
	}
	return true
}
