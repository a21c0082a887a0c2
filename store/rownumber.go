package store

import "github.com/emar-delivery/backoffice"

// FieldRowNumber is the display ordinal some list-ordered collections carry
// in addition to the record id.
const FieldRowNumber = "row_number"

// NextRowNumber returns the next available row number for a collection's
// records: one past the current maximum, starting at 1.
func NextRowNumber(records []backoffice.Record) int {
	maxRow := 0
	for _, rec := range records {
		if n := rec.GetInt(FieldRowNumber, 0); n > maxRow {
			maxRow = n
		}
	}
	return maxRow + 1
}

// AddRowNumber assigns record a row_number if it doesn't carry one yet.
func AddRowNumber(record backoffice.Record, records []backoffice.Record) backoffice.Record {
	if _, ok := record[FieldRowNumber]; !ok {
		record[FieldRowNumber] = NextRowNumber(records)
	}
	return record
}

// EnsureRowNumbers fills in row numbers for records missing one, using the
// record's position in the array.
func EnsureRowNumbers(records []backoffice.Record) []backoffice.Record {
	for i, rec := range records {
		if _, ok := rec[FieldRowNumber]; !ok {
			rec[FieldRowNumber] = i + 1
		}
	}
	return records
}

// ReindexRowNumbers rewrites every row number so they run sequentially from
// 1 in array order, e.g. after deletions.
func ReindexRowNumbers(records []backoffice.Record) []backoffice.Record {
	for i, rec := range records {
		rec[FieldRowNumber] = i + 1
	}
	return records
}
