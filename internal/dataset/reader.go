package dataset

import (
	"encoding/csv"
	"io"
)

// newLenientCSVReader returns a reader tolerant of ragged rows, which
// show up often in hand-edited exports.
func newLenientCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return cr
}
