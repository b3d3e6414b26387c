// Package dataset loads tabular CSV data and extracts the lightweight
// summaries (schema text, head samples) injected into model prompts.
package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"chartflow/internal/logging"
)

// ColumnKind classifies a column for prompt conditioning and
// instruction suggestion.
type ColumnKind string

const (
	KindNumeric     ColumnKind = "numeric"
	KindBool        ColumnKind = "bool"
	KindCategorical ColumnKind = "categorical"
	KindText        ColumnKind = "text"
)

// maxCategoricalUnique is the distinct-value cutoff below which a
// string or integer column is treated as categorical.
const maxCategoricalUnique = 15

// Column describes one column of a loaded table.
type Column struct {
	Name     string
	Kind     ColumnKind
	Distinct int
}

// Table is an immutable in-memory view of a loaded CSV dataset.
type Table struct {
	Path    string
	Columns []Column
	Rows    [][]string
}

// Load reads a CSV file into a Table. The first record is taken as the
// header row. An unreadable or empty file is an error; the caller maps
// it to its own taxonomy.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	reader := newLenientCSVReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("dataset %s has no header row", path)
	}

	header := records[0]
	rows := records[1:]

	columns := make([]Column, len(header))
	for i, name := range header {
		columns[i] = classifyColumn(strings.TrimSpace(name), columnValues(rows, i))
	}

	logging.Dataset("Loaded %s: %d columns, %d rows", path, len(columns), len(rows))

	return &Table{
		Path:    path,
		Columns: columns,
		Rows:    rows,
	}, nil
}

// Stem returns the dataset filename without directory or extension,
// used in persisted artifact names.
func (t *Table) Stem() string {
	base := filepath.Base(t.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Stem derives an artifact naming stem from a dataset path without
// loading the file. Needed when loading itself fails but the failure
// must still be attributed to a dataset.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// SchemaText returns a minimal textual schema description for prompt
// conditioning.
func (t *Table) SchemaText() string {
	if len(t.Rows) == 0 {
		return "The dataset is empty."
	}
	var b strings.Builder
	for _, col := range t.Columns {
		fmt.Fprintf(&b, "- %s: %s (%d distinct values)\n", col.Name, col.Kind, col.Distinct)
	}
	return strings.TrimRight(b.String(), "\n")
}

// SampleJSON serializes up to n head rows as a JSON array of objects
// for inclusion in model prompts.
func (t *Table) SampleJSON(n int) (string, error) {
	if len(t.Rows) == 0 {
		return "[]", nil
	}
	if n > len(t.Rows) {
		n = len(t.Rows)
	}

	sample := make([]map[string]interface{}, 0, n)
	for _, row := range t.Rows[:n] {
		record := make(map[string]interface{}, len(t.Columns))
		for i, col := range t.Columns {
			if i >= len(row) {
				continue
			}
			record[col.Name] = typedValue(col.Kind, row[i])
		}
		sample = append(sample, record)
	}

	data, err := json.MarshalIndent(sample, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize sample rows: %w", err)
	}
	return string(data), nil
}

// columnValues collects the non-empty values of column i.
func columnValues(rows [][]string, i int) []string {
	values := make([]string, 0, len(rows))
	for _, row := range rows {
		if i >= len(row) {
			continue
		}
		v := strings.TrimSpace(row[i])
		if v != "" {
			values = append(values, v)
		}
	}
	return values
}

// classifyColumn infers a column kind from its values.
func classifyColumn(name string, values []string) Column {
	distinct := make(map[string]struct{}, len(values))
	numeric := len(values) > 0
	boolean := len(values) > 0
	integer := len(values) > 0

	for _, v := range values {
		distinct[v] = struct{}{}
		if numeric {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				numeric = false
			}
		}
		if integer {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				integer = false
			}
		}
		if boolean {
			switch strings.ToLower(v) {
			case "true", "false", "yes", "no":
			default:
				boolean = false
			}
		}
	}

	col := Column{Name: name, Distinct: len(distinct)}
	switch {
	case boolean:
		col.Kind = KindBool
	case integer && len(distinct) <= maxCategoricalUnique:
		// Small integer domains behave like categories (ranks, codes).
		col.Kind = KindCategorical
	case numeric:
		col.Kind = KindNumeric
	case len(distinct) <= maxCategoricalUnique:
		col.Kind = KindCategorical
	default:
		col.Kind = KindText
	}
	return col
}

// typedValue converts a raw CSV string into a JSON-friendly value.
func typedValue(kind ColumnKind, raw string) interface{} {
	raw = strings.TrimSpace(raw)
	switch kind {
	case KindNumeric:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	case KindBool:
		switch strings.ToLower(raw) {
		case "true", "yes":
			return true
		case "false", "no":
			return false
		}
	}
	return raw
}
