package inventory

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Supplier is one row of the suppliers file.
type Supplier struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Suppliers indexes suppliers by ID.
type Suppliers map[string]Supplier

// NameOf returns the supplier name for id, or "" when it is unknown.
func (s Suppliers) NameOf(id string) string {
	if id == "" {
		return ""
	}
	return s[strings.TrimSpace(id)].Name
}

// table is a CSV file read by header name, for the companion files whose
// layout is fixed.
type table struct {
	source string
	index  map[string]int
	reader *csv.Reader
}

func openTable(r io.Reader, source string, required ...string) (*table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, &DataLoadError{Path: source, Reason: "file is empty, header row required"}
	}
	if err != nil {
		return nil, &DataLoadError{Path: source, Reason: "cannot read header row", Err: err}
	}

	t := &table{source: source, index: make(map[string]int, len(header)), reader: reader}
	for i, h := range header {
		t.index[normalizeHeader(h)] = i
	}
	var missing []string
	for _, col := range required {
		if _, ok := t.index[normalizeHeader(col)]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &DataLoadError{Path: source, Reason: "missing required column(s): " + strings.Join(missing, ", ")}
	}
	return t, nil
}

// next returns the next row and its line, or io.EOF.
func (t *table) next() (func(col string) string, int, error) {
	fields, err := t.reader.Read()
	if err != nil {
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			return nil, perr.Line, &DataValidationError{Row: perr.Line, Reason: "malformed CSV in " + t.source, Err: err}
		}
		return nil, 0, err
	}
	line, _ := t.reader.FieldPos(0)
	get := func(col string) string {
		if i, ok := t.index[col]; ok && i < len(fields) {
			return strings.TrimSpace(fields[i])
		}
		return ""
	}
	return get, line, nil
}

// ParseSuppliers reads a suppliers file with at least Supplier_ID and
// Supplier_Name columns.
func ParseSuppliers(r io.Reader, source string) (Suppliers, error) {
	t, err := openTable(r, source, "Supplier_ID", "Supplier_Name")
	if err != nil {
		return nil, err
	}

	out := Suppliers{}
	for {
		get, line, err := t.next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		sup := Supplier{
			ID:    get("supplierid"),
			Name:  get("suppliername"),
			Email: get("email"),
			Phone: get("phone"),
		}
		if sup.ID == "" {
			return nil, &DataValidationError{Row: line, Column: "supplier_id", Reason: fmt.Sprintf("blank supplier id in %s", source)}
		}
		out[sup.ID] = sup
	}
}

// resolveSuppliers fills SupplierName on every record with a known supplier.
func (s *Snapshot) resolveSuppliers() {
	if len(s.Suppliers) == 0 {
		return
	}
	for i := range s.Records {
		s.Records[i].SupplierName = s.Suppliers.NameOf(s.Records[i].SupplierID)
	}
}
