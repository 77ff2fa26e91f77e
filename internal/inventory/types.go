package inventory

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Record is one parsed CSV row. Records are never modified after parsing.
type Record struct {
	SKU              string          `json:"sku,omitempty"`
	Name             string          `json:"name,omitempty"`
	Category         string          `json:"category,omitempty"`
	Quantity         int             `json:"quantity"`
	ReorderThreshold int             `json:"reorder_threshold"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	HasPrice         bool            `json:"-"`
	SupplierID       string          `json:"supplier_id,omitempty"`

	// SupplierName is resolved from the suppliers file when one is configured.
	SupplierName string `json:"supplier_name,omitempty"`

	// ProductID is the Product_ID column, which sales rows refer to. It may
	// differ from SKU when a file carries both.
	ProductID string `json:"product_id,omitempty"`

	// Row is the 1-based line of the record in the source file.
	Row int `json:"row"`
}

// ID is the record identity: the SKU when present, otherwise the name.
func (r Record) ID() string {
	if r.SKU != "" {
		return r.SKU
	}
	return r.Name
}

// Label is the human-facing name: the name when present, otherwise the SKU.
func (r Record) Label() string {
	if r.Name != "" {
		return r.Name
	}
	return r.SKU
}

// Value is quantity × unit price, zero when the row has no price.
func (r Record) Value() decimal.Decimal {
	return r.UnitPrice.Mul(decimal.NewFromInt(int64(r.Quantity)))
}

// Snapshot is the whole table as of the last load.
type Snapshot struct {
	Source   string    `json:"source"`
	LoadedAt time.Time `json:"loaded_at"`
	Records  []Record  `json:"records"`

	// Columns lists which optional columns were present in the header.
	HasCategory  bool `json:"has_category"`
	HasPrice     bool `json:"has_price"`
	HasThreshold bool `json:"has_threshold"`

	// Suppliers and Sales come from the optional companion files. Problems
	// with those files are reported in Warnings and never fail the load.
	Suppliers Suppliers `json:"-"`
	Sales     []Sale    `json:"-"`
	Warnings  []string  `json:"warnings,omitempty"`
}

// Len returns the record count; a nil snapshot is empty.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Records)
}

// Duplicates returns identities that appear on more than one row, in first-seen order.
// Duplicate rows are all kept in the snapshot.
func (s *Snapshot) Duplicates() []string {
	if s == nil {
		return nil
	}
	seen := make(map[string]int, len(s.Records))
	var dups []string
	for _, r := range s.Records {
		seen[r.ID()]++
		if seen[r.ID()] == 2 {
			dups = append(dups, r.ID())
		}
	}
	return dups
}

// Alert flags a record at or below its reorder threshold.
type Alert struct {
	Record    Record `json:"record"`
	Quantity  int    `json:"quantity"`
	Threshold int    `json:"threshold"`
}

// Shortfall is how many units bring the item back above its threshold.
func (a Alert) Shortfall() int {
	return a.Threshold - a.Quantity + 1
}

// DataLoadError reports a file that could not be read or lacks required columns.
type DataLoadError struct {
	Path   string
	Reason string
	Err    error
}

func (e *DataLoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("load %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("load %s: %s", e.Path, e.Reason)
}

func (e *DataLoadError) Unwrap() error { return e.Err }

// DataValidationError reports a row whose fields do not fit the record schema.
type DataValidationError struct {
	Row    int
	Column string
	Value  string
	Reason string
	Err    error
}

func (e *DataValidationError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
	}
	return fmt.Sprintf("row %d, column %s: %s (value %q)", e.Row, e.Column, e.Reason, e.Value)
}

func (e *DataValidationError) Unwrap() error { return e.Err }
