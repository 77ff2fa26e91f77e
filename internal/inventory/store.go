package inventory

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Shadansa24/Inventory-app/internal/logger"
)

// StoreOptions controls how rows are turned into records.
type StoreOptions struct {
	// DefaultReorderThreshold applies when the file has no threshold column
	// or a row leaves the threshold blank.
	DefaultReorderThreshold int

	// SuppliersPath and SalesPath name optional companion files. A missing
	// file is skipped; an unreadable one becomes a snapshot warning.
	SuppliersPath string
	SalesPath     string
}

// Store reads inventory CSV files. It keeps no snapshot of its own: every
// Load reads the file again, and callers own the returned Snapshot.
type Store struct {
	opts StoreOptions

	mu          sync.RWMutex
	lastLoaded  time.Time
	lastRecords int
	lastErr     error
	loads       int64
}

func NewStore(opts StoreOptions) *Store {
	return &Store{opts: opts}
}

// Load reads the CSV at path into a new Snapshot. It returns *DataLoadError
// when the file cannot be used at all and *DataValidationError when a row is
// malformed; in both cases no snapshot is returned.
func (s *Store) Load(ctx context.Context, path string) (*Snapshot, error) {
	start := time.Now()
	snap, err := s.load(ctx, path)

	s.mu.Lock()
	s.loads++
	s.lastErr = err
	if err == nil {
		s.lastLoaded = snap.LoadedAt
		s.lastRecords = snap.Len()
	}
	s.mu.Unlock()

	if err != nil {
		logger.LogWarn("Inventory load from %s failed: %v", path, err)
		return nil, err
	}
	logger.LogDebug("Loaded %d inventory records from %s in %v", snap.Len(), path, time.Since(start))
	return snap, nil
}

func (s *Store) load(ctx context.Context, path string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, &DataLoadError{Path: path, Reason: "load cancelled", Err: err}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, &DataLoadError{Path: path, Reason: "cannot open file", Err: err}
	}
	defer f.Close()

	snap, err := Parse(f, path, s.opts)
	if err != nil {
		return nil, err
	}

	if s.opts.SuppliersPath != "" {
		snap.Suppliers, err = loadCompanion(s.opts.SuppliersPath, ParseSuppliers)
		if err != nil {
			snap.warn("Suppliers", s.opts.SuppliersPath, err)
		}
		snap.resolveSuppliers()
	}
	if s.opts.SalesPath != "" {
		snap.Sales, err = loadCompanion(s.opts.SalesPath, ParseSales)
		if err != nil {
			snap.warn("Sales", s.opts.SalesPath, err)
		}
	}
	return snap, nil
}

// loadCompanion opens and parses an optional file; a file that does not
// exist yields the zero value and no error.
func loadCompanion[T any](path string, parse func(io.Reader, string) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.LogDebug("Optional file %s not found, skipping", path)
		return zero, nil
	}
	if err != nil {
		return zero, &DataLoadError{Path: path, Reason: "cannot open file", Err: err}
	}
	defer f.Close()
	return parse(f, path)
}

func (s *Snapshot) warn(what, path string, err error) {
	logger.LogWarn("%s file %s ignored: %v", what, path, err)
	s.Warnings = append(s.Warnings, fmt.Sprintf("%s data ignored: %v", what, err))
}

// LoadStats describes the most recent Load call for health reporting.
type LoadStats struct {
	Loads       int64     `json:"loads"`
	LastLoaded  time.Time `json:"last_loaded"`
	LastRecords int       `json:"last_records"`
	LastError   string    `json:"last_error,omitempty"`
}

func (s *Store) Stats() LoadStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := LoadStats{Loads: s.loads, LastLoaded: s.lastLoaded, LastRecords: s.lastRecords}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// column identifies which record field a header maps to.
type column int

const (
	colNone column = iota
	colSKU
	colName
	colQuantity
	colThreshold
	colCategory
	colPrice
	colSupplier
	colProductID
)

var columnNames = map[column]string{
	colSKU:       "sku",
	colName:      "name",
	colQuantity:  "quantity",
	colThreshold: "reorder_threshold",
	colCategory:  "category",
	colPrice:     "unit_price",
	colSupplier:  "supplier_id",
	colProductID: "product_id",
}

type alias struct {
	col      column
	priority int
}

// headerAliases maps normalized header names to fields. When several headers
// map to the same field the lowest priority wins.
var headerAliases = map[string]alias{
	"sku":              {colSKU, 0},
	"productid":        {colSKU, 1},
	"itemid":           {colSKU, 2},
	"id":               {colSKU, 3},
	"name":             {colName, 0},
	"productname":      {colName, 1},
	"itemname":         {colName, 2},
	"item":             {colName, 3},
	"product":          {colName, 4},
	"quantity":         {colQuantity, 0},
	"qty":              {colQuantity, 1},
	"stock":            {colQuantity, 2},
	"onhand":           {colQuantity, 3},
	"reorderthreshold": {colThreshold, 0},
	"reorderlevel":     {colThreshold, 1},
	"reorderpoint":     {colThreshold, 2},
	"minstock":         {colThreshold, 3},
	"threshold":        {colThreshold, 4},
	"min":              {colThreshold, 5},
	"category":         {colCategory, 0},
	"unitprice":        {colPrice, 0},
	"price":            {colPrice, 1},
	"supplierid":       {colSupplier, 0},
	"supplier":         {colSupplier, 1},
}

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(h)
}

// Parse reads CSV data into a Snapshot. source is used for error messages
// and recorded on the snapshot.
func Parse(r io.Reader, source string, opts StoreOptions) (*Snapshot, error) {
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

	index, err := resolveColumns(header)
	if err != nil {
		return nil, &DataLoadError{Path: source, Reason: err.Error()}
	}

	snap := &Snapshot{
		Source:       source,
		HasCategory:  index[colCategory] >= 0,
		HasPrice:     index[colPrice] >= 0,
		HasThreshold: index[colThreshold] >= 0,
	}

	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return nil, &DataValidationError{Row: perr.Line, Reason: "malformed CSV", Err: err}
			}
			return nil, &DataLoadError{Path: source, Reason: "read failed", Err: err}
		}

		line, _ := reader.FieldPos(0)
		if len(fields) != len(header) {
			return nil, &DataValidationError{
				Row:    line,
				Reason: fmt.Sprintf("expected %d fields, got %d", len(header), len(fields)),
			}
		}

		rec, err := parseRecord(fields, index, line, opts)
		if err != nil {
			return nil, err
		}
		snap.Records = append(snap.Records, rec)
	}

	snap.LoadedAt = time.Now()
	return snap, nil
}

func resolveColumns(header []string) (map[column]int, error) {
	index := map[column]int{}
	best := map[column]int{}
	for c := range columnNames {
		index[c] = -1
	}

	for i, h := range header {
		a, ok := headerAliases[normalizeHeader(h)]
		if !ok {
			continue
		}
		if p, seen := best[a.col]; seen && p <= a.priority {
			continue
		}
		best[a.col] = a.priority
		index[a.col] = i
	}
	// Product_ID also keys sales rows, so keep it even when SKU won the
	// identity column.
	for i, h := range header {
		if normalizeHeader(h) == "productid" {
			index[colProductID] = i
			break
		}
	}

	var missing []string
	if index[colSKU] < 0 && index[colName] < 0 {
		missing = append(missing, "sku or name")
	}
	if index[colQuantity] < 0 {
		missing = append(missing, "quantity")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required column(s): %s", strings.Join(missing, ", "))
	}
	return index, nil
}

func parseRecord(fields []string, index map[column]int, line int, opts StoreOptions) (Record, error) {
	get := func(c column) string {
		if i := index[c]; i >= 0 {
			return strings.TrimSpace(fields[i])
		}
		return ""
	}

	rec := Record{
		SKU:        get(colSKU),
		Name:       get(colName),
		Category:   get(colCategory),
		SupplierID: get(colSupplier),
		ProductID:  get(colProductID),
		Row:        line,
	}
	if rec.ID() == "" {
		return Record{}, &DataValidationError{Row: line, Column: "sku/name", Reason: "item identity is blank"}
	}

	qty, err := parseCount(get(colQuantity))
	if err != nil {
		return Record{}, &DataValidationError{Row: line, Column: columnNames[colQuantity], Value: get(colQuantity), Reason: err.Error(), Err: err}
	}
	rec.Quantity = qty

	rec.ReorderThreshold = opts.DefaultReorderThreshold
	if raw := get(colThreshold); raw != "" {
		th, err := parseCount(raw)
		if err != nil {
			return Record{}, &DataValidationError{Row: line, Column: columnNames[colThreshold], Value: raw, Reason: err.Error(), Err: err}
		}
		rec.ReorderThreshold = th
	}

	if raw := get(colPrice); raw != "" {
		price, err := parsePrice(raw)
		if err != nil {
			return Record{}, &DataValidationError{Row: line, Column: columnNames[colPrice], Value: raw, Reason: err.Error(), Err: err}
		}
		rec.UnitPrice = price
		rec.HasPrice = true
	}

	return rec, nil
}

// maxCount bounds quantities and thresholds so that totals across a large
// file cannot overflow.
const maxCount = math.MaxInt32

var errNotCount = errors.New("must be a whole number between 0 and 2147483647")

// parseCount accepts non-negative integers, including integral decimals such
// as "12.0" that spreadsheet exports tend to produce.
func parseCount(raw string) (int, error) {
	if raw == "" {
		return 0, errors.New("value is required")
	}
	if n, err := strconv.Atoi(raw); err == nil {
		if n < 0 || n > maxCount {
			return 0, errNotCount
		}
		return n, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || !d.IsInteger() || d.IsNegative() || !d.LessThanOrEqual(decimal.NewFromInt(maxCount)) {
		return 0, errNotCount
	}
	return int(d.IntPart()), nil
}

func parsePrice(raw string) (decimal.Decimal, error) {
	cleaned := strings.ReplaceAll(strings.TrimPrefix(raw, "$"), ",", "")
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, errors.New("must be a number")
	}
	if d.IsNegative() {
		return decimal.Decimal{}, errors.New("must not be negative")
	}
	return d, nil
}
