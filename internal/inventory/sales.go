package inventory

import (
	"errors"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Sale is one row of the sales file.
type Sale struct {
	ID        string          `json:"id,omitempty"`
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	At        time.Time       `json:"at"`
}

// Revenue is quantity × unit price.
func (s Sale) Revenue() decimal.Decimal {
	return s.UnitPrice.Mul(decimal.NewFromInt(int64(s.Quantity)))
}

var saleTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseSaleTime(raw string) (time.Time, error) {
	for _, layout := range saleTimeLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("not a recognised date/time")
}

// ParseSales reads a sales file with Product_ID, Qty and Timestamp columns;
// Sale_ID and UnitPrice are optional.
func ParseSales(r io.Reader, source string) ([]Sale, error) {
	t, err := openTable(r, source, "Product_ID", "Qty", "Timestamp")
	if err != nil {
		return nil, err
	}

	var out []Sale
	for {
		get, line, err := t.next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}

		sale := Sale{ID: get("saleid"), ProductID: get("productid")}
		if sale.ProductID == "" {
			return nil, &DataValidationError{Row: line, Column: "product_id", Reason: "blank product id in " + source}
		}
		if sale.Quantity, err = parseCount(get("qty")); err != nil {
			return nil, &DataValidationError{Row: line, Column: "qty", Value: get("qty"), Reason: err.Error(), Err: err}
		}
		if raw := get("unitprice"); raw != "" {
			if sale.UnitPrice, err = parsePrice(raw); err != nil {
				return nil, &DataValidationError{Row: line, Column: "unit_price", Value: raw, Reason: err.Error(), Err: err}
			}
		}
		if sale.At, err = parseSaleTime(get("timestamp")); err != nil {
			return nil, &DataValidationError{Row: line, Column: "timestamp", Value: get("timestamp"), Reason: err.Error(), Err: err}
		}
		out = append(out, sale)
	}
}

// SalesTotal sums units and revenue.
type SalesTotal struct {
	Units   int             `json:"units"`
	Revenue decimal.Decimal `json:"revenue"`
}

func (t *SalesTotal) add(s Sale) {
	t.Units += s.Quantity
	t.Revenue = t.Revenue.Add(s.Revenue())
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// MonthToDate totals the sales from the first of now's month up to now.
func MonthToDate(sales []Sale, now time.Time) SalesTotal {
	from := monthStart(now)
	var total SalesTotal
	for _, s := range sales {
		at := s.At.In(now.Location())
		if !at.Before(from) && !at.After(now) {
			total.add(s)
		}
	}
	return total
}

// MonthTotal is one point of the monthly sales trend.
type MonthTotal struct {
	Month time.Time `json:"month"`
	SalesTotal
}

// MonthlyTrend totals sales per local calendar month, oldest first.
func MonthlyTrend(sales []Sale) []MonthTotal {
	byMonth := map[int]*MonthTotal{}
	for _, s := range sales {
		m := monthStart(s.At.In(time.Local))
		key := m.Year()*12 + int(m.Month())
		mt, ok := byMonth[key]
		if !ok {
			mt = &MonthTotal{Month: m}
			byMonth[key] = mt
		}
		mt.add(s)
	}

	out := make([]MonthTotal, 0, len(byMonth))
	for _, mt := range byMonth {
		out = append(out, *mt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.Before(out[j].Month) })
	return out
}

// TopSeller aggregates the sales of one product.
type TopSeller struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name,omitempty"`
	Category  string `json:"category,omitempty"`
	SalesTotal
}

// TopSellers ranks products by units sold, then revenue, and keeps the
// first n. Names and categories come from the snapshot's records; sales of
// products missing from the inventory are still ranked.
func TopSellers(s *Snapshot, n int) []TopSeller {
	if s == nil || len(s.Sales) == 0 {
		return nil
	}

	byProduct := map[string]*TopSeller{}
	var order []string
	for _, sale := range s.Sales {
		key := strings.ToLower(sale.ProductID)
		ts, ok := byProduct[key]
		if !ok {
			ts = &TopSeller{ProductID: sale.ProductID}
			if rec, found := s.productByID(sale.ProductID); found {
				ts.Name = rec.Label()
				ts.Category = rec.Category
			}
			byProduct[key] = ts
			order = append(order, key)
		}
		ts.add(sale)
	}

	out := make([]TopSeller, 0, len(order))
	for _, key := range order {
		out = append(out, *byProduct[key])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Units != out[j].Units {
			return out[i].Units > out[j].Units
		}
		return out[i].Revenue.GreaterThan(out[j].Revenue)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// productByID finds the first record whose Product_ID or SKU is id.
func (s *Snapshot) productByID(id string) (Record, bool) {
	for _, r := range s.Records {
		if (r.ProductID != "" && strings.EqualFold(r.ProductID, id)) || (r.SKU != "" && strings.EqualFold(r.SKU, id)) {
			return r, true
		}
	}
	return Record{}, false
}
