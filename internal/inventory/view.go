package inventory

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	StatusAll = "all"
	StatusOK  = "ok"
	StatusLow = "low"

	Uncategorized = "Uncategorized"
)

// Filter narrows a snapshot for display. Zero values mean "no filtering".
type Filter struct {
	Query    string
	Category string
	Status   string
	// TopN keeps the N records with the highest quantity when > 0.
	TopN int
}

// Apply returns the matching records. The snapshot itself is not modified.
func (f Filter) Apply(s *Snapshot) []Record {
	if s == nil {
		return nil
	}
	query := strings.ToLower(strings.TrimSpace(f.Query))
	status := strings.ToLower(f.Status)

	out := make([]Record, 0, len(s.Records))
	for _, r := range s.Records {
		if query != "" &&
			!strings.Contains(strings.ToLower(r.Name), query) &&
			!strings.Contains(strings.ToLower(r.SKU), query) {
			continue
		}
		if f.Category != "" && !strings.EqualFold(f.Category, StatusAll) && categoryOf(r) != f.Category {
			continue
		}
		switch status {
		case StatusLow:
			if !IsLow(r) {
				continue
			}
		case StatusOK:
			if IsLow(r) {
				continue
			}
		}
		out = append(out, r)
	}

	if f.TopN > 0 {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Quantity > out[j].Quantity })
		if len(out) > f.TopN {
			out = out[:f.TopN]
		}
	}
	return out
}

// CategoryTotal aggregates one category.
type CategoryTotal struct {
	Category string          `json:"category"`
	Items    int             `json:"items"`
	Units    int             `json:"units"`
	Value    decimal.Decimal `json:"value"`
	LowStock int             `json:"low_stock"`
}

// Stats are the headline numbers shown above the table.
type Stats struct {
	Items      int             `json:"items"`
	Units      int             `json:"units"`
	LowStock   int             `json:"low_stock"`
	Value      decimal.Decimal `json:"value"`
	Categories []CategoryTotal `json:"categories"`
}

// Summarize computes totals for the whole snapshot.
func Summarize(s *Snapshot) Stats {
	var st Stats
	if s == nil {
		return st
	}

	byCat := map[string]*CategoryTotal{}
	for _, r := range s.Records {
		st.Items++
		st.Units += r.Quantity
		st.Value = st.Value.Add(r.Value())

		name := categoryOf(r)
		ct, ok := byCat[name]
		if !ok {
			ct = &CategoryTotal{Category: name}
			byCat[name] = ct
		}
		ct.Items++
		ct.Units += r.Quantity
		ct.Value = ct.Value.Add(r.Value())
		if IsLow(r) {
			st.LowStock++
			ct.LowStock++
		}
	}

	for _, ct := range byCat {
		st.Categories = append(st.Categories, *ct)
	}
	sort.Slice(st.Categories, func(i, j int) bool {
		return st.Categories[i].Category < st.Categories[j].Category
	})
	return st
}

// Categories lists distinct category names in sorted order.
func Categories(s *Snapshot) []string {
	if s == nil {
		return nil
	}
	seen := map[string]bool{}
	var names []string
	for _, r := range s.Records {
		if r.Category == "" || seen[r.Category] {
			continue
		}
		seen[r.Category] = true
		names = append(names, r.Category)
	}
	sort.Strings(names)
	return names
}

// Lookup finds records by scanned or typed code: exact SKU match first
// (case-insensitive), then SKU substring.
func Lookup(s *Snapshot, code string) []Record {
	code = strings.ToLower(strings.TrimSpace(code))
	if s == nil || code == "" {
		return nil
	}

	var exact []Record
	for _, r := range s.Records {
		if strings.ToLower(r.SKU) == code || strings.ToLower(r.ID()) == code {
			exact = append(exact, r)
		}
	}
	if len(exact) > 0 {
		return exact
	}

	var partial []Record
	for _, r := range s.Records {
		if r.SKU != "" && strings.Contains(strings.ToLower(r.SKU), code) {
			partial = append(partial, r)
		}
	}
	return partial
}

func categoryOf(r Record) string {
	if r.Category == "" {
		return Uncategorized
	}
	return r.Category
}
