// Package prompt turns an inventory snapshot into bounded text context for
// the chat model.
package prompt

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Shadansa24/Inventory-app/internal/inventory"
	"github.com/Shadansa24/Inventory-app/internal/llm"
)

const (
	DefaultMaxChars = 6000
	DefaultMaxRows  = 50

	// topSellers is how many products the sales section names.
	topSellers = 5

	// NoData is returned for a nil or empty snapshot.
	NoData = "No inventory data available."

	truncatedMarker = "... (truncated)"
)

const systemInstructions = `You are an inventory assistant for a small business.
Answer questions using only the inventory data below. Quantities are shown as
"name: quantity/reorder threshold"; an item is low on stock when its quantity is
at or below its threshold. Supplier names and sales figures are included when
known. If the data does not contain the answer, say so.
Keep answers short and use Markdown lists or tables where helpful.`

type Options struct {
	// MaxChars is the hard upper bound on Build output, in bytes.
	MaxChars int
	// MaxRows is how many records are listed individually before the
	// inventory section switches to per-category totals.
	MaxRows int
	// Now dates the month-to-date sales figures; defaults to time.Now.
	Now func() time.Time
}

type Builder struct {
	opts Options
}

func NewBuilder(opts Options) *Builder {
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultMaxChars
	}
	if opts.MaxRows <= 0 {
		opts.MaxRows = DefaultMaxRows
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Builder{opts: opts}
}

// MaxChars returns the effective output bound.
func (b *Builder) MaxChars() int { return b.opts.MaxChars }

// Build renders the snapshot and its alerts. Alerts come first, then sales,
// so they survive truncation. The result never exceeds MaxChars bytes.
func (b *Builder) Build(s *inventory.Snapshot, alerts []inventory.Alert) string {
	if s.Len() == 0 {
		return bound(NoData, b.opts.MaxChars)
	}

	stats := inventory.Summarize(s)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Inventory: %d items, %d units on hand, %d low on stock.\n",
		stats.Items, stats.Units, len(alerts))
	if s.HasPrice {
		fmt.Fprintf(&sb, "Total inventory value: %s.\n", stats.Value.StringFixed(2))
	}

	sb.WriteString("\nLow stock:\n")
	if len(alerts) == 0 {
		sb.WriteString("- none\n")
	}
	for _, a := range alerts {
		fmt.Fprintf(&sb, "- %s: %d/%d", a.Record.Label(), a.Quantity, a.Threshold)
		writeSupplier(&sb, a.Record)
		sb.WriteByte('\n')
	}

	if len(s.Sales) > 0 {
		mtd := inventory.MonthToDate(s.Sales, b.opts.Now())
		fmt.Fprintf(&sb, "\nSales this month: %d units, revenue %s.\n", mtd.Units, mtd.Revenue.StringFixed(2))
		sb.WriteString("Top sellers (all time):\n")
		for _, t := range inventory.TopSellers(s, topSellers) {
			name := t.Name
			if name == "" {
				name = t.ProductID
			}
			fmt.Fprintf(&sb, "- %s: %d units, revenue %s\n", name, t.Units, t.Revenue.StringFixed(2))
		}
	}

	if s.Len() <= b.opts.MaxRows {
		sb.WriteString("\nItems:\n")
		for _, r := range s.Records {
			fmt.Fprintf(&sb, "- %s: %d/%d", r.Label(), r.Quantity, r.ReorderThreshold)
			if r.SKU != "" && r.Name != "" {
				fmt.Fprintf(&sb, " (sku %s)", r.SKU)
			}
			if r.Category != "" {
				fmt.Fprintf(&sb, " [%s]", r.Category)
			}
			writeSupplier(&sb, r)
			sb.WriteByte('\n')
		}
	} else {
		cats := append([]inventory.CategoryTotal(nil), stats.Categories...)
		sort.SliceStable(cats, func(i, j int) bool { return cats[i].Units > cats[j].Units })
		fmt.Fprintf(&sb, "\nItems by category (%d items, too many to list):\n", s.Len())
		for _, c := range cats {
			fmt.Fprintf(&sb, "- %s: %d items, %d units\n", c.Category, c.Items, c.Units)
		}
	}

	return bound(strings.TrimRight(sb.String(), "\n"), b.opts.MaxChars)
}

func writeSupplier(sb *strings.Builder, r inventory.Record) {
	if r.SupplierName != "" {
		fmt.Fprintf(sb, " supplier: %s", r.SupplierName)
	}
}

// bound cuts text at the last whole line that fits in limit bytes together
// with the truncation marker.
func bound(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	if limit < len(truncatedMarker) {
		return text[:cutRunes(text, limit)]
	}

	budget := limit - len(truncatedMarker)
	head := text[:cutRunes(text, budget)]
	if i := strings.LastIndexByte(head, '\n'); i >= 0 {
		head = head[:i+1]
	} else {
		head = ""
	}
	return head + truncatedMarker
}

// cutRunes returns the largest cut <= n that does not split a UTF-8 sequence.
func cutRunes(s string, n int) int {
	for n > 0 && n < len(s) && s[n]&0xC0 == 0x80 {
		n--
	}
	return n
}

// Compose builds the message list sent to the model: instructions plus
// context as the system message, the question as the user message.
func Compose(question, contextText string) []llm.Message {
	return []llm.Message{
		llm.SystemMessage(systemInstructions + "\n\nInventory data:\n" + contextText),
		llm.UserMessage(strings.TrimSpace(question)),
	}
}
