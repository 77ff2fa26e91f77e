package dashboard

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/Shadansa24/Inventory-app/internal/inventory"
	"github.com/Shadansa24/Inventory-app/internal/logger"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Pre-parse templates at startup
var pageTmpl = template.Must(template.New("dashboard.tmpl").Funcs(template.FuncMap{
	"comma":    func(n int) string { return humanize.Comma(int64(n)) },
	"money":    formatMoney,
	"ago":      humanize.Time,
	"duration": formatDuration,
	"isLow":    inventory.IsLow,
	"markdown": renderMarkdown,
	"dateTime": func(t time.Time) string { return t.Format("Jan 2, 2006 3:04:05 PM") },
}).ParseFS(templateFS, "templates/*.tmpl"))

// markdown renders model replies. Raw HTML in the source is escaped
// because goldmark's renderer is left in its default safe mode.
var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

func renderMarkdown(src string) template.HTML {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		logger.LogWarn("Markdown render failed, showing plain text: %v", err)
		return template.HTML("<pre>" + template.HTMLEscapeString(src) + "</pre>")
	}
	return template.HTML(buf.String())
}

func formatMoney(d decimal.Decimal) string {
	d = d.Round(2)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	whole := d.IntPart()
	cents := d.Sub(decimal.NewFromInt(whole)).Shift(2).IntPart()
	return fmt.Sprintf("%s$%s.%02d", sign, humanize.Comma(whole), cents)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}
