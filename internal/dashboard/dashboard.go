// Package dashboard serves the inventory page, the chat assistant and the
// JSON API over one set of request handlers.
package dashboard

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Shadansa24/Inventory-app/internal/data"
	"github.com/Shadansa24/Inventory-app/internal/inventory"
	"github.com/Shadansa24/Inventory-app/internal/llm"
	"github.com/Shadansa24/Inventory-app/internal/logger"
	"github.com/Shadansa24/Inventory-app/internal/middleware"
	"github.com/Shadansa24/Inventory-app/internal/notify"
	"github.com/Shadansa24/Inventory-app/internal/prompt"
	"github.com/Shadansa24/Inventory-app/internal/security"
	"github.com/Shadansa24/Inventory-app/internal/session"
)

// Asker is the chat model. *llm.Client implements it.
type Asker interface {
	Chat(ctx context.Context, messages []llm.Message) (llm.Reply, error)
	Model() string
	Configured() bool
}

// AuditLog records chat metadata. *data.DB implements it.
type AuditLog interface {
	RecordChatRequest(ctx context.Context, req data.ChatRequest) error
	ChatStats(ctx context.Context, since time.Time) (data.ChatStats, error)
}

// AlertSender delivers low-stock notifications. *notify.Notifier implements it.
type AlertSender interface {
	Send(ctx context.Context, alerts []inventory.Alert) (notify.Result, error)
	Enabled() bool
	Channels() []string
}

// Deps wires the dashboard. Audit and Notifier are optional; leave them nil
// (not a typed nil pointer) when persistence or notifications are off.
type Deps struct {
	Store       *inventory.Store
	CSVPath     string
	Builder     *prompt.Builder
	Chat        Asker
	Sessions    *session.Manager
	CSRF        *security.CSRF
	Audit       AuditLog
	Notifier    AlertSender
	ChatTimeout time.Duration
}

type Dashboard struct {
	Deps
	now func() time.Time
}

func New(deps Deps) *Dashboard {
	if deps.Builder == nil {
		deps.Builder = prompt.NewBuilder(prompt.Options{})
	}
	if deps.ChatTimeout <= 0 {
		deps.ChatTimeout = llm.DefaultTimeout
	}
	return &Dashboard{Deps: deps, now: time.Now}
}

// Register adds every dashboard route to mux.
func (d *Dashboard) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", d.handlePage)
	mux.HandleFunc("POST /chat", d.handleChat)
	mux.HandleFunc("POST /chat/clear", d.handleClearChat)
	mux.HandleFunc("POST /alerts/notify", d.handleNotify)
	mux.HandleFunc("GET /inventory.csv", d.handleExport)

	mux.HandleFunc("GET /healthz", middleware.Chain(d.handleHealth))
	mux.HandleFunc("GET /api/inventory", middleware.Chain(d.apiInventory))
	mux.HandleFunc("GET /api/alerts", middleware.Chain(d.apiAlerts))
	mux.HandleFunc("GET /api/lookup", middleware.Chain(d.apiLookup))
	mux.HandleFunc("GET /api/sales", middleware.Chain(d.apiSales))
	mux.HandleFunc("POST /api/chat", middleware.Chain(d.apiChat))
}

// Handler returns a mux carrying only the dashboard routes.
func (d *Dashboard) Handler() http.Handler {
	mux := http.NewServeMux()
	d.Register(mux)
	return mux
}

// topSellersShown bounds the top sellers table.
const topSellersShown = 5

type pageData struct {
	CSVPath    string
	Snapshot   *inventory.Snapshot
	Stale      bool
	LoadError  string
	PageError  string
	Flash      string
	Filter     inventory.Filter
	Records    []inventory.Record
	Stats      inventory.Stats
	Alerts     []inventory.Alert
	Duplicates []string
	Categories []string
	History    []session.ChatTurn
	Warnings   []string

	SalesMTD   *inventory.SalesTotal
	TopSellers []inventory.TopSeller
	Trend      []inventory.MonthTotal

	ChatConfigured bool
	Model          string
	ChatStats      *data.ChatStats
	NotifyEnabled  bool
	NotifyChannels []string
	Token          string

	LastUpdated        time.Time
	ProcessingDuration time.Duration
}

func (d *Dashboard) handlePage(w http.ResponseWriter, r *http.Request) {
	logger.LogHTTPRequest(r)
	start := time.Now()

	sess := d.Sessions.FromRequest(w, r)
	page := d.buildPage(r, sess)
	page.Flash = sess.TakeFlash()
	page.ProcessingDuration = time.Since(start)

	logger.LogDebug("Dashboard page rendered in %v (records: %d, alerts: %d)",
		page.ProcessingDuration, len(page.Records), len(page.Alerts))
	d.render(w, r, http.StatusOK, page)
}

// buildPage loads the CSV and fills everything the template shows. A failed
// load keeps the session's previous snapshot on screen, marked stale.
func (d *Dashboard) buildPage(r *http.Request, sess *session.Session) pageData {
	page := pageData{
		CSVPath:        d.CSVPath,
		Filter:         parseFilter(r.URL.Query()),
		History:        sess.History(),
		ChatConfigured: d.Chat != nil && d.Chat.Configured(),
		LastUpdated:    d.now(),
		// One token serves every form on the page; a post consumes it and
		// the next render issues another.
		Token: d.CSRF.Generate(sess.ID),
	}
	if d.Chat != nil {
		page.Model = d.Chat.Model()
	}
	if d.Notifier != nil && d.Notifier.Enabled() {
		page.NotifyEnabled = true
		page.NotifyChannels = d.Notifier.Channels()
	}
	if d.Audit != nil {
		stats, err := d.Audit.ChatStats(r.Context(), d.now().Add(-24*time.Hour))
		if err != nil {
			logger.LogWarn("Failed to read chat stats: %v", err)
		} else {
			page.ChatStats = &stats
		}
	}

	snap, err := d.Store.Load(r.Context(), d.CSVPath)
	if err != nil {
		logger.LogError("Dashboard load failed: %v", err)
		page.LoadError = UserMessage(err)
		snap = sess.Snapshot()
		page.Stale = snap != nil
	} else {
		sess.SetSnapshot(snap)
	}

	page.Snapshot = snap
	page.Records = page.Filter.Apply(snap)
	page.Stats = inventory.Summarize(snap)
	page.Alerts = inventory.Evaluate(snap)
	page.Duplicates = snap.Duplicates()
	page.Categories = inventory.Categories(snap)
	if snap != nil {
		page.Warnings = snap.Warnings
		if len(snap.Sales) > 0 {
			mtd := inventory.MonthToDate(snap.Sales, d.now())
			page.SalesMTD = &mtd
			page.TopSellers = inventory.TopSellers(snap, topSellersShown)
			page.Trend = inventory.MonthlyTrend(snap.Sales)
		}
	}
	return page
}

// render executes into a buffer first so a template error never leaves a
// half-written page.
func (d *Dashboard) render(w http.ResponseWriter, r *http.Request, status int, page pageData) {
	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, page); err != nil {
		logger.LogHTTPError(r, http.StatusInternalServerError, err)
		http.Error(w, "Error rendering page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		logger.LogWarn("Failed to write dashboard page: %v", err)
	}
}

// renderError shows the page with a notice and a non-200 status, used when
// a form post is refused.
func (d *Dashboard) renderError(w http.ResponseWriter, r *http.Request, sess *session.Session, status int, msg string) {
	logger.LogHTTPError(r, status, errorString(msg))
	page := d.buildPage(r, sess)
	page.PageError = msg
	d.render(w, r, status, page)
}

type errorString string

func (e errorString) Error() string { return string(e) }

func parseFilter(q url.Values) inventory.Filter {
	f := inventory.Filter{
		Query:    strings.TrimSpace(q.Get("q")),
		Category: strings.TrimSpace(q.Get("category")),
	}
	switch status := strings.ToLower(q.Get("status")); status {
	case inventory.StatusLow, inventory.StatusOK:
		f.Status = status
	default:
		f.Status = inventory.StatusAll
	}
	if n, err := strconv.Atoi(q.Get("top")); err == nil && n > 0 {
		f.TopN = n
	}
	return f
}
