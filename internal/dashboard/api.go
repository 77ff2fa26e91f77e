package dashboard

import (
	"context"
	"encoding/csv"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Shadansa24/Inventory-app/internal/inventory"
	"github.com/Shadansa24/Inventory-app/internal/llm"
	"github.com/Shadansa24/Inventory-app/internal/logger"
	"github.com/Shadansa24/Inventory-app/internal/middleware"
)

type inventoryResponse struct {
	Source     string             `json:"source"`
	LoadedAt   time.Time          `json:"loaded_at"`
	Stats      inventory.Stats    `json:"stats"`
	Records    []inventory.Record `json:"records"`
	Duplicates []string           `json:"duplicates"`
}

type alertItem struct {
	SKU       string `json:"sku,omitempty"`
	Name      string `json:"name,omitempty"`
	Quantity  int    `json:"quantity"`
	Threshold int    `json:"threshold"`
	Shortfall int    `json:"shortfall"`
}

type chatRequest struct {
	Question string `json:"question"`
}

type chatResponse struct {
	Answer     string `json:"answer"`
	Model      string `json:"model"`
	DurationMS int64  `json:"duration_ms"`
}

// writeLoadError maps a failed CSV load to an API error envelope.
func writeLoadError(w http.ResponseWriter, r *http.Request, err error) {
	var validErr *inventory.DataValidationError
	if errors.As(err, &validErr) {
		middleware.WriteAPIError(w, r, http.StatusUnprocessableEntity, "invalid_data", UserMessage(err), "")
		return
	}
	middleware.WriteAPIError(w, r, http.StatusServiceUnavailable, "data_unavailable", UserMessage(err), "")
}

func (d *Dashboard) handleHealth(w http.ResponseWriter, r *http.Request) {
	middleware.WriteAPISuccess(w, r, map[string]interface{}{
		"status":          "ok",
		"csv_path":        d.CSVPath,
		"chat_configured": d.Chat != nil && d.Chat.Configured(),
		"loads":           d.Store.Stats(),
	})
}

func (d *Dashboard) apiInventory(w http.ResponseWriter, r *http.Request) {
	snap, err := d.Store.Load(r.Context(), d.CSVPath)
	if err != nil {
		writeLoadError(w, r, err)
		return
	}
	dups := snap.Duplicates()
	if dups == nil {
		dups = []string{}
	}
	middleware.WriteAPISuccess(w, r, inventoryResponse{
		Source:     snap.Source,
		LoadedAt:   snap.LoadedAt,
		Stats:      inventory.Summarize(snap),
		Records:    parseFilter(r.URL.Query()).Apply(snap),
		Duplicates: dups,
	})
}

func (d *Dashboard) apiAlerts(w http.ResponseWriter, r *http.Request) {
	snap, err := d.Store.Load(r.Context(), d.CSVPath)
	if err != nil {
		writeLoadError(w, r, err)
		return
	}
	alerts := inventory.Evaluate(snap)
	items := make([]alertItem, 0, len(alerts))
	for _, a := range alerts {
		items = append(items, alertItem{
			SKU:       a.Record.SKU,
			Name:      a.Record.Name,
			Quantity:  a.Quantity,
			Threshold: a.Threshold,
			Shortfall: a.Shortfall(),
		})
	}
	middleware.WriteAPISuccess(w, r, map[string]interface{}{
		"count":  len(items),
		"alerts": items,
	})
}

// apiLookup resolves a scanned or typed code to products.
func (d *Dashboard) apiLookup(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(r.URL.Query().Get("code"))
	if code == "" {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "missing_code", "code is required", "")
		return
	}
	snap, err := d.Store.Load(r.Context(), d.CSVPath)
	if err != nil {
		writeLoadError(w, r, err)
		return
	}
	matches := inventory.Lookup(snap, code)
	if len(matches) == 0 {
		middleware.WriteAPIError(w, r, http.StatusNotFound, "not_found", "No product matches "+strconv.Quote(code), "")
		return
	}
	middleware.WriteAPISuccess(w, r, map[string]interface{}{
		"code":    code,
		"matches": matches,
	})
}

type salesResponse struct {
	MonthToDate inventory.SalesTotal   `json:"month_to_date"`
	TopSellers  []inventory.TopSeller  `json:"top_sellers"`
	Trend       []inventory.MonthTotal `json:"trend"`
}

// apiSales reports sales aggregates; top=N bounds the sellers list.
func (d *Dashboard) apiSales(w http.ResponseWriter, r *http.Request) {
	snap, err := d.Store.Load(r.Context(), d.CSVPath)
	if err != nil {
		writeLoadError(w, r, err)
		return
	}
	if len(snap.Sales) == 0 {
		middleware.WriteAPIError(w, r, http.StatusNotFound, "no_sales", "No sales data is loaded", "")
		return
	}
	top := topSellersShown
	if n, err := strconv.Atoi(r.URL.Query().Get("top")); err == nil && n > 0 {
		top = n
	}
	middleware.WriteAPISuccess(w, r, salesResponse{
		MonthToDate: inventory.MonthToDate(snap.Sales, d.now()),
		TopSellers:  inventory.TopSellers(snap, top),
		Trend:       inventory.MonthlyTrend(snap.Sales),
	})
}

// apiChat is the JSON form of the chat box. It shares the session's history,
// rate limit and in-flight guard with the page.
func (d *Dashboard) apiChat(w http.ResponseWriter, r *http.Request) {
	sess := d.Sessions.FromRequest(w, r)

	var req chatRequest
	if err := middleware.ParseJSONRequest(w, r, &req); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_request", "Invalid request body", err.Error())
		return
	}
	question := strings.TrimSpace(req.Question)
	switch {
	case question == "":
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "empty_question", msgEmpty, "")
		return
	case len(question) > MaxQuestionLength:
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "question_too_long", msgTooLong, "")
		return
	}

	if !sess.Allow() {
		d.rateLimited(r.Context(), sess.ID)
		middleware.WriteAPIError(w, r, http.StatusTooManyRequests, "rate_limited", msgRateLimited, "")
		return
	}
	done, ok := sess.BeginChat()
	if !ok {
		middleware.WriteAPIError(w, r, http.StatusConflict, "chat_in_progress", msgBusy, "")
		return
	}
	defer done()

	turn, err := d.Ask(r.Context(), sess.ID, question)
	sess.AddTurn(turn)
	if err != nil {
		var authErr *llm.AuthError
		switch {
		case errors.As(err, &authErr):
			middleware.WriteAPIError(w, r, http.StatusServiceUnavailable, "assistant_not_configured", turn.Err, "")
		case errors.Is(err, context.DeadlineExceeded):
			middleware.WriteAPIError(w, r, http.StatusGatewayTimeout, "assistant_timeout", turn.Err, "")
		default:
			middleware.WriteAPIError(w, r, http.StatusBadGateway, "assistant_unavailable", turn.Err, "")
		}
		return
	}

	model := ""
	if d.Chat != nil {
		model = d.Chat.Model()
	}
	middleware.WriteAPISuccess(w, r, chatResponse{
		Answer:     turn.Response,
		Model:      model,
		DurationMS: turn.Duration.Milliseconds(),
	})
}

var exportHeader = []string{"SKU", "Name", "Category", "Quantity", "Reorder_Threshold", "Unit_Price", "Supplier_ID", "Supplier_Name", "Status"}

// handleExport streams the current table, with the page's filters applied,
// as CSV.
func (d *Dashboard) handleExport(w http.ResponseWriter, r *http.Request) {
	logger.LogHTTPRequest(r)
	snap, err := d.Store.Load(r.Context(), d.CSVPath)
	if err != nil {
		logger.LogHTTPError(r, http.StatusServiceUnavailable, err)
		http.Error(w, UserMessage(err), http.StatusServiceUnavailable)
		return
	}
	records := parseFilter(r.URL.Query()).Apply(snap)

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="inventory-`+d.now().Format("2006-01-02")+`.csv"`)

	cw := csv.NewWriter(w)
	_ = cw.Write(exportHeader)
	for _, rec := range records {
		price := ""
		if rec.HasPrice {
			price = rec.UnitPrice.StringFixed(2)
		}
		status := inventory.StatusOK
		if inventory.IsLow(rec) {
			status = inventory.StatusLow
		}
		_ = cw.Write([]string{
			rec.SKU,
			rec.Name,
			rec.Category,
			strconv.Itoa(rec.Quantity),
			strconv.Itoa(rec.ReorderThreshold),
			price,
			rec.SupplierID,
			rec.SupplierName,
			status,
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		logger.LogWarn("CSV export interrupted: %v", err)
	}
}
