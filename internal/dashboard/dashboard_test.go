package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shadansa24/Inventory-app/internal/data"
	"github.com/Shadansa24/Inventory-app/internal/inventory"
	"github.com/Shadansa24/Inventory-app/internal/llm"
	"github.com/Shadansa24/Inventory-app/internal/logger"
	"github.com/Shadansa24/Inventory-app/internal/notify"
	"github.com/Shadansa24/Inventory-app/internal/prompt"
	"github.com/Shadansa24/Inventory-app/internal/security"
	"github.com/Shadansa24/Inventory-app/internal/session"
)

func init() {
	logger.SetOutput(io.Discard, logger.LevelError)
}

const widgetCSV = "sku,name,category,quantity,reorder_threshold,unit_price\n" +
	"W-1,Widget,Parts,5,10,2.50\n" +
	"G-1,Gadget,Tools,20,10,7.00\n"

type fakeAsker struct {
	mu       sync.Mutex
	answer   string
	err      error
	received [][]llm.Message
}

func (f *fakeAsker) Chat(ctx context.Context, messages []llm.Message) (llm.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, messages)
	if f.err != nil {
		return llm.Reply{}, f.err
	}
	return llm.Reply{Text: f.answer, Model: "fake-model"}, nil
}

func (f *fakeAsker) Model() string    { return "fake-model" }
func (f *fakeAsker) Configured() bool { return true }

func (f *fakeAsker) calls() [][]llm.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]llm.Message(nil), f.received...)
}

type fakeAudit struct {
	mu   sync.Mutex
	reqs []data.ChatRequest
}

func (f *fakeAudit) RecordChatRequest(_ context.Context, req data.ChatRequest) error {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	return nil
}

func (f *fakeAudit) ChatStats(context.Context, time.Time) (data.ChatStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return data.ChatStats{Requests: len(f.reqs)}, nil
}

func (f *fakeAudit) statuses() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, r := range f.reqs {
		out = append(out, r.Status)
	}
	return out
}

type fakeNotifier struct {
	sent [][]inventory.Alert
}

func (f *fakeNotifier) Send(_ context.Context, alerts []inventory.Alert) (notify.Result, error) {
	f.sent = append(f.sent, alerts)
	return notify.Result{Alerts: len(alerts), Sent: []string{"W-1"}, Channels: []string{"webhook"}}, nil
}

func (f *fakeNotifier) Enabled() bool      { return true }
func (f *fakeNotifier) Channels() []string { return []string{"webhook"} }

type fixture struct {
	d     *Dashboard
	chat  *fakeAsker
	audit *fakeAudit
	h     http.Handler
}

func newFixture(t *testing.T, csvBody string) *fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "products.csv")
	if csvBody != "" {
		require.NoError(t, os.WriteFile(path, []byte(csvBody), 0o644))
	}

	f := &fixture{
		chat:  &fakeAsker{answer: "**Widget** is low on stock."},
		audit: &fakeAudit{},
	}
	f.d = New(Deps{
		Store:       inventory.NewStore(inventory.StoreOptions{}),
		CSVPath:     path,
		Builder:     prompt.NewBuilder(prompt.Options{}),
		Chat:        f.chat,
		Sessions:    session.NewManager(time.Hour, 0),
		CSRF:        security.NewCSRF(time.Hour),
		Audit:       f.audit,
		ChatTimeout: 5 * time.Second,
	})
	f.h = f.d.Handler()
	return f
}

// session returns a live session with its cookie.
func (f *fixture) session() (*session.Session, *http.Cookie) {
	s := f.d.Sessions.Create()
	return s, &http.Cookie{Name: session.CookieName, Value: s.ID}
}

func (f *fixture) postForm(path string, cookie *http.Cookie, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) do(method, path, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func TestAskSendsLowStockContext(t *testing.T) {
	f := newFixture(t, widgetCSV)

	turn, err := f.d.Ask(context.Background(), "sess-1", "What is low on stock?")
	require.NoError(t, err)
	assert.Equal(t, "**Widget** is low on stock.", turn.Response)
	assert.Empty(t, turn.Err)
	assert.Contains(t, turn.Context, "Widget: 5/10")

	calls := f.chat.calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0], 2)
	assert.Contains(t, calls[0][0].Content, "Widget: 5/10")
	assert.Equal(t, "What is low on stock?", calls[0][1].Content)

	assert.Equal(t, []string{data.StatusOK}, f.audit.statuses())
}

func TestAskWithoutAPIKey(t *testing.T) {
	f := newFixture(t, widgetCSV)
	f.d.Chat = llm.NewClient(llm.Config{})

	turn, err := f.d.Ask(context.Background(), "sess-1", "What is low on stock?")
	var authErr *llm.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, turn.Err, "not configured")
	assert.Empty(t, turn.Response)
	assert.Equal(t, []string{data.StatusAuthError}, f.audit.statuses())
}

func TestAskContinuesWhenCSVIsMissing(t *testing.T) {
	f := newFixture(t, "")

	turn, err := f.d.Ask(context.Background(), "sess-1", "Anything low?")
	require.NoError(t, err)
	assert.Equal(t, prompt.NoData, turn.Context)
	require.Len(t, f.chat.calls(), 1)
}

func TestAskRejectsBlankQuestion(t *testing.T) {
	f := newFixture(t, widgetCSV)
	_, err := f.d.Ask(context.Background(), "sess-1", "   ")
	assert.ErrorIs(t, err, errEmptyQuestion)
	assert.Empty(t, f.chat.calls())
}

func TestPageShowsInventoryAndAlerts(t *testing.T) {
	f := newFixture(t, widgetCSV)

	rec := f.do(http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Widget")
	assert.Contains(t, body, "Gadget")
	assert.Contains(t, body, `class="low"`)
	assert.Contains(t, body, "$152.50", "inventory value 5*2.50 + 20*7.00")
	assert.Contains(t, body, `name="csrf_token"`)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, session.CookieName, cookies[0].Name)
}

func TestPageIssuesOneTokenPerRender(t *testing.T) {
	f := newFixture(t, widgetCSV)
	f.d.Notifier = &fakeNotifier{}
	sess, cookie := f.session()
	sess.AddTurn(session.ChatTurn{Question: "q", Response: "a"})

	rec := f.do(http.MethodGet, "/", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, 3, strings.Count(body, `name="csrf_token"`), "notify, chat and clear forms")
	assert.Equal(t, 1, f.d.CSRF.Len())

	for i := 0; i < 20; i++ {
		f.do(http.MethodGet, "/", "", cookie)
	}
	assert.Equal(t, security.MaxTokensPerSession, f.d.CSRF.Len(), "reloads cannot grow one session's tokens")
}

func TestPageShowsSuppliersAndSales(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		return path
	}
	f := newFixture(t, "")
	f.d.CSVPath = write("products.csv", "Product_ID,SKU,Name,Quantity,MinStock,Supplier_ID\n"+
		"P1,W-1,Widget,5,10,S1\nP2,G-1,Gadget,20,10,S2\n")
	f.d.Store = inventory.NewStore(inventory.StoreOptions{
		SuppliersPath: write("suppliers.csv", "Supplier_ID,Supplier_Name\nS1,Acme Supply\n"),
		SalesPath:     write("sales.csv", "Product_ID,Qty,UnitPrice,Timestamp\nP2,3,10.00,2026-03-02\nP1,1,2.00,2026-03-03\n"),
	})
	f.d.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local) }

	rec := f.do(http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<td>Acme Supply</td>")
	assert.Contains(t, body, "<td>S2</td>", "unknown supplier falls back to its id")
	assert.Contains(t, body, "Sales (month to date)")
	assert.Contains(t, body, "$32.00")
	sales := body[strings.Index(body, `id="sales"`):]
	assert.Less(t, strings.Index(sales, "Gadget"), strings.Index(sales, "Widget"), "top sellers ranked by units")
	assert.Contains(t, sales, "Mar 2026")

	export := f.do(http.MethodGet, "/inventory.csv", "", nil)
	assert.Contains(t, export.Body.String(), "W-1,Widget,,5,10,,S1,Acme Supply,low")

	api := f.do(http.MethodGet, "/api/sales?top=1", "", nil)
	require.Equal(t, http.StatusOK, api.Code)
	var apiSales struct {
		MonthToDate struct {
			Units int `json:"units"`
		} `json:"month_to_date"`
		TopSellers []struct {
			ProductID string `json:"product_id"`
		} `json:"top_sellers"`
	}
	require.NoError(t, json.Unmarshal(decode(t, api).Data, &apiSales))
	assert.Equal(t, 4, apiSales.MonthToDate.Units)
	require.Len(t, apiSales.TopSellers, 1)
	assert.Equal(t, "P2", apiSales.TopSellers[0].ProductID)
}

func TestAPISalesWithoutSalesFile(t *testing.T) {
	f := newFixture(t, widgetCSV)
	rec := f.do(http.MethodGet, "/api/sales", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no_sales", decode(t, rec).Code)
}

func TestPageShowsLoadErrorAndStillRenders(t *testing.T) {
	f := newFixture(t, "name,quantity\nWidget,lots\n")

	rec := f.do(http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Inventory data is invalid")
	assert.Contains(t, body, `id="chat-form"`)
}

func TestPageFilters(t *testing.T) {
	f := newFixture(t, widgetCSV)

	rec := f.do(http.MethodGet, "/?status=low", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	inventorySection := body[strings.Index(body, `id="inventory"`):]
	assert.Contains(t, inventorySection, "Widget")
	assert.NotContains(t, inventorySection, "<td>Gadget</td>")
}

func TestUnknownPathIsNotFound(t *testing.T) {
	f := newFixture(t, widgetCSV)
	rec := f.do(http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChatFormPostRedirectsAndKeepsHistory(t *testing.T) {
	f := newFixture(t, widgetCSV)
	sess, cookie := f.session()
	token := f.d.CSRF.Generate(sess.ID)

	rec := f.postForm("/chat", cookie, url.Values{"question": {"What is low on stock?"}, "csrf_token": {token}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/#chat", rec.Header().Get("Location"))

	history := sess.History()
	require.Len(t, history, 1)
	assert.Equal(t, "What is low on stock?", history[0].Question)

	page := f.do(http.MethodGet, "/", "", cookie)
	assert.Contains(t, page.Body.String(), "<strong>Widget</strong> is low on stock.")

	replay := f.postForm("/chat", cookie, url.Values{"question": {"again"}, "csrf_token": {token}})
	assert.Equal(t, http.StatusForbidden, replay.Code)
	assert.Len(t, sess.History(), 1)
}

func TestChatFormRequiresToken(t *testing.T) {
	f := newFixture(t, widgetCSV)
	sess, cookie := f.session()

	rec := f.postForm("/chat", cookie, url.Values{"question": {"hi"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, sess.History())
	assert.Empty(t, f.chat.calls())
}

func TestChatFormRejectsSecondSubmissionInFlight(t *testing.T) {
	f := newFixture(t, widgetCSV)
	sess, cookie := f.session()

	done, ok := sess.BeginChat()
	require.True(t, ok)
	defer done()

	rec := f.postForm("/chat", cookie, url.Values{"question": {"hi"}, "csrf_token": {f.d.CSRF.Generate(sess.ID)}})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "still answering")
	assert.Empty(t, f.chat.calls())
}

func TestChatFormEmptyQuestionFlashes(t *testing.T) {
	f := newFixture(t, widgetCSV)
	sess, cookie := f.session()

	rec := f.postForm("/chat", cookie, url.Values{"question": {"  "}, "csrf_token": {f.d.CSRF.Generate(sess.ID)}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, msgEmpty, sess.TakeFlash())
	assert.Empty(t, f.chat.calls())
}

func TestChatFormRateLimited(t *testing.T) {
	f := newFixture(t, widgetCSV)
	f.d.Sessions = session.NewManager(time.Hour, 1)
	sess, cookie := f.session()

	first := f.postForm("/chat", cookie, url.Values{"question": {"one"}, "csrf_token": {f.d.CSRF.Generate(sess.ID)}})
	require.Equal(t, http.StatusSeeOther, first.Code)

	second := f.postForm("/chat", cookie, url.Values{"question": {"two"}, "csrf_token": {f.d.CSRF.Generate(sess.ID)}})
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, []string{data.StatusOK, data.StatusRateLimited}, f.audit.statuses())
}

func TestClearChat(t *testing.T) {
	f := newFixture(t, widgetCSV)
	sess, cookie := f.session()
	sess.AddTurn(session.ChatTurn{Question: "old"})

	rec := f.postForm("/chat/clear", cookie, url.Values{"csrf_token": {f.d.CSRF.Generate(sess.ID)}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Empty(t, sess.History())
}

func TestNotifySendsCurrentAlerts(t *testing.T) {
	f := newFixture(t, widgetCSV)
	n := &fakeNotifier{}
	f.d.Notifier = n
	sess, cookie := f.session()

	rec := f.postForm("/alerts/notify", cookie, url.Values{"csrf_token": {f.d.CSRF.Generate(sess.ID)}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	require.Len(t, n.sent, 1)
	require.Len(t, n.sent[0], 1)
	assert.Equal(t, "Widget", n.sent[0][0].Record.Name)
	assert.Contains(t, sess.TakeFlash(), "notified 1 item(s) via webhook")
}

func TestNotifyWithoutChannels(t *testing.T) {
	f := newFixture(t, widgetCSV)
	sess, cookie := f.session()

	rec := f.postForm("/alerts/notify", cookie, url.Values{"csrf_token": {f.d.CSRF.Generate(sess.ID)}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Contains(t, sess.TakeFlash(), "not configured")
}

func TestAPIChat(t *testing.T) {
	f := newFixture(t, widgetCSV)
	_, cookie := f.session()

	rec := f.do(http.MethodPost, "/api/chat", `{"question":"What is low on stock?"}`, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	env := decode(t, rec)
	assert.True(t, env.Success)

	var resp chatResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	assert.Equal(t, "**Widget** is low on stock.", resp.Answer)
	assert.Equal(t, "fake-model", resp.Model)
}

func TestAPIChatErrors(t *testing.T) {
	f := newFixture(t, widgetCSV)

	rec := f.do(http.MethodPost, "/api/chat", `{"question":"  "}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "empty_question", decode(t, rec).Code)

	f.d.Chat = llm.NewClient(llm.Config{})
	rec = f.do(http.MethodPost, "/api/chat", `{"question":"hi"}`, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "assistant_not_configured", decode(t, rec).Code)

	f.d.Chat = &fakeAsker{err: &llm.ApiError{StatusCode: 500, Message: "boom"}}
	rec = f.do(http.MethodPost, "/api/chat", `{"question":"hi"}`, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	env := decode(t, rec)
	assert.Equal(t, "assistant_unavailable", env.Code)
	assert.Contains(t, env.Message, "unavailable right now")
}

func TestAPIInventory(t *testing.T) {
	f := newFixture(t, widgetCSV)

	rec := f.do(http.MethodGet, "/api/inventory?q=gad", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Stats struct {
			Items    int `json:"items"`
			LowStock int `json:"low_stock"`
		} `json:"stats"`
		Records []inventory.Record `json:"records"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &resp))
	assert.Equal(t, 2, resp.Stats.Items)
	assert.Equal(t, 1, resp.Stats.LowStock)
	require.Len(t, resp.Records, 1)
	assert.Equal(t, "Gadget", resp.Records[0].Name)
}

func TestAPIInventoryInvalidData(t *testing.T) {
	f := newFixture(t, "name,quantity\nWidget,lots\n")

	rec := f.do(http.MethodGet, "/api/inventory", "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	env := decode(t, rec)
	assert.Equal(t, "invalid_data", env.Code)
	assert.Contains(t, env.Message, "row 2")
}

func TestAPIAlerts(t *testing.T) {
	f := newFixture(t, widgetCSV)

	rec := f.do(http.MethodGet, "/api/alerts", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Count  int         `json:"count"`
		Alerts []alertItem `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, alertItem{SKU: "W-1", Name: "Widget", Quantity: 5, Threshold: 10, Shortfall: 6}, resp.Alerts[0])
}

func TestAPILookup(t *testing.T) {
	f := newFixture(t, widgetCSV)

	rec := f.do(http.MethodGet, "/api/lookup?code=g-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(decode(t, rec).Data), `"Gadget"`)

	rec = f.do(http.MethodGet, "/api/lookup?code=ZZZ", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodGet, "/api/lookup", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportCSV(t *testing.T) {
	f := newFixture(t, widgetCSV)

	rec := f.do(http.MethodGet, "/inventory.csv?status=low", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "SKU,Name,Category,Quantity,Reorder_Threshold,Unit_Price,Supplier_ID,Supplier_Name,Status", lines[0])
	assert.Equal(t, "W-1,Widget,Parts,5,10,2.50,,,low", lines[1])
}

func TestHealth(t *testing.T) {
	f := newFixture(t, widgetCSV)
	rec := f.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode(t, rec).Success)
}
