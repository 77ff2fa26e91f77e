package dashboard

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Shadansa24/Inventory-app/internal/data"
	"github.com/Shadansa24/Inventory-app/internal/inventory"
	"github.com/Shadansa24/Inventory-app/internal/logger"
	"github.com/Shadansa24/Inventory-app/internal/prompt"
	"github.com/Shadansa24/Inventory-app/internal/security"
	"github.com/Shadansa24/Inventory-app/internal/session"
)

const (
	maxFormBody = 64 * 1024

	// MaxQuestionLength caps a single question, in bytes.
	MaxQuestionLength = 2000

	msgBusy        = "The assistant is still answering your previous question. Please wait for it to finish."
	msgRateLimited = "You are asking questions too quickly. Please wait a moment and try again."
	msgBadToken    = "Your form has expired. The page has been refreshed, please try again."
	msgEmpty       = "Type a question for the assistant first."
	msgTooLong     = "That question is too long. Please shorten it and try again."
)

var errEmptyQuestion = errors.New("question is empty")

// Ask answers one question: it reloads the CSV, evaluates alerts, builds the
// bounded context and calls the model. The returned turn always carries a
// displayable outcome; err is the model error, if any. A CSV that fails to
// load does not stop the question, the model is told there is no data.
func (d *Dashboard) Ask(ctx context.Context, sessionID, question string) (session.ChatTurn, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return session.ChatTurn{}, errEmptyQuestion
	}

	start := d.now()
	turn := session.ChatTurn{Question: question, AskedAt: start}

	var alerts []inventory.Alert
	snap, err := d.Store.Load(ctx, d.CSVPath)
	if err != nil {
		logger.LogWarn("Answering without inventory context: %v", err)
		snap = nil
	} else {
		alerts = inventory.Evaluate(snap)
	}
	turn.Context = d.Builder.Build(snap, alerts)

	messages := prompt.Compose(question, turn.Context)
	tokens := prompt.CountMessageTokens(messages)

	chatCtx, cancel := context.WithTimeout(ctx, d.ChatTimeout)
	defer cancel()
	reply, chatErr := d.Chat.Chat(chatCtx, messages)
	turn.Duration = time.Since(start)

	model := d.Chat.Model()
	if chatErr != nil {
		turn.Err = UserMessage(chatErr)
		logger.LogWarn("Chat request failed after %v: %v", turn.Duration, chatErr)
	} else {
		turn.Response = reply.Text
		if reply.Model != "" {
			model = reply.Model
		}
		if reply.PromptTokens > 0 {
			tokens = reply.PromptTokens
		}
		logger.LogInfo("Chat answered in %v (model: %s, prompt tokens: %d, alerts in context: %d)",
			turn.Duration, model, tokens, len(alerts))
	}

	d.audit(ctx, data.ChatRequest{
		SessionID:    sessionID,
		AskedAt:      start,
		Duration:     turn.Duration,
		PromptTokens: tokens,
		Status:       auditStatus(chatErr),
		Model:        model,
	})
	return turn, chatErr
}

func (d *Dashboard) audit(ctx context.Context, req data.ChatRequest) {
	if d.Audit == nil {
		return
	}
	// The request may already be cancelled; the audit row is still wanted.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := d.Audit.RecordChatRequest(ctx, req); err != nil {
		logger.LogWarn("Failed to record chat request: %v", err)
	}
}

func (d *Dashboard) rateLimited(ctx context.Context, sessionID string) {
	model := ""
	if d.Chat != nil {
		model = d.Chat.Model()
	}
	d.audit(ctx, data.ChatRequest{
		SessionID: sessionID,
		AskedAt:   d.now(),
		Status:    data.StatusRateLimited,
		Model:     model,
	})
}

// checkForm parses the posted form and validates its CSRF token. It writes
// the refusal itself and returns false when the request must stop.
func (d *Dashboard) checkForm(w http.ResponseWriter, r *http.Request, sess *session.Session) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBody)
	if err := r.ParseForm(); err != nil {
		logger.LogHTTPError(r, http.StatusBadRequest, err)
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return false
	}
	if !d.CSRF.Validate(sess.ID, security.TokenFromRequest(r)) {
		logger.LogWarn("Rejected form post to %s from %s: invalid CSRF token", r.URL.Path, logger.GetClientIP(r))
		d.renderError(w, r, sess, http.StatusForbidden, msgBadToken)
		return false
	}
	return true
}

func redirectHome(w http.ResponseWriter, r *http.Request, anchor string) {
	http.Redirect(w, r, "/"+anchor, http.StatusSeeOther)
}

// handleChat takes the chat form. The answer is stored in the session and
// shown after the redirect.
func (d *Dashboard) handleChat(w http.ResponseWriter, r *http.Request) {
	logger.LogHTTPRequest(r)
	sess := d.Sessions.FromRequest(w, r)
	if !d.checkForm(w, r, sess) {
		return
	}

	question := strings.TrimSpace(r.PostFormValue("question"))
	switch {
	case question == "":
		sess.SetFlash(msgEmpty)
		redirectHome(w, r, "#chat")
		return
	case len(question) > MaxQuestionLength:
		sess.SetFlash(msgTooLong)
		redirectHome(w, r, "#chat")
		return
	}

	if !sess.Allow() {
		d.rateLimited(r.Context(), sess.ID)
		d.renderError(w, r, sess, http.StatusTooManyRequests, msgRateLimited)
		return
	}
	done, ok := sess.BeginChat()
	if !ok {
		d.renderError(w, r, sess, http.StatusConflict, msgBusy)
		return
	}
	defer done()

	turn, _ := d.Ask(r.Context(), sess.ID, question)
	sess.AddTurn(turn)
	redirectHome(w, r, "#chat")
}

func (d *Dashboard) handleClearChat(w http.ResponseWriter, r *http.Request) {
	logger.LogHTTPRequest(r)
	sess := d.Sessions.FromRequest(w, r)
	if !d.checkForm(w, r, sess) {
		return
	}
	sess.ClearHistory()
	redirectHome(w, r, "#chat")
}

// handleNotify sends the current low-stock list on every configured
// channel, regardless of what was sent before.
func (d *Dashboard) handleNotify(w http.ResponseWriter, r *http.Request) {
	logger.LogHTTPRequest(r)
	sess := d.Sessions.FromRequest(w, r)
	if !d.checkForm(w, r, sess) {
		return
	}
	defer redirectHome(w, r, "#alerts")

	if d.Notifier == nil || !d.Notifier.Enabled() {
		sess.SetFlash("Alert notifications are not configured. Set EMAIL_ALERTS or ALERT_WEBHOOK_URL.")
		return
	}

	snap, err := d.Store.Load(r.Context(), d.CSVPath)
	if err != nil {
		sess.SetFlash(UserMessage(err))
		return
	}
	alerts := inventory.Evaluate(snap)
	if len(alerts) == 0 {
		sess.SetFlash("No items are low on stock. Nothing was sent.")
		return
	}

	res, err := d.Notifier.Send(r.Context(), alerts)
	if err != nil {
		logger.LogError("Manual low-stock notification failed: %v", err)
		sess.SetFlash("Sending the low-stock alert failed: " + err.Error())
		return
	}
	logger.LogInfo("Manual low-stock notification: %s", res)
	sess.SetFlash("Low-stock alert sent: " + res.String() + ".")
}
