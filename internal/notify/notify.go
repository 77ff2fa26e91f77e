// Package notify sends low-stock alerts by email and webhook, once per item
// state.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Shadansa24/Inventory-app/internal/data"
	"github.com/Shadansa24/Inventory-app/internal/email"
	"github.com/Shadansa24/Inventory-app/internal/inventory"
	"github.com/Shadansa24/Inventory-app/internal/logger"
	"github.com/Shadansa24/Inventory-app/internal/webhook"
)

const (
	ChannelEmail   = "email"
	ChannelWebhook = "webhook"
)

// ErrNoChannels is returned when neither email nor webhook is configured.
var ErrNoChannels = errors.New("no notification channel configured")

type EmailSender interface {
	Send(ctx context.Context, msg email.Message) error
}

type WebhookPoster interface {
	Post(ctx context.Context, p webhook.Payload) error
}

// StateStore remembers which item states were already notified. *data.DB
// implements it; MemoryStore is used when persistence is disabled.
type StateStore interface {
	NotifiedStates(ctx context.Context, identity string) ([]data.Notification, error)
	RecordNotification(ctx context.Context, n data.Notification) error
	ClearNotification(ctx context.Context, identity string) (int64, error)
	NotifiedIdentities(ctx context.Context) ([]string, error)
}

type Options struct {
	Email   EmailSender
	Webhook WebhookPoster
	State   StateStore
	// Source names the inventory file in messages.
	Source string
	Now    func() time.Time
}

type Notifier struct {
	email   EmailSender
	webhook WebhookPoster
	state   StateStore
	source  string
	now     func() time.Time

	// mu serializes deliveries so the watcher and a manual trigger cannot
	// both send the same state.
	mu sync.Mutex
}

func New(opts Options) *Notifier {
	if opts.State == nil {
		opts.State = NewMemoryStore()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Notifier{
		email:   opts.Email,
		webhook: opts.Webhook,
		state:   opts.State,
		source:  opts.Source,
		now:     opts.Now,
	}
}

// Enabled reports whether any channel is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && (n.email != nil || n.webhook != nil)
}

// Channels lists the configured channel names.
func (n *Notifier) Channels() []string {
	var ch []string
	if n.email != nil {
		ch = append(ch, ChannelEmail)
	}
	if n.webhook != nil {
		ch = append(ch, ChannelWebhook)
	}
	return ch
}

// Result describes one delivery round.
type Result struct {
	Alerts    int
	Sent      []string
	Skipped   int
	Recovered int
	Channels  []string
}

func (r Result) String() string {
	if len(r.Sent) == 0 {
		return fmt.Sprintf("no new low-stock items (%d already notified)", r.Skipped)
	}
	return fmt.Sprintf("notified %d item(s) via %s", len(r.Sent), strings.Join(r.Channels, " and "))
}

// Notify delivers the alerts whose state has not been notified yet. alerts
// must be the complete evaluation of the current snapshot: items with
// notification history that are no longer low are treated as recovered and
// will be notified again next time they run low.
func (n *Notifier) Notify(ctx context.Context, alerts []inventory.Alert) (Result, error) {
	return n.deliver(ctx, alerts, false)
}

// Send delivers every alert regardless of what was notified before.
func (n *Notifier) Send(ctx context.Context, alerts []inventory.Alert) (Result, error) {
	return n.deliver(ctx, alerts, true)
}

func (n *Notifier) deliver(ctx context.Context, alerts []inventory.Alert, force bool) (Result, error) {
	if !n.Enabled() {
		return Result{}, ErrNoChannels
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	res := Result{Alerts: len(alerts)}

	recovered, err := n.clearRecovered(ctx, alerts)
	if err != nil {
		return res, err
	}
	res.Recovered = recovered

	byID := groupByID(alerts)
	pending := alerts
	if !force {
		send := make(map[string]bool, len(byID))
		for id, group := range byID {
			prev, err := n.state.NotifiedStates(ctx, id)
			if err != nil {
				return res, err
			}
			if sameStates(prev, group) {
				res.Skipped += len(group)
				continue
			}
			send[id] = true
		}
		pending = pending[:0:0]
		for _, a := range alerts {
			if send[a.Record.ID()] {
				pending = append(pending, a)
			}
		}
	}
	if len(pending) == 0 {
		return res, nil
	}

	now := n.now()
	var errs []error
	if n.email != nil {
		msg, err := email.LowStockMessage(pending, n.source, now)
		if err == nil {
			err = n.email.Send(ctx, msg)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("email: %w", err))
		} else {
			res.Channels = append(res.Channels, ChannelEmail)
		}
	}
	if n.webhook != nil {
		if err := n.webhook.Post(ctx, webhook.LowStock(pending, now)); err != nil {
			errs = append(errs, fmt.Errorf("webhook: %w", err))
		} else {
			res.Channels = append(res.Channels, ChannelWebhook)
		}
	}

	if len(res.Channels) == 0 {
		return res, errors.Join(errs...)
	}

	// each identity's record is replaced as a whole so that rows sharing an
	// identity stay together
	channel := strings.Join(res.Channels, ",")
	recorded := make(map[string]bool)
	for _, a := range pending {
		id := a.Record.ID()
		if recorded[id] {
			continue
		}
		recorded[id] = true
		if err := n.record(ctx, id, byID[id], channel, now); err != nil {
			errs = append(errs, err)
			continue
		}
		for range byID[id] {
			res.Sent = append(res.Sent, id)
		}
	}

	logger.LogInfo("Low-stock notification: %s", res)
	return res, errors.Join(errs...)
}

func (n *Notifier) record(ctx context.Context, id string, group []inventory.Alert, channel string, now time.Time) error {
	if _, err := n.state.ClearNotification(ctx, id); err != nil {
		return err
	}
	for _, a := range group {
		err := n.state.RecordNotification(ctx, data.Notification{
			Identity:  id,
			Quantity:  a.Quantity,
			Threshold: a.Threshold,
			Channel:   channel,
			SentAt:    now,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func groupByID(alerts []inventory.Alert) map[string][]inventory.Alert {
	byID := make(map[string][]inventory.Alert, len(alerts))
	for _, a := range alerts {
		id := a.Record.ID()
		byID[id] = append(byID[id], a)
	}
	return byID
}

type itemState struct{ quantity, threshold int }

// sameStates reports whether prev holds exactly the quantity/threshold pairs
// of group, counting repeats.
func sameStates(prev []data.Notification, group []inventory.Alert) bool {
	if len(prev) != len(group) {
		return false
	}
	counts := make(map[itemState]int, len(group))
	for _, a := range group {
		counts[itemState{a.Quantity, a.Threshold}]++
	}
	for _, p := range prev {
		k := itemState{p.Quantity, p.Threshold}
		if counts[k] == 0 {
			return false
		}
		counts[k]--
	}
	return true
}

func (n *Notifier) clearRecovered(ctx context.Context, alerts []inventory.Alert) (int, error) {
	low := make(map[string]bool, len(alerts))
	for _, a := range alerts {
		low[a.Record.ID()] = true
	}

	ids, err := n.state.NotifiedIdentities(ctx)
	if err != nil {
		return 0, err
	}
	cleared := 0
	for _, id := range ids {
		if low[id] {
			continue
		}
		if _, err := n.state.ClearNotification(ctx, id); err != nil {
			return cleared, err
		}
		logger.LogDebug("%s recovered above its reorder threshold", id)
		cleared++
	}
	return cleared, nil
}

// MemoryStore is an in-process StateStore.
type MemoryStore struct {
	mu   sync.Mutex
	sent map[string][]data.Notification
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sent: make(map[string][]data.Notification)}
}

func (m *MemoryStore) NotifiedStates(_ context.Context, identity string) ([]data.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]data.Notification(nil), m.sent[identity]...), nil
}

func (m *MemoryStore) RecordNotification(_ context.Context, n data.Notification) error {
	m.mu.Lock()
	m.sent[n.Identity] = append(m.sent[n.Identity], n)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) ClearNotification(_ context.Context, identity string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := int64(len(m.sent[identity]))
	delete(m.sent, identity)
	return removed, nil
}

func (m *MemoryStore) NotifiedIdentities(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sent))
	for id := range m.sent {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
