package data

import (
	"context"
	"fmt"
	"time"
)

// Notification records that an alert for an item was sent on a channel.
type Notification struct {
	Identity  string
	Quantity  int
	Threshold int
	Channel   string
	SentAt    time.Time
}

// NotifiedStates returns the notifications on record for identity, oldest
// first. It is empty when the item has never been notified or was cleared
// since. Several rows share an identity when the inventory lists it more than
// once.
func (d *DB) NotifiedStates(ctx context.Context, identity string) ([]Notification, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := d.conn.QueryContext(ctx, `
		SELECT identity, quantity, threshold, channel, sent_at
		FROM alert_notifications
		WHERE identity = ?
		ORDER BY sent_at, id`, identity)
	if err != nil {
		return nil, fmt.Errorf("query notifications for %s: %w", identity, err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var (
			n      Notification
			sentAt string
		)
		if err := rows.Scan(&n.Identity, &n.Quantity, &n.Threshold, &n.Channel, &sentAt); err != nil {
			return nil, err
		}
		if n.SentAt, err = parseTime(sentAt); err != nil {
			return nil, fmt.Errorf("parse sent_at for %s: %w", identity, err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (d *DB) RecordNotification(ctx context.Context, n Notification) error {
	if n.SentAt.IsZero() {
		n.SentAt = time.Now()
	}
	_, err := d.exec(ctx, `
		INSERT INTO alert_notifications (identity, quantity, threshold, channel, sent_at)
		VALUES (?, ?, ?, ?, ?)`,
		n.Identity, n.Quantity, n.Threshold, n.Channel, formatTime(n.SentAt))
	if err != nil {
		return fmt.Errorf("record notification for %s: %w", n.Identity, err)
	}
	return nil
}

// ClearNotification forgets an item's notification history so the next time
// it runs low it is notified again. It returns how many rows were removed.
func (d *DB) ClearNotification(ctx context.Context, identity string) (int64, error) {
	result, err := d.exec(ctx, `DELETE FROM alert_notifications WHERE identity = ?`, identity)
	if err != nil {
		return 0, fmt.Errorf("clear notifications for %s: %w", identity, err)
	}
	return result.RowsAffected()
}

// NotifiedIdentities lists every identity with notification history.
func (d *DB) NotifiedIdentities(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := d.conn.QueryContext(ctx, `SELECT DISTINCT identity FROM alert_notifications ORDER BY identity`)
	if err != nil {
		return nil, fmt.Errorf("list notified identities: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
