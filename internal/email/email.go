// internal/email/email.go
package email

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"text/template"
	"time"

	"github.com/Shadansa24/Inventory-app/internal/inventory"
	"github.com/Shadansa24/Inventory-app/internal/logger"
)

const (
	defaultAlertRecipient = "admin@yourdomain.org"
	defaultAlertSender    = "alerts@yourdomain.org"
	defaultSendmailPath   = "/usr/sbin/sendmail"
)

// EmailConfig holds email configuration
type EmailConfig struct {
	AlertRecipient string
	AlertSender    string
	MockMode       bool
	LogEmails      bool
	SendmailPath   string
}

func (c EmailConfig) withDefaults() EmailConfig {
	if c.AlertRecipient == "" {
		c.AlertRecipient = defaultAlertRecipient
	}
	if c.AlertSender == "" {
		c.AlertSender = defaultAlertSender
	}
	if c.SendmailPath == "" {
		c.SendmailPath = defaultSendmailPath
	}
	return c
}

// Message is a plain-text email.
type Message struct {
	To      string
	From    string
	Subject string
	Body    string
}

// Mailer delivers messages through sendmail, or only logs them in mock mode.
type Mailer struct {
	config EmailConfig
	// run pipes a raw message into the sendmail binary.
	run func(ctx context.Context, path string, raw []byte) error
}

func NewMailer(config EmailConfig) *Mailer {
	return &Mailer{config: config.withDefaults(), run: runSendmail}
}

func (m *Mailer) Config() EmailConfig { return m.config }

// Send delivers msg. Empty To/From fall back to the configured alert addresses.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		msg.To = m.config.AlertRecipient
	}
	if msg.From == "" {
		msg.From = m.config.AlertSender
	}

	if m.config.MockMode {
		logger.LogInfo("========== MOCK EMAIL ==========")
		logger.LogInfo("To: %s", msg.To)
		logger.LogInfo("From: %s", msg.From)
		logger.LogInfo("Subject: %s", msg.Subject)
		for _, line := range strings.Split(msg.Body, "\n") {
			logger.LogInfo("   %s", line)
		}
		logger.LogInfo("================================")
		return nil
	}

	if m.config.LogEmails {
		logger.LogInfo("Sending email to %s with subject: %s", msg.To, msg.Subject)
	}

	if err := m.run(ctx, m.config.SendmailPath, Format(msg)); err != nil {
		return fmt.Errorf("sendmail command failed: %w", err)
	}

	if m.config.LogEmails {
		logger.LogInfo("Email sent to %s", msg.To)
	}
	return nil
}

// Format renders msg with the headers sendmail -t reads recipients from.
func Format(msg Message) []byte {
	headers := []string{
		fmt.Sprintf("From: %s", msg.From),
		fmt.Sprintf("To: %s", msg.To),
		fmt.Sprintf("Subject: %s", msg.Subject),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"utf-8\"",
		"",
	}
	return []byte(strings.Join(headers, "\r\n") + "\r\n" + msg.Body)
}

func runSendmail(ctx context.Context, path string, raw []byte) error {
	cmd := exec.CommandContext(ctx, path, "-t")
	cmd.Stdin = bytes.NewReader(raw)
	if out, err := cmd.CombinedOutput(); err != nil {
		if len(out) > 0 {
			return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out)))
		}
		return err
	}
	return nil
}

var lowStockTemplate = template.Must(template.New("low-stock").Parse(`The following {{len .Alerts}} item(s) are at or below their reorder threshold:

{{range .Alerts}}  - {{if .Record.SKU}}[{{.Record.SKU}}] {{end}}{{.Record.Label}}: {{.Quantity}} on hand, threshold {{.Threshold}}, reorder at least {{.Shortfall}}
{{end}}
Source: {{.Source}}
Checked: {{.CheckedAt.Format "January 2, 2006 at 3:04 PM"}}
`))

// LowStockMessage builds the alert email for a set of low-stock items.
func LowStockMessage(alerts []inventory.Alert, source string, checkedAt time.Time) (Message, error) {
	var buf bytes.Buffer
	err := lowStockTemplate.Execute(&buf, struct {
		Alerts    []inventory.Alert
		Source    string
		CheckedAt time.Time
	}{alerts, source, checkedAt})
	if err != nil {
		return Message{}, fmt.Errorf("failed to execute low-stock template: %w", err)
	}

	return Message{
		Subject: fmt.Sprintf("[Inventory] %d low-stock item(s)", len(alerts)),
		Body:    buf.String(),
	}, nil
}
