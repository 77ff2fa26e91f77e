package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Shadansa24/Inventory-app/internal/cleanup"
	"github.com/Shadansa24/Inventory-app/internal/config"
	"github.com/Shadansa24/Inventory-app/internal/dashboard"
	"github.com/Shadansa24/Inventory-app/internal/data"
	"github.com/Shadansa24/Inventory-app/internal/email"
	"github.com/Shadansa24/Inventory-app/internal/inventory"
	"github.com/Shadansa24/Inventory-app/internal/llm"
	"github.com/Shadansa24/Inventory-app/internal/logger"
	"github.com/Shadansa24/Inventory-app/internal/notify"
	"github.com/Shadansa24/Inventory-app/internal/prompt"
	"github.com/Shadansa24/Inventory-app/internal/security"
	"github.com/Shadansa24/Inventory-app/internal/session"
	"github.com/Shadansa24/Inventory-app/internal/watch"
	"github.com/Shadansa24/Inventory-app/internal/webhook"
)

// app holds everything built from Settings that more than one command uses.
type app struct {
	settings config.Settings
	store    *inventory.Store
	builder  *prompt.Builder
	chat     *llm.Client
	db       *data.DB
	notifier *notify.Notifier
}

func newRootCommand() *cobra.Command {
	var (
		a       = &app{}
		verbose bool
	)

	root := &cobra.Command{
		Use:          "inventory-app",
		Short:        "Inventory dashboard with low-stock alerts and an AI assistant",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Name() == "serve" || cmd.Name() == "inventory-app", verbose)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to the console")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the dashboard web server (default)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.serve(cmd.Context())
			},
		},
		newAlertsCommand(a),
		newAskCommand(a),
	)
	return root
}

// setup loads configuration, logging and the shared components. The server
// logs to a dated file; the one-shot commands log warnings to the console.
func (a *app) setup(server, verbose bool) error {
	config.LoadEnv()

	logCfg := config.LoggerConfig()
	if !server {
		logCfg.Console = true
		logCfg.Level = logger.LevelWarn
	}
	if verbose {
		logCfg.Level = logger.LevelDebug
	}
	if err := logger.SetupLogger(logCfg); err != nil {
		log.Printf("Failed to initialize logger: %v", err)
		return err
	}
	if tz := os.Getenv("TIME_ZONE"); tz != "" && tz != "Local" {
		if loc, err := time.LoadLocation(tz); err == nil {
			time.Local = loc
		}
	}
	config.LogCurrentEnvironment()

	s, err := config.Load()
	if err != nil {
		logger.LogError("Invalid configuration: %v", err)
		return err
	}
	a.settings = s

	a.store = inventory.NewStore(inventory.StoreOptions{
		DefaultReorderThreshold: s.ReorderDefault,
		SuppliersPath:           s.SuppliersCSVPath,
		SalesPath:               s.SalesCSVPath,
	})
	a.builder = prompt.NewBuilder(prompt.Options{MaxChars: s.ContextMaxChars, MaxRows: s.ContextMaxRows})
	a.chat = llm.NewClient(llm.Config{
		APIKey:     s.APIKey,
		BaseURL:    s.LLMBaseURL,
		Model:      s.ModelName,
		Timeout:    s.ChatTimeout,
		MaxRetries: s.ChatMaxRetries,
	})
	if a.chat.Configured() {
		logger.LogInfo("Assistant enabled (model: %s, key: %s)", a.chat.Model(), a.chat.KeyFingerprint())
	} else {
		logger.LogWarn("No LLM API key configured; the assistant will report that it is not configured")
	}

	if s.DBPath != "" {
		db, err := data.Open(s.DBPath)
		if err != nil {
			// persistence is optional; keep running without it
			logger.LogError("Failed to open database %s, continuing without persistence: %v", s.DBPath, err)
		} else {
			a.db = db
		}
	}

	a.notifier = notify.New(a.notifyOptions())
	if a.notifier.Enabled() {
		logger.LogInfo("Low-stock notifications via %s", strings.Join(a.notifier.Channels(), " and "))
	}
	return nil
}

// notifyOptions leaves channels unset rather than typed-nil when they are off.
func (a *app) notifyOptions() notify.Options {
	s := a.settings
	opts := notify.Options{Source: s.CSVPath}

	var state notify.StateStore = notify.NewMemoryStore()
	if a.db != nil {
		state = a.db
	}
	opts.State = state

	if s.EmailAlerts {
		opts.Email = email.NewMailer(email.EmailConfig{
			AlertRecipient: s.EmailAlertRecipient,
			AlertSender:    s.EmailAlertSender,
			MockMode:       s.EmailMockMode,
			LogEmails:      true,
		})
	}
	if s.AlertWebhookURL != "" {
		opts.Webhook = webhook.New(s.AlertWebhookURL, webhook.DefaultTimeout)
	}
	return opts
}

func (a *app) close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			logger.LogError("Failed to close database: %v", err)
		}
	}
	logger.Close()
}

func (a *app) dashboard(sessions *session.Manager, csrf *security.CSRF) *dashboard.Dashboard {
	deps := dashboard.Deps{
		Store:       a.store,
		CSVPath:     a.settings.CSVPath,
		Builder:     a.builder,
		Chat:        a.chat,
		Sessions:    sessions,
		CSRF:        csrf,
		Notifier:    a.notifier,
		ChatTimeout: a.settings.ChatTimeout,
	}
	if a.db != nil {
		deps.Audit = a.db
	}
	return dashboard.New(deps)
}

func (a *app) serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := a.settings
	sessions := session.NewManager(s.SessionTTL, s.ChatRatePerMinute)
	sessions.SetSecureCookie(s.SessionSecureCookie)
	csrf := security.NewCSRF(security.DefaultCSRFTokenTTL)

	mux := http.NewServeMux()
	a.dashboard(sessions, csrf).Register(mux)

	server := &App{
		addr:           s.Addr(),
		mux:            mux,
		requestTimeout: s.ChatTimeout + 15*time.Second,
	}

	tasks := []cleanup.Task{cleanup.Sessions(sessions), cleanup.CSRFTokens(csrf)}
	if a.db != nil {
		tasks = append(tasks, cleanup.ChatAudit(a.db, s.AuditRetention))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })
	g.Go(func() error { return cleanup.New(s.CleanupInterval, tasks...).Run(gctx) })
	if s.AlertWatch {
		if !a.notifier.Enabled() {
			logger.LogWarn("ALERT_WATCH is on but no notification channel is configured; changes will only be logged")
		}
		w := watch.New(s.CSVPath, watch.DefaultDebounce, a.checkAlerts)
		g.Go(func() error {
			if err := w.Run(gctx); err != nil {
				logger.LogError("CSV watcher stopped: %v", err)
			}
			return nil
		})
		a.checkAlerts(gctx)
	}
	return g.Wait()
}

// checkAlerts reloads the CSV and notifies newly low items. Failures are
// logged; the watcher keeps running.
func (a *app) checkAlerts(ctx context.Context) {
	snap, err := a.store.Load(ctx, a.settings.CSVPath)
	if err != nil {
		logger.LogError("Alert check skipped: %v", err)
		return
	}
	alerts := inventory.Evaluate(snap)
	logger.LogInfo("Alert check: %d of %d items low on stock", len(alerts), snap.Len())

	if !a.notifier.Enabled() {
		return
	}
	res, err := a.notifier.Notify(ctx, alerts)
	if err != nil {
		logger.LogError("Low-stock notification failed: %v", err)
		return
	}
	logger.LogInfo("Low-stock notification: %s", res)
}

func newAlertsCommand(a *app) *cobra.Command {
	var (
		csvPath  string
		sendNow  bool
		force    bool
		exitCode bool
	)
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Print products at or below their reorder threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.settings.CSVPath
			if csvPath != "" {
				path = csvPath
			}
			snap, err := a.store.Load(cmd.Context(), path)
			if err != nil {
				return errors.New(dashboard.UserMessage(err))
			}
			alerts := inventory.Evaluate(snap)
			printAlerts(cmd, snap, alerts)

			if sendNow || force {
				if !a.notifier.Enabled() {
					return errors.New("no notification channel configured: set EMAIL_ALERTS or ALERT_WEBHOOK_URL")
				}
				send := a.notifier.Notify
				if force {
					send = a.notifier.Send
				}
				res, err := send(cmd.Context(), alerts)
				if err != nil {
					return fmt.Errorf("send notifications: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), res)
			}
			if exitCode && len(alerts) > 0 {
				a.close()
				os.Exit(2)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "inventory CSV to check (default CSV_PATH)")
	cmd.Flags().BoolVar(&sendNow, "notify", false, "notify items that were not notified before")
	cmd.Flags().BoolVar(&force, "force", false, "notify every low item, even if already notified")
	cmd.Flags().BoolVar(&exitCode, "exit-code", false, "exit with status 2 when any item is low")
	return cmd
}

func printAlerts(cmd *cobra.Command, snap *inventory.Snapshot, alerts []inventory.Alert) {
	out := cmd.OutOrStdout()
	bold := color.New(color.Bold)
	red := color.New(color.FgRed, color.Bold)
	green := color.New(color.FgGreen)

	bold.Fprintf(out, "%s: %d products\n", snap.Source, snap.Len())
	if dups := snap.Duplicates(); len(dups) > 0 {
		color.New(color.FgYellow).Fprintf(out, "warning: duplicate products: %s\n", strings.Join(dups, ", "))
	}
	if len(alerts) == 0 {
		green.Fprintln(out, "All products are above their reorder threshold.")
		return
	}

	red.Fprintf(out, "%d low on stock:\n", len(alerts))
	for _, al := range alerts {
		id := al.Record.Label()
		if al.Record.SKU != "" && al.Record.Name != "" {
			id = fmt.Sprintf("%s (%s)", al.Record.Name, al.Record.SKU)
		}
		fmt.Fprintf(out, "  %s  %s/%s  order at least %d\n",
			red.Sprint(id), red.Sprint(al.Quantity), fmt.Sprint(al.Threshold), al.Shortfall())
	}
}

func newAskCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ask \"question\"",
		Short: "Ask the assistant one question about the inventory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := a.dashboard(nil, nil)
			turn, err := d.Ask(cmd.Context(), "cli", strings.Join(args, " "))
			if err != nil {
				if turn.Err != "" {
					return errors.New(turn.Err)
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), turn.Response)
			return nil
		},
	}
}
