package servecmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lyrebirdhq/linescribe/commands"
	"github.com/lyrebirdhq/linescribe/conversation"
	"github.com/lyrebirdhq/linescribe/db"
	"github.com/lyrebirdhq/linescribe/db/models"
	"github.com/lyrebirdhq/linescribe/digest"
	"github.com/lyrebirdhq/linescribe/internal/configutil"
	"github.com/lyrebirdhq/linescribe/internal/logutil"
	"github.com/lyrebirdhq/linescribe/line"
	"github.com/lyrebirdhq/linescribe/tasks"
	"github.com/lyrebirdhq/linescribe/webhook"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type serveConfig struct {
	listen        string
	dbDSN         string
	channelSecret string
	channelToken  string
	timezone      string
	echoEnabled   bool
	healthEnabled bool

	digestEnabled bool
	digestMode    string
	digestCron    string
	reminderCron  string

	logLevel  string
	logFormat string
}

// New returns the serve command: webhook server plus digest scheduler.
func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server and digest scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadServeConfig(cmd)
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().String("listen", "127.0.0.1:8080", "HTTP listen address.")
	cmd.Flags().String("db-dsn", "", "SQLite DSN (defaults to ~/.linescribe/linescribe.sqlite).")
	cmd.Flags().String("timezone", models.DefaultTimezone, "Default timezone for new identities and digest slots.")
	cmd.Flags().Bool("echo", false, "Echo non-command text back to the sender instead of silent ingestion.")
	cmd.Flags().Bool("health", true, "Expose GET /health.")
	cmd.Flags().Bool("digest-enabled", true, "Run the periodic digest scheduler.")
	cmd.Flags().String("digest-mode", digest.ModeTasks, "Digest composition mode (tasks|greeting).")
	cmd.Flags().String("digest-cron", "0 9 * * *", "Digest slot (five-field cron, local time).")
	cmd.Flags().String("reminder-cron", "*/15 * * * *", "Reserved reminder slot (five-field cron).")
	cmd.Flags().String("log-level", "info", "Log level (debug|info|warn|error).")
	cmd.Flags().String("log-format", "text", "Log format (text|json).")

	return cmd
}

func loadServeConfig(cmd *cobra.Command) serveConfig {
	secret := strings.TrimSpace(viper.GetString("line.channel_secret"))
	if secret == "" {
		secret = strings.TrimSpace(os.Getenv("LINE_CHANNEL_SECRET"))
	}
	token := strings.TrimSpace(viper.GetString("line.channel_access_token"))
	if token == "" {
		token = strings.TrimSpace(os.Getenv("LINE_CHANNEL_ACCESS_TOKEN"))
	}

	return serveConfig{
		listen:        strings.TrimSpace(configutil.FlagOrViperString(cmd, "listen", "server.listen")),
		dbDSN:         strings.TrimSpace(configutil.FlagOrViperString(cmd, "db-dsn", "db.dsn")),
		channelSecret: secret,
		channelToken:  token,
		timezone:      strings.TrimSpace(configutil.FlagOrViperString(cmd, "timezone", "timezone")),
		echoEnabled:   configutil.FlagOrViperBool(cmd, "echo", "reply.echo_enabled"),
		healthEnabled: configutil.FlagOrViperBool(cmd, "health", "server.health_enabled"),
		digestEnabled: configutil.FlagOrViperBool(cmd, "digest-enabled", "digest.enabled"),
		digestMode:    strings.TrimSpace(configutil.FlagOrViperString(cmd, "digest-mode", "digest.mode")),
		digestCron:    strings.TrimSpace(configutil.FlagOrViperString(cmd, "digest-cron", "digest.cron")),
		reminderCron:  strings.TrimSpace(configutil.FlagOrViperString(cmd, "reminder-cron", "digest.reminder_cron")),
		logLevel:      strings.TrimSpace(configutil.FlagOrViperString(cmd, "log-level", "log.level")),
		logFormat:     strings.TrimSpace(configutil.FlagOrViperString(cmd, "log-format", "log.format")),
	}
}

func run(ctx context.Context, cfg serveConfig) error {
	log := logutil.New(cfg.logLevel, cfg.logFormat)

	if cfg.channelToken == "" {
		return fmt.Errorf("missing channel access token (LINE_CHANNEL_ACCESS_TOKEN)")
	}
	if cfg.channelSecret == "" {
		// Verification fails closed, so the server would reject everything.
		log.Warn("channel_secret_missing", "effect", "all webhook deliveries will be rejected")
	}

	loc, err := time.LoadLocation(cfg.timezone)
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", cfg.timezone, err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbCfg := db.DefaultConfig()
	dbCfg.DSN = cfg.dbDSN
	gdb, err := db.Open(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	if dbCfg.AutoMigrate {
		if err := db.AutoMigrate(gdb); err != nil {
			return fmt.Errorf("migrate db: %w", err)
		}
	}

	store, err := conversation.NewStore(gdb)
	if err != nil {
		return err
	}
	client, err := line.NewClient(nil, "", cfg.channelToken)
	if err != nil {
		return err
	}
	resolver, err := conversation.NewResolver(store, client, cfg.timezone, log)
	if err != nil {
		return err
	}
	dispatcher, err := commands.NewDispatcher(store, log)
	if err != nil {
		return err
	}
	router, err := conversation.NewRouter(conversation.RouterOptions{
		Store:       store,
		Resolver:    resolver,
		Extractor:   tasks.NewExtractor(loc, nil, log),
		Dispatcher:  dispatcher,
		Replier:     client,
		EchoEnabled: cfg.echoEnabled,
		Log:         log,
	})
	if err != nil {
		return err
	}

	digestCfg := digest.DefaultConfig()
	digestCfg.Enabled = cfg.digestEnabled
	digestCfg.Mode = cfg.digestMode
	digestCfg.DigestCron = cfg.digestCron
	digestCfg.ReminderCron = cfg.reminderCron
	digestCfg.Location = loc
	scheduler, err := digest.New(store, client, digestCfg, log)
	if err != nil {
		return err
	}
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	handler, err := webhook.NewHandler(webhook.Options{
		ChannelSecret: cfg.channelSecret,
		Handler:       router,
		Log:           log,
		HealthEnabled: cfg.healthEnabled,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server_start", "listen", cfg.listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		log.Info("server_shutdown", "reason", ctx.Err().Error())
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server_shutdown_error", "error", err.Error())
	}
	scheduler.Wait()
	return nil
}
