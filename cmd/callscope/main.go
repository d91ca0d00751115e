// CallScope engine server: ingests calendar and transcript webhooks,
// runs the call lifecycle, and serves the admin API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/callscope/callscope/pkg/ai"
	"github.com/callscope/callscope/pkg/alerts"
	"github.com/callscope/callscope/pkg/api"
	"github.com/callscope/callscope/pkg/audit"
	"github.com/callscope/callscope/pkg/calendar"
	"github.com/callscope/callscope/pkg/config"
	"github.com/callscope/callscope/pkg/fathom"
	"github.com/callscope/callscope/pkg/gcal"
	"github.com/callscope/callscope/pkg/lifecycle"
	"github.com/callscope/callscope/pkg/payments"
	"github.com/callscope/callscope/pkg/pushchan"
	"github.com/callscope/callscope/pkg/sweeper"
	"github.com/callscope/callscope/pkg/tenants"
	"github.com/callscope/callscope/pkg/transcript"
	"github.com/callscope/callscope/pkg/version"
	"github.com/callscope/callscope/pkg/warehouse"
	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// googleEndpoint is Google's OAuth2 token endpoint. Declared here so the
// binary only needs the core oauth2 package.
var googleEndpoint = oauth2.Endpoint{
	AuthURL:  "https://accounts.google.com/o/oauth2/auth",
	TokenURL: "https://oauth2.googleapis.com/token",
}

func main() {
	// Parse command-line flags
	configPath := flag.String("config",
		getEnv("CONFIG_PATH", "./config.yaml"),
		"Path to configuration file")
	flag.Parse()

	// Load .env file from the config file's directory
	envPath := filepath.Join(filepath.Dir(*configPath), ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	slog.Info("Starting CallScope",
		"version", version.Full(),
		"config", *configPath)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configPath)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize warehouse
	dbConfig, err := warehouse.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load warehouse config", "error", err)
		os.Exit(1)
	}

	db, err := warehouse.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to warehouse", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("Error closing warehouse client", "error", err)
		}
	}()
	slog.Info("Connected to warehouse", "dsn", dbConfig.Redacted())

	// 3. Slack alerting. The service is nil-safe, so a disabled sink
	// leaves every caller working.
	var alertSvc *alerts.Service
	if cfg.SlackEnabled() {
		alertSvc = alerts.NewService(alerts.ServiceConfig{
			Token:   os.Getenv(cfg.Slack.TokenEnv),
			Channel: cfg.Slack.Channel,
		})
		if alertSvc == nil {
			slog.Warn("Slack alerting enabled but token or channel is missing",
				"token_env", cfg.Slack.TokenEnv)
		} else {
			alertSvc.StartDigest(ctx, cfg.Slack.DigestInterval)
			defer alertSvc.Stop()
			slog.Info("Slack alerting enabled", "channel", cfg.Slack.Channel)
		}
	}

	// 4. Audit recorder and the lifecycle machine
	recorder := audit.NewRecorder(db.Audit)
	machine := lifecycle.NewMachine(db.Calls, recorder)

	// 5. Calendar providers and push channels. Without a Google
	// credential the engine still runs; calendar ingest is simply off.
	calProviders := calendar.NewRegistry()
	channels := pushchan.NewRegistry()

	var pushMgr *pushchan.Manager
	if refreshToken := os.Getenv("GOOGLE_REFRESH_TOKEN"); refreshToken != "" {
		oauthCfg := &oauth2.Config{
			ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
			ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
			Endpoint:     googleEndpoint,
		}
		source := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
		gcalClient := gcal.NewClient(ctx, source)
		calProviders.Register(gcalClient)

		pushMgr = pushchan.NewManager(pushchan.Deps{
			Channels: gcalClient,
			Registry: channels,
			Alerts:   alertSvc,
			Config:   cfg.Push,
		})
		pushMgr.Start(ctx)
		slog.Info("Google Calendar provider registered")
	} else {
		slog.Warn("GOOGLE_REFRESH_TOKEN not set, calendar ingest disabled")
	}

	calendarOrch := calendar.NewOrchestrator(calendar.Deps{
		Tenants:       db.Tenants,
		Closers:       db.Closers,
		Calls:         db.Calls,
		Prospects:     db.Prospects,
		Machine:       machine,
		Recorder:      recorder,
		Alerts:        alertSvc,
		Providers:     calProviders,
		Lookback:      cfg.Calendar.FetchWindow,
		RecencyWindow: cfg.Calendar.RecencyWindow,
	})

	// 6. Transcript pipeline with optional inline analysis
	adapters := transcript.NewRegistry()
	adapters.Register(fathom.Adapter{})

	tDeps := transcript.Deps{
		Config:    cfg.Transcript,
		Closers:   db.Closers,
		Tenants:   db.Tenants,
		Calls:     db.Calls,
		Prospects: db.Prospects,
		Machine:   machine,
		Recorder:  recorder,
		Alerts:    alertSvc,
		Adapters:  adapters,
	}
	if apiKey := os.Getenv(cfg.AI.APIKeyEnv); apiKey != "" {
		llm := ai.NewLLM(apiKey, cfg.AI.Model, cfg.AI.MaxTokens)
		tDeps.Analyzer = ai.NewAnalyzer(ai.Deps{
			LLM:        llm,
			Machine:    machine,
			Calls:      db.Calls,
			Closers:    db.Closers,
			Objections: db.Objections,
			Costs:      db.Costs,
			Recorder:   recorder,
			Config:     *cfg.AI,
		})
		slog.Info("AI analysis enabled", "model", cfg.AI.Model)
	} else {
		slog.Warn("AI analysis disabled, shown calls will stay queued",
			"api_key_env", cfg.AI.APIKeyEnv)
	}
	transcriptOrch := transcript.NewOrchestrator(tDeps)

	// 7. Timeout sweeper
	var sweepSvc *sweeper.Service
	if cfg.Sweeper.IsEnabled() {
		sweepSvc = sweeper.NewService(sweeper.Deps{
			Config:      cfg.Sweeper,
			Calls:       db.Calls,
			Closers:     db.Closers,
			Machine:     machine,
			Transcripts: transcriptOrch,
			Pullers: map[string]sweeper.PullerFactory{
				fathom.ProviderName: func(apiKey string) sweeper.TranscriptPuller {
					return fathom.NewClient(apiKey)
				},
			},
		})
		sweepSvc.Start(ctx)
	} else {
		slog.Info("Sweeper disabled by config")
	}

	// 8. Tenant and closer provisioning
	provDeps := tenants.Deps{
		Tenants:  db.Tenants,
		Closers:  db.Closers,
		Recorder: recorder,
		Registrars: map[string]tenants.RegistrarFactory{
			fathom.ProviderName: func(apiKey string) tenants.WebhookRegistrar {
				return fathom.NewClient(apiKey)
			},
		},
		PublicBaseURL: cfg.Server.PublicBaseURL,
	}
	if pushMgr != nil {
		provDeps.Push = pushMgr
	}
	provisioning := tenants.NewService(provDeps)

	// 9. Payment reconciliation
	paySvc := payments.NewService(payments.Deps{
		Calls:     db.Calls,
		Prospects: db.Prospects,
		Machine:   machine,
		Recorder:  recorder,
		Alerts:    alertSvc,
	})

	// 10. HTTP server
	apiDeps := api.Deps{
		Config:       cfg,
		DB:           db,
		Tokens:       db.Tokens,
		Calendar:     calendarOrch,
		Transcripts:  transcriptOrch,
		Payments:     paySvc,
		Provisioning: provisioning,
		Calls:        db.Calls,
		Tenants:      db.Tenants,
		Closers:      db.Closers,
		Objections:   db.Objections,
		Audit:        db.Audit,
		Channels:     channels,
		Pullers: map[string]api.PullerFactory{
			fathom.ProviderName: func(apiKey string) api.MeetingPuller {
				return fathom.NewClient(apiKey)
			},
		},
	}
	if sweepSvc != nil {
		apiDeps.Sweeper = sweepSvc
	}
	httpServer := api.NewServer(apiDeps)

	// 11. Start HTTP server (non-blocking)
	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("CallScope started successfully", "port", cfg.Server.Port)

	// 12. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 13. Graceful shutdown. Ingress first so no new work arrives while
	// the background services drain.
	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	if sweepSvc != nil {
		done := make(chan struct{})
		go func() {
			sweepSvc.Stop()
			close(done)
		}()
		select {
		case <-done:
			slog.Info("Sweeper stopped gracefully")
		case <-time.After(cfg.Server.ShutdownTimeout):
			slog.Warn("Sweeper shutdown timeout exceeded, a sweep pass may still be running")
		}
	}

	if pushMgr != nil {
		pushMgr.Stop()
	}

	slog.Info("Shutdown complete")
}
