package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/you/slack-mirror/internal/config"
	"github.com/you/slack-mirror/internal/emoji"
	httpadmin "github.com/you/slack-mirror/internal/http"
	"github.com/you/slack-mirror/internal/httpapi"
	"github.com/you/slack-mirror/internal/ingest"
	"github.com/you/slack-mirror/internal/mirror"
	"github.com/you/slack-mirror/internal/render"
	"github.com/you/slack-mirror/internal/resolver"
	"github.com/you/slack-mirror/internal/slack"
	"github.com/you/slack-mirror/internal/slackevents"
	"github.com/you/slack-mirror/internal/store"
	"github.com/you/slack-mirror/internal/version"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	// .env is optional; the original deployment carried one.
	_ = godotenv.Load()

	var (
		versionFlag     bool
		channel         string
		capacity        int
		storeKind       string
		sqlitePath      string
		listen          string
		botToken        string
		botTokenFile    string
		signingSecret   string
		httpCorsOrigins string
		httpRateRPS     int
		httpRateBurst   int
		httpMetrics     bool
		httpAccessLog   bool
		httpPprof       bool
	)

	flag.BoolVar(&versionFlag, "version", false, "Print build version and exit")
	flag.StringVar(&channel, "channel", "", "Slack channel name to mirror (without #)")
	flag.IntVar(&capacity, "capacity", 0, "Number of messages to retain")
	flag.StringVar(&storeKind, "store", "", "Message store backend: memory or sqlite")
	flag.StringVar(&sqlitePath, "sqlite", "", "Path to SQLite database file (store=sqlite)")
	flag.StringVar(&listen, "listen", "", "HTTP listen address (e.g., :8080)")
	flag.StringVar(&botToken, "bot-token", "", "Slack bot token (xoxb-...)")
	flag.StringVar(&botTokenFile, "bot-token-file", "", "Path to file containing the Slack bot token")
	flag.StringVar(&signingSecret, "signing-secret", "", "Slack signing secret for webhook verification")
	flag.StringVar(&httpCorsOrigins, "http-cors-origins", "", "Comma-separated list of allowed CORS origins")
	flag.IntVar(&httpRateRPS, "http-rate-rps", 20, "Maximum HTTP requests per second per client")
	flag.IntVar(&httpRateBurst, "http-rate-burst", 40, "Burst size for HTTP rate limiter")
	flag.BoolVar(&httpMetrics, "http-metrics", true, "Expose Prometheus metrics endpoint")
	flag.BoolVar(&httpAccessLog, "http-access-log", true, "Log HTTP access records")
	flag.BoolVar(&httpPprof, "http-pprof", false, "Expose pprof handlers under /debug/pprof")
	flag.Parse()

	if versionFlag {
		fmt.Printf(
			"mirror version: %s (commit %s, built %s)\n",
			version.Version,
			version.Commit,
			version.BuildTime,
		)
		os.Exit(0)
	}

	overrides := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		overrides[f.Name] = true
	})

	cfg := config.Load()

	if overrides["channel"] {
		cfg.Mirror.Channel = strings.TrimSpace(channel)
	}
	if overrides["capacity"] && capacity > 0 {
		cfg.Mirror.Capacity = capacity
	}
	if overrides["store"] {
		cfg.Mirror.Store = strings.ToLower(strings.TrimSpace(storeKind))
	}
	if overrides["sqlite"] {
		cfg.Mirror.SQLitePath = strings.TrimSpace(sqlitePath)
	}
	if overrides["listen"] {
		cfg.HTTP.Listen = strings.TrimSpace(listen)
	}
	if overrides["bot-token"] {
		cfg.Slack.BotToken = strings.TrimSpace(botToken)
	}
	if overrides["bot-token-file"] {
		cfg.Slack.BotTokenFile = strings.TrimSpace(botTokenFile)
	}
	if overrides["signing-secret"] {
		cfg.Slack.SigningSecret = strings.TrimSpace(signingSecret)
	}
	if overrides["http-cors-origins"] {
		cfg.HTTP.CORSOrigins = nil
		for _, origin := range strings.Split(httpCorsOrigins, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				cfg.HTTP.CORSOrigins = append(cfg.HTTP.CORSOrigins, origin)
			}
		}
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})))

	if cfg.Mirror.Channel == "" {
		log.Fatal("mirror: MIRROR_CHANNEL (or -channel) is required")
	}
	if cfg.Slack.SigningSecret == "" {
		log.Fatal("mirror: SLACK_SIGNING_SECRET (or -signing-secret) is required")
	}

	token := cfg.Slack.BotToken
	if cfg.Slack.BotTokenFile != "" {
		data, err := os.ReadFile(cfg.Slack.BotTokenFile)
		if err != nil {
			log.Fatalf("mirror: bot token file: %v", err)
		}
		if trimmed := strings.TrimSpace(string(data)); trimmed != "" {
			token = trimmed
		}
	}
	if token == "" {
		log.Fatal("mirror: SLACK_BOT_TOKEN or SLACK_BOT_TOKEN_FILE is required")
	}

	configSnapshot := cfg.Redacted()
	log.Printf("%s", cfg.SummaryJSON())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("mirror: received %s, shutting down", sig)
		cancel()
	}()

	client := slack.NewClient(token)

	authCtx, authCancel := context.WithTimeout(ctx, 15*time.Second)
	ident, err := client.AuthTest(authCtx)
	authCancel()
	if err != nil {
		log.Fatalf("mirror: auth.test: %v", err)
	}
	log.Printf("mirror: authenticated as %s in team %s", ident.User, ident.Team)

	emojiCtx, emojiCancel := context.WithTimeout(ctx, 30*time.Second)
	catalog, err := emoji.Load(emojiCtx, client)
	emojiCancel()
	if err != nil {
		log.Fatalf("mirror: emoji catalog: %v", err)
	}
	log.Printf("mirror: emoji catalog loaded (%d codes)", catalog.Size())

	var st store.Store
	if cfg.UsesSQLite() {
		db, err := store.OpenSQLite(cfg.Mirror.SQLitePath, cfg.Capacity())
		if err != nil {
			log.Fatalf("mirror: open sqlite: %v", err)
		}
		if err := db.Ping(); err != nil {
			log.Fatalf("mirror: ping sqlite: %v", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				log.Printf("mirror: closing store: %v", err)
			}
		}()
		st = db
		log.Printf("mirror: sqlite store at %s (capacity %d)", cfg.Mirror.SQLitePath, cfg.Capacity())
	} else {
		st = store.NewRing(cfg.Capacity())
		log.Printf("mirror: in-memory store (capacity %d)", cfg.Capacity())
	}

	build := httpapi.BuildInfo{Version: version.Version, Revision: version.Commit}
	if version.BuildTime != "" && version.BuildTime != "unknown" {
		if t, err := time.Parse(time.RFC3339, version.BuildTime); err == nil {
			build.BuiltAt = t
		}
	}

	api := httpapi.New(st, httpapi.Options{
		Addr:            cfg.HTTP.Listen,
		Channel:         cfg.Mirror.Channel,
		StoreBackend:    cfg.Mirror.Store,
		Capacity:        cfg.Capacity(),
		CORSOrigins:     cfg.HTTP.CORSOrigins,
		RateLimitRPS:    httpRateRPS,
		RateLimitBurst:  httpRateBurst,
		EnableMetrics:   httpMetrics,
		EnableAccessLog: httpAccessLog,
		EnablePprof:     httpPprof,
		Build:           build,
		ConfigSnapshot:  configSnapshot,
	})

	entities := resolver.New(client)
	renderer := render.New(entities, catalog)
	controller := ingest.New(cfg.Mirror.Channel, entities, renderer, st, api, slog.Default())
	if reg := api.MetricsRegistry(); reg != nil {
		if err := controller.RegisterMetrics(reg); err != nil {
			log.Printf("mirror: register pipeline metrics: %v", err)
		}
	}

	events := slackevents.New(cfg.Slack.SigningSecret, controller, slog.Default())
	events.Register(api.Mux())

	mir := mirror.New(cfg.Slack.BotTokenFile, client)
	httpadmin.New(mir).Register(api.Mux())
	if cfg.Slack.BotTokenFile != "" {
		if err := mir.WatchTokenFile(); err != nil {
			slog.Error("mirror: watch token file", "err", err)
		}
	}

	go func() {
		if err := api.Start(); err != nil {
			log.Fatalf("mirror: http api: %v", err)
		}
	}()
	log.Printf("mirror: serving #%s on %s", cfg.Mirror.Channel, cfg.HTTP.Listen)

	<-ctx.Done()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	if err := api.Shutdown(shutdownCtx); err != nil {
		log.Printf("mirror: http api shutdown: %v", err)
	}
	cancelShutdown()

	log.Printf("mirror: shutdown complete")
}
