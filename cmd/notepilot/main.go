// NotePilot — vault copilot engine. Entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/matiasleandrokruk/notepilot/internal/api"
	"github.com/matiasleandrokruk/notepilot/internal/domain/chain"
	"github.com/matiasleandrokruk/notepilot/internal/domain/model"
	"github.com/matiasleandrokruk/notepilot/internal/domain/vault"
	"github.com/matiasleandrokruk/notepilot/internal/infra/config"
	"github.com/matiasleandrokruk/notepilot/internal/infra/eventbus"
	"github.com/matiasleandrokruk/notepilot/internal/infra/llm"
	"github.com/matiasleandrokruk/notepilot/internal/infra/secrets"
	"github.com/matiasleandrokruk/notepilot/internal/infra/settings"
	"github.com/matiasleandrokruk/notepilot/internal/infra/sqlite"
	"github.com/matiasleandrokruk/notepilot/internal/server"
	"github.com/matiasleandrokruk/notepilot/internal/version"
)

const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("notepilot", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	showVersion := fs.Bool("version", false, "Show version information")
	showHelp := fs.Bool("help", false, "Show help")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *showVersion {
		fmt.Fprintln(out, version.String()) //nolint:errcheck
		return 0
	}

	if *showHelp {
		printHelp(out)
		return 0
	}

	switch cmd := fs.Arg(0); cmd {
	case "", "serve":
		return runServe(out)
	default:
		fmt.Fprintf(out, "unknown command %q\n\n", cmd) //nolint:errcheck
		printHelp(out)
		return 2
	}
}

func runServe(out io.Writer) int {
	cfg := config.Load()
	log := newLogger(cfg.LogLevel)

	db, err := sqlite.NewDB(cfg.DBPath)
	if err != nil {
		log.Error().Err(err).Msg("open database")
		return 1
	}
	defer db.Close() //nolint:errcheck
	if err := sqlite.MigrateUp(db); err != nil {
		log.Error().Err(err).Msg("run migrations")
		return 1
	}

	box, err := secrets.NewBox(cfg.SecretPassphrase)
	if err != nil {
		log.Error().Err(err).Msg("init secret box")
		return 1
	}

	initial, err := settings.Load(cfg.SettingsPath)
	if err != nil {
		log.Error().Err(err).Msg("load settings")
		return 1
	}
	seedBuiltins(&initial)

	store := settings.NewStore(initial, cfg.SettingsPath, eventbus.New(), log)
	adapters := llm.DefaultAdapters()
	creds := model.NewCredentialResolver(adapters, box)
	chats := model.NewChatRegistry(adapters, creds, log)
	embeds := model.NewEmbeddingRegistry(adapters, creds, log)

	index := vault.NewIndex(db, cfg.VaultPath, log)
	retriever := vault.NewHybridRetriever(db, index, log)

	notifier := chain.NotifierFunc(func(message string) {
		log.Warn().Str("notice", message).Msg("user notice")
	})
	orch := chain.NewOrchestrator(store, chats, embeds, index, retriever, notifier, log)
	defer orch.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A failed start (no credentials yet, bad default model) is not fatal:
	// the API stays up so the user can fix settings over it.
	if err := orch.Start(ctx); err != nil {
		log.Warn().Err(err).Msg("orchestrator started degraded")
	}

	router := api.NewRouter(api.Deps{
		Store:     store,
		Chats:     chats,
		Embeds:    embeds,
		Orch:      orch,
		Box:       box,
		APIToken:  cfg.APIToken,
		JWTSecret: []byte(cfg.JWTSecret),
	})

	srv := server.NewServer(router, server.DefaultConfig(cfg.Addr()), log)
	done := make(chan error, 1)
	go func() { done <- srv.Start() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown")
			return 1
		}
		<-done
	case err := <-done:
		if err != nil {
			log.Error().Err(err).Msg("server failed")
			return 1
		}
	}
	return 0
}

// seedBuiltins fills empty model lists with the built-in catalog so a fresh
// install has something to activate.
func seedBuiltins(s *settings.Settings) {
	if len(s.ActiveModels) == 0 {
		s.ActiveModels = model.BuiltinChatModels()
	}
	if len(s.ActiveEmbeddingModels) == 0 {
		s.ActiveEmbeddingModels = model.BuiltinEmbeddingModels()
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(lvl).
		With().Timestamp().Logger()
}

func printHelp(out io.Writer) {
	helpText := `NotePilot — vault copilot engine

Usage:
  notepilot [options] [command]

Options:
  --version    Show version information
  --help       Show this help message

Commands:
  serve        Start the server (default)

Environment:
  NOTEPILOT_HOST, NOTEPILOT_PORT       Bind address (default 127.0.0.1:8799)
  NOTEPILOT_DB                         Vault index database path
  NOTEPILOT_SETTINGS                   Settings YAML path
  NOTEPILOT_VAULT                      Note tree root
  NOTEPILOT_API_TOKEN                  Shared secret for /auth/token
  NOTEPILOT_JWT_SECRET                 JWT signing secret
  NOTEPILOT_SECRET_KEY                 Credential encryption passphrase
  NOTEPILOT_LOG_LEVEL                  trace|debug|info|warn|error

Examples:
  notepilot --version
  notepilot serve`
	fmt.Fprintln(out, helpText) //nolint:errcheck
}
