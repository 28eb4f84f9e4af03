package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	dualbus "github.com/bnema/valuation-session-cli/internal/adapters/bus/dual"
	"github.com/bnema/valuation-session-cli/internal/adapters/bus/fswatch"
	"github.com/bnema/valuation-session-cli/internal/adapters/bus/inproc"
	statusadapter "github.com/bnema/valuation-session-cli/internal/adapters/render/status"
	chainstore "github.com/bnema/valuation-session-cli/internal/adapters/secrets/chain"
	filestore "github.com/bnema/valuation-session-cli/internal/adapters/store/file"
	"github.com/bnema/valuation-session-cli/internal/adapters/valuationapi"
	"github.com/bnema/valuation-session-cli/internal/application"
	"github.com/bnema/valuation-session-cli/internal/config"
	"github.com/bnema/valuation-session-cli/internal/ports"
	"github.com/bnema/valuation-session-cli/internal/resilience/breaker"
	"github.com/bnema/valuation-session-cli/internal/resilience/dedup"
)

type app struct {
	cfg            config.Config
	log            *slog.Logger
	sessions       *application.SessionService
	fetch          *application.FetchService
	status         *application.StatusService
	auth           *application.AuthService
	secrets        ports.SecretStore
	breaker        *breaker.Breaker
	dedup          *dedup.Deduplicator
	bus            ports.MessageBus
	statusRenderer func(application.SystemStatus, statusadapter.RenderOptions) (string, error)
	now            func() time.Time
}

func wireApp() (*app, error) {
	cfg, err := config.Load(viper.New())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	clock := ports.SystemClock{}
	origin := uuid.NewString()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	secrets, err := chainstore.NewPassFirstWithFileFallback(filepath.Join(homeDir, ".vsession", "secrets"))
	if err != nil {
		return nil, fmt.Errorf("wire secret store chain: %w", err)
	}

	store := filestore.NewStore(cfg.CacheDir, logger)
	bus := wireBus(cfg, origin, clock, logger)

	brk := breaker.New(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		ResetTimeout:     cfg.Breaker.ResetTimeout,
	}, clock)
	ddp := dedup.New(clock)

	auth := application.NewAuthService(tokenResolver(secrets, cfg.EngineAccount), cfg.TokenCacheSize, cfg.TokenCacheTTL, clock)
	client := valuationapi.NewClient(cfg.EngineBaseURL, http.DefaultClient, func(ctx context.Context) (string, error) {
		return auth.Token(ctx, cfg.EngineAccount)
	})

	opts := application.SessionServiceOptions{
		YoungThreshold: cfg.YoungThreshold,
		SnapshotTTL:    cfg.SnapshotTTL,
	}
	sessions := application.NewSessionService(store, bus, clock, opts, logger)

	return &app{
		cfg:            cfg,
		log:            logger,
		sessions:       sessions,
		fetch:          application.NewFetchService(sessions, client, brk, ddp, cfg.RefreshMaxAge),
		status:         application.NewStatusService(store, brk, auth, clock, opts),
		auth:           auth,
		secrets:        secrets,
		breaker:        brk,
		dedup:          ddp,
		bus:            bus,
		statusRenderer: statusadapter.Render,
		now:            time.Now,
	}, nil
}

// wireBus prefers the file-watch channel so sibling processes see sync
// messages, with an in-process hub as the redundant second path. When the
// sync directory cannot be watched the hub alone still serves this process.
func wireBus(cfg config.Config, origin string, clock ports.Clock, logger *slog.Logger) ports.MessageBus {
	local := inproc.NewHub().Bus(origin)

	watcher, err := fswatch.NewBus(cfg.SyncDir, origin, logger)
	if err != nil {
		logger.Warn("file-watch sync unavailable, falling back to in-process only", "dir", cfg.SyncDir, "error", err)
		return local
	}

	dual, err := dualbus.New(origin, watcher, local, clock)
	if err != nil {
		_ = watcher.Close()
		return local
	}

	return dual
}

func (a *app) close() {
	a.sessions.Close()
	a.dedup.Close()
	a.auth.Close()
	if a.bus != nil {
		_ = a.bus.Close()
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// tokenResolver prefers an explicit VS_API_TOKEN, then the secret store.
// No token anywhere means unauthenticated requests, not an error.
func tokenResolver(secrets ports.SecretStore, account string) application.TokenFunc {
	return func(ctx context.Context) (string, error) {
		if token := os.Getenv("VS_API_TOKEN"); token != "" {
			return token, nil
		}

		token, err := secrets.Get(ctx, tokenSecretKey(account))
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			return "", nil
		}

		return strings.TrimSpace(token), nil
	}
}

func tokenSecretKey(account string) string {
	return "engine/" + account + "/api_token"
}
