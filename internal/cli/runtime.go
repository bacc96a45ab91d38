package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tOgg1/parley/internal/api"
	"github.com/tOgg1/parley/internal/db"
	"github.com/tOgg1/parley/internal/events"
	"github.com/tOgg1/parley/internal/logging"
	"github.com/tOgg1/parley/internal/metrics"
	"github.com/tOgg1/parley/internal/models"
	"github.com/tOgg1/parley/internal/staging"
	"github.com/tOgg1/parley/internal/syncer"
)

// runtime is everything a command needs to talk to the backend.
type runtime struct {
	engine    *syncer.Engine
	client    *api.Client
	publisher *events.InMemoryPublisher
	registry  *prometheus.Registry
	cache     *db.DB
}

// newRuntime builds the API client and a started engine from the loaded config.
func (a *app) newRuntime(cmd *cobra.Command) (*runtime, error) {
	cfg := a.cfg
	logger := logging.Component("cli")

	tokens, err := a.tokenSource(cmd)
	if err != nil {
		return nil, err
	}

	client, err := api.NewClient(api.ClientConfig{
		BaseURL:         cfg.API.BaseURL,
		Tokens:          tokens,
		Timeout:         cfg.API.RequestTimeout,
		UserAgent:       cfg.API.UserAgent,
		SearchMinLength: cfg.Search.MinLength,
		SearchRate:      cfg.Search.RatePerSecond,
		SearchBurst:     cfg.Search.Burst,
	})
	if err != nil {
		return nil, Exitf(ExitCodeConfig, "%v", err)
	}

	maxSize, err := cfg.MaxAttachmentBytes()
	if err != nil {
		return nil, Exitf(ExitCodeConfig, "%v", err)
	}

	rt := &runtime{
		client:    client,
		publisher: events.NewInMemoryPublisher(),
		registry:  prometheus.NewRegistry(),
	}

	m, err := metrics.New(rt.registry)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	opts := []syncer.Option{
		syncer.WithPublisher(rt.publisher),
		syncer.WithMetrics(m),
		syncer.WithStaging(staging.NewArea(staging.Config{
			MaxSize:  maxSize,
			MaxCount: cfg.Attachments.MaxCount,
		})),
	}

	if cfg.Cache.Enabled {
		cache, err := openCache(cmd.Context(), cfg.CachePath())
		if err != nil {
			logger.Warn().Err(err).Str("path", cfg.CachePath()).Msg("snapshot cache disabled")
		} else {
			rt.cache = cache
			opts = append(opts, syncer.WithCache(db.NewSnapshotCache(cache)))
		}
	}

	engineCfg := syncer.DefaultConfig()
	engineCfg.ListInterval = cfg.Sync.ListInterval
	engineCfg.ThreadInterval = cfg.Sync.ThreadInterval
	engineCfg.RequestTimeout = cfg.API.RequestTimeout
	engineCfg.MaxConcurrentPolls = cfg.Sync.MaxConcurrentPolls
	engineCfg.SelfUserID = models.UserID(cfg.Sync.SelfUserID)
	engineCfg.SequenceSnapshots = cfg.Sync.SequenceSnapshots

	engine, err := syncer.New(client, engineCfg, opts...)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("create engine: %w", err)
	}
	rt.engine = engine

	if err := engine.Start(cmd.Context()); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func openCache(ctx context.Context, path string) (*db.DB, error) {
	database, err := db.Open(db.DefaultConfig(path))
	if err != nil {
		return nil, err
	}
	if _, err := database.MigrateUp(ctx); err != nil {
		_ = database.Close()
		return nil, err
	}
	return database, nil
}

// Close stops the engine and releases the cache and idle connections.
func (r *runtime) Close() {
	if r.engine != nil {
		r.engine.Close()
	}
	r.publisher.Close()
	if r.cache != nil {
		_ = r.cache.Close()
	}
	r.client.CloseIdleConnections()
}

// tokenSource resolves the bearer token from config, env or an interactive prompt.
func (a *app) tokenSource(cmd *cobra.Command) (api.TokenSource, error) {
	if token := a.cfg.ResolveToken(); token != "" {
		return api.StaticToken(token), nil
	}

	in, ok := cmd.InOrStdin().(*os.File)
	if !ok || !term.IsTerminal(int(in.Fd())) {
		return nil, &ExitError{Code: ExitCodeAuth, Err: &PreflightError{
			Message:  "no API token configured",
			Hint:     fmt.Sprintf("export %s or set api.token in the config file", a.cfg.API.TokenEnv),
			NextStep: fmt.Sprintf("%s=<token> parley threads", a.cfg.API.TokenEnv),
		}}
	}

	token, err := promptToken(cmd.ErrOrStderr(), int(in.Fd()))
	if err != nil {
		return nil, &ExitError{Code: ExitCodeAuth, Err: err}
	}
	return api.StaticToken(token), nil
}

func promptToken(out io.Writer, fd int) (string, error) {
	fmt.Fprint(out, "API token: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", api.ErrNoToken
	}
	return token, nil
}

// hasTTY reports whether both stdin and stdout are terminals.
func hasTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}
