// Package main is a thin driver around the swap session: it wires the
// token registry, aggregator client, security gate, quote manager and
// executor from configuration, fetches a quote for the requested pair
// and optionally executes the swap with a local keypair.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"solswap/internal/config"
	"solswap/internal/domain"
	"solswap/internal/jupiter"
	"solswap/internal/logging"
	"solswap/internal/observability"
	"solswap/internal/quote"
	"solswap/internal/ratelimit"
	"solswap/internal/registry"
	"solswap/internal/security"
	"solswap/internal/session"
	"solswap/internal/solana"
	"solswap/internal/storage"
	chstore "solswap/internal/storage/clickhouse"
	"solswap/internal/storage/memory"
	"solswap/internal/storage/migrations"
	pgstore "solswap/internal/storage/postgres"
	"solswap/internal/swap"
	"solswap/internal/wallet"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config (optional, defaults apply)")
	from := flag.String("from", "SOL", "Token symbol to swap from")
	to := flag.String("to", "USDC", "Token symbol to swap to")
	amount := flag.String("amount", "", "Human-readable amount to swap, e.g. 1.25")
	slippageBps := flag.Int("slippage-bps", 0, "Slippage tolerance in basis points (0 = config default)")
	seed := flag.String("seed", os.Getenv("SOLSWAP_WALLET_SEED"), "Base58 wallet seed (omit to generate an ephemeral keypair)")
	execute := flag.Bool("execute", false, "Sign and broadcast the swap instead of only quoting")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup logging: %v\n", err)
		os.Exit(1)
	}

	if *amount == "" {
		logger.Fatal().Msg("--amount is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger, *from, *to, *amount, *slippageBps, *seed, *execute); err != nil {
		logger.Fatal().Err(err).Msg("swapcli failed")
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger, from, to, amount string, slippageBps int, seed string, execute bool) error {
	reg, err := buildRegistry(cfg)
	if err != nil {
		return fmt.Errorf("build registry: %w", err)
	}

	agg := jupiter.NewClient(
		jupiter.WithQuoteBaseURL(cfg.Aggregator.QuoteBaseURL),
		jupiter.WithPriceBaseURL(cfg.Aggregator.PriceBaseURL),
		jupiter.WithTimeout(cfg.Aggregator.Timeout),
		jupiter.WithRateLimit(cfg.Aggregator.RateLimitRPS, cfg.Aggregator.RateLimitBurst),
		jupiter.WithLogger(logger),
	)

	gate, closeGate, err := buildGate(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build security gate: %w", err)
	}
	defer closeGate()

	attempts, closeAttempts, err := buildAttemptStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build attempt store: %w", err)
	}
	defer closeAttempts()

	rpc := solana.NewHTTPClient(cfg.RPC.Endpoint,
		solana.WithTimeout(cfg.Aggregator.Timeout),
		solana.WithPollInterval(cfg.RPC.PollInterval),
	)
	var confirmer solana.Confirmer = rpc
	if cfg.RPC.WSEndpoint != "" {
		confirmer = solana.NewWSConfirmer(cfg.RPC.WSEndpoint, nil, logger)
	}

	signer, err := buildSigner(seed)
	if err != nil {
		return fmt.Errorf("build signer: %w", err)
	}
	logger.Info().Str("wallet", signer.PublicKey()).Msg("wallet ready")

	executor := swap.NewExecutor(agg, rpc, confirmer, gate, attempts,
		swap.WithMaxQuoteAge(cfg.Quotes.MaxQuoteAge),
		swap.WithConfirmTimeout(cfg.RPC.ConfirmTimeout),
		swap.WithCommitment(cfg.RPC.Commitment),
		swap.WithLogger(logger),
	)

	if slippageBps == 0 {
		slippageBps = cfg.Quotes.SlippageBps
	}
	mgr := quote.NewManager(agg, reg,
		quote.WithGate(gate, signer.PublicKey()),
		quote.WithDebounce(cfg.Quotes.Debounce),
		quote.WithRefreshInterval(cfg.Quotes.RefreshInterval),
		quote.WithMaxQuoteAge(cfg.Quotes.MaxQuoteAge),
		quote.WithManagerLogger(logger),
	)

	ctrl := session.NewController(mgr, executor, signer, signer.PublicKey(), from, to, slippageBps,
		session.WithLogger(logger),
	)
	defer ctrl.Close()

	stopMetrics := startMetricsServer(cfg, logger)
	defer stopMetrics()

	ctrl.SetAmount(amount)
	state, err := awaitQuote(ctx, ctrl, cfg.Quotes.Debounce+cfg.Aggregator.Timeout+5*time.Second)
	if err != nil {
		return err
	}
	printQuote(ctx, reg, mgr, state.Intent, state.Quote)

	if !execute {
		return nil
	}

	rec, err := ctrl.Confirm(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrSecurityRejected) {
			return fmt.Errorf("swap blocked: %w", err)
		}
		return fmt.Errorf("execute swap: %w", err)
	}

	fmt.Printf("swap %s: request=%s signature=%s\n", rec.Status, rec.RequestID, rec.Signature)
	return nil
}

func buildRegistry(cfg *config.Config) (*registry.Registry, error) {
	if len(cfg.Tokens) == 0 {
		return registry.Default(), nil
	}
	tokens := make([]domain.TokenConfig, 0, len(cfg.Tokens))
	for _, t := range cfg.Tokens {
		tokens = append(tokens, domain.TokenConfig{
			Symbol:       t.Symbol,
			ChainAddress: t.ChainAddress,
			Decimals:     t.Decimals,
		})
	}
	return registry.New(tokens)
}

// buildGate assembles the security gate, attaching a clickhouse event
// sink when a DSN is configured.
func buildGate(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*security.Gate, func(), error) {
	opts := []security.EventLogOption{
		security.WithRetention(cfg.Security.Retention),
		security.WithLogger(logger),
	}
	cleanup := func() {}
	if cfg.Storage.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickhouseDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		opts = append(opts, security.WithSink(chstore.NewSecurityEventStore(conn)))
		cleanup = func() { _ = conn.Close() }
	}
	log := security.NewEventLog(opts...)

	gateCfg := security.DefaultGateConfig()
	gateCfg.MaxOps = cfg.Security.MaxOps
	gateCfg.Window = cfg.Security.Window
	gateCfg.LargeAmountThreshold = cfg.Security.LargeAmountThreshold
	gateCfg.Bounds[domain.OpSwap] = security.AmountBounds{
		Min: cfg.Security.SwapMinAmount,
		Max: cfg.Security.SwapMaxAmount,
	}

	gate := security.NewGate(gateCfg, ratelimit.New(), log, logger)
	closeAll := func() {
		log.Close()
		cleanup()
	}
	return gate, closeAll, nil
}

func buildAttemptStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (storage.AttemptStore, func(), error) {
	if cfg.Storage.AttemptsBackend == "memory" {
		return memory.NewAttemptStore(), func() {}, nil
	}
	pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}
	logger.Info().Msg("postgres attempt store ready")
	return pgstore.NewAttemptStore(pool), pool.Close, nil
}

func buildSigner(seed string) (*wallet.LocalSigner, error) {
	if seed != "" {
		return wallet.NewLocalSignerFromSeed(seed)
	}
	return wallet.GenerateLocalSigner()
}

func startMetricsServer(cfg *config.Config, logger zerolog.Logger) func() {
	if !cfg.Metrics.Enabled {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, observability.Handler())
	srv := &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	logger.Info().Str("addr", cfg.Metrics.ListenAddr).Msg("metrics server listening")
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}

// awaitQuote polls the session until the debounced quote lands or fails.
func awaitQuote(ctx context.Context, ctrl *session.Controller, timeout time.Duration) (session.State, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return session.State{}, ctx.Err()
		case <-deadline.C:
			return session.State{}, fmt.Errorf("timed out waiting for quote")
		case <-ticker.C:
			state := ctrl.State()
			if state.QuoteErr != nil {
				return session.State{}, fmt.Errorf("quote: %w", state.QuoteErr)
			}
			if state.Quote != nil {
				return state, nil
			}
		}
	}
}

func printQuote(ctx context.Context, reg *registry.Registry, mgr *quote.Manager, intent domain.SwapIntent, q *domain.Quote) {
	out, err := reg.FromBaseUnits(intent.ToToken, q.OutAmountBaseUnits)
	if err != nil {
		out = fmt.Sprintf("%d base units", q.OutAmountBaseUnits)
	}
	minOut, err := reg.FromBaseUnits(intent.ToToken, q.OtherAmountThreshold)
	if err != nil {
		minOut = fmt.Sprintf("%d base units", q.OtherAmountThreshold)
	}
	fmt.Printf("quote: %s %s -> %s %s (min %s, impact %s%%, %d hops)\n",
		intent.RawAmount, intent.FromToken, out, intent.ToToken, minOut, q.PriceImpactPct, len(q.Route))

	priceCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	prices, err := mgr.DisplayPrices(priceCtx, intent.FromToken, intent.ToToken)
	if err != nil {
		return // display prices are best effort
	}
	for _, symbol := range []string{intent.FromToken, intent.ToToken} {
		if p, ok := prices[symbol]; ok {
			fmt.Printf("price: %s = $%.4f\n", symbol, p)
		}
	}
}
