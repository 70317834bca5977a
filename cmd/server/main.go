// Package main provides the unified settlement service:
// - HTTP API: campaign/contribution lifecycle, launch, sweeps, claims
// - Deadline sweep (scheduled): goal promotion, failure, auto-refunds
// - Fee watch (scheduled): escrow inflow observation and distribution
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"prooflaunch/internal/engine"
	"prooflaunch/internal/feewatch"
	"prooflaunch/internal/launch"
	"prooflaunch/internal/ledger"
	"prooflaunch/internal/observability"
	"prooflaunch/internal/storage"
	chstore "prooflaunch/internal/storage/clickhouse"
	"prooflaunch/internal/storage/memory"
	"prooflaunch/internal/storage/migrations"
	pgstore "prooflaunch/internal/storage/postgres"
	"prooflaunch/internal/wallet"
)

// Server holds all components of the unified service.
type Server struct {
	// Configuration
	sweepInterval   time.Duration
	feeScanInterval time.Duration

	// Components
	engine *engine.Engine
	stores *allStores
	limits *engine.Limits
	logger *log.Logger

	// State
	mu           sync.Mutex
	started      time.Time
	lastSweepRun time.Time
	lastScanRun  time.Time
	sweepRunning bool
	scanRunning  bool

	// Stats
	sweepRuns int
	scanRuns  int
}

// allStores holds all storage implementations.
type allStores struct {
	campaignStore     storage.CampaignStore
	contributionStore storage.ContributionStore
	curveStateStore   storage.CurveStateStore
	feeEventStore     storage.FeeEventStore
	feeClaimStore     storage.FeeClaimStore

	// feeEventAudit is nil when no ClickHouse DSN is configured.
	feeEventAudit feewatch.AuditStore
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("SOLANA_WS_ENDPOINT"), "Solana WebSocket endpoint (optional purchase confirmation tracking)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (optional fee audit mirror)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	vaultKey := flag.String("vault-key", os.Getenv("VAULT_KEY"), "Hex-encoded 32-byte credential vault key")
	platformCustodian := flag.String("platform-custodian", os.Getenv("PLATFORM_CUSTODIAN"), "Address receiving withdrawal fees")
	escrow := flag.String("escrow", os.Getenv("ESCROW_ADDRESS"), "Escrow address receiving launch purchases and trading fees")
	escrowKey := flag.String("escrow-key", os.Getenv("ESCROW_KEY"), "Base58 private key of the escrow, releases sell-sweep proceeds (optional; sell sweeps are disabled without it)")
	mintAuthorityKey := flag.String("mint-authority-key", os.Getenv("MINT_AUTHORITY_KEY"), "Base58 private key funding token creation")
	treasuryKey := flag.String("treasury-key", os.Getenv("TREASURY_KEY"), "Base58 private key paying out fee claims")
	tradeURLBase := flag.String("trade-url-base", envOr("TRADE_URL_BASE", "https://trade.prooflaunch.io"), "Base URL for launched token trade pages")
	httpAddr := flag.String("http-addr", ":8080", "HTTP API address")
	sweepInterval := flag.Duration("sweep-interval", 1*time.Minute, "Deadline sweep interval")
	feeScanInterval := flag.Duration("fee-scan-interval", 30*time.Second, "Fee observation interval")
	verbose := flag.Bool("verbose", false, "Verbose component logging")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	// Validate required flags
	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required")
	}
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}
	if *vaultKey == "" {
		logger.Fatal("--vault-key is required")
	}
	if *platformCustodian == "" {
		logger.Fatal("--platform-custodian is required")
	}
	if *escrow == "" {
		logger.Fatal("--escrow is required")
	}
	if *mintAuthorityKey == "" {
		logger.Fatal("--mint-authority-key is required")
	}
	if *treasuryKey == "" {
		logger.Fatal("--treasury-key is required")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Create stores
	stores, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	// Assemble components
	rpc := ledger.NewHTTPClient(*rpcEndpoint)

	vault, err := wallet.NewVault(*vaultKey)
	if err != nil {
		logger.Fatalf("Failed to open vault: %v", err)
	}
	custodian, err := wallet.New(wallet.Options{
		Ledger:            rpc,
		Vault:             vault,
		PlatformCustodian: *platformCustodian,
		EscrowKey:         *escrowKey,
		Verbose:           *verbose,
	})
	if err != nil {
		logger.Fatalf("Failed to create custodian: %v", err)
	}

	creator, err := launch.NewMintCreator(launch.MintCreatorOptions{
		Ledger:       rpc,
		AuthorityKey: *mintAuthorityKey,
		Escrow:       *escrow,
		TradeURLBase: *tradeURLBase,
	})
	if err != nil {
		logger.Fatalf("Failed to create mint creator: %v", err)
	}

	var confirmations launch.SignatureWatcher
	if *wsEndpoint != "" {
		watcher, err := ledger.NewConfirmationWatcher(ctx, *wsEndpoint, nil)
		if err != nil {
			logger.Fatalf("Failed to connect confirmation watcher: %v", err)
		}
		defer watcher.Close()
		confirmations = watcher
	}

	orch := launch.New(launch.Options{
		CampaignStore:     stores.campaignStore,
		ContributionStore: stores.contributionStore,
		CurveStateStore:   stores.curveStateStore,
		Custodian:         custodian,
		Creator:           creator,
		Ledger:            rpc,
		Confirmations:     confirmations,
		Escrow:            *escrow,
		Verbose:           *verbose,
	})

	watcher := feewatch.NewWatcher(feewatch.WatcherOptions{
		Ledger:            rpc,
		CampaignStore:     stores.campaignStore,
		ContributionStore: stores.contributionStore,
		FeeEventStore:     stores.feeEventStore,
		Escrow:            *escrow,
		Audit:             stores.feeEventAudit,
		Verbose:           *verbose,
	})

	claimer, err := feewatch.NewClaimer(feewatch.ClaimerOptions{
		Ledger:            rpc,
		CampaignStore:     stores.campaignStore,
		ContributionStore: stores.contributionStore,
		FeeClaimStore:     stores.feeClaimStore,
		TreasuryKey:       *treasuryKey,
		Verbose:           *verbose,
	})
	if err != nil {
		logger.Fatalf("Failed to create claimer: %v", err)
	}

	limits := engine.DefaultLimits()
	eng := engine.New(engine.Options{
		CampaignStore:     stores.campaignStore,
		ContributionStore: stores.contributionStore,
		Custodian:         custodian,
		Orchestrator:      orch,
		Watcher:           watcher,
		Claimer:           claimer,
		Limits:            limits,
		Verbose:           *verbose,
	})

	server := &Server{
		sweepInterval:   *sweepInterval,
		feeScanInterval: *feeScanInterval,
		engine:          eng,
		stores:          stores,
		limits:          limits,
		logger:          logger,
		started:         time.Now(),
	}

	// Channel to signal completion
	done := make(chan error, 1)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	// Start HTTP server
	go server.startHTTPServer(*httpAddr)

	// Run the schedulers
	err = server.Run(ctx)
	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// createStores creates all required stores.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (*allStores, func(), error) {
	if useMemory {
		stores := &allStores{
			campaignStore:     memory.NewCampaignStore(),
			contributionStore: memory.NewContributionStore(),
			curveStateStore:   memory.NewCurveStateStore(),
			feeEventStore:     memory.NewFeeEventStore(),
			feeClaimStore:     memory.NewFeeClaimStore(),
		}
		return stores, func() {}, nil
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate postgres: %w", err)
	}

	stores := &allStores{
		campaignStore:     pgstore.NewCampaignStore(pool),
		contributionStore: pgstore.NewContributionStore(pool),
		curveStateStore:   pgstore.NewCurveStateStore(pool),
		feeEventStore:     pgstore.NewFeeEventStore(pool),
		feeClaimStore:     pgstore.NewFeeClaimStore(pool),
	}

	cleanup := func() { pool.Close() }

	// ClickHouse audit mirror is optional
	if clickhouseDSN != "" {
		chConn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		stores.feeEventAudit = chstore.NewFeeEventAuditStore(chConn)
		cleanup = func() {
			chConn.Close()
			pool.Close()
		}
	}

	return stores, cleanup, nil
}

// Run starts the scheduled components.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Println("Starting settlement service...")

	errCh := make(chan error, 3)

	// Deadline sweep scheduler
	go func() {
		err := s.runSweepScheduler(ctx)
		if err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("sweep scheduler: %w", err)
		}
	}()

	// Fee observation scheduler
	go func() {
		err := s.runFeeScanScheduler(ctx)
		if err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("fee scan scheduler: %w", err)
		}
	}()

	// Housekeeping: limiter pruning and uptime
	go s.runHousekeeping(ctx)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// runSweepScheduler runs the deadline sweep on schedule.
func (s *Server) runSweepScheduler(ctx context.Context) error {
	s.logger.Printf("Starting deadline sweep scheduler (interval: %v)...", s.sweepInterval)

	// Run immediately on start
	s.runSweep(ctx)

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runSweep(ctx)
		}
	}
}

// runSweep executes one deadline sweep pass.
func (s *Server) runSweep(ctx context.Context) {
	s.mu.Lock()
	if s.sweepRunning {
		s.mu.Unlock()
		s.logger.Println("Sweep already running, skipping...")
		return
	}
	s.sweepRunning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.sweepRunning = false
		s.lastSweepRun = time.Now()
		s.sweepRuns++
		s.mu.Unlock()
	}()

	start := time.Now()
	result, err := s.engine.ProcessDeadlineSweep(ctx)
	if err != nil {
		s.logger.Printf("Sweep error: %v", err)
		return
	}
	if result.Promoted > 0 || result.Failed > 0 || result.Refunded > 0 {
		s.logger.Printf("Sweep completed in %v: %d promoted, %d failed, %d refunded",
			time.Since(start), result.Promoted, result.Failed, result.Refunded)
	}
	for _, e := range result.Errors {
		s.logger.Printf("Sweep: %s", e)
	}
}

// runFeeScanScheduler runs fee observation on schedule.
func (s *Server) runFeeScanScheduler(ctx context.Context) error {
	s.logger.Printf("Starting fee scan scheduler (interval: %v)...", s.feeScanInterval)

	ticker := time.NewTicker(s.feeScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runFeeScan(ctx)
		}
	}
}

// runFeeScan executes one fee observation pass.
func (s *Server) runFeeScan(ctx context.Context) {
	s.mu.Lock()
	if s.scanRunning {
		s.mu.Unlock()
		return
	}
	s.scanRunning = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.scanRunning = false
		s.lastScanRun = time.Now()
		s.scanRuns++
		s.mu.Unlock()
	}()

	result, err := s.engine.DistributeFees(ctx)
	if err != nil {
		s.logger.Printf("Fee scan error: %v", err)
		return
	}
	if result.Observed > 0 {
		s.logger.Printf("Fee scan: %d observed, %d distributed, %d lamports",
			result.Observed, result.Distributed, result.TotalLamports)
	}
	for _, e := range result.Errors {
		s.logger.Printf("Fee scan: %s", e)
	}
}

// runHousekeeping prunes rate limiter state and tracks uptime.
func (s *Server) runHousekeeping(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.limits.CreateCampaign.Prune()
			s.limits.Contribute.Prune()
			s.limits.Withdraw.Prune()
			s.limits.Launch.Prune()
			s.limits.Claim.Prune()
			observability.DefaultMetrics.UptimeSeconds.Set(time.Since(s.started).Seconds())
		}
	}
}

// startHTTPServer starts the HTTP API.
func (s *Server) startHTTPServer(addr string) {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheus metrics
	mux.Handle("GET /metrics", observability.Handler())

	// Status endpoint
	mux.HandleFunc("GET /status", s.handleStatus)

	// Campaigns
	mux.HandleFunc("POST /campaigns", s.handleCreateCampaign)
	mux.HandleFunc("GET /campaigns/{id}", s.handleGetCampaign)
	mux.HandleFunc("GET /campaigns/{id}/contributions", s.handleListContributions)
	mux.HandleFunc("POST /campaigns/{id}/launch", s.handleLaunch)
	mux.HandleFunc("POST /campaigns/{id}/claim", s.handleClaimCreator)

	// Contributions
	mux.HandleFunc("POST /contributions", s.handleCreateContribution)
	mux.HandleFunc("GET /contributions/{id}", s.handleGetContribution)
	mux.HandleFunc("POST /contributions/{id}/confirm", s.handleConfirmDeposit)
	mux.HandleFunc("POST /contributions/{id}/withdraw", s.handleWithdraw)
	mux.HandleFunc("POST /contributions/{id}/sweep", s.handleSweep)
	mux.HandleFunc("GET /contributions/{id}/secret", s.handleExportSecret)
	mux.HandleFunc("POST /contributions/{id}/claim", s.handleClaimContributor)

	s.logger.Printf("Starting HTTP server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		s.logger.Printf("HTTP server error: %v", err)
	}
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status       string    `json:"status"`
	Uptime       string    `json:"uptime"`
	LastSweepRun time.Time `json:"last_sweep_run,omitempty"`
	LastScanRun  time.Time `json:"last_scan_run,omitempty"`
	SweepRuns    int       `json:"sweep_runs"`
	ScanRuns     int       `json:"scan_runs"`
	SweepRunning bool      `json:"sweep_running"`
	ScanRunning  bool      `json:"scan_running"`
}

// handleStatus returns server status as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := StatusResponse{
		Status:       "running",
		Uptime:       time.Since(s.started).String(),
		LastSweepRun: s.lastSweepRun,
		LastScanRun:  s.lastScanRun,
		SweepRuns:    s.sweepRuns,
		ScanRuns:     s.scanRuns,
		SweepRunning: s.sweepRunning,
		ScanRunning:  s.scanRunning,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Creator       string `json:"creator"`
		Name          string `json:"name"`
		Symbol        string `json:"symbol"`
		Description   string `json:"description"`
		ImageURL      string `json:"image_url"`
		GoalLamports  uint64 `json:"goal_lamports"`
		CreatorFeePct uint64 `json:"creator_fee_pct"`
		DeadlineAt    int64  `json:"deadline_at"`
		AutoRefund    bool   `json:"auto_refund"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	campaign, err := s.engine.CreateCampaign(r.Context(), engine.CreateCampaignRequest{
		Creator:       req.Creator,
		Name:          req.Name,
		Symbol:        req.Symbol,
		Description:   req.Description,
		ImageURL:      req.ImageURL,
		GoalLamports:  req.GoalLamports,
		CreatorFeePct: req.CreatorFeePct,
		DeadlineAt:    req.DeadlineAt,
		AutoRefund:    req.AutoRefund,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, campaign)
}

func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	campaign, err := s.stores.campaignStore.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

func (s *Server) handleListContributions(w http.ResponseWriter, r *http.Request) {
	contributions, err := s.stores.contributionStore.GetByCampaign(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contributions)
}

func (s *Server) handleCreateContribution(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CampaignID     string `json:"campaign_id"`
		Contributor    string `json:"contributor"`
		AmountLamports uint64 `json:"amount_lamports"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	contribution, err := s.engine.CreateContribution(r.Context(), engine.CreateContributionRequest{
		CampaignID:     req.CampaignID,
		Contributor:    req.Contributor,
		AmountLamports: req.AmountLamports,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, contribution)
}

func (s *Server) handleGetContribution(w http.ResponseWriter, r *http.Request) {
	contribution, err := s.stores.contributionStore.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contribution)
}

func (s *Server) handleConfirmDeposit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DepositTx string `json:"deposit_tx"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	contribution, err := s.engine.ConfirmDeposit(r.Context(), r.PathValue("id"), req.DepositTx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contribution)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.WithdrawContribution(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"amount_sent": result.AmountSent,
		"refund_tx":   result.RefundTx,
	})
}

func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Requester string `json:"requester"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := s.engine.RequestLaunch(r.Context(), r.PathValue("id"), req.Requester)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"mint":                result.Mint,
		"trade_url":           result.TradeURL,
		"purchases_attempted": result.PurchasesAttempted,
		"purchases_succeeded": result.PurchasesSucceeded,
		"errors":              result.Errors,
	})
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Destination string `json:"destination"`
		Mode        string `json:"mode"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	mode := wallet.SweepMode(req.Mode)
	if mode != wallet.SweepSell && mode != wallet.SweepTransfer {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "mode must be sell or transfer"})
		return
	}

	result, err := s.engine.SweepContribution(r.Context(), r.PathValue("id"), req.Destination, mode)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"mode":              result.Mode,
		"tokens":            result.Tokens,
		"proceeds_lamports": result.ProceedsLamports,
		"signature":         result.Signature,
	})
}

func (s *Server) handleExportSecret(w http.ResponseWriter, r *http.Request) {
	secret, err := s.engine.ExportContributionSecret(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"secret": secret})
}

func (s *Server) handleClaimContributor(w http.ResponseWriter, r *http.Request) {
	claim, err := s.engine.ClaimContributorFees(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, claim)
}

func (s *Server) handleClaimCreator(w http.ResponseWriter, r *http.Request) {
	claim, err := s.engine.ClaimCreatorFees(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, claim)
}

// decodeJSON parses the request body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case engine.IsValidation(err):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrAlreadySettled),
		errors.Is(err, engine.ErrAlreadySwept),
		errors.Is(err, storage.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, wallet.ErrUnverifiedDeposit),
		errors.Is(err, wallet.ErrNoEscrowKey),
		errors.Is(err, feewatch.ErrBelowMinimum),
		errors.Is(err, feewatch.ErrNothingToClaim):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, wallet.ErrExportLocked):
		status = http.StatusForbidden
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
