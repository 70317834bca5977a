// Package main provides a one-shot settlement sweep:
// goal promotion → deadline failure → auto-refunds, and optionally one
// fee-observation pass. Intended for cron or manual operation against the
// same database as the server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"prooflaunch/internal/feewatch"
	"prooflaunch/internal/launch"
	"prooflaunch/internal/ledger"
	"prooflaunch/internal/storage"
	"prooflaunch/internal/storage/memory"
	pgstore "prooflaunch/internal/storage/postgres"
	"prooflaunch/internal/wallet"
)

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	vaultKey := flag.String("vault-key", os.Getenv("VAULT_KEY"), "Hex-encoded 32-byte credential vault key")
	platformCustodian := flag.String("platform-custodian", os.Getenv("PLATFORM_CUSTODIAN"), "Address receiving withdrawal fees")
	escrow := flag.String("escrow", os.Getenv("ESCROW_ADDRESS"), "Escrow address receiving launch purchases and trading fees")
	scanFees := flag.Bool("scan-fees", false, "Also run one fee-observation pass")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage (dry run)")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	if *rpcEndpoint == "" {
		fmt.Fprintln(os.Stderr, "--rpc-endpoint is required")
		os.Exit(1)
	}
	if !*useMemory && *postgresDSN == "" {
		fmt.Fprintln(os.Stderr, "--postgres-dsn is required (use --use-memory for a dry run)")
		os.Exit(1)
	}
	if *vaultKey == "" {
		fmt.Fprintln(os.Stderr, "--vault-key is required")
		os.Exit(1)
	}
	if *platformCustodian == "" {
		fmt.Fprintln(os.Stderr, "--platform-custodian is required")
		os.Exit(1)
	}
	if *escrow == "" {
		fmt.Fprintln(os.Stderr, "--escrow is required")
		os.Exit(1)
	}

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Printf("\nReceived signal %v, cancelling sweep...\n", sig)
		cancel()
	}()

	// Create stores
	var (
		campaignStore     storage.CampaignStore
		contributionStore storage.ContributionStore
		curveStateStore   storage.CurveStateStore
		feeEventStore     storage.FeeEventStore
	)
	if *useMemory {
		campaignStore = memory.NewCampaignStore()
		contributionStore = memory.NewContributionStore()
		curveStateStore = memory.NewCurveStateStore()
		feeEventStore = memory.NewFeeEventStore()
	} else {
		pool, err := pgstore.NewPool(ctx, *postgresDSN)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error connecting to postgres: %v\n", err)
			os.Exit(1)
		}
		defer pool.Close()
		campaignStore = pgstore.NewCampaignStore(pool)
		contributionStore = pgstore.NewContributionStore(pool)
		curveStateStore = pgstore.NewCurveStateStore(pool)
		feeEventStore = pgstore.NewFeeEventStore(pool)
	}

	// Assemble components
	rpc := ledger.NewHTTPClient(*rpcEndpoint)

	vault, err := wallet.NewVault(*vaultKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening vault: %v\n", err)
		os.Exit(1)
	}
	custodian, err := wallet.New(wallet.Options{
		Ledger:            rpc,
		Vault:             vault,
		PlatformCustodian: *platformCustodian,
		Verbose:           *verbose,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating custodian: %v\n", err)
		os.Exit(1)
	}

	// Token creation is not part of the sweep; launches stay user-initiated.
	orch := launch.New(launch.Options{
		CampaignStore:     campaignStore,
		ContributionStore: contributionStore,
		CurveStateStore:   curveStateStore,
		Custodian:         custodian,
		Ledger:            rpc,
		Escrow:            *escrow,
		Verbose:           *verbose,
	})

	// Run sweep
	fmt.Println("=== Deadline Sweep ===")
	result, err := orch.ProcessCampaigns(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Sweep error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Sweep completed:\n")
	fmt.Printf("  Promoted: %d\n", result.Promoted)
	fmt.Printf("  Failed:   %d\n", result.Failed)
	fmt.Printf("  Refunded: %d\n", result.Refunded)
	if len(result.Errors) > 0 {
		fmt.Printf("  Errors: %d\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Printf("    - %s\n", e)
		}
	}

	if !*scanFees {
		return
	}

	// Run one fee-observation pass
	fmt.Println("\n=== Fee Scan ===")
	watcher := feewatch.NewWatcher(feewatch.WatcherOptions{
		Ledger:            rpc,
		CampaignStore:     campaignStore,
		ContributionStore: contributionStore,
		FeeEventStore:     feeEventStore,
		Escrow:            *escrow,
		Verbose:           *verbose,
	})

	scan, err := watcher.Scan(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fee scan error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Fee scan completed:\n")
	fmt.Printf("  Observed:    %d\n", scan.Observed)
	fmt.Printf("  Distributed: %d\n", scan.Distributed)
	fmt.Printf("  Lamports:    %d\n", scan.TotalLamports)
	if len(scan.Errors) > 0 {
		fmt.Printf("  Errors: %d\n", len(scan.Errors))
		for _, e := range scan.Errors {
			fmt.Printf("    - %s\n", e)
		}
	}
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
