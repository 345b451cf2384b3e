package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/rawblock/anchor-engine/internal/api"
	"github.com/rawblock/anchor-engine/internal/bitcoin"
	"github.com/rawblock/anchor-engine/internal/db"
	"github.com/rawblock/anchor-engine/internal/dispatch"
	"github.com/rawblock/anchor-engine/internal/domain"
	"github.com/rawblock/anchor-engine/internal/electrum"
	"github.com/rawblock/anchor-engine/internal/graph"
	"github.com/rawblock/anchor-engine/internal/identity"
	"github.com/rawblock/anchor-engine/internal/lockmgr"
	"github.com/rawblock/anchor-engine/internal/market"
	"github.com/rawblock/anchor-engine/internal/token"
	"github.com/rawblock/anchor-engine/internal/wallet"
)

func main() {
	log.Println("Starting anchor-engine...")

	// ─── Required Environment Variables ─────────────────────────────────
	// All credentials MUST come from environment variables. No fallback
	// defaults for security-sensitive values. Use a .env file for local
	// development: cp .env.example .env && edit .env
	// ────────────────────────────────────────────────────────────────────

	dataDir := getEnvOrDefault("DATA_DIR", "./data")
	params := networkParams(getEnvOrDefault("BTC_NETWORK", "mainnet"))

	dbConn, err := db.Connect(dataDir)
	if err != nil {
		log.Fatalf("FATAL: failed to open database: %v", err)
	}
	defer dbConn.Close()

	btcHost := getEnvOrDefault("BTC_RPC_HOST", "localhost:8332")
	btcUser := requireEnv("BTC_RPC_USER")
	btcPass := requireEnv("BTC_RPC_PASS")
	btcClient, err := bitcoin.NewClient(bitcoin.Config{Host: btcHost, User: btcUser, Pass: btcPass})
	if err != nil {
		log.Fatalf("FATAL: failed to connect to Bitcoin RPC: %v", err)
	}
	defer btcClient.Shutdown()

	locks, err := lockmgr.New(dataDir)
	if err != nil {
		log.Fatalf("FATAL: failed to load lock manager state: %v", err)
	}

	identityStore, err := identity.New(dataDir)
	if err != nil {
		log.Fatalf("FATAL: failed to load identity store: %v", err)
	}
	log.Printf("[identity] loaded %d identities from %s", len(identityStore.List()), dataDir)

	walletSvc, err := wallet.New(btcClient, locks, params, dataDir)
	if err != nil {
		log.Fatalf("FATAL: failed to initialize wallet: %v", err)
	}
	defer walletSvc.Close()

	// Optional Electrum header subscription when ELECTRUM_URL is set. The
	// subscribed headers are not read any further.
	if electrumURL := os.Getenv("ELECTRUM_URL"); electrumURL != "" {
		ec := electrum.New(electrumURL, getEnvOrDefault("ELECTRUM_TLS", "true") == "true")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := ec.Connect(ctx)
		cancel()
		if err != nil {
			log.Printf("[electrum] connect failed, continuing without it: %v", err)
		} else if _, err := ec.SubscribeHeaders(); err != nil {
			log.Printf("[electrum] header subscribe failed: %v", err)
		} else {
			log.Printf("[electrum] subscribed to headers at %s", electrumURL)
		}
	}

	wsHub := api.NewHub()
	go wsHub.Run()

	domainEngine := domain.New(dbConn, locks)
	tokenEngine := token.New(dbConn)
	marketEngine := market.New(dbConn)

	router := dispatch.New(domainEngine, tokenEngine, marketEngine, params)
	router.OnApplied = api.BroadcastMessageApplied(wsHub)

	ingester := graph.NewIngester(btcClient, dbConn, dbConn, confirmationsFromEnv())
	ingester.SetHandler(router)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := ingester.Run(ctx, 5*time.Second); err != nil && err != context.Canceled {
			log.Printf("[graph] ingester stopped: %v", err)
		}
	}()

	server := api.NewServer(dbConn, btcClient, walletSvc, locks, wsHub)

	port := getEnvOrDefault("PORT", "5339")
	if err := server.Start(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	log.Printf("anchor-engine listening on :%s (network=%s)\n", port, params.Name)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("shutting down anchor-engine...")

	cancel()
	if err := server.Stop(); err != nil {
		log.Printf("[api] shutdown error: %v", err)
	}
}

// networkParams resolves the Bitcoin network to run against from its
// configuration name, defaulting to mainnet.
func networkParams(name string) *chaincfg.Params {
	switch name {
	case "testnet", "testnet3":
		return &chaincfg.TestNet3Params
	case "regtest":
		return &chaincfg.RegressionNetParams
	case "signet":
		return &chaincfg.SigNetParams
	default:
		return &chaincfg.MainNetParams
	}
}

// confirmationsFromEnv reads CONFIRMATIONS, defaulting to 1 (§4.3's typical
// cursor depth) when unset or invalid.
func confirmationsFromEnv() int64 {
	raw := os.Getenv("CONFIRMATIONS")
	if raw == "" {
		return 1
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// requireEnv reads a required environment variable and exits if it is not set.
func requireEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("FATAL: Required environment variable %s is not set. "+
			"Copy .env.example to .env and fill in your values: cp .env.example .env", key)
	}
	return val
}

// getEnvOrDefault returns the env var value or a safe default for non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
