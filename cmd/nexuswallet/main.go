package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/SylvanasW1ndrunner/NexusWallet/internal/storage/sqlite"
	"github.com/SylvanasW1ndrunner/NexusWallet/pkg/audit"
	"github.com/SylvanasW1ndrunner/NexusWallet/pkg/config"
	"github.com/SylvanasW1ndrunner/NexusWallet/pkg/keystore"
	"github.com/SylvanasW1ndrunner/NexusWallet/pkg/server"
	"github.com/SylvanasW1ndrunner/NexusWallet/pkg/wallet"
)

func main() {
	basePath := getEnv("DATA_PATH", "./data")
	walletName := getEnv("WALLET_NAME", "default")

	levelStr := getEnv("LOG_LEVEL", "info")
	var level slog.Level
	if err := level.UnmarshalText([]byte(levelStr)); err != nil {
		level = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Signer keystore. The key file is created on first run when
	// WALLET_PASSWORD is set; without a password the wallet starts locked
	// and signing endpoints are unavailable until an unlock.
	keystorePath := filepath.Join(basePath, "keystore", walletName+".key")
	keys := keystore.NewKeyManager(keystorePath)

	signerAddr, err := loadSigner(keys)
	if err != nil {
		logger.Error("failed to load signer key", "error", err)
		os.Exit(1)
	}

	// SQLite store manager for per-wallet state persistence
	storeManager := sqlite.NewStoreManager(basePath)
	defer storeManager.CloseAll()

	store, err := storeManager.GetStore(walletName)
	if err != nil {
		logger.Error("failed to open wallet store", "wallet", walletName, "error", err)
		os.Exit(1)
	}

	networks := config.NewRegistry(store)
	if err := networks.Load(ctx); err != nil {
		logger.Error("failed to load network registry", "error", err)
		os.Exit(1)
	}
	if err := seedNetwork(ctx, networks); err != nil {
		logger.Error("failed to seed network from environment", "error", err)
		os.Exit(1)
	}

	// Audit log replays its Merkle state from the store on startup.
	auditLog, err := audit.Open(ctx, store)
	if err != nil {
		logger.Error("failed to open audit log", "error", err)
		os.Exit(1)
	}

	w := wallet.New(walletName, keys, store, networks,
		wallet.WithEventSink(audit.Sink{Log: auditLog, Logger: logger}))
	if err := w.Load(ctx); err != nil {
		logger.Error("failed to load wallet accounts", "wallet", walletName, "error", err)
		os.Exit(1)
	}

	srv, err := server.NewServer(
		server.WithWallet(w),
		server.WithAudit(auditLog),
		server.WithStoreManager(storeManager),
	)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	srv.Routes(mux)

	port := getEnv("PORT", "8080")
	httpServer := &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}

	fmt.Println("NexusWallet Service Startup")
	fmt.Println("===================================")
	fmt.Printf("Wallet: %s\n", walletName)
	if keys.Unlocked() {
		fmt.Printf("Signer Address: %s\n", signerAddr.Hex())
	} else {
		fmt.Println("Signer: locked (set WALLET_PASSWORD to unlock on startup)")
	}
	fmt.Printf("Networks: %d configured\n", len(networks.Names()))
	fmt.Printf("Audit Log: %d entries\n", auditLog.Size())
	fmt.Println()
	fmt.Println("Account API:")
	fmt.Printf("  POST http://localhost:%s/accounts\n", port)
	fmt.Printf("  GET  http://localhost:%s/accounts/{address}\n", port)
	fmt.Printf("  PUT  http://localhost:%s/accounts/{address}/owners\n", port)
	fmt.Printf("  PUT  http://localhost:%s/accounts/{address}/guardians\n", port)
	fmt.Println()
	fmt.Println("Recovery API:")
	fmt.Printf("  POST http://localhost:%s/accounts/{address}/recovery/approvals\n", port)
	fmt.Printf("  POST http://localhost:%s/accounts/{address}/recovery/execute\n", port)
	fmt.Println()
	fmt.Println("Audit API:")
	fmt.Printf("  GET  http://localhost:%s/audit/head\n", port)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// seedNetwork adds a network from NEXUSWALLET_* env vars when one is
// configured there, so a fresh deployment can come up without a config
// API call.
func seedNetwork(ctx context.Context, networks *config.Registry) error {
	rpcURL := os.Getenv("NEXUSWALLET_RPC_URL")
	if rpcURL == "" {
		return nil
	}

	name := getEnv("NEXUSWALLET_NETWORK", "default")
	if networks.Has(name) {
		return nil
	}

	chainID, err := strconv.ParseUint(getEnv("NEXUSWALLET_CHAIN_ID", "1"), 10, 64)
	if err != nil {
		return fmt.Errorf("parse NEXUSWALLET_CHAIN_ID: %w", err)
	}
	return networks.AddNetwork(ctx, config.NetworkConfig{
		Name:              name,
		ChainID:           chainID,
		RPCURL:            rpcURL,
		EntryPointAddress: os.Getenv("NEXUSWALLET_ENTRYPOINT"),
		FactoryAddress:    os.Getenv("NEXUSWALLET_FACTORY"),
	})
}

// loadSigner unlocks the keystore with WALLET_PASSWORD, creating the key
// file on first run and unlocking it so the signer is usable immediately.
// Without a password the key manager stays locked.
func loadSigner(keys *keystore.KeyManager) (addr common.Address, err error) {
	password := os.Getenv("WALLET_PASSWORD")
	if password == "" {
		return common.Address{}, nil
	}

	addr, err = keys.Unlock(password)
	if err == nil {
		return addr, nil
	}
	if errors.Is(err, keystore.ErrKeystoreMissing) {
		if _, err := keys.CreateKey(password); err != nil {
			return common.Address{}, err
		}
		return keys.Unlock(password)
	}
	return common.Address{}, err
}
