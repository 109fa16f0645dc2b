// Package main provides the psybridged daemon - the Doge bridge node.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/psy-protocol/doge-bridge/internal/config"
	"github.com/psy-protocol/doge-bridge/internal/daemon"
	"github.com/psy-protocol/doge-bridge/internal/keys"
	"github.com/psy-protocol/doge-bridge/internal/ledger"
	"github.com/psy-protocol/doge-bridge/internal/messenger"
	"github.com/psy-protocol/doge-bridge/internal/rpc"
	"github.com/psy-protocol/doge-bridge/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	var (
		dataDir        = flag.String("data-dir", "~/.psybridge", "Data directory")
		apiAddr        = flag.String("api", "", "HTTP API address, overrides config")
		listenAddr     = flag.String("listen", "", "Listen address (multiaddr), overrides config")
		bootstrapPeers = flag.String("bootstrap", "", "Bootstrap peers (comma-separated multiaddrs)")
		enableDHT      = flag.Bool("dht", true, "Enable DHT discovery")
		testnet        = flag.Bool("testnet", false, "Run against Dogecoin testnet (separate data)")
		keyPassword    = flag.String("key-password", "", "Password for the operator keystore")
		logLevel       = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		showVersion    = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	// Set up logging (initial, may be overridden by config)
	log := logging.New(&logging.Config{
		Level:      *logLevel,
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("psybridged %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	// Testnet keeps its own data directory
	effectiveDataDir := *dataDir
	if *testnet {
		effectiveDataDir = filepath.Join(*dataDir, "testnet")
	}

	cfg, err := config.Load(effectiveDataDir)
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}

	// CLI flags take precedence over the config file
	if *listenAddr != "" {
		cfg.Network.ListenAddrs = []string{*listenAddr}
	}
	if *bootstrapPeers != "" {
		cfg.Network.BootstrapPeers = parseBootstrapPeers(*bootstrapPeers)
	}
	if *apiAddr != "" {
		cfg.RPC.Addr = *apiAddr
	}
	cfg.Network.EnableDHT = *enableDHT
	cfg.Logging.Level = *logLevel
	cfg.Storage.DataDir = effectiveDataDir
	if *testnet {
		cfg.NetworkType = config.NetworkTestnet
	} else {
		cfg.NetworkType = config.NetworkMainnet
	}

	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid config", "error", err, "path", config.Path(effectiveDataDir))
	}

	log = logging.New(&logging.Config{
		Level:      cfg.Logging.Level,
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)
	log.Info("Config loaded", "path", config.Path(effectiveDataDir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Durable ledger (accounts, balances, tx outbox, instruction journal)
	store, err := ledger.Open(&ledger.Config{DataDir: cfg.Storage.DataDir})
	if err != nil {
		log.Fatal("Failed to open ledger", "error", err)
	}
	defer store.Close()

	// Operator identity
	if *keyPassword != "" {
		keystorePath := filepath.Join(expandPath(cfg.Storage.DataDir), "operator.key")
		identity, mnemonic, err := keys.LoadOrCreate(keystorePath, *keyPassword, "")
		if err != nil {
			log.Fatal("Failed to load operator keystore", "error", err)
		}
		if mnemonic != "" {
			log.Warn("New operator identity generated, write down the recovery mnemonic")
			log.Warnf("  %s", mnemonic)
		}
		log.Info("Operator identity loaded", "pubkey", identity.Pubkey().String())
	}

	// Gossip node for signed withdrawal transactions
	nodeCfg := messenger.DefaultNodeConfig()
	nodeCfg.DataDir = expandPath(cfg.Storage.DataDir)
	nodeCfg.KeyFile = cfg.Network.KeyFile
	nodeCfg.ListenAddrs = cfg.Network.ListenAddrs
	nodeCfg.BootstrapPeers = cfg.Network.BootstrapPeers
	nodeCfg.EnableDHT = cfg.Network.EnableDHT
	nodeCfg.ConnLowWater = cfg.Network.ConnLowWater
	nodeCfg.ConnHighWater = cfg.Network.ConnHighWater
	nodeCfg.ConnGrace = cfg.Network.ConnGrace

	node, err := messenger.NewNode(ctx, nodeCfg)
	if err != nil {
		log.Fatal("Failed to create gossip node", "error", err)
	}
	if err := node.Start(); err != nil {
		log.Fatal("Failed to start gossip node", "error", err)
	}

	poster := messenger.NewPoster(ctx, store, node)
	go poster.RunFlusher(30 * time.Second)

	// Bridge program over the ledger
	d, err := daemon.New(cfg, store, poster)
	if err != nil {
		log.Fatal("Failed to create bridge daemon", "error", err)
	}
	if ok, err := d.Initialized(); err != nil {
		log.Fatal("Failed to read bridge state", "error", err)
	} else if !ok {
		log.Warn("Bridge state not initialized, waiting for initialize instruction")
	}

	// HTTP status API and websocket event feed
	rpcServer := rpc.NewServer(d)
	if err := rpcServer.Start(cfg.RPC.Addr); err != nil {
		log.Fatal("Failed to start RPC server", "error", err)
	}
	d.SetEventSink(rpcServer.WSHub())

	printBanner(log, node, cfg)

	// Status ticker
	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st, err := d.BridgeState()
				if err != nil {
					log.Info("Status", "peers", node.PeerCount(), "state", "uninitialized")
					continue
				}
				log.Info("Status",
					"peers", node.PeerCount(),
					"tip", st.Header.Tip.BlockHeight,
					"finalized", st.Header.Finalized.BlockHeight,
					"pending_mints", st.PendingMintTxos.CurrentPendingMintsTracker.TotalPendingMints)
			}
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	log.Info("Shutting down...")

	cancel()

	if err := rpcServer.Stop(); err != nil {
		log.Error("Error stopping RPC server", "error", err)
	}
	if err := node.Stop(); err != nil {
		log.Error("Error stopping gossip node", "error", err)
	}

	log.Info("Goodbye!")
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}

func printBanner(log *logging.Logger, node *messenger.Node, cfg *config.Config) {
	networkLabel := "mainnet"
	if cfg.IsTestnet() {
		networkLabel = "TESTNET"
	}

	log.Info("")
	log.Info("=================================================")
	log.Infof("  Psy Doge Bridge Node (%s)", networkLabel)
	log.Infof("  Version: %s", version)
	log.Info("=================================================")
	log.Info("")
	log.Infof("  Peer ID: %s", node.ID().String())
	log.Info("")
	log.Info("  Listening on:")
	for _, addr := range node.Addrs() {
		log.Infof("    %s/p2p/%s", addr.String(), node.ID().String())
	}
	log.Info("")
	log.Infof("  API: http://%s", cfg.RPC.Addr)
	log.Infof("  WS:  ws://%s/ws", cfg.RPC.Addr)
	log.Info("")
	log.Infof("  Network: %s | DHT: %v", networkLabel, cfg.Network.EnableDHT)
	log.Infof("  Data dir: %s", expandPath(cfg.Storage.DataDir))
	log.Info("")
	log.Info("=================================================")
	log.Info("")
}

func parseBootstrapPeers(s string) []string {
	if s == "" {
		return nil
	}
	var peers []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			peers = append(peers, p)
		}
	}
	return peers
}
