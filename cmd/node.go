package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mezonai/dpos/block"
	"github.com/mezonai/dpos/config"
	"github.com/mezonai/dpos/crypto"
	"github.com/mezonai/dpos/db"
	"github.com/mezonai/dpos/events"
	"github.com/mezonai/dpos/forge"
	"github.com/mezonai/dpos/ledger"
	"github.com/mezonai/dpos/logx"
	"github.com/mezonai/dpos/mempool"
	"github.com/mezonai/dpos/monitoring"
	"github.com/mezonai/dpos/rounds"
	"github.com/mezonai/dpos/store"
	"github.com/mezonai/dpos/system"
	"github.com/mezonai/dpos/transaction"
	"github.com/mezonai/dpos/txtypes"
	"github.com/mezonai/dpos/types"
	"github.com/mezonai/dpos/utils"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var (
	nodeConfigPath string
	verifyOnStart  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the ledger node",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNode(nodeConfigPath)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.PersistentFlags().StringVarP(&nodeConfigPath, "config", "c", "config/node.ini", "Path to the node .ini file")
	runCmd.Flags().BoolVar(&verifyOnStart, "verify", false, "Re-verify the stored chain before starting")
}

// node is the wired ledger core.
type node struct {
	cfg       *config.NodeConfig
	network   config.NetworkConfig
	stores    *store.Stores
	sys       *system.System
	ledger    *ledger.Ledger
	engine    *transaction.Engine
	pool      *mempool.Mempool
	blacklist *mempool.BlacklistManager
	verifier  *block.Verifier
	rounds    *rounds.Accountant
	chain     *block.Chain
	generator *block.Generator
	scheduler *forge.Scheduler
	bus       *events.EventBus
	router    *events.EventRouter
}

// openNode wires every component from the files named in the node .ini and loads the chain.
func openNode(ctx context.Context, path string, clock utils.Clock) (*node, error) {
	nodeCfg, err := config.LoadNodeConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load node config: %w", err)
	}
	forgingCfg, err := config.LoadForgingConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load forging config: %w", err)
	}
	mempoolCfg, err := config.LoadMempoolConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load mempool config: %w", err)
	}
	cfgFile, err := config.LoadNetworkConfig(nodeCfg.NetworkConfig)
	if err != nil {
		return nil, fmt.Errorf("load network config: %w", err)
	}
	network := cfgFile.Network
	logx.SetDebug(nodeCfg.Debug)

	stores, err := store.CreateStores(store.StoreConfig{Type: db.ProviderType(nodeCfg.DBType), Directory: nodeCfg.DataDir})
	if err != nil {
		return nil, fmt.Errorf("open stores: %w", err)
	}

	sys := system.New(network, nil, forgingCfg.Force)
	registry, second, err := txtypes.NewDefaultRegistry(txtypes.Deps{
		Fees:                   sys,
		Accounts:               stores.Accounts,
		Assets:                 stores.Txs,
		Verifier:               crypto.Ed25519Verifier{},
		MaxVotesPerTransaction: network.MaxVotesPerTransaction,
		MaxVotesPerAccount:     network.MaxVotesPerAccount,
	})
	if err != nil {
		_ = stores.Close()
		return nil, err
	}

	slots := utils.NewSlots(network.Epoch, network.BlockTime, network.ActiveDelegates)
	engine := transaction.NewEngine(registry, crypto.Ed25519Verifier{}, clock, slots)
	second.RegisterHooks(engine.Hooks())

	l := ledger.NewLedger(stores.Accounts, ledger.NewSequence("balance"))
	bus := events.NewEventBus()

	blacklist := mempool.NewBlacklistManager(nodeCfg.DataDir)
	pool := mempool.NewMempool(mempool.Config{MaxTxs: mempoolCfg.MaxTxs}, engine, stores.Accounts, stores.Executor,
		stores.Txs, l.Sequence(), l, mempool.NewDedupService(stores.Blocks), bus)
	banned, err := blacklist.LoadBlacklistFromFile()
	if err != nil {
		_ = stores.Close()
		return nil, err
	}
	pool.SetBlacklist(banned)

	lists := rounds.NewDelegateLists(stores.Accounts, stores.Rounds, network.ActiveDelegates)
	accountant := rounds.NewAccountant(rounds.Config{
		ActiveDelegates:      network.ActiveDelegates,
		DposFeesSwitchHeight: network.DposFeesSwitchHeight,
	}, stores.Accounts, stores.Blocks, lists, sys)
	verifier := block.NewVerifier(block.VerifierConfigFrom(network), engine, crypto.Ed25519Verifier{}, sys, l,
		stores.Txs, pool, block.LoggingForkChoice{})
	chain := block.NewChain(l, stores.Blocks, stores.Executor, engine, verifier, accountant, pool, slots, clock, bus)

	genesis, err := loadOrBuildGenesis(nodeCfg, cfgFile.Genesis, registry)
	if err != nil {
		_ = stores.Close()
		return nil, err
	}
	if err := chain.Load(ctx, genesis); err != nil {
		_ = stores.Close()
		return nil, fmt.Errorf("load chain: %w", err)
	}

	generator := block.NewGenerator(chain, l, pool, engine, sys, network.MaxTxsPerBlock, network.ValidBlockVersions[len(network.ValidBlockVersions)-1])
	scheduler := forge.NewScheduler(forge.Config{
		Secrets:      forgingCfg.Secrets,
		TickInterval: time.Duration(forgingCfg.TickIntervalMs) * time.Millisecond,
	}, l, accountant, lists, sys, l, generator, l.Sequence(), slots, clock)

	router := events.NewEventRouter(bus)
	monitor := events.BlockMonitor(sys, verifier)
	router.Handle(events.EventBlockApplied, monitor)
	router.Handle(events.EventBlockDeleted, monitor)
	router.Handle(events.EventBlockApplied, func(_ context.Context, ev events.BlockchainEvent) error {
		monitoring.SetBlockHeight(ev.(*events.BlockApplied).Block().Height)
		return nil
	})
	router.Handle(events.EventBlockDeleted, func(_ context.Context, ev events.BlockchainEvent) error {
		monitoring.SetBlockHeight(ev.(*events.BlockDeleted).NewTip().Height)
		return nil
	})

	return &node{
		cfg:       nodeCfg,
		network:   network,
		stores:    stores,
		sys:       sys,
		ledger:    l,
		engine:    engine,
		pool:      pool,
		blacklist: blacklist,
		verifier:  verifier,
		rounds:    accountant,
		chain:     chain,
		generator: generator,
		scheduler: scheduler,
		bus:       bus,
		router:    router,
	}, nil
}

// loadOrBuildGenesis reads the saved genesis block, building and saving it on first start.
func loadOrBuildGenesis(nodeCfg *config.NodeConfig, genesisCfg config.GenesisConfig, registry *transaction.Registry) (*types.Block, error) {
	path := nodeCfg.GenesisBlock
	if path == "" {
		path = filepath.Join(nodeCfg.DataDir, "genesis.json")
	}
	genesis, err := block.LoadGenesis(path)
	if err == nil {
		return genesis, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	logx.Info("NODE", "No genesis block at ", path, ", building one from network config")
	genesis, err = block.BuildGenesis(genesisCfg, registry)
	if err != nil {
		return nil, fmt.Errorf("build genesis: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if err := block.SaveGenesis(path, genesis); err != nil {
		return nil, err
	}
	return genesis, nil
}

// Close waits for in-flight ledger work, then closes the stores.
func (n *node) Close() error {
	n.scheduler.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := n.ledger.Sequence().Cleanup(ctx); err != nil {
		logx.Warn("NODE", "Ledger work still running at shutdown: ", err)
	}
	return n.stores.Close()
}

func runNode(path string) error {
	logx.SetOutput(io.MultiWriter(os.Stdout, logx.RotationWriter()))
	monitoring.InitMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n, err := openNode(ctx, path, utils.SystemClock{})
	if err != nil {
		return err
	}
	defer func() {
		if err := n.Close(); err != nil {
			logx.Error("NODE", "Failed to close stores: ", err)
		}
	}()

	if verifyOnStart {
		if err := n.chain.VerifyStoredChain(ctx); err != nil {
			return fmt.Errorf("stored chain is invalid: %w", err)
		}
	}

	var srv *http.Server
	if n.cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		monitoring.RegisterMetrics(mux)
		srv = &http.Server{Addr: n.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logx.Error("NODE", "Metrics server stopped: ", err)
			}
		}()
		logx.Info("NODE", "Serving metrics on ", n.cfg.MetricsAddr)
	}

	if err := n.scheduler.LoadDelegates(); err != nil {
		logx.Error("NODE", "Failed to load forging delegates: ", err)
	}
	routerDone := n.router.Start(ctx)
	n.scheduler.Start(ctx)
	logx.Info("NODE", fmt.Sprintf("Node started | height=%d | nethash=%s | forging=%d", n.ledger.Height(), n.network.Nethash, len(n.scheduler.EnabledKeys())))

	<-ctx.Done()
	logx.Info("NODE", "Shutting down")
	n.scheduler.Stop()
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		stopMetricsServer(shutdownCtx, srv)
	}
	<-routerDone
	return nil
}

func stopMetricsServer(ctx context.Context, srv *http.Server) error {
	err := srv.Shutdown(ctx)
	if err != nil {
		logx.Warn("NODE", "Metrics server did not shut down cleanly: ", err)
	}
	return err
}
