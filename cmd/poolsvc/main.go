// Prize pool service: a share-ledger-backed prize-linked savings pool
// with batched, commit-reveal draws.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tos-network/prizepool/internal/adminapi"
	"github.com/tos-network/prizepool/internal/capability"
	"github.com/tos-network/prizepool/internal/config"
	"github.com/tos-network/prizepool/internal/domain"
	"github.com/tos-network/prizepool/internal/draw"
	"github.com/tos-network/prizepool/internal/fixedpoint"
	"github.com/tos-network/prizepool/internal/newrelic"
	"github.com/tos-network/prizepool/internal/notify"
	"github.com/tos-network/prizepool/internal/pool"
	"github.com/tos-network/prizepool/internal/profiling"
	"github.com/tos-network/prizepool/internal/randomness"
	"github.com/tos-network/prizepool/internal/reconcile"
	"github.com/tos-network/prizepool/internal/rpc"
	"github.com/tos-network/prizepool/internal/trackers"
	"github.com/tos-network/prizepool/internal/util"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("prizepool v%s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := util.InitLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.File); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	util.Infof("prizepool v%s starting, pool id=%s", version, cfg.Pool.ID)

	var pprofServer *profiling.Server
	if cfg.Profiling.Enabled {
		pprofServer = profiling.NewServer(&cfg.Profiling)
		if err := pprofServer.Start(); err != nil {
			util.Errorf("failed to start pprof server: %v", err)
		}
	}

	var nrAgent *newrelic.Agent
	if cfg.NewRelic.Enabled {
		nrAgent = newrelic.NewAgent(&cfg.NewRelic)
		if err := nrAgent.Start(); err != nil {
			util.Errorf("failed to start New Relic agent: %v", err)
		}
	}

	chainCtx, cancelChain := context.WithCancel(context.Background())
	defer cancelChain()
	chainPool := randomness.NewChainPool(chainCtx, util.Log(), cfg.Chain.Endpoints, cfg.Chain.Timeout)
	chainPool.Start(cfg.Chain.HealthInterval)
	defer chainPool.Stop()
	oracle := randomness.NewBlockHeightOracle(chainPool, cfg.Chain.CommitDelay, cfg.Chain.Timeout)

	wallet := rpc.NewWalletClient(cfg.Wallet.Endpoint, cfg.Wallet.Username, cfg.Wallet.Password)
	yieldConn := rpc.NewWalletYieldConnector(wallet, cfg.Wallet.TreasuryAddress, capability.AssetType(cfg.Pool.AssetType), cfg.Chain.Timeout)

	var feeRecipient capability.FeeRecipient
	if cfg.Wallet.TreasuryAddress != "" {
		feeRecipient = rpc.NewTreasuryFeeRecipient(wallet, cfg.Wallet.TreasuryAddress, cfg.Chain.Timeout)
	}

	var winnerTracker *trackers.RedisWinnerTracker
	if cfg.Redis.URL != "" {
		winnerTracker, err = trackers.NewRedisWinnerTracker(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.RingSize)
		if err != nil {
			util.Warnf("winner tracker disabled: %v", err)
			winnerTracker = nil
		} else {
			defer winnerTracker.Close()
		}
	}

	engine := &draw.Engine{
		Connector:    yieldConn,
		Oracle:       oracle,
		FeeRecipient: feeRecipient,
		Distribution: distributionFor(cfg.Pool.WinnerCount),
	}

	strategy, err := reconcile.NewFixedPercentage(
		percentAmount(cfg.Pool.RewardsPct),
		percentAmount(cfg.Pool.PrizePct),
		percentAmount(cfg.Pool.FeePct),
	)
	if err != nil {
		util.Fatalf("invalid allocation percentages: %v", err)
	}

	poolCfg := pool.PoolConfig{
		AssetType:           capability.AssetType(cfg.Pool.AssetType),
		MinimumDeposit:      wholeAmount(cfg.Pool.MinimumDeposit),
		DrawIntervalSeconds: cfg.Pool.DrawIntervalSeconds,
		WinnerTracker:       winnerTrackerCapability(winnerTracker),
	}
	emergencyCfg := emergencyConfigFrom(cfg.Emergency)

	p := pool.New(cfg.Pool.ID, poolCfg, emergencyCfg, strategy, engine)
	now := domain.Timestamp(time.Now().Unix())
	if err := p.StartNextRound(now); err != nil {
		util.Fatalf("failed to start first round: %v", err)
	}

	notifier := notify.NewNotifier(&notify.WebhookConfig{
		Enabled:      cfg.Webhook.Enabled,
		DiscordURL:   cfg.Webhook.DiscordURL,
		TelegramBot:  cfg.Webhook.TelegramBot,
		TelegramChat: cfg.Webhook.TelegramChat,
		PoolName:     cfg.Pool.ID,
	})

	var apiServer *adminapi.Server
	if cfg.API.Enabled {
		apiServer = adminapi.NewServer(&cfg.API, p)
		if err := apiServer.Start(); err != nil {
			util.Fatalf("failed to start admin API: %v", err)
		}
	}

	stopTicker := make(chan struct{})
	go runReconcileLoop(p, apiServer, notifier, winnerTracker, nrAgent, stopTicker)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	util.Info("pool started successfully. press Ctrl+C to stop.")
	<-sigChan
	util.Info("shutting down...")

	close(stopTicker)
	if apiServer != nil {
		apiServer.Stop()
	}
	if pprofServer != nil {
		pprofServer.Stop()
	}
	if nrAgent != nil {
		nrAgent.Stop()
	}

	util.Info("prizepool stopped")
}

// runReconcileLoop periodically pulls yield from the connector into the
// allocation book. It does not drive the draw state machine itself —
// that is an operator action exposed through the admin API's
// /admin/draw/* routes, matching the spec's no-automatic-draw-trigger
// stance beyond the emergency controller's own checks.
func runReconcileLoop(p *pool.Pool, apiServer *adminapi.Server, notifier *notify.Notifier, tracker *trackers.RedisWinnerTracker, nrAgent *newrelic.Agent, stop <-chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			evs, err := p.Reconcile()
			if err != nil {
				util.Warnf("reconcile: %v", err)
			}
			for _, ev := range evs {
				if apiServer != nil {
					apiServer.Broadcast(ev)
				}
				notifier.Notify(ev)
			}
			if nrAgent != nil {
				totalAssets := float64(p.Ledger.TotalAssets().Raw()) / 1e8
				nrAgent.UpdatePoolMetrics(totalAssets, int64(len(p.RegisteredReceiverList)), p.HealthScore())
			}
		}
	}
}

func distributionFor(winnerCount int) draw.PrizeDistribution {
	if winnerCount <= 1 {
		return draw.SingleWinner{}
	}
	one := mustWhole(1)
	even := fixedpoint.Frac(one, 1, uint64(winnerCount))
	splits := make([]fixedpoint.Amount, winnerCount)
	assigned := fixedpoint.Zero
	for i := 0; i < winnerCount-1; i++ {
		splits[i] = even
		assigned = assigned.SatAdd(even)
	}
	splits[winnerCount-1] = one.SatSub(assigned)

	dist, err := draw.NewPercentageSplit(splits)
	if err != nil {
		util.Fatalf("invalid winner_count %d: %v", winnerCount, err)
	}
	return dist
}

func percentAmount(pct float64) fixedpoint.Amount {
	return fixedpoint.FromRaw(uint64(pct * 1e8))
}

func wholeAmount(v float64) fixedpoint.Amount {
	return fixedpoint.FromRaw(uint64(v * 1e8))
}

func mustWhole(n uint64) fixedpoint.Amount {
	a, err := fixedpoint.FromWhole(n)
	if err != nil {
		util.Fatalf("FromWhole(%d): %v", n, err)
	}
	return a
}

func emergencyConfigFrom(cfg config.EmergencyConfig) pool.EmergencyConfig {
	out := pool.EmergencyConfig{
		AutoRecoveryEnabled:  cfg.AutoRecoveryEnabled,
		MinYieldSourceHealth: cfg.MinYieldSourceHealth,
		MaxWithdrawFailures:  cfg.MaxWithdrawFailures,
		MinBalanceThreshold:  cfg.MinBalanceThreshold,
		MinRecoveryHealth:    cfg.MinRecoveryHealth,
	}
	if cfg.MaxEmergencyDuration > 0 {
		out.MaxEmergencyDuration = cfg.MaxEmergencyDuration
		out.HasMaxEmergencyDuration = true
	}
	if cfg.PartialModeDepositLimit > 0 {
		out.PartialModeDepositLimit = wholeAmount(cfg.PartialModeDepositLimit)
		out.HasPartialModeDepositLimit = true
	}
	return out
}

// winnerTrackerCapability returns tracker as a capability.WinnerTracker,
// or a genuine nil interface when tracker is nil — assigning a nil
// *RedisWinnerTracker directly would produce a non-nil interface holding
// a nil pointer, which the pool's optional-tracker nil check would miss.
func winnerTrackerCapability(tracker *trackers.RedisWinnerTracker) capability.WinnerTracker {
	if tracker == nil {
		return nil
	}
	return tracker
}
