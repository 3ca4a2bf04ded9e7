package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	solanago "github.com/gagliardetto/solana-go"
	logrus "github.com/sirupsen/logrus"

	"treasurybot/internal/agecache"
	"treasurybot/internal/balance"
	"treasurybot/internal/buyjob"
	"treasurybot/internal/config"
	"treasurybot/internal/engine"
	"treasurybot/internal/eventbus"
	"treasurybot/internal/ledger"
	"treasurybot/internal/rewardjob"
	"treasurybot/internal/scanner"
	"treasurybot/internal/scheduler"
	"treasurybot/internal/sidefiles"
	"treasurybot/internal/statusapi"
	"treasurybot/internal/store"
	"treasurybot/pkg/solkeys"
)

func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	bootstrap := flag.Bool("bootstrap", false, "run a large bootstrap scan, then exit")
	onceBuy := flag.Bool("once-buy", false, "run one buy under the execution engine, then exit")
	onceReward := flag.Bool("once-reward", false, "run one reward under the execution engine, then exit")
	exitSafeMode := flag.Bool("exit-safe-mode", false, "clear the latched safe-mode key, then exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("bot: configuration load failed")
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logrus.WithError(err).Error("bot: failed to create data directory")
		os.Exit(1)
	}
	if err := os.MkdirAll(cfg.PublicDir, 0o755); err != nil {
		logrus.WithError(err).Error("bot: failed to create public directory")
		os.Exit(1)
	}

	s, err := store.Open(filepath.Join(cfg.DataDir, "bot.db"))
	if err != nil {
		logrus.WithError(err).Error("bot: failed to open store")
		os.Exit(1)
	}
	defer s.Close()

	if *exitSafeMode {
		if err := s.ClearSafeMode(); err != nil {
			logrus.WithError(err).Error("bot: failed to clear safe mode")
			os.Exit(1)
		}
		logrus.Info("bot: safe mode cleared")
		os.Exit(0)
	}

	payer, err := loadPayer(cfg)
	if err != nil {
		logrus.WithError(err).Error("bot: failed to load treasury signing key")
		os.Exit(1)
	}

	adapter := ledger.NewSolanaAdapter(cfg.RPCURL, cfg.HeliusAPIKey, payer, cfg.DryRun)
	ages := agecache.New(s, adapter)
	sc := scanner.New(s, adapter, ages, cfg.TokenMint)
	bal := balance.New(s, adapter, cfg.TokenMint)
	eng := engine.New(s, cfg.MaxRPCErrorsBeforePause)

	treasuryAddress := payer.PublicKey().String()

	buy := buyjob.New(s, adapter, buyjob.Params{
		TreasuryAddress: treasuryAddress,
		TokenMint:       cfg.TokenMint,
		FeeReserveSOL:   cfg.NativeFeeReserveSOL,
		MinBuySOL:       cfg.MinBuySOL,
		MaxBuySOL:       cfg.MaxBuyPerIntervalSOL,
		SlippageBps:     cfg.SlippageBps,
	})
	reward := rewardjob.New(s, adapter, sc, bal, rewardjob.Params{
		TreasuryAddress:       treasuryAddress,
		TokenMint:             cfg.TokenMint,
		MinAgeSeconds:         int64(cfg.MinWalletAgeDays) * 86400,
		MinContinuitySec:      cfg.MinContinuitySecs,
		MinCumulativeBuy:      cfg.MinCumulativeBuySOL,
		WinnersPerRound:       cfg.WinnersPerRound,
		RewardPercentBps:      cfg.RewardPercentBps,
		MaxRewardPercentBps:   cfg.MaxRewardPercentBps,
		MaxSendsPerTx:         cfg.MaxSendsPerTx,
		RewardIntervalSeconds: int64(cfg.RewardIntervalSeconds),
		DryRun:                cfg.DryRun,
	})

	ctx := context.Background()

	switch {
	case *bootstrap:
		if _, err := sc.Bootstrap(ctx, cfg.BootstrapSignLimit); err != nil {
			logrus.WithError(err).Error("bot: bootstrap scan failed")
			os.Exit(1)
		}
		logrus.Info("bot: bootstrap scan complete")
		os.Exit(0)

	case *onceBuy:
		runOnceBuy(ctx, eng, buy, cfg)
		os.Exit(0)

	case *onceReward:
		runOnceReward(ctx, eng, reward, cfg)
		os.Exit(0)

	default:
		runScheduler(ctx, s, adapter, sc, bal, eng, buy, reward, cfg, treasuryAddress)
	}
}

func loadPayer(cfg *config.Config) (solanago.PrivateKey, error) {
	if cfg.DryRun && cfg.TreasuryKeyPath == "" {
		account, err := solkeys.NewKeyManager(filepath.Dir(cfg.TreasuryKeyPath)).GenerateKeyPair()
		if err != nil {
			return nil, err
		}
		logrus.WithField("address", account.PublicKey.ToBase58()).Warn("bot: dry-run with no configured key, using an ephemeral throwaway key")
		return solanago.PrivateKey(account.PrivateKey), nil
	}

	km := solkeys.NewKeyManager(filepath.Dir(cfg.TreasuryKeyPath))
	account, err := km.LoadKeyStoreEntryFromFile(cfg.TreasuryKeyPath, cfg.KeystorePassword)
	if err != nil {
		return nil, err
	}
	return solanago.PrivateKey(account.PrivateKey), nil
}

func runOnceBuy(ctx context.Context, eng *engine.Engine, buy *buyjob.Job, cfg *config.Config) {
	res := eng.RunGuarded(ctx, store.LockBuyJob, cfg.BuyJobTimeout, func(jobCtx context.Context) (any, error) {
		return buy.Run(jobCtx)
	})
	if res.Err != nil {
		logrus.WithError(res.Err).Error("bot: once-buy failed")
	}
}

func runOnceReward(ctx context.Context, eng *engine.Engine, reward *rewardjob.Job, cfg *config.Config) {
	res := eng.RunGuarded(ctx, store.LockRewardJob, cfg.RewardJobTimeout, func(jobCtx context.Context) (any, error) {
		return reward.Run(jobCtx, cfg.PerTickScanLimit)
	})
	if res.Err != nil {
		logrus.WithError(res.Err).Error("bot: once-reward failed")
	}
}

func runScheduler(
	ctx context.Context,
	s *store.Store,
	adapter ledger.Adapter,
	sc *scanner.Scanner,
	bal *balance.Refresher,
	eng *engine.Engine,
	buy *buyjob.Job,
	reward *rewardjob.Job,
	cfg *config.Config,
	treasuryAddress string,
) {
	bus, err := eventbus.Connect(cfg.RabbitMQURL)
	if err != nil {
		logrus.WithError(err).Warn("bot: event bus unavailable, continuing without it")
	}
	defer bus.Close()

	sidefileWriter := sidefiles.New(cfg.PublicDir)

	sched := scheduler.New(s, adapter, sc, bal, eng, buy, reward, scheduler.Config{
		BuyIntervalSeconds:      cfg.BuyIntervalSeconds,
		RewardIntervalSeconds:   cfg.RewardIntervalSeconds,
		PerTickScanLimit:        cfg.PerTickScanLimit,
		BootstrapSignLimit:      cfg.BootstrapSignLimit,
		MaxRPCErrorsBeforePause: cfg.MaxRPCErrorsBeforePause,
		TreasuryAddress:         treasuryAddress,
		TokenMint:               cfg.TokenMint,
		MinTreasuryNativeSOL:    cfg.MinTreasuryNativeSOL,
		MinTreasuryTokenRaw:     cfg.MinTreasuryTokenRaw,
		BuyJobTimeout:           cfg.BuyJobTimeout,
		RewardJobTimeout:        cfg.RewardJobTimeout,
	})

	sched.OnRound(func(r store.Round) {
		if err := sidefileWriter.WriteRound(r); err != nil {
			logrus.WithError(err).Warn("bot: failed to write side-files for round")
		}
		bus.PublishRound(r)
	})

	runCtx, cancel := context.WithCancel(ctx)

	if err := sched.Start(runCtx); err != nil {
		logrus.WithError(err).Error("bot: scheduler failed to start")
		cancel()
		os.Exit(1)
	}

	projector := statusapi.NewProjector(s, cfg.DryRun, cfg.BuyIntervalSeconds, cfg.RewardIntervalSeconds)
	srv := statusapi.NewServer(projector, cfg.AllowedCORSOrigin, cfg.StatusPort)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			logrus.WithError(err).Warn("bot: status server stopped")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logrus.Info("bot: shutting down")
	cancel()
	sched.Stop()
	srv.Close()
	logrus.Info("bot: shutdown complete")
	os.Exit(0)
}
