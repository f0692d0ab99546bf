// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"installment-engine/internal/config"
	"installment-engine/internal/domain/model"
	"installment-engine/internal/domain/ports/adapter"
	"installment-engine/internal/domain/ports/repository"
	payAdapters "installment-engine/internal/infra/adapters/payment"
	tele "installment-engine/internal/infra/adapters/telegram"
	"installment-engine/internal/infra/api"
	apiv1 "installment-engine/internal/infra/api/apiv1"
	pg "installment-engine/internal/infra/db/postgres"
	"installment-engine/internal/infra/i18n"
	"installment-engine/internal/infra/logging"
	"installment-engine/internal/infra/metrics"
	red "installment-engine/internal/infra/redis"
	"installment-engine/internal/infra/sched"
	"installment-engine/internal/infra/worker"
	"installment-engine/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, error detail in responses)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] enabled")
	}
	loc, _ := time.LoadLocation(cfg.Installment.Timezone) // validated by config

	// ---- Metrics ----
	metrics.MustRegister()
	gatewayName := "razorpay"
	if cfg.Payment.Razorpay.Sandbox {
		gatewayName = "sandbox"
	}
	metrics.SetBuildInfo(version, commit, gatewayName)

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	go metrics.WatchPool(ctx, pool, 15*time.Second)

	// ---- Redis (optional: cache, rate limit, reconciler lock) ----
	var (
		redisClient red.RedisClient
		limiter     adapter.RateLimiter
		locker      sched.Locker
	)
	if cfg.Redis.URL != "" {
		rc, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer rc.Close()
		redisClient = rc
		limiter = red.NewRateLimiter(rc)
		locker = red.NewLocker(rc)
	} else {
		logger.Warn().Msg("redis.url not set; coupon cache, pay rate limit and reconciler lock disabled")
	}

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	orderRepo := pg.NewOrderRepo(pool)
	paymentRepo := pg.NewPaymentRepo(pool)
	walletRepo := pg.NewWalletRepo(pool)
	depositRepo := pg.NewDepositRepo(pool)
	eventRepo := pg.NewWebhookEventRepo(pool)
	ledger := pg.NewCommissionLedger(pool)
	var couponRepo repository.CouponRepository = pg.NewCouponRepo(pool)
	if redisClient != nil {
		couponRepo = pg.NewCouponRepoCacheDecorator(couponRepo, redisClient, cfg.Redis.TTL)
	}

	// ---- Payment gateway ----
	rp := cfg.Payment.Razorpay
	var gateway adapter.PaymentGateway
	if rp.Sandbox {
		gateway = payAdapters.NewSandboxGateway(rp.KeySecret, rp.WebhookSecret, rp.Currency)
		logger.Warn().Msg("payment gateway: in-memory sandbox")
	} else {
		gw, err := payAdapters.NewRazorpayGateway(rp.KeyID, rp.KeySecret, rp.WebhookSecret, rp.Currency)
		if err != nil {
			logger.Fatal().Err(err).Msg("razorpay gateway")
		}
		gateway = gw
	}

	// ---- Notifications (bounded pool, never blocks settlement) ----
	var sink adapter.Notifier
	if cfg.Notify.Telegram.Token != "" {
		tr, err := i18n.NewTranslator(i18n.LocalesFS, cfg.Notify.Language)
		if err != nil {
			logger.Fatal().Err(err).Msg("notification locale")
		}
		bn, err := tele.NewBotNotifier(&cfg.Notify, tr)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram notifier")
		}
		sink = bn
	} else {
		sink = tele.NewNoopNotifier(logger)
	}
	notifyPool := worker.NewPool(cfg.Workers.Notifications, cfg.Workers.QueueSize, logger)
	notifyPool.Start(ctx)
	notifier := worker.NewAsyncNotifier(notifyPool, sink, logger)

	// ---- Use cases ----
	policy := schedulePolicy(cfg.Installment)
	commissionUC := usecase.NewCommissionUseCase(paymentRepo, walletRepo, ledger, cfg.Commission.DefaultPercent, cfg.Commission.AvailablePercent, logger)
	paymentUC := usecase.NewPaymentUseCase(tm, orderRepo, paymentRepo, walletRepo, gateway, commissionUC, notifier, loc, logger)
	orderUC := usecase.NewOrderUseCase(tm, orderRepo, couponRepo, paymentUC, policy, logger)
	depositUC := usecase.NewDepositUseCase(tm, depositRepo, walletRepo, gateway, notifier, logger)
	webhookUC := usecase.NewWebhookUseCase(eventRepo, paymentUC, depositUC, gateway, notifier, logger)

	// ---- Payment reconciler ----
	reconciler := sched.NewPaymentReconciler(paymentUC, locker, red.ReconcilerLockKey(),
		cfg.Scheduler.ReconcileInterval, cfg.Scheduler.StaleAfter, cfg.Scheduler.BatchSize, logger)
	go func() {
		if err := reconciler.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("reconciler stopped")
		}
	}()

	// ---- HTTP ----
	checks := map[string]api.HealthCheck{
		"postgres": func(ctx context.Context) error { return pool.Ping(ctx) },
	}
	if redisClient != nil {
		checks["redis"] = redisClient.Ping
	}
	router := api.NewRouter(cfg.HTTP, logger, checks)
	auth := api.NewAuthManager(cfg.Security.JWTSecret, 0)
	apiv1.RegisterAPIV1(router, apiv1.NewServer(orderUC, paymentUC, depositUC, webhookUC, auth, apiv1.Options{
		Limiter:   limiter,
		PayLimit:  cfg.HTTP.PayRateLimit,
		PayWindow: cfg.HTTP.PayRateWindow,
		Dev:       cfg.Runtime.Dev,
	}, logger))

	server := api.NewServer(cfg.HTTP, router, logger)
	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Start() }()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
		logger.Info().Msg("shutdown requested")
	case err := <-serveErr:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	cancel()
	notifyPool.Stop()
	logger.Info().Msg("bye")
}

func schedulePolicy(c config.InstallmentConfig) model.SchedulePolicy {
	p := model.SchedulePolicy{MinDays: c.MinDays, MinAmount: c.MinAmount}
	for _, t := range c.Tiers {
		p.Tiers = append(p.Tiers, model.ScheduleTier{MaxPrice: t.MaxPrice, MaxDays: t.MaxDays})
	}
	return p
}
