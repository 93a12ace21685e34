package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/redis/go-redis/v9"

	"mailbatch/internal/assets"
	"mailbatch/internal/awsutils"
	"mailbatch/internal/batch"
	"mailbatch/internal/cursor"
	"mailbatch/internal/dispatch"
	"mailbatch/internal/email"
	"mailbatch/internal/healthcheck"
	"mailbatch/internal/kv"
	"mailbatch/internal/lock"
	"mailbatch/internal/metrics"
	"mailbatch/internal/quota"
	"mailbatch/internal/recipient"
	"mailbatch/internal/scheduler"
	"mailbatch/internal/settings"
	"mailbatch/internal/smtp"
)

type configProvider interface {
	GetAwsConfig() aws.Config
	GetStoreConfig() kv.Config
	GetRecipientsConfig() recipient.Config
	GetTransportDriver() string
	GetSmtpConfig() smtp.Config
	GetQuotaConfig() quota.Config
	GetAssetsConfig() assets.Config
	GetSchedulerConfig() scheduler.Config
	GetReconcileInterval() time.Duration
	GetLockConfig() lock.Config
	GetLockRedisAddr() string
	GetDispatchConfig() dispatch.Config
	GetHealthCheckServerPort() int
	GetMetricsEnabled() bool
	GetMetricsProcessInterval() time.Duration
}

type sender interface {
	Send(ctx context.Context, msg email.Message) error
}

type App struct {
	handler string

	store     kv.Store
	source    recipient.Source
	gate      quota.Gate
	scheduler *scheduler.Service
	engine    *dispatch.Engine
	metrics   *metrics.Metrics
	health    *healthcheck.Server

	reconcileInterval time.Duration
	processInterval   time.Duration
	metricsEnabled    bool

	closers []func() error
}

type Status struct {
	Scheduled bool
	Cursor    int
	HasCursor bool
	Stats     batch.Stats
	Remaining int
}

func (s Status) State() string {
	if s.Scheduled || s.HasCursor {
		return "Active"
	}
	return "Idle"
}

func New(cp configProvider) (*App, error) {
	awsCfg := cp.GetAwsConfig()

	store, err := kv.Open(cp.GetStoreConfig(), awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	a := &App{
		handler:           cp.GetDispatchConfig().Handler,
		store:             store,
		reconcileInterval: cp.GetReconcileInterval(),
		processInterval:   cp.GetMetricsProcessInterval(),
		metricsEnabled:    cp.GetMetricsEnabled(),
		closers:           []func() error{store.Close},
	}

	source, closeSource, err := recipient.Open(cp.GetRecipientsConfig())
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to open recipients: %w", err)
	}
	a.source = source
	a.closers = append(a.closers, closeSource)

	var transport sender
	var sesClient *awsutils.SesEmailClient
	switch cp.GetTransportDriver() {
	case "ses":
		sesClient = awsutils.NewSesEmailClientFromConfig(awsCfg)
		transport = sesClient
	default:
		transport = smtp.New(cp.GetSmtpConfig())
	}

	a.gate, err = newGate(cp.GetQuotaConfig(), store, sesClient, awsCfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	var loader *assets.Loader
	if assetsCfg := cp.GetAssetsConfig(); assetsCfg.S3 {
		loader = assets.NewLoaderFromConfig(assetsCfg.BasePath, awsCfg)
	} else {
		loader = assets.NewLoader(assetsCfg.BasePath, nil)
	}

	a.scheduler, err = scheduler.New(cp.GetSchedulerConfig(), store)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	locker, err := a.newLocker(cp.GetLockConfig(), cp.GetLockRedisAddr())
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.metrics = metrics.NewMetrics()
	a.engine = dispatch.NewEngine(cp.GetDispatchConfig(), dispatch.Dependencies{
		Store:     store,
		Source:    source,
		Gate:      a.gate,
		Sender:    transport,
		Assets:    loader,
		Scheduler: a.scheduler,
		Locker:    locker,
		Observer:  a.metrics,
	})
	a.scheduler.Register(a.handler, a.engine.Process)

	var opts []healthcheck.Option
	if a.metricsEnabled {
		opts = append(opts, healthcheck.WithHandler("/metrics", a.metrics.Handler()))
	}
	a.health = healthcheck.NewServer(cp.GetHealthCheckServerPort(), opts...)

	return a, nil
}

func newGate(cfg quota.Config, store kv.Store, sesClient *awsutils.SesEmailClient, awsCfg aws.Config) (quota.Gate, error) {
	switch cfg.Driver {
	case "ledger":
		loc, err := cfg.Location()
		if err != nil {
			return nil, err
		}
		return quota.NewLedger(store, cfg.DailyLimit, loc), nil
	case "ses":
		if sesClient == nil {
			sesClient = awsutils.NewSesEmailClientFromConfig(awsCfg)
		}
		return sesClient, nil
	case "", "none":
		return quota.Unlimited{}, nil
	default:
		return nil, fmt.Errorf("unknown quota driver: %s", cfg.Driver)
	}
}

func (a *App) newLocker(cfg lock.Config, redisAddr string) (lock.Locker, error) {
	if cfg.Name == "" {
		cfg.Name = a.handler
	}
	if cfg.Driver != "redis" {
		return lock.New(cfg, nil)
	}

	if rs, ok := a.store.(*kv.RedisStore); ok {
		return lock.New(cfg, rs.Client())
	}
	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	a.closers = append(a.closers, client.Close)
	return lock.New(cfg, client)
}

// Run keeps the daemon alive until ctx is done: the cron loop, the trigger
// reconciliation, the health check server and the process metrics.
func (a *App) Run(ctx context.Context) {
	if err := a.scheduler.Reconcile(ctx); err != nil {
		slog.Error(fmt.Sprintf("failed to reconcile triggers: %v", err))
	}
	a.scheduler.Start(ctx)
	defer a.scheduler.Stop()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.reconcileUntilContextIsDone(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.health.ListenAndServe(ctx); err != nil {
			slog.Error(err.Error())
		}
	}()

	if a.metricsEnabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.metrics.CollectProcessStats(ctx, a.processInterval)
		}()
	}

	wg.Wait()
}

func (a *App) reconcileUntilContextIsDone(ctx context.Context) {
	ticker := time.NewTicker(a.reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.scheduler.Reconcile(ctx); err != nil {
				slog.Error(fmt.Sprintf("failed to reconcile triggers: %v", err))
			}
		}
	}
}

// StartJob validates the settings and installs the trigger.
func (a *App) StartJob(ctx context.Context) error {
	return a.engine.Start(ctx)
}

// StopJob removes the trigger and forgets the cursor.
func (a *App) StopJob(ctx context.Context) error {
	return a.engine.Stop(ctx)
}

func (a *App) RunOnce(ctx context.Context) (dispatch.Outcome, error) {
	return a.engine.Run(ctx)
}

func (a *App) CheckQuota(ctx context.Context) (int, error) {
	remaining, err := a.gate.Remaining(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read quota: %w", err)
	}
	slog.Info(fmt.Sprintf("remaining email quota: %d", remaining))
	return remaining, nil
}

func (a *App) InitSettings(ctx context.Context) ([]string, error) {
	seeded, err := settings.Seed(ctx, a.store)
	if err != nil {
		return seeded, err
	}
	for _, key := range seeded {
		slog.Info(fmt.Sprintf("setting %s initialised with %q", key, settings.Placeholder))
	}
	return seeded, nil
}

func (a *App) Set(ctx context.Context, key string, value string) error {
	return settings.Set(ctx, a.store, key, value)
}

func (a *App) Status(ctx context.Context) (Status, error) {
	var status Status
	var err error

	status.Scheduled, err = a.scheduler.IsScheduled(ctx, a.handler)
	if err != nil {
		return status, err
	}
	status.Cursor, status.HasCursor, err = cursor.NewStore(a.store).Get(ctx)
	if err != nil {
		return status, err
	}

	rows, err := a.source.Rows(ctx)
	if err != nil {
		return status, fmt.Errorf("failed to read recipients: %w", err)
	}
	status.Stats = batch.Summarize(rows)

	status.Remaining, err = a.gate.Remaining(ctx)
	if err != nil {
		return status, fmt.Errorf("failed to read quota: %w", err)
	}
	return status, nil
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
