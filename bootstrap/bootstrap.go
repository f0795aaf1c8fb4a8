// Package bootstrap wires adapters and services together and manages the
// application lifecycle.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/artpar/quotamon/adapters/clock"
	"github.com/artpar/quotamon/adapters/cloudwatch"
	"github.com/artpar/quotamon/adapters/dynamodb"
	"github.com/artpar/quotamon/adapters/email"
	"github.com/artpar/quotamon/adapters/hasher"
	quotahttp "github.com/artpar/quotamon/adapters/http"
	"github.com/artpar/quotamon/adapters/idgen"
	"github.com/artpar/quotamon/adapters/memory"
	"github.com/artpar/quotamon/adapters/metrics"
	redisstore "github.com/artpar/quotamon/adapters/redis"
	"github.com/artpar/quotamon/adapters/sns"
	"github.com/artpar/quotamon/adapters/sqlite"
	"github.com/artpar/quotamon/adapters/webhook"
	"github.com/artpar/quotamon/app"
	"github.com/artpar/quotamon/config"
	"github.com/artpar/quotamon/domain/quota"
	"github.com/artpar/quotamon/ports"
)

// App holds all initialized components of the quota monitor.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Config
	Monitor    *app.Monitor
	HTTPServer *http.Server

	// DB is the SQLite handle when the sqlite store backend is active.
	DB *sqlite.DB

	store          ports.CounterStore
	storeClose     func() error
	sink           ports.MetricSink
	sinkClose      func() error
	notifier       ports.Notifier
	metricsHandler http.Handler
}

// New creates the application with all dependencies wired per the
// configuration.
func New(cfg *config.Config) (*App, error) {
	logger := setupLogger(cfg.Logging)

	a := &App{
		Logger: logger,
		Config: cfg,
	}

	if err := a.initStore(); err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	if err := a.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	if err := a.initNotifier(); err != nil {
		return nil, fmt.Errorf("init notifier: %w", err)
	}

	a.Monitor = app.NewMonitor(app.MonitorDeps{
		Store:    a.store,
		Metrics:  a.sink,
		Notifier: a.notifier,
		Clock:    clock.Real{},
		IDGen:    idgen.UUID{},
		Logger:   logger,
	}, app.MonitorConfig{
		Resources: resourceQuotas(cfg),
		FailOpen:  cfg.FailOpen(),
	})

	a.initHTTPServer()

	logger.Info().
		Int("resources", len(cfg.Resources)).
		Bool("fail_open", cfg.FailOpen()).
		Msg("quota monitor initialized")

	return a, nil
}

func (a *App) initStore() error {
	switch a.Config.Store.Backend {
	case "memory":
		store := memory.NewCounterStore(memory.CounterStoreConfig{})
		a.store = store
		a.storeClose = store.Close

	case "sqlite":
		db, err := sqlite.Open(a.Config.Store.SQLite.Path)
		if err != nil {
			return fmt.Errorf("open sqlite: %w", err)
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return fmt.Errorf("migrate sqlite: %w", err)
		}
		a.DB = db
		a.store = sqlite.NewCounterStore(db)

	case "dynamodb":
		awsCfg, err := loadAWSConfig(a.Config.AWS, a.Config.Store.DynamoDB.Region)
		if err != nil {
			return fmt.Errorf("load aws config: %w", err)
		}
		a.store = dynamodb.New(awsCfg, a.Config.Store.DynamoDB.Table)

	case "redis":
		store := redisstore.NewCounterStore(redisstore.Options{
			Addr:      a.Config.Store.Redis.Addr,
			Password:  a.Config.Store.Redis.Password,
			DB:        a.Config.Store.Redis.DB,
			KeyPrefix: a.Config.Store.Redis.KeyPrefix,
			TTL:       a.Config.Store.Redis.TTL,
		})
		a.store = store
		a.storeClose = store.Close

	default:
		return fmt.Errorf("unknown store backend: %s", a.Config.Store.Backend)
	}

	a.Logger.Info().Str("backend", a.Config.Store.Backend).Msg("counter store ready")
	return nil
}

func (a *App) initMetrics() error {
	switch a.Config.Metrics.Backend {
	case "prometheus":
		reg := prometheus.NewRegistry()
		a.sink = metrics.NewWithRegistry(reg)
		a.metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	case "cloudwatch":
		awsCfg, err := loadAWSConfig(a.Config.AWS, a.Config.Metrics.Region)
		if err != nil {
			return fmt.Errorf("load aws config: %w", err)
		}
		cw := cloudwatch.New(awsCfg, a.Config.Metrics.Namespace)
		buffered := NewBufferedSink(cw, a.Config.Metrics.BufferSize, a.Config.Metrics.FlushInterval, a.Logger)
		a.sink = buffered
		a.sinkClose = buffered.Close

	case "noop":
		a.sink = noopSink{}

	default:
		return fmt.Errorf("unknown metrics backend: %s", a.Config.Metrics.Backend)
	}

	a.Logger.Info().Str("backend", a.Config.Metrics.Backend).Msg("metric sink ready")
	return nil
}

func (a *App) initNotifier() error {
	switch a.Config.Notify.Backend {
	case "sns":
		awsCfg, err := loadAWSConfig(a.Config.AWS, a.Config.Notify.SNS.Region)
		if err != nil {
			return fmt.Errorf("load aws config: %w", err)
		}
		a.notifier = sns.New(awsCfg, a.Config.Notify.SNS.TopicARN)

	case "email":
		smtpCfg := email.DefaultConfig()
		smtpCfg.Host = a.Config.Notify.Email.Host
		if a.Config.Notify.Email.Port != 0 {
			smtpCfg.Port = a.Config.Notify.Email.Port
		}
		smtpCfg.Username = a.Config.Notify.Email.Username
		smtpCfg.Password = a.Config.Notify.Email.Password
		smtpCfg.From = a.Config.Notify.Email.From
		if a.Config.Notify.Email.FromName != "" {
			smtpCfg.FromName = a.Config.Notify.Email.FromName
		}
		smtpCfg.Recipients = a.Config.Notify.Email.Recipients
		smtpCfg.UseTLS = a.Config.Notify.Email.UseTLS
		smtpCfg.UseImplicit = a.Config.Notify.Email.ImplicitTLS
		notifier, err := email.NewSMTPNotifier(smtpCfg)
		if err != nil {
			return fmt.Errorf("smtp notifier: %w", err)
		}
		a.notifier = notifier

	case "webhook":
		a.notifier = webhook.New(webhook.Config{
			URL:     a.Config.Notify.Webhook.URL,
			Secret:  a.Config.Notify.Webhook.Secret,
			Timeout: a.Config.Notify.Webhook.Timeout,
		})

	case "noop":
		a.notifier = email.NewNoopNotifier()

	default:
		return fmt.Errorf("unknown notify backend: %s", a.Config.Notify.Backend)
	}

	a.Logger.Info().Str("backend", a.Config.Notify.Backend).Msg("notifier ready")
	return nil
}

func (a *App) initHTTPServer() {
	handler := quotahttp.NewHandler(quotahttp.Deps{
		Monitor:   a.Monitor,
		Store:     a.store,
		Metrics:   a.metricsHandler,
		Logger:    a.Logger,
		Hasher:    hasher.NewBcrypt(0),
		TokenHash: a.Config.Server.AdminTokenHash,
	})

	a.HTTPServer = &http.Server{
		Addr:         a.Config.Server.Addr(),
		Handler:      handler.Router(),
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}
}

// Run starts the HTTP server and blocks until an interrupt signal or a
// server error, then shuts down gracefully.
func (a *App) Run() error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown stops the HTTP server and closes components in dependency
// order. Close errors are logged, not returned, so a failing component
// cannot block the rest of the teardown.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	// Flush buffered metrics before the stores go away
	if a.sinkClose != nil {
		if err := a.sinkClose(); err != nil {
			a.Logger.Error().Err(err).Msg("metric sink close error")
		}
	}

	if a.storeClose != nil {
		if err := a.storeClose(); err != nil {
			a.Logger.Error().Err(err).Msg("counter store close error")
		}
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

// loadAWSConfig builds the SDK config shared by the DynamoDB, CloudWatch,
// and SNS backends. Static credentials and the endpoint override come from
// the aws config block; without them the SDK falls back to its ambient
// credential chain.
func loadAWSConfig(shared config.AWSConfig, region string) (aws.Config, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if shared.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(shared.AccessKeyID, shared.SecretAccessKey, "")))
	}
	if shared.Endpoint != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(shared.Endpoint))
	}
	return awsconfig.LoadDefaultConfig(ctx, opts...)
}

func resourceQuotas(cfg *config.Config) map[string]quota.Config {
	quotas := make(map[string]quota.Config, len(cfg.Resources))
	for _, r := range cfg.Resources {
		quotas[r.Name] = quota.Config{
			Limit:             r.Limit,
			WarningThreshold:  r.WarningThreshold,
			CriticalThreshold: r.CriticalThreshold,
		}
	}
	return quotas
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	levelStr := cfg.Level
	if levelStr == "" {
		levelStr = "info"
	}

	level, err := zerolog.ParseLevel(levelStr)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// noopSink discards datums; used when metrics are disabled.
type noopSink struct{}

func (noopSink) Publish(ctx context.Context, d ports.Datum) error {
	return nil
}
