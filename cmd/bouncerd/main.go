// Command bouncerd wires the Admission Client and Housekeeper into a
// runnable process: load config, wait for Redis, register scripts,
// start the sweep loop, serve signals until shutdown. Intended as a
// reference wiring, not a full HTTP front-end — the reverse proxy
// integration itself is deployment-specific and out of scope (spec.md
// §1 Non-goals).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"bouncer/audit"
	"bouncer/client"
	"bouncer/config"
	"bouncer/housekeeper"
	"bouncer/redisx"
	"bouncer/scripts"
	"bouncer/token"
	"bouncer/waitpage"
)

func main() {
	log := logrus.NewEntry(logrus.StandardLogger())

	if err := run(log); err != nil {
		log.WithError(err).Fatal("bouncerd: fatal error")
	}
}

func run(log *logrus.Entry) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(os.Getenv("BOUNCER_CONFIG_DIR"))
	if err != nil {
		return err
	}

	if err := redisx.Probe(ctx, redisx.ProbeOptions{
		Addr:           cfg.RedisAddr,
		Password:       cfg.RedisPassword,
		DialTimeout:    cfg.ConnectTimeout,
		MaxElapsedTime: 30 * time.Second,
	}); err != nil {
		return err
	}

	rdb, err := redisx.New(ctx, redisx.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  cfg.ConnectTimeout,
		ReadTimeout:  cfg.AcquireTimeout,
		WriteTimeout: cfg.AcquireTimeout,
		PoolSize:     10,
		PoolTimeout:  cfg.AcquireTimeout,
	})
	if err != nil {
		return err
	}
	defer rdb.Close()

	exec := scripts.NewRedisExecutor(rdb.Raw())
	registry := scripts.NewRegistry(exec, cfg.RedisPrefix)

	opts, err := clientOptions(cfg)
	if err != nil {
		return err
	}
	opts = append(opts, client.WithEventSource(rdb.Raw()))

	defaults := client.Defaults{
		QueueEnabled:     cfg.QueueEnabled,
		StoreCapacity:    cfg.StoreCapacity,
		ValidatedExpiry:  cfg.ValidatedExpiry,
		QuarantineExpiry: cfg.QuarantineExpiry,
	}
	c := client.New(registry, rdb.Raw(), cfg.RedisPrefix, defaults, log.WithField("component", "client"), opts...)

	if err := bootstrapSyncKeys(ctx, c); err != nil {
		return err
	}

	sink, closeSink, err := auditSink(ctx, cfg)
	if err != nil {
		return err
	}
	if closeSink != nil {
		defer closeSink()
	}

	hk := housekeeper.New(c, rdb, housekeeper.Config{
		Interval:            cfg.HousekeeperPeriod,
		LeaseKey:            cfg.RedisPrefix + ":housekeeper_lease",
		StartupJitterMillis: 1000,
		RequireLease:        cfg.HousekeeperLease,
	}, log.WithField("component", "housekeeper"), sink)

	go hk.Run(ctx)

	log.WithFields(logrus.Fields{
		"redis_prefix": cfg.RedisPrefix,
		"period":       cfg.HousekeeperPeriod,
	}).Info("bouncerd: running")

	<-ctx.Done()
	log.Info("bouncerd: shutting down")
	return nil
}

// clientOptions builds the client.Option slice implied by cfg: publish
// throttling, an optional position-token signer, and an optional
// waiting-page compression strategy.
func clientOptions(cfg *config.Config) ([]client.Option, error) {
	var opts []client.Option

	if cfg.PublishThrottle > 0 {
		opts = append(opts, client.WithPublishThrottle(cfg.PublishThrottle))
	}

	if cfg.TokenKey != "" && cfg.TokenIV != "" {
		signer, err := token.NewSigner(cfg.TokenKey, cfg.TokenIV)
		if err != nil {
			return nil, err
		}
		opts = append(opts, client.WithPositionTokenSigner(signer))
	}

	strategy, err := waitpage.NewStrategy(cfg.WaitingPageCompression)
	if err != nil {
		return nil, err
	}
	opts = append(opts, client.WithWaitingPageCompression(strategy))

	return opts, nil
}

// bootstrapSyncKeys seeds queue_enabled/store_capacity/
// queue_sync_timestamp on first boot against a fresh prefix, so the
// very first request doesn't have to pay the Uninitialized
// detect-and-reseed round trip. The Housekeeper's own cycle repeats
// this check periodically thereafter, in case the backing store is
// flushed while the process is already running.
func bootstrapSyncKeys(ctx context.Context, c *client.Client) error {
	return c.EnsureInitialized(ctx, time.Now())
}

// auditSink builds the optional MySQL housekeeping ledger when
// cfg.AuditDSN is set. Returns a nil Sink (not an error) when the
// feature is disabled, per spec.md's Non-goal on persistence beyond
// the backing store: this must never become required.
func auditSink(ctx context.Context, cfg *config.Config) (housekeeper.Sink, func(), error) {
	if cfg.AuditDSN == "" {
		return nil, nil, nil
	}
	store, err := audit.Open(ctx, cfg.AuditDSN)
	if err != nil {
		return nil, nil, err
	}
	return audit.NewSink(store), func() { _ = store.Close() }, nil
}
