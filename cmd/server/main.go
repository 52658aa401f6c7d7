// Pulsarr-sub009 - Plex watchlist to Sonarr/Radarr acquisition bridge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command server is the bridge daemon: it watches per-user Plex
// watchlists, routes new items to the configured Sonarr/Radarr
// instances through the rule engine and approval gate, reconciles
// lifecycle state back from the managers, notifies users, and mirrors
// ownership into library labels and downstream tags. All recurring work
// runs as persisted scheduler jobs under a supervisor tree.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jamcalli/Pulsarr-sub009/internal/approval"
	"github.com/jamcalli/Pulsarr-sub009/internal/clients"
	"github.com/jamcalli/Pulsarr-sub009/internal/config"
	"github.com/jamcalli/Pulsarr-sub009/internal/enrich"
	"github.com/jamcalli/Pulsarr-sub009/internal/ingest"
	"github.com/jamcalli/Pulsarr-sub009/internal/labels"
	"github.com/jamcalli/Pulsarr-sub009/internal/logging"
	"github.com/jamcalli/Pulsarr-sub009/internal/models"
	"github.com/jamcalli/Pulsarr-sub009/internal/notify"
	"github.com/jamcalli/Pulsarr-sub009/internal/plex"
	"github.com/jamcalli/Pulsarr-sub009/internal/progress"
	"github.com/jamcalli/Pulsarr-sub009/internal/quota"
	"github.com/jamcalli/Pulsarr-sub009/internal/ratelimit"
	"github.com/jamcalli/Pulsarr-sub009/internal/reconcile"
	"github.com/jamcalli/Pulsarr-sub009/internal/routing"
	"github.com/jamcalli/Pulsarr-sub009/internal/routing/evaluators"
	"github.com/jamcalli/Pulsarr-sub009/internal/scheduler"
	"github.com/jamcalli/Pulsarr-sub009/internal/store"
	"github.com/jamcalli/Pulsarr-sub009/internal/submit"
	"github.com/jamcalli/Pulsarr-sub009/internal/supervisor"
	"github.com/jamcalli/Pulsarr-sub009/internal/tmdb"
)

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("fatal error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().Str("component", "main").Msg("starting watchlist bridge")

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	configManager, err := config.NewConfigManager(cfg, db, db)
	if err != nil {
		return err
	}

	// Shared rate governor with one family per endpoint group.
	governor := ratelimit.NewGovernor()
	for name, fam := range cfg.RateLimit.Families {
		governor.Configure(name, ratelimit.FamilyConfig{
			RequestsPerSecond: fam.RequestsPerSecond,
			Burst:             fam.Burst,
		})
	}
	retry := ratelimit.RetryConfig{
		MaxRetries: cfg.RateLimit.MaxRetries,
		BaseDelay:  time.Duration(cfg.RateLimit.BackoffBaseMillis) * time.Millisecond,
		CapDelay:   time.Duration(cfg.RateLimit.BackoffCapMillis) * time.Millisecond,
	}

	bus := progress.NewBus()
	defer bus.Close()

	// Upstream clients.
	plexRL := ratelimit.NewClient(governor, "plex", &http.Client{Timeout: 30 * time.Second}, retry)
	plexClient := plex.NewClient(cfg.Plex.BaseURL, cfg.Plex.GraphQLURL, cfg.Plex.PrimaryToken, plexRL)
	plexServer := plex.NewServer(cfg.Plex.ServerBaseURL, cfg.Plex.ServerToken, plexRL)
	tmdbRL := ratelimit.NewClient(governor, "tmdb", &http.Client{Timeout: 30 * time.Second}, retry)
	enricher := enrich.New(tmdb.NewClient("", cfg.TMDB.APIKey, tmdbRL), cfg.TMDB.Region)

	// Downstream client registry.
	registry := clients.NewRegistry(governor, retry, ratelimit.FamilyConfig{
		RequestsPerSecond: cfg.RateLimit.Families["sonarr"].RequestsPerSecond,
		Burst:             cfg.RateLimit.Families["sonarr"].Burst,
	})

	// Routing engine with the full evaluator set.
	evalRegistry := routing.NewRegistry()
	evalRegistry.Register(evaluators.NewGenre())
	evalRegistry.Register(evaluators.NewLanguage())
	evalRegistry.Register(evaluators.NewCertification())
	evalRegistry.Register(evaluators.NewYear())
	evalRegistry.Register(evaluators.NewUser())
	evalRegistry.Register(evaluators.NewSeasonCount())
	evalRegistry.Register(evaluators.NewRating())
	evalRegistry.Register(evaluators.NewStreamingProvider())
	engine := routing.NewEngine(evalRegistry, db)

	quotaChecker := quota.NewChecker(db, quota.Config{
		WeeklyWindowDays:   cfg.Quota.WeeklyWindowDays,
		MonthlyResetDay:    cfg.Quota.MonthlyResetDay,
		MonthlyResetPolicy: models.MonthlyResetPolicy(cfg.Quota.MonthlyResetPolicy),
	})

	submitter := submit.New(db, registry, bus, 4)
	approvals := approval.New(db, submitter, quotaChecker, bus, approval.Config{
		Expiry: cfg.Quota.ApprovalExpiry,
	})

	ingester := ingest.New(plexClient, db, enricher, bus, ingest.Config{
		SelfRSSURL:    cfg.Plex.SelfRSSURL,
		FriendsRSSURL: cfg.Plex.FriendsRSSURL,
	})
	reconciler := reconcile.NewReconciler(db, registry)
	processor := reconcile.NewProcessor(db, enricher, engine, approvals, submitter, quotaChecker)
	rolling := reconcile.NewRollingReconciler(db, plexServer, registry, 0)

	var channels []notify.Channel
	if cfg.Notification.WebhookURL != "" {
		webhookRL := ratelimit.NewClient(governor, "webhook", &http.Client{Timeout: 15 * time.Second}, retry)
		channels = append(channels, notify.NewWebhookChannel(cfg.Notification.WebhookURL, webhookRL))
	}
	notifier := notify.New(db, channels)

	labelSyncer := labels.New(db, plexServer, bus, labels.Config{
		Prefix:            cfg.Label.Prefix,
		RemovedUserPolicy: labels.RemovedUserPolicy(cfg.Label.RemovedUserPolicy),
		SpecialLabel:      cfg.Label.SpecialLabel,
		Concurrency:       cfg.Label.Concurrency,
	})
	tagger := labels.NewTagger(db, registry, bus, cfg.Label.Prefix)

	// Persistent jobs.
	sched := scheduler.New(db, scheduler.Config{
		JobTimeout:    cfg.Scheduler.DefaultJobTimeout,
		ShutdownGrace: cfg.Scheduler.ShutdownGrace,
	})
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := registerJobs(ctx, sched, cfg, ingester, processor, reconciler, rolling, approvals, labelSyncer, tagger, notifier); err != nil {
		return err
	}

	// Supervisor tree: the scheduler is the long-lived service driving
	// everything else.
	tree, err := supervisor.NewSupervisorTree(slog.Default(), supervisor.DefaultTreeConfig())
	if err != nil {
		return err
	}
	tree.AddSchedulerService(sched)

	logging.Info().Str("component", "main").
		Str("label_prefix", configManager.Current().Label.Prefix).
		Msg("supervisor tree starting")
	return tree.Serve(ctx)
}

// registerJobs persists and binds every recurring job.
func registerJobs(
	ctx context.Context,
	sched *scheduler.Scheduler,
	cfg *config.Config,
	ingester *ingest.Ingester,
	processor *reconcile.Processor,
	reconciler *reconcile.Reconciler,
	rolling *reconcile.RollingReconciler,
	approvals *approval.Service,
	labelSyncer *labels.Syncer,
	tagger *labels.Tagger,
	notifier *notify.Dispatcher,
) error {
	interval := cfg.Plex.SyncIntervalSeconds
	if interval <= 0 {
		interval = 20
	}

	jobs := []struct {
		def models.ScheduledJob
		fn  scheduler.JobFunc
	}{
		{
			def: models.ScheduledJob{
				Name: "self-watchlist-sync", Type: models.JobTypeInterval, Enabled: true,
				Interval: &models.IntervalConfig{Seconds: interval, RunImmediately: true},
			},
			fn: func(ctx context.Context) error {
				_, err := ingester.SyncSelf(ctx, false)
				return err
			},
		},
		{
			def: models.ScheduledJob{
				Name: "others-watchlist-sync", Type: models.JobTypeInterval, Enabled: true,
				Interval: &models.IntervalConfig{Minutes: 1, RunImmediately: true},
			},
			fn: func(ctx context.Context) error {
				_, err := ingester.SyncOthers(ctx, false)
				return err
			},
		},
		{
			def: models.ScheduledJob{
				Name: "rss-sync", Type: models.JobTypeInterval,
				Enabled:  cfg.Plex.SelfRSSURL != "" || cfg.Plex.FriendsRSSURL != "",
				Interval: &models.IntervalConfig{Minutes: 10},
			},
			fn: func(ctx context.Context) error {
				_, err := ingester.SyncRSS(ctx)
				return err
			},
		},
		{
			def: models.ScheduledJob{
				Name: "process-pending", Type: models.JobTypeInterval, Enabled: true,
				Interval: &models.IntervalConfig{Seconds: 30},
			},
			fn: processor.ProcessPending,
		},
		{
			def: models.ScheduledJob{
				Name: "status-reconcile", Type: models.JobTypeInterval, Enabled: true,
				Interval: &models.IntervalConfig{Minutes: 5},
			},
			fn: func(ctx context.Context) error {
				if err := reconciler.Run(ctx); err != nil {
					return err
				}
				return notifier.NotifyGrabbed(ctx)
			},
		},
		{
			def: models.ScheduledJob{
				Name: "rolling-monitoring", Type: models.JobTypeInterval, Enabled: true,
				Interval: &models.IntervalConfig{Minutes: 15},
			},
			fn: rolling.Run,
		},
		{
			def: models.ScheduledJob{
				Name: "quota-maintenance", Type: models.JobTypeCron, Enabled: true,
				Cron: &models.CronConfig{Expression: cfg.Quota.MaintenanceCron},
			},
			fn: approvals.Maintain,
		},
		{
			def: models.ScheduledJob{
				Name: "label-sync", Type: models.JobTypeInterval,
				Enabled:  cfg.Plex.ServerBaseURL != "",
				Interval: &models.IntervalConfig{Minutes: 30},
			},
			fn: func(ctx context.Context) error {
				if err := labelSyncer.Sync(ctx); err != nil {
					return err
				}
				return labelSyncer.Cleanup(ctx)
			},
		},
		{
			def: models.ScheduledJob{
				Name: "arr-tag-sync", Type: models.JobTypeInterval, Enabled: true,
				Interval: &models.IntervalConfig{Hours: 1},
			},
			fn: func(ctx context.Context) error {
				if err := tagger.SyncSonarr(ctx); err != nil {
					return err
				}
				return tagger.SyncRadarr(ctx)
			},
		},
	}

	for _, job := range jobs {
		if err := sched.Register(ctx, job.def, job.fn); err != nil {
			return fmt.Errorf("register job %s: %w", job.def.Name, err)
		}
	}
	return nil
}
