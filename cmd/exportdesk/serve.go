package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/exportdesk-io/exportdesk-ce/internal/backup"
	"github.com/exportdesk-io/exportdesk-ce/internal/classify"
	"github.com/exportdesk-io/exportdesk-ce/internal/config"
	"github.com/exportdesk-io/exportdesk-ce/internal/database"
	"github.com/exportdesk-io/exportdesk-ce/internal/email/inbound/connector"
	"github.com/exportdesk-io/exportdesk-ce/internal/email/inbound/filters"
	"github.com/exportdesk-io/exportdesk-ce/internal/models"
	"github.com/exportdesk-io/exportdesk-ce/internal/quotes"
	"github.com/exportdesk-io/exportdesk-ce/internal/scheduler"
	"github.com/exportdesk-io/exportdesk-ce/internal/score"
	"github.com/exportdesk-io/exportdesk-ce/internal/sync"
	"github.com/exportdesk-io/exportdesk-ce/internal/tasks"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the background service: scheduled sync, backups and reminders",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := log.New(os.Stderr, "", log.LstdFlags)

	storePath, backupDir, backupConfigPath := storePaths(cfg)
	db, err := database.OpenAndMigrate(storePath)
	if err != nil {
		return err
	}
	defer db.Close()

	filter := filters.NewMessageFilter(filterConfig(cfg))
	sentiment := classify.NewSentimentScorer()
	if len(cfg.Filters.SentimentPhrases) > 0 {
		sentiment.Reload(cfg.Filters.SentimentPhrases)
	}
	config.OnReload(func(next *config.Config) {
		filter.Reload(filterConfig(next))
		if len(next.Filters.SentimentPhrases) > 0 {
			sentiment.Reload(next.Filters.SentimentPhrases)
		}
		logger.Printf("[INFO] filter and sentiment tables reloaded")
	})

	scores := score.NewEngine(db,
		score.WithLogger(logger),
		score.WithSentimentScorer(sentiment),
	)
	gate := &database.Gate{}
	coordinator := sync.NewCoordinator(db, connector.DefaultFactory(), scores,
		sync.WithLogger(logger),
		sync.WithWorkers(cfg.Sync.Workers),
		sync.WithFilter(filter),
		sync.WithGate(gate),
	)

	backupCfg, err := backup.LoadConfig(backupConfigPath)
	if err != nil {
		return err
	}
	backups := backup.NewService(storePath, backupDir, gate,
		backup.WithLogger(logger),
		backup.WithDB(db),
		backup.WithRetention(backupCfg.KeepBackups),
	)

	taskEngine := tasks.NewEngine(db, tasks.WithLogger(logger))
	quoteEngine := quotes.NewEngine(db,
		quotes.WithLogger(logger),
		quotes.WithTaskEngine(taskEngine),
	)

	jobs := scheduler.DefaultJobs()
	for _, job := range jobs {
		switch job.Slug {
		case scheduler.JobEmailSyncPoll:
			if cfg.Sync.PollSchedule != "" {
				job.Schedule = cfg.Sync.PollSchedule
			}
		case scheduler.JobAutoBackup:
			job.Schedule = backupCfg.CronSpec()
			job.RunOnStartup = backupCfg.Enabled && backupCfg.BackupOnStart
		}
	}
	if !backupCfg.Enabled {
		jobs = withoutJob(jobs, scheduler.JobAutoBackup)
	}

	sched := scheduler.NewService(
		scheduler.WithLogger(logger),
		scheduler.WithJobs(jobs),
	)
	reminders := sched.RegisterBuiltinHandlers(scheduler.Deps{
		Sync:   coordinator,
		Backup: backups,
		Tasks:  taskEngine,
		Quotes: quoteEngine,
		Logger: logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.Handler())
		server := &http.Server{Addr: cfg.Metrics.MetricsAddr(), Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("[ERROR] metrics server failed: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
		}()
		logger.Printf("[INFO] metrics listening on %s%s", cfg.Metrics.MetricsAddr(), cfg.Metrics.Path)
	}

	go drainAlerts(ctx, logger, scores.Alerts(), quoteEngine.Alerts(), reminders)

	logger.Printf("[INFO] exportdesk service started, store at %s", storePath)
	return sched.Run(ctx)
}

// drainAlerts logs the alert streams the desktop shell would surface as
// toasts.
func drainAlerts(ctx context.Context, logger *log.Logger,
	classChanges <-chan models.ClassificationChange,
	quoteAlerts <-chan quotes.StatusAlert,
	reminders <-chan *models.Task,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case change := <-classChanges:
			logger.Printf("[ALERT] client %d moved %s -> %s (score %d)",
				change.ClientID, change.OldClassification, change.NewClassification, change.NewScore)
		case alert := <-quoteAlerts:
			logger.Printf("[ALERT] quote %s for client %d is now %s",
				alert.QuoteNumber, alert.ClientID, alert.Status)
		case task := <-reminders:
			logger.Printf("[ALERT] reminder due: task %d %q", task.ID, task.Title)
		}
	}
}

func filterConfig(cfg *config.Config) filters.Config {
	out := filters.DefaultConfig()
	if len(cfg.Filters.BulkPatterns) > 0 {
		out.BulkPatterns = cfg.Filters.BulkPatterns
	}
	if len(cfg.Filters.RequestPhrases) > 0 {
		out.RequestPhrases = cfg.Filters.RequestPhrases
	}
	if cfg.Filters.MinBodyLength > 0 {
		out.MinBodyLength = cfg.Filters.MinBodyLength
	}
	return out
}

func withoutJob(jobs []*models.ScheduledJob, slug string) []*models.ScheduledJob {
	out := jobs[:0]
	for _, job := range jobs {
		if job.Slug != slug {
			out = append(out, job)
		}
	}
	return out
}
