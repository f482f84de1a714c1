package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/exportdesk-io/exportdesk-ce/internal/classify"
	"github.com/exportdesk-io/exportdesk-ce/internal/database"
	"github.com/exportdesk-io/exportdesk-ce/internal/email/inbound/connector"
	"github.com/exportdesk-io/exportdesk-ce/internal/email/inbound/filters"
	"github.com/exportdesk-io/exportdesk-ce/internal/score"
	"github.com/exportdesk-io/exportdesk-ce/internal/sync"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one mailbox sync pass over all accounts and sync contacts",
	RunE:  runSync,
}

var syncContactFlag string

func init() {
	syncCmd.Flags().StringVar(&syncContactFlag, "contact", "", "Sync only this contact email")
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := log.New(os.Stderr, "", log.LstdFlags)

	storePath, _, _ := storePaths(cfg)
	db, err := database.OpenAndMigrate(storePath)
	if err != nil {
		return err
	}
	defer db.Close()

	sentiment := classify.NewSentimentScorer()
	if len(cfg.Filters.SentimentPhrases) > 0 {
		sentiment.Reload(cfg.Filters.SentimentPhrases)
	}
	scores := score.NewEngine(db,
		score.WithLogger(logger),
		score.WithSentimentScorer(sentiment),
	)
	coordinator := sync.NewCoordinator(db, connector.DefaultFactory(), scores,
		sync.WithLogger(logger),
		sync.WithWorkers(cfg.Sync.Workers),
		sync.WithFilter(filters.NewMessageFilter(filterConfig(cfg))),
	)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	pairs, err := coordinator.BuildPairs(ctx)
	if err != nil {
		return err
	}
	if syncContactFlag != "" {
		filtered := pairs[:0]
		for _, pair := range pairs {
			if pair.ContactEmail == syncContactFlag {
				filtered = append(filtered, pair)
			}
		}
		pairs = filtered
	}
	if len(pairs) == 0 {
		fmt.Println("Nothing to sync: no active accounts or sync contacts.")
		return nil
	}

	result := coordinator.Run(ctx, pairs)
	fmt.Printf("Sync complete: %d scanned, %d saved, %d filtered, %d duplicates, %d clients created, %d requests created\n",
		result.Scanned, result.Saved, result.SkippedFiltered, result.SkippedDuplicates,
		result.ClientsCreated, result.RequestsCreated)
	for _, contactErr := range result.Errors {
		fmt.Printf("  contact %s: %v\n", contactErr.ContactEmail, contactErr.Err)
	}
	return nil
}
