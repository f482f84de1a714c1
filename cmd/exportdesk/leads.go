package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/exportdesk-io/exportdesk-ce/internal/database"
	"github.com/exportdesk-io/exportdesk-ce/internal/export"
	"github.com/exportdesk-io/exportdesk-ce/internal/leads"
	"github.com/exportdesk-io/exportdesk-ce/internal/models"
	"github.com/exportdesk-io/exportdesk-ce/internal/repository"
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Discover prospective buyers or importers via web search",
	RunE:  runLeads,
}

var (
	leadsProductFlag   string
	leadsCountriesFlag []string
	leadsImporterFlag  string
	leadsSaveFlag      bool
	leadsExportFlag    string
)

func init() {
	leadsCmd.Flags().StringVar(&leadsProductFlag, "product", "", "Product name for buyer search")
	leadsCmd.Flags().StringSliceVar(&leadsCountriesFlag, "country", nil, "Target countries for buyer search (repeatable)")
	leadsCmd.Flags().StringVar(&leadsImporterFlag, "importer-of", "", "Exporter company name for importer search")
	leadsCmd.Flags().BoolVar(&leadsSaveFlag, "save", false, "Append candidates to the client list")
	leadsCmd.Flags().StringVar(&leadsExportFlag, "export", "", "Write candidates to this file (.csv or .xlsx)")
}

func runLeads(cmd *cobra.Command, args []string) error {
	if (leadsProductFlag == "") == (leadsImporterFlag == "") {
		return fmt.Errorf("exactly one of --product or --importer-of is required")
	}

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

	serp := leads.NewSerpClient(cfg.Search.APIKey, leads.WithSerpLogger(logger))
	discovery := leads.NewDiscovery(serp, repository.NewClientRepository(db),
		leads.WithDiscoveryLogger(logger),
		leads.WithMaxCandidates(cfg.Search.MaxCandidates),
	)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var list []*models.LeadCandidate
	if leadsProductFlag != "" {
		list, err = discovery.Buyers(ctx, leadsProductFlag, leadsCountriesFlag)
		if err != nil {
			return fmt.Errorf("buyer search failed: %w (check the API key in config.json)", err)
		}
	} else {
		list, err = discovery.Importers(ctx, leadsImporterFlag)
		if err != nil {
			return fmt.Errorf("importer search failed: %w (check the API key in config.json)", err)
		}
	}

	if len(list) == 0 {
		fmt.Println("No candidates found.")
		return nil
	}
	for _, c := range list {
		line := fmt.Sprintf("%3d  %s", c.QualityScore, c.CompanyName)
		if c.Email != "" {
			line += "  <" + c.Email + ">"
		}
		if c.Country != "" {
			line += "  (" + c.Country + ")"
		}
		fmt.Println(line)
	}

	if leadsExportFlag != "" {
		format, err := export.ParseFormat(strings.TrimPrefix(strings.ToLower(
			strings.TrimSpace(fileExt(leadsExportFlag))), "."))
		if err != nil {
			return err
		}
		if err := export.Export(export.LeadsTable(list), format, leadsExportFlag); err != nil {
			return err
		}
		fmt.Printf("Wrote %d candidates to %s\n", len(list), leadsExportFlag)
	}

	if leadsSaveFlag {
		created, err := discovery.AppendToClients(ctx, list)
		if err != nil {
			return err
		}
		fmt.Printf("Added %d candidates to the client list.\n", created)
	}
	return nil
}

func fileExt(path string) string {
	if idx := strings.LastIndex(path, "."); idx >= 0 {
		return path[idx:]
	}
	return ""
}
