package main

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/xeonx/timeago"

	"github.com/exportdesk-io/exportdesk-ce/internal/database"
	"github.com/exportdesk-io/exportdesk-ce/internal/export"
	"github.com/exportdesk-io/exportdesk-ce/internal/models"
	"github.com/exportdesk-io/exportdesk-ce/internal/pipeline"
	"github.com/exportdesk-io/exportdesk-ce/internal/quotes"
	"github.com/exportdesk-io/exportdesk-ce/internal/repository"
	"github.com/exportdesk-io/exportdesk-ce/internal/tasks"
)

// openStore loads config and opens the migrated store for a one-shot
// command.
func openStore() (*sql.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	storePath, _, _ := storePaths(cfg)
	return database.OpenAndMigrate(storePath)
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

var tasksCmd = &cobra.Command{
	Use:   "tasks [upcoming|today|overdue]",
	Short: "List follow-up tasks",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTasks,
}

var tasksCompleteFlag int

func init() {
	tasksCmd.Flags().IntVar(&tasksCompleteFlag, "complete", 0, "Mark the given task id completed")
}

func runTasks(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	engine := tasks.NewEngine(db)
	ctx := cmdContext(cmd)

	if tasksCompleteFlag > 0 {
		nextID, err := engine.Complete(ctx, tasksCompleteFlag)
		if err != nil {
			return err
		}
		if nextID > 0 {
			fmt.Printf("Task %d completed; next occurrence created as task %d.\n", tasksCompleteFlag, nextID)
		} else {
			fmt.Printf("Task %d completed.\n", tasksCompleteFlag)
		}
		return nil
	}

	mode := "upcoming"
	if len(args) > 0 {
		mode = args[0]
	}
	var list []*models.Task
	switch mode {
	case "upcoming":
		list, err = engine.Upcoming(ctx, 0)
	case "today":
		list, err = engine.DueToday(ctx)
	case "overdue":
		list, err = engine.Overdue(ctx)
	default:
		return fmt.Errorf("unknown task listing %q (want upcoming, today or overdue)", mode)
	}
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No tasks.")
		return nil
	}
	for _, task := range list {
		due := "no due date"
		if task.DueDate != nil {
			due = fmt.Sprintf("due %s (%s)",
				task.DueDate.Format(models.UserDateLayout), timeago.English.Format(*task.DueDate))
		}
		id := strconv.Itoa(task.ID)
		if task.ID == 0 {
			id = "  -" // projected occurrence of a recurring task
		}
		fmt.Printf("%4s  [%s] %-8s %s — %s\n", id, task.Status, task.Priority, task.Title, due)
	}
	return nil
}

var dealsCmd = &cobra.Command{
	Use:   "deals [totals|forecast|conversion]",
	Short: "Show pipeline reports",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDeals,
}

var dealsMonthsFlag int

func init() {
	dealsCmd.Flags().IntVar(&dealsMonthsFlag, "months", 6, "Forecast horizon in months")
}

func runDeals(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	manager := pipeline.NewManager(db)
	ctx := cmdContext(cmd)

	mode := "totals"
	if len(args) > 0 {
		mode = args[0]
	}
	switch mode {
	case "totals":
		totals, err := manager.Totals(ctx)
		if err != nil {
			return err
		}
		for _, t := range totals {
			fmt.Printf("%-12s %3d deals  %12.2f total  %12.2f weighted\n",
				t.Stage, t.Count, t.TotalValue, t.WeightedValue)
		}
	case "forecast":
		forecast, err := manager.Forecast(ctx, dealsMonthsFlag)
		if err != nil {
			return err
		}
		for _, month := range forecast {
			fmt.Printf("%s  closed %12.2f  weighted %12.2f  total %12.2f\n",
				month.Month, month.Closed, month.Weighted, month.Total)
		}
	case "conversion":
		report, err := manager.Conversion(ctx)
		if err != nil {
			return err
		}
		for _, stage := range report.Stages {
			fmt.Printf("%-12s -> %-12s %5.1f%%\n", stage.From, stage.To, stage.Rate*100)
		}
		fmt.Printf("Overall conversion: %.1f%%  Win rate: %.1f%%\n",
			report.OverallConversion*100, report.WinRate*100)
	default:
		return fmt.Errorf("unknown pipeline report %q (want totals, forecast or conversion)", mode)
	}
	return nil
}

var quotesCmd = &cobra.Command{
	Use:   "quotes <client-id>",
	Short: "List a client's quotes with profitability",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuotes,
}

func runQuotes(cmd *cobra.Command, args []string) error {
	clientID, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("client id must be a number: %w", err)
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	engine := quotes.NewEngine(db)
	ctx := cmdContext(cmd)

	list, err := engine.ListByClient(ctx, clientID)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No quotes.")
		return nil
	}
	for _, quote := range list {
		line := fmt.Sprintf("%s  %-12s %12.2f %s", quote.QuoteNumber, quote.Status,
			quote.TotalAmount, quote.Currency)
		profit, err := engine.Profitability(ctx, quote.ID)
		if err == nil {
			if profit.CostDataMissing {
				line += "  (cost data missing)"
			} else {
				line += fmt.Sprintf("  profit %.2f (%.1f%%)", profit.Profit, profit.ProfitMargin*100)
			}
		}
		fmt.Println(line)
	}
	return nil
}

var exportCmd = &cobra.Command{
	Use:   "export <clients|deals> <path>",
	Short: "Export a report to csv or xlsx",
	Args:  cobra.ExactArgs(2),
	RunE:  runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmdContext(cmd)
	path := args[1]
	format, err := export.ParseFormat(strings.TrimPrefix(fileExt(path), "."))
	if err != nil {
		return err
	}

	var table export.Table
	switch args[0] {
	case "clients":
		clients, err := repository.NewClientRepository(db).List(ctx)
		if err != nil {
			return err
		}
		table = export.ClientsTable(clients)
	case "deals":
		deals, err := repository.NewDealRepository(db).ListActive(ctx)
		if err != nil {
			return err
		}
		table = export.DealsTable(deals)
	default:
		return fmt.Errorf("unknown export subject %q (want clients or deals)", args[0])
	}

	if err := export.Export(table, format, path); err != nil {
		return err
	}
	fmt.Printf("Wrote %d rows to %s\n", len(table.Rows), path)
	return nil
}
