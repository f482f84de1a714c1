package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/exportdesk-io/exportdesk-ce/internal/config"
	"github.com/exportdesk-io/exportdesk-ce/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "exportdesk",
	Short: "ExportDesk CLI - export follow-up and client management",
	Long: `ExportDesk Command Line Interface

Synchronizes mailboxes into the client store, classifies and scores
incoming requests, and manages the sales pipeline, tasks, quotes and
backups from the terminal.`,
	Version: version.String(),
}

var configDirFlag string

func init() {
	rootCmd.PersistentFlags().StringVar(&configDirFlag, "config-dir", ".", "Directory holding config.json")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(leadsCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(dealsCmd)
	rootCmd.AddCommand(quotesCmd)
	rootCmd.AddCommand(exportCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ExportDesk CLI %s\n", version.Full())
	},
}

// loadConfig reads config.json from the configured directory.
func loadConfig() (*config.Config, error) {
	if err := config.Load(configDirFlag); err != nil {
		return nil, err
	}
	return config.Get(), nil
}

// storePaths resolves the store file and backup directory relative to the
// config directory.
func storePaths(cfg *config.Config) (storePath, backupDir, backupConfigPath string) {
	storePath = cfg.Database.Path
	if !filepath.IsAbs(storePath) {
		storePath = filepath.Join(configDirFlag, storePath)
	}
	backupDir = cfg.Database.BackupDir
	if !filepath.IsAbs(backupDir) {
		backupDir = filepath.Join(configDirFlag, backupDir)
	}
	backupConfigPath = filepath.Join(filepath.Dir(storePath), "backup_config.json")
	return storePath, backupDir, backupConfigPath
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
