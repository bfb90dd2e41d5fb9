package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/vpetrenko/failtriage/internal/config"
	"github.com/vpetrenko/failtriage/internal/knowledge"
)

var kbSyncMigrationsDir string

var kbSyncCmd = &cobra.Command{
	Use:   "kb-sync",
	Short: "Sync the YAML knowledge file into the Postgres knowledge store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cfg.Knowledge.FilePath == "" {
			return fmt.Errorf("FAILTRIAGE_KB_FILE is required for kb-sync")
		}
		if cfg.Knowledge.DatabaseURL == "" {
			return fmt.Errorf("FAILTRIAGE_KB_DATABASE_URL is required for kb-sync")
		}

		yamlStore, err := knowledge.LoadYAMLStore(cfg.Knowledge.FilePath)
		if err != nil {
			return fmt.Errorf("load knowledge file: %w", err)
		}

		if err := knowledge.RunMigrations(cfg.Knowledge.DatabaseURL, kbSyncMigrationsDir); err != nil {
			return err
		}

		pool, err := knowledge.Connect(cmd.Context(), cfg.Knowledge.DatabaseURL, 0)
		if err != nil {
			return err
		}
		defer pool.Close()

		store := knowledge.NewPostgresStore(pool)
		for _, entry := range yamlStore.All() {
			if err := store.UpsertEntry(cmd.Context(), entry); err != nil {
				return err
			}
		}

		slog.Info("knowledge base synced",
			"entries", len(yamlStore.All()), "file", cfg.Knowledge.FilePath)
		return nil
	},
}

func init() {
	kbSyncCmd.Flags().StringVar(&kbSyncMigrationsDir, "migrations", "migrations", "path to the migrations directory")
}
