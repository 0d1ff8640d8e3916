package main

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/chat-relay/backend/internal/config"
	"github.com/zhouzirui/chat-relay/backend/internal/db"
	"github.com/zhouzirui/chat-relay/backend/internal/model/persona"
	"github.com/zhouzirui/chat-relay/backend/internal/service/qna"
)

func newMigrateCmd() *cobra.Command {
	var (
		seedPath        string
		defaultPersonas bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update database tables",
		Long:  "Migrates the chat tables, optionally seeds personas, and creates the QnA tables when FAQ_DATABASE_URL is set.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd, seedPath, defaultPersonas)
		},
	}

	cmd.Flags().StringVar(&seedPath, "seed", "", "YAML file with personas to upsert")
	cmd.Flags().BoolVar(&defaultPersonas, "default-personas", false, "upsert the built-in personas")
	return cmd
}

func runMigrate(cmd *cobra.Command, seedPath string, defaultPersonas bool) error {
	out := cmd.OutOrStdout()
	ctx := cmd.Context()
	cfg := config.LoadDatabase()

	gormDB, err := db.Connect(cfg.URL)
	if err != nil {
		return err
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		defer sqlDB.Close()
	}

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))

	var items []persona.Persona
	switch {
	case seedPath != "":
		items, err = persona.LoadSeedFile(seedPath)
		if err != nil {
			return err
		}
	case defaultPersonas:
		items = persona.Seed()
	}
	if len(items) > 0 {
		if err := db.SeedPersonas(ctx, gormDB, items); err != nil {
			return err
		}
		fmt.Fprintf(out, "Seeded %d personas:", len(items))
		for _, p := range items {
			fmt.Fprintf(out, " %q", p.Name)
		}
		fmt.Fprintln(out)
	}

	if cfg.FAQURL != "" {
		pool, err := pgxpool.New(ctx, cfg.FAQURL)
		if err != nil {
			return fmt.Errorf("connect to FAQ database: %w", err)
		}
		defer pool.Close()
		if err := qna.NewRepository(pool).EnsureSchema(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "QnA tables ready")
	}
	return nil
}
