package cli

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"quiz-engine/internal/catalog"
	"quiz-engine/internal/config"
	"quiz-engine/internal/infra/postgres"
)

// NewSeedCmd loads a catalog file into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	var (
		file    string
		flatten bool
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Upload a question catalog into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			log := config.NewLogger(cfg.Log)

			c, err := catalog.Load(file)
			if err != nil {
				return err
			}
			pool, err := pgxpool.Connect(cmd.Context(), cfg.Postgres.URL)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer pool.Close()
			return seedCatalog(cmd.Context(), postgres.NewQuestionStore(pool), c, flatten, log)
		},
	}
	cmd.Flags().StringVar(&file, "file", "config/quizzes.json", "catalog file (JSON or YAML)")
	cmd.Flags().BoolVar(&flatten, "flatten", false, "also fill the questions and all_questions tables")
	return cmd
}

func seedCatalog(ctx context.Context, store *postgres.QuestionStore, c catalog.Catalog, flatten bool, log logrus.FieldLogger) error {
	for _, category := range c.Skipped {
		log.WithField("category", category).Warn("skipping category without a questions array")
	}
	for _, category := range c.Categories() {
		doc := c.Documents[category]
		if err := store.UpsertDocument(ctx, category, doc); err != nil {
			return err
		}
		if flatten {
			if err := store.UpsertQuestions(ctx, category, doc.Questions); err != nil {
				return err
			}
		}
		log.WithFields(logrus.Fields{"category": category, "questions": len(doc.Questions)}).Info("category uploaded")
	}
	return nil
}
