package cli

import (
	"context"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/harentsoaR/jobboard-api/internal/config"
	"github.com/harentsoaR/jobboard-api/internal/store"
)

var indexesCmd = &cobra.Command{
	Use:   "indexes",
	Short: "Create the unique and sort indexes",
	Long:  "Creates every index the API relies on. Safe to run repeatedly.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(func(ctx context.Context, cfg *config.Config, db *mongo.Database) error {
			if err := store.EnsureIndexes(ctx, db); err != nil {
				return err
			}
			cmd.Printf("Indexes ready on %s\n", cfg.MongoDatabase)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(indexesCmd)
}
