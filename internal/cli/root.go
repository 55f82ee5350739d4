// Package cli is the jobboardctl admin tool: maintenance tasks that have
// no HTTP route.
package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/harentsoaR/jobboard-api/internal/config"
	"github.com/harentsoaR/jobboard-api/internal/store"
)

const commandTimeout = 30 * time.Second

var rootCmd = &cobra.Command{
	Use:          "jobboardctl",
	Short:        "Administration tool for the job board API",
	Long:         "jobboardctl prepares the database and bootstraps accounts the API cannot create itself",
	SilenceUsage: true,
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

// withDatabase loads the configuration, connects, and runs fn against the
// configured database.
func withDatabase(fn func(ctx context.Context, cfg *config.Config, db *mongo.Database) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	client, err := store.Connect(ctx, cfg.MongoURI)
	if err != nil {
		return err
	}
	defer client.Disconnect(context.Background())
	return fn(ctx, cfg, client.Database(cfg.MongoDatabase))
}
