package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/harentsoaR/jobboard-api/internal/apperror"
	"github.com/harentsoaR/jobboard-api/internal/config"
	"github.com/harentsoaR/jobboard-api/internal/models"
	"github.com/harentsoaR/jobboard-api/internal/store"
	"github.com/harentsoaR/jobboard-api/internal/utils"
)

var devInput models.SignupRequest

var createDevCmd = &cobra.Command{
	Use:   "create-dev",
	Short: "Create a dev account",
	Long:  "Creates a user with the dev role. No API route can grant that role.",
	RunE: func(cmd *cobra.Command, args []string) error {
		devInput.PasswordConfirm = devInput.Password
		return withDatabase(func(ctx context.Context, cfg *config.Config, db *mongo.Database) error {
			users := store.NewCollection(db, store.Users, cfg.MongoTransactions)
			doc, err := createDev(ctx, users, devInput, time.Now())
			if err != nil {
				return err
			}
			cmd.Printf("Created dev %s (%s)\n", doc["email"], doc["_id"])
			return nil
		})
	},
}

func init() {
	f := createDevCmd.Flags()
	f.StringVar(&devInput.Name, "name", "", "display name")
	f.StringVar(&devInput.Email, "email", "", "login email")
	f.StringVar(&devInput.Phone, "phone", "", "phone number")
	f.StringVar(&devInput.Password, "password", "", "password, at least 8 characters")
	for _, name := range []string{"name", "email", "phone", "password"} {
		_ = createDevCmd.MarkFlagRequired(name)
	}
	rootCmd.AddCommand(createDevCmd)
}

var devValidator = func() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	return v
}()

// createDev validates the signup fields and stores an active dev user.
func createDev(ctx context.Context, users store.Repository, in models.SignupRequest, now time.Time) (bson.M, error) {
	if err := devValidator.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return nil, apperror.FromValidator(verrs)
		}
		return nil, err
	}

	doc, err := in.Document()
	if err != nil {
		return nil, err
	}
	hashed, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	n, err := store.NextDocumentNumber(ctx, users)
	if err != nil {
		return nil, err
	}
	slug := utils.Slug(strings.TrimSpace(in.Name))
	doc["role"] = models.RoleDev
	doc["password"] = hashed
	doc["slug"] = slug
	doc["original_slug"] = slug
	doc["createdAt"] = now.UTC()
	doc[store.DocumentNumberField] = n
	return users.Insert(ctx, doc)
}
