package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names.
const (
	Users       = "users"
	Categories  = "categories"
	Departments = "departments"
	Locations   = "locations"
	Levels      = "levels"
	Jobs        = "jobs"
)

// Named lists every collection whose name is unique.
var Named = []string{Categories, Departments, Locations, Levels, Jobs}

// EnsureIndexes creates the unique and sort indexes the API relies on.
// It is idempotent.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	common := func() []mongo.IndexModel {
		return []mongo.IndexModel{
			{Keys: bson.D{{Key: DocumentNumberField, Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
			{Keys: bson.D{{Key: "createdAt", Value: -1}, {Key: "name", Value: 1}}},
			{Keys: bson.D{{Key: "slug", Value: 1}}},
		}
	}

	for _, name := range Named {
		models := append(common(),
			mongo.IndexModel{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
			mongo.IndexModel{Keys: bson.D{{Key: "slug", Value: 1}, {Key: "user", Value: 1}}},
		)
		if name == Jobs {
			models = append(models,
				mongo.IndexModel{Keys: bson.D{{Key: "location", Value: 1}}},
				mongo.IndexModel{Keys: bson.D{{Key: "department", Value: 1}}},
				mongo.IndexModel{Keys: bson.D{{Key: "level", Value: 1}}},
				mongo.IndexModel{Keys: bson.D{{Key: "isInternship", Value: 1}}},
			)
		}
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("indexes %s: %w", name, err)
		}
	}

	userModels := append(common(),
		mongo.IndexModel{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		mongo.IndexModel{Keys: bson.D{{Key: "name", Value: 1}, {Key: "phone", Value: 1}}},
		mongo.IndexModel{Keys: bson.D{{Key: "passwordResetToken", Value: 1}}, Options: options.Index().SetSparse(true)},
	)
	if _, err := db.Collection(Users).Indexes().CreateMany(ctx, userModels); err != nil {
		return fmt.Errorf("indexes %s: %w", Users, err)
	}
	return nil
}
