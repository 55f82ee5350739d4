package store

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Ref describes one reference field to expand after the primary query:
// the ObjectId stored under Field is replaced with the referenced document
// projected to Select (plus _id).
type Ref struct {
	Field  string
	From   Repository
	Select []string
}

// Populate performs one $in lookup per ref and joins the results in place.
// Ids with no matching document are left as-is.
func Populate(ctx context.Context, docs []bson.M, refs []Ref) error {
	for _, ref := range refs {
		ids := collectIDs(docs, ref.Field)
		if len(ids) == 0 {
			continue
		}

		var projection bson.M
		if len(ref.Select) > 0 {
			projection = bson.M{}
			for _, f := range ref.Select {
				projection[f] = 1
			}
		}
		related, err := ref.From.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, FindOptions{Projection: projection})
		if err != nil {
			return err
		}

		byID := make(map[primitive.ObjectID]bson.M, len(related))
		for _, r := range related {
			if id, ok := r["_id"].(primitive.ObjectID); ok {
				byID[id] = r
			}
		}
		for _, doc := range docs {
			if id, ok := doc[ref.Field].(primitive.ObjectID); ok {
				if r, found := byID[id]; found {
					doc[ref.Field] = r
				}
			}
		}
	}
	return nil
}

func collectIDs(docs []bson.M, field string) []primitive.ObjectID {
	seen := make(map[primitive.ObjectID]struct{})
	ids := make([]primitive.ObjectID, 0)
	for _, doc := range docs {
		id, ok := doc[field].(primitive.ObjectID)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
