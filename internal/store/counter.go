package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
)

// DocumentNumberField holds the collection-scoped sequence number.
const DocumentNumberField = "documentNumber"

// NextDocumentNumber returns max(documentNumber)+1, or 1 for an empty
// collection. The read and the later insert are not atomic: two concurrent
// creates can read the same maximum, and the unique index on the field
// makes the second insert fail with a duplicate key.
func NextDocumentNumber(ctx context.Context, repo Repository) (int64, error) {
	last, err := repo.FindOne(ctx, bson.M{DocumentNumberField: bson.M{"$exists": true}}, FindOptions{
		Sort:       bson.D{{Key: DocumentNumberField, Value: -1}},
		Projection: bson.M{DocumentNumberField: 1},
	})
	if errors.Is(err, ErrNotFound) {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	n, ok := AsInt64(last[DocumentNumberField])
	if !ok {
		return 1, nil
	}
	return n + 1, nil
}

// AsInt64 normalizes the numeric types the driver may decode into.
func AsInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
