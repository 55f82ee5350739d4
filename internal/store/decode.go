package store

import (
	"go.mongodb.org/mongo-driver/bson"
)

// Decode converts a loose document into a typed model through a bson
// round trip, honoring the model's bson tags.
func Decode(doc bson.M, v interface{}) error {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, v)
}

// Strip removes fields that must never leave the service.
func Strip(doc bson.M, hidden []string) bson.M {
	for _, f := range hidden {
		delete(doc, f)
	}
	return doc
}
