// Package models holds the stored entities, the request payloads that
// create and update them, and the query schema of each collection.
package models

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/harentsoaR/jobboard-api/internal/apperror"
)

// Payload is a bound and validated request body that knows which
// document fields it sets. Update payloads return only the fields the
// client sent.
type Payload interface {
	Document() (bson.M, error)
}

func setTrimmed(doc bson.M, field string, v *string) {
	if v != nil {
		doc[field] = strings.TrimSpace(*v)
	}
}

func setObjectID(doc bson.M, field string, hex *string) error {
	if hex == nil {
		return nil
	}
	id, err := primitive.ObjectIDFromHex(*hex)
	if err != nil {
		return apperror.InvalidID(field, *hex)
	}
	doc[field] = id
	return nil
}
