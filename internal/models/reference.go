package models

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/harentsoaR/jobboard-api/internal/apifeatures"
)

// Departments, locations and levels share one shape: a unique name owned
// by the admin who created it.

var ReferenceSchema = apifeatures.Schema{
	Fields: map[string]apifeatures.FieldType{
		"_id":            apifeatures.ObjectID,
		"name":           apifeatures.String,
		"slug":           apifeatures.String,
		"original_slug":  apifeatures.String,
		"user":           apifeatures.ObjectID,
		"createdAt":      apifeatures.Time,
		"documentNumber": apifeatures.Number,
	},
	Search: []string{"name"},
}

type ReferenceCreate struct {
	Name string `json:"name" form:"name" binding:"required"`
}

func (r *ReferenceCreate) Document() (bson.M, error) {
	return bson.M{"name": strings.TrimSpace(r.Name)}, nil
}

type ReferenceUpdate struct {
	Name *string `json:"name" form:"name" binding:"omitempty,min=1"`
}

func (r *ReferenceUpdate) Document() (bson.M, error) {
	doc := bson.M{}
	setTrimmed(doc, "name", r.Name)
	return doc, nil
}
