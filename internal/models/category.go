package models

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/harentsoaR/jobboard-api/internal/apifeatures"
)

var CategorySchema = apifeatures.Schema{
	Fields: map[string]apifeatures.FieldType{
		"_id":            apifeatures.ObjectID,
		"name":           apifeatures.String,
		"slug":           apifeatures.String,
		"original_slug":  apifeatures.String,
		"description":    apifeatures.String,
		"image":          apifeatures.String,
		"imageCover":     apifeatures.String,
		"images":         apifeatures.String,
		"user":           apifeatures.ObjectID,
		"createdAt":      apifeatures.Time,
		"documentNumber": apifeatures.Number,
	},
	Search: []string{"name", "description"},
}

// CategoryCreate is sent as multipart form data; the image fields come
// from the uploaded files.
type CategoryCreate struct {
	Name        string `json:"name" form:"name" binding:"required"`
	Description string `json:"description" form:"description" binding:"required"`
}

func (r *CategoryCreate) Document() (bson.M, error) {
	return bson.M{
		"name":        strings.TrimSpace(r.Name),
		"description": strings.TrimSpace(r.Description),
	}, nil
}

type CategoryUpdate struct {
	Name        *string `json:"name" form:"name" binding:"omitempty,min=1"`
	Description *string `json:"description" form:"description" binding:"omitempty,min=1"`
}

func (r *CategoryUpdate) Document() (bson.M, error) {
	doc := bson.M{}
	setTrimmed(doc, "name", r.Name)
	setTrimmed(doc, "description", r.Description)
	return doc, nil
}
