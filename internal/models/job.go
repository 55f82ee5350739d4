package models

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/harentsoaR/jobboard-api/internal/apifeatures"
)

var JobSchema = apifeatures.Schema{
	Fields: map[string]apifeatures.FieldType{
		"_id":            apifeatures.ObjectID,
		"name":           apifeatures.String,
		"slug":           apifeatures.String,
		"original_slug":  apifeatures.String,
		"location":       apifeatures.ObjectID,
		"department":     apifeatures.ObjectID,
		"level":          apifeatures.ObjectID,
		"isInternship":   apifeatures.Bool,
		"user":           apifeatures.ObjectID,
		"createdAt":      apifeatures.Time,
		"documentNumber": apifeatures.Number,
	},
	Search: []string{"name"},
}

type JobCreate struct {
	Name         string `json:"name" binding:"required"`
	Location     string `json:"location" binding:"required,objectid"`
	Department   string `json:"department" binding:"required,objectid"`
	Level        string `json:"level" binding:"required,objectid"`
	IsInternship bool   `json:"isInternship"`
}

func (r *JobCreate) Document() (bson.M, error) {
	doc := bson.M{
		"name":         strings.TrimSpace(r.Name),
		"isInternship": r.IsInternship,
	}
	for field, hex := range map[string]string{"location": r.Location, "department": r.Department, "level": r.Level} {
		if err := setObjectID(doc, field, &hex); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

type JobUpdate struct {
	Name         *string `json:"name" binding:"omitempty,min=1"`
	Location     *string `json:"location" binding:"omitempty,objectid"`
	Department   *string `json:"department" binding:"omitempty,objectid"`
	Level        *string `json:"level" binding:"omitempty,objectid"`
	IsInternship *bool   `json:"isInternship"`
}

func (r *JobUpdate) Document() (bson.M, error) {
	doc := bson.M{}
	setTrimmed(doc, "name", r.Name)
	if err := setObjectID(doc, "location", r.Location); err != nil {
		return nil, err
	}
	if err := setObjectID(doc, "department", r.Department); err != nil {
		return nil, err
	}
	if err := setObjectID(doc, "level", r.Level); err != nil {
		return nil, err
	}
	if r.IsInternship != nil {
		doc["isInternship"] = *r.IsInternship
	}
	return doc, nil
}
