package store

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// AttachJobCounts adds jobCount (all jobs, internships included) and
// interCount (internships only) to every parent, grouping jobs by the
// foreign key field that points at the parent.
func AttachJobCounts(ctx context.Context, jobs Repository, parents []bson.M, foreignKey string) ([]bson.M, error) {
	if len(parents) == 0 {
		return parents, nil
	}

	ids := make([]primitive.ObjectID, 0, len(parents))
	for _, p := range parents {
		if id, ok := p["_id"].(primitive.ObjectID); ok {
			ids = append(ids, id)
		}
	}

	rows, err := jobs.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{foreignKey: bson.M{"$in": ids}}}},
		{{Key: "$group", Value: bson.M{
			"_id": bson.M{
				"entity":       "$" + foreignKey,
				"isInternship": bson.M{"$ifNull": bson.A{"$isInternship", false}},
			},
			"count": bson.M{"$sum": 1},
		}}},
	})
	if err != nil {
		return nil, err
	}

	type tally struct{ regular, intern int64 }
	counts := make(map[primitive.ObjectID]*tally)
	for _, row := range rows {
		key := subDocument(row["_id"])
		entity, ok := key["entity"].(primitive.ObjectID)
		if !ok {
			continue
		}
		n, _ := AsInt64(row["count"])
		t, found := counts[entity]
		if !found {
			t = &tally{}
			counts[entity] = t
		}
		if intern, _ := key["isInternship"].(bool); intern {
			t.intern += n
		} else {
			t.regular += n
		}
	}

	for _, p := range parents {
		p["jobCount"] = int64(0)
		p["interCount"] = int64(0)
		id, _ := p["_id"].(primitive.ObjectID)
		if t, found := counts[id]; found {
			p["jobCount"] = t.regular + t.intern
			p["interCount"] = t.intern
		}
	}
	return parents, nil
}

// subDocument accepts the shapes the driver may hand back for an embedded
// document.
func subDocument(v interface{}) bson.M {
	switch d := v.(type) {
	case bson.M:
		return d
	case map[string]interface{}:
		return d
	case bson.D:
		m := bson.M{}
		for _, e := range d {
			m[e.Key] = e.Value
		}
		return m
	default:
		return bson.M{}
	}
}
