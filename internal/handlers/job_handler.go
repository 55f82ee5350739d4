package handlers

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/harentsoaR/jobboard-api/internal/apperror"
	"github.com/harentsoaR/jobboard-api/internal/store"
)

// ResolveDocumentNumbers turns location, department and level query values
// given as comma lists of document numbers into an _id filter for the job
// list. Numbers that match nothing make the list empty.
func (h *Handler) ResolveDocumentNumbers() gin.HandlerFunc {
	refs := []struct {
		field string
		repo  store.Repository
	}{
		{"location", h.repos.Locations},
		{"department", h.repos.Departments},
		{"level", h.repos.Levels},
	}
	return func(c *gin.Context) {
		query := c.Request.URL.Query()
		merged := bson.M{}
		for _, ref := range refs {
			raw, ok := query[ref.field]
			if !ok {
				continue
			}
			query.Del(ref.field)
			ids, err := resolveNumbers(c.Request.Context(), ref.repo, raw[len(raw)-1])
			if err != nil {
				apperror.Abort(c, err)
				return
			}
			merged[ref.field] = bson.M{"$in": ids}
		}
		if len(merged) > 0 {
			c.Request.URL.RawQuery = query.Encode()
			c.Set(MergeFilterKey, merged)
		}
		c.Next()
	}
}

func resolveNumbers(ctx context.Context, repo store.Repository, raw string) ([]primitive.ObjectID, error) {
	ids := make([]primitive.ObjectID, 0)
	numbers := make(bson.A, 0)
	for _, part := range strings.Split(raw, ",") {
		if n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64); err == nil {
			numbers = append(numbers, n)
		}
	}
	if len(numbers) == 0 {
		return ids, nil
	}
	docs, err := repo.Find(ctx, bson.M{store.DocumentNumberField: bson.M{"$in": numbers}},
		store.FindOptions{Projection: bson.M{"_id": 1}})
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		if id, ok := doc["_id"].(primitive.ObjectID); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

