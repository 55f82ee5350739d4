package handlers

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/harentsoaR/jobboard-api/internal/apperror"
	"github.com/harentsoaR/jobboard-api/internal/store"
)

// WithJobCounts finishes a deferred list by attaching the job counts of
// each parent, grouped by foreignKey on the jobs collection.
func (h *Handler) WithJobCounts(foreignKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, ok := c.Get(ResultKey)
		result, _ := v.(*ListResult)
		if !ok || result == nil {
			apperror.Abort(c, errors.New("job counts: no deferred list result"))
			return
		}
		docs, err := store.AttachJobCounts(c.Request.Context(), h.repos.Jobs, result.Docs, foreignKey)
		if err != nil {
			apperror.Abort(c, err)
			return
		}
		respondList(c, result.Total, docs)
	}
}

// JobCounts is the list hook variant of WithJobCounts.
func (h *Handler) JobCounts(foreignKey string) func(ctx context.Context, docs []bson.M) ([]bson.M, error) {
	return func(ctx context.Context, docs []bson.M) ([]bson.M, error) {
		return store.AttachJobCounts(ctx, h.repos.Jobs, docs, foreignKey)
	}
}
