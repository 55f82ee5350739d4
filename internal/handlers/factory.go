package handlers

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/harentsoaR/jobboard-api/internal/apifeatures"
	"github.com/harentsoaR/jobboard-api/internal/apperror"
	"github.com/harentsoaR/jobboard-api/internal/images"
	"github.com/harentsoaR/jobboard-api/internal/middleware"
	"github.com/harentsoaR/jobboard-api/internal/models"
	"github.com/harentsoaR/jobboard-api/internal/store"
)

const (
	// MergeFilterKey holds a filter set by route pre-processing.
	MergeFilterKey = "mergeFilter"
	// ResultKey holds a deferred list result for the next handler.
	ResultKey = "listResult"
)

// Resource is one collection exposed through the generic handlers.
type Resource struct {
	Repo       store.Repository
	Schema     apifeatures.Schema
	BaseFilter bson.M
	Populate   []store.Ref
	// Owned resources record the creating user.
	Owned     bool
	NewCreate func() models.Payload
	NewUpdate func() models.Payload
	Images    *images.Pipeline
}

type ListOptions struct {
	Filter bson.M
	// Sort replaces the schema default sort.
	Sort string
	// Populate replaces the resource refs when set.
	Populate []store.Ref
	// Defer stores the result under ResultKey and calls the next handler.
	Defer bool
	After func(ctx context.Context, docs []bson.M) ([]bson.M, error)
}

// ListResult is what a deferred list leaves for the next handler.
type ListResult struct {
	Total int64
	Docs  []bson.M
}

func (r *Resource) features(c *gin.Context, opts ListOptions) *apifeatures.Features {
	schema := r.Schema
	if opts.Sort != "" {
		schema.DefaultSort = opts.Sort
	}
	return apifeatures.New(schema, c.Request.URL.Query()).Filter().Search().Sort().LimitFields()
}

func (r *Resource) refs(opts ListOptions) []store.Ref {
	if opts.Populate != nil {
		return opts.Populate
	}
	return r.Populate
}

func mergeFilter(c *gin.Context) bson.M {
	if v, ok := c.Get(MergeFilterKey); ok {
		if f, ok := v.(bson.M); ok {
			return f
		}
	}
	return nil
}

func (h *Handler) GetAll(res *Resource, opts ListOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		f := res.features(c, opts)
		if err := f.Err(); err != nil {
			apperror.Abort(c, err)
			return
		}
		filter := f.FilterDoc(res.BaseFilter, mergeFilter(c), opts.Filter)

		total, err := res.Repo.Count(ctx, filter)
		if err != nil {
			apperror.Abort(c, err)
			return
		}
		docs, err := res.Repo.Find(ctx, filter, f.Paginate().FindOptions())
		if err != nil {
			apperror.Abort(c, err)
			return
		}
		if docs, err = h.finishList(ctx, res, opts, docs); err != nil {
			apperror.Abort(c, err)
			return
		}

		if opts.Defer {
			c.Set(ResultKey, &ListResult{Total: total, Docs: docs})
			c.Next()
			return
		}
		respondList(c, total, docs)
	}
}

// GetAllNoPagination returns the raw array of every matching document.
func (h *Handler) GetAllNoPagination(res *Resource, opts ListOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		f := res.features(c, opts)
		if err := f.Err(); err != nil {
			apperror.Abort(c, err)
			return
		}
		filter := f.FilterDoc(res.BaseFilter, mergeFilter(c), opts.Filter)

		docs, err := res.Repo.Find(ctx, filter, f.FindOptions())
		if err != nil {
			apperror.Abort(c, err)
			return
		}
		if docs, err = h.finishList(ctx, res, opts, docs); err != nil {
			apperror.Abort(c, err)
			return
		}
		c.JSON(http.StatusOK, docs)
	}
}

func (h *Handler) finishList(ctx context.Context, res *Resource, opts ListOptions, docs []bson.M) ([]bson.M, error) {
	if err := store.Populate(ctx, docs, res.refs(opts)); err != nil {
		return nil, err
	}
	if opts.After != nil {
		return opts.After(ctx, docs)
	}
	return docs, nil
}

func (h *Handler) GetOne(res *Resource) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id, err := paramID(c)
		if err != nil {
			apperror.Abort(c, err)
			return
		}
		doc, err := res.Repo.FindOne(ctx, apifeatures.Combine(bson.M{"_id": id}, res.BaseFilter), store.FindOptions{})
		if err != nil {
			apperror.Abort(c, err)
			return
		}
		docs := []bson.M{doc}
		if err := store.Populate(ctx, docs, res.Populate); err != nil {
			apperror.Abort(c, err)
			return
		}
		respondDocument(c, http.StatusOK, "", store.Strip(doc, res.Schema.Hidden))
	}
}

func (h *Handler) CreateOne(res *Resource) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		payload := res.NewCreate()
		if err := c.ShouldBind(payload); err != nil {
			apperror.Abort(c, err)
			return
		}
		doc, err := payload.Document()
		if err != nil {
			apperror.Abort(c, err)
			return
		}

		actor := middleware.CurrentUser(c)
		var batch *images.Batch
		if res.Images != nil {
			owner := ""
			if actor != nil {
				owner = actor.ID.Hex()
			}
			if batch, err = processUploads(c, res.Images, owner); err != nil {
				apperror.Abort(c, err)
				return
			}
			if err := batch.CheckRequired(); err != nil {
				apperror.Abort(c, err)
				return
			}
			for k, v := range batch.Values() {
				doc[k] = v
			}
		}

		if err := h.prepareForInsert(ctx, res, doc, actor); err != nil {
			apperror.Abort(c, err)
			return
		}
		created, err := h.insert(ctx, res, doc, batch)
		if err != nil {
			apperror.Abort(c, err)
			return
		}
		respondDocument(c, http.StatusCreated, "Created successfully", store.Strip(created, res.Schema.Hidden))
	}
}

// insert stores doc, and the batch images inside the same transaction.
func (h *Handler) insert(ctx context.Context, res *Resource, doc bson.M, batch *images.Batch) (bson.M, error) {
	if batch == nil || batch.Empty() {
		return res.Repo.Insert(ctx, doc)
	}
	var created bson.M
	err := res.Repo.WithTransaction(ctx, func(tx context.Context) error {
		var err error
		if created, err = res.Repo.Insert(tx, doc); err != nil {
			return err
		}
		return batch.Save(tx)
	})
	if err != nil {
		batch.Discard(ctx)
		return nil, err
	}
	return created, nil
}

func (h *Handler) UpdateOne(res *Resource) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := paramID(c)
		if err != nil {
			apperror.Abort(c, err)
			return
		}
		payload := res.NewUpdate()
		if err := c.ShouldBind(payload); err != nil {
			apperror.Abort(c, err)
			return
		}
		doc, err := payload.Document()
		if err != nil {
			apperror.Abort(c, err)
			return
		}

		updated, err := h.update(c, res, id, doc)
		if err != nil {
			apperror.Abort(c, err)
			return
		}
		respondDocument(c, http.StatusOK, "Updated successfully", store.Strip(updated, res.Schema.Hidden))
	}
}

// update applies doc and any uploaded images to the record. Replaced
// images are removed only after the write committed.
func (h *Handler) update(c *gin.Context, res *Resource, id primitive.ObjectID, doc bson.M) (bson.M, error) {
	ctx := c.Request.Context()
	var batch *images.Batch
	if res.Images != nil {
		var err error
		if batch, err = processUploads(c, res.Images, id.Hex()); err != nil {
			return nil, err
		}
		for k, v := range batch.Values() {
			doc[k] = v
		}
	}
	if len(doc) == 0 {
		return nil, apperror.BadRequest("No update fields provided")
	}
	if err := h.prepareForUpdate(ctx, res, doc, middleware.CurrentUser(c)); err != nil {
		return nil, err
	}

	filter := apifeatures.Combine(bson.M{"_id": id}, res.BaseFilter)
	if batch == nil || batch.Empty() {
		if _, err := res.Repo.FindOne(ctx, filter, store.FindOptions{Projection: bson.M{"_id": 1}}); err != nil {
			return nil, err
		}
		return res.Repo.UpdateByID(ctx, id, doc)
	}

	var previous, updated bson.M
	err := res.Repo.WithTransaction(ctx, func(tx context.Context) error {
		var err error
		if previous, err = res.Repo.FindOne(tx, filter, store.FindOptions{}); err != nil {
			return err
		}
		if updated, err = res.Repo.UpdateByID(tx, id, doc); err != nil {
			return err
		}
		return batch.Save(tx)
	})
	if err != nil {
		batch.Discard(ctx)
		return nil, err
	}
	batch.RemoveReplaced(ctx, previous, updated)
	return updated, nil
}

func (h *Handler) DeleteOne(res *Resource) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id, err := paramID(c)
		if err != nil {
			apperror.Abort(c, err)
			return
		}
		doc, err := res.Repo.FindOne(ctx, apifeatures.Combine(bson.M{"_id": id}, res.BaseFilter), store.FindOptions{})
		if err != nil {
			apperror.Abort(c, err)
			return
		}
		if res.Images != nil {
			res.Images.RemoveAll(ctx, doc)
		}
		if _, err := res.Repo.DeleteByID(ctx, id); err != nil {
			apperror.Abort(c, err)
			return
		}
		respondDeleted(c)
	}
}

// DeleteAll removes every record the resource exposes, with their images.
func (h *Handler) DeleteAll(res *Resource) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		filter := apifeatures.Combine(res.BaseFilter)
		if res.Images != nil {
			docs, err := res.Repo.Find(ctx, filter, store.FindOptions{})
			if err != nil {
				apperror.Abort(c, err)
				return
			}
			for _, doc := range docs {
				res.Images.RemoveAll(ctx, doc)
			}
		}
		n, err := res.Repo.DeleteMany(ctx, filter)
		if err != nil {
			apperror.Abort(c, err)
			return
		}
		h.log.Info("deleted all documents", zap.String("collection", res.Repo.Name()), zap.Int64("count", n))
		respondDeleted(c)
	}
}

func paramID(c *gin.Context) (primitive.ObjectID, error) {
	raw := c.Param("id")
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return primitive.NilObjectID, apperror.InvalidID("_id", raw)
	}
	return id, nil
}

// processUploads runs the pipeline on a multipart request. Other content
// types carry no files.
func processUploads(c *gin.Context, p *images.Pipeline, owner string) (*images.Batch, error) {
	var form *multipart.Form
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		if c.Request.MultipartForm == nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, images.MaxUploadBytes)
		}
		var err error
		if form, err = c.MultipartForm(); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, apperror.TooLarge().Wrap(err)
			}
			return nil, apperror.Malformed("Invalid request: malformed multipart form").Wrap(err)
		}
	}
	return p.Process(form, owner)
}
