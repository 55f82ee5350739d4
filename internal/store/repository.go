// Package store is the MongoDB persistence layer: a generic collection
// repository, transactions, indexes, sequential document numbers,
// reference population, and job-count aggregation.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/harentsoaR/jobboard-api/internal/metrics"
)

// ErrNotFound is returned when no document matches.
var ErrNotFound = mongo.ErrNoDocuments

// FindOptions mirrors the subset of find options the handlers use.
type FindOptions struct {
	Sort       bson.D
	Projection bson.M
	Skip       int64
	Limit      int64
}

// Repository is one collection. Documents travel as bson.M so projections
// and populated references keep their shape.
type Repository interface {
	Name() string
	Count(ctx context.Context, filter bson.M) (int64, error)
	Find(ctx context.Context, filter bson.M, opts FindOptions) ([]bson.M, error)
	FindOne(ctx context.Context, filter bson.M, opts FindOptions) (bson.M, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (bson.M, error)
	Insert(ctx context.Context, doc bson.M) (bson.M, error)
	// UpdateByID applies $set and $unset and returns the updated document.
	UpdateByID(ctx context.Context, id primitive.ObjectID, set bson.M, unset ...string) (bson.M, error)
	DeleteByID(ctx context.Context, id primitive.ObjectID) (bson.M, error)
	DeleteMany(ctx context.Context, filter bson.M) (int64, error)
	Aggregate(ctx context.Context, pipeline mongo.Pipeline) ([]bson.M, error)
	// WithTransaction runs fn inside a transaction when the deployment
	// supports one; ctx passed to fn carries the session.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Collection is the MongoDB-backed Repository.
type Collection struct {
	coll         *mongo.Collection
	transactions bool
}

var _ Repository = (*Collection)(nil)

func NewCollection(db *mongo.Database, name string, transactions bool) *Collection {
	return &Collection{coll: db.Collection(name), transactions: transactions}
}

func (c *Collection) Name() string {
	return c.coll.Name()
}

func (c *Collection) observe(method string, start time.Time) {
	metrics.ObserveDBRequest(c.coll.Name(), method, time.Since(start))
}

func (c *Collection) Count(ctx context.Context, filter bson.M) (int64, error) {
	defer c.observe("count", time.Now())
	n, err := c.coll.CountDocuments(ctx, nonNil(filter))
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", c.Name(), err)
	}
	return n, nil
}

func (c *Collection) Find(ctx context.Context, filter bson.M, opts FindOptions) ([]bson.M, error) {
	defer c.observe("find", time.Now())
	findOptions := options.Find()
	if len(opts.Sort) > 0 {
		findOptions.SetSort(opts.Sort)
	}
	if len(opts.Projection) > 0 {
		findOptions.SetProjection(opts.Projection)
	}
	if opts.Skip > 0 {
		findOptions.SetSkip(opts.Skip)
	}
	if opts.Limit > 0 {
		findOptions.SetLimit(opts.Limit)
	}

	cursor, err := c.coll.Find(ctx, nonNil(filter), findOptions)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", c.Name(), err)
	}
	defer cursor.Close(ctx)

	docs := make([]bson.M, 0)
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", c.Name(), err)
	}
	return docs, nil
}

func (c *Collection) FindOne(ctx context.Context, filter bson.M, opts FindOptions) (bson.M, error) {
	defer c.observe("findOne", time.Now())
	findOptions := options.FindOne()
	if len(opts.Sort) > 0 {
		findOptions.SetSort(opts.Sort)
	}
	if len(opts.Projection) > 0 {
		findOptions.SetProjection(opts.Projection)
	}

	var doc bson.M
	err := c.coll.FindOne(ctx, nonNil(filter), findOptions).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("findOne %s: %w", c.Name(), err)
	}
	return doc, nil
}

func (c *Collection) FindByID(ctx context.Context, id primitive.ObjectID) (bson.M, error) {
	return c.FindOne(ctx, bson.M{"_id": id}, FindOptions{})
}

func (c *Collection) Insert(ctx context.Context, doc bson.M) (bson.M, error) {
	defer c.observe("insert", time.Now())
	if _, ok := doc["_id"]; !ok {
		doc["_id"] = primitive.NewObjectID()
	}
	if _, err := c.coll.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert %s: %w", c.Name(), err)
	}
	return doc, nil
}

func (c *Collection) UpdateByID(ctx context.Context, id primitive.ObjectID, set bson.M, unset ...string) (bson.M, error) {
	defer c.observe("update", time.Now())
	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(unset) > 0 {
		fields := bson.M{}
		for _, f := range unset {
			fields[f] = ""
		}
		update["$unset"] = fields
	}
	if len(update) == 0 {
		return c.FindByID(ctx, id)
	}

	var doc bson.M
	err := c.coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update %s: %w", c.Name(), err)
	}
	return doc, nil
}

func (c *Collection) DeleteByID(ctx context.Context, id primitive.ObjectID) (bson.M, error) {
	defer c.observe("delete", time.Now())
	var doc bson.M
	err := c.coll.FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("delete %s: %w", c.Name(), err)
	}
	return doc, nil
}

func (c *Collection) DeleteMany(ctx context.Context, filter bson.M) (int64, error) {
	defer c.observe("deleteMany", time.Now())
	res, err := c.coll.DeleteMany(ctx, nonNil(filter))
	if err != nil {
		return 0, fmt.Errorf("deleteMany %s: %w", c.Name(), err)
	}
	return res.DeletedCount, nil
}

func (c *Collection) Aggregate(ctx context.Context, pipeline mongo.Pipeline) ([]bson.M, error) {
	defer c.observe("aggregate", time.Now())
	cursor, err := c.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", c.Name(), err)
	}
	defer cursor.Close(ctx)

	rows := make([]bson.M, 0)
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode aggregate %s: %w", c.Name(), err)
	}
	return rows, nil
}

func (c *Collection) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !c.transactions {
		return fn(ctx)
	}
	// Already inside a session: join it instead of nesting.
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}

	return c.coll.Database().Client().UseSession(ctx, func(sc mongo.SessionContext) error {
		_, err := sc.WithTransaction(sc, func(txCtx mongo.SessionContext) (interface{}, error) {
			return nil, fn(txCtx)
		})
		return err
	})
}

func nonNil(filter bson.M) bson.M {
	if filter == nil {
		return bson.M{}
	}
	return filter
}
