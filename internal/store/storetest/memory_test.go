package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/harentsoaR/jobboard-api/internal/store"
)

func TestMatch(t *testing.T) {
	now := time.Now()
	doc := bson.M{"name": "Senior Go Engineer", "level": int32(3), "isInternship": false, "createdAt": now}

	cases := []struct {
		name   string
		filter bson.M
		want   bool
	}{
		{"equality", bson.M{"isInternship": false}, true},
		{"gte across int types", bson.M{"level": bson.M{"$gte": int64(3)}}, true},
		{"lt", bson.M{"level": bson.M{"$lt": 3}}, false},
		{"ne missing field", bson.M{"role": bson.M{"$ne": "dev"}}, true},
		{"in", bson.M{"level": bson.M{"$in": bson.A{int64(1), int64(3)}}}, true},
		{"regex insensitive", bson.M{"name": bson.M{"$regex": "go eng", "$options": "i"}}, true},
		{"or", bson.M{"$or": []bson.M{{"name": "x"}, {"level": int32(3)}}}, true},
		{"and", bson.M{"$and": []bson.M{{"name": "x"}, {"level": int32(3)}}}, false},
		{"time", bson.M{"createdAt": bson.M{"$lte": now.Add(time.Second)}}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Match(doc, tc.filter))
		})
	}
}

func TestMemory_Projection(t *testing.T) {
	repo := NewMemory("locations")
	ctx := context.Background()
	created, err := repo.Insert(ctx, bson.M{"name": "Paris", "documentNumber": int64(1)})
	require.NoError(t, err)

	cases := []struct {
		name       string
		projection bson.M
		want       bson.M
	}{
		{"id only", bson.M{"_id": 1}, bson.M{"_id": created["_id"]}},
		{"field keeps id", bson.M{"name": 1}, bson.M{"_id": created["_id"], "name": "Paris"}},
		{"field without id", bson.M{"name": 1, "_id": 0}, bson.M{"name": "Paris"}},
		{"exclusion", bson.M{"documentNumber": 0}, bson.M{"_id": created["_id"], "name": "Paris"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			docs, err := repo.Find(ctx, bson.M{}, store.FindOptions{Projection: tc.projection})
			require.NoError(t, err)
			require.Len(t, docs, 1)
			assert.Equal(t, tc.want, docs[0])
		})
	}
}

func TestMemory_UniqueViolationIsDuplicateKey(t *testing.T) {
	repo := NewMemory("categories", "name")
	ctx := context.Background()

	_, err := repo.Insert(ctx, bson.M{"name": "Design"})
	require.NoError(t, err)
	_, err = repo.Insert(ctx, bson.M{"name": "Design"})
	require.Error(t, err)
	assert.True(t, mongo.IsDuplicateKeyError(err))
	assert.Contains(t, err.Error(), `dup key: { name: "Design" }`)
}

func TestMemory_TransactionRollsBack(t *testing.T) {
	repo := NewMemory("categories")
	ctx := context.Background()
	boom := errors.New("boom")

	err := repo.WithTransaction(ctx, func(ctx context.Context) error {
		_, err := repo.Insert(ctx, bson.M{"name": "Temp"})
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, repo.All())
}

func TestMemory_FindSortSkipLimitProjection(t *testing.T) {
	repo := NewMemory("levels")
	repo.Seed(bson.M{"name": "b", "n": 2}, bson.M{"name": "a", "n": 1}, bson.M{"name": "c", "n": 3})

	got, err := repo.Find(context.Background(), bson.M{}, store.FindOptions{
		Sort:       bson.D{{Key: "n", Value: -1}},
		Skip:       1,
		Limit:      1,
		Projection: bson.M{"name": 1},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0]["name"])
	assert.NotContains(t, got[0], "n")
	assert.Contains(t, got[0], "_id")
}
