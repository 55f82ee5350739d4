package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/harentsoaR/jobboard-api/internal/store"
	"github.com/harentsoaR/jobboard-api/internal/store/storetest"
)

func TestNextDocumentNumber_EmptyCollectionStartsAtOne(t *testing.T) {
	repo := storetest.NewMemory("levels")

	n, err := store.NextDocumentNumber(context.Background(), repo)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestNextDocumentNumber_SerializedInserts(t *testing.T) {
	ctx := context.Background()
	repo := storetest.NewMemory("levels")

	for want := int64(1); want <= 5; want++ {
		n, err := store.NextDocumentNumber(ctx, repo)
		require.NoError(t, err)
		assert.Equal(t, want, n)
		_, err = repo.Insert(ctx, bson.M{store.DocumentNumberField: n})
		require.NoError(t, err)
	}
}

func TestNextDocumentNumber_UsesMaximumNotCount(t *testing.T) {
	repo := storetest.NewMemory("jobs")
	repo.Seed(
		bson.M{store.DocumentNumberField: int32(3)},
		bson.M{store.DocumentNumberField: int64(41)},
		bson.M{"name": "legacy without number"},
	)

	n, err := store.NextDocumentNumber(context.Background(), repo)
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
}

func TestNextDocumentNumber_PropagatesErrors(t *testing.T) {
	repo := storetest.NewMemory("jobs")
	boom := errors.New("connection reset")
	repo.Fail["find"] = boom

	_, err := store.NextDocumentNumber(context.Background(), repo)
	assert.ErrorIs(t, err, boom)
}

func TestAsInt64(t *testing.T) {
	for _, v := range []interface{}{int(7), int32(7), int64(7), float64(7)} {
		n, ok := store.AsInt64(v)
		assert.True(t, ok)
		assert.Equal(t, int64(7), n)
	}
	_, ok := store.AsInt64("7")
	assert.False(t, ok)
}
