package apifeatures

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/harentsoaR/jobboard-api/internal/apperror"
	"github.com/harentsoaR/jobboard-api/internal/store/storetest"
)

var jobSchema = Schema{
	Fields: map[string]FieldType{
		"name":           String,
		"slug":           String,
		"documentNumber": Number,
		"isInternship":   Bool,
		"location":       ObjectID,
		"createdAt":      Time,
	},
	Search: []string{"name"},
	Hidden: []string{"password"},
}

func parse(t *testing.T, raw string) url.Values {
	t.Helper()
	q, err := url.ParseQuery(raw)
	require.NoError(t, err)
	return q
}

func TestFilter_Operators(t *testing.T) {
	loc := primitive.NewObjectID()
	f := New(jobSchema, parse(t, "documentNumber[gte]=5&documentNumber[lt]=9&isInternship=true&location[in]="+loc.Hex()+"&page=2")).Filter()
	require.NoError(t, f.Err())

	assert.Equal(t, bson.M{
		"documentNumber": bson.M{"$gte": int64(5), "$lt": int64(9)},
		"isInternship":   true,
		"location":       bson.M{"$in": bson.A{loc}},
	}, f.FilterDoc())
}

func TestFilter_DropsUnknownFieldsAndOperators(t *testing.T) {
	f := New(jobSchema, parse(t, "password=x&name[regex]=.*&salary[gt]=3&name=Go")).Filter()
	require.NoError(t, f.Err())
	assert.Equal(t, bson.M{"name": "Go"}, f.FilterDoc())
}

func TestFilter_BadTypedValueIsValidationError(t *testing.T) {
	f := New(jobSchema, parse(t, "documentNumber[gte]=ten")).Filter()
	require.Error(t, f.Err())

	appErr, ok := apperror.Classify(f.Err())
	require.True(t, ok)
	assert.Equal(t, 400, appErr.StatusCode)
	assert.Contains(t, appErr.Fields, "documentNumber")
}

func TestFilter_EmptyInMatchesNothing(t *testing.T) {
	f := New(jobSchema, parse(t, "location[in]=")).Filter()
	require.NoError(t, f.Err())
	assert.Equal(t, bson.M{"location": bson.M{"$in": bson.A{}}}, f.FilterDoc())
}

func TestFilter_RepeatedParameterLastWins(t *testing.T) {
	f := New(jobSchema, parse(t, "name=a&name=b")).Filter()
	assert.Equal(t, bson.M{"name": "b"}, f.FilterDoc())
}

func TestSearch_EscapedAndScopedToSearchFields(t *testing.T) {
	f := New(jobSchema, parse(t, "search=c%2B%2B&isInternship=false")).Filter().Search()
	doc := f.FilterDoc(bson.M{"user": "u1"})

	assert.Equal(t, bson.M{"$and": []bson.M{
		{"user": "u1"},
		{"isInternship": false},
		{"$or": []bson.M{{"name": bson.M{"$regex": `c\+\+`, "$options": "i"}}}},
	}}, doc)
}

func TestSort(t *testing.T) {
	f := New(jobSchema, parse(t, "sort=-createdAt,name,bogus")).Sort()
	assert.Equal(t, bson.D{{Key: "createdAt", Value: -1}, {Key: "name", Value: 1}, {Key: "_id", Value: 1}}, f.FindOptions().Sort)

	f = New(jobSchema, nil).Sort()
	assert.Equal(t, bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}, f.FindOptions().Sort)
}

func TestLimitFields(t *testing.T) {
	cases := []struct {
		query string
		want  bson.M
	}{
		{"", bson.M{"password": 0}},
		{"fields=name,slug", bson.M{"name": 1, "slug": 1}},
		{"fields=-slug", bson.M{"slug": 0, "password": 0}},
		{"fields=name,-slug", bson.M{"name": 1}},
		{"fields=password", bson.M{"password": 0}},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			f := New(jobSchema, parse(t, tc.query)).LimitFields()
			assert.Equal(t, tc.want, f.FindOptions().Projection)
		})
	}
}

func TestPaginate_Defaults(t *testing.T) {
	for _, q := range []string{"", "page=0&limit=-4", "page=abc&limit=x"} {
		f := New(jobSchema, parse(t, q)).Paginate()
		assert.Equal(t, int64(1), f.Page(), q)
		assert.Equal(t, int64(DefaultLimit), f.Limit(), q)
		assert.Equal(t, int64(0), f.Skip(), q)
	}
}

func TestFindOptions_WithoutPaginateHasNoWindow(t *testing.T) {
	f := New(jobSchema, parse(t, "page=3&limit=5")).Sort()
	opts := f.FindOptions()
	assert.Zero(t, opts.Skip)
	assert.Zero(t, opts.Limit)
}

func TestSecondPageOfTwentyFive(t *testing.T) {
	repo := storetest.NewMemory("jobs")
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= 25; i++ {
		repo.Seed(bson.M{"documentNumber": int64(i), "name": "job", "createdAt": base.Add(time.Duration(i) * time.Hour)})
	}

	f := New(jobSchema, parse(t, "limit=10&page=2&sort=documentNumber")).Filter().Sort().LimitFields().Search().Paginate()
	require.NoError(t, f.Err())

	ctx := context.Background()
	total, err := repo.Count(ctx, f.FilterDoc())
	require.NoError(t, err)
	docs, err := repo.Find(ctx, f.FilterDoc(), f.FindOptions())
	require.NoError(t, err)

	assert.Equal(t, int64(25), total)
	require.Len(t, docs, 10)
	for i, d := range docs {
		assert.Equal(t, int64(11+i), d["documentNumber"])
	}
}

func TestSortCreatedAtDescThenName(t *testing.T) {
	repo := storetest.NewMemory("jobs")
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	repo.Seed(
		bson.M{"name": "b", "createdAt": day},
		bson.M{"name": "a", "createdAt": day},
		bson.M{"name": "c", "createdAt": day.Add(time.Hour)},
	)

	f := New(jobSchema, parse(t, "sort=-createdAt,name")).Sort()
	docs, err := repo.Find(context.Background(), f.FilterDoc(), f.FindOptions())
	require.NoError(t, err)

	names := []string{}
	for _, d := range docs {
		names = append(names, d["name"].(string))
	}
	assert.Equal(t, []string{"c", "a", "b"}, names)
}

func TestPaginateEqualSortKeysIsStable(t *testing.T) {
	repo := storetest.NewMemory("jobs")
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for _, name := range []string{"a", "b", "c", "d"} {
		repo.Seed(bson.M{"name": name, "createdAt": day})
	}

	page := func(n string) []string {
		f := New(jobSchema, parse(t, "limit=2&page="+n)).Sort().Paginate()
		docs, err := repo.Find(context.Background(), f.FilterDoc(), f.FindOptions())
		require.NoError(t, err)
		names := []string{}
		for _, d := range docs {
			names = append(names, d["name"].(string))
		}
		return names
	}
	assert.Equal(t, []string{"a", "b"}, page("1"))
	assert.Equal(t, []string{"c", "d"}, page("2"))
}

func TestCombine(t *testing.T) {
	assert.Equal(t, bson.M{}, Combine(nil, bson.M{}))
	assert.Equal(t, bson.M{"a": 1}, Combine(bson.M{"a": 1}, nil))
	assert.Equal(t, bson.M{"$and": []bson.M{{"a": 1}, {"b": 2}}}, Combine(bson.M{"a": 1}, bson.M{"b": 2}))
}
