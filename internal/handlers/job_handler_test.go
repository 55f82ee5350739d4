package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/harentsoaR/jobboard-api/internal/handlers"
	"github.com/harentsoaR/jobboard-api/internal/models"
)

func TestJobs_ResolveDocumentNumbers(t *testing.T) {
	e := newTestEnv(t)
	e.engine.GET("/jobs", e.h.ResolveDocumentNumbers(), e.h.GetAll(e.h.Jobs, handlers.ListOptions{}))

	paris, tana := primitive.NewObjectID(), primitive.NewObjectID()
	e.locations.Seed(
		bson.M{"_id": paris, "name": "Paris", "slug": "paris", "documentNumber": int64(1)},
		bson.M{"_id": tana, "name": "Antananarivo", "slug": "antananarivo", "documentNumber": int64(2)},
	)
	dept, level := primitive.NewObjectID(), primitive.NewObjectID()
	e.departments.Seed(bson.M{"_id": dept, "name": "Engineering", "slug": "engineering", "documentNumber": int64(1)})
	e.levels.Seed(bson.M{"_id": level, "name": "Senior", "slug": "senior", "documentNumber": int64(1)})
	e.jobs.Seed(
		bson.M{"name": "Backend", "location": paris, "department": dept, "level": level},
		bson.M{"name": "Frontend", "location": tana, "department": dept, "level": level},
		bson.M{"name": "Data", "location": tana, "department": dept, "level": level},
	)

	tests := []struct {
		query string
		total int
	}{
		{"", 3},
		{"?location=1", 1},
		{"?location=1,2", 3},
		{"?location=2&department=1", 2},
		{"?location=99", 0},
		{"?location=abc", 0},
		{"?level=1&search=end", 2},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := e.do(httptest.NewRequest(http.MethodGet, "/jobs"+tt.query, nil))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.EqualValues(t, tt.total, decode(t, rec)["total"])
		})
	}

	rec := e.do(httptest.NewRequest(http.MethodGet, "/jobs?location=1", nil))
	job := decode(t, rec)["data"].([]interface{})[0].(map[string]interface{})
	location := job["location"].(map[string]interface{})
	assert.Equal(t, "Paris", location["name"])
	assert.Equal(t, "paris", location["slug"])
	assert.NotContains(t, location, "documentNumber")
}

func TestJobs_CreateRequiresReferences(t *testing.T) {
	e := newTestEnv(t)
	_, token := e.seedUser(t, models.RoleAdmin, nil)
	e.engine.POST("/jobs", e.auth.Protect(), e.h.CreateOne(e.h.Jobs))

	rec := e.do(jsonRequest(http.MethodPost, "/jobs", bson.M{"name": "Backend", "location": "nope"}, token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	loc, dept, level := primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID()
	rec = e.do(jsonRequest(http.MethodPost, "/jobs", bson.M{
		"name": "Backend", "location": loc.Hex(), "department": dept.Hex(), "level": level.Hex(),
	}, token))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	stored := e.jobs.All()
	require.Len(t, stored, 1)
	assert.Equal(t, loc, stored[0]["location"])
	assert.Equal(t, false, stored[0]["isInternship"])
}
