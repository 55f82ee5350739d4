package router_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/harentsoaR/jobboard-api/internal/handlers"
	"github.com/harentsoaR/jobboard-api/internal/images"
	"github.com/harentsoaR/jobboard-api/internal/middleware"
	"github.com/harentsoaR/jobboard-api/internal/router"
	"github.com/harentsoaR/jobboard-api/internal/services"
	"github.com/harentsoaR/jobboard-api/internal/store"
	"github.com/harentsoaR/jobboard-api/internal/store/storetest"
	"github.com/harentsoaR/jobboard-api/internal/utils"
)

type fixture struct {
	engine     *gin.Engine
	limiter    *middleware.RateLimiter
	categories *storetest.Memory
	healthErr  error
}

func newFixture(t *testing.T, limit int) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zap.NewNop()

	users := storetest.NewMemory(store.Users, "email")
	f := &fixture{categories: storetest.NewMemory(store.Categories, "name")}
	mailer, err := services.NewNotificationService(services.MailConfig{Development: true}, log)
	require.NoError(t, err)
	tokens := utils.NewTokenIssuer("test-secret", time.Hour)

	h := handlers.NewHandler(handlers.Deps{
		Repos: handlers.Repositories{
			Users:       users,
			Categories:  f.categories,
			Departments: storetest.NewMemory(store.Departments, "name"),
			Locations:   storetest.NewMemory(store.Locations, "name"),
			Levels:      storetest.NewMemory(store.Levels, "name"),
			Jobs:        storetest.NewMemory(store.Jobs, "name"),
		},
		Storage: images.NewDisk(t.TempDir()),
		Tokens:  tokens,
		Mailer:  mailer,
		Log:     log,
	})

	f.limiter = middleware.NewRateLimiter(limit, time.Minute)
	t.Cleanup(f.limiter.Stop)

	f.engine = router.New(router.Deps{
		Handler: h,
		Auth:    middleware.NewAuthenticator(users, tokens, nil),
		Limiter: f.limiter,
		Log:     log,
		Health:  func(context.Context) error { return f.healthErr },
	})
	return f
}

func (f *fixture) get(target string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func message(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	msg, _ := body["message"].(string)
	return msg
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t, 100)

	for _, path := range []string{"/nope", "/api/v1/nope"} {
		rec := f.get(path)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "Can't find "+path+" on this server!", message(t, rec))
	}
}

func TestPublicReadsAndProtectedWrites(t *testing.T) {
	f := newFixture(t, 100)
	f.categories.Seed(bson.M{"name": "Design", "createdAt": time.Now()})

	rec := f.get("/api/v1/categories")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/categories", nil)
	rec = httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "You are not logged in! Please log in to get access.", message(t, rec))

	rec = f.get("/api/v1/users")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimitAppliesToAPI(t *testing.T) {
	f := newFixture(t, 2)

	assert.Equal(t, http.StatusOK, f.get("/api/v1/levels").Code)
	assert.Equal(t, http.StatusOK, f.get("/api/v1/levels").Code)
	rec := f.get("/api/v1/levels")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Too many requests from this IP, please try again in a minute!", message(t, rec))

	assert.Equal(t, http.StatusOK, f.get("/healthz").Code)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, 100)
	assert.Equal(t, http.StatusOK, f.get("/healthz").Code)

	f.healthErr = errors.New("server selection timeout")
	assert.Equal(t, http.StatusServiceUnavailable, f.get("/healthz").Code)
}

func TestMetricsAndCompression(t *testing.T) {
	f := newFixture(t, 100)

	rec := f.get("/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.get("/api/v1/departments", "Accept-Encoding", "gzip")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
}

func TestCompressedErrorEnvelope(t *testing.T) {
	f := newFixture(t, 100)

	rec := f.get("/nope", "Accept-Encoding", "gzip")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
	assert.NotZero(t, rec.Body.Len())
}
