package handlers_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/harentsoaR/jobboard-api/internal/apperror"
	"github.com/harentsoaR/jobboard-api/internal/handlers"
	"github.com/harentsoaR/jobboard-api/internal/middleware"
	"github.com/harentsoaR/jobboard-api/internal/models"
	"github.com/harentsoaR/jobboard-api/internal/services"
	"github.com/harentsoaR/jobboard-api/internal/store"
	"github.com/harentsoaR/jobboard-api/internal/store/storetest"
	"github.com/harentsoaR/jobboard-api/internal/utils"
)

type sentMail struct {
	kind string
	to   services.Recipient
	url  string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) record(kind string, to services.Recipient, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{kind: kind, to: to, url: url})
	return nil
}

func (m *fakeMailer) SendWelcome(_ context.Context, to services.Recipient, url string) error {
	return m.record("welcome", to, url)
}

func (m *fakeMailer) SendPasswordReset(_ context.Context, to services.Recipient, url string) error {
	return m.record("reset", to, url)
}

func (m *fakeMailer) Sent() []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMail(nil), m.sent...)
}

type fakeRevoker struct {
	mu      sync.Mutex
	revoked map[string]time.Duration
}

func (r *fakeRevoker) Revoke(_ context.Context, id string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked[id] = ttl
	return nil
}

func (r *fakeRevoker) IsRevoked(_ context.Context, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.revoked[id]
	return ok
}

type memStorage struct {
	mu       sync.Mutex
	files    map[string][]byte
	saves    int
	failFrom int
}

func (s *memStorage) Save(_ context.Context, folder, filename string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.failFrom > 0 && s.saves >= s.failFrom {
		return errors.New("disk full")
	}
	s.files[folder+"/"+filename] = data
	return nil
}

func (s *memStorage) Remove(_ context.Context, folder, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, folder+"/"+filename)
	return nil
}

func (s *memStorage) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.files))
	for k := range s.files {
		names = append(names, k)
	}
	return names
}

type testEnv struct {
	h           *handlers.Handler
	auth        *middleware.Authenticator
	tokens      *utils.TokenIssuer
	users       *storetest.Memory
	categories  *storetest.Memory
	departments *storetest.Memory
	locations   *storetest.Memory
	levels      *storetest.Memory
	jobs        *storetest.Memory
	storage     *memStorage
	mailer      *fakeMailer
	revoker     *fakeRevoker
	engine      *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	models.RegisterValidators()

	e := &testEnv{
		tokens:      utils.NewTokenIssuer("test-secret", time.Hour),
		users:       storetest.NewMemory(store.Users, "email"),
		categories:  storetest.NewMemory(store.Categories, "name"),
		departments: storetest.NewMemory(store.Departments, "name"),
		locations:   storetest.NewMemory(store.Locations, "name"),
		levels:      storetest.NewMemory(store.Levels, "name"),
		jobs:        storetest.NewMemory(store.Jobs, "name"),
		storage:     &memStorage{files: map[string][]byte{}},
		mailer:      &fakeMailer{},
		revoker:     &fakeRevoker{revoked: map[string]time.Duration{}},
	}
	e.h = handlers.NewHandler(handlers.Deps{
		Repos: handlers.Repositories{
			Users:       e.users,
			Categories:  e.categories,
			Departments: e.departments,
			Locations:   e.locations,
			Levels:      e.levels,
			Jobs:        e.jobs,
		},
		Storage:   e.storage,
		Tokens:    e.tokens,
		Revoker:   e.revoker,
		Mailer:    e.mailer,
		Log:       zap.NewNop(),
		CookieTTL: time.Hour,
	})
	e.auth = middleware.NewAuthenticator(e.users, e.tokens, e.revoker)

	e.engine = gin.New()
	e.engine.Use(apperror.Handler(false, zap.NewNop()))
	return e
}

// seedUser stores an active user and returns its id and a valid token.
func (e *testEnv) seedUser(t *testing.T, role string, extra bson.M) (primitive.ObjectID, string) {
	t.Helper()
	id := primitive.NewObjectID()
	doc := bson.M{
		"_id":       id,
		"name":      "User " + id.Hex()[18:],
		"email":     id.Hex() + "@example.com",
		"phone":     "0340000000",
		"role":      role,
		"photo":     models.DefaultPhoto,
		"active":    true,
		"createdAt": time.Now().UTC(),
	}
	for k, v := range extra {
		doc[k] = v
	}
	e.users.Seed(doc)
	token, err := e.tokens.GenerateJWT(id.Hex(), role)
	require.NoError(t, err)
	return id, token
}

var (
	hashOnce   sync.Once
	hashedPass string
)

// knownHash is the bcrypt hash of "password123", computed once.
func knownHash(t *testing.T) string {
	hashOnce.Do(func() {
		h, err := utils.HashPassword("password123")
		require.NoError(t, err)
		hashedPass = h
	})
	return hashedPass
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, target string, body interface{}, token string) *http.Request {
	var r io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

type upload struct {
	field       string
	contentType string
	data        []byte
}

func multipartRequest(t *testing.T, method, target string, fields map[string]string, files []upload, token string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for i, f := range files {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", `form-data; name="`+f.field+`"; filename="f`+string(rune('a'+i))+`.png"`)
		header.Set("Content-Type", f.contentType)
		part, err := w.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// pngHeader is a PNG holding only a header that declares w x h pixels.
func pngHeader(w, h uint32) []byte {
	var ihdr bytes.Buffer
	ihdr.WriteString("IHDR")
	binary.Write(&ihdr, binary.BigEndian, w)
	binary.Write(&ihdr, binary.BigEndian, h)
	ihdr.Write([]byte{8, 0, 0, 0, 0})

	var out bytes.Buffer
	out.WriteString("\x89PNG\r\n\x1a\n")
	binary.Write(&out, binary.BigEndian, uint32(ihdr.Len()-4))
	out.Write(ihdr.Bytes())
	binary.Write(&out, binary.BigEndian, crc32.ChecksumIEEE(ihdr.Bytes()))
	return out.Bytes()
}

func pngUpload(t *testing.T, field string) upload {
	return upload{field: field, contentType: "image/png", data: pngBytes(t, 40, 30)}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func dataDoc(t *testing.T, body map[string]interface{}) map[string]interface{} {
	t.Helper()
	data, ok := body["data"].(map[string]interface{})
	require.True(t, ok, "data is not an object: %v", body["data"])
	doc, ok := data["data"].(map[string]interface{})
	require.True(t, ok, "data.data is not an object: %v", data)
	return doc
}

func hasPrefix(list []string, prefix string) int {
	n := 0
	for _, s := range list {
		if strings.HasPrefix(s, prefix) {
			n++
		}
	}
	return n
}

func jsonUnmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}
