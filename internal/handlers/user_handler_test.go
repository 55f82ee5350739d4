package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/harentsoaR/jobboard-api/internal/handlers"
	"github.com/harentsoaR/jobboard-api/internal/middleware"
	"github.com/harentsoaR/jobboard-api/internal/models"
)

func (e *testEnv) mountUsers() {
	g := e.engine.Group("/users", e.auth.Protect())
	g.GET("/me", e.h.GetMe, e.h.GetOne(e.h.Me))
	g.PATCH("/updateMe", e.h.UpdateMe)
	g.DELETE("/deleteMe", e.h.DeleteMe)

	g.Use(middleware.RestrictTo(models.RoleAdmin, models.RoleDev))
	g.GET("/admins", e.h.GetAll(e.h.Users, handlers.ListOptions{Filter: bson.M{"role": models.RoleAdmin}}))
	g.POST("", e.h.CreateUser)
	g.POST("/admin", e.h.CreateAdmin)
	g.PATCH("/:id", e.h.UpdateOne(e.h.Users))
}

func TestGetMe(t *testing.T) {
	e := newTestEnv(t)
	e.mountUsers()
	id, token := e.seedUser(t, models.RoleUser, bson.M{"password": "hash"})

	rec := e.do(jsonRequest(http.MethodGet, "/users/me", nil, token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	doc := dataDoc(t, decode(t, rec))
	assert.Equal(t, id.Hex(), doc["_id"])
	assert.NotContains(t, doc, "password")
}

func TestUpdateMe(t *testing.T) {
	e := newTestEnv(t)
	e.mountUsers()
	_, token := e.seedUser(t, models.RoleUser, nil)

	rec := e.do(jsonRequest(http.MethodPatch, "/users/updateMe", bson.M{"password": "sneaky123"}, token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "This route is not for password updates. Please use /updateMyPassword.", decode(t, rec)["message"])

	rec = e.do(jsonRequest(http.MethodPatch, "/users/updateMe", bson.M{"name": "New Name", "role": "admin"}, token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "Updated successfully!", body["message"])
	user := body["data"].(map[string]interface{})["user"].(map[string]interface{})
	assert.Equal(t, "New Name", user["name"])
	assert.Equal(t, "new-name", user["slug"])
	assert.Equal(t, models.RoleUser, user["role"])
}

func TestUpdateMe_PhotoKeepsDefault(t *testing.T) {
	e := newTestEnv(t)
	e.mountUsers()
	id, token := e.seedUser(t, models.RoleUser, nil)

	rec := e.do(multipartRequest(t, http.MethodPatch, "/users/updateMe", nil, []upload{pngUpload(t, "photo")}, token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	user := decode(t, rec)["data"].(map[string]interface{})["user"].(map[string]interface{})
	assert.Contains(t, user["photo"], "/images/users/users-photo-"+id.Hex())
	assert.Len(t, e.storage.Names(), 1)
}

func TestMe_DevAccount(t *testing.T) {
	e := newTestEnv(t)
	e.mountUsers()
	id, token := e.seedUser(t, models.RoleDev, nil)

	rec := e.do(jsonRequest(http.MethodGet, "/users/me", nil, token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, id.Hex(), dataDoc(t, decode(t, rec))["_id"])

	rec = e.do(jsonRequest(http.MethodPatch, "/users/updateMe", bson.M{"name": "Root Dev"}, token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	user := decode(t, rec)["data"].(map[string]interface{})["user"].(map[string]interface{})
	assert.Equal(t, "Root Dev", user["name"])
	assert.Equal(t, models.RoleDev, user["role"])
}

func TestUpdateMe_RejectsOversizedPhoto(t *testing.T) {
	e := newTestEnv(t)
	e.mountUsers()
	_, token := e.seedUser(t, models.RoleUser, nil)

	bomb := upload{field: "photo", contentType: "image/png", data: pngHeader(12000, 12000)}
	rec := e.do(multipartRequest(t, http.MethodPatch, "/users/updateMe", nil, []upload{bomb}, token))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code, rec.Body.String())
	assert.Empty(t, e.storage.Names())
	assert.Equal(t, models.DefaultPhoto, e.users.All()[0]["photo"])
}

func TestDeleteMe_Deactivates(t *testing.T) {
	e := newTestEnv(t)
	e.mountUsers()
	_, token := e.seedUser(t, models.RoleUser, nil)

	rec := e.do(jsonRequest(http.MethodDelete, "/users/deleteMe", nil, token))
	require.Equal(t, http.StatusNoContent, rec.Code)

	stored := e.users.All()
	require.Len(t, stored, 1)
	assert.Equal(t, false, stored[0]["active"])

	rec = e.do(jsonRequest(http.MethodGet, "/users/me", nil, token))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateUser_NotDefined(t *testing.T) {
	e := newTestEnv(t)
	e.mountUsers()
	_, token := e.seedUser(t, models.RoleAdmin, nil)

	rec := e.do(jsonRequest(http.MethodPost, "/users", bson.M{"name": "x"}, token))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "This route is not defined! Please use /signup instead", decode(t, rec)["message"])
}

func TestCreateAdmin(t *testing.T) {
	e := newTestEnv(t)
	e.mountUsers()
	_, token := e.seedUser(t, models.RoleDev, nil)

	rec := e.do(jsonRequest(http.MethodPost, "/users/admin", bson.M{
		"name": "Boss", "email": "boss@example.com", "phone": "1",
		"password": "password123", "passwordConfirm": "password123",
	}, token))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, models.RoleAdmin, dataDoc(t, decode(t, rec))["role"])

	rec = e.do(jsonRequest(http.MethodGet, "/users/admins", nil, token))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["total"])
}

func TestUpdateUser_CannotTouchDev(t *testing.T) {
	e := newTestEnv(t)
	e.mountUsers()
	_, token := e.seedUser(t, models.RoleAdmin, nil)
	devID, _ := e.seedUser(t, models.RoleDev, nil)

	rec := e.do(jsonRequest(http.MethodPatch, "/users/"+devID.Hex(), bson.M{"active": false}, token))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, true, e.users.All()[1]["active"])
}
