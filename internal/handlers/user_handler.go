package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/harentsoaR/jobboard-api/internal/apperror"
	"github.com/harentsoaR/jobboard-api/internal/middleware"
	"github.com/harentsoaR/jobboard-api/internal/models"
	"github.com/harentsoaR/jobboard-api/internal/store"
)

// GetMe points the :id parameter at the current user so GetOne can follow.
func (h *Handler) GetMe(c *gin.Context) {
	user := middleware.CurrentUser(c)
	c.Params = append(c.Params, gin.Param{Key: "id", Value: user.ID.Hex()})
	c.Next()
}

// UpdateMe changes the profile fields of the current user, and the photo.
func (h *Handler) UpdateMe(c *gin.Context) {
	var req models.UpdateMeRequest
	if err := c.ShouldBind(&req); err != nil {
		apperror.Abort(c, err)
		return
	}
	if req.HasPassword() {
		apperror.Abort(c, apperror.BadRequest("This route is not for password updates. Please use /updateMyPassword."))
		return
	}
	doc, err := req.Document()
	if err != nil {
		apperror.Abort(c, err)
		return
	}

	user := middleware.CurrentUser(c)
	updated, err := h.update(c, h.Me, user.ID, doc)
	if err != nil {
		apperror.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Updated successfully!",
		"data":    gin.H{"user": store.Strip(updated, models.UserHidden)},
	})
}

// DeleteMe deactivates the current user. The record is kept.
func (h *Handler) DeleteMe(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if _, err := h.repos.Users.UpdateByID(c.Request.Context(), user.ID, bson.M{"active": false}); err != nil {
		apperror.Abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) CreateUser(c *gin.Context) {
	apperror.Abort(c, apperror.NotImplemented("This route is not defined! Please use /signup instead"))
}

func (h *Handler) CreateAdmin(c *gin.Context) {
	var req models.CreateAdminRequest
	if err := c.ShouldBind(&req); err != nil {
		apperror.Abort(c, err)
		return
	}
	doc, err := req.Document()
	if err != nil {
		apperror.Abort(c, err)
		return
	}
	if err := h.prepareForInsert(c.Request.Context(), h.Users, doc, middleware.CurrentUser(c)); err != nil {
		apperror.Abort(c, err)
		return
	}
	created, err := h.repos.Users.Insert(c.Request.Context(), doc)
	if err != nil {
		apperror.Abort(c, err)
		return
	}
	respondDocument(c, http.StatusCreated, "Created successfully", store.Strip(created, models.UserHidden))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
