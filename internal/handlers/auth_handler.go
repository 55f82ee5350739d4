package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/harentsoaR/jobboard-api/internal/apperror"
	"github.com/harentsoaR/jobboard-api/internal/middleware"
	"github.com/harentsoaR/jobboard-api/internal/models"
	"github.com/harentsoaR/jobboard-api/internal/services"
	"github.com/harentsoaR/jobboard-api/internal/store"
	"github.com/harentsoaR/jobboard-api/internal/utils"
)

const mailTimeout = 30 * time.Second

// Signup creates a regular user, sends the welcome email in the
// background, and logs the user in.
func (h *Handler) Signup(c *gin.Context) {
	var req models.SignupRequest
	if err := c.ShouldBind(&req); err != nil {
		apperror.Abort(c, err)
		return
	}
	doc, err := req.Document()
	if err != nil {
		apperror.Abort(c, err)
		return
	}
	if err := h.prepareForInsert(c.Request.Context(), h.Users, doc, nil); err != nil {
		apperror.Abort(c, err)
		return
	}
	created, err := h.repos.Users.Insert(c.Request.Context(), doc)
	if err != nil {
		apperror.Abort(c, err)
		return
	}

	to := services.Recipient{Name: req.Name, Email: doc["email"].(string)}
	url := fmt.Sprintf("%s/me", baseURL(c))
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), mailTimeout)
		defer cancel()
		if err := h.mailer.SendWelcome(ctx, to, url); err != nil {
			h.log.Error("failed to send welcome email", zap.String("email", to.Email), zap.Error(err))
		}
	}()

	h.createSendToken(c, created, http.StatusCreated)
}

func (h *Handler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperror.Abort(c, apperror.BadRequest("Please provide email and password!").Wrap(err))
		return
	}

	doc, err := h.repos.Users.FindOne(c.Request.Context(), bson.M{"email": normalizeEmail(req.Email)}, store.FindOptions{})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		apperror.Abort(c, err)
		return
	}
	hash, _ := doc["password"].(string)
	if doc == nil || !utils.CheckPasswordHash(req.Password, hash) {
		apperror.Abort(c, apperror.Unauthorized("Incorrect email or password"))
		return
	}
	if active, _ := doc["active"].(bool); !active {
		apperror.Abort(c, apperror.Unauthorized("This account has been deactivated."))
		return
	}
	h.createSendToken(c, doc, http.StatusOK)
}

// Logout clears the cookie and revokes the presented token for the rest of
// its lifetime. It never fails for a missing or invalid token.
func (h *Handler) Logout(c *gin.Context) {
	if raw := middleware.TokenFromRequest(c); raw != "" && h.revoker != nil {
		if claims, err := h.tokens.ValidateJWT(raw); err == nil && claims.ExpiresAt != nil {
			ttl := claims.ExpiresAt.Time.Sub(h.now())
			if err := h.revoker.Revoke(c.Request.Context(), claims.ID, ttl); err != nil {
				h.log.Warn("failed to revoke token", zap.String("jti", claims.ID), zap.Error(err))
			}
		}
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.TokenCookie, "loggedout", 10, "/", "", h.secureCookie, true)
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Done"})
}

func (h *Handler) ForgotPassword(c *gin.Context) {
	ctx := c.Request.Context()
	var req models.ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperror.Abort(c, err)
		return
	}
	doc, err := h.repos.Users.FindOne(ctx, bson.M{"email": normalizeEmail(req.Email)}, store.FindOptions{})
	if errors.Is(err, store.ErrNotFound) {
		apperror.Abort(c, apperror.NotFound("There is no user with email address."))
		return
	}
	if err != nil {
		apperror.Abort(c, err)
		return
	}
	var user models.User
	if err := store.Decode(doc, &user); err != nil {
		apperror.Abort(c, err)
		return
	}

	plain, digest, err := utils.NewResetToken()
	if err != nil {
		apperror.Abort(c, err)
		return
	}
	_, err = h.repos.Users.UpdateByID(ctx, user.ID, bson.M{
		"passwordResetToken":   digest,
		"passwordResetExpires": h.now().Add(utils.ResetTokenTTL).UTC(),
	})
	if err != nil {
		apperror.Abort(c, err)
		return
	}

	url := fmt.Sprintf("%s/api/v1/users/resetPassword/%s", baseURL(c), plain)
	if err := h.mailer.SendPasswordReset(ctx, services.Recipient{Name: user.Name, Email: user.Email}, url); err != nil {
		if _, uerr := h.repos.Users.UpdateByID(ctx, user.ID, nil, "passwordResetToken", "passwordResetExpires"); uerr != nil {
			h.log.Error("failed to clear reset token", zap.String("user", user.ID.Hex()), zap.Error(uerr))
		}
		apperror.Abort(c, apperror.Mail(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Token sent to email!"})
}

func (h *Handler) ResetPassword(c *gin.Context) {
	ctx := c.Request.Context()
	doc, err := h.repos.Users.FindOne(ctx, bson.M{
		"passwordResetToken":   utils.HashResetToken(c.Param("token")),
		"passwordResetExpires": bson.M{"$gt": h.now().UTC()},
	}, store.FindOptions{})
	if errors.Is(err, store.ErrNotFound) {
		apperror.Abort(c, apperror.BadRequest("Token is invalid or has expired"))
		return
	}
	if err != nil {
		apperror.Abort(c, err)
		return
	}

	var req models.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperror.Abort(c, err)
		return
	}
	updated, err := h.setPassword(ctx, doc, req.Password, "passwordResetToken", "passwordResetExpires")
	if err != nil {
		apperror.Abort(c, err)
		return
	}
	h.createSendToken(c, updated, http.StatusOK)
}

func (h *Handler) UpdateMyPassword(c *gin.Context) {
	ctx := c.Request.Context()
	user := middleware.CurrentUser(c)
	var req models.UpdatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperror.Abort(c, err)
		return
	}
	if !utils.CheckPasswordHash(req.PasswordCurrent, user.Password) {
		apperror.Abort(c, apperror.Unauthorized("Your current password is wrong."))
		return
	}
	doc, err := h.repos.Users.FindByID(ctx, user.ID)
	if err != nil {
		apperror.Abort(c, err)
		return
	}
	updated, err := h.setPassword(ctx, doc, req.Password)
	if err != nil {
		apperror.Abort(c, err)
		return
	}
	h.createSendToken(c, updated, http.StatusOK)
}

// setPassword stores a new hash. passwordChangedAt is backdated one second
// so the token issued right after is not rejected by Protect.
func (h *Handler) setPassword(ctx context.Context, doc bson.M, plain string, unset ...string) (bson.M, error) {
	hashed, err := utils.HashPassword(plain)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	var user models.User
	if err := store.Decode(doc, &user); err != nil {
		return nil, err
	}
	return h.repos.Users.UpdateByID(ctx, user.ID, bson.M{
		"password":          hashed,
		"passwordChangedAt": h.now().Add(-time.Second).UTC(),
	}, unset...)
}

// createSendToken signs a token for the user, sets the jwt cookie, and
// responds with the token and the user.
func (h *Handler) createSendToken(c *gin.Context, doc bson.M, status int) {
	var user models.User
	if err := store.Decode(doc, &user); err != nil {
		apperror.Abort(c, err)
		return
	}
	token, err := h.tokens.GenerateJWT(user.ID.Hex(), user.Role)
	if err != nil {
		apperror.Abort(c, err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.TokenCookie, token, int(h.cookieTTL.Seconds()), "/", "", h.secureCookie, true)
	c.JSON(status, gin.H{
		"status": "success",
		"token":  token,
		"data":   gin.H{"user": store.Strip(doc, models.UserHidden)},
	})
}

func baseURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, c.Request.Host)
}
