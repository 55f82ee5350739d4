package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/harentsoaR/jobboard-api/internal/apperror"
	"github.com/harentsoaR/jobboard-api/internal/models"
	"github.com/harentsoaR/jobboard-api/internal/store"
	"github.com/harentsoaR/jobboard-api/internal/utils"
)

const (
	// TokenCookie carries the session token for browser clients.
	TokenCookie = "jwt"

	userKey   = "user"
	claimsKey = "claims"
)

// RevocationChecker reports logged-out token ids.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) bool
}

type Authenticator struct {
	users   store.Repository
	tokens  *utils.TokenIssuer
	revoked RevocationChecker
}

func NewAuthenticator(users store.Repository, tokens *utils.TokenIssuer, revoked RevocationChecker) *Authenticator {
	return &Authenticator{users: users, tokens: tokens, revoked: revoked}
}

// Protect requires a valid token from the Authorization header or the jwt
// cookie and loads its user. The user must still exist, be active, and
// not have changed password since the token was issued.
func (a *Authenticator) Protect() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			apperror.Abort(c, apperror.Unauthorized("You are not logged in! Please log in to get access."))
			return
		}

		claims, err := a.tokens.ValidateJWT(tokenString)
		if err != nil {
			apperror.Abort(c, err)
			return
		}
		if a.revoked != nil && a.revoked.IsRevoked(c.Request.Context(), claims.ID) {
			apperror.Abort(c, apperror.TokenInvalid())
			return
		}

		id, err := primitive.ObjectIDFromHex(claims.UserID)
		if err != nil {
			apperror.Abort(c, apperror.TokenInvalid())
			return
		}
		doc, err := a.users.FindByID(c.Request.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			apperror.Abort(c, apperror.Unauthorized("The user belonging to this token does no longer exist."))
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
		if !user.Active {
			apperror.Abort(c, apperror.Unauthorized("This account has been deactivated."))
			return
		}
		if claims.IssuedAt != nil && user.ChangedPasswordAfter(claims.IssuedAt.Time) {
			apperror.Abort(c, apperror.Unauthorized("User recently changed password! Please log in again."))
			return
		}

		c.Set(userKey, &user)
		c.Set(claimsKey, claims)
		c.Set("userID", user.ID.Hex())
		c.Set("userRole", user.Role)
		c.Next()
	}
}

// RestrictTo allows only the given roles. It must follow Protect.
func RestrictTo(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString("userRole")
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		apperror.Abort(c, apperror.Forbidden())
	}
}

func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if cookie, err := c.Cookie(TokenCookie); err == nil && cookie != "" && cookie != "loggedout" {
		return cookie
	}
	return ""
}

// CurrentUser returns the user loaded by Protect.
func CurrentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(userKey); ok {
		if u, ok := v.(*models.User); ok {
			return u
		}
	}
	return nil
}

// CurrentClaims returns the token claims validated by Protect.
func CurrentClaims(c *gin.Context) *utils.Claims {
	if v, ok := c.Get(claimsKey); ok {
		if cl, ok := v.(*utils.Claims); ok {
			return cl
		}
	}
	return nil
}

// TokenFromRequest exposes the raw token so logout can revoke it without
// requiring Protect.
func TokenFromRequest(c *gin.Context) string {
	return bearerToken(c)
}
