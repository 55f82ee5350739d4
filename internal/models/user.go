package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/harentsoaR/jobboard-api/internal/apifeatures"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
	RoleDev   = "dev"

	DefaultPhoto = "/images/users/default.jpg"
)

type User struct {
	ID                   primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name                 string             `bson:"name" json:"name"`
	Slug                 string             `bson:"slug" json:"slug"`
	OriginalSlug         string             `bson:"original_slug" json:"original_slug"`
	Email                string             `bson:"email" json:"email"`
	Photo                string             `bson:"photo" json:"photo"`
	Country              string             `bson:"country,omitempty" json:"country,omitempty"`
	Phone                string             `bson:"phone" json:"phone"`
	Role                 string             `bson:"role" json:"role"`
	Password             string             `bson:"password" json:"-"`
	PasswordChangedAt    *time.Time         `bson:"passwordChangedAt,omitempty" json:"-"`
	PasswordResetToken   string             `bson:"passwordResetToken,omitempty" json:"-"`
	PasswordResetExpires *time.Time         `bson:"passwordResetExpires,omitempty" json:"-"`
	Active               bool               `bson:"active" json:"active"`
	CreatedAt            time.Time          `bson:"createdAt" json:"createdAt"`
	DocumentNumber       int64              `bson:"documentNumber,omitempty" json:"documentNumber,omitempty"`
}

// ChangedPasswordAfter reports whether the password changed after a token
// issued at iat. Compared at second precision, like the token itself.
func (u *User) ChangedPasswordAfter(iat time.Time) bool {
	if u.PasswordChangedAt == nil {
		return false
	}
	return iat.Unix() < u.PasswordChangedAt.Unix()
}

// UserHidden are never returned to clients.
var UserHidden = []string{"password", "passwordConfirm", "passwordResetToken", "passwordResetExpires", "passwordChangedAt"}

var UserSchema = apifeatures.Schema{
	Fields: map[string]apifeatures.FieldType{
		"_id":            apifeatures.ObjectID,
		"name":           apifeatures.String,
		"slug":           apifeatures.String,
		"original_slug":  apifeatures.String,
		"email":          apifeatures.String,
		"photo":          apifeatures.String,
		"country":        apifeatures.String,
		"phone":          apifeatures.String,
		"role":           apifeatures.String,
		"active":         apifeatures.Bool,
		"createdAt":      apifeatures.Time,
		"documentNumber": apifeatures.Number,
	},
	Search: []string{"name", "email", "phone"},
	Hidden: UserHidden,
}

// SignupRequest creates a regular user. Role is never taken from input.
type SignupRequest struct {
	Name            string `json:"name" form:"name" binding:"required"`
	Email           string `json:"email" form:"email" binding:"required,email"`
	Country         string `json:"country" form:"country"`
	Phone           string `json:"phone" form:"phone" binding:"required"`
	Password        string `json:"password" form:"password" binding:"required,min=8"`
	PasswordConfirm string `json:"passwordConfirm" form:"passwordConfirm" binding:"required,eqfield=Password"`
}

// Document returns the insertable fields; the password is hashed later
// in the write pipeline.
func (r *SignupRequest) Document() (bson.M, error) {
	doc := bson.M{
		"name":     strings.TrimSpace(r.Name),
		"email":    strings.ToLower(strings.TrimSpace(r.Email)),
		"phone":    strings.TrimSpace(r.Phone),
		"password": r.Password,
		"role":     RoleUser,
		"photo":    DefaultPhoto,
		"active":   true,
	}
	if c := strings.TrimSpace(r.Country); c != "" {
		doc["country"] = c
	}
	return doc, nil
}

// CreateAdminRequest has the signup fields; the handler sets the role.
type CreateAdminRequest struct {
	SignupRequest
}

func (r *CreateAdminRequest) Document() (bson.M, error) {
	doc, err := r.SignupRequest.Document()
	if err != nil {
		return nil, err
	}
	doc["role"] = RoleAdmin
	return doc, nil
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type ResetPasswordRequest struct {
	Password        string `json:"password" binding:"required,min=8"`
	PasswordConfirm string `json:"passwordConfirm" binding:"required,eqfield=Password"`
}

type UpdatePasswordRequest struct {
	PasswordCurrent string `json:"passwordCurrent" binding:"required"`
	Password        string `json:"password" binding:"required,min=8"`
	PasswordConfirm string `json:"passwordConfirm" binding:"required,eqfield=Password"`
}

// UpdateMeRequest lists the only profile fields a user may change about
// themselves. Password fields are declared so they can be refused.
type UpdateMeRequest struct {
	Name            *string `json:"name" form:"name" binding:"omitempty,min=1"`
	Email           *string `json:"email" form:"email" binding:"omitempty,email"`
	Country         *string `json:"country" form:"country"`
	Phone           *string `json:"phone" form:"phone" binding:"omitempty,min=1"`
	Password        *string `json:"password" form:"password"`
	PasswordConfirm *string `json:"passwordConfirm" form:"passwordConfirm"`
}

func (r *UpdateMeRequest) HasPassword() bool {
	return r.Password != nil || r.PasswordConfirm != nil
}

func (r *UpdateMeRequest) Document() (bson.M, error) {
	doc := bson.M{}
	setTrimmed(doc, "name", r.Name)
	if r.Email != nil {
		doc["email"] = strings.ToLower(strings.TrimSpace(*r.Email))
	}
	setTrimmed(doc, "country", r.Country)
	setTrimmed(doc, "phone", r.Phone)
	return doc, nil
}

// UpdateUserRequest is the admin edit of another user. Passwords are not
// updated through it.
type UpdateUserRequest struct {
	Name    *string `json:"name" form:"name" binding:"omitempty,min=1"`
	Email   *string `json:"email" form:"email" binding:"omitempty,email"`
	Country *string `json:"country" form:"country"`
	Phone   *string `json:"phone" form:"phone" binding:"omitempty,min=1"`
	Role    *string `json:"role" form:"role" binding:"omitempty,oneof=user admin"`
	Active  *bool   `json:"active" form:"active"`
}

func (r *UpdateUserRequest) Document() (bson.M, error) {
	doc := bson.M{}
	setTrimmed(doc, "name", r.Name)
	if r.Email != nil {
		doc["email"] = strings.ToLower(strings.TrimSpace(*r.Email))
	}
	setTrimmed(doc, "country", r.Country)
	setTrimmed(doc, "phone", r.Phone)
	if r.Role != nil {
		doc["role"] = *r.Role
	}
	if r.Active != nil {
		doc["active"] = *r.Active
	}
	return doc, nil
}
