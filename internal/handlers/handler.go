package handlers

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/harentsoaR/jobboard-api/internal/images"
	"github.com/harentsoaR/jobboard-api/internal/models"
	"github.com/harentsoaR/jobboard-api/internal/services"
	"github.com/harentsoaR/jobboard-api/internal/store"
	"github.com/harentsoaR/jobboard-api/internal/utils"
)

// Repositories are the collections the API works on.
type Repositories struct {
	Users       store.Repository
	Categories  store.Repository
	Departments store.Repository
	Locations   store.Repository
	Levels      store.Repository
	Jobs        store.Repository
}

// Revoker invalidates a token id until it would have expired anyway.
type Revoker interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
}

type Deps struct {
	Repos        Repositories
	Storage      images.Storage
	Tokens       *utils.TokenIssuer
	Revoker      Revoker
	Mailer       services.Mailer
	Log          *zap.Logger
	CookieTTL    time.Duration
	SecureCookie bool
}

// Handler holds every resource and the services the endpoints share.
type Handler struct {
	Users *Resource
	// Me is Users without the base filter: a dev account can still read
	// and update itself.
	Me          *Resource
	Categories  *Resource
	Departments *Resource
	Locations   *Resource
	Levels      *Resource
	Jobs        *Resource

	repos        Repositories
	tokens       *utils.TokenIssuer
	revoker      Revoker
	mailer       services.Mailer
	log          *zap.Logger
	cookieTTL    time.Duration
	secureCookie bool
	now          func() time.Time
}

func NewHandler(d Deps) *Handler {
	h := &Handler{
		repos:        d.Repos,
		tokens:       d.Tokens,
		revoker:      d.Revoker,
		mailer:       d.Mailer,
		log:          d.Log,
		cookieTTL:    d.CookieTTL,
		secureCookie: d.SecureCookie,
		now:          time.Now,
	}

	h.Users = &Resource{
		Repo:       d.Repos.Users,
		Schema:     models.UserSchema,
		BaseFilter: bson.M{"role": bson.M{"$ne": models.RoleDev}},
		NewUpdate:  func() models.Payload { return &models.UpdateUserRequest{} },
		Images: images.NewPipeline(store.Users, d.Storage, d.Log,
			images.Field{Name: "photo", MaxCount: 1, Width: 500, Height: 500, Quality: 85},
		).Protect(models.DefaultPhoto),
	}

	me := *h.Users
	me.BaseFilter = nil
	h.Me = &me

	h.Categories = &Resource{
		Repo:      d.Repos.Categories,
		Schema:    models.CategorySchema,
		Owned:     true,
		NewCreate: func() models.Payload { return &models.CategoryCreate{} },
		NewUpdate: func() models.Payload { return &models.CategoryUpdate{} },
		Images: images.NewPipeline(store.Categories, d.Storage, d.Log,
			images.Field{Name: "image", MaxCount: 1, Width: 500, Height: 500, Quality: 85, Required: "Image is required"},
			images.Field{Name: "imageCover", MaxCount: 1, Width: 2000, Height: 1333, Quality: 90, Required: "Image Cover is required"},
			images.Field{Name: "images", MaxCount: 3, Width: 1000, Height: 666, Quality: 85, Exact: true, Required: "Images are required"},
		),
	}

	h.Departments = referenceResource(d.Repos.Departments)
	h.Locations = referenceResource(d.Repos.Locations)
	h.Levels = referenceResource(d.Repos.Levels)

	refSelect := []string{"name", "slug"}
	h.Jobs = &Resource{
		Repo:      d.Repos.Jobs,
		Schema:    models.JobSchema,
		Owned:     true,
		NewCreate: func() models.Payload { return &models.JobCreate{} },
		NewUpdate: func() models.Payload { return &models.JobUpdate{} },
		Populate: []store.Ref{
			{Field: "location", From: d.Repos.Locations, Select: refSelect},
			{Field: "department", From: d.Repos.Departments, Select: refSelect},
			{Field: "level", From: d.Repos.Levels, Select: refSelect},
		},
	}
	return h
}

func referenceResource(repo store.Repository) *Resource {
	return &Resource{
		Repo:      repo,
		Schema:    models.ReferenceSchema,
		Owned:     true,
		NewCreate: func() models.Payload { return &models.ReferenceCreate{} },
		NewUpdate: func() models.Payload { return &models.ReferenceUpdate{} },
	}
}
