package handlers

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/harentsoaR/jobboard-api/internal/models"
	"github.com/harentsoaR/jobboard-api/internal/store"
	"github.com/harentsoaR/jobboard-api/internal/utils"
)

// A write step mutates the document about to be stored.
type writeStep func(ctx context.Context, h *Handler, res *Resource, doc bson.M, actor *models.User) error

// Insert steps run in this order on every create.
var insertSteps = []writeStep{
	stampSlugs,
	stampCreatedAt,
	stampOwner,
	hashPassword,
	assignDocumentNumber,
}

// Update steps run on every partial update.
var updateSteps = []writeStep{
	refreshSlug,
}

func (h *Handler) prepareForInsert(ctx context.Context, res *Resource, doc bson.M, actor *models.User) error {
	for _, step := range insertSteps {
		if err := step(ctx, h, res, doc, actor); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) prepareForUpdate(ctx context.Context, res *Resource, doc bson.M, actor *models.User) error {
	for _, step := range updateSteps {
		if err := step(ctx, h, res, doc, actor); err != nil {
			return err
		}
	}
	return nil
}

// stampSlugs derives slug and the immutable original_slug from the name.
func stampSlugs(_ context.Context, _ *Handler, _ *Resource, doc bson.M, _ *models.User) error {
	if name, ok := doc["name"].(string); ok {
		s := utils.Slug(name)
		doc["slug"] = s
		doc["original_slug"] = s
	}
	return nil
}

func stampCreatedAt(_ context.Context, h *Handler, _ *Resource, doc bson.M, _ *models.User) error {
	doc["createdAt"] = h.now().UTC()
	return nil
}

func stampOwner(_ context.Context, _ *Handler, res *Resource, doc bson.M, actor *models.User) error {
	if res.Owned {
		if actor == nil {
			return fmt.Errorf("owned resource %s created without a user", res.Repo.Name())
		}
		doc["user"] = actor.ID
	}
	return nil
}

func hashPassword(_ context.Context, _ *Handler, _ *Resource, doc bson.M, _ *models.User) error {
	plain, ok := doc["password"].(string)
	if !ok {
		return nil
	}
	hashed, err := utils.HashPassword(plain)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	doc["password"] = hashed
	delete(doc, "passwordConfirm")
	return nil
}

func assignDocumentNumber(ctx context.Context, _ *Handler, res *Resource, doc bson.M, _ *models.User) error {
	if _, set := doc[store.DocumentNumberField]; set {
		return nil
	}
	n, err := store.NextDocumentNumber(ctx, res.Repo)
	if err != nil {
		return err
	}
	doc[store.DocumentNumberField] = n
	return nil
}

// refreshSlug keeps slug in step with a changed name. original_slug is
// never touched after creation.
func refreshSlug(_ context.Context, _ *Handler, _ *Resource, doc bson.M, _ *models.User) error {
	delete(doc, "original_slug")
	if name, ok := doc["name"].(string); ok {
		doc["slug"] = utils.Slug(name)
	}
	return nil
}
