package storefront

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/storefront/pkg/api"
	"github.com/dmitrymomot/storefront/pkg/cache"
	"github.com/dmitrymomot/storefront/pkg/session"
)

// Resource types used as cache tags.
const (
	TypeProducts = "Products"
	TypeCategory = "Category"
	TypeUser     = "User"
)

// Catalog reads remote resources through the query cache and invalidates
// the affected tags after writes.
type Catalog struct {
	api      *api.Client
	reads    *api.Client // public reads; anonymous when the query is shared
	query    *cache.Query
	shared   bool
	sessions *session.Manager
	logger   *slog.Logger
}

// Products lists the catalog.
func (c *Catalog) Products(ctx context.Context) ([]api.Product, error) {
	return cache.Fetch(ctx, c.query, "products",
		[]cache.Tag{cache.TypeTag(TypeProducts)},
		c.reads.ListProducts,
	)
}

// Product returns one product.
func (c *Catalog) Product(ctx context.Context, id string) (api.Product, error) {
	if err := needID(id); err != nil {
		return api.Product{}, err
	}
	return cache.Fetch(ctx, c.query, "products/"+id,
		[]cache.Tag{cache.TypeTag(TypeProducts), cache.IDTag(TypeProducts, id)},
		func(ctx context.Context) (api.Product, error) { return c.reads.GetProduct(ctx, id) },
	)
}

// Categories lists categories.
func (c *Catalog) Categories(ctx context.Context) ([]api.Category, error) {
	return cache.Fetch(ctx, c.query, "category",
		[]cache.Tag{cache.TypeTag(TypeCategory)},
		c.reads.ListCategories,
	)
}

// Category returns one category.
func (c *Catalog) Category(ctx context.Context, id string) (api.Category, error) {
	if err := needID(id); err != nil {
		return api.Category{}, err
	}
	return cache.Fetch(ctx, c.query, "category/"+id,
		[]cache.Tag{cache.IDTag(TypeCategory, id)},
		func(ctx context.Context) (api.Category, error) { return c.reads.GetCategory(ctx, id) },
	)
}

// Profile returns the logged-in user's profile. Profiles are cached per
// user, and per token on a shared query, so a flight only ever answers
// callers holding the credentials it was sent with.
func (c *Catalog) Profile(ctx context.Context) (api.User, error) {
	s := c.sessions.Current()
	if s == nil {
		return api.User{}, &api.Error{Kind: api.ErrUnauthorized, Message: "not logged in"}
	}
	key := "profile/" + s.UserID
	if c.shared {
		sum := sha256.Sum256([]byte(s.Token))
		key += "/" + hex.EncodeToString(sum[:8])
	}
	return cache.Fetch(ctx, c.query, key,
		[]cache.Tag{cache.TypeTag(TypeUser), cache.IDTag(TypeUser, s.UserID)},
		c.api.Profile,
	)
}

// CreateCategory adds a category and invalidates category reads.
func (c *Catalog) CreateCategory(ctx context.Context, in api.CategoryInput) (api.Category, error) {
	cat, err := c.api.CreateCategory(ctx, in)
	if err != nil {
		return cat, err
	}
	c.invalidate(ctx, cache.TypeTag(TypeCategory))
	return cat, nil
}

// UpdateCategory changes a category and invalidates it and the list.
func (c *Catalog) UpdateCategory(ctx context.Context, id string, in api.CategoryUpdate) (api.Category, error) {
	cat, err := c.api.UpdateCategory(ctx, id, in)
	if err != nil {
		return cat, err
	}
	c.invalidate(ctx, cache.IDTag(TypeCategory, id), cache.TypeTag(TypeCategory))
	return cat, nil
}

// DeleteCategory removes a category and invalidates category reads.
func (c *Catalog) DeleteCategory(ctx context.Context, id string) error {
	if err := c.api.DeleteCategory(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, cache.TypeTag(TypeCategory))
	return nil
}

// Refresh drops cached products and categories and fetches both lists
// again, so later reads are served warm.
func (c *Catalog) Refresh(ctx context.Context) error {
	c.invalidate(ctx, cache.TypeTag(TypeProducts), cache.TypeTag(TypeCategory))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := c.Products(ctx)
		return err
	})
	g.Go(func() error {
		_, err := c.Categories(ctx)
		return err
	})
	return g.Wait()
}

// State reports the cache state of a catalog key such as "products/42".
func (c *Catalog) State(key string) cache.State {
	return c.query.State(key)
}

// Invalidate drops every cached read providing one of tags.
func (c *Catalog) Invalidate(ctx context.Context, tags ...cache.Tag) error {
	return c.query.Invalidate(ctx, tags...)
}

func (c *Catalog) invalidate(ctx context.Context, tags ...cache.Tag) {
	if err := c.query.Invalidate(ctx, tags...); err != nil {
		c.logger.WarnContext(ctx, "cache invalidation incomplete",
			slog.Any("tags", tags),
			slog.Any("error", err),
		)
	}
}

func needID(id string) error {
	if strings.TrimSpace(id) == "" {
		return &api.Error{Kind: api.ErrValidation, Message: "invalid input", Fields: map[string]string{"id": "is required"}}
	}
	return nil
}
