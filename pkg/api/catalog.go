package api

import (
	"context"
	"net/http"
	"net/url"
)

// ListProducts returns every product in the catalog.
func (c *Client) ListProducts(ctx context.Context) ([]Product, error) {
	var products []Product
	if err := c.do(ctx, request{method: http.MethodGet, path: "/products", auth: true}, &products); err != nil {
		return nil, err
	}
	for i := range products {
		c.sanitize(&products[i])
	}
	return products, nil
}

// GetProduct returns one product.
func (c *Client) GetProduct(ctx context.Context, id string) (Product, error) {
	var p Product
	if err := requireID(id); err != nil {
		return p, err
	}
	if err := c.do(ctx, request{method: http.MethodGet, path: "/products/" + url.PathEscape(id), auth: true}, &p); err != nil {
		return Product{}, err
	}
	c.sanitize(&p)
	return p, nil
}

func (c *Client) sanitize(p *Product) {
	p.Description = c.policy.Sanitize(p.Description)
}

// ListCategories returns every category.
func (c *Client) ListCategories(ctx context.Context) ([]Category, error) {
	var cats []Category
	if err := c.do(ctx, request{method: http.MethodGet, path: "/category", auth: true}, &cats); err != nil {
		return nil, err
	}
	return cats, nil
}

// GetCategory returns one category.
func (c *Client) GetCategory(ctx context.Context, id string) (Category, error) {
	var cat Category
	if err := requireID(id); err != nil {
		return cat, err
	}
	err := c.do(ctx, request{method: http.MethodGet, path: "/category/" + url.PathEscape(id), auth: true}, &cat)
	return cat, err
}

// CreateCategory adds a category and returns it as stored.
func (c *Client) CreateCategory(ctx context.Context, in CategoryInput) (Category, error) {
	var cat Category
	if err := c.check(in); err != nil {
		return cat, err
	}
	err := c.do(ctx, request{method: http.MethodPost, path: "/category", body: in, auth: true}, &cat)
	return cat, err
}

// UpdateCategory changes a category and returns it as stored.
func (c *Client) UpdateCategory(ctx context.Context, id string, in CategoryUpdate) (Category, error) {
	var cat Category
	if err := requireID(id); err != nil {
		return cat, err
	}
	if err := c.check(in); err != nil {
		return cat, err
	}
	err := c.do(ctx, request{method: http.MethodPut, path: "/category/" + url.PathEscape(id), body: in, auth: true}, &cat)
	return cat, err
}

// DeleteCategory removes a category.
func (c *Client) DeleteCategory(ctx context.Context, id string) error {
	if err := requireID(id); err != nil {
		return err
	}
	return c.do(ctx, request{method: http.MethodDelete, path: "/category/" + url.PathEscape(id), auth: true}, nil)
}
