package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/storefront"
	"github.com/dmitrymomot/storefront/pkg/api"
)

// client returns the visitor's storefront client, leased until the
// visitor middleware returns.
func (s *Server) client(r *http.Request) (*storefront.Client, error) {
	vid := VisitorID(r.Context())
	l, _ := r.Context().Value(leaseKey{}).(*lease)
	if vid == "" || l == nil {
		return nil, ErrNoVisitor
	}
	if l.client != nil {
		return l.client, nil
	}

	c, release, err := s.visitors.acquire(r.Context(), vid)
	if err != nil {
		return nil, err
	}
	l.client, l.release = c, release
	return c, nil
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) error {
	c, err := s.client(r)
	if err != nil {
		return err
	}
	products, err := c.Catalog().Products(r.Context())
	if err != nil {
		return err
	}
	return ok(w, http.StatusOK, "ok", products)
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) error {
	c, err := s.client(r)
	if err != nil {
		return err
	}
	p, err := c.Catalog().Product(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	return ok(w, http.StatusOK, "ok", p)
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) error {
	c, err := s.client(r)
	if err != nil {
		return err
	}
	cats, err := c.Catalog().Categories(r.Context())
	if err != nil {
		return err
	}
	return ok(w, http.StatusOK, "ok", cats)
}

func (s *Server) getCategory(w http.ResponseWriter, r *http.Request) error {
	c, err := s.client(r)
	if err != nil {
		return err
	}
	cat, err := c.Catalog().Category(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	return ok(w, http.StatusOK, "ok", cat)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) error {
	var in api.Credentials
	if err := decode(r, &in); err != nil {
		return err
	}
	c, err := s.client(r)
	if err != nil {
		return err
	}
	sess, err := c.Session().Login(r.Context(), in)
	if err != nil {
		return err
	}
	return ok(w, http.StatusOK, "logged in", sess)
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) error {
	var in api.Registration
	if err := decode(r, &in); err != nil {
		return err
	}
	c, err := s.client(r)
	if err != nil {
		return err
	}
	if err := c.Session().Register(r.Context(), in); err != nil {
		return err
	}
	return ok(w, http.StatusCreated, "registered, please log in", nil)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) error {
	c, err := s.client(r)
	if err != nil {
		return err
	}
	if err := c.Session().Logout(r.Context()); err != nil {
		return err
	}
	return ok(w, http.StatusOK, "logged out", nil)
}

func (s *Server) currentSession(w http.ResponseWriter, r *http.Request) error {
	c, err := s.client(r)
	if err != nil {
		return err
	}
	sess := c.Session().Current()
	if sess == nil {
		return ok(w, http.StatusOK, "not logged in", nil)
	}
	return ok(w, http.StatusOK, "ok", sess)
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) error {
	c, err := s.client(r)
	if err != nil {
		return err
	}
	u, err := c.Catalog().Profile(r.Context())
	if err != nil {
		return err
	}
	return ok(w, http.StatusOK, "ok", u)
}

func (s *Server) showCart(w http.ResponseWriter, r *http.Request) error {
	c, err := s.client(r)
	if err != nil {
		return err
	}
	return ok(w, http.StatusOK, "ok", c.Cart().Snapshot())
}

func (s *Server) clearCart(w http.ResponseWriter, r *http.Request) error {
	c, err := s.client(r)
	if err != nil {
		return err
	}
	c.Cart().Clear()
	return ok(w, http.StatusOK, "cart cleared", c.Cart().Snapshot())
}

type cartItemInput struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func (s *Server) addCartItem(w http.ResponseWriter, r *http.Request) error {
	var in cartItemInput
	if err := decode(r, &in); err != nil {
		return err
	}
	if in.Quantity == 0 {
		in.Quantity = 1
	}
	c, err := s.client(r)
	if err != nil {
		return err
	}
	snap, err := c.AddToCart(r.Context(), in.ProductID, in.Quantity)
	if err != nil {
		return err
	}
	return ok(w, http.StatusOK, "added to cart", snap)
}

func (s *Server) setCartItem(w http.ResponseWriter, r *http.Request) error {
	var in struct {
		Quantity int `json:"quantity"`
	}
	if err := decode(r, &in); err != nil {
		return err
	}
	c, err := s.client(r)
	if err != nil {
		return err
	}
	snap, err := c.SetCartQuantity(chi.URLParam(r, "id"), in.Quantity)
	if err != nil {
		return err
	}
	return ok(w, http.StatusOK, "cart updated", snap)
}

func (s *Server) removeCartItem(w http.ResponseWriter, r *http.Request) error {
	c, err := s.client(r)
	if err != nil {
		return err
	}
	c.Cart().RemoveItem(chi.URLParam(r, "id"))
	return ok(w, http.StatusOK, "removed from cart", c.Cart().Snapshot())
}

func (s *Server) listFavorites(w http.ResponseWriter, r *http.Request) error {
	c, err := s.client(r)
	if err != nil {
		return err
	}
	return ok(w, http.StatusOK, "ok", c.Favorites().Snapshot())
}

func (s *Server) clearFavorites(w http.ResponseWriter, r *http.Request) error {
	c, err := s.client(r)
	if err != nil {
		return err
	}
	c.Favorites().Clear()
	return ok(w, http.StatusOK, "favorites cleared", c.Favorites().Snapshot())
}

func (s *Server) toggleFavorite(w http.ResponseWriter, r *http.Request) error {
	c, err := s.client(r)
	if err != nil {
		return err
	}
	added, err := c.ToggleFavorite(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	msg := "removed from favorites"
	if added {
		msg = "added to favorites"
	}
	return ok(w, http.StatusOK, msg, map[string]bool{"favorite": added})
}

func (s *Server) removeFavorite(w http.ResponseWriter, r *http.Request) error {
	c, err := s.client(r)
	if err != nil {
		return err
	}
	c.Favorites().Remove(chi.URLParam(r, "id"))
	return ok(w, http.StatusOK, "removed from favorites", c.Favorites().Snapshot())
}
