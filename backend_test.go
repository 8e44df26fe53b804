package storefront_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/storefront/pkg/session"
)

// backend is an in-process stand-in for the storefront REST API.
type backend struct {
	srv *httptest.Server

	mu         sync.Mutex
	products   map[string]map[string]any
	categories []map[string]any
	token      string
	rejectAuth bool

	productCalls  atomic.Int64
	listCalls     atomic.Int64
	categoryCalls atomic.Int64
	profileCalls  atomic.Int64
	lastAuth      atomic.Value

	release chan struct{} // when set, product reads block until closed
}

func newBackend(t *testing.T) *backend {
	t.Helper()

	b := &backend{
		products: map[string]map[string]any{
			"p1": {"id": "p1", "productName": "Apple", "price": 1.5, "stock": 5, "images": []string{"apple.png"}},
			"p2": {"id": "p2", "productName": "Pear", "price": 2, "stock": 0},
			"p3": {"id": "p3", "productName": "Plum", "price": 3, "stock": 9, "isDeleted": true},
		},
		categories: []map[string]any{{"id": "c1", "categoryName": "Fruit"}},
		token:      signToken(t, "u1", "ann@example.com", time.Now().Add(time.Hour)),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var in struct{ Email, Password string }
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in.Password != "secret1" {
			reply(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Invalid credentials"})
			return
		}
		reply(w, http.StatusOK, ok(map[string]any{"accessToken": b.token}))
	})
	mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, ok(nil))
	})
	mux.HandleFunc("GET /auth/profile", func(w http.ResponseWriter, r *http.Request) {
		b.profileCalls.Add(1)
		if !b.authorized(r) {
			reply(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Unauthorized"})
			return
		}
		reply(w, http.StatusOK, ok(map[string]any{"id": "u1", "name": "Ann", "email": "ann@example.com"}))
	})
	mux.HandleFunc("GET /products", func(w http.ResponseWriter, r *http.Request) {
		b.listCalls.Add(1)
		b.mu.Lock()
		list := make([]map[string]any, 0, len(b.products))
		for _, p := range b.products {
			list = append(list, p)
		}
		b.mu.Unlock()
		reply(w, http.StatusOK, ok(list))
	})
	mux.HandleFunc("GET /products/{id}", func(w http.ResponseWriter, r *http.Request) {
		b.productCalls.Add(1)
		if b.release != nil {
			<-b.release
		}
		if r.Header.Get("Authorization") != "" && !b.authorized(r) {
			reply(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Unauthorized"})
			return
		}
		b.mu.Lock()
		p, found := b.products[r.PathValue("id")]
		b.mu.Unlock()
		if !found {
			reply(w, http.StatusNotFound, map[string]any{"success": false, "message": "Product not found"})
			return
		}
		reply(w, http.StatusOK, ok(p))
	})
	mux.HandleFunc("GET /category", func(w http.ResponseWriter, r *http.Request) {
		b.categoryCalls.Add(1)
		b.mu.Lock()
		cats := append([]map[string]any(nil), b.categories...)
		b.mu.Unlock()
		reply(w, http.StatusOK, ok(cats))
	})
	mux.HandleFunc("POST /category", func(w http.ResponseWriter, r *http.Request) {
		if !b.authorized(r) {
			reply(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Unauthorized"})
			return
		}
		var in struct{ Name string }
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in.Name == "Taken" {
			reply(w, http.StatusConflict, map[string]any{"success": false, "message": "Category exists"})
			return
		}
		cat := map[string]any{"id": "c2", "categoryName": in.Name}
		b.mu.Lock()
		b.categories = append(b.categories, cat)
		b.mu.Unlock()
		reply(w, http.StatusCreated, ok(cat))
	})

	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) authorized(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	b.lastAuth.Store(auth)

	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.rejectAuth && auth != "" && auth == b.token
}

func (b *backend) setProduct(id string, fields map[string]any) {
	b.mu.Lock()
	b.products[id] = fields
	b.mu.Unlock()
}

func (b *backend) expireTokens() {
	b.mu.Lock()
	b.rejectAuth = true
	b.mu.Unlock()
}

func reply(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func ok(data any) map[string]any {
	return map[string]any{"success": true, "message": "ok", "data": data}
}

func signToken(t *testing.T, userID, email string, exp time.Time) string {
	t.Helper()

	claims := session.Claims{
		UserID: userID,
		Email:  email,
		Role:   "customer",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("server-secret"))
	require.NoError(t, err)
	return tok
}
