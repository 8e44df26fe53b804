package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/storefront/pkg/session"
)

func upstream(t *testing.T) string {
	t.Helper()

	claims := session.Claims{
		UserID: "u1",
		Email:  "ann@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("server-secret"))
	require.NoError(t, err)

	products := map[string]map[string]any{
		"p1": {"id": "p1", "productName": "Apple", "price": 1234.5, "stock": 5},
		"p2": {"id": "p2", "productName": "Pear", "price": 2, "stock": 0},
		"p3": {"id": "p3", "productName": "Plum", "price": 3, "stock": 1, "isDeleted": true},
	}

	reply := func(w http.ResponseWriter, status int, data any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": status < 400, "message": http.StatusText(status), "data": data})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var in struct{ Password string }
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in.Password != "secret1" {
			reply(w, http.StatusUnauthorized, nil)
			return
		}
		reply(w, http.StatusOK, map[string]any{"accessToken": token})
	})
	mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, nil)
	})
	mux.HandleFunc("GET /auth/profile", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != token {
			reply(w, http.StatusUnauthorized, nil)
			return
		}
		reply(w, http.StatusOK, map[string]any{"id": "u1", "name": "Ann", "email": "ann@example.com"})
	})
	mux.HandleFunc("GET /products", func(w http.ResponseWriter, r *http.Request) {
		reply(w, http.StatusOK, []map[string]any{products["p1"], products["p2"], products["p3"]})
	})
	mux.HandleFunc("GET /products/{id}", func(w http.ResponseWriter, r *http.Request) {
		p, ok := products[r.PathValue("id")]
		if !ok {
			reply(w, http.StatusNotFound, nil)
			return
		}
		reply(w, http.StatusOK, p)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv.URL
}

// cli runs command lines against one API and one state directory.
type cli struct {
	t   *testing.T
	api string
	dir string
}

func newCLI(t *testing.T) *cli {
	return &cli{t: t, api: upstream(t), dir: t.TempDir()}
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()

	var out, errOut bytes.Buffer
	full := append([]string{"--api", c.api, "--state-dir", c.dir}, args...)
	err := run(context.Background(), full, &out, &errOut)
	return out.String(), err
}

func (c *cli) json(v any, args ...string) {
	c.t.Helper()

	out, err := c.run(append(args, "-o", "json")...)
	require.NoError(c.t, err)
	require.NoError(c.t, json.Unmarshal([]byte(out), v), out)
}

func TestRun_Session(t *testing.T) {
	t.Parallel()

	c := newCLI(t)

	_, err := c.run("whoami")
	require.EqualError(t, err, "not logged in")

	_, err = c.run("login", "-e", "ann@example.com", "-p", "wrong")
	require.Error(t, err)

	var s map[string]any
	c.json(&s, "login", "-e", "ann@example.com", "-p", "secret1")
	assert.Equal(t, "u1", s["userId"])
	assert.NotContains(t, s, "token")

	var u map[string]any
	c.json(&u, "whoami")
	assert.Equal(t, "Ann", u["name"])

	out, err := c.run("logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out")

	_, err = c.run("whoami")
	require.EqualError(t, err, "not logged in")
}

func TestRun_Cart(t *testing.T) {
	t.Parallel()

	c := newCLI(t)

	type cartOut struct {
		Lines []struct {
			ProductID string `json:"productId"`
			Quantity  int    `json:"quantity"`
		} `json:"lines"`
		Totals struct {
			Quantity int     `json:"quantity"`
			Amount   float64 `json:"amount"`
		} `json:"totals"`
	}

	var got cartOut
	c.json(&got, "cart", "add", "p1", "-q", "2")
	require.Len(t, got.Lines, 1)

	t.Run("survives between invocations", func(t *testing.T) {
		var again cartOut
		c.json(&again, "cart", "show")
		require.Len(t, again.Lines, 1)
		assert.Equal(t, "p1", again.Lines[0].ProductID)
		assert.Equal(t, 2, again.Totals.Quantity)
		assert.InDelta(t, 2469.0, again.Totals.Amount, 0.001)
	})

	t.Run("rejects unavailable products", func(t *testing.T) {
		_, err := c.run("cart", "add", "p2")
		require.Error(t, err)

		_, err = c.run("cart", "add", "p1", "-q", "4")
		require.Error(t, err)
	})

	t.Run("set and remove", func(t *testing.T) {
		var set cartOut
		c.json(&set, "cart", "set", "p1", "5")
		assert.Equal(t, 5, set.Totals.Quantity)

		_, err := c.run("cart", "set", "p1", "many")
		require.Error(t, err)

		var empty cartOut
		c.json(&empty, "cart", "rm", "p1")
		assert.Empty(t, empty.Lines)

		out, err := c.run("cart")
		require.NoError(t, err)
		assert.Contains(t, out, "Cart is empty")
	})
}

func TestRun_Favorites(t *testing.T) {
	t.Parallel()

	c := newCLI(t)

	var toggled map[string]any
	c.json(&toggled, "fav", "toggle", "p1")
	assert.Equal(t, true, toggled["favorite"])

	var list struct {
		Entries []struct {
			ProductID string `json:"productId"`
		} `json:"entries"`
	}
	c.json(&list, "fav", "list")
	require.Len(t, list.Entries, 1)
	assert.Equal(t, "p1", list.Entries[0].ProductID)

	c.json(&toggled, "fav", "toggle", "p1")
	assert.Equal(t, false, toggled["favorite"])

	out, err := c.run("fav", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No favorites")
}

func TestRun_Products(t *testing.T) {
	t.Parallel()

	c := newCLI(t)

	out, err := c.run("products")
	require.NoError(t, err)
	assert.Contains(t, out, "Apple")
	assert.NotContains(t, out, "Plum")

	out, err = c.run("products", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "Plum")

	out, err = c.run("product", "p1", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "productName: Apple")

	_, err = c.run("product", "missing")
	require.Error(t, err)
}

func TestRun_InvalidConfig(t *testing.T) {
	t.Parallel()

	c := newCLI(t)
	_, err := c.run("version", "-o", "xml")
	require.Error(t, err)

	out, err := c.run("version")
	require.NoError(t, err)
	assert.Contains(t, out, "storefront dev")
}

func TestPrinter_Money(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := newPrinter(&buf, "USD", "en_US.UTF-8")
	s := p.money(1234.5)
	assert.Contains(t, s, "$")
	assert.Contains(t, s, "1,234.50")

	p = newPrinter(&buf, "not-a-currency", "")
	assert.Contains(t, p.money(1), "$")

	p.line("%d items", 3)
	require.NoError(t, p.err)
	assert.Equal(t, "3 items\n", buf.String())
}

func TestLocaleTag(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"de_DE.UTF-8":     "de-DE",
		"en_US":           "en-US",
		"fr_FR@euro":      "fr-FR",
		"":                "",
		"pt_BR.ISO8859-1": "pt-BR",
	}
	for in, want := range tests {
		assert.Equal(t, want, localeTag(in), in)
	}
}

func TestFormatQty(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "×3", formatQty(3))
}
