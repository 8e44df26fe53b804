package api

import (
	"context"
	"net/http"
)

type loginData struct {
	AccessToken string `json:"accessToken"`
	Token       string `json:"token"`
}

// Login exchanges credentials for an access token. The request never
// carries an existing token.
func (c *Client) Login(ctx context.Context, creds Credentials) (string, error) {
	if err := c.check(creds); err != nil {
		return "", err
	}

	var data loginData
	if err := c.do(ctx, request{method: http.MethodPost, path: "/auth/login", body: creds}, &data); err != nil {
		return "", err
	}

	token := data.AccessToken
	if token == "" {
		token = data.Token
	}
	if token == "" {
		return "", &Error{Kind: ErrServer, Message: "login response carried no token"}
	}
	return token, nil
}

// Register creates an account. It does not log the user in.
func (c *Client) Register(ctx context.Context, reg Registration) error {
	if err := c.check(reg); err != nil {
		return err
	}
	return c.do(ctx, request{method: http.MethodPost, path: "/users/register", body: reg}, nil)
}

// Profile returns the authenticated user's profile.
func (c *Client) Profile(ctx context.Context) (User, error) {
	var u User
	err := c.do(ctx, request{method: http.MethodGet, path: "/auth/profile", auth: true}, &u)
	return u, err
}

// Logout tells the server to end the session.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, request{method: http.MethodPost, path: "/auth/logout", auth: true}, nil)
}
