// ABOUTME: Auth endpoints of the hosted backend: sign-up, sign-in, sign-out
// ABOUTME: Also revalidates cached sessions against the server

package remote

import (
	"context"
	"net/http"
)

// AuthSession is the backend's view of an authenticated identity.
type AuthSession struct {
	UserID      string
	Email       string
	AccessToken string
}

type authUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type authResponse struct {
	AccessToken string   `json:"access_token"`
	User        authUser `json:"user"`
	ID          string   `json:"id"` // sign-up responses carry the user at top level
	Email       string   `json:"email"`
}

// SignUp creates an auth identity for the email/password pair.
func (c *Client) SignUp(ctx context.Context, email, password string) (*AuthSession, error) {
	body := map[string]string{"email": email, "password": password}

	var out authResponse
	if err := c.do(ctx, http.MethodPost, "/auth/v1/signup", "", body, &out); err != nil {
		return nil, err
	}

	sess := &AuthSession{
		UserID:      out.User.ID,
		Email:       out.User.Email,
		AccessToken: out.AccessToken,
	}
	if sess.UserID == "" {
		sess.UserID = out.ID
		sess.Email = out.Email
	}

	c.logger.Debug("signed up", "user_id", sess.UserID)
	return sess, nil
}

// SignIn authenticates with email and password.
// Wrong credentials return ErrBadCredentials.
func (c *Client) SignIn(ctx context.Context, email, password string) (*AuthSession, error) {
	body := map[string]string{"email": email, "password": password}

	var out authResponse
	err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "", body, &out)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("signed in", "user_id", out.User.ID)
	return &AuthSession{
		UserID:      out.User.ID,
		Email:       out.User.Email,
		AccessToken: out.AccessToken,
	}, nil
}

// SignOut revokes the backend session for the token.
func (c *Client) SignOut(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/auth/v1/logout", token, nil, nil)
}

// ValidateToken checks a cached access token against the server, detecting
// server-side revocation or expiry before the client trusts it.
func (c *Client) ValidateToken(ctx context.Context, token string) (*AuthSession, error) {
	var out authUser
	if err := c.do(ctx, http.MethodGet, "/auth/v1/user", token, nil, &out); err != nil {
		return nil, err
	}
	return &AuthSession{UserID: out.ID, Email: out.Email, AccessToken: token}, nil
}
