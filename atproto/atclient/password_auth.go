package atclient

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var didRegex = regexp.MustCompile(`^did:[a-z]+:[a-zA-Z0-9._:%-]*[a-zA-Z0-9._-]$`)

// Implementation of [AuthMethod] for password-based sessions with atproto PDS hosts. Refreshes the access token with the refresh token when the server reports it expired.
//
// It is safe to use this auth method concurrently from multiple goroutines.
type PasswordAuth struct {
	Session PasswordSessionData

	// protects the tokens in Session
	lk sync.RWMutex
}

// Data about a PDS password auth session.
type PasswordSessionData struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	AccountDID   string `json:"account_did"`
	Handle       string `json:"handle"`
	Host         string `json:"host"`
}

type createSessionRequest struct {
	// Handle or other identifier supported by the server for the authenticating user.
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type createSessionResponse struct {
	AccessJwt  string  `json:"accessJwt"`
	RefreshJwt string  `json:"refreshJwt"`
	Active     *bool   `json:"active,omitempty"`
	Did        string  `json:"did"`
	Handle     string  `json:"handle"`
	Status     *string `json:"status,omitempty"`
}

type refreshSessionResponse struct {
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
	Did        string `json:"did"`
}

// ErrSessionIncomplete is returned when a createSession response lacks tokens or a valid DID.
var ErrSessionIncomplete = fmt.Errorf("session response did not contain authentication tokens")

// ErrAccountInactive is returned when the server reports the account as deactivated, suspended, or taken down.
var ErrAccountInactive = fmt.Errorf("account is not active")

// access tokens expiring within this window are refreshed before use
const refreshSkew = 30 * time.Second

// tokenExpiring reports whether the "exp" claim of a JWT is within [refreshSkew] of now. The signature is not verified; opaque tokens are never considered expiring.
func tokenExpiring(token string, now time.Time) bool {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil || claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.Time.Before(now.Add(refreshSkew))
}

func (a *PasswordAuth) DoWithAuth(c *http.Client, req *http.Request, endpoint string) (*http.Response, error) {
	accessToken, refreshToken := a.GetTokens()
	if tokenExpiring(accessToken, time.Now()) {
		// on failure, continue with the old token; the server decides
		if err := a.Refresh(req.Context(), c, refreshToken); err == nil {
			accessToken, refreshToken = a.GetTokens()
		}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}

	// on success, or most errors, just return HTTP response
	if resp.StatusCode != http.StatusBadRequest || !strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		return resp, nil
	}

	defer resp.Body.Close()
	if ae := readAPIError(resp); ae.Name != "ExpiredToken" {
		return nil, ae
	}

	if err := a.Refresh(req.Context(), c, refreshToken); err != nil {
		return nil, fmt.Errorf("refreshing expired session: %w", err)
	}

	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		retry.Body, err = req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("rewinding request body for retry: %w", err)
		}
	}

	accessToken, _ = a.GetTokens()
	retry.Header.Set("Authorization", "Bearer "+accessToken)
	return c.Do(retry)
}

// Returns current access and refresh tokens.
func (a *PasswordAuth) GetTokens() (string, string) {
	a.lk.RLock()
	defer a.lk.RUnlock()
	return a.Session.AccessToken, a.Session.RefreshToken
}

// Refreshes auth tokens. `priorRefreshToken` detects a concurrent refresh which already took place.
func (a *PasswordAuth) Refresh(ctx context.Context, c *http.Client, priorRefreshToken string) error {

	a.lk.Lock()
	defer a.lk.Unlock()

	if priorRefreshToken != "" && priorRefreshToken != a.Session.RefreshToken {
		return nil
	}

	u := a.Session.Host + "/xrpc/com.atproto.server.refreshSession"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "skyengage")
	// NOTE: refresh token here, not access token
	req.Header.Set("Authorization", "Bearer "+a.Session.RefreshToken)

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var out refreshSessionResponse
	if err := decodeResponse(resp, &out); err != nil {
		return err
	}
	if out.AccessJwt == "" || out.RefreshJwt == "" {
		return ErrSessionIncomplete
	}

	a.Session.AccessToken = out.AccessJwt
	a.Session.RefreshToken = out.RefreshJwt
	return nil
}

// Ends the session server-side, invalidating the refresh token.
func (a *PasswordAuth) Logout(ctx context.Context, c *http.Client) error {
	_, refreshToken := a.GetTokens()

	u := a.Session.Host + "/xrpc/com.atproto.server.deleteSession"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "skyengage")
	req.Header.Set("Authorization", "Bearer "+refreshToken)

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, nil)
}

// LoginWithPassword creates a session on the client's host and configures [PasswordAuth] on the client.
//
// Note that with some PDS implementations, 'username' could be an email address.
func (c *APIClient) LoginWithPassword(ctx context.Context, username, password string) error {
	reqBody := createSessionRequest{
		Identifier: username,
		Password:   password,
	}

	var out createSessionResponse
	if err := c.Post(ctx, "com.atproto.server.createSession", &reqBody, &out); err != nil {
		return err
	}

	if out.Active != nil && !*out.Active {
		status := "unknown"
		if out.Status != nil {
			status = *out.Status
		}
		return fmt.Errorf("%w: %s", ErrAccountInactive, status)
	}
	if out.AccessJwt == "" || out.RefreshJwt == "" || !didRegex.MatchString(out.Did) {
		return ErrSessionIncomplete
	}

	c.Auth = &PasswordAuth{
		Session: PasswordSessionData{
			AccessToken:  out.AccessJwt,
			RefreshToken: out.RefreshJwt,
			AccountDID:   out.Did,
			Handle:       out.Handle,
			Host:         c.Host,
		},
	}
	c.AccountDID = out.Did
	return nil
}
