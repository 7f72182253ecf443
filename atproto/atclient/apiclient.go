package atclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/time/rate"
)

// Interface for auth implementations which can be used with [APIClient].
type AuthMethod interface {
	// Endpoint parameter is included for auth methods which need the NSID, eg for logging or scoped tokens
	DoWithAuth(c *http.Client, req *http.Request, endpoint string) (*http.Response, error)
}

// General purpose client for atproto "XRPC" API endpoints.
type APIClient struct {
	// Inner HTTP client. May be customized after the overall [APIClient] struct is created; for example to set a proxy or a default request timeout.
	Client *http.Client

	// Host URL prefix: scheme, hostname, and port. This field is required.
	Host string

	// Optional auth client "middleware".
	Auth AuthMethod

	// Optional HTTP headers which will be included in all requests. Only a single value per key is included; request-level headers will override any client-level defaults.
	Headers http.Header

	// Optional limiter; every request waits for a token before being sent.
	Limiter *rate.Limiter

	// DID of the authenticated account, if any. Set by [APIClient.LoginWithPassword].
	AccountDID string
}

// Creates a simple APIClient for the provided host, using [http.DefaultClient] and a default User-Agent.
func NewAPIClient(host string) *APIClient {
	return &APIClient{
		Client: http.DefaultClient,
		Host:   host,
		Headers: map[string][]string{
			"User-Agent": []string{"skyengage"},
		},
	}
}

// High-level helper for simple JSON "Query" API calls.
//
// Non-successful responses are parsed to [APIError].
func (c *APIClient) Get(ctx context.Context, endpoint string, params map[string]any, out any) error {

	req := NewAPIRequest(http.MethodGet, endpoint, nil)
	req.Headers.Set("Accept", "application/json")

	if params != nil {
		qp, err := ParseParams(params)
		if err != nil {
			return err
		}
		req.QueryParams = qp
	}

	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

// High-level helper for simple JSON-to-JSON "Procedure" API calls, with no query params.
//
// Non-successful responses are parsed to [APIError]. A nil body sends no request body at all.
func (c *APIClient) Post(ctx context.Context, endpoint string, body any, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		payload = b
	}

	req := NewAPIRequest(http.MethodPost, endpoint, payload)
	req.Headers.Set("Accept", "application/json")
	if body != nil {
		req.Headers.Set("Content-Type", "application/json")
	}

	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readAPIError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response body: %w", err)
	}
	return nil
}

// Full-featured method for atproto API requests. Does not parse error responses.
func (c *APIClient) Do(ctx context.Context, req *APIRequest) (*http.Response, error) {

	if c.Client == nil {
		c.Client = http.DefaultClient
	}

	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	httpReq, err := req.HTTPRequest(ctx, c.Host, c.Headers)
	if err != nil {
		return nil, err
	}

	if c.Auth != nil {
		return c.Auth.DoWithAuth(c.Client, httpReq, req.Endpoint)
	}
	return c.Client.Do(httpReq)
}

// Returns a shallow copy of the APIClient with the provided service ref configured as a proxy header (eg, "did:web:api.bsky.chat#bsky_chat").
func (c *APIClient) WithService(ref string) *APIClient {
	hdr := c.Headers.Clone()
	if hdr == nil {
		hdr = http.Header{}
	}
	hdr.Set("Atproto-Proxy", ref)
	out := APIClient{
		Client:     c.Client,
		Host:       c.Host,
		Auth:       c.Auth,
		Headers:    hdr,
		Limiter:    c.Limiter,
		AccountDID: c.AccountDID,
	}
	return &out
}
