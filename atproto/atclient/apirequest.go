package atclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
)

// loose check that an endpoint looks like a method NSID, eg "app.bsky.graph.getFollowers"
var endpointPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9-]*(\.[a-zA-Z0-9][a-zA-Z0-9-]*)+\.[a-zA-Z][a-zA-Z0-9]*$`)

// APIRequest describes a single XRPC call, independent of the host it is sent to.
type APIRequest struct {
	Method   string
	Endpoint string

	// Request body. Held in memory so the request can be re-sent after a session refresh.
	Body []byte

	QueryParams url.Values

	// Request-level headers. These take precedence over client defaults.
	Headers http.Header
}

func NewAPIRequest(method, endpoint string, body []byte) *APIRequest {
	return &APIRequest{
		Method:      method,
		Endpoint:    endpoint,
		Body:        body,
		QueryParams: url.Values{},
		Headers:     http.Header{},
	}
}

// HTTPRequest builds the request for the given host URL ("https://pds.example.com"). Defaults from clientHeaders are applied first.
func (r *APIRequest) HTTPRequest(ctx context.Context, host string, clientHeaders http.Header) (*http.Request, error) {
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid host URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.New("host URL must include scheme and hostname")
	}
	if !endpointPattern.MatchString(r.Endpoint) {
		return nil, fmt.Errorf("invalid request endpoint: %q", r.Endpoint)
	}

	u.Path = "/xrpc/" + r.Endpoint
	u.RawQuery = r.QueryParams.Encode()

	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}
	// bytes.Reader bodies get GetBody populated, which retries rely on
	httpReq, err := http.NewRequestWithContext(ctx, r.Method, u.String(), body)
	if err != nil {
		return nil, err
	}

	mergeHeaders(httpReq.Header, clientHeaders)
	mergeHeaders(httpReq.Header, r.Headers)
	return httpReq, nil
}

func mergeHeaders(dst, src http.Header) {
	for k, vals := range src {
		if len(vals) > 0 {
			dst.Set(k, vals[0])
		}
	}
}
