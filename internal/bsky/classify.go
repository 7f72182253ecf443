package bsky

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bluesky-social/skyengage/atproto/atclient"
	"github.com/bluesky-social/skyengage/internal/graph"
)

func apiError(err error) *atclient.APIError {
	var apiErr *atclient.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return nil
}

// classifyAuth treats every createSession failure as fatal for the account's run, including network failures and rate-limits.
func classifyAuth(err error) error {
	return graph.Wrap(graph.KindAuth, "com.atproto.server.createSession", err)
}

// classifyRead maps query failures; missing actors are reported as not-found.
func classifyRead(nsid string, err error) error {
	if ae := apiError(err); ae != nil {
		if ae.StatusCode == http.StatusNotFound || ae.Name == "NotFound" || ae.Name == "ActorNotFound" ||
			(ae.StatusCode == http.StatusBadRequest && strings.Contains(strings.ToLower(ae.Message), "not found")) {
			return graph.Wrap(graph.KindNotFound, nsid, err)
		}
	}
	return graph.Wrap(graph.KindTransient, nsid, err)
}

func classifyWrite(nsid string, err error) error {
	return graph.Wrap(graph.KindTransient, nsid, err)
}

// classifyChat separates "this service or token cannot do DMs at all" from per-recipient failures.
func classifyChat(nsid string, err error) error {
	ae := apiError(err)
	if ae == nil {
		return graph.Wrap(graph.KindTransient, nsid, err)
	}
	switch {
	case ae.StatusCode == http.StatusNotFound, ae.StatusCode == http.StatusNotImplemented:
		return graph.Wrap(graph.KindUnsupported, nsid, err)
	case ae.Name == "MethodNotImplemented", ae.Name == "XRPCNotSupported":
		return graph.Wrap(graph.KindUnsupported, nsid, err)
	case ae.StatusCode == http.StatusUnauthorized, ae.StatusCode == http.StatusForbidden:
		// app passwords without the DM privilege are rejected here
		return graph.Wrap(graph.KindUnsupported, nsid, err)
	case ae.Name == "InvalidToken", ae.Name == "AuthMissing":
		return graph.Wrap(graph.KindUnsupported, nsid, err)
	}
	return graph.Wrap(graph.KindTransient, nsid, err)
}
