package atclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// APIError is a non-2xx XRPC response. Name and Message come from the JSON error body, when the server sent one.
type APIError struct {
	StatusCode int
	Name       string
	Message    string
}

func (ae *APIError) Error() string {
	msg := fmt.Sprintf("XRPC request failed (HTTP %d)", ae.StatusCode)
	if ae.Name != "" {
		msg += ": " + ae.Name
	}
	if ae.Message != "" {
		msg += ": " + ae.Message
	}
	return msg
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// readAPIError consumes the response body. Bodies which are not JSON still produce an error carrying the status code.
func readAPIError(resp *http.Response) *APIError {
	ae := &APIError{StatusCode: resp.StatusCode}
	var eb errorBody
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&eb); err == nil {
		ae.Name = eb.Error
		ae.Message = eb.Message
	}
	return ae
}
