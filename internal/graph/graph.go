// Package graph defines the remote social-graph capability consumed by the
// engagement engine: authentication, profile and follower lookups, and the
// mutating actions (follow, like, direct message).
//
// Implementations report failures with the tagged errors in this package so
// that callers can decide, with [errors.Is], whether a failure aborts an
// account, a target, the messaging phase, or just a single action.
package graph

import (
	"context"
)

// Credentials identify one automated account on a remote service.
type Credentials struct {
	// Handle, DID, or other login identifier accepted by the service.
	Identifier string

	// App password (or account password).
	Secret string

	// Service URL prefix: scheme, hostname, and port, eg "https://bsky.social".
	Service string

	// Optional HTTP(S) proxy URL used for all requests of this session.
	Proxy string
}

// Profile is the minimal actor view used for engagement decisions and message templating.
type Profile struct {
	DID         string
	Handle      string
	DisplayName string
}

// Post references a single record which can be liked.
type Post struct {
	URI string
	CID string
}

// Service opens authenticated sessions.
type Service interface {
	// Authenticate returns a session for the account, or an error matching [ErrAuth] if credentials were rejected.
	Authenticate(ctx context.Context, creds Credentials) (Session, error)
}

// Session is scoped to a single account run. Close must be called on every exit path.
type Session interface {
	// DID of the authenticated account.
	DID() string

	// Handle of the authenticated account, as reported by the service.
	Handle() string

	ResolveProfile(ctx context.Context, actor string) (*Profile, error)

	// ListFollowers returns one page of followers of actor. An empty next cursor means end of listing.
	ListFollowers(ctx context.Context, actor string, limit int, cursor string) ([]Profile, string, error)

	Follow(ctx context.Context, did string) error

	// LatestPost returns the most recent post authored by actor, or nil if there is none.
	LatestPost(ctx context.Context, actor string) (*Post, error)

	Like(ctx context.Context, uri, cid string) error

	// ResolveConversation finds or creates the direct-message conversation with did.
	ResolveConversation(ctx context.Context, did string) (string, error)

	SendMessage(ctx context.Context, convoID, text string) error

	Close(ctx context.Context) error
}
