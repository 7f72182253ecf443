// Package bsky implements [graph.Service] against a Bluesky PDS using atproto XRPC endpoints.
package bsky

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bluesky-social/skyengage/atproto/atclient"
	"github.com/bluesky-social/skyengage/internal/graph"
	"github.com/bluesky-social/skyengage/pkg/robusthttp"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

// Service reference for routing chat.bsky.* calls through the PDS.
const ChatServiceRef = "did:web:api.bsky.chat#bsky_chat"

type Config struct {
	Logger *slog.Logger

	// Maximum XRPC requests per second, per session. Zero means unlimited.
	RequestsPerSecond float64

	// Per-request timeout, including transport-level retries. Defaults to 30s.
	Timeout time.Duration

	// Transport-level retries on connection errors and 5xx responses. Zero keeps the robusthttp default.
	MaxRetries int

	// Optional; overrides the robust HTTP client (used by tests).
	HTTPClient *http.Client

	// Service reference for chat endpoints. Defaults to [ChatServiceRef].
	ChatService string

	// How long resolved profiles are reused across sessions. Defaults to one hour; negative disables caching.
	ProfileCacheTTL time.Duration
}

const profileCacheSize = 10_000

type Service struct {
	cfg    Config
	logger *slog.Logger

	// keyed by service host and actor
	profiles *expirable.LRU[string, graph.Profile]
}

var _ graph.Service = (*Service)(nil)

func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ChatService == "" {
		cfg.ChatService = ChatServiceRef
	}
	if cfg.ProfileCacheTTL == 0 {
		cfg.ProfileCacheTTL = time.Hour
	}
	s := &Service{
		cfg:    cfg,
		logger: logger.With("component", "bsky"),
	}
	if cfg.ProfileCacheTTL > 0 {
		s.profiles = expirable.NewLRU[string, graph.Profile](profileCacheSize, nil, cfg.ProfileCacheTTL)
	}
	return s
}

func (s *Service) httpClient(proxy string) (*http.Client, error) {
	if s.cfg.HTTPClient != nil {
		return s.cfg.HTTPClient, nil
	}
	opts := []robusthttp.Option{
		robusthttp.WithLogger(s.logger),
		robusthttp.WithTimeout(s.cfg.Timeout),
		robusthttp.WithProxy(proxy),
	}
	if s.cfg.MaxRetries > 0 {
		opts = append(opts, robusthttp.WithMaxRetries(s.cfg.MaxRetries))
	}
	return robusthttp.NewClient(opts...)
}

func (s *Service) Authenticate(ctx context.Context, creds graph.Credentials) (graph.Session, error) {
	hc, err := s.httpClient(creds.Proxy)
	if err != nil {
		return nil, graph.Wrap(graph.KindAuth, "", err)
	}

	c := atclient.NewAPIClient(strings.TrimRight(creds.Service, "/"))
	c.Client = hc
	if s.cfg.RequestsPerSecond > 0 {
		c.Limiter = rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSecond), 1)
	}

	if err := c.LoginWithPassword(ctx, creds.Identifier, creds.Secret); err != nil {
		return nil, classifyAuth(err)
	}

	sess := &Session{
		client:   c,
		chat:     c.WithService(s.cfg.ChatService),
		did:      c.AccountDID,
		logger:   s.logger.With("did", c.AccountDID),
		profiles: s.profiles,
	}
	if pa, ok := c.Auth.(*atclient.PasswordAuth); ok {
		sess.handle = pa.Session.Handle
	}
	if sess.handle == "" {
		sess.handle = creds.Identifier
	}
	sess.logger.Debug("session created", "handle", sess.handle)
	return sess, nil
}

// Session is an authenticated connection to one account's PDS.
type Session struct {
	client *atclient.APIClient
	chat   *atclient.APIClient
	did    string
	handle string
	logger *slog.Logger

	// shared with the parent Service; may be nil
	profiles *expirable.LRU[string, graph.Profile]
}

func (s *Session) DID() string {
	return s.did
}

func (s *Session) Handle() string {
	return s.handle
}

func (s *Session) Close(ctx context.Context) error {
	pa, ok := s.client.Auth.(*atclient.PasswordAuth)
	if !ok {
		return nil
	}
	if err := pa.Logout(ctx, s.client.Client); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

func (s *Session) ResolveProfile(ctx context.Context, actor string) (*graph.Profile, error) {
	const nsid = "app.bsky.actor.getProfile"
	key := s.client.Host + " " + actor
	if s.profiles != nil {
		if p, ok := s.profiles.Get(key); ok {
			return &p, nil
		}
	}

	var out profileView
	if err := s.client.Get(ctx, nsid, map[string]any{"actor": actor}, &out); err != nil {
		return nil, classifyRead(nsid, err)
	}
	if out.Did == "" {
		return nil, graph.Wrap(graph.KindNotFound, nsid, fmt.Errorf("profile without DID: %s", actor))
	}
	p := out.profile()
	if s.profiles != nil {
		s.profiles.Add(key, p)
	}
	return &p, nil
}

func (s *Session) ListFollowers(ctx context.Context, actor string, limit int, cursor string) ([]graph.Profile, string, error) {
	const nsid = "app.bsky.graph.getFollowers"
	params := map[string]any{
		"actor":  actor,
		"limit":  limit,
		"cursor": cursor,
	}
	var out getFollowersOutput
	if err := s.client.Get(ctx, nsid, params, &out); err != nil {
		return nil, "", classifyRead(nsid, err)
	}
	followers := make([]graph.Profile, 0, len(out.Followers))
	for _, f := range out.Followers {
		if f == nil {
			continue
		}
		followers = append(followers, f.profile())
	}
	next := ""
	if out.Cursor != nil {
		next = *out.Cursor
	}
	return followers, next, nil
}

func (s *Session) Follow(ctx context.Context, did string) error {
	rec := followRecord{
		Type:      "app.bsky.graph.follow",
		Subject:   did,
		CreatedAt: now(),
	}
	return s.createRecord(ctx, rec.Type, rec)
}

func (s *Session) LatestPost(ctx context.Context, actor string) (*graph.Post, error) {
	const nsid = "app.bsky.feed.getAuthorFeed"
	params := map[string]any{
		"actor": actor,
		"limit": 1,
	}
	var out getAuthorFeedOutput
	if err := s.client.Get(ctx, nsid, params, &out); err != nil {
		return nil, classifyRead(nsid, err)
	}
	for _, item := range out.Feed {
		if item == nil || item.Post == nil || item.Post.URI == "" || item.Post.CID == "" {
			continue
		}
		return &graph.Post{URI: item.Post.URI, CID: item.Post.CID}, nil
	}
	return nil, nil
}

func (s *Session) Like(ctx context.Context, uri, cid string) error {
	rec := likeRecord{
		Type:      "app.bsky.feed.like",
		Subject:   strongRef{URI: uri, CID: cid},
		CreatedAt: now(),
	}
	return s.createRecord(ctx, rec.Type, rec)
}

func (s *Session) createRecord(ctx context.Context, collection string, record any) error {
	const nsid = "com.atproto.repo.createRecord"
	body := createRecordInput{
		Repo:       s.did,
		Collection: collection,
		Record:     record,
	}
	var out createRecordOutput
	if err := s.client.Post(ctx, nsid, &body, &out); err != nil {
		return classifyWrite(nsid, err)
	}
	s.logger.Debug("record created", "collection", collection, "uri", out.URI)
	return nil
}

func (s *Session) ResolveConversation(ctx context.Context, did string) (string, error) {
	const nsid = "chat.bsky.convo.getConvoForMembers"
	params := map[string]any{
		"members": []string{did},
	}
	var out getConvoForMembersOutput
	if err := s.chat.Get(ctx, nsid, params, &out); err != nil {
		return "", classifyChat(nsid, err)
	}
	if out.Convo == nil || out.Convo.ID == "" {
		return "", graph.Wrap(graph.KindUnsupported, nsid, fmt.Errorf("response did not include a conversation"))
	}
	return out.Convo.ID, nil
}

func (s *Session) SendMessage(ctx context.Context, convoID, text string) error {
	const nsid = "chat.bsky.convo.sendMessage"
	body := sendMessageInput{
		ConvoID: convoID,
		Message: messageInput{Text: text},
	}
	if err := s.chat.Post(ctx, nsid, &body, nil); err != nil {
		return classifyChat(nsid, err)
	}
	return nil
}

func now() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}
