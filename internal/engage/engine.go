// Package engage runs the follow, like, and direct message workflow for each configured account.
//
// Every action taken is recorded in the account's [state.AccountState], so repeated runs only act on followers which have not been handled yet.
package engage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/bluesky-social/skyengage/internal/config"
	"github.com/bluesky-social/skyengage/internal/graph"
	"github.com/bluesky-social/skyengage/internal/state"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("engage")

const (
	statusOK         = "ok"
	statusDryRun     = "dry_run"
	statusAuthFailed = "auth_failed"
	statusLoadFailed = "load_failed"
	statusSaveFailed = "save_failed"
	statusPanic      = "panic"
)

// how long to wait for the best-effort logout
var closeTimeout = 10 * time.Second

type Engine struct {
	Config *config.Config
	Store  state.Store
	Graph  graph.Service
	Logger *slog.Logger

	// Load state and log the plan for each account, without any remote calls.
	DryRun bool

	// Pauses between actions. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error

	// Clock used for message cooldowns. Defaults to time.Now.
	Now func() time.Time
}

func NewEngine(cfg *config.Config, store state.Store, svc graph.Service, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		Config: cfg,
		Store:  store,
		Graph:  svc,
		Logger: logger.With("component", "engage"),
	}
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	if e.Sleep != nil {
		return e.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Run processes every configured account once, in order. Failures are logged and isolated to the account they occurred in. The only error returned is context cancellation.
func (e *Engine) Run(ctx context.Context) error {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("run_id", uuid.NewString())

	start := time.Now()
	defer func() {
		runDuration.Observe(time.Since(start).Seconds())
	}()

	for i := range e.Config.Accounts {
		if err := ctx.Err(); err != nil {
			return err
		}
		acct := &e.Config.Accounts[i]
		status := e.runAccount(ctx, logger.With("account", acct.Handle), acct)
		accountsProcessed.WithLabelValues(status).Inc()
	}
	logger.Info("run complete", "accounts", len(e.Config.Accounts), "duration", time.Since(start))
	return ctx.Err()
}

func (e *Engine) runAccount(ctx context.Context, logger *slog.Logger, acct *config.Account) (status string) {
	ctx, span := tracer.Start(ctx, "ProcessAccount", trace.WithAttributes(attribute.String("account", acct.Handle)))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("unexpected failure processing account", "panic", r, "stack", string(debug.Stack()))
			span.SetStatus(codes.Error, fmt.Sprint(r))
			status = statusPanic
		}
	}()

	status, err := e.processAccount(ctx, logger, acct)
	span.SetAttributes(attribute.String("status", status))
	if err != nil {
		logger.Error("account run failed", "status", status, "err", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
	}
	return status
}

func (e *Engine) processAccount(ctx context.Context, logger *slog.Logger, acct *config.Account) (string, error) {
	logger.Info("processing account")

	st, err := e.Store.Load(ctx, acct.Handle)
	if err != nil {
		return statusLoadFailed, fmt.Errorf("loading state: %w", err)
	}

	if e.DryRun {
		e.logPlan(logger, acct, st)
		return statusDryRun, nil
	}

	sess, err := e.Graph.Authenticate(ctx, graph.Credentials{
		Identifier: acct.Handle,
		Secret:     acct.AppPassword,
		Service:    acct.Service,
		Proxy:      acct.Proxy,
	})
	if err != nil {
		return statusAuthFailed, fmt.Errorf("authenticating: %w", err)
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if err := sess.Close(cctx); err != nil {
			logger.Warn("failed to close session", "err", err)
		}
	}()
	logger.Info("authenticated", "handle", sess.Handle(), "did", sess.DID())

	r := &accountRun{
		engine:      e,
		acct:        acct,
		sess:        sess,
		state:       st,
		logger:      logger,
		followDelay: e.Config.FollowDelay(acct),
		likeDelay:   e.Config.LikeDelay(acct),
	}

	for i := range acct.FollowTargets {
		if ctx.Err() != nil {
			break
		}
		r.engageTarget(ctx, &acct.FollowTargets[i])
	}

	if acct.DM.Active() && ctx.Err() == nil {
		r.messageNewFollowers(ctx)
	}

	// progress made before an interrupt is still recorded
	if err := e.Store.Save(context.WithoutCancel(ctx), acct.Handle, st); err != nil {
		return statusSaveFailed, fmt.Errorf("saving state: %w", err)
	}
	return statusOK, nil
}

func (e *Engine) logPlan(logger *slog.Logger, acct *config.Account, st *state.AccountState) {
	for _, t := range acct.FollowTargets {
		logger.Info("dry-run target",
			"target", t.Handle,
			"follow_limit", optional(t.FollowLimit),
			"like_latest_post", t.LikeLatestPost,
			"like_limit", optional(t.LikeLimit),
			"already_followed", len(st.Target(t.Handle).Followed),
		)
	}
	logger.Info("dry-run messaging",
		"enabled", acct.DM.Active(),
		"limit_per_run", optional(acct.DM.LimitPerRun),
		"cooldown", acct.DM.Cooldown(),
		"known_followers", len(st.KnownFollowers),
	)
	logger.Info("dry-run mode: configuration validated, skipping remote actions",
		"follow_delay", e.Config.FollowDelay(acct),
		"like_delay", e.Config.LikeDelay(acct),
	)
}

func optional(v *int) any {
	if v == nil {
		return "none"
	}
	return *v
}

func limitReached(limit *int, count int) bool {
	return limit != nil && count >= *limit
}

// accountRun holds the resources scoped to one account's processing.
type accountRun struct {
	engine *Engine
	acct   *config.Account
	sess   graph.Session
	state  *state.AccountState
	logger *slog.Logger

	followDelay time.Duration
	likeDelay   time.Duration
}

func (r *accountRun) engageTarget(ctx context.Context, target *config.Target) {
	logger := r.logger.With("target", target.Handle)
	logger.Info("processing target")

	if limitReached(target.FollowLimit, 0) {
		logger.Info("follow limit is zero, skipping target")
		return
	}

	profile, err := r.sess.ResolveProfile(ctx, target.Handle)
	if err != nil {
		logger.Error("failed to resolve target", "err", err)
		return
	}

	ts := r.state.Target(target.Handle)
	followed, liked := 0, 0
	cursor := ""

PAGES:
	for {
		page, next, err := r.sess.ListFollowers(ctx, profile.DID, r.acct.NewFollowersPageSize, cursor)
		if err != nil {
			logger.Error("failed to list target followers", "err", err)
			break
		}

		for _, follower := range page {
			if follower.DID == "" || follower.DID == r.sess.DID() || ts.Followed.Has(follower.DID) {
				continue
			}

			logger.Info("following", "did", follower.DID, "handle", follower.Handle)
			if err := r.sess.Follow(ctx, follower.DID); err != nil {
				if ctx.Err() != nil {
					break PAGES
				}
				logger.Warn("could not follow", "did", follower.DID, "err", err)
				ts.Followed.Add(follower.DID)
				followsTotal.WithLabelValues("error").Inc()
				continue
			}
			ts.Followed.Add(follower.DID)
			followed++
			followsTotal.WithLabelValues("ok").Inc()

			if err := r.engine.sleep(ctx, r.followDelay); err != nil {
				break PAGES
			}

			if target.LikeLatestPost && !limitReached(target.LikeLimit, liked) {
				if r.likeLatestPost(ctx, logger, follower.DID, ts) {
					liked++
					if err := r.engine.sleep(ctx, r.likeDelay); err != nil {
						break PAGES
					}
				}
			}

			if limitReached(target.FollowLimit, followed) {
				logger.Info("reached follow limit", "follow_limit", *target.FollowLimit)
				break PAGES
			}
		}

		if next == "" {
			break
		}
		cursor = next
	}

	logger.Info("finished target", "follows", followed, "likes", liked)
}

// likeLatestPost reports whether a new like was recorded.
func (r *accountRun) likeLatestPost(ctx context.Context, logger *slog.Logger, did string, ts *state.TargetState) bool {
	post, err := r.sess.LatestPost(ctx, did)
	if err != nil {
		logger.Debug("failed to fetch latest post", "did", did, "err", err)
		return false
	}
	if post == nil || ts.LikedPosts.Has(post.URI) {
		return false
	}

	if err := r.sess.Like(ctx, post.URI, post.CID); err != nil {
		logger.Warn("failed to like post", "uri", post.URI, "err", err)
		likesTotal.WithLabelValues("error").Inc()
		return false
	}
	ts.LikedPosts.Add(post.URI)
	likesTotal.WithLabelValues("ok").Inc()
	logger.Info("liked latest post", "uri", post.URI)
	return true
}

func (r *accountRun) messageNewFollowers(ctx context.Context) {
	dm := r.acct.DM
	logger := r.logger
	logger.Info("checking for new followers to message")

	cooldown := dm.Cooldown()
	sent := 0
	cursor := ""

	for {
		page, next, err := r.sess.ListFollowers(ctx, r.sess.DID(), r.acct.NewFollowersPageSize, cursor)
		if err != nil {
			logger.Error("failed to list own followers", "err", err)
			return
		}

		for _, follower := range page {
			if follower.DID == "" {
				continue
			}
			r.state.KnownFollowers.Add(follower.DID)

			if !Eligible(follower.DID, r.state.DMHistory, cooldown, r.engine.now()) {
				continue
			}
			if limitReached(dm.LimitPerRun, sent) {
				logger.Info("reached message limit", "limit_per_run", *dm.LimitPerRun)
				return
			}

			err := r.sendMessage(ctx, follower)
			if errors.Is(err, graph.ErrUnsupported) {
				logger.Warn("direct messages not supported, skipping messaging", "err", err)
				messagesTotal.WithLabelValues("unsupported").Inc()
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn("failed to send message", "did", follower.DID, "err", err)
				messagesTotal.WithLabelValues("error").Inc()
				continue
			}

			r.state.DMHistory[follower.DID] = r.engine.now().UTC().Format(time.RFC3339)
			sent++
			messagesTotal.WithLabelValues("ok").Inc()
			logger.Info("sent message", "did", follower.DID, "handle", follower.Handle)

			if err := r.engine.sleep(ctx, r.followDelay); err != nil {
				return
			}
		}

		if next == "" {
			break
		}
		cursor = next
	}
	logger.Info("finished messaging", "sent", sent)
}

func (r *accountRun) sendMessage(ctx context.Context, follower graph.Profile) error {
	text := Render(r.acct.DM.Message, follower)
	convo, err := r.sess.ResolveConversation(ctx, follower.DID)
	if err != nil {
		return fmt.Errorf("resolving conversation: %w", err)
	}
	if err := r.sess.SendMessage(ctx, convo, text); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}
