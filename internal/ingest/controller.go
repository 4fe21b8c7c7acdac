// Package ingest drives the filter → enrich → commit pipeline for
// inbound message events.
package ingest

import (
	"context"
	"log/slog"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/you/slack-mirror/internal/core"
	"github.com/you/slack-mirror/internal/ingesttrace"
	"github.com/you/slack-mirror/internal/resolver"
	"github.com/you/slack-mirror/internal/slack"
	"github.com/you/slack-mirror/internal/store"
)

// Entities resolves channel and user identifiers.
type Entities interface {
	Channel(ctx context.Context, id string) (resolver.Entity, error)
	User(ctx context.Context, id string) (resolver.Entity, error)
}

// TextRenderer rewrites raw markup into HTML.
type TextRenderer interface {
	Render(ctx context.Context, raw string) (string, error)
}

// Publisher fans a committed message out to live viewers.
type Publisher interface {
	Broadcast(msg core.Message)
}

// Controller runs the three-stage pipeline. Each stage short-circuits:
// a resolution failure drops the event and is logged, never fatal to
// the process. Webhook deliveries may arrive concurrently; commit
// order follows completion order (first enriched, first committed),
// which is acceptable because the platform does not order deliveries
// either.
type Controller struct {
	channel   string
	entities  Entities
	renderer  TextRenderer
	store     store.Store
	publisher Publisher
	logger    *slog.Logger
	metrics   *pipelineMetrics
}

func New(mirrorChannel string, entities Entities, renderer TextRenderer, st store.Store, publisher Publisher, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		channel:   mirrorChannel,
		entities:  entities,
		renderer:  renderer,
		store:     st,
		publisher: publisher,
		logger:    logger,
		metrics:   newPipelineMetrics(),
	}
}

// RegisterMetrics exposes the pipeline counters on reg, typically the
// viewer API's /metrics registry.
func (c *Controller) RegisterMetrics(reg prometheus.Registerer) error {
	return c.metrics.register(reg)
}

// HandleEvent processes one validated raw event.
func (c *Controller) HandleEvent(ctx context.Context, event core.RawEvent) error {
	c.metrics.incSeen()
	trace := ingesttrace.NewTraceFromEvent(event.Channel, event.User, snippet(event.Text))

	// Filter: the channel ID must resolve to the configured mirror
	// channel, and system/bot events without a user are ignored.
	channel, err := c.entities.Channel(ctx, event.Channel)
	if err != nil {
		c.metrics.incDropped("channel_resolve")
		trace.IncCounter(ingesttrace.StageDropped("channel_resolve"))
		c.logger.Error("mirror: resolve channel failed",
			"channel_id", event.Channel, "code", slack.ErrorCode(err), "err", err)
		return errors.Wrap(err, "resolve channel")
	}
	trace.IncCounter(ingesttrace.StageChannelResolved)

	if channel.Name != c.channel {
		c.metrics.incDropped("other_channel")
		trace.IncCounter(ingesttrace.StageDropped("other_channel"))
		c.logger.Debug("mirror: ignoring event for other channel",
			"channel", channel.Name, "want", c.channel)
		return nil
	}

	if event.User == "" {
		c.metrics.incDropped("no_user")
		trace.IncCounter(ingesttrace.StageDropped("no_user"))
		c.logger.Debug("mirror: ignoring event without user", "channel", channel.Name)
		return nil
	}

	// Enrich: resolve the author, render the text. Either failure
	// drops the event; no partial message is emitted.
	user, err := c.entities.User(ctx, event.User)
	if err != nil {
		c.metrics.incDropped("user_resolve")
		trace.IncCounter(ingesttrace.StageDropped("user_resolve"))
		c.logger.Error("mirror: resolve user failed",
			"user_id", event.User, "code", slack.ErrorCode(err), "err", err)
		return errors.Wrap(err, "resolve user")
	}

	rendered, err := c.renderer.Render(ctx, event.Text)
	if err != nil {
		c.metrics.incDropped("render")
		trace.IncCounter(ingesttrace.StageDropped("render"))
		c.logger.Error("mirror: render failed",
			"user", user.Name, "code", slack.ErrorCode(err), "err", err)
		return errors.Wrap(err, "render text")
	}
	trace.IncCounter(ingesttrace.StageRenderedOK)

	// Commit: append then fan out.
	msg := core.Message{
		User:      user.Name,
		AvatarURL: user.AvatarURL,
		Text:      rendered,
		Ts:        event.Ts,
	}
	if err := c.store.Append(msg); err != nil {
		c.metrics.incDropped("store_append")
		trace.IncCounter(ingesttrace.StageDropped("store_append"))
		c.logger.Error("mirror: store append failed", "err", err)
		return errors.Wrap(err, "append message")
	}
	if c.publisher != nil {
		c.publisher.Broadcast(msg)
	}

	c.metrics.incProcessed()
	trace.IncCounter(ingesttrace.StageCommitted)
	trace.LogTrace(c.logger, "mirror: committed message")
	c.logger.Info("mirror: message mirrored",
		"user", msg.User, "channel", channel.Name, "ts", msg.Ts)
	return nil
}

func snippet(text string) string {
	const max = 48
	if len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
