// Package render rewrites raw Slack markup into browser-ready HTML.
// The rules run as an ordered chain; ordering matters because later
// rules must not re-match text produced by earlier ones (the anchor
// tags emitted by the link rules would otherwise be re-eaten by the
// bare-link pattern).
package render

import (
	"context"
	"html"
	"regexp"

	"github.com/you/slack-mirror/internal/resolver"
)

var (
	mentionPattern     = regexp.MustCompile(`<@([a-zA-Z0-9]+)>`)
	emojiPattern       = regexp.MustCompile(`:([a-zA-Z0-9_-]+)(::[a-zA-Z0-9_-]+)?:`)
	labeledLinkPattern = regexp.MustCompile(`<(https?://.+?)\|([^>]+?)>`)
	bareLinkPattern    = regexp.MustCompile(`<(https?://.+?)>`)
	channelTagPattern  = regexp.MustCompile(`<#([a-zA-Z0-9]+)\|([\p{L}\p{N}_-]+)>`)
	blankLinePattern   = regexp.MustCompile(`\n{3,}`)
)

// UserResolver resolves mention IDs to display names.
type UserResolver interface {
	User(ctx context.Context, id string) (resolver.Entity, error)
}

// EmojiCatalog resolves :shortcode: tokens to HTML fragments.
type EmojiCatalog interface {
	Render(code string) string
}

type Renderer struct {
	users UserResolver
	emoji EmojiCatalog
}

func New(users UserResolver, emoji EmojiCatalog) *Renderer {
	return &Renderer{users: users, emoji: emoji}
}

// Render applies the rewrite chain to raw markup. A mention that fails
// to resolve aborts the whole render: a half-rendered message leaking
// raw platform markup is worse than no message.
func (r *Renderer) Render(ctx context.Context, raw string) (string, error) {
	text := raw

	var resolveErr error
	text = mentionPattern.ReplaceAllStringFunc(text, func(match string) string {
		if resolveErr != nil {
			return match
		}
		id := mentionPattern.FindStringSubmatch(match)[1]
		entity, err := r.users.User(ctx, id)
		if err != nil {
			resolveErr = err
			return match
		}
		return "@" + html.EscapeString(entity.Name)
	})
	if resolveErr != nil {
		return "", resolveErr
	}

	text = emojiPattern.ReplaceAllStringFunc(text, func(match string) string {
		// The ::modifier suffix (skin tones) is recognized but dropped.
		code := emojiPattern.FindStringSubmatch(match)[1]
		return r.emoji.Render(code)
	})

	text = labeledLinkPattern.ReplaceAllStringFunc(text, func(match string) string {
		parts := labeledLinkPattern.FindStringSubmatch(match)
		return anchor(parts[1], parts[2])
	})

	text = bareLinkPattern.ReplaceAllStringFunc(text, func(match string) string {
		url := bareLinkPattern.FindStringSubmatch(match)[1]
		return anchor(url, url)
	})

	text = channelTagPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := channelTagPattern.FindStringSubmatch(match)[2]
		return "#" + html.EscapeString(name)
	})

	text = blankLinePattern.ReplaceAllString(text, "\n\n")

	return text, nil
}

func anchor(url, label string) string {
	return `<a href="` + html.EscapeString(url) + `" target="_blank">` + html.EscapeString(label) + `</a>`
}
