// Package emoji maps :shortcode: tokens to render fragments. The
// catalog is seeded from the standard emoji table and overlaid with
// the workspace custom registry at startup; custom entries win on
// collision.
package emoji

import (
	"context"
	"html"
	"strings"
	"sync"

	emojidata "github.com/kyokomi/emoji/v2"
)

const (
	aliasPrefix = "alias:"
	// Registries are observed to use a single level of indirection,
	// but a cyclic alias must not loop forever.
	maxAliasDepth = 8
)

// Registry is the remote custom-emoji source, implemented by
// *slack.Client.
type Registry interface {
	EmojiList(ctx context.Context) (map[string]string, error)
}

type Catalog struct {
	mu    sync.RWMutex
	codes map[string]string
}

// Load builds the catalog: standard table first, then the remote
// custom registry on top.
func Load(ctx context.Context, reg Registry) (*Catalog, error) {
	codes := standardTable()

	custom, err := reg.EmojiList(ctx)
	if err != nil {
		return nil, err
	}
	for code, value := range custom {
		codes[strings.Trim(code, ":")] = value
	}

	return &Catalog{codes: codes}, nil
}

// NewStatic builds a catalog from a fixed table (tests, devfeed).
func NewStatic(codes map[string]string) *Catalog {
	table := make(map[string]string, len(codes))
	for code, value := range codes {
		table[strings.Trim(code, ":")] = value
	}
	return &Catalog{codes: table}
}

// Render resolves a shortcode to its HTML fragment: the glyph itself,
// an <img> tag for URL-backed custom emoji, or the literal
// :shortcode: when unknown.
func (c *Catalog) Render(code string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	current := code
	for depth := 0; depth <= maxAliasDepth; depth++ {
		value, ok := c.codes[current]
		if !ok {
			break
		}
		if strings.HasPrefix(value, aliasPrefix) {
			current = strings.TrimPrefix(value, aliasPrefix)
			continue
		}
		if strings.HasPrefix(value, "https://") || strings.HasPrefix(value, "http://") {
			return `<img class="emoji" src="` + html.EscapeString(value) + `" title="` + html.EscapeString(current) + `">`
		}
		return value
	}
	return ":" + code + ":"
}

// Size reports the number of known shortcodes.
func (c *Catalog) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.codes)
}

func standardTable() map[string]string {
	source := emojidata.CodeMap()
	codes := make(map[string]string, len(source))
	for code, glyph := range source {
		codes[strings.Trim(code, ":")] = glyph
	}
	return codes
}
