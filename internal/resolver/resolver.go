// Package resolver memoizes user and channel lookups against the Slack
// directory. Identifiers are stable for the life of a workspace, so
// entries are cached for the life of the process; profile drift is an
// accepted trade-off. Failed lookups are never cached, so a later call
// retries.
package resolver

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/you/slack-mirror/internal/slack"
)

type Kind string

const (
	KindUser    Kind = "user"
	KindChannel Kind = "channel"
)

// Entity is a user or channel resolved to display-friendly fields.
type Entity struct {
	Kind      Kind
	ID        string
	Name      string
	AvatarURL string
}

// Directory is the remote lookup surface, implemented by *slack.Client.
type Directory interface {
	UserInfo(ctx context.Context, id string) (slack.User, error)
	ChannelInfo(ctx context.Context, id string) (slack.Channel, error)
}

type Resolver struct {
	dir Directory

	mu    sync.RWMutex
	cache map[string]Entity

	group singleflight.Group
}

func New(dir Directory) *Resolver {
	return &Resolver{
		dir:   dir,
		cache: make(map[string]Entity),
	}
}

// User resolves a user ID to its display name and avatar.
func (r *Resolver) User(ctx context.Context, id string) (Entity, error) {
	return r.resolve(ctx, KindUser, id)
}

// Channel resolves a channel ID to its name.
func (r *Resolver) Channel(ctx context.Context, id string) (Entity, error) {
	return r.resolve(ctx, KindChannel, id)
}

func (r *Resolver) resolve(ctx context.Context, kind Kind, id string) (Entity, error) {
	key := string(kind) + "\x1f" + id

	if entity, ok := r.cached(key); ok {
		return entity, nil
	}

	// Concurrent first lookups for the same key share one remote call.
	v, err, _ := r.group.Do(key, func() (any, error) {
		if entity, ok := r.cached(key); ok {
			return entity, nil
		}
		entity, err := r.fetch(ctx, kind, id)
		if err != nil {
			return Entity{}, err
		}
		r.store(key, entity)
		return entity, nil
	})
	if err != nil {
		return Entity{}, err
	}
	return v.(Entity), nil
}

func (r *Resolver) fetch(ctx context.Context, kind Kind, id string) (Entity, error) {
	switch kind {
	case KindChannel:
		ch, err := r.dir.ChannelInfo(ctx, id)
		if err != nil {
			return Entity{}, err
		}
		return Entity{Kind: KindChannel, ID: ch.ID, Name: ch.Name}, nil
	default:
		user, err := r.dir.UserInfo(ctx, id)
		if err != nil {
			return Entity{}, err
		}
		name := user.Profile.DisplayName
		if name == "" {
			name = user.Name
		}
		return Entity{
			Kind:      KindUser,
			ID:        user.ID,
			Name:      name,
			AvatarURL: user.Profile.Image48,
		}, nil
	}
}

func (r *Resolver) cached(key string) (Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entity, ok := r.cache[key]
	return entity, ok
}

func (r *Resolver) store(key string, entity Entity) {
	r.mu.Lock()
	r.cache[key] = entity
	r.mu.Unlock()
}

// Size reports the number of cached entities.
func (r *Resolver) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}
