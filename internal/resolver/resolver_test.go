package resolver

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/you/slack-mirror/internal/slack"
)

type fakeDirectory struct {
	mu        sync.Mutex
	userCalls atomic.Int64
	chanCalls atomic.Int64

	users    map[string]slack.User
	channels map[string]slack.Channel
	userErr  error

	// release, when set, blocks user lookups until closed.
	release chan struct{}
}

func (f *fakeDirectory) UserInfo(_ context.Context, id string) (slack.User, error) {
	f.userCalls.Add(1)
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.userErr != nil {
		return slack.User{}, f.userErr
	}
	u, ok := f.users[id]
	if !ok {
		return slack.User{}, &slack.APIError{Code: "user_not_found"}
	}
	return u, nil
}

func (f *fakeDirectory) ChannelInfo(_ context.Context, id string) (slack.Channel, error) {
	f.chanCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[id]
	if !ok {
		return slack.Channel{}, &slack.APIError{Code: "channel_not_found"}
	}
	return ch, nil
}

func TestResolveCachesSecondLookup(t *testing.T) {
	dir := &fakeDirectory{
		users: map[string]slack.User{
			"U1": {ID: "U1", Name: "alice", Profile: slack.Profile{Image48: "https://img/a.png"}},
		},
	}
	r := New(dir)

	first, err := r.User(context.Background(), "U1")
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if first.Name != "alice" || first.AvatarURL != "https://img/a.png" {
		t.Fatalf("unexpected entity: %+v", first)
	}

	second, err := r.User(context.Background(), "U1")
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if second != first {
		t.Fatalf("cache returned different entity: %+v vs %+v", second, first)
	}
	if got := dir.userCalls.Load(); got != 1 {
		t.Fatalf("expected exactly one remote call, got %d", got)
	}
}

func TestResolvePrefersDisplayName(t *testing.T) {
	dir := &fakeDirectory{
		users: map[string]slack.User{
			"U2": {ID: "U2", Name: "bob.builder", Profile: slack.Profile{DisplayName: "bob"}},
		},
	}
	r := New(dir)

	entity, err := r.User(context.Background(), "U2")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if entity.Name != "bob" {
		t.Fatalf("expected display name, got %q", entity.Name)
	}
}

func TestResolveChannel(t *testing.T) {
	dir := &fakeDirectory{
		channels: map[string]slack.Channel{"C1": {ID: "C1", Name: "general"}},
	}
	r := New(dir)

	entity, err := r.Channel(context.Background(), "C1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if entity.Name != "general" || entity.Kind != KindChannel {
		t.Fatalf("unexpected entity: %+v", entity)
	}
	if _, err := r.Channel(context.Background(), "C1"); err != nil {
		t.Fatalf("cached resolve: %v", err)
	}
	if got := dir.chanCalls.Load(); got != 1 {
		t.Fatalf("expected one remote call, got %d", got)
	}
}

func TestResolveErrorNotCached(t *testing.T) {
	dir := &fakeDirectory{userErr: &slack.APIError{Code: "invalid_auth"}}
	r := New(dir)

	if _, err := r.User(context.Background(), "U3"); err == nil {
		t.Fatal("expected error")
	} else if slack.ErrorCode(err) != "invalid_auth" {
		t.Fatalf("unexpected code: %v", err)
	}

	dir.mu.Lock()
	dir.userErr = nil
	dir.users = map[string]slack.User{"U3": {ID: "U3", Name: "carol"}}
	dir.mu.Unlock()

	entity, err := r.User(context.Background(), "U3")
	if err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if entity.Name != "carol" {
		t.Fatalf("unexpected entity: %+v", entity)
	}
	if got := dir.userCalls.Load(); got != 2 {
		t.Fatalf("expected retry to hit remote, got %d calls", got)
	}
}

func TestConcurrentLookupsCoalesce(t *testing.T) {
	dir := &fakeDirectory{
		users:   map[string]slack.User{"U1": {ID: "U1", Name: "alice"}},
		release: make(chan struct{}),
	}
	r := New(dir)

	const workers = 8
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if _, err := r.User(context.Background(), "U1"); err != nil {
				t.Errorf("resolve: %v", err)
			}
		}()
	}

	close(dir.release)
	wg.Wait()

	if got := dir.userCalls.Load(); got != 1 {
		t.Fatalf("expected coalesced single remote call, got %d", got)
	}
}
