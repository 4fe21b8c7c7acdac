package slack

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient("xoxb-test")
	c.BaseURL = srv.URL
	return c
}

func TestUserInfo(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users.info" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("user"); got != "U1" {
			t.Errorf("unexpected user param %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer xoxb-test" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"user":{"id":"U1","name":"alice","profile":{"display_name":"Alice","image_48":"https://img/48.png"}}}`))
	})

	user, err := c.UserInfo(context.Background(), "U1")
	if err != nil {
		t.Fatalf("UserInfo: %v", err)
	}
	if user.Name != "alice" {
		t.Fatalf("unexpected name %q", user.Name)
	}
	if user.Profile.Image48 != "https://img/48.png" {
		t.Fatalf("unexpected avatar %q", user.Profile.Image48)
	}
}

func TestChannelInfo(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations.info" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"channel":{"id":"C1","name":"general"}}`))
	})

	ch, err := c.ChannelInfo(context.Background(), "C1")
	if err != nil {
		t.Fatalf("ChannelInfo: %v", err)
	}
	if ch.Name != "general" {
		t.Fatalf("unexpected channel name %q", ch.Name)
	}
}

func TestAPIErrorCode(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":false,"error":"invalid_auth"}`))
	})

	_, err := c.UserInfo(context.Background(), "U404")
	if err == nil {
		t.Fatal("expected error")
	}
	if code := ErrorCode(err); code != "invalid_auth" {
		t.Fatalf("expected invalid_auth, got %q", code)
	}
}

func TestEmojiList(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/emoji.list" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"emoji":{"party":"https://emoji/party.png","woo":"alias:party"}}`))
	})

	reg, err := c.EmojiList(context.Background())
	if err != nil {
		t.Fatalf("EmojiList: %v", err)
	}
	if reg["party"] != "https://emoji/party.png" || reg["woo"] != "alias:party" {
		t.Fatalf("unexpected registry %v", reg)
	}
}

func TestSetToken(t *testing.T) {
	seen := make(chan string, 1)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"user_id":"B1"}`))
	})

	c.SetToken("xoxb-rotated")
	if _, err := c.AuthTest(context.Background()); err != nil {
		t.Fatalf("AuthTest: %v", err)
	}
	if got := <-seen; got != "Bearer xoxb-rotated" {
		t.Fatalf("token not swapped: %q", got)
	}
}

func TestTransportStatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream broken", http.StatusBadGateway)
	})

	_, err := c.UserInfo(context.Background(), "U1")
	if err == nil {
		t.Fatal("expected error on non-200 status")
	}
	if ErrorCode(err) != "" {
		t.Fatalf("transport failure must not map to an API code")
	}
}
