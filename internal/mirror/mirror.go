// Package mirror owns the runtime reload surface: when the bot token
// lives in a file, it can be re-read and swapped into the Slack client
// without restarting the process.
package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/you/slack-mirror/internal/slack"
)

type SlackConn interface {
	SetToken(token string)
	AuthTest(ctx context.Context) (slack.Identity, error)
}

type Mirror struct {
	tokenPath string

	mu sync.Mutex
	sc SlackConn
}

func New(tokenPath string, sc SlackConn) *Mirror {
	return &Mirror{tokenPath: tokenPath, sc: sc}
}

func (m *Mirror) SetSlackConn(sc SlackConn) {
	m.mu.Lock()
	m.sc = sc
	m.mu.Unlock()
}

// ReloadSlack re-reads the token file, swaps the client token, and
// verifies it with auth.test. Returns the authenticated bot user name.
func (m *Mirror) ReloadSlack() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sc == nil {
		return "", fmt.Errorf("slack client unavailable")
	}
	if strings.TrimSpace(m.tokenPath) == "" {
		return "", fmt.Errorf("bot token file not configured")
	}
	raw, err := os.ReadFile(m.tokenPath)
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", fmt.Errorf("bot token empty")
	}
	m.sc.SetToken(token)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ident, err := m.sc.AuthTest(ctx)
	if err != nil {
		return "", fmt.Errorf("auth.test: %w", err)
	}
	slog.Info("mirror: reloaded bot token", "as", ident.User, "team", ident.Team)
	return ident.User, nil
}
