package ticketing

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nextlevelbuilder/chatdesk/internal/model"
)

func TestStateStore_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oauth_state.json")
	store := NewStateStore(path)

	if st, err := store.Load(); err != nil || st != nil {
		t.Fatalf("Load() on missing file = (%v, %v), want (nil, nil)", st, err)
	}

	want := model.OAuthState{
		ClientID:     "client-1",
		OrgID:        "org-1",
		AccessToken:  "token-abc",
		AccessExpiry: time.Now().Add(time.Hour).Truncate(time.Second),
		RefreshToken: "refresh-abc",
	}
	if err := store.Save(want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got == nil || got.AccessToken != want.AccessToken || got.RefreshToken != want.RefreshToken {
		t.Fatalf("Load() = %+v, want %+v", got, want)
	}
}

func TestTokenManager_AccessTokenFailsWithoutBootstrap(t *testing.T) {
	store := NewStateStore(filepath.Join(t.TempDir(), "oauth_state.json"))
	tm, err := NewTokenManager("client-1", "secret-1", "https://helpdesk.example/oauth/token", "", store)
	if err != nil {
		t.Fatalf("NewTokenManager() error = %v", err)
	}

	if _, err := tm.AccessToken(context.Background()); err == nil {
		t.Fatal("AccessToken() should fail before any refresh token has been bootstrapped")
	}
}

func TestTokenManager_BootstrapPersistsRefreshToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oauth_state.json")
	store := NewStateStore(path)
	tm, err := NewTokenManager("client-1", "secret-1", "https://helpdesk.example/oauth/token", "", store)
	if err != nil {
		t.Fatalf("NewTokenManager() error = %v", err)
	}

	if err := tm.Bootstrap("client-1", "org-1", "refresh-xyz"); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}

	reloaded, err := NewTokenManager("client-1", "secret-1", "https://helpdesk.example/oauth/token", "", NewStateStore(path))
	if err != nil {
		t.Fatalf("reload NewTokenManager() error = %v", err)
	}
	if reloaded.state.RefreshToken != "refresh-xyz" {
		t.Fatalf("reloaded refresh token = %q, want %q", reloaded.state.RefreshToken, "refresh-xyz")
	}
}
