// Package ticketing implements the Ticket Manager (spec §4.3): OAuth2
// lifecycle, contact resolution, circuit-breaker-guarded helpdesk calls, and
// the persistent fallback queue.
package ticketing

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/nextlevelbuilder/chatdesk/internal/model"
)

// StateStore persists a single OAuthState file, atomically (same
// temp-file-then-rename idiom as the transport gateway's session store).
type StateStore struct {
	path string
}

func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

func (s *StateStore) Load() (*model.OAuthState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ticketing: read oauth state: %w", err)
	}
	var st model.OAuthState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("ticketing: parse oauth state: %w", err)
	}
	return &st, nil
}

func (s *StateStore) Save(state model.OAuthState) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ticketing: create oauth state dir: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("ticketing: marshal oauth state: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "oauth-*.tmp")
	if err != nil {
		return fmt.Errorf("ticketing: create temp oauth file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("ticketing: write temp oauth file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("ticketing: fsync temp oauth file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("ticketing: close temp oauth file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("ticketing: rename oauth file: %w", err)
	}
	cleanup = false
	return nil
}

// TokenManager owns the live OAuthState and refreshes it via the helpdesk's
// token endpoint before it expires (spec §4.3's 5-minute safety margin).
type TokenManager struct {
	oauthCfg oauth2.Config
	store    *StateStore

	mu    sync.Mutex
	state model.OAuthState
}

// NewTokenManager loads any persisted state; a missing refresh token means
// the operator still needs to complete the one-shot bootstrap exchange
// (spec §4.3 — out of scope for this package's runtime behavior).
func NewTokenManager(clientID, clientSecret, tokenURL, redirectURI string, store *StateStore) (*TokenManager, error) {
	cfg := oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
	}

	tm := &TokenManager{oauthCfg: cfg, store: store}

	prior, err := store.Load()
	if err != nil {
		return nil, err
	}
	if prior != nil {
		tm.state = *prior
	}
	return tm, nil
}

// AccessToken returns a currently-valid access token, refreshing first if
// the 5-minute safety margin has been crossed.
func (tm *TokenManager) AccessToken(ctx context.Context) (string, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.state.NeedsRefresh(time.Now()) {
		if err := tm.refreshLocked(ctx); err != nil {
			return "", err
		}
	}
	return tm.state.AccessToken, nil
}

// ForceRefresh is called after a 401 response (spec §4.3: "attempt refresh
// once and retry; if refresh itself fails, surface AuthExpired").
func (tm *TokenManager) ForceRefresh(ctx context.Context) (string, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if err := tm.refreshLocked(ctx); err != nil {
		return "", err
	}
	return tm.state.AccessToken, nil
}

func (tm *TokenManager) refreshLocked(ctx context.Context) error {
	if tm.state.RefreshToken == "" {
		return model.NewClassifiedError(model.KindAuthenticationPerm,
			fmt.Errorf("ticketing: no refresh token persisted — operator bootstrap required"))
	}

	src := tm.oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: tm.state.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		return model.NewClassifiedError(model.KindAuthExpired, fmt.Errorf("ticketing: refresh token: %w", err))
	}

	tm.state.AccessToken = tok.AccessToken
	tm.state.AccessExpiry = tok.Expiry
	if tok.RefreshToken != "" {
		tm.state.RefreshToken = tok.RefreshToken
	}

	if err := tm.store.Save(tm.state); err != nil {
		return fmt.Errorf("ticketing: persist refreshed token: %w", err)
	}
	return nil
}

// Bootstrap installs a refresh token obtained out-of-band (the one-shot
// operator code exchange referenced by spec §4.3) and persists it.
func (tm *TokenManager) Bootstrap(clientID, orgID, refreshToken string) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.state = model.OAuthState{
		ClientID:     clientID,
		OrgID:        orgID,
		RefreshToken: refreshToken,
	}
	return tm.store.Save(tm.state)
}
