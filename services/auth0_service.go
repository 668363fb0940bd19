package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dentalflow/dentalflow-api/config"
)

// Auth0UserInfo is the profile returned by the identity provider's /userinfo endpoint
type Auth0UserInfo struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// UserInfoProvider resolves profile data for an access token
type UserInfoProvider interface {
	GetUserInfo(ctx context.Context, accessToken string) (*Auth0UserInfo, error)
}

type cachedProfile struct {
	info    Auth0UserInfo
	expires time.Time
}

// Auth0Service looks up note authors in Auth0. Profiles are cached per
// access token since /userinfo is rate limited.
type Auth0Service struct {
	endpoint   string
	httpClient *http.Client
	ttl        time.Duration

	mu    sync.Mutex
	cache map[string]cachedProfile
}

// NewAuth0Service creates the profile client for cfg's tenant
func NewAuth0Service(cfg *config.Config) *Auth0Service {
	endpoint := cfg.Auth0Domain
	// tests point the domain at an httptest server
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	return &Auth0Service{
		endpoint:   strings.TrimSuffix(endpoint, "/") + "/userinfo",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		ttl:        10 * time.Minute,
		cache:      make(map[string]cachedProfile),
	}
}

// GetUserInfo returns the profile behind accessToken
func (s *Auth0Service) GetUserInfo(ctx context.Context, accessToken string) (*Auth0UserInfo, error) {
	now := time.Now()
	s.mu.Lock()
	if hit, ok := s.cache[accessToken]; ok && now.Before(hit.expires) {
		s.mu.Unlock()
		info := hit.info
		return &info, nil
	}
	s.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call userinfo endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("userinfo endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var info Auth0UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo response: %w", err)
	}

	s.mu.Lock()
	for token, entry := range s.cache {
		if now.After(entry.expires) {
			delete(s.cache, token)
		}
	}
	s.cache[accessToken] = cachedProfile{info: info, expires: now.Add(s.ttl)}
	s.mu.Unlock()

	return &info, nil
}
