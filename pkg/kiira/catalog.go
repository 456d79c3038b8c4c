package kiira

import (
	"context"
	"sync"

	"kiira-hq/gateway/pkg/agents"
)

// CatalogSource serves the agent catalog to an agents.Resolver. It holds
// its own guest identity, logging in lazily and once more when the token
// is rejected.
type CatalogSource struct {
	client *Client

	mu       sync.Mutex
	identity Identity
}

var _ agents.Source = (*CatalogSource)(nil)

// NewCatalogSource creates a catalog source backed by client.
func NewCatalogSource(client *Client) *CatalogSource {
	return &CatalogSource{client: client}
}

// FetchAgents implements agents.Source.
func (s *CatalogSource) FetchAgents(ctx context.Context, categoryIDs []string, keyword string) ([]agents.Entry, error) {
	id, err := s.ensureIdentity(ctx, false)
	if err != nil {
		return nil, err
	}

	entries, err := s.client.AgentList(ctx, id, categoryIDs, keyword)
	if err == nil || !IsAuthError(err) {
		return entries, err
	}

	s.client.logger.Info("catalog token rejected, logging in again")
	if id, err = s.ensureIdentity(ctx, true); err != nil {
		return nil, err
	}
	return s.client.AgentList(ctx, id, categoryIDs, keyword)
}

func (s *CatalogSource) ensureIdentity(ctx context.Context, renew bool) (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.identity.Token != "" && !renew {
		return s.identity, nil
	}

	deviceID := NewDeviceID()
	token, err := s.client.LoginGuest(ctx, deviceID)
	if err != nil {
		return Identity{}, err
	}
	s.identity = Identity{DeviceID: deviceID, Token: token}
	return s.identity, nil
}
