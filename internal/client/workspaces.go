package client

import (
	"context"
	"strings"
	"sync"

	"github.com/fsadmin-io/fsadmin/internal/types"
)

// defaultWorkspaceID is assumed when the tenant exposes no workspace list,
// which is how single-workspace plans behave.
const defaultWorkspaceID int64 = 1

// WorkspacesService lists tenant workspaces with a session-lifetime cache.
type WorkspacesService struct {
	client *Client

	mu     sync.Mutex
	cached []types.Workspace
	loaded bool
}

type workspaceListEnvelope struct {
	Workspaces []types.Workspace `json:"workspaces"`
}

// List returns all workspaces, fetching them at most once per session.
func (s *WorkspacesService) List(ctx context.Context) ([]types.Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.cached, nil
	}

	raw, err := s.client.Get(ctx, "workspaces", nil, 0)
	if err != nil {
		s.client.log.Warnf("error retrieving workspaces: %v", err)
		return nil, err
	}
	var env workspaceListEnvelope
	if err := decodeInto(raw, "workspaces", &env); err != nil {
		return nil, err
	}

	s.cached = env.Workspaces
	s.loaded = true
	s.client.log.Infof("retrieved %d workspaces", len(s.cached))
	return s.cached, nil
}

// ByName resolves a workspace by case-insensitive name match.
func (s *WorkspacesService) ByName(ctx context.Context, name string) (*types.Workspace, error) {
	workspaces, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range workspaces {
		if strings.EqualFold(workspaces[i].Name, name) {
			return &workspaces[i], nil
		}
	}
	return nil, nil
}

// Primary returns the primary workspace's ID, falling back to the default
// when the list is unavailable or no workspace is flagged primary.
func (s *WorkspacesService) Primary(ctx context.Context) int64 {
	workspaces, err := s.List(ctx)
	if err != nil || len(workspaces) == 0 {
		return defaultWorkspaceID
	}
	for _, ws := range workspaces {
		if ws.Primary {
			return ws.ID
		}
	}
	return workspaces[0].ID
}
