package client

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/fsadmin-io/fsadmin/internal/types"
)

// DepartmentsService lists departments with a session-lifetime cache, used
// to resolve human-entered department names to IDs during bulk updates.
type DepartmentsService struct {
	client *Client

	mu     sync.Mutex
	cached []types.Department
	loaded bool
}

type departmentListEnvelope struct {
	Departments []types.Department `json:"departments"`
}

// List returns all departments, paginating and caching on first use.
func (s *DepartmentsService) List(ctx context.Context) ([]types.Department, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.cached, nil
	}

	var departments []types.Department
	for page := 1; ; page++ {
		query := url.Values{
			"per_page": {"100"},
			"page":     {strconv.Itoa(page)},
		}
		raw, err := s.client.Get(ctx, "departments", query, 0)
		if err != nil {
			if len(departments) == 0 {
				s.client.log.Warnf("error retrieving departments: %v", err)
				return nil, err
			}
			s.client.log.Warnf("stopping department pagination at page %d: %v", page, err)
			break
		}
		var env departmentListEnvelope
		if err := decodeInto(raw, "departments", &env); err != nil {
			return nil, err
		}
		if len(env.Departments) == 0 {
			break
		}
		departments = append(departments, env.Departments...)
		if len(env.Departments) < 100 {
			break
		}
	}

	s.cached = departments
	s.loaded = true
	s.client.log.Infof("retrieved %d departments", len(departments))
	return departments, nil
}

// ByName resolves a department by case-insensitive name match.
func (s *DepartmentsService) ByName(ctx context.Context, name string) (*types.Department, error) {
	departments, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	want := strings.TrimSpace(name)
	for i := range departments {
		if strings.EqualFold(departments[i].Name, want) {
			return &departments[i], nil
		}
	}
	return nil, nil
}
