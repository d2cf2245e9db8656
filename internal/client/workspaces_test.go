package client

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkspacesCachedForSession(t *testing.T) {
	var hits int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "/v2/workspaces", r.URL.Path)
		fmt.Fprint(w, `{"workspaces": [
			{"id": 2, "name": "IT"},
			{"id": 5, "name": "Facilities", "primary": true}
		]}`)
	}, Config{})

	ctx := context.Background()
	_, err := c.Workspaces.List(ctx)
	require.NoError(t, err)

	ws, err := c.Workspaces.ByName(ctx, "facilities")
	require.NoError(t, err)
	require.NotNil(t, ws)
	assert.Equal(t, int64(5), ws.ID)

	assert.Equal(t, int64(5), c.Workspaces.Primary(ctx))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "the list is fetched once per session")
}

func TestWorkspacesPrimaryFallsBackToDefault(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message": "access denied"}`)
	}, Config{})

	assert.Equal(t, defaultWorkspaceID, c.Workspaces.Primary(context.Background()))
}

func TestWorkspacesByNameMiss(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"workspaces": [{"id": 2, "name": "IT"}]}`)
	}, Config{})

	ws, err := c.Workspaces.ByName(context.Background(), "HR")
	require.NoError(t, err)
	assert.Nil(t, ws)
}

func TestDepartmentsByName(t *testing.T) {
	var hits int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "/v2/departments", r.URL.Path)
		fmt.Fprint(w, `{"departments": [
			{"id": 10, "name": "Engineering"},
			{"id": 11, "name": "Human Resources"}
		]}`)
	}, Config{})

	ctx := context.Background()
	dept, err := c.Departments.ByName(ctx, "human resources")
	require.NoError(t, err)
	require.NotNil(t, dept)
	assert.Equal(t, int64(11), dept.ID)

	dept, err = c.Departments.ByName(ctx, "Marketing")
	require.NoError(t, err)
	assert.Nil(t, dept)

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "the department list is cached")
}
