package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fsadmin-io/fsadmin/internal/apierr"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestClient(t *testing.T, handler http.HandlerFunc, cfg Config) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg.BaseURL = srv.URL
	if cfg.Logger == nil {
		cfg.Logger = quietLogger()
	}
	return New(cfg), srv
}

func TestDryRunInterception(t *testing.T) {
	var hits int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`{"requesters": []}`))
	}, Config{DryRun: true})

	t.Run("mutating calls never reach the transport", func(t *testing.T) {
		raw, err := c.Post(context.Background(), "requesters", map[string]any{"first_name": "A"}, 0)
		require.NoError(t, err)
		assert.Zero(t, atomic.LoadInt32(&hits))

		var marker DryRunResult
		require.NoError(t, json.Unmarshal(raw, &marker))
		assert.True(t, marker.DryRun)
		assert.True(t, marker.Success)
		assert.Equal(t, http.MethodPost, marker.Method)
		assert.Equal(t, "requesters", marker.Endpoint)
	})

	t.Run("reads still hit the network", func(t *testing.T) {
		_, err := c.Get(context.Background(), "requesters", nil, 0)
		require.NoError(t, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	})
}

func TestWorkspaceScoping(t *testing.T) {
	var paths []string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.Write([]byte(`{}`))
	}, Config{})

	ctx := context.Background()
	_, err := c.Get(ctx, "groups/7/members", nil, 3)
	require.NoError(t, err)
	_, err = c.Get(ctx, "requesters", nil, 3)
	require.NoError(t, err)
	_, err = c.Get(ctx, "custom_objects", nil, 3)
	require.NoError(t, err)
	_, err = c.Get(ctx, "custom_objects", nil, 0)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/v2/groups/7/members",
		"/v2/requesters",
		"/v2/workspaces/3/custom_objects",
		"/v2/custom_objects",
	}, paths)
}

func TestRateLimitClassification(t *testing.T) {
	t.Run("honors Retry-After header", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "17")
			w.WriteHeader(http.StatusTooManyRequests)
		}, Config{})

		_, err := c.Get(context.Background(), "tickets", nil, 0)
		var apiErr *apierr.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
		assert.Equal(t, 17, apiErr.RetryAfter)
		assert.True(t, apierr.IsRateLimited(err))
	})

	t.Run("defaults to the window length", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}, Config{})

		_, err := c.Get(context.Background(), "tickets", nil, 0)
		var apiErr *apierr.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 60, apiErr.RetryAfter)
	})
}

func TestAuditLogPlanRestriction(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}, Config{})

	_, err := c.Get(context.Background(), "agents/5/audit_logs", nil, 0)
	var apiErr *apierr.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierr.KindPlanRestricted, apiErr.Kind)
	assert.True(t, apierr.IsPlanRestricted(err))
}

func TestProbe(t *testing.T) {
	t.Run("success carries the raw payload", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"tickets": [{"id": 9}]}`))
		}, Config{})

		result := c.Probe(context.Background(), "tickets", url.Values{"per_page": {"1"}})
		assert.True(t, result.Success)
		assert.Equal(t, http.StatusOK, result.StatusCode)
		assert.JSONEq(t, `{"tickets": [{"id": 9}]}`, string(result.Response))
	})

	t.Run("plan-restricted audit log yields an empty collection", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}, Config{})

		result := c.Probe(context.Background(), "agents/5/audit_logs", nil)
		assert.False(t, result.Success)
		assert.Equal(t, http.StatusNotFound, result.StatusCode)
		assert.JSONEq(t, `{"audit_logs": []}`, string(result.Response))
	})

	t.Run("rate limit yields a retry hint instead of an error", func(t *testing.T) {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusTooManyRequests)
		}, Config{})

		result := c.Probe(context.Background(), "tickets", nil)
		assert.False(t, result.Success)
		assert.Equal(t, http.StatusTooManyRequests, result.StatusCode)
		assert.Equal(t, 30, result.RetryAfter)
	})
}

func TestDeleteNoContent(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}, Config{})

	err := c.Delete(context.Background(), "requesters/42", 0)
	assert.NoError(t, err)
}

func TestErrorMessageComposition(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message": "invalid query syntax"}`))
	}, Config{})

	_, err := c.Get(context.Background(), "requesters", url.Values{"query": {"broken"}}, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400 Bad Request for url:")
	assert.Contains(t, err.Error(), "Details: invalid query syntax")
	assert.Contains(t, err.Error(), "params: query=broken")

	var apiErr *apierr.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierr.KindRequest, apiErr.Kind)
}

func TestNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := New(Config{BaseURL: srv.URL, Logger: quietLogger()})
	_, err := c.Get(context.Background(), "tickets", nil, 0)

	var netErr *apierr.NetworkError
	assert.ErrorAs(t, err, &netErr)
}
