// Package client implements the single choke point for all outbound calls to
// the service-management platform, plus the service facades built on it.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/fsadmin-io/fsadmin/internal/apierr"
	"github.com/fsadmin-io/fsadmin/internal/auth"
)

// apiVersion is the path segment all endpoints are served under.
const apiVersion = "v2"

// nonWorkspaceEndpoints are catalog resources that are never tenant-scoped.
// Workspace prefixing is skipped for any endpoint starting with one of these.
var nonWorkspaceEndpoints = []string{
	"requesters", "agents", "departments", "groups", "roles",
	"locations", "products", "vendors", "assets", "problems",
	"releases", "changes", "solutions", "users",
}

// Config carries everything the client needs; it is read once at
// construction and never mutated afterwards.
type Config struct {
	Credential  auth.Credential
	WorkspaceID int64
	DryRun      bool
	Logger      *logrus.Logger

	// BaseURL overrides the credential-derived URL; used by tests.
	BaseURL string
}

// Client issues authenticated calls, enforces the sliding-window rate limit,
// classifies error responses, and intercepts mutating calls in dry-run mode.
type Client struct {
	http    *resty.Client
	baseURL string
	cfg     Config
	log     *logrus.Logger
	limiter *rateWindow

	Users       *UsersService
	Tickets     *TicketsService
	Workspaces  *WorkspacesService
	Departments *DepartmentsService
}

// New builds a client for the tenant encoded in the credential.
func New(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = cfg.Credential.BaseURL()
	}

	httpClient := resty.New().
		SetHeader("Authorization", cfg.Credential.BasicAuth()).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	c := &Client{
		http:    httpClient,
		baseURL: baseURL,
		cfg:     cfg,
		log:     cfg.Logger,
		limiter: newRateWindow(rateLimit, rateWindowLength),
	}
	c.Users = &UsersService{client: c}
	c.Tickets = &TicketsService{client: c}
	c.Workspaces = &WorkspacesService{client: c}
	c.Departments = &DepartmentsService{client: c}

	c.log.WithField("base_url", baseURL).Info("api client initialized")
	return c
}

// DryRun reports whether mutating calls are being intercepted.
func (c *Client) DryRun() bool {
	return c.cfg.DryRun
}

// WorkspaceID returns the tenant scope the client was configured with.
func (c *Client) WorkspaceID() int64 {
	return c.cfg.WorkspaceID
}

// Logger exposes the injected logger to the report layer.
func (c *Client) Logger() *logrus.Logger {
	return c.log
}

// reqOptions collects the per-call knobs of do.
type reqOptions struct {
	body            any
	query           url.Values
	workspaceID     int64
	expectNoContent bool
}

// DryRunResult is the synthetic success marker returned for intercepted
// mutating calls.
type DryRunResult struct {
	DryRun   bool   `json:"dry_run"`
	Success  bool   `json:"success"`
	Method   string `json:"method"`
	Endpoint string `json:"endpoint"`
	Body     any    `json:"body,omitempty"`
}

// ProbeResult is the structured return of diagnostic-mode calls: every
// failure class (HTTP error, network error, parse error, rate limit) lands
// here instead of an error value.
type ProbeResult struct {
	Success    bool            `json:"success"`
	StatusCode int             `json:"status_code,omitempty"`
	Error      string          `json:"error,omitempty"`
	RetryAfter int             `json:"retry_after,omitempty"`
	Response   json.RawMessage `json:"response,omitempty"`
	Params     url.Values      `json:"params,omitempty"`
}

// Get issues a GET to a logical endpoint with optional query parameters and
// tenant scope, returning the raw JSON payload.
func (c *Client) Get(ctx context.Context, endpoint string, query url.Values, workspaceID int64) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, endpoint, reqOptions{query: query, workspaceID: workspaceID})
}

// Post issues a POST with a JSON body.
func (c *Client) Post(ctx context.Context, endpoint string, body any, workspaceID int64) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, endpoint, reqOptions{body: body, workspaceID: workspaceID})
}

// Put issues a PUT with a JSON body.
func (c *Client) Put(ctx context.Context, endpoint string, body any, workspaceID int64) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPut, endpoint, reqOptions{body: body, workspaceID: workspaceID})
}

// Delete issues a DELETE expecting 204 No Content on success.
func (c *Client) Delete(ctx context.Context, endpoint string, workspaceID int64) error {
	_, err := c.do(ctx, http.MethodDelete, endpoint, reqOptions{workspaceID: workspaceID, expectNoContent: true})
	return err
}

// Probe issues a GET in diagnostic mode: all failure paths are converted to
// a structured ProbeResult and no error is ever returned.
func (c *Client) Probe(ctx context.Context, endpoint string, query url.Values) *ProbeResult {
	result := &ProbeResult{Params: query}

	raw, err := c.do(ctx, http.MethodGet, endpoint, reqOptions{query: query})
	if err != nil {
		result.Error = err.Error()
		if apiErr, ok := err.(*apierr.APIError); ok {
			result.StatusCode = apiErr.StatusCode
			result.RetryAfter = apiErr.RetryAfter
			if apiErr.Kind == apierr.KindPlanRestricted && strings.Contains(endpoint, "audit_logs") {
				result.Response = json.RawMessage(`{"audit_logs": []}`)
			}
		}
		return result
	}

	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		result.Error = fmt.Sprintf("invalid JSON response from %s: %v", endpoint, err)
		return result
	}

	result.Success = true
	result.StatusCode = http.StatusOK
	result.Response = raw
	return result
}

// do executes one request end to end: rate-limit slot, workspace scoping,
// dry-run interception, dispatch, and error classification.
func (c *Client) do(ctx context.Context, method, endpoint string, opt reqOptions) (json.RawMessage, error) {
	c.limiter.reserve()

	scoped := c.scopeEndpoint(endpoint, opt.workspaceID)
	fullURL := fmt.Sprintf("%s/%s/%s", c.baseURL, apiVersion, scoped)

	logEntry := c.log.WithFields(logrus.Fields{"method": method, "url": fullURL})
	if method == http.MethodGet {
		logEntry.Debug("api request")
	} else {
		logEntry.Info("api request")
	}

	if c.cfg.DryRun && method != http.MethodGet {
		logEntry.Info("dry run: skipping mutating request")
		marker, err := json.Marshal(DryRunResult{
			DryRun:   true,
			Success:  true,
			Method:   method,
			Endpoint: scoped,
			Body:     opt.body,
		})
		if err != nil {
			return nil, fmt.Errorf("encoding dry-run marker: %w", err)
		}
		return marker, nil
	}

	req := c.http.R().SetContext(ctx)
	if len(opt.query) > 0 {
		req.SetQueryParamsFromValues(opt.query)
	}
	if opt.body != nil {
		req.SetBody(opt.body)
	}

	resp, err := req.Execute(method, fullURL)
	if err != nil {
		netErr := &apierr.NetworkError{Operation: method, URL: fullURL, Err: err}
		c.log.Error(netErr.Error())
		return nil, netErr
	}

	status := resp.StatusCode()

	if opt.expectNoContent && status == http.StatusNoContent {
		logEntry.Debug("request succeeded with 204 No Content")
		return nil, nil
	}

	if status >= 400 {
		return nil, c.classifyFailure(method, scoped, fullURL, opt.query, resp)
	}

	body := resp.Body()
	if len(body) == 0 {
		return json.RawMessage(`{}`), nil
	}
	return json.RawMessage(body), nil
}

// scopeEndpoint prefixes tenant-scoped resources with workspaces/{id}/.
// Catalog resources in nonWorkspaceEndpoints are left untouched.
func (c *Client) scopeEndpoint(endpoint string, workspaceID int64) string {
	if workspaceID == 0 || strings.Contains(endpoint, "workspace") {
		return endpoint
	}
	for _, prefix := range nonWorkspaceEndpoints {
		if strings.HasPrefix(endpoint, prefix) {
			return endpoint
		}
	}
	return fmt.Sprintf("workspaces/%d/%s", workspaceID, endpoint)
}

// classifyFailure turns an error response into a typed APIError, applying
// the special cases for rate limiting and plan-restricted resources.
func (c *Client) classifyFailure(method, endpoint, fullURL string, query url.Values, resp *resty.Response) error {
	status := resp.StatusCode()

	if status == http.StatusTooManyRequests {
		retryAfter := int(rateWindowLength.Seconds())
		if v := resp.Header().Get("Retry-After"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				retryAfter = parsed
			}
		}
		msg := fmt.Sprintf("Rate limit exceeded, retry after %d seconds.", retryAfter)
		c.log.Warn(msg)
		return &apierr.APIError{StatusCode: status, Message: msg, Kind: apierr.KindTransient, RetryAfter: retryAfter}
	}

	if status == http.StatusNotFound && strings.Contains(endpoint, "audit_logs") {
		msg := "404 Not Found: the audit log endpoint is not available on this plan or requires different access rights; falling back to alternative activity tracking"
		c.log.Warn(msg)
		return &apierr.APIError{StatusCode: status, Message: msg, Kind: apierr.KindPlanRestricted}
	}

	message := fmt.Sprintf("%d %s for url: %s", status, http.StatusText(status), fullURL)
	if detail := extractErrorDetail(resp.Body()); detail != "" {
		message += " - Details: " + detail
	}
	if len(query) > 0 {
		message += " (params: " + flattenQuery(query) + ")"
	}

	c.log.WithFields(logrus.Fields{"method": method, "status": status}).Error("api request failed: " + message)
	return apierr.New(status, message)
}

// extractErrorDetail pulls structured detail out of a JSON error body, or
// truncates the raw text when the body is not JSON.
func extractErrorDetail(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err == nil {
		if errs, ok := parsed["errors"]; ok {
			if encoded, err := json.Marshal(errs); err == nil {
				return string(encoded)
			}
		}
		if msg, ok := parsed["message"].(string); ok && msg != "" {
			return msg
		}
		if desc, ok := parsed["description"].(string); ok && desc != "" {
			return desc
		}
	}
	text := string(body)
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

// flattenQuery renders query parameters as "k=v, k=v" with stable ordering.
func flattenQuery(query url.Values) string {
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+strings.Join(query[k], ","))
	}
	return strings.Join(parts, ", ")
}

// decodeInto unmarshals a raw payload into out, reporting the endpoint on
// failure for troubleshooting.
func decodeInto(raw json.RawMessage, endpoint string, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", endpoint, err)
	}
	return nil
}
