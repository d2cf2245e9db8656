package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/fsadmin-io/fsadmin/internal/apierr"
	"github.com/fsadmin-io/fsadmin/internal/types"
)

// maxRecentUsers bounds the most-recently-used cache of resolved users.
const maxRecentUsers = 10

// usersPerPage is the largest page size the collection endpoints accept.
const usersPerPage = 100

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// UsersService resolves and mutates user records across the requester and
// agent pools. Lookups return nil for "not found"; errors are reserved for
// unrecoverable transport or auth failures. Mutations report failure through
// their return value and leave detail in the logs.
type UsersService struct {
	client *Client

	mu     sync.Mutex
	recent []types.User
}

type requesterEnvelope struct {
	Requester *types.User `json:"requester"`
}

type agentEnvelope struct {
	Agent *types.User `json:"agent"`
}

type requesterListEnvelope struct {
	Requesters []types.User `json:"requesters"`
}

type agentListEnvelope struct {
	Agents []types.User `json:"agents"`
}

// ByID resolves a user by numeric ID, trying the requester pool first and
// the agent pool second. Both misses yield (nil, nil).
func (s *UsersService) ByID(ctx context.Context, id int64) (*types.User, error) {
	var hardErr error

	if user, err := s.fetchFromPool(ctx, types.PoolRequester, id); user != nil {
		s.addRecent(*user)
		return user, nil
	} else if isUnrecoverable(err) {
		hardErr = err
	}

	if user, err := s.fetchFromPool(ctx, types.PoolAgent, id); user != nil {
		s.addRecent(*user)
		return user, nil
	} else if isUnrecoverable(err) && hardErr != nil {
		// Both pools rejected us outright; surface the failure.
		return nil, hardErr
	}

	s.client.log.WithField("user_id", id).Warn("user not found in requesters or agents")
	return nil, nil
}

// fetchFromPool reads a single user record from one pool sub-resource.
func (s *UsersService) fetchFromPool(ctx context.Context, pool types.Pool, id int64) (*types.User, error) {
	endpoint := fmt.Sprintf("%s/%d", pool.Endpoint(), id)
	raw, err := s.client.Get(ctx, endpoint, nil, s.client.cfg.WorkspaceID)
	if err != nil {
		s.client.log.WithField("user_id", id).Debugf("user not found in %s: %v", pool.Endpoint(), err)
		return nil, err
	}

	user, err := DecodePoolUser(raw, pool)
	if err != nil {
		s.client.log.Debug(err.Error())
		return nil, err
	}
	return user, nil
}

// DecodePoolUser unwraps a single-user envelope from either pool and tags
// the record with its pool of origin.
func DecodePoolUser(raw json.RawMessage, pool types.Pool) (*types.User, error) {
	if pool == types.PoolAgent {
		var env agentEnvelope
		if err := decodeInto(raw, "agent", &env); err != nil {
			return nil, err
		}
		if env.Agent != nil {
			env.Agent.Pool = types.PoolAgent
		}
		return env.Agent, nil
	}
	var env requesterEnvelope
	if err := decodeInto(raw, "requester", &env); err != nil {
		return nil, err
	}
	if env.Requester != nil {
		env.Requester.Pool = types.PoolRequester
	}
	return env.Requester, nil
}

// isUnrecoverable reports whether a lookup failure should propagate instead
// of reading as "absent": rejected auth or a dead network, never a 404.
func isUnrecoverable(err error) bool {
	if err == nil {
		return false
	}
	if _, ok := err.(*apierr.NetworkError); ok {
		return true
	}
	return apierr.IsPermission(err)
}

// ByEmail resolves a user by address. Malformed addresses are rejected with
// a validation error before any network call. The requester collection is
// queried first, then retried with the include_agents flag, since agents are
// modeled server-side as flagged requester-shaped records.
func (s *UsersService) ByEmail(ctx context.Context, email string) (*types.User, error) {
	if !emailPattern.MatchString(email) {
		s.client.log.WithField("email", email).Warn("invalid email format")
		return nil, &apierr.ValidationError{Field: "email", Message: "invalid email format"}
	}

	for _, includeAgents := range []bool{false, true} {
		query := url.Values{"email": {email}}
		if includeAgents {
			query.Set("include_agents", "true")
		}

		raw, err := s.client.Get(ctx, "requesters", query, s.client.cfg.WorkspaceID)
		if err != nil {
			s.client.log.Warnf("error searching requesters by email: %v", err)
			continue
		}

		var env requesterListEnvelope
		if err := decodeInto(raw, "requesters", &env); err != nil {
			s.client.log.Warn(err.Error())
			continue
		}
		if len(env.Requesters) > 0 {
			user := env.Requesters[0]
			user.Pool = poolForRecord(&user)
			s.addRecent(user)
			return &user, nil
		}
	}

	s.client.log.WithField("email", email).Warn("no user found with email")
	return nil, nil
}

func poolForRecord(u *types.User) types.Pool {
	if u.IsAgent {
		return types.PoolAgent
	}
	return types.PoolRequester
}

// SearchByName finds users matching the given name components. The primary
// strategy is a structured collection query; a query-syntax rejection (400)
// falls back to a full fetch with client-side substring filtering, and an
// empty combined result optionally falls back to fuzzy scoring over both
// populations. Individual strategy failures are logged and swallowed; the
// search as a whole only fails by returning an empty slice.
func (s *UsersService) SearchByName(ctx context.Context, firstName, lastName string, fuzzy bool) []types.User {
	if firstName == "" && lastName == "" {
		s.client.log.Debug("no search terms provided, returning empty results")
		return nil
	}

	queryString := buildNameQuery(firstName, lastName)
	var all []types.User
	seen := make(map[int64]bool)

	// Populations are fetched at most once per search, shared between the
	// 400 fallback and the fuzzy pass.
	var requesterPop, agentPop []types.User
	requesterPopLoaded, agentPopLoaded := false, false
	loadRequesters := func() []types.User {
		if !requesterPopLoaded {
			requesterPop = s.listAll(ctx, types.PoolRequester)
			requesterPopLoaded = true
		}
		return requesterPop
	}
	loadAgents := func() []types.User {
		if !agentPopLoaded {
			agentPop = s.listAll(ctx, types.PoolAgent)
			agentPopLoaded = true
		}
		return agentPop
	}

	add := func(users []types.User, agentsOnly bool) {
		for _, user := range users {
			if seen[user.ID] {
				continue
			}
			if agentsOnly && !user.IsAgent {
				continue
			}
			user.Pool = poolForRecord(&user)
			seen[user.ID] = true
			all = append(all, user)
			s.addRecent(user)
		}
	}

	// Requester pass.
	users, err := s.queryRequesters(ctx, queryString, false)
	switch {
	case err == nil:
		add(users, false)
	case isQueryRejected(err):
		s.client.log.Debug("structured query rejected, filtering requesters locally")
		add(filterByName(loadRequesters(), firstName, lastName), false)
	default:
		s.client.log.Warnf("error searching requesters by name: %v", err)
	}

	// Agent pass, deduplicated against the requester results.
	users, err = s.queryRequesters(ctx, queryString, true)
	switch {
	case err == nil:
		add(users, true)
	case isQueryRejected(err):
		s.client.log.Debug("structured query rejected, filtering agents locally")
		add(filterByName(loadAgents(), firstName, lastName), false)
	default:
		s.client.log.Warnf("error searching agents by name: %v", err)
	}

	if len(all) == 0 && fuzzy {
		s.client.log.Debug("no exact matches found, trying fuzzy search")
		return s.fuzzySearch(firstName, lastName, loadRequesters(), loadAgents())
	}
	return all
}

// buildNameQuery renders the provider's structured query syntax: a combined
// name field when both components are present, a single field otherwise.
func buildNameQuery(firstName, lastName string) string {
	if firstName != "" && lastName != "" {
		return fmt.Sprintf("~[name]:'%s %s'", firstName, lastName)
	}
	if firstName != "" {
		return fmt.Sprintf("~[first_name]:'%s'", firstName)
	}
	return fmt.Sprintf("~[last_name]:'%s'", lastName)
}

func isQueryRejected(err error) bool {
	apiErr, ok := err.(*apierr.APIError)
	return ok && apiErr.StatusCode == 400
}

func (s *UsersService) queryRequesters(ctx context.Context, queryString string, includeAgents bool) ([]types.User, error) {
	query := url.Values{"query": {`"` + queryString + `"`}}
	if includeAgents {
		query.Set("include_agents", "true")
	}

	raw, err := s.client.Get(ctx, "requesters", query, s.client.cfg.WorkspaceID)
	if err != nil {
		return nil, err
	}
	var env requesterListEnvelope
	if err := decodeInto(raw, "requesters", &env); err != nil {
		return nil, err
	}
	return env.Requesters, nil
}

// filterByName keeps users whose name fields contain the search terms,
// case-insensitively. An empty term matches everything.
func filterByName(users []types.User, firstName, lastName string) []types.User {
	first := strings.ToLower(firstName)
	last := strings.ToLower(lastName)

	var matched []types.User
	for _, user := range users {
		firstMatch := first == "" || strings.Contains(strings.ToLower(user.FirstName), first)
		lastMatch := last == "" || strings.Contains(strings.ToLower(user.LastName), last)
		if firstMatch && lastMatch {
			matched = append(matched, user)
		}
	}
	return matched
}

// fuzzySearch scores every candidate 0-4: two points per name field for an
// exact match, one for a substring match. Any positive score keeps the
// candidate.
func (s *UsersService) fuzzySearch(firstName, lastName string, requesters, agents []types.User) []types.User {
	first := strings.ToLower(firstName)
	last := strings.ToLower(lastName)

	seen := make(map[int64]bool)
	var pool []types.User
	for _, user := range requesters {
		user.Pool = poolForRecord(&user)
		seen[user.ID] = true
		pool = append(pool, user)
	}
	for _, user := range agents {
		if seen[user.ID] {
			continue
		}
		user.Pool = types.PoolAgent
		seen[user.ID] = true
		pool = append(pool, user)
	}

	var matches []types.User
	for _, user := range pool {
		userFirst := strings.ToLower(user.FirstName)
		userLast := strings.ToLower(user.LastName)

		score := 0
		if first != "" && strings.Contains(userFirst, first) {
			if userFirst == first {
				score += 2
			} else {
				score++
			}
		}
		if last != "" && strings.Contains(userLast, last) {
			if userLast == last {
				score += 2
			} else {
				score++
			}
		}
		if score > 0 {
			matches = append(matches, user)
			s.addRecent(user)
		}
	}
	return matches
}

// IsAgent probes the agent sub-resource for the given ID. Any failure reads
// as "not an agent"; a transient error therefore misroutes to the requester
// pool, a documented limitation of the probe.
func (s *UsersService) IsAgent(ctx context.Context, id int64) bool {
	raw, err := s.client.Get(ctx, fmt.Sprintf("agents/%d", id), nil, 0)
	if err != nil {
		return false
	}
	var env agentEnvelope
	return decodeInto(raw, "agent", &env) == nil && env.Agent != nil
}

// ListAllAgents fully paginates the agent collection.
func (s *UsersService) ListAllAgents(ctx context.Context) []types.User {
	return s.listAll(ctx, types.PoolAgent)
}

// ListAllRequesters fully paginates the requester collection.
func (s *UsersService) ListAllRequesters(ctx context.Context) []types.User {
	return s.listAll(ctx, types.PoolRequester)
}

// listAll is the single pagination primitive every "fetch everything"
// fallback goes through: page size 100 until a short or empty page.
func (s *UsersService) listAll(ctx context.Context, pool types.Pool) []types.User {
	var users []types.User
	for page := 1; ; page++ {
		query := url.Values{
			"per_page": {strconv.Itoa(usersPerPage)},
			"page":     {strconv.Itoa(page)},
		}
		raw, err := s.client.Get(ctx, pool.Endpoint(), query, s.client.cfg.WorkspaceID)
		if err != nil {
			s.client.log.Errorf("error retrieving %s page %d: %v", pool.Endpoint(), page, err)
			break
		}

		batch, err := decodePoolList(raw, pool)
		if err != nil {
			s.client.log.Warn(err.Error())
			break
		}
		if len(batch) == 0 {
			break
		}
		users = append(users, batch...)
		if len(batch) < usersPerPage {
			break
		}
	}

	s.client.log.Infof("retrieved %d %s", len(users), pool.Endpoint())
	return users
}

func decodePoolList(raw json.RawMessage, pool types.Pool) ([]types.User, error) {
	if pool == types.PoolAgent {
		var env agentListEnvelope
		if err := decodeInto(raw, "agents", &env); err != nil {
			return nil, err
		}
		for i := range env.Agents {
			env.Agents[i].Pool = types.PoolAgent
		}
		return env.Agents, nil
	}
	var env requesterListEnvelope
	if err := decodeInto(raw, "requesters", &env); err != nil {
		return nil, err
	}
	for i := range env.Requesters {
		env.Requesters[i].Pool = types.PoolRequester
	}
	return env.Requesters, nil
}

// Update applies field updates to the user, routing to the pool resolved by
// the lightweight agent probe. department_ids values are always coerced to a
// list of integers. In dry-run mode the current record is merged with the
// requested fields and returned as a preview without touching the network.
// Returns nil on any failure, with detail in the logs.
func (s *UsersService) Update(ctx context.Context, id int64, fields map[string]any) *types.User {
	s.client.log.WithField("user_id", id).Info("updating user")

	pool := types.PoolRequester
	if s.IsAgent(ctx, id) {
		pool = types.PoolAgent
	}
	s.client.log.Infof("identified user %d as %s", id, pool)

	if s.client.DryRun() {
		current, err := s.ByID(ctx, id)
		if err != nil || current == nil {
			return nil
		}
		preview, err := mergeFields(current, fields)
		if err != nil {
			s.client.log.Errorf("building dry-run preview for user %d: %v", id, err)
			return nil
		}
		return preview
	}

	payload := make(map[string]any, len(fields))
	for key, value := range fields {
		if key == "department_ids" {
			ids, err := coerceDepartmentIDs(value)
			if err != nil {
				s.client.log.Errorf("invalid department_ids for user %d: %v", id, err)
				return nil
			}
			payload[key] = ids
			continue
		}
		payload[key] = value
	}

	endpoint := fmt.Sprintf("%s/%d", pool.Endpoint(), id)
	raw, err := s.client.Put(ctx, endpoint, payload, 0)
	if err != nil {
		s.client.log.Errorf("error updating user %d: %v", id, err)
		return nil
	}

	updated, err := DecodePoolUser(raw, pool)
	if err != nil || updated == nil {
		s.client.log.Warnf("update response for user %d did not contain expected data", id)
		return nil
	}
	s.client.log.Infof("successfully updated user %d", id)
	s.addRecent(*updated)
	return updated
}

// mergeFields shallow-merges requested fields over the current record via
// its JSON form, yielding a realistic preview of the post-update state.
func mergeFields(current *types.User, fields map[string]any) (*types.User, error) {
	encoded, err := json.Marshal(current)
	if err != nil {
		return nil, err
	}
	var asMap map[string]any
	if err := json.Unmarshal(encoded, &asMap); err != nil {
		return nil, err
	}
	for key, value := range fields {
		if key == "department_ids" {
			if ids, err := coerceDepartmentIDs(value); err == nil {
				asMap[key] = ids
				continue
			}
		}
		asMap[key] = value
	}
	merged, err := json.Marshal(asMap)
	if err != nil {
		return nil, err
	}
	preview := &types.User{}
	if err := json.Unmarshal(merged, preview); err != nil {
		return nil, err
	}
	preview.Pool = current.Pool
	return preview, nil
}

// coerceDepartmentIDs normalizes any scalar or list value into []int64.
func coerceDepartmentIDs(value any) ([]int64, error) {
	toInt := func(v any) (int64, error) {
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int64:
			return n, nil
		case float64:
			return int64(n), nil
		case json.Number:
			return n.Int64()
		case string:
			return strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		default:
			return 0, fmt.Errorf("cannot convert %T to department id", v)
		}
	}

	switch list := value.(type) {
	case []int64:
		return list, nil
	case []int:
		ids := make([]int64, len(list))
		for i, v := range list {
			ids[i] = int64(v)
		}
		return ids, nil
	case []any:
		ids := make([]int64, 0, len(list))
		for _, v := range list {
			id, err := toInt(v)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		return ids, nil
	default:
		id, err := toInt(value)
		if err != nil {
			return nil, err
		}
		return []int64{id}, nil
	}
}

// Deactivate soft-deletes the user's account. Returns false when the user
// cannot be resolved or the call fails.
func (s *UsersService) Deactivate(ctx context.Context, id int64) bool {
	s.client.log.WithField("user_id", id).Info("deactivating user")

	if s.client.DryRun() {
		s.client.log.Infof("dry run: would deactivate user %d", id)
		return true
	}

	user, err := s.ByID(ctx, id)
	if err != nil || user == nil {
		s.client.log.Warnf("user %d not found, cannot deactivate", id)
		return false
	}

	endpoint := fmt.Sprintf("%s/%d", poolForMutation(user).Endpoint(), id)
	if err := s.client.Delete(ctx, endpoint, s.client.cfg.WorkspaceID); err != nil {
		s.client.log.Errorf("error deactivating user %d: %v", id, err)
		return false
	}

	s.client.log.Infof("successfully deactivated user %d", id)
	s.patchRecentActive(id, false)
	return true
}

// Activate reverses a deactivation. Success means the reactivate call
// returned a payload without an error field.
func (s *UsersService) Activate(ctx context.Context, id int64) bool {
	s.client.log.WithField("user_id", id).Info("activating user")

	if s.client.DryRun() {
		s.client.log.Infof("dry run: would activate user %d", id)
		return true
	}

	user, err := s.ByID(ctx, id)
	if err != nil || user == nil {
		s.client.log.Warnf("user %d not found, cannot activate", id)
		return false
	}

	endpoint := fmt.Sprintf("%s/%d/reactivate", poolForMutation(user).Endpoint(), id)
	raw, err := s.client.Put(ctx, endpoint, map[string]any{}, s.client.cfg.WorkspaceID)
	if err != nil {
		s.client.log.Errorf("error activating user %d: %v", id, err)
		return false
	}

	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil || parsed["error"] != nil {
		s.client.log.Warnf("failed to activate user %d", id)
		return false
	}

	s.client.log.Infof("successfully activated user %d", id)
	s.patchRecentActive(id, true)
	return true
}

// Forget permanently deletes a requester and their tickets. Agents cannot be
// forgotten; the call is rejected before touching the network.
func (s *UsersService) Forget(ctx context.Context, id int64) bool {
	s.client.log.WithField("user_id", id).Info("permanently deleting requester")

	if s.client.DryRun() {
		s.client.log.Infof("dry run: would permanently delete requester %d", id)
		return true
	}

	user, err := s.ByID(ctx, id)
	if err != nil || user == nil {
		s.client.log.Warnf("user %d not found, cannot forget", id)
		return false
	}
	if poolForMutation(user) == types.PoolAgent {
		s.client.log.Warnf("user %d is an agent, only requesters can be forgotten", id)
		return false
	}

	endpoint := fmt.Sprintf("requesters/%d/forget", id)
	if err := s.client.Delete(ctx, endpoint, s.client.cfg.WorkspaceID); err != nil {
		s.client.log.Errorf("error forgetting requester %d: %v", id, err)
		return false
	}

	s.client.log.Infof("successfully forgot requester %d", id)
	s.removeRecent(id)
	return true
}

// poolForMutation routes mutations by the record's pool tag, falling back to
// the is_agent superset flag for requester-shaped agent records.
func poolForMutation(u *types.User) types.Pool {
	if u.Pool == types.PoolAgent || u.IsAgent {
		return types.PoolAgent
	}
	return types.PoolRequester
}

// Recent returns a copy of the most-recently-used resolved users, newest
// first.
func (s *UsersService) Recent() []types.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.User, len(s.recent))
	copy(out, s.recent)
	return out
}

func (s *UsersService) addRecent(user types.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.recent[:0]
	for _, existing := range s.recent {
		if existing.ID != user.ID {
			kept = append(kept, existing)
		}
	}
	s.recent = append([]types.User{user}, kept...)
	if len(s.recent) > maxRecentUsers {
		s.recent = s.recent[:maxRecentUsers]
	}
}

func (s *UsersService) patchRecentActive(id int64, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.recent {
		if s.recent[i].ID == id {
			s.recent[i].Active = active
			return
		}
	}
}

func (s *UsersService) removeRecent(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.recent[:0]
	for _, existing := range s.recent {
		if existing.ID != id {
			kept = append(kept, existing)
		}
	}
	s.recent = kept
}
