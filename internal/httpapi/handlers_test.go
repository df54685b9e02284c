package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"philogic.io/internal/audit"
	"philogic.io/internal/auth"
	"philogic.io/internal/vault"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	store   *fakeStore
	t       *testing.T
}

func newTestAPI(t *testing.T, opts ...audit.Option) *apiClient {
	t.Helper()

	store := newFakeStore()
	if err := auth.Bootstrap(context.Background(), store); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	authsvc, err := auth.NewService(store, []byte("test-secret"))
	if err != nil {
		t.Fatalf("auth service: %v", err)
	}
	rbac, err := auth.NewRBACService(store)
	if err != nil {
		t.Fatalf("rbac service: %v", err)
	}
	cipher, err := vault.NewCipher(bytes.Repeat([]byte{0x42}, vault.KeySize))
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	vaultsvc, err := vault.NewService(cipher, store)
	if err != nil {
		t.Fatalf("vault service: %v", err)
	}
	auditor := audit.NewRecorder(fakeAudit{store}, opts...)

	api := New(ReadyProbe{}, "test", authsvc, rbac, vaultsvc, auditor)
	api.rateBurst = 1000
	api.ratePerSec = 1000

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		store:   store,
		t:       t,
	}
}

func (c *apiClient) do(method, path string, body any, token string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) get(path string, params url.Values, token string) *http.Response {
	c.t.Helper()
	if params != nil {
		path += "?" + params.Encode()
	}
	return c.do(http.MethodGet, path, nil, token)
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// seedUser creates an active user assigned to one of the bootstrapped
// system roles and returns its id.
func (c *apiClient) seedUser(email, password, roleName string) string {
	c.t.Helper()
	ctx := context.Background()
	hash, err := auth.HashPassword(password)
	if err != nil {
		c.t.Fatalf("hash password: %v", err)
	}
	user, err := c.store.CreateUser(ctx, email, "", hash, auth.UserStatusActive)
	if err != nil {
		c.t.Fatalf("create user: %v", err)
	}
	if roleName == "" {
		return user.ID
	}
	roles, err := c.store.ListRoles(ctx)
	if err != nil {
		c.t.Fatalf("list roles: %v", err)
	}
	for _, r := range roles {
		if r.Name == roleName {
			if err := c.store.ReplaceUserRoles(ctx, user.ID, []string{r.ID}, ""); err != nil {
				c.t.Fatalf("assign role: %v", err)
			}
			return user.ID
		}
	}
	c.t.Fatalf("role %s not bootstrapped", roleName)
	return ""
}

func (c *apiClient) login(email, password string) string {
	c.t.Helper()
	resp := c.do(http.MethodPost, "/v1/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("login status = %d", resp.StatusCode)
	}
	var session auth.Session
	decodeBody(c.t, resp, &session)
	return session.Token
}

func TestLoginFlow(t *testing.T) {
	c := newTestAPI(t)
	c.seedUser("admin@example.com", "pass-word-1", "superadmin")

	resp := c.do(http.MethodPost, "/v1/auth/login", map[string]string{
		"email":    "admin@example.com",
		"password": "pass-word-1",
	}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var session auth.Session
	decodeBody(t, resp, &session)
	if session.Token == "" {
		t.Fatal("expected a token")
	}
	if !session.Principal.Superadmin {
		t.Fatal("superadmin role must derive the superadmin flag")
	}

	if _, ok := c.store.lastEvent("auth.login"); !ok {
		t.Fatal("login must be audited")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	c := newTestAPI(t)
	c.seedUser("user@example.com", "pass-word-1", "standard_user")

	resp := c.do(http.MethodPost, "/v1/auth/login", map[string]string{
		"email":    "user@example.com",
		"password": "wrong",
	}, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestLoginSuspendedAccountLeaksStatusOnPurpose(t *testing.T) {
	c := newTestAPI(t)
	id := c.seedUser("user@example.com", "pass-word-1", "standard_user")
	if _, err := c.store.UpdateUserStatus(context.Background(), id, auth.UserStatusSuspended); err != nil {
		t.Fatalf("suspend: %v", err)
	}

	resp := c.do(http.MethodPost, "/v1/auth/login", map[string]string{
		"email":    "user@example.com",
		"password": "pass-word-1",
	}, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	var body struct {
		Error string `json:"error"`
	}
	decodeBody(t, resp, &body)
	if !strings.Contains(body.Error, "suspended") {
		t.Fatalf("error = %q, want the status-specific reason", body.Error)
	}
}

func TestUnauthenticatedVersusForbidden(t *testing.T) {
	c := newTestAPI(t)
	c.seedUser("user@example.com", "pass-word-1", "standard_user")
	token := c.login("user@example.com", "pass-word-1")

	// No token at all: 401.
	resp := c.get("/v1/users", nil, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing token: status = %d, want 401", resp.StatusCode)
	}

	// Valid token without the grant: 403 naming the requirement.
	resp = c.get("/v1/users", nil, token)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("missing grant: status = %d, want 403", resp.StatusCode)
	}
	var body struct {
		Error string `json:"error"`
	}
	decodeBody(t, resp, &body)
	if !strings.Contains(body.Error, auth.PermUserReadAll) {
		t.Fatalf("403 body = %q, want the required permission named", body.Error)
	}

	// Garbage token: 401, not 403.
	resp = c.get("/v1/users", nil, "garbage.token.here")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token: status = %d, want 401", resp.StatusCode)
	}
}

func TestRoleLifecycle(t *testing.T) {
	c := newTestAPI(t)
	c.seedUser("admin@example.com", "pass-word-1", "superadmin")
	token := c.login("admin@example.com", "pass-word-1")

	resp := c.do(http.MethodPost, "/v1/roles", map[string]string{
		"name":        "analyst",
		"description": "read-mostly role",
	}, token)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create role: status = %d", resp.StatusCode)
	}
	var role auth.Role
	decodeBody(t, resp, &role)
	if role.IsSystem {
		t.Fatal("api-created roles must not be system roles")
	}
	if _, ok := c.store.lastEvent("role.created"); !ok {
		t.Fatal("role creation must be audited")
	}

	resp = c.do(http.MethodPut, "/v1/roles/"+role.ID+"/permissions", map[string]any{
		"permissions": []string{"user:read:all", "audit:read:self"},
	}, token)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set permissions: status = %d", resp.StatusCode)
	}
	if _, ok := c.store.lastEvent("role.permissions.updated"); !ok {
		t.Fatal("permission grant must be audited")
	}

	resp = c.do(http.MethodDelete, "/v1/roles/"+role.ID, nil, token)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete role: status = %d", resp.StatusCode)
	}

	// System roles refuse deletion.
	roles, _ := c.store.ListRoles(context.Background())
	var sysID string
	for _, r := range roles {
		if r.Name == "superadmin" {
			sysID = r.ID
		}
	}
	resp = c.do(http.MethodDelete, "/v1/roles/"+sysID, nil, token)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("delete system role: status = %d, want 409", resp.StatusCode)
	}
}

func TestAPIKeyOneTimeDisclosure(t *testing.T) {
	c := newTestAPI(t)
	c.seedUser("user@example.com", "pass-word-1", "standard_user")
	token := c.login("user@example.com", "pass-word-1")
	key := "sk-" + strings.Repeat("a", 48)

	resp := c.do(http.MethodPost, "/v1/apikeys", map[string]any{
		"name":     "prod",
		"provider": "openai",
		"key":      key,
	}, token)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: status = %d", resp.StatusCode)
	}
	var created struct {
		APIKey vault.Credential `json:"api_key"`
		FullKey string          `json:"full_key"`
		Notice  string          `json:"notice"`
	}
	decodeBody(t, resp, &created)
	if created.FullKey != key {
		t.Fatal("creation response must disclose the plaintext once")
	}
	if created.Notice == "" {
		t.Fatal("creation response must warn the key is shown once")
	}
	if _, ok := c.store.lastEvent("apikey.created"); !ok {
		t.Fatal("credential creation must be audited")
	}

	// Every subsequent read is redacted.
	resp = c.get("/v1/apikeys", nil, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: status = %d", resp.StatusCode)
	}
	var listed struct {
		APIKeys []vault.Credential `json:"api_keys"`
	}
	decodeBody(t, resp, &listed)
	if len(listed.APIKeys) != 1 {
		t.Fatalf("listed %d keys, want 1", len(listed.APIKeys))
	}
	got := listed.APIKeys[0]
	if got.Preview == key || !strings.Contains(got.Preview, "...") {
		t.Fatalf("preview = %q, want redacted form", got.Preview)
	}

	raw, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("marshal credential: %v", err)
	}
	if strings.Contains(string(raw), key) {
		t.Fatal("read model must never carry the plaintext")
	}
}

func TestAPIKeyDuplicateConflict(t *testing.T) {
	c := newTestAPI(t)
	c.seedUser("alice@example.com", "pass-word-1", "standard_user")
	c.seedUser("bob@example.com", "pass-word-2", "standard_user")
	aliceTok := c.login("alice@example.com", "pass-word-1")
	bobTok := c.login("bob@example.com", "pass-word-2")
	key := "sk-" + strings.Repeat("b", 48)

	resp := c.do(http.MethodPost, "/v1/apikeys", map[string]any{
		"name": "first", "provider": "openai", "key": key,
	}, aliceTok)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first create: status = %d", resp.StatusCode)
	}

	resp = c.do(http.MethodPost, "/v1/apikeys", map[string]any{
		"name": "second", "provider": "openai", "key": key,
	}, bobTok)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate: status = %d, want 409", resp.StatusCode)
	}
	var body struct {
		Error string `json:"error"`
	}
	decodeBody(t, resp, &body)
	if strings.Contains(body.Error, "alice") {
		t.Fatal("conflict must not reveal the existing owner")
	}
}

func TestAPIKeyCrossOwnerHiddenAsNotFound(t *testing.T) {
	c := newTestAPI(t)
	c.seedUser("alice@example.com", "pass-word-1", "standard_user")
	c.seedUser("bob@example.com", "pass-word-2", "standard_user")
	aliceTok := c.login("alice@example.com", "pass-word-1")
	bobTok := c.login("bob@example.com", "pass-word-2")

	resp := c.do(http.MethodPost, "/v1/apikeys", map[string]any{
		"name": "mine", "provider": "openai", "key": "sk-" + strings.Repeat("c", 48),
	}, aliceTok)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: status = %d", resp.StatusCode)
	}
	var created struct {
		APIKey vault.Credential `json:"api_key"`
	}
	decodeBody(t, resp, &created)

	// Bob can neither see nor delete Alice's credential.
	resp = c.get("/v1/apikeys", nil, bobTok)
	var listed struct {
		APIKeys []vault.Credential `json:"api_keys"`
	}
	decodeBody(t, resp, &listed)
	if len(listed.APIKeys) != 0 {
		t.Fatalf("bob sees %d foreign keys", len(listed.APIKeys))
	}

	resp = c.do(http.MethodDelete, "/v1/apikeys/"+created.APIKey.ID, nil, bobTok)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("cross-owner delete: status = %d, want 404", resp.StatusCode)
	}
}

func TestAuditReadScoping(t *testing.T) {
	c := newTestAPI(t)
	adminID := c.seedUser("admin@example.com", "pass-word-1", "superadmin")
	userID := c.seedUser("user@example.com", "pass-word-2", "standard_user")
	adminTok := c.login("admin@example.com", "pass-word-1")
	userTok := c.login("user@example.com", "pass-word-2")

	// Self-scoped readers are pinned to their own actor id even when
	// they ask for someone else's.
	resp := c.get("/v1/audit", url.Values{"actor_id": {adminID}}, userTok)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("self-scoped audit read: status = %d", resp.StatusCode)
	}
	var page struct {
		Entries []audit.Entry `json:"entries"`
	}
	decodeBody(t, resp, &page)
	for _, e := range page.Entries {
		if e.ActorID != userID {
			t.Fatalf("self-scoped reader saw actor %q", e.ActorID)
		}
	}

	// The all-scoped reader sees both actors' logins.
	resp = c.get("/v1/audit", url.Values{"action": {"auth.login"}}, adminTok)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("audit read: status = %d", resp.StatusCode)
	}
	decodeBody(t, resp, &page)
	actors := map[string]bool{}
	for _, e := range page.Entries {
		actors[e.ActorID] = true
	}
	if !actors[adminID] || !actors[userID] {
		t.Fatalf("admin audit view missing actors: %v", actors)
	}
}

func TestStatusUpdateVisibleOnRefreshOnly(t *testing.T) {
	c := newTestAPI(t)
	c.seedUser("admin@example.com", "pass-word-1", "superadmin")
	targetID := c.seedUser("user@example.com", "pass-word-2", "standard_user")
	adminTok := c.login("admin@example.com", "pass-word-1")
	userTok := c.login("user@example.com", "pass-word-2")

	resp := c.do(http.MethodPut, "/v1/users/"+targetID+"/status", map[string]string{
		"status": auth.UserStatusSuspended,
	}, adminTok)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status update: status = %d", resp.StatusCode)
	}
	if _, ok := c.store.lastEvent("user.status.updated"); !ok {
		t.Fatal("status update must be audited")
	}

	// The issued token still works until its next refresh.
	resp = c.get("/v1/auth/me", nil, userTok)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me with stale token: status = %d", resp.StatusCode)
	}

	resp = c.do(http.MethodPost, "/v1/auth/refresh", map[string]string{"token": userTok}, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("refresh after suspension: status = %d, want 401", resp.StatusCode)
	}
}

func TestRoleReplacementAudited(t *testing.T) {
	c := newTestAPI(t)
	c.seedUser("admin@example.com", "pass-word-1", "superadmin")
	targetID := c.seedUser("user@example.com", "pass-word-2", "standard_user")
	adminTok := c.login("admin@example.com", "pass-word-1")

	roles, _ := c.store.ListRoles(context.Background())
	var readOnlyID string
	for _, r := range roles {
		if r.Name == "read_only" {
			readOnlyID = r.ID
		}
	}

	resp := c.do(http.MethodPut, "/v1/users/"+targetID+"/roles", map[string]any{
		"role_ids": []string{readOnlyID},
	}, adminTok)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("replace roles: status = %d", resp.StatusCode)
	}

	evt, ok := c.store.lastEvent("user.roles.replaced")
	if !ok {
		t.Fatal("role replacement must be audited")
	}
	if evt.ResourceID != targetID {
		t.Fatalf("audited resource = %q, want %q", evt.ResourceID, targetID)
	}
}

func TestStrictAuditFailsRoleMutations(t *testing.T) {
	c := newTestAPI(t, audit.WithStrictMode(true))
	c.seedUser("admin@example.com", "pass-word-1", "superadmin")
	token := c.login("admin@example.com", "pass-word-1")

	c.store.mu.Lock()
	c.store.auditErr = context.DeadlineExceeded
	c.store.mu.Unlock()

	resp := c.do(http.MethodPost, "/v1/roles", map[string]string{"name": "doomed"}, token)
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("strict audit failure: status = %d, want 500", resp.StatusCode)
	}
}

func TestHealthEndpointsArePublic(t *testing.T) {
	c := newTestAPI(t)
	for _, path := range []string{"/healthz", "/readyz", "/v1/info", "/metrics"} {
		resp := c.get(path, nil, "")
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: status = %d", path, resp.StatusCode)
		}
	}
}
