package httpapi

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"philogic.io/internal/audit"
	"philogic.io/internal/auth"
	"philogic.io/internal/vault"
)

// fakeStore is a single in-memory backend implementing the auth, vault
// and audit persistence contracts, mirroring how the real Postgres
// store serves all three.
type fakeStore struct {
	mu sync.Mutex

	users     map[string]auth.User
	roles     map[string]auth.Role
	perms     map[string]auth.Permission
	rolePerms map[string][]string
	userRoles map[string][]string

	creds  map[string]vault.Record
	byHash map[string]string

	events   []audit.Entry
	auditErr error
	nextID   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:     map[string]auth.User{},
		roles:     map[string]auth.Role{},
		perms:     map[string]auth.Permission{},
		rolePerms: map[string][]string{},
		userRoles: map[string][]string{},
		creds:     map[string]vault.Record{},
		byHash:    map[string]string{},
	}
}

func (f *fakeStore) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

// auth.Store

func (f *fakeStore) CreateUser(ctx context.Context, email, name, passwordHash, status string) (auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return auth.User{}, auth.ErrConflict
		}
	}
	u := auth.User{ID: f.id("user"), Email: email, Name: name, PasswordHash: passwordHash, Status: status, CreatedAt: time.Now()}
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeStore) GetUser(ctx context.Context, userID string) (auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	return u, nil
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return auth.User{}, auth.ErrNotFound
}

func (f *fakeStore) ListUsers(ctx context.Context) ([]auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]auth.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) UpdateUserStatus(ctx context.Context, userID, status string) (auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	u.Status = status
	f.users[userID] = u
	return u, nil
}

func (f *fakeStore) CreateRole(ctx context.Context, name, description string, isSystem bool) (auth.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.roles {
		if r.Name == name {
			return auth.Role{}, auth.ErrConflict
		}
	}
	r := auth.Role{ID: f.id("role"), Name: name, Description: description, IsSystem: isSystem, CreatedAt: time.Now()}
	f.roles[r.ID] = r
	return r, nil
}

func (f *fakeStore) GetRole(ctx context.Context, roleID string) (auth.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.roles[roleID]
	if !ok {
		return auth.Role{}, auth.ErrNotFound
	}
	return r, nil
}

func (f *fakeStore) ListRoles(ctx context.Context) ([]auth.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]auth.Role, 0, len(f.roles))
	for _, r := range f.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeStore) DeleteRole(ctx context.Context, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.roles[roleID]
	if !ok {
		return auth.ErrNotFound
	}
	if r.IsSystem {
		return auth.ErrSystemRole
	}
	delete(f.roles, roleID)
	delete(f.rolePerms, roleID)
	return nil
}

func (f *fakeStore) EnsurePermissions(ctx context.Context, perms []auth.Permission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range perms {
		if p.ID == "" {
			p.ID = f.id("perm")
		}
		f.perms[p.Key] = p
	}
	return nil
}

func (f *fakeStore) ListPermissions(ctx context.Context) ([]auth.Permission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]auth.Permission, 0, len(f.perms))
	for _, p := range f.perms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (f *fakeStore) SetRolePermissions(ctx context.Context, roleID string, keys []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.roles[roleID]; !ok {
		return auth.ErrNotFound
	}
	f.rolePerms[roleID] = append([]string(nil), keys...)
	return nil
}

func (f *fakeStore) RolePermissionKeys(ctx context.Context, roleID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.roles[roleID]; !ok {
		return nil, auth.ErrNotFound
	}
	return append([]string(nil), f.rolePerms[roleID]...), nil
}

func (f *fakeStore) ReplaceUserRoles(ctx context.Context, userID string, roleIDs []string, assignedBy string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[userID]; !ok {
		return auth.ErrNotFound
	}
	f.userRoles[userID] = append([]string(nil), roleIDs...)
	return nil
}

func (f *fakeStore) UserRoleNames(ctx context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for _, id := range f.userRoles[userID] {
		if r, ok := f.roles[id]; ok {
			names = append(names, r.Name)
		}
	}
	return names, nil
}

func (f *fakeStore) UserPermissionKeys(ctx context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]bool{}
	var keys []string
	for _, id := range f.userRoles[userID] {
		for _, k := range f.rolePerms[id] {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	return keys, nil
}

// vault.Store

func (f *fakeStore) Insert(ctx context.Context, rec *vault.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, dup := f.byHash[rec.LookupHash]; dup {
		return vault.ErrDuplicate
	}
	f.creds[rec.ID] = *rec
	f.byHash[rec.LookupHash] = rec.ID
	return nil
}

func (f *fakeStore) Get(ctx context.Context, id string) (vault.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.creds[id]
	if !ok {
		return vault.Record{}, vault.ErrNotFound
	}
	return rec, nil
}

func (f *fakeStore) List(ctx context.Context, ownerID string, allOwners bool) ([]vault.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []vault.Credential
	for _, rec := range f.creds {
		if allOwners || rec.OwnerID == ownerID {
			out = append(out, rec.Credential)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) SetActive(ctx context.Context, id string, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.creds[id]
	if !ok {
		return vault.ErrNotFound
	}
	rec.IsActive = active
	f.creds[id] = rec
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.creds[id]
	if !ok {
		return vault.ErrNotFound
	}
	delete(f.byHash, rec.LookupHash)
	delete(f.creds, id)
	return nil
}

func (f *fakeStore) RecordUsage(ctx context.Context, id string, tokens int64, usedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.creds[id]
	if !ok {
		return vault.ErrNotFound
	}
	rec.TotalRequests++
	rec.TotalTokens += tokens
	rec.LastUsedAt = &usedAt
	f.creds[id] = rec
	return nil
}

// audit.Store

func (f *fakeStore) Append(ctx context.Context, e *audit.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.auditErr != nil {
		return f.auditErr
	}
	f.events = append(f.events, *e)
	return nil
}

func (f *fakeStore) ListAudit(ctx context.Context, flt audit.Filter) ([]audit.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []audit.Entry
	for _, e := range f.events {
		if flt.ActorID != "" && e.ActorID != flt.ActorID {
			continue
		}
		if flt.Action != "" && e.Action != flt.Action {
			continue
		}
		if flt.ResourceType != "" && e.ResourceType != flt.ResourceType {
			continue
		}
		out = append(out, e)
	}
	if flt.Offset > len(out) {
		return nil, nil
	}
	out = out[flt.Offset:]
	if flt.Limit > 0 && len(out) > flt.Limit {
		out = out[:flt.Limit]
	}
	return out, nil
}

// fakeAudit adapts the fake store to the audit persistence contract,
// mirroring the facet the real store exposes.
type fakeAudit struct{ *fakeStore }

func (f fakeAudit) List(ctx context.Context, flt audit.Filter) ([]audit.Entry, error) {
	return f.ListAudit(ctx, flt)
}

// lastEvent returns the most recent audit entry with the given action.
func (f *fakeStore) lastEvent(action string) (audit.Entry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.events) - 1; i >= 0; i-- {
		if f.events[i].Action == action {
			return f.events[i], true
		}
	}
	return audit.Entry{}, false
}
