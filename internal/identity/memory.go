package identity

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"squire.sh/internal/ids"
)

// MemStore is a map-backed Store. It enforces the same uniqueness
// rules as the Postgres store and is used by tests and local runs
// without a database.
type MemStore struct {
	mu          sync.RWMutex
	users       map[string]*User
	roles       map[string]*Role
	resources   map[string]*Resource
	permissions map[string]*Permission
	policies    map[string]*Policy
	logins      []*Login
	otps        map[string]*OTP
}

func NewMemStore() *MemStore {
	return &MemStore{
		users:       make(map[string]*User),
		roles:       make(map[string]*Role),
		resources:   make(map[string]*Resource),
		permissions: make(map[string]*Permission),
		policies:    make(map[string]*Policy),
		otps:        make(map[string]*OTP),
	}
}

func (m *MemStore) Users() UserStore             { return (*memUsers)(m) }
func (m *MemStore) Roles() RoleStore             { return (*memRoles)(m) }
func (m *MemStore) Resources() ResourceStore     { return (*memResources)(m) }
func (m *MemStore) Permissions() PermissionStore { return (*memPermissions)(m) }
func (m *MemStore) Policies() PolicyStore        { return (*memPolicies)(m) }
func (m *MemStore) Logins() LoginStore           { return (*memLogins)(m) }
func (m *MemStore) OTPs() OTPStore               { return (*memOTPs)(m) }

// Users ---------------------------------------------------------------------

type memUsers MemStore

func (m *memUsers) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == "" {
		u.ID = ids.New()
	}
	if u.Joined.IsZero() {
		u.Joined = time.Now().UTC()
	}
	for _, existing := range m.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return ErrConflict
		}
		if u.PhoneNumber != "" && existing.PhoneNumber == u.PhoneNumber {
			return ErrConflict
		}
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memUsers) Find(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) FindBy(_ context.Context, lookup Lookup) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		var match bool
		switch lookup.column() {
		case "username":
			match = u.Username == lookup.Value()
		case "email":
			match = strings.EqualFold(u.Email, lookup.Value())
		}
		if match {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memUsers) List(_ context.Context) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*User, 0, len(m.users))
	for _, u := range m.users {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Joined.Before(out[j].Joined) })
	return out, nil
}

func (m *memUsers) Update(_ context.Context, username string, upd UserUpdate) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username != username {
			continue
		}
		if upd.PhoneNumber != nil && *upd.PhoneNumber != "" {
			for _, other := range m.users {
				if other.ID != u.ID && other.PhoneNumber == *upd.PhoneNumber {
					return nil, ErrConflict
				}
			}
		}
		apply := func(dst *string, src *string) {
			if src != nil {
				*dst = *src
			}
		}
		apply(&u.FirstName, upd.FirstName)
		apply(&u.LastName, upd.LastName)
		apply(&u.PhoneNumber, upd.PhoneNumber)
		apply(&u.SecondaryEmail, upd.SecondaryEmail)
		apply(&u.CompanyName, upd.CompanyName)
		apply(&u.Country, upd.Country)
		apply(&u.RoleID, upd.RoleID)
		if upd.Disabled != nil {
			u.Disabled = *upd.Disabled
		}
		cp := *u
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *memUsers) UpdatePassword(_ context.Context, userID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (m *memUsers) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	return nil
}

// Roles ---------------------------------------------------------------------

type memRoles MemStore

func (m *memRoles) Create(_ context.Context, role *Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if role.ID == "" {
		role.ID = ids.New()
	}
	for _, existing := range m.roles {
		if existing.Title == role.Title {
			return ErrConflict
		}
	}
	cp := *role
	m.roles[role.ID] = &cp
	return nil
}

func (m *memRoles) Find(_ context.Context, id string) (*Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	role, ok := m.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *role
	return &cp, nil
}

func (m *memRoles) List(_ context.Context) ([]*Role, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Role, 0, len(m.roles))
	for _, role := range m.roles {
		cp := *role
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRoles) Update(_ context.Context, id, title string) (*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	role.Title = title
	cp := *role
	return &cp, nil
}

func (m *memRoles) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[id]; !ok {
		return ErrNotFound
	}
	delete(m.roles, id)
	return nil
}

// Resources -----------------------------------------------------------------

type memResources MemStore

func (m *memResources) Create(_ context.Context, res *Resource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if res.ID == "" {
		res.ID = ids.New()
	}
	for _, existing := range m.resources {
		if existing.Name == res.Name {
			return ErrConflict
		}
	}
	cp := *res
	m.resources[res.ID] = &cp
	return nil
}

func (m *memResources) Find(_ context.Context, id string) (*Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res, ok := m.resources[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *res
	return &cp, nil
}

func (m *memResources) List(_ context.Context) ([]*Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Resource, 0, len(m.resources))
	for _, res := range m.resources {
		cp := *res
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memResources) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.resources[id]; !ok {
		return ErrNotFound
	}
	delete(m.resources, id)
	return nil
}

// Permissions ---------------------------------------------------------------

type memPermissions MemStore

func (m *memPermissions) Create(_ context.Context, perm *Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if perm.ID == "" {
		perm.ID = ids.New()
	}
	if _, ok := m.resources[perm.ResourceID]; !ok {
		return ErrConflict
	}
	for _, existing := range m.permissions {
		if existing.Action == perm.Action && existing.ResourceID == perm.ResourceID {
			return ErrConflict
		}
	}
	cp := *perm
	m.permissions[perm.ID] = &cp
	return nil
}

func (m *memPermissions) Find(_ context.Context, id string) (*Permission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	perm, ok := m.permissions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *perm
	return &cp, nil
}

func (m *memPermissions) List(_ context.Context) ([]*Permission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Permission, 0, len(m.permissions))
	for _, perm := range m.permissions {
		cp := *perm
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memPermissions) Update(_ context.Context, id string, upd PermissionUpdate) (*Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	perm, ok := m.permissions[id]
	if !ok {
		return nil, ErrNotFound
	}
	action := perm.Action
	if upd.Action != nil {
		action = *upd.Action
	}
	resourceID := perm.ResourceID
	if upd.ResourceID != nil {
		if _, ok := m.resources[*upd.ResourceID]; !ok {
			return nil, ErrConflict
		}
		resourceID = *upd.ResourceID
	}
	for _, other := range m.permissions {
		if other.ID != id && other.Action == action && other.ResourceID == resourceID {
			return nil, ErrConflict
		}
	}
	perm.Action = action
	perm.ResourceID = resourceID
	cp := *perm
	return &cp, nil
}

func (m *memPermissions) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.permissions[id]; !ok {
		return ErrNotFound
	}
	delete(m.permissions, id)
	return nil
}

// Policies ------------------------------------------------------------------

type memPolicies MemStore

func (m *memPolicies) Create(_ context.Context, policy *Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.policies[policy.Name]; ok {
		return ErrConflict
	}
	if _, ok := m.permissions[policy.PermissionID]; !ok {
		return ErrConflict
	}
	if _, ok := m.roles[policy.RoleID]; !ok {
		return ErrConflict
	}
	for _, existing := range m.policies {
		if existing.PermissionID == policy.PermissionID && existing.RoleID == policy.RoleID {
			return ErrConflict
		}
	}
	cp := *policy
	m.policies[policy.Name] = &cp
	return nil
}

func (m *memPolicies) FindByName(_ context.Context, name string) (*Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	policy, ok := m.policies[name]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *policy
	return &cp, nil
}

func (m *memPolicies) List(_ context.Context) ([]*Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Policy, 0, len(m.policies))
	for _, policy := range m.policies {
		cp := *policy
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memPolicies) Update(_ context.Context, name string, upd PolicyUpdate) (*Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	policy, ok := m.policies[name]
	if !ok {
		return nil, ErrNotFound
	}
	permissionID := policy.PermissionID
	if upd.PermissionID != nil {
		if _, ok := m.permissions[*upd.PermissionID]; !ok {
			return nil, ErrConflict
		}
		permissionID = *upd.PermissionID
	}
	roleID := policy.RoleID
	if upd.RoleID != nil {
		if _, ok := m.roles[*upd.RoleID]; !ok {
			return nil, ErrConflict
		}
		roleID = *upd.RoleID
	}
	for _, other := range m.policies {
		if other != policy && other.PermissionID == permissionID && other.RoleID == roleID {
			return nil, ErrConflict
		}
	}
	if upd.Name != nil && *upd.Name != name {
		if _, taken := m.policies[*upd.Name]; taken {
			return nil, ErrConflict
		}
		delete(m.policies, name)
		policy.Name = *upd.Name
		m.policies[policy.Name] = policy
	}
	policy.PermissionID = permissionID
	policy.RoleID = roleID
	cp := *policy
	return &cp, nil
}

func (m *memPolicies) DeleteByName(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.policies[name]; !ok {
		return ErrNotFound
	}
	delete(m.policies, name)
	return nil
}

func (m *memPolicies) TargetsForRole(_ context.Context, roleID string) ([]PolicyTarget, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var targets []PolicyTarget
	for _, policy := range m.policies {
		if policy.RoleID != roleID {
			continue
		}
		perm, ok := m.permissions[policy.PermissionID]
		if !ok {
			continue
		}
		res, ok := m.resources[perm.ResourceID]
		if !ok {
			continue
		}
		targets = append(targets, PolicyTarget{Action: perm.Action, ResourceName: res.Name})
	}
	return targets, nil
}

// Logins --------------------------------------------------------------------

type memLogins MemStore

func (m *memLogins) Append(_ context.Context, login *Login) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if login.ID == "" {
		login.ID = ids.New()
	}
	if login.Timestamp.IsZero() {
		login.Timestamp = time.Now().UTC()
	}
	cp := *login
	m.logins = append(m.logins, &cp)
	return nil
}

func (m *memLogins) ListByUser(_ context.Context, userID string) ([]*Login, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Login
	for _, login := range m.logins {
		if login.UserID == userID {
			cp := *login
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

// OTPs ----------------------------------------------------------------------

type memOTPs MemStore

func (m *memOTPs) Create(_ context.Context, otp *OTP) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.otps[otp.AuthorizationCode]; ok {
		return ErrConflict
	}
	for _, existing := range m.otps {
		if existing.RevokeCode == otp.RevokeCode {
			return ErrConflict
		}
	}
	cp := *otp
	m.otps[otp.AuthorizationCode] = &cp
	return nil
}

func (m *memOTPs) FindByAuthorizationCode(_ context.Context, code string) (*OTP, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	otp, ok := m.otps[code]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *otp
	return &cp, nil
}

func (m *memOTPs) Delete(_ context.Context, authorizationCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.otps[authorizationCode]; !ok {
		return ErrNotFound
	}
	delete(m.otps, authorizationCode)
	return nil
}

func (m *memOTPs) DeleteByRevokeCode(_ context.Context, revokeCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for code, otp := range m.otps {
		if otp.RevokeCode == revokeCode {
			delete(m.otps, code)
			return nil
		}
	}
	return ErrNotFound
}
