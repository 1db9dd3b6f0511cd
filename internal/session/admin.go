package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"squire.sh/internal/credential"
	"squire.sh/internal/identity"
)

// Admin orchestrates the administrative CRUD over identity entities.
// Every operation is gated upstream by the ("*", "*") policy check;
// Admin itself only validates and persists.
type Admin struct {
	store identity.Store
}

func NewAdmin(store identity.Store) (*Admin, error) {
	if store == nil {
		return nil, errors.New("session: identity store is required")
	}
	return &Admin{store: store}, nil
}

// NewUser carries the fields accepted on user creation. The password
// is optional: accounts provisioned without one must go through the
// password-reset flow before they can log in.
type NewUser struct {
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Username       string `json:"username"`
	Email          string `json:"email"`
	PhoneNumber    string `json:"phone_number"`
	SecondaryEmail string `json:"secondary_email"`
	CompanyName    string `json:"company_name"`
	Country        string `json:"country"`
	Password       string `json:"password"`
	RoleID         string `json:"role_id"`
	Disabled       bool   `json:"disabled"`
}

// Users ---------------------------------------------------------------------

func (a *Admin) CreateUser(ctx context.Context, in NewUser) (*identity.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	if in.Username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if in.Email == "" || !strings.Contains(in.Email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	user := &identity.User{
		FirstName:      strings.TrimSpace(in.FirstName),
		LastName:       strings.TrimSpace(in.LastName),
		Username:       in.Username,
		Email:          in.Email,
		PhoneNumber:    strings.TrimSpace(in.PhoneNumber),
		SecondaryEmail: strings.TrimSpace(in.SecondaryEmail),
		CompanyName:    strings.TrimSpace(in.CompanyName),
		Country:        strings.TrimSpace(in.Country),
		RoleID:         strings.TrimSpace(in.RoleID),
		Disabled:       in.Disabled,
	}
	if in.Password != "" {
		if err := credential.SetPassword(user, in.Password); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	if err := a.store.Users().Create(ctx, user); err != nil {
		return nil, constraintErr(err)
	}
	return user, nil
}

func (a *Admin) GetUser(ctx context.Context, username string) (*identity.User, error) {
	return a.store.Users().FindBy(ctx, identity.ByUsername(username))
}

func (a *Admin) ListUsers(ctx context.Context) ([]*identity.User, error) {
	return a.store.Users().List(ctx)
}

func (a *Admin) UpdateUser(ctx context.Context, username string, upd identity.UserUpdate) (*identity.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	user, err := a.store.Users().Update(ctx, username, upd)
	if err != nil {
		return nil, constraintErr(err)
	}
	return user, nil
}

func (a *Admin) DeleteUser(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return a.store.Users().Delete(ctx, id)
}

// Roles ---------------------------------------------------------------------

func (a *Admin) CreateRole(ctx context.Context, title string) (*identity.Role, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: role title is required", ErrInvalidInput)
	}
	role := &identity.Role{Title: title}
	if err := a.store.Roles().Create(ctx, role); err != nil {
		return nil, constraintErr(err)
	}
	return role, nil
}

func (a *Admin) GetRole(ctx context.Context, id string) (*identity.Role, error) {
	return a.store.Roles().Find(ctx, id)
}

func (a *Admin) ListRoles(ctx context.Context) ([]*identity.Role, error) {
	return a.store.Roles().List(ctx)
}

func (a *Admin) UpdateRole(ctx context.Context, id, title string) (*identity.Role, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: role title is required", ErrInvalidInput)
	}
	role, err := a.store.Roles().Update(ctx, id, title)
	if err != nil {
		return nil, constraintErr(err)
	}
	return role, nil
}

func (a *Admin) DeleteRole(ctx context.Context, id string) error {
	return a.store.Roles().Delete(ctx, id)
}

// Resources -----------------------------------------------------------------

func (a *Admin) CreateResource(ctx context.Context, name string) (*identity.Resource, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: resource name is required", ErrInvalidInput)
	}
	res := &identity.Resource{Name: name}
	if err := a.store.Resources().Create(ctx, res); err != nil {
		return nil, constraintErr(err)
	}
	return res, nil
}

func (a *Admin) GetResource(ctx context.Context, id string) (*identity.Resource, error) {
	return a.store.Resources().Find(ctx, id)
}

func (a *Admin) ListResources(ctx context.Context) ([]*identity.Resource, error) {
	return a.store.Resources().List(ctx)
}

func (a *Admin) DeleteResource(ctx context.Context, id string) error {
	return a.store.Resources().Delete(ctx, id)
}

// Permissions ---------------------------------------------------------------

func (a *Admin) CreatePermission(ctx context.Context, action, resourceID string) (*identity.Permission, error) {
	action = strings.TrimSpace(action)
	resourceID = strings.TrimSpace(resourceID)
	if action == "" || resourceID == "" {
		return nil, fmt.Errorf("%w: action and resource_id are required", ErrInvalidInput)
	}
	perm := &identity.Permission{Action: action, ResourceID: resourceID}
	if err := a.store.Permissions().Create(ctx, perm); err != nil {
		return nil, constraintErr(err)
	}
	return perm, nil
}

func (a *Admin) GetPermission(ctx context.Context, id string) (*identity.Permission, error) {
	return a.store.Permissions().Find(ctx, id)
}

func (a *Admin) ListPermissions(ctx context.Context) ([]*identity.Permission, error) {
	return a.store.Permissions().List(ctx)
}

func (a *Admin) UpdatePermission(ctx context.Context, id string, upd identity.PermissionUpdate) (*identity.Permission, error) {
	if upd.Action != nil && strings.TrimSpace(*upd.Action) == "" {
		return nil, fmt.Errorf("%w: action is required", ErrInvalidInput)
	}
	perm, err := a.store.Permissions().Update(ctx, id, upd)
	if err != nil {
		return nil, constraintErr(err)
	}
	return perm, nil
}

func (a *Admin) DeletePermission(ctx context.Context, id string) error {
	return a.store.Permissions().Delete(ctx, id)
}

// Policies ------------------------------------------------------------------

func (a *Admin) CreatePolicy(ctx context.Context, name, permissionID, roleID string) (*identity.Policy, error) {
	name = strings.TrimSpace(name)
	permissionID = strings.TrimSpace(permissionID)
	roleID = strings.TrimSpace(roleID)
	if name == "" || permissionID == "" || roleID == "" {
		return nil, fmt.Errorf("%w: name, permission_id and role_id are required", ErrInvalidInput)
	}
	policy := &identity.Policy{Name: name, PermissionID: permissionID, RoleID: roleID}
	if err := a.store.Policies().Create(ctx, policy); err != nil {
		return nil, constraintErr(err)
	}
	return policy, nil
}

func (a *Admin) GetPolicy(ctx context.Context, name string) (*identity.Policy, error) {
	return a.store.Policies().FindByName(ctx, name)
}

func (a *Admin) ListPolicies(ctx context.Context) ([]*identity.Policy, error) {
	return a.store.Policies().List(ctx)
}

func (a *Admin) UpdatePolicy(ctx context.Context, name string, upd identity.PolicyUpdate) (*identity.Policy, error) {
	if upd.Name != nil && strings.TrimSpace(*upd.Name) == "" {
		return nil, fmt.Errorf("%w: policy name is required", ErrInvalidInput)
	}
	policy, err := a.store.Policies().Update(ctx, name, upd)
	if err != nil {
		return nil, constraintErr(err)
	}
	return policy, nil
}

func (a *Admin) DeletePolicy(ctx context.Context, name string) error {
	return a.store.Policies().DeleteByName(ctx, name)
}

// constraintErr surfaces store constraint violations as invalid input;
// anything else is passed through unchanged.
func constraintErr(err error) error {
	if errors.Is(err, identity.ErrConflict) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return err
}
