package identity

import "context"

// Store describes persistence for all identity entities. The engines
// operate on transient store-supplied copies and never cache entities
// across requests.
type Store interface {
	Users() UserStore
	Roles() RoleStore
	Resources() ResourceStore
	Permissions() PermissionStore
	Policies() PolicyStore
	Logins() LoginStore
	OTPs() OTPStore
}

// UserStore manages users.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindBy(ctx context.Context, lookup Lookup) (*User, error)
	List(ctx context.Context) ([]*User, error)
	Update(ctx context.Context, username string, upd UserUpdate) (*User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	Delete(ctx context.Context, id string) error
}

// RoleStore manages roles.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	Find(ctx context.Context, id string) (*Role, error)
	List(ctx context.Context) ([]*Role, error)
	Update(ctx context.Context, id, title string) (*Role, error)
	Delete(ctx context.Context, id string) error
}

// ResourceStore manages protectable resources.
type ResourceStore interface {
	Create(ctx context.Context, res *Resource) error
	Find(ctx context.Context, id string) (*Resource, error)
	List(ctx context.Context) ([]*Resource, error)
	Delete(ctx context.Context, id string) error
}

// PermissionStore manages (action, resource) capability pairs.
type PermissionStore interface {
	Create(ctx context.Context, perm *Permission) error
	Find(ctx context.Context, id string) (*Permission, error)
	List(ctx context.Context) ([]*Permission, error)
	Update(ctx context.Context, id string, upd PermissionUpdate) (*Permission, error)
	Delete(ctx context.Context, id string) error
}

// PolicyStore manages role-to-permission bindings.
type PolicyStore interface {
	Create(ctx context.Context, policy *Policy) error
	FindByName(ctx context.Context, name string) (*Policy, error)
	List(ctx context.Context) ([]*Policy, error)
	Update(ctx context.Context, name string, upd PolicyUpdate) (*Policy, error)
	DeleteByName(ctx context.Context, name string) error
	// TargetsForRole returns the materialized (action, resource name)
	// pairs granted to a role, one per policy.
	TargetsForRole(ctx context.Context, roleID string) ([]PolicyTarget, error)
}

// LoginStore appends immutable login audit rows.
type LoginStore interface {
	Append(ctx context.Context, login *Login) error
	ListByUser(ctx context.Context, userID string) ([]*Login, error)
}

// OTPStore manages single-use action tokens.
type OTPStore interface {
	Create(ctx context.Context, otp *OTP) error
	FindByAuthorizationCode(ctx context.Context, code string) (*OTP, error)
	Delete(ctx context.Context, authorizationCode string) error
	DeleteByRevokeCode(ctx context.Context, revokeCode string) error
}
