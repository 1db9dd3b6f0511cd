package identity

import "time"

// User is a human account. Username, email and phone number are each
// globally unique; the password is only ever stored as a hash.
type User struct {
	ID             string    `json:"id"`
	FirstName      string    `json:"first_name,omitempty"`
	LastName       string    `json:"last_name,omitempty"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	PhoneNumber    string    `json:"phone_number,omitempty"`
	SecondaryEmail string    `json:"secondary_email,omitempty"`
	CompanyName    string    `json:"company_name,omitempty"`
	Country        string    `json:"country,omitempty"`
	PasswordHash   string    `json:"-"`
	RoleID         string    `json:"role_id,omitempty"`
	Disabled       bool      `json:"disabled"`
	Joined         time.Time `json:"joined"`
}

// Role is a named group owning zero or more policies and users.
type Role struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Resource is a named protectable entity. The wildcard resource is a
// literal row named "*".
type Resource struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Permission is an (action, resource) capability pair. The wildcard
// action is the literal string "*".
type Permission struct {
	ID         string `json:"id"`
	Action     string `json:"action"`
	ResourceID string `json:"resource_id"`
}

// Policy binds one role to one permission. The pair (permission_id,
// role_id) is the composite identity; the name is unique.
type Policy struct {
	Name         string `json:"name"`
	PermissionID string `json:"permission_id"`
	RoleID       string `json:"role_id"`
}

// PolicyTarget is a policy row materialized for evaluation: the
// permission action joined with its resource name.
type PolicyTarget struct {
	Action       string
	ResourceName string
}

// Login is an immutable audit record of a single login attempt. Rows
// are appended on every attempt and never updated or deleted.
type Login struct {
	ID        string    `json:"-"`
	Timestamp time.Time `json:"timestamp"`
	IPAddress string    `json:"ip_address"`
	Failed    bool      `json:"failed"`
	UserAgent string    `json:"user_agent"`
	UserID    string    `json:"-"`
}

// OTP is a single-use action token. Both codes are unique across the
// store; the row is deleted on redemption or revocation, never updated.
type OTP struct {
	AuthorizationCode string
	RevokeCode        string
	Action            string
	ValidTill         time.Time
	UserID            string
}

// UserUpdate carries the mutable profile fields for a user update. Nil
// fields are left untouched.
type UserUpdate struct {
	FirstName      *string
	LastName       *string
	PhoneNumber    *string
	SecondaryEmail *string
	CompanyName    *string
	Country        *string
	RoleID         *string
	Disabled       *bool
}

// PermissionUpdate carries mutable permission fields.
type PermissionUpdate struct {
	Action     *string
	ResourceID *string
}

// PolicyUpdate carries mutable policy fields.
type PolicyUpdate struct {
	Name         *string
	PermissionID *string
	RoleID       *string
}
