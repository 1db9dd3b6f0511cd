package identity

import "strings"

type lookupField int

const (
	lookupUsername lookupField = iota
	lookupEmail
)

// Lookup selects a user by exactly one unique attribute. Construct it
// with ByUsername or ByEmail; the zero value matches nothing useful and
// resolves by username.
type Lookup struct {
	field lookupField
	value string
}

// ByUsername selects a user by username.
func ByUsername(username string) Lookup {
	return Lookup{field: lookupUsername, value: strings.TrimSpace(username)}
}

// ByEmail selects a user by email address.
func ByEmail(email string) Lookup {
	return Lookup{field: lookupEmail, value: strings.TrimSpace(strings.ToLower(email))}
}

// Value returns the lookup key.
func (l Lookup) Value() string { return l.value }

// column returns the user table column the lookup matches against.
func (l Lookup) column() string {
	if l.field == lookupEmail {
		return "email"
	}
	return "username"
}
