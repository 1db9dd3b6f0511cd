package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"squire.sh/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL through database/sql.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Users() UserStore             { return &userStore{db: s.db} }
func (s *PGStore) Roles() RoleStore             { return &roleStore{db: s.db} }
func (s *PGStore) Resources() ResourceStore     { return &resourceStore{db: s.db} }
func (s *PGStore) Permissions() PermissionStore { return &permissionStore{db: s.db} }
func (s *PGStore) Policies() PolicyStore        { return &policyStore{db: s.db} }
func (s *PGStore) Logins() LoginStore           { return &loginStore{db: s.db} }
func (s *PGStore) OTPs() OTPStore               { return &otpStore{db: s.db} }

// translateErr maps driver errors onto the package sentinels.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "23503", "23502": // unique, foreign key, not null
			return ErrConflict
		}
	}
	return err
}

const userColumns = `id, first_name, last_name, username, phone_number, email,
	secondary_email, company_name, country, password_hash, coalesce(role_id, ''), disabled, joined`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Username, &u.PhoneNumber,
		&u.Email, &u.SecondaryEmail, &u.CompanyName, &u.Country, &u.PasswordHash,
		&u.RoleID, &u.Disabled, &u.Joined)
	if err != nil {
		return nil, translateErr(err)
	}
	return &u, nil
}

// User store ---------------------------------------------------------------

type userStore struct{ db *sql.DB }

func (s *userStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, first_name, last_name, username, phone_number, email,
			secondary_email, company_name, country, password_hash, role_id, disabled)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		u.ID, u.FirstName, u.LastName, u.Username, u.PhoneNumber, u.Email,
		u.SecondaryEmail, u.CompanyName, u.Country, u.PasswordHash, nullable(u.RoleID), u.Disabled,
	)
	return translateErr(err)
}

func (s *userStore) Find(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id)
	return scanUser(row)
}

func (s *userStore) FindBy(ctx context.Context, lookup Lookup) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where `+lookup.column()+`=$1`, lookup.Value())
	return scanUser(row)
}

func (s *userStore) List(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+userColumns+` from users order by joined`)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *userStore) Update(ctx context.Context, username string, upd UserUpdate) (*User, error) {
	fields := map[string]any{}
	for col, v := range map[string]*string{
		"first_name":      upd.FirstName,
		"last_name":       upd.LastName,
		"phone_number":    upd.PhoneNumber,
		"secondary_email": upd.SecondaryEmail,
		"company_name":    upd.CompanyName,
		"country":         upd.Country,
	} {
		if v != nil {
			fields[col] = *v
		}
	}
	if upd.RoleID != nil {
		// An empty role id clears the assignment; the column is nullable.
		fields["role_id"] = nullable(*upd.RoleID)
	}
	if upd.Disabled != nil {
		fields["disabled"] = *upd.Disabled
	}
	set, args := buildSet(fields)
	if len(args) == 0 {
		return s.FindBy(ctx, ByUsername(username))
	}
	args = append(args, username)
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`update users set %s where username=$%d`, set, len(args)), args...)
	if err != nil {
		return nil, translateErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.FindBy(ctx, ByUsername(username))
}

func (s *userStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set password_hash=$1 where id=$2`, passwordHash, userID)
	if err != nil {
		return translateErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *userStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from users where id=$1`, id)
	if err != nil {
		return translateErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Role store ---------------------------------------------------------------

type roleStore struct{ db *sql.DB }

func (s *roleStore) Create(ctx context.Context, role *Role) error {
	if role.ID == "" {
		role.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into roles(id, title) values($1,$2)`, role.ID, role.Title)
	return translateErr(err)
}

func (s *roleStore) Find(ctx context.Context, id string) (*Role, error) {
	row := s.db.QueryRowContext(ctx, `select id, title from roles where id=$1`, id)
	var role Role
	if err := row.Scan(&role.ID, &role.Title); err != nil {
		return nil, translateErr(err)
	}
	return &role, nil
}

func (s *roleStore) List(ctx context.Context) ([]*Role, error) {
	rows, err := s.db.QueryContext(ctx, `select id, title from roles order by id`)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var roles []*Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Title); err != nil {
			return nil, translateErr(err)
		}
		roles = append(roles, &role)
	}
	return roles, rows.Err()
}

func (s *roleStore) Update(ctx context.Context, id, title string) (*Role, error) {
	res, err := s.db.ExecContext(ctx, `update roles set title=$1 where id=$2`, title, id)
	if err != nil {
		return nil, translateErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return &Role{ID: id, Title: title}, nil
}

func (s *roleStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from roles where id=$1`, id)
	if err != nil {
		return translateErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Resource store -----------------------------------------------------------

type resourceStore struct{ db *sql.DB }

func (s *resourceStore) Create(ctx context.Context, res *Resource) error {
	if res.ID == "" {
		res.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into resources(id, name) values($1,$2)`, res.ID, res.Name)
	return translateErr(err)
}

func (s *resourceStore) Find(ctx context.Context, id string) (*Resource, error) {
	row := s.db.QueryRowContext(ctx, `select id, name from resources where id=$1`, id)
	var res Resource
	if err := row.Scan(&res.ID, &res.Name); err != nil {
		return nil, translateErr(err)
	}
	return &res, nil
}

func (s *resourceStore) List(ctx context.Context) ([]*Resource, error) {
	rows, err := s.db.QueryContext(ctx, `select id, name from resources order by name`)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var out []*Resource
	for rows.Next() {
		var res Resource
		if err := rows.Scan(&res.ID, &res.Name); err != nil {
			return nil, translateErr(err)
		}
		out = append(out, &res)
	}
	return out, rows.Err()
}

func (s *resourceStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from resources where id=$1`, id)
	if err != nil {
		return translateErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Permission store ---------------------------------------------------------

type permissionStore struct{ db *sql.DB }

func (s *permissionStore) Create(ctx context.Context, perm *Permission) error {
	if perm.ID == "" {
		perm.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into permissions(id, action, resource_id) values($1,$2,$3)`,
		perm.ID, perm.Action, perm.ResourceID)
	return translateErr(err)
}

func (s *permissionStore) Find(ctx context.Context, id string) (*Permission, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, action, resource_id from permissions where id=$1`, id)
	var perm Permission
	if err := row.Scan(&perm.ID, &perm.Action, &perm.ResourceID); err != nil {
		return nil, translateErr(err)
	}
	return &perm, nil
}

func (s *permissionStore) List(ctx context.Context) ([]*Permission, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, action, resource_id from permissions order by id`)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var perms []*Permission
	for rows.Next() {
		var perm Permission
		if err := rows.Scan(&perm.ID, &perm.Action, &perm.ResourceID); err != nil {
			return nil, translateErr(err)
		}
		perms = append(perms, &perm)
	}
	return perms, rows.Err()
}

func (s *permissionStore) Update(ctx context.Context, id string, upd PermissionUpdate) (*Permission, error) {
	fields := map[string]any{}
	if upd.Action != nil {
		fields["action"] = *upd.Action
	}
	if upd.ResourceID != nil {
		fields["resource_id"] = *upd.ResourceID
	}
	set, args := buildSet(fields)
	if len(args) == 0 {
		return s.Find(ctx, id)
	}
	args = append(args, id)
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`update permissions set %s where id=$%d`, set, len(args)), args...)
	if err != nil {
		return nil, translateErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.Find(ctx, id)
}

func (s *permissionStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from permissions where id=$1`, id)
	if err != nil {
		return translateErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Policy store -------------------------------------------------------------

type policyStore struct{ db *sql.DB }

func (s *policyStore) Create(ctx context.Context, policy *Policy) error {
	_, err := s.db.ExecContext(ctx,
		`insert into policies(name, permission_id, role_id) values($1,$2,$3)`,
		policy.Name, policy.PermissionID, policy.RoleID)
	return translateErr(err)
}

func (s *policyStore) FindByName(ctx context.Context, name string) (*Policy, error) {
	row := s.db.QueryRowContext(ctx,
		`select name, permission_id, role_id from policies where name=$1`, name)
	var policy Policy
	if err := row.Scan(&policy.Name, &policy.PermissionID, &policy.RoleID); err != nil {
		return nil, translateErr(err)
	}
	return &policy, nil
}

func (s *policyStore) List(ctx context.Context) ([]*Policy, error) {
	rows, err := s.db.QueryContext(ctx,
		`select name, permission_id, role_id from policies order by name`)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var policies []*Policy
	for rows.Next() {
		var policy Policy
		if err := rows.Scan(&policy.Name, &policy.PermissionID, &policy.RoleID); err != nil {
			return nil, translateErr(err)
		}
		policies = append(policies, &policy)
	}
	return policies, rows.Err()
}

func (s *policyStore) Update(ctx context.Context, name string, upd PolicyUpdate) (*Policy, error) {
	fields := map[string]any{}
	if upd.Name != nil {
		fields["name"] = *upd.Name
	}
	if upd.PermissionID != nil {
		fields["permission_id"] = *upd.PermissionID
	}
	if upd.RoleID != nil {
		fields["role_id"] = *upd.RoleID
	}
	set, args := buildSet(fields)
	if len(args) == 0 {
		return s.FindByName(ctx, name)
	}
	args = append(args, name)
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`update policies set %s where name=$%d`, set, len(args)), args...)
	if err != nil {
		return nil, translateErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	if upd.Name != nil {
		name = *upd.Name
	}
	return s.FindByName(ctx, name)
}

func (s *policyStore) DeleteByName(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `delete from policies where name=$1`, name)
	if err != nil {
		return translateErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *policyStore) TargetsForRole(ctx context.Context, roleID string) ([]PolicyTarget, error) {
	rows, err := s.db.QueryContext(ctx,
		`select perm.action, res.name
		 from policies pol
		 join permissions perm on perm.id = pol.permission_id
		 join resources res on res.id = perm.resource_id
		 where pol.role_id = $1`, roleID)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var targets []PolicyTarget
	for rows.Next() {
		var t PolicyTarget
		if err := rows.Scan(&t.Action, &t.ResourceName); err != nil {
			return nil, translateErr(err)
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// Login store --------------------------------------------------------------

type loginStore struct{ db *sql.DB }

func (s *loginStore) Append(ctx context.Context, login *Login) error {
	if login.ID == "" {
		login.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into logins(id, ip_address, failed, user_agent, user_id) values($1,$2,$3,$4,$5)`,
		login.ID, login.IPAddress, login.Failed, login.UserAgent, login.UserID)
	return translateErr(err)
}

func (s *loginStore) ListByUser(ctx context.Context, userID string) ([]*Login, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, created_at, ip_address, failed, user_agent, user_id
		 from logins where user_id=$1 order by created_at desc`, userID)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()

	var logins []*Login
	for rows.Next() {
		var l Login
		if err := rows.Scan(&l.ID, &l.Timestamp, &l.IPAddress, &l.Failed, &l.UserAgent, &l.UserID); err != nil {
			return nil, translateErr(err)
		}
		logins = append(logins, &l)
	}
	return logins, rows.Err()
}

// OTP store ----------------------------------------------------------------

type otpStore struct{ db *sql.DB }

func (s *otpStore) Create(ctx context.Context, otp *OTP) error {
	_, err := s.db.ExecContext(ctx,
		`insert into otps(authorization_code, revoke_code, action, valid_till, user_id)
		 values($1,$2,$3,$4,$5)`,
		otp.AuthorizationCode, otp.RevokeCode, otp.Action, otp.ValidTill, otp.UserID)
	return translateErr(err)
}

func (s *otpStore) FindByAuthorizationCode(ctx context.Context, code string) (*OTP, error) {
	row := s.db.QueryRowContext(ctx,
		`select authorization_code, revoke_code, action, valid_till, user_id
		 from otps where authorization_code=$1`, code)
	var otp OTP
	if err := row.Scan(&otp.AuthorizationCode, &otp.RevokeCode, &otp.Action, &otp.ValidTill, &otp.UserID); err != nil {
		return nil, translateErr(err)
	}
	return &otp, nil
}

func (s *otpStore) Delete(ctx context.Context, authorizationCode string) error {
	res, err := s.db.ExecContext(ctx,
		`delete from otps where authorization_code=$1`, authorizationCode)
	if err != nil {
		return translateErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *otpStore) DeleteByRevokeCode(ctx context.Context, revokeCode string) error {
	res, err := s.db.ExecContext(ctx, `delete from otps where revoke_code=$1`, revokeCode)
	if err != nil {
		return translateErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// helpers ------------------------------------------------------------------

// buildSet assembles a SET clause from the present fields, numbering
// placeholders from $1. A nil value is kept and binds as SQL NULL.
func buildSet(fields map[string]any) (string, []any) {
	var (
		parts []string
		args  []any
	)
	// Stable order keeps generated SQL deterministic for tests.
	for _, col := range []string{
		"action", "company_name", "country", "disabled", "first_name", "last_name",
		"name", "permission_id", "phone_number", "resource_id", "role_id", "secondary_email",
	} {
		v, ok := fields[col]
		if !ok {
			continue
		}
		args = append(args, v)
		parts = append(parts, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	return strings.Join(parts, ", "), args
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
