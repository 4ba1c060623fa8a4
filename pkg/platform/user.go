package platform

import (
	"context"
	"net/http"

	"github.com/fivetwenty-io/cbc-client/pkg/cbc"
)

// UserInfo describes console users. Updates send only changed fields.
var UserInfo = &cbc.ResourceInfo{
	Name:         "user",
	PrimaryKey:   "login_id",
	URLTemplate:  "/appservices/v6/orgs/{org_key}/users/{id}",
	CreateURL:    "/appservices/v6/orgs/{org_key}/users/_create",
	ListURL:      "/appservices/v6/orgs/{org_key}/users",
	ListKey:      "users",
	UpdateMethod: http.MethodPut,
	Validate:     validateUser,
}

func validateUser(fields cbc.Fields) error {
	if fields.Get("email").String() == "" {
		return &cbc.InvalidQueryError{Message: "user email is required"}
	}

	return nil
}

// User is a console user.
type User struct {
	*cbc.MutableModel
}

func newUser(m *cbc.Model) *User {
	return &User{MutableModel: cbc.AsMutable(m)}
}

// LoginID returns the numeric login id.
func (u *User) LoginID() string { return u.ID() }

// Email returns the login email.
func (u *User) Email() string { return u.Peek("email").String() }

// FirstName returns the first name.
func (u *User) FirstName() string { return u.Peek("first_name").String() }

// LastName returns the last name.
func (u *User) LastName() string { return u.Peek("last_name").String() }

// Role returns the assigned role.
func (u *User) Role() string { return u.Peek("role").String() }

// SetRole changes the user's role.
func (u *User) SetRole(role string) { u.Set("role", role) }

// SetName changes the user's name.
func (u *User) SetName(first, last string) {
	u.Set("first_name", first)
	u.Set("last_name", last)
}

// GetUser fetches one user by login id.
func (a *API) GetUser(ctx context.Context, loginID string) (*User, error) {
	return cbc.Get(ctx, a.transport, UserInfo, newUser, loginID)
}

// NewUser creates an unsaved user; Save POSTs it.
func (a *API) NewUser(email, role string) *User {
	user := &User{MutableModel: cbc.NewMutableModel(a.transport, UserInfo, "")}
	user.Set("email", email)
	user.Set("role", role)

	return user
}

// Users lists console users.
func (a *API) Users(ctx context.Context) ([]*User, error) {
	return cbc.List(ctx, a.transport, UserInfo, newUser, nil)
}
