/*
Package user contains the credential registry used to gate chat sessions.

It defines the User record, the Store contract shared by every connection, and the
in-memory and PostgreSQL implementations of that contract.
*/
package user

import (
	"context"
	"errors"
)

//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../../mocks/mock_store.go -package=mocks

// ErrAlreadyExists is returned by Store.Register when the username is taken.
// Its text is reported verbatim to clients.
var ErrAlreadyExists = errors.New("Username already exists")

// User is a registered identity. Usernames are unique within a Store.
type User struct {
	Username string `json:"username"`
	Password string `json:"-"`
}

// Store is the shared username to password registry.
type Store interface {
	// Register inserts the pair iff username is absent, otherwise it returns
	// ErrAlreadyExists and leaves the stored record untouched.
	Register(ctx context.Context, username, password string) error

	// Authenticate reports whether username exists and password matches it exactly.
	Authenticate(ctx context.Context, username, password string) (bool, error)
}
