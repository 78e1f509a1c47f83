// Package domain contains entities and their invariants, no transport or storage
package domain

import (
	"errors"
	"slices"
)

const (
	MaxUserIDLen   = 64
	MaxUsernameLen = 36
)

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
	ErrUserIDEmpty     = errors.New("user id empty")
	ErrUserIDTooLong   = errors.New("user id too long")
)

type UserID string

type Role string

const (
	RoleHost    Role = "host"
	RoleStudent Role = "student"
)

func (r Role) Valid() bool { return r == RoleHost || r == RoleStudent }

type User struct {
	ID       UserID `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(id UserID, username string, role Role) (*User, error) {
	if len(id) == 0 {
		return nil, ErrUserIDEmpty
	}
	if len(id) > MaxUserIDLen {
		return nil, ErrUserIDTooLong
	}
	u := &User{ID: id, Role: role}
	if err := u.SetUsername(username); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *User) SetUsername(username string) error {
	if len(username) == 0 {
		return ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	u.Username = username
	return nil
}

// UserSet is an ordered set of user ids persisted as a JSON array.
type UserSet []UserID

func (s UserSet) Contains(id UserID) bool { return slices.Contains(s, id) }

func (s UserSet) Add(id UserID) UserSet {
	if s.Contains(id) {
		return s
	}
	return append(s, id)
}

func (s UserSet) Remove(id UserID) UserSet {
	return slices.DeleteFunc(slices.Clone(s), func(u UserID) bool { return u == id })
}
