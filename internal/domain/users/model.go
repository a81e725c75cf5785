package users

import (
	"errors"
	"time"
)

type Role string

const (
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

type User struct {
	ID           int64
	TelegramID   int64 // 0 — без Telegram (только вход в API)
	Login        string
	Name         string
	PasswordHash string
	Role         Role
	Status       Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u *User) Approved() bool { return u != nil && u.Status == StatusApproved }

func (u *User) IsAdmin() bool { return u.Approved() && u.Role == RoleAdmin }

var (
	ErrInvalidCredentials = errors.New("invalid login or password")
	ErrNotApproved        = errors.New("user is not approved")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
)
