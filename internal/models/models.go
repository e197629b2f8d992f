package models

import (
	"errors"
	"time"
)

var (
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// TitleMaxLength is the maximum number of characters in a post title.
const TitleMaxLength = 200

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Created      time.Time `json:"created"`
}

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID    string
	Username  string
	SessionID string
}

type Session struct {
	ID       string
	UserID   string
	Username string
	Created  time.Time
	Expires  time.Time
}

type Post struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"owner_id"`
	OwnerUsername string    `json:"owner_username"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	Created       time.Time `json:"created"`
}

// NewerThan reports whether p sorts before o in a newest-first listing:
// later creation time first, ties broken by the larger ID.
func (p Post) NewerThan(o Post) bool {
	if !p.Created.Equal(o.Created) {
		return p.Created.After(o.Created)
	}
	return p.ID > o.ID
}

type PostCount struct {
	OwnerID string `json:"owner_id"`
	Count   int64  `json:"count"`
}
