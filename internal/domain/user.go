package domain

import "time"

type User struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	IsAdmin   bool       `json:"isAdmin"`
	CreatedAt time.Time  `json:"createdAt"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`
}

type Favourite struct {
	UserID   string
	LenderID string
}

// Session is what a login token resolves to.
type Session struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
