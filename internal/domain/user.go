package domain

import "time"

type User struct {
	ID           string    `json:"id"`
	LoginID      string    `json:"loginId"`
	Name         string    `json:"name,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}
