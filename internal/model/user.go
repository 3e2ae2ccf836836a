package model

import "time"

type User struct {
	ID           int64
	Email        string
	PasswordHash string
	Role         string // client | admin
	CreatedAt    time.Time
}
