package model

import "time"

// Client 客户档案，挂在 user 账号下
type Client struct {
	ID           int64
	UserID       int64
	Name         string
	BusinessName string
	Industry     string
	ContactEmail string
	CreatedAt    time.Time
}
