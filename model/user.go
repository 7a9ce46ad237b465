package model

import "time"

// User is a chat peer as listed by the relay server.
type User struct {
	ID        string    `json:"id" gorm:"primaryKey;size:64"`
	FullName  string    `json:"fullName" gorm:"size:100"`
	ImageURL  string    `json:"imageUrl,omitempty" gorm:"size:512"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}
