package model

import "time"

// User 用户（身份创建后不可变，资料字段可更新）
type User struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	Username  string `gorm:"type:varchar(64);uniqueIndex;not null"`
	Email     string `gorm:"type:varchar(128);uniqueIndex;not null"`
	FullName  string `gorm:"type:varchar(128)"`
	Bio       string `gorm:"type:text"`
	AvatarURL string `gorm:"type:varchar(256)"`
	Age       int
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (User) TableName() string { return "users" }
