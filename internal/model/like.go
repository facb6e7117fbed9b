package model

import "time"

// Like 点赞，(user_id, post_id) 唯一，作为幂等开关
type Like struct {
	UserID    string `gorm:"primaryKey;type:varchar(36)"`
	PostID    string `gorm:"primaryKey;type:varchar(36);index:idx_like_post"`
	CreatedAt time.Time
}

func (Like) TableName() string { return "likes" }
