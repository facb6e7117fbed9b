package model

import "time"

// Comment 评论，创建后不可修改
type Comment struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)"`
	PostID    string    `gorm:"type:varchar(36);index:idx_comment_post_created;not null"`
	UserID    string    `gorm:"type:varchar(36);not null"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"index:idx_comment_post_created"`
}

func (Comment) TableName() string { return "comments" }
