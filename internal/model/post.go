package model

import "time"

// Post 内容主体；计数字段由互动服务增量维护，补偿任务定期校正
type Post struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)"`
	AuthorID     string    `gorm:"type:varchar(36);index:idx_post_author_created"`
	Content      string    `gorm:"type:text"`
	MediaURL     string    `gorm:"type:varchar(256)"`
	MediaType    string    `gorm:"type:varchar(16)"` // image / video
	LikeCount    int64     `gorm:"not null;default:0"`
	CommentCount int64     `gorm:"not null;default:0"`
	CreatedAt    time.Time `gorm:"index:idx_post_author_created"`
	UpdatedAt    time.Time
}

func (Post) TableName() string { return "posts" }
